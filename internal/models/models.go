// Package models defines the core data structures for TalkyTrainer.
//
// It includes the training conversation types, prompt records, business templates,
// leads, inbound message envelopes and the JSON envelope used by the HTTP API.
package models

import (
	"errors"
	"strings"
)

// Validation constants for input validation
const (
	// MaxPromptLength defines the maximum allowed length for a stored system prompt
	MaxPromptLength = 32768
	// MaxRelayMessageLength defines the maximum allowed length for a relayed message body
	MaxRelayMessageLength = 4096
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient      = errors.New("recipient cannot be empty")
	ErrEmptyMessage        = errors.New("message or mediaUrl is required")
	ErrMessageTooLong      = errors.New("message exceeds maximum length")
	ErrPromptTooLong       = errors.New("prompt exceeds maximum length")
	ErrInvalidDelay        = errors.New("response delay must be zero or positive")
	ErrEmptyBusinessID     = errors.New("business id cannot be empty")
	ErrInvalidMediaURL     = errors.New("mediaUrl must be an http or https URL")
	ErrEmptyTemplateFields = errors.New("at least one template field is required")
)

// RelayRequest is the payload accepted by the inbound relay endpoint.
type RelayRequest struct {
	To       string `json:"to,omitempty"`
	Message  string `json:"message"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

// Validate checks the relay request. The recipient is resolved by the caller.
func (r RelayRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" && strings.TrimSpace(r.MediaURL) == "" {
		return ErrEmptyMessage
	}
	if len(r.Message) > MaxRelayMessageLength {
		return ErrMessageTooLong
	}
	if r.MediaURL != "" && !strings.HasPrefix(r.MediaURL, "http://") && !strings.HasPrefix(r.MediaURL, "https://") {
		return ErrInvalidMediaURL
	}
	return nil
}

// ResponseDelayRequest updates the artificial reply latency.
type ResponseDelayRequest struct {
	Seconds float64 `json:"seconds"`
}

// Validate checks the delay is not negative.
func (r ResponseDelayRequest) Validate() error {
	if r.Seconds < 0 {
		return ErrInvalidDelay
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusAccepted indicates work was queued and will complete asynchronously.
	APIStatusAccepted APIStatus = "accepted"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Accepted creates a response for work that continues in the background.
func Accepted(message string) APIResponse {
	return APIResponse{Status: string(APIStatusAccepted), Message: message}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
