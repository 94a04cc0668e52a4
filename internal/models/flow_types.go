// Package models defines flow type definitions to avoid circular imports.
package models

// FlowType represents a specific type of conversation flow
type FlowType string

// StateType represents a specific state within a flow
type StateType string

// DataKey represents a key for storing state-specific data
type DataKey string

// Flow type constants.
const (
	FlowTypeTraining FlowType = "training"
)

// State constants for the training flow. A subject without a stored state is idle.
const (
	StateIdle     StateType = "IDLE"
	StateTraining StateType = "TRAINING"
)

// Data key constants for the training flow.
const (
	DataKeyConversation DataKey = "conversation"
)

// Setting keys stored in the record store.
const (
	// SettingResponseDelay holds the artificial reply latency in seconds.
	SettingResponseDelay = "delay_Time_Response"
)
