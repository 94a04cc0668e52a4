package models

import "time"

// MessageKind describes the content carried by an inbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindVoice    MessageKind = "voice"
	KindDocument MessageKind = "document"
	KindSticker  MessageKind = "sticker"
	KindContact  MessageKind = "contact"
	KindLocation MessageKind = "location"
	KindOther    MessageKind = "other"
)

// IsAudio reports whether the kind carries speech that can be transcribed.
func (k MessageKind) IsAudio() bool {
	return k == KindVoice || k == KindAudio
}

// InboundMessage is a provider-agnostic inbound chat message.
type InboundMessage struct {
	ID         string      `json:"id"`
	From       string      `json:"from"`              // canonical sender phone number
	Chat       string      `json:"chat"`              // chat identifier (group JID for group messages)
	IsGroup    bool        `json:"is_group"`
	FromMe     bool        `json:"from_me"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`    // body or caption
	QuotedText string      `json:"quoted,omitempty"`  // text of the message being replied to
	MediaURL   string      `json:"media_url,omitempty"`
	MimeType   string      `json:"mime_type,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Raw        any         `json:"-"` // provider event, used to download media
}
