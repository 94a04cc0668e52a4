package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
)

// MessageKind classifies msg by the first populated content field.
func MessageKind(msg *waE2E.Message) models.MessageKind {
	switch {
	case msg == nil:
		return models.KindOther
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return models.KindText
	case msg.GetImageMessage() != nil:
		return models.KindImage
	case msg.GetVideoMessage() != nil:
		return models.KindVideo
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return models.KindVoice
		}
		return models.KindAudio
	case msg.GetDocumentMessage() != nil:
		return models.KindDocument
	case msg.GetStickerMessage() != nil:
		return models.KindSticker
	case msg.GetContactMessage() != nil:
		return models.KindContact
	case msg.GetLocationMessage() != nil:
		return models.KindLocation
	default:
		return models.KindOther
	}
}

// messageText returns the body, or the caption for media messages.
func messageText(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func contextInfo(msg *waE2E.Message) *waE2E.ContextInfo {
	switch {
	case msg.GetExtendedTextMessage() != nil:
		return msg.GetExtendedTextMessage().GetContextInfo()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetContextInfo()
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetContextInfo()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetContextInfo()
	}
	return nil
}

// quotedText returns the text of the message being replied to, if any.
func quotedText(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	return messageText(contextInfo(msg).GetQuotedMessage())
}

func mimeType(msg *waE2E.Message) string {
	switch {
	case msg.GetAudioMessage() != nil:
		return msg.GetAudioMessage().GetMimetype()
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetMimetype()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetMimetype()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetMimetype()
	}
	return ""
}

// ToInbound converts a whatsmeow message event into the provider-agnostic form.
// The original event is kept in Raw for media download.
func ToInbound(evt *events.Message) models.InboundMessage {
	msg := evt.Message
	return models.InboundMessage{
		ID:         string(evt.Info.ID),
		From:       evt.Info.Sender.User,
		Chat:       evt.Info.Chat.String(),
		IsGroup:    evt.Info.IsGroup,
		FromMe:     evt.Info.IsFromMe,
		Kind:       MessageKind(msg),
		Text:       messageText(msg),
		QuotedText: quotedText(msg),
		MimeType:   mimeType(msg),
		Timestamp:  evt.Info.Timestamp,
		Raw:        evt,
	}
}
