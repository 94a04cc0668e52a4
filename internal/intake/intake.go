// Package intake turns inbound messages of any kind into text for the conversation flows.
package intake

import (
	"bytes"
	"context"
	"io"
	"log/slog"

	"github.com/BTreeMap/TalkyTrainer/internal/models"
	"github.com/BTreeMap/TalkyTrainer/internal/objectstore"
)

// voiceFilename names uploads to the transcription API; the extension selects the format.
const voiceFilename = "voice.oga"

// MediaSource downloads the media attached to an inbound message.
type MediaSource interface {
	DownloadMedia(ctx context.Context, msg models.InboundMessage) ([]byte, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Normalizer downloads, archives and transcribes inbound media.
type Normalizer struct {
	media       MediaSource
	archive     objectstore.Store
	transcriber Transcriber
}

// NewNormalizer creates a Normalizer. archive may be nil to skip archiving.
func NewNormalizer(media MediaSource, archive objectstore.Store, transcriber Transcriber) *Normalizer {
	return &Normalizer{media: media, archive: archive, transcriber: transcriber}
}

// Normalize returns the text carried by msg. ok is false only when a voice note could not be transcribed.
func (n *Normalizer) Normalize(ctx context.Context, msg models.InboundMessage) (string, bool) {
	switch {
	case msg.Kind.IsAudio():
		return n.voice(ctx, msg)
	case msg.Kind == models.KindImage:
		n.archiveMedia(ctx, msg, objectstore.KindImage)
		return msg.Text, true
	default:
		return msg.Text, true
	}
}

func (n *Normalizer) voice(ctx context.Context, msg models.InboundMessage) (string, bool) {
	data := n.archiveMedia(ctx, msg, objectstore.KindAudio)
	if data == nil {
		return "", false
	}
	if n.transcriber == nil {
		slog.Warn("Normalizer voice note received without transcriber", "from", msg.From)
		return "", false
	}
	text, err := n.transcriber.Transcribe(ctx, bytes.NewReader(data), voiceFilename)
	if err != nil || text == "" {
		slog.Error("Normalizer transcription failed", "error", err, "from", msg.From, "id", msg.ID)
		return "", false
	}
	slog.Debug("Normalizer voice note transcribed", "from", msg.From, "length", len(text))
	return text, true
}

// archiveMedia downloads the media and stores a copy. It returns nil when the download fails.
func (n *Normalizer) archiveMedia(ctx context.Context, msg models.InboundMessage, kind objectstore.Kind) []byte {
	data, err := n.media.DownloadMedia(ctx, msg)
	if err != nil || len(data) == 0 {
		slog.Error("Normalizer media download failed", "error", err, "from", msg.From, "kind", msg.Kind)
		return nil
	}
	if n.archive == nil {
		return data
	}
	key, err := n.archive.Upload(ctx, msg.From, kind, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Error("Normalizer media archive failed", "error", err, "from", msg.From, "kind", kind)
		return data
	}
	slog.Debug("Normalizer media archived", "key", key, "bytes", len(data))
	return data
}
