// Package objectstore archives inbound media (voice notes, images) under per-owner prefixes.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"
)

// Kind selects the folder and file extension of an archived object.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
)

// SignedURLExpiry is how long presigned links stay valid.
const SignedURLExpiry = time.Hour

func (k Kind) folder() string {
	if k == KindImage {
		return "Imagenes"
	}
	return "Audios"
}

func (k Kind) extension() string {
	if k == KindImage {
		return "jpeg"
	}
	return "oga"
}

// ContentType returns the MIME type stored with objects of this kind.
func (k Kind) ContentType() string {
	if k == KindImage {
		return "image/jpeg"
	}
	return "audio/ogg"
}

// Prefix returns the key prefix holding all objects of the kind for ownerID.
func Prefix(ownerID string, kind Kind) string {
	return fmt.Sprintf("%s/%s/", kind.folder(), ownerID)
}

// ObjectKey builds the key for an object uploaded at t, e.g. "Audios/34600111222/1700000000000.oga".
func ObjectKey(ownerID string, kind Kind, t time.Time) string {
	return fmt.Sprintf("%s%d.%s", Prefix(ownerID, kind), t.UnixMilli(), kind.extension())
}

// Store archives media objects and hands out temporary links to them.
type Store interface {
	// Upload stores the content and returns its key. size may be -1 when unknown.
	Upload(ctx context.Context, ownerID string, kind Kind, r io.Reader, size int64) (string, error)
	// SignedURL returns a time-limited GET link for key.
	SignedURL(ctx context.Context, key string) (string, error)
	// ListRecent returns up to limit keys for ownerID and kind, newest first.
	ListRecent(ctx context.Context, ownerID string, kind Kind, limit int) ([]string, error)
}

type objectInfo struct {
	key      string
	modified time.Time
}

// newestKeys sorts by modification time, newest first, and truncates to limit (limit <= 0 keeps all).
func newestKeys(objs []objectInfo, limit int) []string {
	sort.SliceStable(objs, func(i, j int) bool {
		if objs[i].modified.Equal(objs[j].modified) {
			return objs[i].key > objs[j].key
		}
		return objs[i].modified.After(objs[j].modified)
	})
	if limit > 0 && len(objs) > limit {
		objs = objs[:limit]
	}
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.key
	}
	return keys
}
