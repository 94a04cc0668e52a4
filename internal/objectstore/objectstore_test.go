package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

func TestObjectKey(t *testing.T) {
	ts := time.UnixMilli(1700000000123)
	if got := ObjectKey("34600111222", KindAudio, ts); got != "Audios/34600111222/1700000000123.oga" {
		t.Errorf("unexpected audio key %q", got)
	}
	if got := ObjectKey("34600111222", KindImage, ts); got != "Imagenes/34600111222/1700000000123.jpeg" {
		t.Errorf("unexpected image key %q", got)
	}
	if KindImage.ContentType() != "image/jpeg" || KindAudio.ContentType() != "audio/ogg" {
		t.Error("unexpected content types")
	}
}

func TestMemoryStore_UploadListSign(t *testing.T) {
	s := NewMemoryStore()
	base := time.UnixMilli(1700000000000)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	var keys []string
	for i := 0; i < 3; i++ {
		key, err := s.Upload(ctx, "346", KindImage, strings.NewReader("img"), 3)
		if err != nil {
			t.Fatalf("Upload failed: %v", err)
		}
		keys = append(keys, key)
	}
	if _, err := s.Upload(ctx, "346", KindAudio, strings.NewReader("voz"), -1); err != nil {
		t.Fatalf("Upload audio failed: %v", err)
	}
	if _, err := s.Upload(ctx, "999", KindImage, strings.NewReader("other"), -1); err != nil {
		t.Fatalf("Upload other owner failed: %v", err)
	}

	got, err := s.ListRecent(ctx, "346", KindImage, 2)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(got) != 2 || got[0] != keys[2] || got[1] != keys[1] {
		t.Errorf("expected newest two images %v, got %v", keys[1:], got)
	}

	all, _ := s.ListRecent(ctx, "346", KindImage, 0)
	if len(all) != 3 {
		t.Errorf("expected 3 images without limit, got %d", len(all))
	}

	u, err := s.SignedURL(ctx, keys[0])
	if err != nil || !strings.Contains(u, keys[0]) {
		t.Errorf("unexpected signed url %q, err %v", u, err)
	}
	if _, err := s.SignedURL(ctx, "Imagenes/none/1.jpeg"); err == nil {
		t.Error("expected error for unknown key")
	}
	if data, ok := s.Get(keys[0]); !ok || string(data) != "img" {
		t.Errorf("unexpected stored data %q", data)
	}
}

func TestMemoryStore_SameMillisecond(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.UnixMilli(1700000000000)
	s.now = func() time.Time { return fixed }
	a, _ := s.Upload(context.Background(), "1", KindAudio, strings.NewReader("a"), 1)
	b, _ := s.Upload(context.Background(), "1", KindAudio, strings.NewReader("b"), 1)
	if a == b {
		t.Fatalf("expected distinct keys, both %q", a)
	}
}

func TestNewMinioStore_RequiresEndpoint(t *testing.T) {
	if _, err := NewMinioStore(); err == nil {
		t.Error("expected error without endpoint")
	}
	s, err := NewMinioStore(WithEndpoint("localhost:9000"), WithCredentials("id", "secret"), WithBucket("b"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.bucket != "b" || s.region != DefaultRegion {
		t.Errorf("options not applied: bucket=%s region=%s", s.bucket, s.region)
	}
}

func TestCollectObjectsCancelsListingOnError(t *testing.T) {
	stopped := make(chan struct{})
	list := func(ctx context.Context) <-chan minio.ObjectInfo {
		ch := make(chan minio.ObjectInfo)
		go func() {
			defer close(stopped)
			defer close(ch)
			ch <- minio.ObjectInfo{Key: "Audios/346/1.oga", LastModified: time.UnixMilli(1)}
			ch <- minio.ObjectInfo{Err: errors.New("access denied")}
			for {
				select {
				case ch <- minio.ObjectInfo{Key: "Audios/346/more.oga"}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}

	if _, err := collectObjects(context.Background(), list); err == nil || err.Error() != "access denied" {
		t.Fatalf("expected listing error, got %v", err)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("listing goroutine still running after an error")
	}
}

func TestCollectObjectsDrainsListing(t *testing.T) {
	list := func(ctx context.Context) <-chan minio.ObjectInfo {
		ch := make(chan minio.ObjectInfo, 2)
		ch <- minio.ObjectInfo{Key: "a", LastModified: time.UnixMilli(1)}
		ch <- minio.ObjectInfo{Key: "b", LastModified: time.UnixMilli(2)}
		close(ch)
		return ch
	}
	objs, err := collectObjects(context.Background(), list)
	if err != nil || len(objs) != 2 {
		t.Fatalf("expected 2 objects, got %d %v", len(objs), err)
	}
	if got := newestKeys(objs, 1); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected newest key b, got %v", got)
	}
}
