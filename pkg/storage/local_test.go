package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}
	return s
}

func TestLocalStorageRoundTrip(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	key := "recordings/evt-42/s1.webm"
	recording := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01, 0x02, 0x03}

	ok, err := s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists before write: %v", err)
	}
	if ok {
		t.Fatal("Exists reported an unwritten key")
	}

	if err := s.Write(ctx, key, bytes.NewReader(recording), int64(len(recording)), "video/webm"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ok, err = s.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists after write: %v", err)
	}
	if !ok {
		t.Fatal("Exists missed a written key")
	}

	rc, err := s.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read content: %v", err)
	}
	if !bytes.Equal(got, recording) {
		t.Errorf("read back %v, want %v", got, recording)
	}

	url, err := s.GetURL(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("GetURL: %v", err)
	}
	if !strings.HasPrefix(url, "file://") || !strings.HasSuffix(url, "s1.webm") {
		t.Errorf("GetURL = %q, want file:// URL ending in s1.webm", url)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	s := newLocal(t)
	ctx := context.Background()

	for _, key := range []string{"../outside", "..", "/etc/passwd", "a/../../outside"} {
		if err := s.Write(ctx, key, strings.NewReader("x"), 1, "text/plain"); err == nil {
			t.Errorf("Write(%q) succeeded, want rejection", key)
		}
		if _, err := s.Read(ctx, key); err == nil {
			t.Errorf("Read(%q) succeeded, want rejection", key)
		}
	}
}
