package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"results/job-1.json", nil},
		{"a", nil},
		{"", ErrInvalidKey},
		{"/results/x.json", ErrInvalidKey},
		{"results/../secrets", ErrInvalidKey},
		{"results//x.json", ErrInvalidKey},
	}
	for _, tt := range tests {
		if got := ValidateKey(tt.key); !errors.Is(got, tt.want) {
			t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	body := `{"id":"job-1"}`
	if err := s.Upload(ctx, "results/job-1.json", strings.NewReader(body), "application/json", int64(len(body))); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	ok, err := s.Exists(ctx, "results/job-1.json")
	if err != nil || !ok {
		t.Errorf("Exists() = %v, %v; want true", ok, err)
	}
	if ct, _ := s.ContentType("results/job-1.json"); ct != "application/json" {
		t.Errorf("ContentType() = %q", ct)
	}

	rc, err := s.Download(ctx, "results/job-1.json")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != body {
		t.Errorf("Download() = %q, want %q", data, body)
	}

	url, err := s.GetPresignedURL(ctx, "results/job-1.json", 60)
	if err != nil || !strings.Contains(url, "expires=60") {
		t.Errorf("GetPresignedURL() = %q, %v", url, err)
	}

	if err := s.Delete(ctx, "results/job-1.json"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Download(ctx, "results/job-1.json"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Download() after Delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPresignedURL(ctx, "results/job-1.json", 60); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPresignedURL() after Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStorageRejectsBadKey(t *testing.T) {
	s := NewMemoryStorage()
	err := s.Upload(context.Background(), "../x", strings.NewReader("x"), "text/plain", 1)
	if !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Upload() error = %v, want ErrInvalidKey", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
}
