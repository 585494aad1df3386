package webhook

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateSecret(t *testing.T) {
	secret, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error = %v", err)
	}
	if !strings.HasPrefix(secret, "whsec_") {
		t.Errorf("GenerateSecret() = %v, want prefix whsec_", secret)
	}
	if len(secret) != 70 {
		t.Errorf("GenerateSecret() len = %d, want 70", len(secret))
	}
}

func TestSign(t *testing.T) {
	body := []byte(`{"type":"job.completed"}`)
	ts := time.Unix(1234567890, 0)

	sig := Sign(body, "s1", ts)
	if len(sig) != 64 {
		t.Errorf("Sign() len = %d, want 64", len(sig))
	}
	if Sign(body, "s1", ts) != sig {
		t.Error("Sign() should be deterministic")
	}
	if Sign(body, "s2", ts) == sig {
		t.Error("Sign() should vary with secret")
	}
	if Sign(body, "s1", ts.Add(time.Second)) == sig {
		t.Error("Sign() should vary with timestamp")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"type":"job.failed"}`)
	now := time.Unix(1700000000, 0)
	header := SignatureValue(body, "secret", now)

	tests := []struct {
		name    string
		body    []byte
		header  string
		secret  string
		now     time.Time
		wantErr bool
	}{
		{"valid", body, header, "secret", now, false},
		{"within tolerance", body, header, "secret", now.Add(4 * time.Minute), false},
		{"expired", body, header, "secret", now.Add(6 * time.Minute), true},
		{"wrong secret", body, header, "other", now, true},
		{"tampered body", []byte(`{"type":"job.completed"}`), header, "secret", now, true},
		{"malformed", body, "garbage", "secret", now, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.body, tt.header, tt.secret, tt.now, 5*time.Minute)
			if (err != nil) != tt.wantErr {
				t.Errorf("Verify() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSignature(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		wantSig string
		wantTS  int64
		wantErr bool
	}{
		{"valid", "t=1234567890,v1=abc123", "abc123", 1234567890, false},
		{"spaces", "t=1234567890, v1=abc123", "abc123", 1234567890, false},
		{"missing signature", "t=1234567890", "", 0, true},
		{"missing timestamp", "v1=abc123", "", 0, true},
		{"bad timestamp", "t=notanumber,v1=abc123", "", 0, true},
		{"empty", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, ts, err := ParseSignature(tt.header)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedSignature) {
					t.Errorf("ParseSignature() error = %v, want ErrMalformedSignature", err)
				}
				return
			}
			if sig != tt.wantSig {
				t.Errorf("ParseSignature() sig = %v, want %v", sig, tt.wantSig)
			}
			if ts.Unix() != tt.wantTS {
				t.Errorf("ParseSignature() ts = %v, want %v", ts.Unix(), tt.wantTS)
			}
		})
	}
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cb := NewCircuitBreakerWithConfig(2, time.Minute)
	cb.now = func() time.Time { return now }

	if !cb.Allow("a") {
		t.Fatal("Allow() on unknown endpoint = false")
	}
	cb.RecordFailure("a")
	if cb.IsOpen("a") {
		t.Fatal("IsOpen() after one failure = true")
	}
	cb.RecordFailure("a")
	if !cb.IsOpen("a") || cb.Allow("a") {
		t.Fatal("circuit should be open after threshold")
	}

	now = now.Add(2 * time.Minute)
	if !cb.Allow("a") {
		t.Fatal("Allow() after recovery time = false")
	}
	cb.RecordFailure("a")
	if !cb.IsOpen("a") {
		t.Fatal("failure while half-open should reopen")
	}

	now = now.Add(2 * time.Minute)
	cb.Allow("a")
	cb.RecordSuccess("a")
	if cb.IsOpen("a") || !cb.Allow("a") {
		t.Error("success should close the circuit")
	}
	if !cb.Allow("b") {
		t.Error("endpoints should be independent")
	}
}
