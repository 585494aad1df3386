package webhook

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" over "<unix>.<body>".
const SignatureHeader = "X-Scene-Signature"

var ErrMalformedSignature = errors.New("webhook: malformed signature header")

func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}

// Sign returns the hex HMAC-SHA256 of body bound to timestamp.
func Sign(body []byte, secret string, timestamp time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp.Unix())
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func SignatureValue(body []byte, secret string, timestamp time.Time) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp.Unix(), Sign(body, secret, timestamp))
}

// Verify checks a header value produced by SignatureValue. Timestamps older than
// tolerance relative to now are rejected.
func Verify(body []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	sig, ts, err := ParseSignature(header)
	if err != nil {
		return err
	}
	if tolerance > 0 && now.Sub(ts) > tolerance {
		return fmt.Errorf("webhook: signature timestamp %d outside tolerance", ts.Unix())
	}
	if !hmac.Equal([]byte(sig), []byte(Sign(body, secret, ts))) {
		return errors.New("webhook: signature mismatch")
	}
	return nil
}

func ParseSignature(header string) (signature string, timestamp time.Time, err error) {
	var ts int64
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if val, ok := strings.CutPrefix(part, "t="); ok {
			ts, err = strconv.ParseInt(val, 10, 64)
			if err != nil {
				return "", time.Time{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedSignature, err)
			}
		} else if val, ok := strings.CutPrefix(part, "v1="); ok {
			signature = val
		}
	}
	if signature == "" || ts == 0 {
		return "", time.Time{}, ErrMalformedSignature
	}
	return signature, time.Unix(ts, 0), nil
}
