// Package webhook implements outbound webhook delivery for notifications.
//
// It handles payload shaping, HMAC-SHA256 signing (with dual-validity
// rotation support) and HTTP POST delivery with a fixed retry schedule.
// Signatures are computed over a timestamp pinned to the notification's
// creation time, so a re-delivered notification carries an identical
// signature and consumers can dedupe at-least-once delivery by ID.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SecretConfig holds the signing secret plus an optional previous secret for
// zero-downtime rotation.
type SecretConfig struct {
	Secret string

	// PreviousSecret, when set and not yet expired, adds a v1_old signature
	// so consumers mid-rotation can verify with either secret.
	PreviousSecret    string
	PreviousExpiresAt time.Time
}

// SignatureManager computes the X-WBPulse-Signature header value.
//
// Header format: t=<unix>,v1=<hmac>[,v1_old=<hmac>]
// The signed content is "{unix_timestamp}.{payload}" using HMAC-SHA256.
type SignatureManager struct{}

// NewSignatureManager creates a SignatureManager.
func NewSignatureManager() *SignatureManager {
	return &SignatureManager{}
}

// Sign generates the signature header value for a payload. ts must be the
// notification's creation time, not the current time: the signature has to
// be stable across delivery retries.
func (sm *SignatureManager) Sign(payload []byte, cfg SecretConfig, ts time.Time) (string, error) {
	if cfg.Secret == "" {
		return "", fmt.Errorf("webhook signature: empty secret")
	}

	timestamp := ts.Unix()
	signedContent := fmt.Sprintf("%d.%s", timestamp, payload)

	header := fmt.Sprintf("t=%d,v1=%s", timestamp, computeHMAC(signedContent, cfg.Secret))

	if cfg.PreviousSecret != "" && !cfg.PreviousExpiresAt.IsZero() && !ts.After(cfg.PreviousExpiresAt) {
		header = fmt.Sprintf("%s,v1_old=%s", header, computeHMAC(signedContent, cfg.PreviousSecret))
	}

	return header, nil
}

// Verify checks a received signature header against the payload. Exposed for
// the webhook test endpoint and for consumers written in Go.
func (sm *SignatureManager) Verify(payload []byte, header string, secret string) bool {
	var ts int64
	var v1 string
	parsed, err := fmt.Sscanf(header, "t=%d,v1=%s", &ts, &v1)
	if err != nil || parsed != 2 {
		return false
	}
	// Sscanf %s greedily eats the rest; drop any trailing ",v1_old=..." part.
	if i := strings.IndexByte(v1, ','); i >= 0 {
		v1 = v1[:i]
	}

	expected := computeHMAC(fmt.Sprintf("%d.%s", ts, payload), secret)
	return hmac.Equal([]byte(expected), []byte(v1))
}

func computeHMAC(content, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(content))
	return hex.EncodeToString(mac.Sum(nil))
}
