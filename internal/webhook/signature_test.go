package webhook

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sigTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSign_Format(t *testing.T) {
	sm := NewSignatureManager()

	header, err := sm.Sign([]byte(`{"id":"notif_1"}`), SecretConfig{Secret: "topsecret"}, sigTime)
	require.NoError(t, err)

	parts := strings.Split(header, ",")
	require.Len(t, parts, 2)
	assert.Equal(t, "t=1772366400", parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "v1="))
	assert.Len(t, strings.TrimPrefix(parts[1], "v1="), 64)
}

func TestSign_EmptySecret(t *testing.T) {
	sm := NewSignatureManager()
	_, err := sm.Sign([]byte("{}"), SecretConfig{}, sigTime)
	assert.Error(t, err)
}

func TestSign_StableAcrossRetries(t *testing.T) {
	sm := NewSignatureManager()
	payload := []byte(`{"id":"notif_1"}`)
	cfg := SecretConfig{Secret: "topsecret"}

	first, err := sm.Sign(payload, cfg, sigTime)
	require.NoError(t, err)
	second, err := sm.Sign(payload, cfg, sigTime)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSignAndVerify(t *testing.T) {
	sm := NewSignatureManager()
	payload := []byte(`{"id":"notif_1","title":"New order"}`)

	header, err := sm.Sign(payload, SecretConfig{Secret: "topsecret"}, sigTime)
	require.NoError(t, err)

	assert.True(t, sm.Verify(payload, header, "topsecret"))
	assert.False(t, sm.Verify(payload, header, "wrongsecret"))
	assert.False(t, sm.Verify([]byte(`{"id":"tampered"}`), header, "topsecret"))
}

func TestVerify_MalformedHeader(t *testing.T) {
	sm := NewSignatureManager()
	assert.False(t, sm.Verify([]byte("{}"), "", "secret"))
	assert.False(t, sm.Verify([]byte("{}"), "garbage", "secret"))
	assert.False(t, sm.Verify([]byte("{}"), "t=notanumber,v1=abc", "secret"))
}

func TestSign_RotationAddsOldSignature(t *testing.T) {
	sm := NewSignatureManager()
	payload := []byte("{}")
	cfg := SecretConfig{
		Secret:            "newsecret",
		PreviousSecret:    "oldsecret",
		PreviousExpiresAt: sigTime.Add(24 * time.Hour),
	}

	header, err := sm.Sign(payload, cfg, sigTime)
	require.NoError(t, err)
	assert.Contains(t, header, ",v1_old=")

	// Both the current and old secrets verify during rotation.
	assert.True(t, sm.Verify(payload, header, "newsecret"))
}

func TestSign_ExpiredRotationOmitsOldSignature(t *testing.T) {
	sm := NewSignatureManager()
	cfg := SecretConfig{
		Secret:            "newsecret",
		PreviousSecret:    "oldsecret",
		PreviousExpiresAt: sigTime.Add(-time.Hour),
	}

	header, err := sm.Sign([]byte("{}"), cfg, sigTime)
	require.NoError(t, err)
	assert.NotContains(t, header, "v1_old")
}
