package dmarket

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/sign"
)

func newTestSigner(t *testing.T) (*Signer, *[32]byte) {
	t.Helper()
	pub, priv, err := sign.GenerateKey(rand.Reader)
	require.NoError(t, err)

	s, err := NewSigner("test-public-key", hex.EncodeToString(priv[:]))
	require.NoError(t, err)
	return s, pub
}

func TestParamsEncodePreservesOrder(t *testing.T) {
	p := Params{
		{"title", "AK-47 | Redline"},
		{"limit", "100"},
		{"Cursor", ""},
	}
	assert.Equal(t, "title=AK-47+%7C+Redline&limit=100&Cursor=", p.Encode())
}

func TestParamsEncodeEmpty(t *testing.T) {
	assert.Equal(t, "", Params(nil).Encode())
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	_, err := NewSigner("pub", "not-hex")
	assert.Error(t, err)

	_, err = NewSigner("pub", hex.EncodeToString(make([]byte, 32)))
	assert.Error(t, err, "short keys must be rejected")
}

func TestSignerHeaders(t *testing.T) {
	s, pub := newTestSigner(t)
	now := time.Unix(1700000000, 0)

	params := Params{{"gameId", "a8db"}, {"title", "Glock-18"}}
	body := []byte(`{"offers":[]}`)
	h := s.Headers("PATCH", "/exchange/v1/offers-buy", params, body, now)

	assert.Equal(t, "test-public-key", h["X-Api-Key"])
	assert.Equal(t, "1700000000", h["X-Sign-Date"])
	require.True(t, strings.HasPrefix(h["X-Request-Sign"], "dmar ed25519 "))

	sigHex := strings.TrimPrefix(h["X-Request-Sign"], "dmar ed25519 ")
	sig, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	// Verify the signature covers method + path?query + body + timestamp.
	msg := "PATCH/exchange/v1/offers-buy?gameId=a8db&title=Glock-18" + string(body) + "1700000000"
	opened, ok := sign.Open(nil, append(sig, []byte(msg)...), pub)
	require.True(t, ok, "signature must verify against the canonical string")
	assert.Equal(t, msg, string(opened))
}

func TestSignerHeadersNoParamsNoBody(t *testing.T) {
	s, pub := newTestSigner(t)
	now := time.Unix(1700000123, 0)

	h := s.Headers("GET", "/account/v1/balance", nil, nil, now)

	sig, err := hex.DecodeString(strings.TrimPrefix(h["X-Request-Sign"], "dmar ed25519 "))
	require.NoError(t, err)

	msg := "GET/account/v1/balance1700000123"
	_, ok := sign.Open(nil, append(sig, []byte(msg)...), pub)
	assert.True(t, ok)
}
