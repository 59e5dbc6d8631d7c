// Package dmarket is the REST client for the DMarket exchange API.
//
// Every request is authenticated with an ed25519 signature over the string
// method + path-with-query + body + unix-timestamp. The query string must be
// canonicalized in the exact order the parameters were supplied, which is why
// this package uses an ordered Params type instead of url.Values.
package dmarket

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/sign"

	"github.com/giratech/dmtrader/internal/domain"
)

const signaturePrefix = "dmar ed25519 "

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query parameters. Order matters: the signature
// is computed over the query string as supplied, and url.Values would re-sort
// keys on Encode.
type Params []Param

// Encode returns the URL-encoded query string preserving parameter order.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// Signer produces DMarket authentication headers from an ed25519 key pair.
type Signer struct {
	publicKey  string
	privateKey *[64]byte
}

// NewSigner parses the hex-encoded ed25519 private key and returns a Signer.
// publicKey is sent verbatim as the X-Api-Key header.
func NewSigner(publicKey, secretKey string) (*Signer, error) {
	raw, err := hex.DecodeString(secretKey)
	if err != nil {
		return nil, fmt.Errorf("dmarket: decode secret key: %w", err)
	}
	if len(raw) != 64 {
		return nil, fmt.Errorf("dmarket: secret key must be 64 bytes, got %d: %w", len(raw), domain.ErrSigningFailed)
	}

	var key [64]byte
	copy(key[:], raw)

	return &Signer{publicKey: publicKey, privateKey: &key}, nil
}

// Headers returns the authentication headers for one request. path must
// include the leading slash; params may be nil; body is the raw JSON payload
// or nil for bodyless requests.
func (s *Signer) Headers(method, path string, params Params, body []byte, now time.Time) map[string]string {
	ts := strconv.FormatInt(now.Unix(), 10)

	target := path
	if q := params.Encode(); q != "" {
		target += "?" + q
	}

	msg := method + target + string(body) + ts

	// sign.Sign prepends the 64-byte detached signature to the message.
	signed := sign.Sign(nil, []byte(msg), s.privateKey)
	sig := hex.EncodeToString(signed[:64])

	return map[string]string{
		"X-Api-Key":      s.publicKey,
		"X-Request-Sign": signaturePrefix + sig,
		"X-Sign-Date":    ts,
	}
}
