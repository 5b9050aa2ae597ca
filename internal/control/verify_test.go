package control

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVerifierRejectsWrongKeyLength(t *testing.T) {
	_, err := NewVerifier(hex.EncodeToString([]byte("too-short")))
	assert.Error(t, err)
}

func TestMiddlewareRejectsMissingHeaders(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v, err := NewVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	called := false
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestMiddlewareRejectsTamperedBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v, err := NewVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	ts := "1700000000"
	signedBody := []byte(`{"command":"stats"}`)
	sig := ed25519.Sign(priv, append([]byte(ts), signedBody...))

	called := false
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader([]byte(`{"command":"rollback"}`)))
	req.Header.Set(SignatureHeader, hex.EncodeToString(sig))
	req.Header.Set(TimestampHeader, ts)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestMiddlewarePassesThroughOnValidSignatureAndRestoresBody(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v, err := NewVerifier(hex.EncodeToString(pub))
	require.NoError(t, err)

	ts := "1700000000"
	body := []byte(`{"command":"stats"}`)
	sig := ed25519.Sign(priv, append([]byte(ts), body...))

	var gotBody []byte
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, hex.EncodeToString(sig))
	req.Header.Set(TimestampHeader, ts)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, gotBody)
}
