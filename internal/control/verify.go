package control

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader and TimestampHeader are the headers every inbound
// interaction must carry, mirroring the timestamp+body signing scheme
// chat platforms use for webhook interactions.
const (
	SignatureHeader = "X-Signature-Ed25519"
	TimestampHeader = "X-Signature-Timestamp"

	// MaxBodyBytes bounds the interaction payload this endpoint accepts,
	// before any JSON decoding is attempted.
	MaxBodyBytes = 64 * 1024
)

// Verifier checks an inbound request's ed25519 signature over
// timestamp||body against a configured public key. Signature
// verification is mandatory on every inbound request (spec.md §6):
// an unsigned or invalid request is rejected with 401 before its body
// is parsed or routed to any command handler.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// NewVerifier returns a Verifier for the given hex-encoded ed25519
// public key.
func NewVerifier(publicKeyHex string) (*Verifier, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errInvalidPublicKeySize
	}
	return &Verifier{publicKey: ed25519.PublicKey(raw)}, nil
}

var errInvalidPublicKeySize = &verifyError{"public key has wrong length for ed25519"}

type verifyError struct{ msg string }

func (e *verifyError) Error() string { return e.msg }

// Middleware rejects any request missing or failing signature
// verification with 401 and never calls next for it. The verified body
// is restored onto the request so downstream handlers can still read it.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sigHex := r.Header.Get(SignatureHeader)
		ts := r.Header.Get(TimestampHeader)
		if sigHex == "" || ts == "" {
			http.Error(w, "missing signature", http.StatusUnauthorized)
			return
		}

		sig, err := hex.DecodeString(sigHex)
		if err != nil || len(sig) != ed25519.SignatureSize {
			http.Error(w, "malformed signature", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			http.Error(w, "cannot read body", http.StatusUnauthorized)
			return
		}
		if len(body) > MaxBodyBytes {
			http.Error(w, "body too large", http.StatusUnauthorized)
			return
		}

		message := append([]byte(ts), body...)
		if !ed25519.Verify(v.publicKey, message, sig) {
			http.Error(w, "invalid signature", http.StatusUnauthorized)
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
