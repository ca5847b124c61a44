// Package signing implements a minimal HMAC helper for issuing and verifying the
// session cookie, so a visitor cannot address another visitor's session by guessing.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for inputs.
func (s *Signer) Sign(sessionID string, issuedUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", sessionID, issuedUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected.
func (s *Signer) Validate(sessionID, issued, signature string) bool {
	iss, err := strconv.ParseInt(issued, 10, 64)
	if err != nil {
		return false
	}
	expected := s.Sign(sessionID, iss)
	// hmac.Equal performs constant-time comparison to avoid timing attacks.
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Token encodes a session id as "<id>.<issued>.<signature>".
func (s *Signer) Token(sessionID string, issued time.Time) string {
	unix := issued.Unix()
	return sessionID + "." + strconv.FormatInt(unix, 10) + "." + s.Sign(sessionID, unix)
}

// ParseToken returns the session id carried by a token produced by Token.
func (s *Signer) ParseToken(token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", false
	}
	if !s.Validate(parts[0], parts[1], parts[2]) {
		return "", false
	}
	return parts[0], true
}
