// ABOUTME: Remember-me token codec using a keyed HMAC signature
// ABOUTME: Cookie format is "<signature>-<username>-<expiresAtEpochMillis>"

package secure

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// MinSecretLength is the minimum signing secret length in bytes.
const MinSecretLength = 32

// ErrSecretTooShort is returned when the signing secret is too short.
var ErrSecretTooShort = errors.New("signing secret too short")

// Token is a decoded remember-me credential. It is authentic only when
// Signature matches the keyed MAC of "<username>-<expiresAt>".
type Token struct {
	Signature string
	Username  string
	ExpiresAt int64 // epoch milliseconds
}

// Expired reports whether the token's expiration lies before now.
// Expiry is independent of signature validity.
func (t Token) Expired(now time.Time) bool {
	return t.ExpiresAt < now.UnixMilli()
}

// TokenCodec encodes and verifies remember-me tokens with a process-wide
// signing secret. The same secret must be used for sign and verify.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec with the given signing secret.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &TokenCodec{secret: secret}, nil
}

// Sign computes the hex-encoded HMAC-SHA1 of the input over its UTF-8 bytes.
// Hex output contains no "-", so the signature is always the prefix of the
// cookie value up to the first separator.
func (c *TokenCodec) Sign(data string) string {
	mac := hmac.New(sha1.New, c.secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// Encode produces the cookie value for a username and expiration time.
func (c *TokenCodec) Encode(username string, expiresAt int64) string {
	payload := username + "-" + strconv.FormatInt(expiresAt, 10)
	return c.Sign(payload) + "-" + payload
}

// Decode parses a cookie value into a Token. The signature is everything up
// to the first "-" and the expiration everything after the last "-", which
// tolerates usernames that themselves contain "-". Any shape mismatch or a
// non-integer expiration yields ok == false, never an error.
func (c *TokenCodec) Decode(value string) (Token, bool) {
	first := strings.Index(value, "-")
	last := strings.LastIndex(value, "-")
	if first < 0 || last <= first {
		return Token{}, false
	}

	expiresAt, err := strconv.ParseInt(value[last+1:], 10, 64)
	if err != nil {
		return Token{}, false
	}

	return Token{
		Signature: value[:first],
		Username:  value[first+1 : last],
		ExpiresAt: expiresAt,
	}, true
}

// Verify recomputes the signature over the token's username and expiration
// and compares it with the token's signature in constant time.
func (c *TokenCodec) Verify(tok Token) bool {
	want := c.Sign(tok.Username + "-" + strconv.FormatInt(tok.ExpiresAt, 10))
	return hmac.Equal([]byte(want), []byte(tok.Signature))
}
