package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidLink = errors.New("invalid or expired booking link")

// HashSecret produces the value stored in TRIGGER_SECRET_HASH.
func HashSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(b), err
}

func CheckSecret(hash, secret string) bool {
	if hash == "" || secret == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(header[len(prefix):])
	return tok, tok != ""
}

// Links signs the booking references embedded in settlement emails.
type Links struct {
	sc *securecookie.SecureCookie
}

const linkName = "booking_link"

func NewLinks(hashKey, blockKey []byte, ttl time.Duration) *Links {
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(ttl.Seconds()))
	return &Links{sc: sc}
}

// Sign returns an opaque, URL-safe token naming the booking and its session.
func (l *Links) Sign(bookingID, sessionID string) (string, error) {
	return l.sc.Encode(linkName, map[string]string{"b": bookingID, "s": sessionID})
}

func (l *Links) Verify(token string) (bookingID, sessionID string, err error) {
	val := map[string]string{}
	if err := l.sc.Decode(linkName, token, &val); err != nil {
		return "", "", ErrInvalidLink
	}
	if val["b"] == "" {
		return "", "", ErrInvalidLink
	}
	return val["b"], val["s"], nil
}
