package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/retail-orders/internal/domain/promotion"
)

// ErrUnauthorized is returned when an API key is missing, unknown or revoked.
var ErrUnauthorized = errors.New("unauthorized")

// ScopeAll grants access to every channel.
const ScopeAll = "*"

const channelScopePrefix = "channel:"

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// AllowsChannel reports whether the key may act on carts of channel c.
// Scopes are either "*" or "channel:<name>".
func (i *APIKeyInfo) AllowsChannel(c promotion.Channel) bool {
	for _, scope := range i.Scopes {
		if scope == ScopeAll {
			return true
		}
		if name, ok := strings.CutPrefix(scope, channelScopePrefix); ok && promotion.Channel(name) == c {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

// HashKey returns the hex-encoded HMAC-SHA256 of key under pepper.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator validates raw API keys.
type Authenticator struct {
	keys   Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given key repository
// and HMAC pepper.
func NewAuthenticator(keys Repository, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, pepper: pepper}
}

// Authenticate hashes key, looks it up and compares the stored hash in
// constant time. Every failure is reported as ErrUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*APIKeyInfo, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	info, err := a.keys.FindByHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		return nil, ErrUnauthorized
	}

	// The repository may return a row whose stored hash differs from ours.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}

	return info, nil
}

type ctxKey struct{}

// WithKey returns a copy of ctx carrying info.
func WithKey(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// KeyFrom returns the API key stored by WithKey, or nil.
func KeyFrom(ctx context.Context) *APIKeyInfo {
	info, _ := ctx.Value(ctxKey{}).(*APIKeyInfo)
	return info
}
