package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type tokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func (t *tokenIssuer) issue(account *Account) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Email: account.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *tokenIssuer) parse(tokenString string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	return claims, nil
}

// revocationList remembers logged-out tokens until their expiry.
type revocationList struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

func newRevocationList() *revocationList {
	return &revocationList{tokens: make(map[string]time.Time)}
}

func (r *revocationList) add(token string, expiresAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for t, exp := range r.tokens {
		if now.After(exp) {
			delete(r.tokens, t)
		}
	}
	r.tokens[token] = expiresAt
}

func (r *revocationList) contains(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tokens[token]
	return ok
}

const resetCookieName = "password_reset"

type resetClaims struct {
	AccountID string
	Stamp     string
}

type resetCodec struct {
	codec *securecookie.SecureCookie
}

func newResetCodec(secret []byte, ttl time.Duration) *resetCodec {
	codec := securecookie.New(secret, nil)
	codec.MaxAge(int(ttl.Seconds()))
	return &resetCodec{codec: codec}
}

func (r *resetCodec) encode(account *Account) (string, error) {
	return r.codec.Encode(resetCookieName, resetClaims{
		AccountID: account.ID,
		Stamp:     passwordStamp(account.PasswordHash),
	})
}

func (r *resetCodec) decode(token string) (*resetClaims, error) {
	var claims resetClaims
	if err := r.codec.Decode(resetCookieName, token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// passwordStamp fingerprints the current hash so reset tokens are single use.
func passwordStamp(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
