package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/spec-kit/gift-exchange/internal/domain"
)

const (
	sealerIssuer   = "gift-exchange-web"
	sealerVersion  = "gift-session-v1"
	signingKeyInfo = "gift-session signing key"
	sealingKeyInfo = "gift-session encryption key"
)

// ErrInvalidSessionToken is returned when a sealed session token cannot be opened.
var ErrInvalidSessionToken = errors.New("invalid session token")

// SessionClaims is the signed payload inside a sealed session token.
type SessionClaims struct {
	Record domain.TokenRecord `json:"rec"`
	jwt.RegisteredClaims
}

// TokenSealer signs a Token Record as a JWT and encrypts the result, producing
// the opaque value stored in the session cookie.
type TokenSealer struct {
	signingKey []byte
	aead       cipher.AEAD
	maxAge     time.Duration
	now        func() time.Time
}

// NewTokenSealer derives independent signing and encryption keys from secret.
func NewTokenSealer(secret string, maxAge time.Duration) (*TokenSealer, error) {
	if secret == "" {
		return nil, errors.New("session secret is empty")
	}
	if maxAge <= 0 {
		maxAge = 30 * 24 * time.Hour
	}

	signingKey, err := deriveKey(secret, signingKeyInfo, 32)
	if err != nil {
		return nil, err
	}
	sealingKey, err := deriveKey(secret, sealingKeyInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(sealingKey)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}

	return &TokenSealer{signingKey: signingKey, aead: aead, maxAge: maxAge, now: time.Now}, nil
}

// MaxAge is the lifetime of a sealed token.
func (s *TokenSealer) MaxAge() time.Duration {
	return s.maxAge
}

// Seal signs and encrypts the record.
func (s *TokenSealer) Seal(rec domain.TokenRecord) (string, error) {
	now := s.now()
	claims := &SessionClaims{
		Record: rec,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        rec.SessionID,
			Subject:   rec.Identity.ID,
			Issuer:    sealerIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.maxAge)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(signed)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("session token nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(signed), []byte(sealerVersion))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open decrypts and verifies a sealed token and returns its record.
func (s *TokenSealer) Open(token string) (domain.TokenRecord, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if len(raw) < s.aead.NonceSize()+s.aead.Overhead() {
		return domain.TokenRecord{}, fmt.Errorf("%w: too short", ErrInvalidSessionToken)
	}

	nonce, ciphertext := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	signed, err := s.aead.Open(nil, nonce, ciphertext, []byte(sealerVersion))
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	parsed, err := jwt.ParseWithClaims(string(signed), &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sealerIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok || !parsed.Valid || claims.Record.SessionID == "" {
		return domain.TokenRecord{}, fmt.Errorf("%w: invalid claims", ErrInvalidSessionToken)
	}
	return claims.Record, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("derive %s: %w", info, err)
	}
	return key, nil
}
