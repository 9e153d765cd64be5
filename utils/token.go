package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A token verifies only under the purpose it was issued for.
const (
	PurposeConfirm     = "confirm"
	PurposeReset       = "reset"
	PurposeChangeEmail = "change_email"
	PurposeAPI         = "api"
	PurposeSession     = "session"
)

// ErrInvalidToken covers bad signatures, expiry, malformed input and purpose or subject mismatch.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the signed body of every token.
type Claims struct {
	Purpose string            `json:"purpose"`
	Payload map[string]string `json:"payload,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies purpose-bound HS256 tokens. It holds no state besides the key.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy that reads time from now.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	return &TokenService{secret: s.secret, now: now}
}

// Issue signs a token for subject valid for ttl.
func (s *TokenService) Issue(subject uint, purpose string, payload map[string]string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		Purpose: purpose,
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(subject), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Parse checks signature, expiry and purpose and returns the claims.
func (s *TokenService) Parse(tokenStr, purpose string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify is Parse reduced to the subject and payload.
func (s *TokenService) Verify(tokenStr, purpose string) (uint, map[string]string, error) {
	claims, err := s.Parse(tokenStr, purpose)
	if err != nil {
		return 0, nil, err
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, nil, ErrInvalidToken
	}
	return uint(id), claims.Payload, nil
}

// VerifyFor is Verify plus a check that the token belongs to userID.
func (s *TokenService) VerifyFor(tokenStr, purpose string, userID uint) (map[string]string, error) {
	subject, payload, err := s.Verify(tokenStr, purpose)
	if err != nil {
		return nil, err
	}
	if subject != userID {
		return nil, ErrInvalidToken
	}
	return payload, nil
}
