package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/ledgerline/banking-support/internal/domain"
)

// SessionIssuer is stamped into every session token and required on parse.
const SessionIssuer = "banking-support"

var (
	ErrSigningMethod = errors.New("unexpected signing method")
	ErrSessionClaims = errors.New("invalid session claims")
)

// TokenManager issues and verifies session tokens. A session token binds
// the subject to the realtime feed it may watch.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute, now: time.Now}
}

// Claims is the session token payload.
type Claims struct {
	SubjectID string             `json:"sub"`
	Subject   domain.SubjectType `json:"subject"`
	Role      *domain.StaffRole  `json:"role,omitempty"`
	Feed      string             `json:"feed"`
	jwt.RegisteredClaims
}

// FeedFor returns the change feed a subject's session is scoped to.
func FeedFor(subjectID string, subject domain.SubjectType) string {
	if subject == domain.SubjectTypeStaff {
		return domain.AllThreadsFeed
	}
	return domain.ThreadFeed(subjectID)
}

// GenerateToken signs a session for the subject, scoped to its feed.
func (tm *TokenManager) GenerateToken(subjectID string, subject domain.SubjectType, role *domain.StaffRole) (string, time.Time, error) {
	if subjectID == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrSessionClaims)
	}
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(tm.ttl)
	claims := &Claims{
		SubjectID: subjectID,
		Subject:   subject,
		Role:      role,
		Feed:      FeedFor(subjectID, subject),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    SessionIssuer,
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies a session token. A token whose feed does not match
// its subject is rejected even when the signature is good.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrSigningMethod
		}
		return tm.secret, nil
	}, jwt.WithTimeFunc(tm.now), jwt.WithIssuer(SessionIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.SubjectID == "" || claims.Feed != FeedFor(claims.SubjectID, claims.Subject) {
		return nil, ErrSessionClaims
	}
	return claims, nil
}
