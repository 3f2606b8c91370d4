package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/repository"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectType domain.SubjectType
	User        *domain.User
	Staff       *domain.StaffMember
	Role        *domain.StaffRole
	// Feed is the change feed the session was issued for.
	Feed string
}

// SubjectID returns the id of whoever the principal represents.
func (p *Principal) SubjectID() string {
	switch {
	case p == nil:
		return ""
	case p.User != nil:
		return p.User.ID
	case p.Staff != nil:
		return p.Staff.ID
	}
	return ""
}

// CanWatch reports whether the caller may join the change feed topic.
// Staff may watch any thread; a customer only the feed in their token.
func (p *Principal) CanWatch(topic string) bool {
	if p.IsStaff() {
		return true
	}
	return p != nil && p.Feed != "" && topic == p.Feed
}

// IsStaff reports whether the caller is an agent or admin.
func (p *Principal) IsStaff() bool {
	return p != nil && p.SubjectType == domain.SubjectTypeStaff && p.Staff != nil
}

// AuthMiddleware validates bearer tokens and loads principals.
type AuthMiddleware struct {
	tokens *TokenManager
	users  repository.UserRepository
	staff  repository.StaffRepository
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users repository.UserRepository, staff repository.StaffRepository) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, users: users, staff: staff}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := BearerToken(c.Get("Authorization"))
	if err != nil {
		return err
	}
	principal, err := m.Resolve(c.UserContext(), token)
	if err != nil {
		return err
	}
	c.Locals(principalKey, principal)
	return c.Next()
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewAuthRequired("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", apperrors.NewAuthRequired("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// Resolve validates token and loads the account behind it. Suspended
// customers and inactive staff are rejected.
func (m *AuthMiddleware) Resolve(ctx context.Context, token string) (*Principal, error) {
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewAuthRequired("invalid token")
	}

	principal := &Principal{SubjectType: claims.Subject, Role: claims.Role, Feed: claims.Feed}

	switch claims.Subject {
	case domain.SubjectTypeUser:
		user, err := m.users.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewAuthRequired("user not found")
			}
			return nil, apperrors.MapError(err)
		}
		if user.Status != domain.UserStatusActive {
			return nil, apperrors.NewAuthRequired("account suspended")
		}
		principal.User = user
	case domain.SubjectTypeStaff:
		staff, err := m.staff.GetByID(ctx, claims.SubjectID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewAuthRequired("staff not found")
			}
			return nil, apperrors.MapError(err)
		}
		if !staff.Active {
			return nil, apperrors.NewAuthRequired("staff account inactive")
		}
		principal.Staff = staff
		principal.Role = &staff.Role
	default:
		return nil, apperrors.NewAuthRequired("unknown subject")
	}
	return principal, nil
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
