package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"toolcatalog/internal/auth"
	"toolcatalog/internal/rbac"
)

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Role(role), action)
}

// SessionFromToken parses a bearer token. With auth disabled every caller is
// an admin.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if s.cfg.AuthDisabled {
		return Session{Subject: "anonymous", Role: string(rbac.RoleAdmin)}, nil
	}
	if token == "" {
		return Session{}, auth.ErrInvalidToken
	}
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	if !rbac.Valid(claims.Role) {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Subject:   claims.Sub,
		Role:      claims.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

type IssuedToken struct {
	Token     string `json:"token"`
	Subject   string `json:"subject"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"expiresAt"`
}

// IssueToken mints an API token for subject once adminKey matches the
// configured bcrypt hash.
func (s *Service) IssueToken(ctx context.Context, adminKey, subject, role string) (IssuedToken, error) {
	if err := auth.VerifyAdminKey(s.cfg.AdminKeyHash, adminKey); err != nil {
		return IssuedToken{}, domainError(http.StatusForbidden, "FORBIDDEN", "Invalid admin key", nil)
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return IssuedToken{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "subject is required", map[string]string{"field": "subject"})
	}
	if role == "" {
		role = string(rbac.RoleViewer)
	}
	if !rbac.Valid(role) {
		return IssuedToken{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "role must be viewer, editor or admin", map[string]string{"field": "role"})
	}

	ttl := s.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := auth.NewClaims(subject, role, ttl)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), claims)
	if err != nil {
		return IssuedToken{}, err
	}
	s.logf("issued %s token %s for %s", role, claims.JTI, subject)
	return IssuedToken{Token: token, Subject: subject, Role: role, ExpiresAt: claims.Exp}, nil
}
