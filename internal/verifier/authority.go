// internal/verifier/authority.go
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"accessgate-service/internal/domain/identity"
	xerrors "accessgate-service/internal/pkg/errors"
)

// AuthorityClient verifies a token by calling the issuing authority's
// introspection endpoint directly. This is strictly the fallback path:
// it costs a network round trip per call.
type AuthorityClient struct {
	url        string
	httpClient *http.Client
}

func NewAuthorityClient(introspectionURL string, timeout time.Duration) *AuthorityClient {
	return &AuthorityClient{
		url:        introspectionURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// introspectionResponse is the authority's answer for a presented token.
type introspectionResponse struct {
	ActiveToken bool           `json:"active"`
	Subject     string         `json:"sub"`
	Role        string         `json:"role"`
	TenantID    string         `json:"tenant_id,omitempty"`
	Active      bool           `json:"subject_active"`
	EndUser     *endUserClaims `json:"end_user,omitempty"`
	IssuedAt    int64          `json:"iat"`
	ExpiresAt   int64          `json:"exp"`
}

// Introspect submits the token to the authority and maps the answer
// into identity claims. An inactive or unknown token is reported as
// ErrUnauthenticated, same as any transport failure.
func (a *AuthorityClient) Introspect(ctx context.Context, token string) (*identity.Claims, error) {
	form := url.Values{}
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("introspection call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("introspection returned status %d: %w", resp.StatusCode, xerrors.ErrUnauthenticated)
	}

	var payload introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w", err)
	}

	if !payload.ActiveToken || payload.Subject == "" {
		return nil, xerrors.ErrUnauthenticated
	}

	role, _ := identity.ParseRole(payload.Role)
	claims := &identity.Claims{
		SubjectID: payload.Subject,
		Role:      role,
		TenantID:  payload.TenantID,
		Active:    payload.Active,
		IssuedAt:  time.Unix(payload.IssuedAt, 0),
		ExpiresAt: time.Unix(payload.ExpiresAt, 0),
	}
	if payload.EndUser != nil {
		claims.EndUser = &identity.EndUserAttributes{
			Tier:   payload.EndUser.Tier,
			Level:  payload.EndUser.Level,
			Active: payload.EndUser.Active,
		}
	}

	return claims, nil
}
