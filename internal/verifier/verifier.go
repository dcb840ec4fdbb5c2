// internal/verifier/verifier.go
package verifier

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"accessgate-service/internal/domain/identity"
	xerrors "accessgate-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Strategy is the credential-verification contract consumed by the
// gateway. There is exactly one production implementation: Service.
type Strategy interface {
	Verify(ctx context.Context, token string) (*identity.VerificationResult, error)
	Forget(token string)
}

type Config struct {
	JWKSURL          string
	IntrospectionURL string
	Issuer           string
	Audience         string
	AuthorityTimeout time.Duration
	JWKSRefreshTTL   time.Duration
	ClockSkew        time.Duration
	CacheSize        int
	CacheTTL         time.Duration
}

// Service verifies bearer tokens. Asymmetric tokens are checked locally
// against the authority's published key set; symmetric (legacy) tokens
// and local-verification failures fall back to the authority's
// introspection endpoint. Successful results are cached by raw token.
type Service struct {
	keys      *Keyset
	authority *AuthorityClient
	cache     *resultCache
	issuer    string
	audience  string
	skew      time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

var _ Strategy = (*Service)(nil)

func NewService(cfg Config, logger *zap.Logger) *Service {
	return &Service{
		keys:      NewKeyset(cfg.JWKSURL, http.DefaultClient, cfg.JWKSRefreshTTL),
		authority: NewAuthorityClient(cfg.IntrospectionURL, cfg.AuthorityTimeout),
		cache:     newResultCache(cfg.CacheSize, cfg.CacheTTL),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		skew:      cfg.ClockSkew,
		logger:    logger.Named("verifier"),
		now:       time.Now,
	}
}

// Verify validates a signed bearer token and extracts identity claims.
// Every failure mode maps to the same ErrUnauthenticated outward; the
// internal distinction only reaches the log.
func (s *Service) Verify(ctx context.Context, token string) (*identity.VerificationResult, error) {
	if token == "" {
		return &identity.VerificationResult{Valid: false}, xerrors.ErrUnauthenticated
	}

	now := s.now()
	if claims, _, ok := s.cache.get(token, now); ok {
		return &identity.VerificationResult{Valid: true, Claims: claims, Source: identity.SourceCache}, nil
	}

	alg, err := peekAlg(token)
	if err != nil {
		s.logger.Debug("malformed token structure", zap.Error(err))
		return &identity.VerificationResult{Valid: false}, xerrors.ErrUnauthenticated
	}

	if isAsymmetric(alg) {
		claims, err := s.verifyLocal(ctx, token)
		if err == nil {
			s.cache.put(token, claims, identity.SourceLocalVerification, now)
			return &identity.VerificationResult{Valid: true, Claims: claims, Source: identity.SourceLocalVerification}, nil
		}
		s.logger.Debug("local verification failed, trying authority fallback", zap.Error(err))
	}

	claims, err := s.authority.Introspect(ctx, token)
	if err != nil {
		s.logger.Debug("authority fallback failed", zap.String("alg", alg), zap.Error(err))
		return &identity.VerificationResult{Valid: false}, xerrors.ErrUnauthenticated
	}

	s.cache.put(token, claims, identity.SourceAuthorityFallback, now)
	return &identity.VerificationResult{Valid: true, Claims: claims, Source: identity.SourceAuthorityFallback}, nil
}

// Forget drops a token's cached verification, e.g. on sign-out.
func (s *Service) Forget(token string) {
	s.cache.forget(token)
}

// CachedResults reports the current size of the result cache.
func (s *Service) CachedResults() int {
	return s.cache.len()
}

// Run sweeps expired cache entries on the given interval until the
// context is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.cache.sweep(s.now()); removed > 0 {
				s.logger.Debug("swept expired token results", zap.Int("removed", removed))
			}
		}
	}
}

// verifyLocal checks the token signature against the published key set.
func (s *Service) verifyLocal(ctx context.Context, tokenString string) (*identity.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return s.keys.Key(ctx, kid)
	}, jwt.WithLeeway(s.skew), jwt.WithExpirationRequired())

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("invalid issuer: expected %s, got %s", s.issuer, claims.Issuer)
	}
	if s.audience != "" && !claims.hasAudience(s.audience) {
		return nil, fmt.Errorf("invalid audience")
	}

	return claims.toIdentity(), nil
}

// peekAlg reads the signing algorithm from the token header without
// verifying anything.
func peekAlg(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("token does not have three segments")
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("failed to decode token header: %w", err)
	}

	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return "", fmt.Errorf("failed to parse token header: %w", err)
	}
	if header.Alg == "" {
		return "", fmt.Errorf("token header has no alg")
	}

	return header.Alg, nil
}

func isAsymmetric(alg string) bool {
	return strings.HasPrefix(alg, "RS") || strings.HasPrefix(alg, "PS") || strings.HasPrefix(alg, "ES")
}
