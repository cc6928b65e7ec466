package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fridgechef/api/internal/config"
)

var ErrInvalidAudience = errors.New("token audience does not match")

// TokenVerifier validates bearer tokens issued by the identity provider.
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
	Close() error
}

// Claims are the OIDC claims a Zitadel access token carries.
type Claims struct {
	UserID            string   `json:"sub"`
	Email             string   `json:"email,omitempty"`
	EmailVerified     bool     `json:"email_verified,omitempty"`
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWKSVerifier checks signatures against the issuer's published key set.
type JWKSVerifier struct {
	jwks     keyfunc.Keyfunc
	cancel   context.CancelFunc
	issuer   string
	audience string
}

// NewJWKSVerifier discovers the issuer's JWKS endpoint and starts refreshing
// its keys in the background until Close.
func NewJWKSVerifier(ctx context.Context, cfg config.ZitadelConfig) (*JWKSVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("zitadel issuer is required")
	}

	discoverCtx, cancelDiscover := context.WithTimeout(ctx, 30*time.Second)
	defer cancelDiscover()

	jwksURL, err := DiscoverJWKSURL(discoverCtx, resty.New(), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover JWKS URL: %w", err)
	}

	refreshCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	jwks, err := keyfunc.NewDefaultCtx(refreshCtx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS keyfunc: %w", err)
	}

	return &JWKSVerifier{
		jwks:     jwks,
		cancel:   cancel,
		issuer:   cfg.Issuer,
		audience: cfg.ClientID,
	}, nil
}

// DiscoverJWKSURL reads jwks_uri from the issuer's OIDC discovery document.
func DiscoverJWKSURL(ctx context.Context, rc *resty.Client, issuer string) (string, error) {
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	resp, err := rc.R().
		SetContext(ctx).
		SetResult(&doc).
		Get(strings.TrimRight(issuer, "/") + "/.well-known/openid-configuration")
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode())
	}
	if doc.JWKSURI == "" {
		return "", errors.New("jwks_uri not found in discovery document")
	}
	return doc.JWKSURI, nil
}

func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.jwks.Keyfunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if v.audience != "" {
		aud, err := claims.GetAudience()
		if err != nil {
			return nil, fmt.Errorf("failed to get audience: %w", err)
		}
		if !slices.Contains(aud, v.audience) {
			return nil, ErrInvalidAudience
		}
	}
	return claims, nil
}

// Close stops the background key refresh.
func (v *JWKSVerifier) Close() error {
	v.cancel()
	return nil
}
