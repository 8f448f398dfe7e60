package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Context keys for storing authenticated user information.
type contextKey string

const (
	contextKeyClaims contextKey = "jwt_claims"
	contextKeyWallet contextKey = "wallet"
)

// Options controls token verification.
type Options struct {
	Secret         string
	Issuer         string
	Audience       string
	MaxSkewSeconds int
}

// Claims represents identity data extracted from the inbound request.
type Claims struct {
	Wallet string
	Token  *jwt.Token
}

// Middleware verifies HS256 bearer tokens and stores the caller wallet on the
// request context. The token subject is the bech32 wallet address.
type Middleware struct {
	opts Options
}

func NewMiddleware(opts Options) (*Middleware, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if opts.MaxSkewSeconds <= 0 {
		opts.MaxSkewSeconds = 30
	}
	return &Middleware{opts: opts}, nil
}

// Handler wraps next with bearer token verification.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := m.verify(raw)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyClaims, claims)
		ctx = context.WithValue(ctx, contextKeyWallet, claims.Wallet)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) verify(raw string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(time.Duration(m.opts.MaxSkewSeconds) * time.Second),
	}
	if m.opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(m.opts.Issuer))
	}
	if m.opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(m.opts.Audience))
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.opts.Secret), nil
	}, parserOpts...)
	if err != nil {
		return nil, err
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: malformed claims")
	}
	subject, err := mapClaims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, errors.New("auth: token subject missing")
	}
	return &Claims{Wallet: strings.ToLower(strings.TrimSpace(subject)), Token: token}, nil
}

// WalletFromContext returns the authenticated wallet, if any.
func WalletFromContext(ctx context.Context) (string, bool) {
	wallet, ok := ctx.Value(contextKeyWallet).(string)
	return wallet, ok && wallet != ""
}

// ClaimsFromContext returns the full claims stored by the middleware.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(*Claims)
	return claims, ok
}

// IssueToken mints a signed token for a wallet. Exposed for tests and local
// tooling; production tokens come from the identity provider.
func IssueToken(opts Options, wallet string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return "", errors.New("auth: signing secret is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": strings.ToLower(strings.TrimSpace(wallet)),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if opts.Issuer != "" {
		claims["iss"] = opts.Issuer
	}
	if opts.Audience != "" {
		claims["aud"] = opts.Audience
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(opts.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
