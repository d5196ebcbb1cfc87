package middleware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ruralpay/ledger/internal/config"
	"github.com/ruralpay/ledger/internal/services"
)

// Authenticator resolves the tenant of a request from its bearer token.
// Tokens are HS256 JWTs carrying the tenant ID in a configurable claim.
type Authenticator struct {
	secret      []byte
	tenantClaim string
	redis       *redis.Client
}

// NewAuthenticator builds the middleware. redisClient may be nil; when set,
// tokens listed under blacklist:<token> are refused.
func NewAuthenticator(cfg config.JWTConfig, redisClient *redis.Client) *Authenticator {
	claim := cfg.TenantClaim
	if claim == "" {
		claim = "tenant_id"
	}
	return &Authenticator{
		secret:      []byte(cfg.SecretKey),
		tenantClaim: claim,
		redis:       redisClient,
	}
}

func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			services.SendErrorResponse(w, "Authorization header required", http.StatusUnauthorized, nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			services.SendErrorResponse(w, "Invalid authorization header format", http.StatusUnauthorized, nil)
			return
		}

		token := parts[1]
		if a.isBlacklisted(r.Context(), token) {
			services.SendErrorResponse(w, "Token has been revoked", http.StatusUnauthorized, nil)
			return
		}

		caller, err := a.validateToken(token)
		if err != nil {
			log.Printf("[AUTH] rejected token: %v", err)
			services.SendErrorResponse(w, "Invalid token", http.StatusUnauthorized, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(services.WithCaller(r.Context(), caller)))
	})
}

func (a *Authenticator) isBlacklisted(ctx context.Context, token string) bool {
	if a.redis == nil {
		return false
	}
	n, err := a.redis.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		// revocation is best effort; signature and expiry still apply
		log.Printf("[AUTH] blacklist lookup failed: %v", err)
		return false
	}
	return n > 0
}

func (a *Authenticator) validateToken(tokenString string) (services.Caller, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return services.Caller{}, err
	}
	if !token.Valid {
		return services.Caller{}, errors.New("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return services.Caller{}, errors.New("unexpected claims type")
	}

	tenantID, _ := claims[a.tenantClaim].(string)
	if tenantID == "" {
		return services.Caller{}, fmt.Errorf("claim %q missing", a.tenantClaim)
	}
	subject, _ := claims.GetSubject()
	return services.Caller{TenantID: tenantID, Subject: subject}, nil
}
