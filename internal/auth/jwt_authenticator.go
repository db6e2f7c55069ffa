package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// JWTAuthenticator accepts RS256 tokens issued by the wallet gateway. The caller address is read
// from a configurable claim.
type JWTAuthenticator struct {
	keyFn      func(t *jwt.Token) (any, error)
	partyClaim string
}

func NewJWTAuthenticatorWithKeyFn(keyFn func(t *jwt.Token) (any, error), partyClaim string) (*JWTAuthenticator, error) {
	return &JWTAuthenticator{keyFn: keyFn, partyClaim: partyClaim}, nil
}

func NewJWTAuthenticator(ctx context.Context, jwkCertUrl, partyClaim string) (*JWTAuthenticator, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwkCertUrl})
	if err != nil {
		return nil, fmt.Errorf("failed to get gateway public keys: %w", err)
	}

	return &JWTAuthenticator{keyFn: k.Keyfunc, partyClaim: partyClaim}, nil
}

func (j *JWTAuthenticator) Authenticate(token string) (Party, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}), jwt.WithIssuedAt(), jwt.WithExpirationRequired())
	t, err := parser.Parse(token, j.keyFn)
	if err != nil {
		zap.S().Named("auth").Debugw("failed to parse or the token is invalid", "error", err)
		return Party{}, fmt.Errorf("failed to authenticate token: %w", err)
	}

	if !t.Valid {
		return Party{}, errors.New("failed to parse or validate token")
	}

	return j.parseToken(t)
}

func (j *JWTAuthenticator) parseToken(token *jwt.Token) (Party, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Party{}, errors.New("failed to parse jwt token claims")
	}

	address, ok := claims[j.partyClaim].(string)
	if !ok {
		return Party{}, fmt.Errorf("claim %q is missing", j.partyClaim)
	}
	if !validParty(address) {
		return Party{}, fmt.Errorf("claim %q is not a wallet address", j.partyClaim)
	}

	return Party{Address: address, Token: token}, nil
}

func (j *JWTAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || accessToken == "" {
			http.Error(w, "No token provided", http.StatusUnauthorized)
			return
		}

		party, err := j.Authenticate(accessToken)
		if err != nil {
			http.Error(w, "authentication failed", http.StatusUnauthorized)
			return
		}

		serveAs(w, r, next, party)
	})
}
