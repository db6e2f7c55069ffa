package auth

import (
	"context"
	"net/http"

	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/handlers/validator"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"go.uber.org/zap"
)

type Authenticator interface {
	Authenticator(next http.Handler) http.Handler
}

const (
	JWTAuthentication  string = "jwt"
	NoneAuthentication string = "none"
)

func NewAuthenticator(authConfig config.Auth) (Authenticator, error) {
	zap.S().Named("auth").Infof("authentication: '%s'", authConfig.AuthenticationType)

	switch authConfig.AuthenticationType {
	case JWTAuthentication:
		return NewJWTAuthenticator(context.Background(), authConfig.JwkCertURL, authConfig.PartyClaim)
	default:
		return NewNoneAuthenticator()
	}
}

var partyValidator = newPartyValidator()

func newPartyValidator() *validator.Validator {
	v := validator.NewValidator()
	v.Register(validator.NewPartyValidationRules()...)
	return v
}

// validParty reports whether address is a well formed wallet address.
func validParty(address string) bool {
	return partyValidator.Var(address, "required,party") == nil
}

func serveAs(w http.ResponseWriter, r *http.Request, next http.Handler, party Party) {
	metrics.UniquePartiesPerWeek.Observe(party.Address)
	next.ServeHTTP(w, r.WithContext(NewPartyContext(r.Context(), party)))
}
