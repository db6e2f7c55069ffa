package auth

import (
	"net/http"
)

// PartyHeader carries the caller address when authentication is disabled.
const PartyHeader = "X-Party"

type NoneAuthenticator struct{}

func NewNoneAuthenticator() (*NoneAuthenticator, error) {
	return &NoneAuthenticator{}, nil
}

func (n *NoneAuthenticator) Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.Header.Get(PartyHeader)
		if !validParty(address) {
			http.Error(w, "missing or malformed "+PartyHeader+" header", http.StatusUnauthorized)
			return
		}

		serveAs(w, r, next, Party{Address: address})
	})
}
