package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type partyKeyType struct{}

var (
	partyKey partyKeyType
)

// Party is the wallet address acting on the marketplace, as employer or worker.
type Party struct {
	Address string
	Token   *jwt.Token
}

func PartyFromContext(ctx context.Context) (Party, bool) {
	val := ctx.Value(partyKey)
	if val == nil {
		return Party{}, false
	}
	return val.(Party), true
}

func NewPartyContext(ctx context.Context, p Party) context.Context {
	// addresses are compared as strings everywhere
	p.Address = strings.ToLower(p.Address)
	return context.WithValue(ctx, partyKey, p)
}
