package auth_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/taskbridge/marketplace/internal/auth"
	"github.com/taskbridge/marketplace/pkg/metrics"
)

const wallet = "0xAbCdEf0123456789abcdef0123456789ABCDEF01"

var _ = Describe("none authentication", func() {
	It("takes the party from the header", func() {
		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		h := &handler{}
		ts := httptest.NewServer(authenticator.Authenticator(h))
		defer ts.Close()

		req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
		Expect(err).To(BeNil())
		req.Header.Add(auth.PartyHeader, wallet)

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(200))
		Expect(h.party.Address).To(Equal("0xabcdef0123456789abcdef0123456789abcdef01"))
	})

	It("refuses a malformed address", func() {
		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		ts := httptest.NewServer(authenticator.Authenticator(&handler{}))
		defer ts.Close()

		for _, address := range []string{"", "batman", "0x1234"} {
			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add(auth.PartyHeader, address)

			resp, err := http.DefaultClient.Do(req)
			Expect(err).To(BeNil())
			Expect(resp.StatusCode).To(Equal(401))
		}
	})

	It("counts distinct parties", func() {
		metrics.UniquePartiesPerWeek.Reset()
		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		ts := httptest.NewServer(authenticator.Authenticator(&handler{}))
		defer ts.Close()

		for _, address := range []string{wallet, wallet, "0x1111111111111111111111111111111111111111"} {
			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add(auth.PartyHeader, address)
			_, err = http.DefaultClient.Do(req)
			Expect(err).To(BeNil())
		}

		Expect(metrics.UniquePartiesPerWeek.Count()).To(Equal(2))
	})
})

var _ = Describe("jwt authentication", func() {
	Context("token", func() {
		It("successfully validates the token", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"wallet": wallet})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "wallet")
			Expect(err).To(BeNil())

			party, err := authenticator.Authenticate(sToken)
			Expect(err).To(BeNil())
			Expect(party.Address).To(Equal(wallet))
			Expect(party.Token).ToNot(BeNil())
		})

		It("fails when the party claim is missing", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"sub": wallet})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "wallet")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails when the party claim is not an address", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"sub": "batman"})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "sub")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails with the wrong signing method", func() {
			sToken, keyFn := generateTokenWrongSigningMethod()
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "sub")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})

		It("fails on an expired token", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{
				"sub": wallet,
				"exp": time.Now().Add(-time.Hour).Unix(),
			})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "sub")
			Expect(err).To(BeNil())

			_, err = authenticator.Authenticate(sToken)
			Expect(err).ToNot(BeNil())
		})
	})

	Context("middleware", func() {
		It("successfully authenticates", func() {
			sToken, keyFn := generateToken(jwt.MapClaims{"sub": wallet})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "sub")
			Expect(err).To(BeNil())

			h := &handler{}
			ts := httptest.NewServer(authenticator.Authenticator(h))
			defer ts.Close()

			req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
			Expect(err).To(BeNil())
			req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", sToken))

			resp, rerr := http.DefaultClient.Do(req)
			Expect(rerr).To(BeNil())
			Expect(resp.StatusCode).To(Equal(200))
			Expect(h.party.Token).ToNot(BeNil())
		})

		It("fails without a token", func() {
			_, keyFn := generateToken(jwt.MapClaims{"sub": wallet})
			authenticator, err := auth.NewJWTAuthenticatorWithKeyFn(keyFn, "sub")
			Expect(err).To(BeNil())

			ts := httptest.NewServer(authenticator.Authenticator(&handler{}))
			defer ts.Close()

			resp, rerr := http.Get(ts.URL)
			Expect(rerr).To(BeNil())
			Expect(resp.StatusCode).To(Equal(401))
		})
	})
})

type handler struct {
	party auth.Party
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.party, _ = auth.PartyFromContext(r.Context())
	w.WriteHeader(200)
}

func generateToken(claims jwt.MapClaims) (string, func(t *jwt.Token) (any, error)) {
	if _, found := claims["exp"]; !found {
		claims["exp"] = time.Now().Add(24 * time.Hour).Unix()
	}
	claims["iat"] = time.Now().Unix()
	claims["iss"] = "wallet-gateway"

	// generate a pair of keys RSA
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}

func generateTokenWrongSigningMethod() (string, func(t *jwt.Token) (any, error)) {
	claims := jwt.MapClaims{
		"sub": wallet,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	Expect(err).To(BeNil())

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	ss, err := token.SignedString(privateKey)
	Expect(err).To(BeNil())

	return ss, func(t *jwt.Token) (any, error) {
		return privateKey.Public(), nil
	}
}
