package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/taskbridge/marketplace/internal/ledger"
)

type fakeGateway struct {
	lock     sync.Mutex
	keys     []string
	statuses map[string]string
	tokens   map[string]string
	status   int
}

func (f *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lock.Lock()
	defer f.lock.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
		return
	}

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/jobs":
		var p ledger.JobParams
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.keys = append(f.keys, r.Header.Get("Idempotency-Key"))
		f.tokens[p.IdempotencyToken] = "0xabc"
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"tx_id":"0xabc"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/transactions/0xabc":
		_ = json.NewEncoder(w).Encode(map[string]string{"tx_id": "0xabc", "status": f.statuses["0xabc"], "job_address": "0xjob"})
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/config":
		_, _ = w.Write([]byte(`{"fee_bps":75}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/tokens/known":
		_, _ = w.Write([]byte(`{"tx_id":"0xabc"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

var _ = Describe("gateway client", func() {
	var (
		gw     *fakeGateway
		server *httptest.Server
		client *ledger.GatewayClient
	)

	BeforeEach(func() {
		gw = &fakeGateway{statuses: map[string]string{"0xabc": "pending"}, tokens: map[string]string{}}
		server = httptest.NewServer(gw)

		var err error
		client, err = ledger.NewGatewayClient(server.URL+"/api", ledger.WithRateLimit(100, 10))
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		server.Close()
	})

	It("submits a job with the idempotency key header", func() {
		txID, err := client.CreateFundedJob(context.TODO(), weeklyParams("offer-1"))
		Expect(err).To(BeNil())
		Expect(txID).To(Equal("0xabc"))
		Expect(gw.keys).To(Equal([]string{"offer-1"}))
	})

	It("reports pending, confirmed and failed transactions", func() {
		confirmed, _, err := client.Confirm(context.TODO(), "0xabc")
		Expect(err).To(BeNil())
		Expect(confirmed).To(BeFalse())

		gw.statuses["0xabc"] = "confirmed"
		confirmed, address, err := client.Confirm(context.TODO(), "0xabc")
		Expect(err).To(BeNil())
		Expect(confirmed).To(BeTrue())
		Expect(address).To(Equal("0xjob"))

		gw.statuses["0xabc"] = "failed"
		_, _, err = client.Confirm(context.TODO(), "0xabc")
		Expect(err).To(MatchError(ledger.ErrTransactionFailed))
	})

	It("maps client errors to rejections and server errors to unavailability", func() {
		gw.status = http.StatusUnprocessableEntity
		_, err := client.CreateFundedJob(context.TODO(), weeklyParams("offer-2"))
		Expect(err).To(MatchError(ledger.ErrRejected))
		Expect(err.Error()).To(ContainSubstring("boom"))

		gw.status = http.StatusBadGateway
		_, err = client.CreateFundedJob(context.TODO(), weeklyParams("offer-2"))
		Expect(err).To(MatchError(ledger.ErrUnavailable))
	})

	It("reads the fee rate and resolves tokens", func() {
		bps, err := client.FeeBasisPoints(context.TODO())
		Expect(err).To(BeNil())
		Expect(bps).To(Equal(int64(75)))

		txID, found, err := client.LookupToken(context.TODO(), "known")
		Expect(err).To(BeNil())
		Expect(found).To(BeTrue())
		Expect(txID).To(Equal("0xabc"))

		_, found, err = client.LookupToken(context.TODO(), "unknown")
		Expect(err).To(BeNil())
		Expect(found).To(BeFalse())
	})

	It("treats an unreachable gateway as unavailable", func() {
		server.Close()
		_, err := client.CreateFundedJob(context.TODO(), weeklyParams("offer-3"))
		Expect(err).To(MatchError(ledger.ErrUnavailable))
	})

	It("refuses an endpoint without a host", func() {
		_, err := ledger.NewGatewayClient("not a url")
		Expect(err).ToNot(BeNil())
	})
})
