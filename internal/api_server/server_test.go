package apiserver_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	apiserver "github.com/taskbridge/marketplace/internal/api_server"
	"github.com/taskbridge/marketplace/internal/auth"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/events"
	handlers "github.com/taskbridge/marketplace/internal/handlers/v1alpha1"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/pkg/metrics"
	"github.com/taskbridge/marketplace/pkg/requestid"
)

var _ = Describe("servers", Ordered, func() {
	var (
		s        store.Store
		producer *events.EventProducer
		cancel   context.CancelFunc
		apiAddr  string
		metAddr  string
	)

	BeforeAll(func() {
		cfg := config.NewTestConfig("api-server")
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(BeNil())

		producer = events.NewEventProducer(&events.StdoutWriter{})
		h := handlers.NewServiceHandler(
			service.NewTaskService(s, producer),
			service.NewOfferService(s, ledger.NewMemoryLedger(), producer, cfg),
			service.NewHealthService(s),
		)

		apiListener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		metricsListener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		apiAddr = "http://" + apiListener.Addr().String()
		metAddr = "http://" + metricsListener.Addr().String()

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())

		go func() {
			defer GinkgoRecover()
			Expect(apiserver.New(cfg, h, apiListener).Run(ctx)).To(Succeed())
		}()
		go func() {
			defer GinkgoRecover()
			Expect(apiserver.NewMetricServer(metricsListener.Addr().String(), metricsListener, metrics.NewStoreStatsCollector(s)).Run(ctx)).To(Succeed())
		}()
	})

	AfterAll(func() {
		cancel()
		time.Sleep(50 * time.Millisecond)
		_ = producer.Close()
		s.Close()
	})

	get := func(url string, header ...string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, url, nil)
		Expect(err).To(BeNil())
		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}

		var resp *http.Response
		Eventually(func() error {
			resp, err = http.DefaultClient.Do(req)
			return err
		}).WithTimeout(2 * time.Second).Should(Succeed())
		return resp
	}

	It("serves the health probe without identity", func() {
		resp := get(apiAddr + "/health")
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("application/json"))
		Expect(resp.Header.Get(requestid.Header)).NotTo(BeEmpty())
	})

	It("echoes the caller request id", func() {
		resp := get(apiAddr+"/health", requestid.Header, "trace-me")
		defer resp.Body.Close()
		Expect(resp.Header.Get(requestid.Header)).To(Equal("trace-me"))
	})

	It("guards the api", func() {
		resp := get(apiAddr + "/api/v1/tasks")
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))

		resp = get(apiAddr+"/api/v1/tasks", auth.PartyHeader, "0x1111111111111111111111111111111111111111")
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
	})

	It("exposes the metrics", func() {
		resp := get(metAddr + "/metrics")
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		body, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		Expect(string(body)).To(ContainSubstring("marketplace_http_requests_total"))
		Expect(string(body)).To(ContainSubstring("marketplace_store_jobs"))
	})
})
