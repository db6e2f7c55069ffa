package v1alpha1_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/taskbridge/marketplace/api/v1alpha1"
	"github.com/taskbridge/marketplace/internal/auth"
	"github.com/taskbridge/marketplace/internal/config"
	"github.com/taskbridge/marketplace/internal/events"
	handlers "github.com/taskbridge/marketplace/internal/handlers/v1alpha1"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/service"
	"github.com/taskbridge/marketplace/internal/store"
	"gorm.io/gorm"
)

var _ = Describe("marketplace handlers", Ordered, func() {
	var (
		s        store.Store
		gormdb   *gorm.DB
		cfg      *config.Config
		memory   *ledger.MemoryLedger
		producer *events.EventProducer
		c        *client
	)

	newClient := func(l *ledger.MemoryLedger) *client {
		memory = l
		producer = events.NewEventProducer(&events.StdoutWriter{})
		h := handlers.NewServiceHandler(
			service.NewTaskService(s, producer),
			service.NewOfferService(s, memory, producer, cfg),
			service.NewHealthService(s),
		)

		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		router := chi.NewRouter()
		h.Routes(router, authenticator.Authenticator)
		return &client{router: router}
	}

	createTask := func(tags ...string) v1alpha1.Task {
		if tags == nil {
			tags = []string{"go"}
		}
		rr := c.do(http.MethodPost, "/api/v1/tasks", worker, v1alpha1.TaskCreate{Name: "Write the importer", Tags: tags})
		expectStatus(rr, http.StatusCreated)
		return decodeAs[v1alpha1.Task](rr)
	}

	createOffer := func(taskID uuid.UUID) v1alpha1.Outcome {
		rr := c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/offers", taskID), employer, v1alpha1.OfferCreate{
			Amount:        "2000000000000000000",
			Mode:          v1alpha1.PaymentModeWeekly,
			DurationWeeks: 4,
		})
		expectStatus(rr, http.StatusCreated)
		return decodeAs[v1alpha1.Outcome](rr)
	}

	offerPath := func(id uuid.UUID, action string) string {
		return fmt.Sprintf("/api/v1/offers/%s/%s", id, action)
	}

	BeforeAll(func() {
		cfg = config.NewTestConfig("handlers")
		db, err := store.InitDB(cfg)
		Expect(err).To(BeNil())
		gormdb = db

		s = store.NewStore(db)
		Expect(s.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		c = newClient(ledger.NewMemoryLedger())
	})

	AfterEach(func() {
		_ = producer.Close()
		gormdb.Exec("DELETE FROM jobs;")
		gormdb.Exec("DELETE FROM conversions;")
		gormdb.Exec("DELETE FROM offers;")
		gormdb.Exec("DELETE FROM tasks;")
	})

	Context("health", func() {
		It("answers without identity", func() {
			expectStatus(c.do(http.MethodGet, "/health", "", nil), http.StatusOK)
		})
	})

	Context("tasks", func() {
		It("rejects anonymous callers", func() {
			expectStatus(c.do(http.MethodGet, "/api/v1/tasks", "", nil), http.StatusUnauthorized)
		})

		It("creates a task owned by the caller", func() {
			rr := c.do(http.MethodPost, "/api/v1/tasks", "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", v1alpha1.TaskCreate{
				Name: "Write the importer",
				Tags: []string{"go", "go"},
			})
			expectStatus(rr, http.StatusCreated)

			task := decodeAs[v1alpha1.Task](rr)
			Expect(task.Worker).To(Equal("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"))
			Expect(task.Status).To(Equal(v1alpha1.TaskStatusOpen))
			Expect(task.Tags).To(Equal([]string{"go"}))
		})

		It("refuses an invalid form", func() {
			expectStatus(c.do(http.MethodPost, "/api/v1/tasks", worker, v1alpha1.TaskCreate{Description: "no name"}), http.StatusBadRequest)
			expectStatus(c.do(http.MethodPost, "/api/v1/tasks", worker, v1alpha1.TaskCreate{Name: "t", Tags: []string{"Go"}}), http.StatusBadRequest)
			expectStatus(c.do(http.MethodPost, "/api/v1/tasks", worker, "{not json"), http.StatusBadRequest)
			expectStatus(c.do(http.MethodPost, "/api/v1/tasks", worker, nil), http.StatusBadRequest)
		})

		It("lists open tasks by tag", func() {
			createTask("go")
			createTask("rust")

			rr := c.do(http.MethodGet, "/api/v1/tasks?tag=rust", stranger, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.TaskList](rr)).To(HaveLen(1))

			rr = c.do(http.MethodGet, "/api/v1/tasks?worker="+worker, stranger, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.TaskList](rr)).To(HaveLen(2))

			expectStatus(c.do(http.MethodGet, "/api/v1/tasks?limit=-1", stranger, nil), http.StatusBadRequest)
		})

		It("gets a task", func() {
			task := createTask()

			rr := c.do(http.MethodGet, "/api/v1/tasks/"+task.Id.String(), stranger, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Task](rr).Id).To(Equal(task.Id))

			expectStatus(c.do(http.MethodGet, "/api/v1/tasks/"+uuid.NewString(), stranger, nil), http.StatusNotFound)
			expectStatus(c.do(http.MethodGet, "/api/v1/tasks/not-a-uuid", stranger, nil), http.StatusBadRequest)
		})

		It("lets only the worker delete a task", func() {
			task := createTask()

			expectStatus(c.do(http.MethodDelete, "/api/v1/tasks/"+task.Id.String(), stranger, nil), http.StatusForbidden)
			expectStatus(c.do(http.MethodDelete, "/api/v1/tasks/"+task.Id.String(), worker, nil), http.StatusNoContent)
			expectStatus(c.do(http.MethodGet, "/api/v1/tasks/"+task.Id.String(), worker, nil), http.StatusNotFound)
		})
	})

	Context("offers", func() {
		It("converts an accepted offer into a funded job", func() {
			c = newClient(ledger.NewMemoryLedger(ledger.WithTxIDGenerator(func() string { return "0xabc" })))
			task := createTask()

			created := createOffer(task.Id)
			Expect(created.Status).To(Equal(v1alpha1.OutcomeStatusCommitted))
			Expect(created.Offer.Status).To(Equal(v1alpha1.OfferStatusPending))
			Expect(created.Offer.LockedValue).To(Equal("8000000000000000000"))
			Expect(created.Offer.Fee).To(Equal("60000000000000000"))
			Expect(created.Offer.FundingValue).To(Equal("8060000000000000000"))

			rr := c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/offers", task.Id), employer, v1alpha1.OfferCreate{
				Amount: "1000", Mode: v1alpha1.PaymentModeOneOff,
			})
			expectStatus(rr, http.StatusConflict)

			rr = c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), worker, nil)
			expectStatus(rr, http.StatusOK)
			accepted := decodeAs[v1alpha1.Outcome](rr)
			Expect(accepted.Status).To(Equal(v1alpha1.OutcomeStatusCommitted))
			Expect(accepted.Offer.Status).To(Equal(v1alpha1.OfferStatusAccepted))
			Expect(accepted.Job).NotTo(BeNil())
			Expect(accepted.Job.TxId).To(Equal("0xabc"))
			Expect(accepted.Job.Worker).To(Equal(worker))
			Expect(accepted.Job.LockedValue).To(Equal("8000000000000000000"))

			rr = c.do(http.MethodGet, "/api/v1/tasks/"+task.Id.String(), worker, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Task](rr).Status).To(Equal(v1alpha1.TaskStatusConverted))

			rr = c.do(http.MethodGet, offerPath(created.Offer.Id, "job"), employer, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Job](rr).TxId).To(Equal("0xabc"))

			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), worker, nil), http.StatusConflict)
		})

		It("refuses an offer on the caller's own task", func() {
			task := createTask()
			rr := c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/offers", task.Id), worker, v1alpha1.OfferCreate{
				Amount: "1000", Mode: v1alpha1.PaymentModeOneOff,
			})
			expectStatus(rr, http.StatusForbidden)
		})

		It("refuses an offer on an unknown task", func() {
			rr := c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/%s/offers", uuid.New()), employer, v1alpha1.OfferCreate{
				Amount: "1000", Mode: v1alpha1.PaymentModeOneOff,
			})
			expectStatus(rr, http.StatusNotFound)
		})

		It("validates the offer form", func() {
			task := createTask()
			path := fmt.Sprintf("/api/v1/tasks/%s/offers", task.Id)

			expectStatus(c.do(http.MethodPost, path, employer, v1alpha1.OfferCreate{Amount: "0", Mode: v1alpha1.PaymentModeOneOff}), http.StatusBadRequest)
			expectStatus(c.do(http.MethodPost, path, employer, v1alpha1.OfferCreate{Amount: "1.5", Mode: v1alpha1.PaymentModeOneOff}), http.StatusBadRequest)
			expectStatus(c.do(http.MethodPost, path, employer, v1alpha1.OfferCreate{Amount: "10", Mode: v1alpha1.PaymentModeWeekly}), http.StatusBadRequest)
		})

		It("only lets the worker accept", func() {
			created := createOffer(createTask().Id)
			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), stranger, nil), http.StatusForbidden)
			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), employer, nil), http.StatusForbidden)
		})

		It("answers 202 while the ledger has not confirmed", func() {
			created := createOffer(createTask().Id)
			memory.Hold(true)

			rr := c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), worker, nil)
			expectStatus(rr, http.StatusAccepted)
			outcome := decodeAs[v1alpha1.Outcome](rr)
			Expect(outcome.Status).To(Equal(v1alpha1.OutcomeStatusPending))
			Expect(outcome.Job).To(BeNil())
		})

		It("answers 422 when the ledger rejects the job", func() {
			created := createOffer(createTask().Id)
			memory.FailNext(ledger.ErrRejected)

			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "accept"), worker, nil), http.StatusUnprocessableEntity)

			rr := c.do(http.MethodGet, "/api/v1/offers/"+created.Offer.Id.String(), worker, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Offer](rr).Status).To(Equal(v1alpha1.OfferStatusPending))
		})

		It("publishes a declined offer once", func() {
			created := createOffer(createTask().Id)

			rr := c.do(http.MethodPost, offerPath(created.Offer.Id, "decline"), worker, nil)
			expectStatus(rr, http.StatusOK)
			declined := decodeAs[v1alpha1.Offer](rr)
			Expect(declined.Status).To(Equal(v1alpha1.OfferStatusDeclined))
			Expect(declined.DeclinedAt).NotTo(BeNil())

			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "publish"), worker, nil), http.StatusForbidden)

			rr = c.do(http.MethodPost, offerPath(created.Offer.Id, "publish"), employer, nil)
			expectStatus(rr, http.StatusOK)
			published := decodeAs[v1alpha1.Outcome](rr)
			Expect(published.Offer.Status).To(Equal(v1alpha1.OfferStatusPublished))
			Expect(published.Job).NotTo(BeNil())
			Expect(published.Job.Public).To(BeTrue())
			Expect(published.Job.Worker).To(BeEmpty())

			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "refund"), employer, nil), http.StatusConflict)
		})

		It("refunds a declined offer", func() {
			created := createOffer(createTask().Id)
			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "decline"), worker, nil), http.StatusOK)

			rr := c.do(http.MethodPost, offerPath(created.Offer.Id, "refund"), employer, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Outcome](rr).Offer.Status).To(Equal(v1alpha1.OfferStatusRefunded))

			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "publish"), employer, nil), http.StatusConflict)
		})

		It("refuses dispositions on a pending offer", func() {
			created := createOffer(createTask().Id)
			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "publish"), employer, nil), http.StatusConflict)
			expectStatus(c.do(http.MethodPost, offerPath(created.Offer.Id, "refund"), employer, nil), http.StatusConflict)
		})

		It("cancels a pending offer", func() {
			task := createTask()
			created := createOffer(task.Id)

			rr := c.do(http.MethodPost, offerPath(created.Offer.Id, "cancel"), employer, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.Outcome](rr).Offer.Status).To(Equal(v1alpha1.OfferStatusCancelled))

			rr = c.do(http.MethodGet, "/api/v1/tasks/"+task.Id.String(), worker, nil)
			Expect(decodeAs[v1alpha1.Task](rr).Status).To(Equal(v1alpha1.TaskStatusOpen))
		})

		It("keeps offers private to their parties", func() {
			created := createOffer(createTask().Id)

			expectStatus(c.do(http.MethodGet, "/api/v1/offers/"+created.Offer.Id.String(), employer, nil), http.StatusOK)
			expectStatus(c.do(http.MethodGet, "/api/v1/offers/"+created.Offer.Id.String(), worker, nil), http.StatusOK)
			expectStatus(c.do(http.MethodGet, "/api/v1/offers/"+created.Offer.Id.String(), stranger, nil), http.StatusForbidden)
			expectStatus(c.do(http.MethodGet, "/api/v1/offers/"+uuid.NewString(), stranger, nil), http.StatusNotFound)
		})

		It("lists the offers of the caller", func() {
			createOffer(createTask().Id)
			createOffer(createTask().Id)

			rr := c.do(http.MethodGet, "/api/v1/offers", employer, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.OfferList](rr)).To(HaveLen(2))

			rr = c.do(http.MethodGet, "/api/v1/offers?status=pending&limit=1", worker, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.OfferList](rr)).To(HaveLen(1))

			rr = c.do(http.MethodGet, "/api/v1/offers", stranger, nil)
			expectStatus(rr, http.StatusOK)
			Expect(decodeAs[v1alpha1.OfferList](rr)).To(BeEmpty())

			expectStatus(c.do(http.MethodGet, "/api/v1/offers?status=LOST", employer, nil), http.StatusBadRequest)
			expectStatus(c.do(http.MethodGet, "/api/v1/offers?task_id=nope", employer, nil), http.StatusBadRequest)
		})
	})

	Context("quotes", func() {
		It("previews the amounts of an offer", func() {
			rr := c.do(http.MethodPost, "/api/v1/quotes", employer, v1alpha1.QuoteRequest{
				Amount: "1000000", Mode: v1alpha1.PaymentModeOneOff,
			})
			expectStatus(rr, http.StatusOK)

			quote := decodeAs[v1alpha1.Quote](rr)
			Expect(quote.LockedValue).To(Equal("1000000"))
			Expect(quote.Fee).To(Equal("7500"))
			Expect(quote.FundingValue).To(Equal("1007500"))
			Expect(quote.FeeBps).To(Equal(int64(75)))
		})

		It("refuses a weekly quote without a duration", func() {
			rr := c.do(http.MethodPost, "/api/v1/quotes", employer, v1alpha1.QuoteRequest{
				Amount: "1000000", Mode: v1alpha1.PaymentModeWeekly,
			})
			expectStatus(rr, http.StatusBadRequest)
		})
	})
})
