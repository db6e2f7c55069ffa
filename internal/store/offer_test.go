package store_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/taskbridge/marketplace/internal/config"
	st "github.com/taskbridge/marketplace/internal/store"
	"github.com/taskbridge/marketplace/internal/store/model"
	"github.com/taskbridge/marketplace/pkg/money"
	"gorm.io/gorm"
)

var _ = Describe("offer store", Ordered, func() {
	var (
		store  st.Store
		gormDB *gorm.DB
	)

	BeforeAll(func() {
		db, err := st.InitDB(config.NewTestConfig("store-offer"))
		Expect(err).To(BeNil())
		gormDB = db

		store = st.NewStore(db)
		Expect(store.InitialMigration(context.TODO())).To(BeNil())
	})

	AfterAll(func() {
		store.Close()
	})

	AfterEach(func() {
		gormDB.Exec("DELETE FROM jobs;")
		gormDB.Exec("DELETE FROM conversions;")
		gormDB.Exec("DELETE FROM offers;")
	})

	Context("offers", func() {
		It("keeps amounts exact", func() {
			o := newOffer(uuid.New(), "0xemployer", "0xworker")
			o.Amount = money.MustParse("2000000000000000000")
			o.LockedValue = money.MustParse("8000000000000000000")
			o.Fee = money.MustParse("60000000000000000")

			created, err := store.Offer().Create(context.TODO(), o)
			Expect(err).To(BeNil())

			got, err := store.Offer().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(got.LockedValue.String()).To(Equal("8000000000000000000"))
			Expect(got.Fee.String()).To(Equal("60000000000000000"))
			Expect(got.FundingValue().String()).To(Equal("8060000000000000000"))
		})

		It("does not rewrite the priced terms on compare and swap", func() {
			created, err := store.Offer().Create(context.TODO(), newOffer(uuid.New(), "0xemployer", "0xworker"))
			Expect(err).To(BeNil())

			next := *created
			next.Status = model.OfferStatusDeclined
			next.Amount = money.FromInt64(1000)
			ok, err := store.Offer().CompareAndSwap(context.TODO(), created.Version, &next)
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())

			got, err := store.Offer().Get(context.TODO(), created.ID)
			Expect(err).To(BeNil())
			Expect(got.Status).To(Equal(model.OfferStatusDeclined))
			Expect(got.Amount.String()).To(Equal("2"))
		})

		It("lists the offers of a party on either side", func() {
			_, err := store.Offer().Create(context.TODO(), newOffer(uuid.New(), "0xalice", "0xbob"))
			Expect(err).To(BeNil())
			_, err = store.Offer().Create(context.TODO(), newOffer(uuid.New(), "0xcarol", "0xalice"))
			Expect(err).To(BeNil())
			_, err = store.Offer().Create(context.TODO(), newOffer(uuid.New(), "0xcarol", "0xbob"))
			Expect(err).To(BeNil())

			offers, err := st.Collect(store.Offer().Query(context.TODO(), st.NewOfferQueryFilter().ByParty("0xalice")))
			Expect(err).To(BeNil())
			Expect(offers).To(HaveLen(2))
		})

		It("finds declined offers with locked funds awaiting disposition", func() {
			past := time.Now().Add(-96 * time.Hour)
			recent := time.Now()

			stale := newOffer(uuid.New(), "0xemployer", "0xworker")
			stale.Status = model.OfferStatusDeclined
			stale.EscrowAddress = "0xescrow1"
			stale.DeclinedAt = &past
			_, err := store.Offer().Create(context.TODO(), stale)
			Expect(err).To(BeNil())

			fresh := newOffer(uuid.New(), "0xemployer", "0xworker")
			fresh.Status = model.OfferStatusDeclined
			fresh.EscrowAddress = "0xescrow2"
			fresh.DeclinedAt = &recent
			_, err = store.Offer().Create(context.TODO(), fresh)
			Expect(err).To(BeNil())

			unfunded := newOffer(uuid.New(), "0xemployer", "0xworker")
			unfunded.Status = model.OfferStatusDeclined
			unfunded.DeclinedAt = &past
			_, err = store.Offer().Create(context.TODO(), unfunded)
			Expect(err).To(BeNil())

			cutoff := time.Now().Add(-72 * time.Hour)
			filter := st.NewOfferQueryFilter().
				ByStatus(model.OfferStatusDeclined).
				Funded().
				DeclinedBefore(cutoff).
				NotSurfacedSince(cutoff)

			offers, err := st.Collect(store.Offer().Query(context.TODO(), filter))
			Expect(err).To(BeNil())
			Expect(offers).To(HaveLen(1))
			Expect(offers[0].EscrowAddress).To(Equal("0xescrow1"))
		})
	})

	Context("conversions", func() {
		It("creates one marker per offer", func() {
			id := uuid.New()
			_, err := store.Conversion().Create(context.TODO(), model.Conversion{ID: id, Kind: model.ConversionKindAccept, State: model.ConversionStateConverting})
			Expect(err).To(BeNil())

			_, err = store.Conversion().Create(context.TODO(), model.Conversion{ID: id, Kind: model.ConversionKindAccept, State: model.ConversionStateConverting})
			Expect(err).To(MatchError(st.ErrDuplicateKey))
		})

		It("moves the marker forward with compare and swap", func() {
			c, err := store.Conversion().Create(context.TODO(), model.Conversion{ID: uuid.New(), Kind: model.ConversionKindAccept, State: model.ConversionStateConverting})
			Expect(err).To(BeNil())

			stale := *c
			c.State = model.ConversionStateSubmitted
			c.TxID = "0xabc"
			ok, err := store.Conversion().CompareAndSwap(context.TODO(), c.Version, c)
			Expect(err).To(BeNil())
			Expect(ok).To(BeTrue())

			stale.State = model.ConversionStateEscalated
			ok, err = store.Conversion().CompareAndSwap(context.TODO(), stale.Version, &stale)
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())

			ok, err = store.Conversion().Delete(context.TODO(), c.ID, stale.Version)
			Expect(err).To(BeNil())
			Expect(ok).To(BeFalse())

			got, err := store.Conversion().Get(context.TODO(), c.ID)
			Expect(err).To(BeNil())
			Expect(got.State).To(Equal(model.ConversionStateSubmitted))
			Expect(got.TxID).To(Equal("0xabc"))
		})

		It("lists in-flight conversions older than a cutoff", func() {
			_, err := store.Conversion().Create(context.TODO(), model.Conversion{ID: uuid.New(), Kind: model.ConversionKindAccept, State: model.ConversionStateConverting})
			Expect(err).To(BeNil())
			_, err = store.Conversion().Create(context.TODO(), model.Conversion{ID: uuid.New(), Kind: model.ConversionKindRefund, State: model.ConversionStateCommitted})
			Expect(err).To(BeNil())

			filter := st.NewConversionQueryFilter().
				ByState(model.ConversionStateConverting, model.ConversionStateSubmitted).
				UpdatedBefore(time.Now().Add(time.Minute))
			conversions, err := st.Collect(store.Conversion().Query(context.TODO(), filter))
			Expect(err).To(BeNil())
			Expect(conversions).To(HaveLen(1))
			Expect(conversions[0].Token()).To(Equal(conversions[0].ID.String()))
		})
	})

	Context("jobs", func() {
		It("records a single job per offer", func() {
			o := newOffer(uuid.New(), "0xemployer", "0xworker")
			o.ID = uuid.New()

			_, err := store.Job().Create(context.TODO(), model.NewJobFromOffer(o, "0xjob1", "0xabc"))
			Expect(err).To(BeNil())
			_, err = store.Job().Create(context.TODO(), model.NewJobFromOffer(o, "0xjob2", "0xdef"))
			Expect(err).To(MatchError(st.ErrDuplicateKey))

			job, err := store.Job().GetByOfferID(context.TODO(), o.ID)
			Expect(err).To(BeNil())
			Expect(job.Address).To(Equal("0xjob1"))
			Expect(job.LockedValue.String()).To(Equal("8"))
		})

		It("turns a job into a public listing", func() {
			o := newOffer(uuid.New(), "0xemployer", "0xworker")
			o.ID = uuid.New()
			job, err := store.Job().Create(context.TODO(), model.NewJobFromOffer(o, "0xjob3", "0xabc"))
			Expect(err).To(BeNil())

			job.Public = true
			job.Worker = ""
			_, err = store.Job().Update(context.TODO(), *job)
			Expect(err).To(BeNil())

			public, err := st.Collect(store.Job().Query(context.TODO(), st.NewJobQueryFilter().Public()))
			Expect(err).To(BeNil())
			Expect(public).To(HaveLen(1))
			Expect(public[0].Worker).To(BeEmpty())
		})
	})
})
