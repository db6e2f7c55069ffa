package ledger_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/taskbridge/marketplace/internal/ledger"
	"github.com/taskbridge/marketplace/internal/payment"
	"github.com/taskbridge/marketplace/pkg/money"
)

func weeklyParams(token string) ledger.JobParams {
	return ledger.JobParams{
		Employer:         "0xemployer",
		Worker:           "0xworker",
		Mode:             payment.ModeWeekly,
		PerPeriod:        money.FromInt64(1000000),
		DurationWeeks:    2,
		LockedValue:      money.FromInt64(2000000),
		Fee:              money.FromInt64(15000),
		IdempotencyToken: token,
	}
}

var _ = Describe("memory ledger", func() {
	var (
		l   *ledger.MemoryLedger
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.TODO()
		l = ledger.NewMemoryLedger(ledger.WithConfirmAfter(1))
	})

	Context("create funded job", func() {
		It("returns the same transaction for the same token", func() {
			tx1, err := l.CreateFundedJob(ctx, weeklyParams("token-1"))
			Expect(err).To(BeNil())
			tx2, err := l.CreateFundedJob(ctx, weeklyParams("token-1"))
			Expect(err).To(BeNil())

			Expect(tx2).To(Equal(tx1))
			Expect(l.Submissions("token-1")).To(Equal(2))
			Expect(l.Jobs()).To(HaveLen(1))
		})

		It("rejects a fee that does not match the contract", func() {
			p := weeklyParams("token-2")
			p.Fee = money.FromInt64(15001)
			_, err := l.CreateFundedJob(ctx, p)
			Expect(err).To(MatchError(ledger.ErrRejected))
			Expect(l.Jobs()).To(BeEmpty())
		})

		It("rejects a locked value that does not match the duration", func() {
			p := weeklyParams("token-3")
			p.DurationWeeks = 3
			_, err := l.CreateFundedJob(ctx, p)
			Expect(err).To(MatchError(ledger.ErrRejected))
		})

		It("fails with the injected error", func() {
			l.FailNext(ledger.ErrUnavailable)
			_, err := l.CreateFundedJob(ctx, weeklyParams("token-4"))
			Expect(err).To(MatchError(ledger.ErrUnavailable))

			_, found, err := l.LookupToken(ctx, "token-4")
			Expect(err).To(BeNil())
			Expect(found).To(BeFalse())
		})
	})

	Context("confirm", func() {
		It("confirms after the configured number of polls", func() {
			txID, err := l.CreateFundedJob(ctx, weeklyParams("token-5"))
			Expect(err).To(BeNil())

			confirmed, _, err := l.Confirm(ctx, txID)
			Expect(err).To(BeNil())
			Expect(confirmed).To(BeFalse())

			confirmed, address, err := l.Confirm(ctx, txID)
			Expect(err).To(BeNil())
			Expect(confirmed).To(BeTrue())
			Expect(l.Jobs()).To(HaveKey(address))
		})

		It("reports a reverted transaction", func() {
			l.RevertToken("token-6")
			txID, err := l.CreateFundedJob(ctx, weeklyParams("token-6"))
			Expect(err).To(BeNil())

			_, _, err = l.Confirm(ctx, txID)
			Expect(err).To(MatchError(ledger.ErrTransactionFailed))
		})

		It("does not know foreign transactions", func() {
			_, _, err := l.Confirm(ctx, "0xnope")
			Expect(err).To(MatchError(ledger.ErrUnknownTransaction))
		})
	})

	Context("refund", func() {
		It("refunds locked funds once", func() {
			l = ledger.NewMemoryLedger()
			txID, err := l.CreateFundedJob(ctx, weeklyParams("token-7"))
			Expect(err).To(BeNil())
			_, address, err := l.Confirm(ctx, txID)
			Expect(err).To(BeNil())

			req := ledger.RefundRequest{LockedRef: address, Recipient: "0xemployer", IdempotencyToken: "refund-7"}
			refundTx, err := l.Refund(ctx, req)
			Expect(err).To(BeNil())
			Expect(l.Refunded(address)).To(BeTrue())

			again, err := l.Refund(ctx, req)
			Expect(err).To(BeNil())
			Expect(again).To(Equal(refundTx))

			req.IdempotencyToken = "refund-other"
			_, err = l.Refund(ctx, req)
			Expect(err).To(MatchError(ledger.ErrRejected))
		})

		It("refuses to refund someone else", func() {
			txID, err := l.CreateFundedJob(ctx, weeklyParams("token-8"))
			Expect(err).To(BeNil())
			l.Hold(false)
			_, _, _ = l.Confirm(ctx, txID)
			_, address, _ := l.Confirm(ctx, txID)

			_, err = l.Refund(ctx, ledger.RefundRequest{LockedRef: address, Recipient: "0xmallory", IdempotencyToken: "refund-8"})
			Expect(err).To(MatchError(ledger.ErrRejected))
		})
	})
})
