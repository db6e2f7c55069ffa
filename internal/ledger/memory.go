package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/taskbridge/marketplace/internal/payment"
	"go.uber.org/zap"
)

type txKind string

const (
	txKindJob    txKind = "job"
	txKindRefund txKind = "refund"
)

type memoryTx struct {
	id         string
	token      string
	kind       txKind
	jobAddress string
	polls      int
	reverted   bool
}

// MemoryLedger is an in-process ledger. Submissions are deduplicated by idempotency token and
// a transaction confirms after a configurable number of Confirm polls.
type MemoryLedger struct {
	lock         sync.Mutex
	feeBps       int64
	confirmAfter int
	held         bool
	newTxID      func() string
	newAddress   func() string

	txs         map[string]*memoryTx
	tokens      map[string]string
	jobs        map[string]JobParams
	refunds     map[string]string
	submissions map[string]int
	failNext    []error
	dropNext    int
	revert      map[string]bool
}

type MemoryOption func(m *MemoryLedger)

func WithFeeBasisPoints(bps int64) MemoryOption {
	return func(m *MemoryLedger) {
		m.feeBps = bps
	}
}

// WithConfirmAfter sets how many Confirm calls report pending before the transaction confirms.
func WithConfirmAfter(polls int) MemoryOption {
	return func(m *MemoryLedger) {
		m.confirmAfter = polls
	}
}

func WithTxIDGenerator(fn func() string) MemoryOption {
	return func(m *MemoryLedger) {
		m.newTxID = fn
	}
}

func WithAddressGenerator(fn func() string) MemoryOption {
	return func(m *MemoryLedger) {
		m.newAddress = fn
	}
}

func NewMemoryLedger(opts ...MemoryOption) *MemoryLedger {
	m := &MemoryLedger{
		feeBps:      payment.DefaultFeeBasisPoints,
		newTxID:     func() string { return "0x" + randomHex(64) },
		newAddress:  func() string { return "0x" + randomHex(40) },
		txs:         make(map[string]*memoryTx),
		tokens:      make(map[string]string),
		jobs:        make(map[string]JobParams),
		refunds:     make(map[string]string),
		submissions: make(map[string]int),
		revert:      make(map[string]bool),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ Client = (*MemoryLedger)(nil)
var _ FeeSource = (*MemoryLedger)(nil)
var _ Idempotent = (*MemoryLedger)(nil)
var _ TokenResolver = (*MemoryLedger)(nil)

func (m *MemoryLedger) CreateFundedJob(ctx context.Context, params JobParams) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.submissions[params.IdempotencyToken]++
	if err := m.popFailure(); err != nil {
		return "", err
	}

	if txID, found := m.tokens[params.IdempotencyToken]; found {
		return txID, nil
	}

	if err := m.validate(params); err != nil {
		return "", err
	}

	tx := &memoryTx{
		id:         m.newTxID(),
		token:      params.IdempotencyToken,
		kind:       txKindJob,
		jobAddress: m.newAddress(),
		reverted:   m.revert[params.IdempotencyToken],
	}
	m.txs[tx.id] = tx
	m.tokens[tx.token] = tx.id
	if !tx.reverted {
		m.jobs[tx.jobAddress] = params
	}

	if m.dropNext > 0 {
		m.dropNext--
		return "", fmt.Errorf("%w: response lost", ErrUnavailable)
	}

	zap.S().Named("memory_ledger").Debugw("job transaction submitted", "tx_id", tx.id, "token", tx.token, "job_address", tx.jobAddress)
	return tx.id, nil
}

func (m *MemoryLedger) Confirm(ctx context.Context, txID string) (bool, string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	tx, found := m.txs[txID]
	if !found {
		return false, "", fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if tx.reverted {
		return false, "", fmt.Errorf("%w: %s", ErrTransactionFailed, txID)
	}
	if m.held || tx.polls < m.confirmAfter {
		tx.polls++
		return false, "", nil
	}
	return true, tx.jobAddress, nil
}

func (m *MemoryLedger) Refund(ctx context.Context, req RefundRequest) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.submissions[req.IdempotencyToken]++
	if err := m.popFailure(); err != nil {
		return "", err
	}

	if txID, found := m.tokens[req.IdempotencyToken]; found && m.txs[txID].kind == txKindRefund {
		return txID, nil
	}

	job, found := m.jobs[req.LockedRef]
	if !found {
		return "", fmt.Errorf("%w: no locked funds at %s", ErrRejected, req.LockedRef)
	}
	if _, done := m.refunds[req.LockedRef]; done {
		return "", fmt.Errorf("%w: funds at %s already refunded", ErrRejected, req.LockedRef)
	}
	if job.Employer != req.Recipient {
		return "", fmt.Errorf("%w: refund recipient %s is not the funder", ErrRejected, req.Recipient)
	}

	tx := &memoryTx{
		id:         m.newTxID(),
		token:      req.IdempotencyToken,
		kind:       txKindRefund,
		jobAddress: req.LockedRef,
	}
	m.txs[tx.id] = tx
	m.tokens[tx.token] = tx.id
	m.refunds[req.LockedRef] = tx.id
	return tx.id, nil
}

func (m *MemoryLedger) FeeBasisPoints(_ context.Context) (int64, error) {
	return m.feeBps, nil
}

func (m *MemoryLedger) IdempotentSubmission() bool {
	return true
}

func (m *MemoryLedger) LookupToken(_ context.Context, token string) (string, bool, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	txID, found := m.tokens[token]
	return txID, found, nil
}

// FailNext makes the next submissions return the given errors, in order.
func (m *MemoryLedger) FailNext(errs ...error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.failNext = append(m.failNext, errs...)
}

// DropNextResponses records the next n job submissions but answers them with ErrUnavailable.
func (m *MemoryLedger) DropNextResponses(n int) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.dropNext += n
}

// RevertToken makes the transaction submitted for token revert on-chain.
func (m *MemoryLedger) RevertToken(token string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.revert[token] = true
}

// LoseTransaction forgets the transaction submitted for token while still answering later
// submissions of the token with its id.
func (m *MemoryLedger) LoseTransaction(token string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.txs, m.tokens[token])
}

// Hold keeps every transaction pending until released.
func (m *MemoryLedger) Hold(held bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.held = held
}

// Submissions returns how many times a submission was made with token.
func (m *MemoryLedger) Submissions(token string) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.submissions[token]
}

// Jobs returns the funded jobs by address.
func (m *MemoryLedger) Jobs() map[string]JobParams {
	m.lock.Lock()
	defer m.lock.Unlock()

	jobs := make(map[string]JobParams, len(m.jobs))
	for k, v := range m.jobs {
		jobs[k] = v
	}
	return jobs
}

func (m *MemoryLedger) Refunded(lockedRef string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	_, found := m.refunds[lockedRef]
	return found
}

func (m *MemoryLedger) popFailure() error {
	if len(m.failNext) == 0 {
		return nil
	}
	err := m.failNext[0]
	m.failNext = m.failNext[1:]
	return err
}

func (m *MemoryLedger) validate(p JobParams) error {
	if p.IdempotencyToken == "" {
		return fmt.Errorf("%w: missing idempotency token", ErrRejected)
	}
	if p.Employer == "" {
		return fmt.Errorf("%w: missing employer", ErrRejected)
	}
	if p.PerPeriod.Sign() <= 0 {
		return fmt.Errorf("%w: non positive amount", ErrRejected)
	}

	expected := p.PerPeriod
	if p.Mode == payment.ModeWeekly {
		expected = p.PerPeriod.MulInt64(p.DurationWeeks)
	}
	if !expected.Equal(p.LockedValue) {
		return fmt.Errorf("%w: locked value %s does not match %s", ErrRejected, p.LockedValue, expected)
	}
	if fee := RequiredFee(p.LockedValue, m.feeBps); !fee.Equal(p.Fee) {
		return fmt.Errorf("%w: fee %s does not match required %s", ErrRejected, p.Fee, fee)
	}
	return nil
}

func randomHex(n int) string {
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(strings.ReplaceAll(uuid.NewString(), "-", ""))
	}
	return sb.String()[:n]
}
