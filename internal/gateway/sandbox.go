package gateway

import (
	"context"
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Sandbox is an in-memory provider for local development and tests. Pushes
// stay pending until Complete is called, or until AutoApprove has elapsed
// when it is set.
type Sandbox struct {
	AutoApprove time.Duration
	Now         func() time.Time

	// FailPhones makes pushes to these numbers fail immediately.
	FailPhones map[string]bool

	mu     sync.Mutex
	txns   map[string]*sandboxTxn
	pushes int
}

type sandboxTxn struct {
	req      PushRequest
	state    string
	code     int
	receipt  string
	pushedAt time.Time
}

// NewSandbox returns an empty Sandbox.
func NewSandbox(autoApprove time.Duration) *Sandbox {
	return &Sandbox{
		AutoApprove: autoApprove,
		Now:         time.Now,
		FailPhones:  map[string]bool{},
		txns:        map[string]*sandboxTxn{},
	}
}

// Push records a pending transaction.
func (s *Sandbox) Push(ctx context.Context, r PushRequest) (PushResult, error) {
	if err := ctx.Err(); err != nil {
		return PushResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	if s.FailPhones[r.Phone] {
		return PushResult{}, errors.Mark(errors.Newf("sandbox: push to %s refused", r.Phone), ErrRejected)
	}
	id := "ws_CO_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	s.txns[id] = &sandboxTxn{req: r, state: StatePending, pushedAt: s.Now()}
	return PushResult{CorrelationID: id, CustomerMessage: "Success. Request accepted for processing"}, nil
}

// Query reports the transaction's state.
func (s *Sandbox) Query(ctx context.Context, correlationID string) (QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return QueryResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txns[correlationID]
	if !ok {
		return QueryResult{}, errors.Wrap(ErrUnknownTransaction, correlationID)
	}
	if tx.state == StatePending && s.AutoApprove > 0 && s.Now().Sub(tx.pushedAt) >= s.AutoApprove {
		tx.state, tx.code, tx.receipt = StateSuccess, ResultSuccess, newReceipt()
	}
	return QueryResult{State: tx.state, ResultCode: tx.code, ResultDesc: Describe(tx.code, ""), Receipt: tx.receipt}, nil
}

// Verify reports whether receipt belongs to the successful transaction.
func (s *Sandbox) Verify(ctx context.Context, correlationID, receipt string) (bool, error) {
	res, err := s.Query(ctx, correlationID)
	if err != nil {
		if errors.Is(err, ErrUnknownTransaction) {
			return false, nil
		}
		return false, err
	}
	return res.State == StateSuccess && res.Receipt == receipt, nil
}

// Complete settles a pending transaction and returns the callback the real
// provider would have delivered.
func (s *Sandbox) Complete(correlationID string, code int) (Callback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txns[correlationID]
	if !ok {
		return Callback{}, errors.Wrap(ErrUnknownTransaction, correlationID)
	}
	if tx.state == StatePending {
		tx.code = code
		tx.state = StateFailed
		if code == ResultSuccess {
			tx.state = StateSuccess
			tx.receipt = newReceipt()
		}
	}
	return Callback{
		CorrelationID: correlationID,
		ResultCode:    tx.code,
		ResultDesc:    Describe(tx.code, ""),
		Receipt:       tx.receipt,
		Amount:        float64(tx.req.Amount),
		Phone:         tx.req.Phone,
	}, nil
}

// Pushes returns how many pushes were attempted.
func (s *Sandbox) Pushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushes
}

const receiptAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func newReceipt() string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = receiptAlphabet[int(b[i])%len(receiptAlphabet)]
	}
	return string(b)
}
