// Package gateway talks to the mobile-money provider: it sends deposit
// pushes to a customer's handset, queries their status, verifies receipts,
// and decodes the provider's asynchronous result callbacks.
package gateway

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRejected marks a well-formed non-success response from the provider.
	ErrRejected = errors.New("gateway rejected request")
	// ErrUnavailable marks transport failures and unparseable responses.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrUnknownTransaction is returned for a correlation id the provider
	// does not recognize.
	ErrUnknownTransaction = errors.New("unknown transaction")
)

// PushRequest asks the provider to prompt phone for amount.
type PushRequest struct {
	Phone       string
	Amount      int64
	Reference   string
	Description string
}

// PushResult is the provider's acknowledgement of a push.
type PushResult struct {
	CorrelationID   string
	CustomerMessage string
}

// Transaction states reported by Query.
const (
	StatePending = "pending"
	StateSuccess = "success"
	StateFailed  = "failed"
)

// QueryResult is the provider's current view of a push.
type QueryResult struct {
	State      string
	ResultCode int
	ResultDesc string
	Receipt    string
}

// Gateway is the provider contract the payment reconciler depends on.
type Gateway interface {
	Push(ctx context.Context, req PushRequest) (PushResult, error)
	Query(ctx context.Context, correlationID string) (QueryResult, error)
	Verify(ctx context.Context, correlationID, receipt string) (bool, error)
}

var receiptRE = regexp.MustCompile(`^[A-Z0-9]{10}$`)

// NormalizeReceipt trims and upper-cases a receipt code typed by a customer.
func NormalizeReceipt(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// ValidReceipt reports whether s has the provider's receipt shape: ten
// upper-case letters or digits.
func ValidReceipt(s string) bool {
	return receiptRE.MatchString(s)
}

// Result codes the provider reports in callbacks and status queries.
const (
	ResultSuccess           = 0
	ResultInsufficientFunds = 1
	ResultCancelledByUser   = 1032
	ResultTimeout           = 1037
	ResultWrongPIN          = 2001
)

// Describe returns a customer-facing explanation for a result code.
func Describe(code int, fallback string) string {
	switch code {
	case ResultSuccess:
		return "payment received"
	case ResultInsufficientFunds:
		return "insufficient balance"
	case ResultCancelledByUser:
		return "the request was cancelled on the phone"
	case ResultTimeout:
		return "the phone could not be reached in time"
	case ResultWrongPIN:
		return "the PIN entered was incorrect"
	}
	if fallback != "" {
		return fallback
	}
	return "payment was not completed"
}
