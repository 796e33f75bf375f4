package services

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
)

// IntentKind is a payment-related request recognized in free text.
type IntentKind string

const (
	IntentResend        IntentKind = "resend"
	IntentVerifyReceipt IntentKind = "verify_receipt"
	IntentChangePhone   IntentKind = "change_phone"
	IntentStatus        IntentKind = "status"
	IntentCancel        IntentKind = "cancel"
	IntentUnknown       IntentKind = "unknown"
)

// IntentKinds lists every kind Classify can return.
var IntentKinds = []IntentKind{IntentResend, IntentVerifyReceipt, IntentChangePhone, IntentStatus, IntentCancel, IntentUnknown}

// Intent is a classified request and the values it carried.
type Intent struct {
	Kind    IntentKind `json:"kind"`
	Receipt string     `json:"receipt,omitempty"`
	Phone   string     `json:"phone,omitempty"`
}

var (
	receiptTokenRE = regexp.MustCompile(`\b([A-Za-z0-9]{10})\b`)
	phoneTokenRE   = regexp.MustCompile(`(?:\+?254|0)[17]\d{2}[\s-]?\d{3}[\s-]?\d{3}`)
	resendRE       = regexp.MustCompile(`\b(resend|re-send|send (it )?again|try again|retry|new (request|prompt)|didn'?t (get|receive))\b`)
	changePhoneRE  = regexp.MustCompile(`\b(change|switch|use|update|different|another|new)\b.*\b(number|phone|line)\b`)
	cancelRE       = regexp.MustCompile(`\b(cancel|stop|abort|never ?mind|forget it)\b`)
	statusRE       = regexp.MustCompile(`\b(status|did (it|you) (go through|receive|get)|received|confirmed\??|paid\??|check)\b`)
	fold           = cases.Fold()
)

// Classify maps one message to exactly one intent. A receipt code wins over
// everything else, then cancel, then a number change, resend and status.
func Classify(text string) Intent {
	t := strings.TrimSpace(text)
	lower := fold.String(t)

	if r := findReceipt(t); r != "" {
		return Intent{Kind: IntentVerifyReceipt, Receipt: r}
	}
	phoneText := phoneTokenRE.FindString(t)
	switch {
	case cancelRE.MatchString(lower):
		return Intent{Kind: IntentCancel}
	case phoneText != "" && (changePhoneRE.MatchString(lower) || !resendRE.MatchString(lower)):
		return Intent{Kind: IntentChangePhone, Phone: phoneText}
	case resendRE.MatchString(lower):
		return Intent{Kind: IntentResend, Phone: phoneText}
	case statusRE.MatchString(lower):
		return Intent{Kind: IntentStatus}
	}
	return Intent{Kind: IntentUnknown}
}

// findReceipt returns the first ten-character token mixing letters and
// digits, upper-cased.
func findReceipt(text string) string {
	for _, m := range receiptTokenRE.FindAllStringSubmatch(text, -1) {
		tok := strings.ToUpper(m[1])
		if strings.ContainsAny(tok, "0123456789") && strings.IndexFunc(tok, isLetter) >= 0 {
			return tok
		}
	}
	return ""
}

func isLetter(r rune) bool { return r >= 'A' && r <= 'Z' }

// IntentRouter dispatches payment intents.
type IntentRouter struct {
	Payments *PaymentService
	Drafts   *DraftService
}

type intentHandler func(ctx context.Context, r *IntentRouter, customerID string, in Intent) (Outcome, error)

var intentTable = map[IntentKind]intentHandler{
	IntentResend:        resendIntent,
	IntentChangePhone:   resendIntent,
	IntentVerifyReceipt: verifyIntent,
	IntentStatus:        statusIntent,
	IntentCancel:        cancelIntent,
	IntentUnknown:       unknownIntent,
}

// Handle classifies text and runs the matching action.
func (r *IntentRouter) Handle(ctx context.Context, customerID, text string) (Intent, Outcome, error) {
	in := Classify(text)
	out, err := r.Dispatch(ctx, customerID, in)
	return in, out, err
}

// Dispatch runs the action for an already classified intent.
func (r *IntentRouter) Dispatch(ctx context.Context, customerID string, in Intent) (Outcome, error) {
	tr := otel.Tracer("services/IntentRouter")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.String("customer.id", customerID), attribute.String("intent", string(in.Kind))),
	)
	defer span.End()

	h, ok := intentTable[in.Kind]
	if !ok {
		h = unknownIntent
	}
	return h(ctx, r, customerID, in)
}

func resendIntent(ctx context.Context, r *IntentRouter, customerID string, in Intent) (Outcome, error) {
	res, err := r.Payments.Resend(ctx, customerID, in.Phone)
	if err != nil {
		return Outcome{}, err
	}
	return initiatedOutcome(res), nil
}

func verifyIntent(ctx context.Context, r *IntentRouter, customerID string, in Intent) (Outcome, error) {
	return r.Payments.VerifyByReceipt(ctx, customerID, in.Receipt)
}

func statusIntent(ctx context.Context, r *IntentRouter, customerID string, _ Intent) (Outcome, error) {
	p, err := r.Payments.Status(ctx, customerID)
	if err != nil {
		return Outcome{}, err
	}
	return r.Payments.current(ctx, p), nil
}

func cancelIntent(ctx context.Context, r *IntentRouter, customerID string, _ Intent) (Outcome, error) {
	if _, err := r.Payments.AbandonPending(ctx, customerID); err != nil {
		return Outcome{}, err
	}
	deleted, err := r.Drafts.Delete(ctx, customerID)
	if err != nil {
		return Outcome{}, err
	}
	msg := "Okay, your booking request has been cancelled."
	if !deleted {
		msg = "There was no booking in progress to cancel."
	}
	return Outcome{Tag: TagCancelled, Message: msg}, nil
}

func unknownIntent(context.Context, *IntentRouter, string, Intent) (Outcome, error) {
	return Outcome{}, invalid("intent",
		"reply RESEND for a new payment request, send your M-Pesa code (for example QJK4ABC12D) once you've paid, "+
			"send a new number to be charged on it, or STATUS to check your payment")
}

func initiatedOutcome(res *InitiateResult) Outcome {
	return Outcome{Tag: TagDepositInitiated, Message: res.Message, Payment: res.Payment}
}
