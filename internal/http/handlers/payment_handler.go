// Payment HTTP handlers.
//
// This file exposes deposit endpoints:
//   - POST /payments/initiate  (push the deposit request for the current draft)
//   - POST /payments/resend    (replace the pending request, optionally to a new number)
//   - POST /payments/verify    (settle by a receipt code the customer typed)
//   - POST /payments/intent    (classify and run a free-text payment message)
//   - GET  /payments/status    (latest payment)
//   - POST /webhooks/mpesa     (gateway callback)
//
// The webhook always acknowledges with 200 so the provider does not retry;
// failures are logged and left to the poller and receipt verification.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-booking-backend/internal/gateway"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
	"github.com/tbourn/go-booking-backend/internal/services"
)

//
// DTOs
//

// PhoneRequest optionally names the number to charge.
type PhoneRequest struct {
	// Phone is any common local or international form; empty uses the draft's number.
	Phone string `json:"phone" binding:"max=32" example:"0712 345 678"`
}

// VerifyRequest carries a receipt code, or a message containing one.
type VerifyRequest struct {
	Receipt string `json:"receipt" binding:"required,max=200" example:"QJK4ABC12D"`
}

// IntentRequest carries a free-text payment message.
type IntentRequest struct {
	Text string `json:"text" binding:"required,max=1000" example:"resend to 0722 000 111"`
}

// IntentResponse is the classified intent and its outcome.
type IntentResponse struct {
	Intent  services.Intent  `json:"intent"`
	Outcome services.Outcome `json:"result"`
}

// WebhookAck is the acknowledgement body the provider expects.
type WebhookAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

//
// Handlers
//

// InitiatePayment godoc
// @ID          initiatePayment
// @Summary     Request the deposit
// @Description Pushes the catalog deposit for the customer's complete draft to their phone.
// @Description A request already pending for the draft is reused instead of pushing again.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                 true   "Customer ID"  example(254712345678)
// @Param       body       body    handlers.PhoneRequest  false  "Number to charge"
//
// @Success     202  {object}  services.InitiateResult  "Request pushed"
// @Success     200  {object}  services.InitiateResult  "Existing request reused"
// @Failure     400  {object}  handlers.ErrorResponse   "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse   "No booking in progress"
// @Failure     409  {object}  handlers.ErrorResponse   "Deposit already paid"
// @Failure     422  {object}  handlers.ErrorResponse   "Draft incomplete"
// @Failure     502  {object}  handlers.ErrorResponse   "Payment gateway failure"
// @Router      /payments/initiate [post]
func (h *Handlers) InitiatePayment(c *gin.Context) {
	ctx := c.Request.Context()
	var req PhoneRequest
	if !bindOptionalJSON(c, &req) {
		return
	}

	d, err := h.Drafts.Get(ctx, userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	res, err := h.Payments.InitiateForDraft(ctx, d, strings.TrimSpace(req.Phone))
	if err != nil {
		failErr(c, err)
		return
	}
	writeInitiate(c, res)
}

// ResendPayment godoc
// @ID          resendPayment
// @Summary     Resend the deposit request
// @Description Replaces the pending deposit request with a fresh push, to a new number when given.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                 true   "Customer ID"  example(254712345678)
// @Param       body       body    handlers.PhoneRequest  false  "New number"
//
// @Success     202  {object}  services.InitiateResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Nothing to resend"
// @Failure     409  {object}  handlers.ErrorResponse  "Deposit already paid"
// @Failure     502  {object}  handlers.ErrorResponse  "Payment gateway failure"
// @Router      /payments/resend [post]
func (h *Handlers) ResendPayment(c *gin.Context) {
	var req PhoneRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := h.Payments.Resend(c.Request.Context(), userID(c), strings.TrimSpace(req.Phone))
	if err != nil {
		failErr(c, err)
		return
	}
	writeInitiate(c, res)
}

// VerifyPayment godoc
// @ID          verifyPayment
// @Summary     Verify a receipt code
// @Description Settles the customer's pending deposit using the receipt code from the provider's SMS.
// @Description Attempts are rate limited per customer; a 429 carries Retry-After.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                  true  "Customer ID"  example(254712345678)
// @Param       body       body    handlers.VerifyRequest  true  "Receipt"
//
// @Success     200  {object}  services.Outcome
// @Header      429  {string}  Retry-After  "Seconds until the next attempt"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed, mismatched or reused receipt"
// @Failure     404  {object}  handlers.ErrorResponse  "No pending payment"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many attempts"
// @Router      /payments/verify [post]
func (h *Handlers) VerifyPayment(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "receipt required")
		return
	}
	out, err := h.Payments.VerifyByReceipt(c.Request.Context(), userID(c), req.Receipt)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// PaymentIntent godoc
// @ID          paymentIntent
// @Summary     Handle a free-text payment message
// @Description Classifies the message as a receipt, cancel, number change, resend or status
// @Description request, and runs it.
// @Tags        Payments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string                  true  "Customer ID"  example(254712345678)
// @Param       body       body    handlers.IntentRequest  true  "Message"
//
// @Success     200  {object}  handlers.IntentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unrecognized message"
// @Failure     404  {object}  handlers.ErrorResponse  "Nothing to act on"
// @Failure     429  {object}  handlers.ErrorResponse  "Too many attempts"
// @Router      /payments/intent [post]
func (h *Handlers) PaymentIntent(c *gin.Context) {
	var req IntentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "text required")
		return
	}
	in, out, err := h.Intents.Handle(c.Request.Context(), userID(c), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, IntentResponse{Intent: in, Outcome: out})
}

// PaymentStatus godoc
// @ID          paymentStatus
// @Summary     Latest payment
// @Description Returns the customer's most recent deposit attempt.
// @Tags        Payments
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "Customer ID"  example(254712345678)
//
// @Success     200  {object}  domain.Payment
// @Failure     404  {object}  handlers.ErrorResponse  "No payment"
// @Router      /payments/status [get]
func (h *Handlers) PaymentStatus(c *gin.Context) {
	p, err := h.Payments.Status(c.Request.Context(), userID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// MpesaWebhook godoc
// @ID          mpesaWebhook
// @Summary     Gateway callback
// @Description Receives the provider's payment result. Always acknowledged with 200.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Success     200  {object}  handlers.WebhookAck
// @Router      /webhooks/mpesa [post]
func (h *Handlers) MpesaWebhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)
	ack := WebhookAck{ResultCode: 0, ResultDesc: "Accepted"}

	raw, err := c.GetRawData()
	if err != nil {
		lg.Warn().Err(err).Msg("webhook body unreadable")
		ok(c, http.StatusOK, ack)
		return
	}
	cb, err := gateway.ParseCallback(raw)
	if err != nil {
		lg.Warn().Err(err).Msg("webhook payload rejected")
		ok(c, http.StatusOK, ack)
		return
	}
	out, err := h.Payments.Callback(c.Request.Context(), cb)
	if err != nil {
		lg.Warn().Err(err).Str("correlation_id", cb.CorrelationID).Msg("webhook not applied")
		ok(c, http.StatusOK, ack)
		return
	}
	lg.Info().Str("correlation_id", cb.CorrelationID).Str("outcome", string(out.Tag)).Msg("webhook applied")
	ok(c, http.StatusOK, ack)
}

//
// Helpers
//

// bindOptionalJSON binds a JSON body when there is one. It writes the error
// response and returns false on a malformed body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeInitiate(c *gin.Context, res *services.InitiateResult) {
	status := http.StatusOK
	if res.Pushed {
		status = http.StatusAccepted
	}
	ok(c, status, res)
}
