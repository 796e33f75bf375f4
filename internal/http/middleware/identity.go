// Package middleware holds the Gin middleware of the booking API: request
// correlation, redacted access logs, panic recovery, Prometheus metrics,
// idempotency keys, per-customer rate limiting and security headers.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderCustomerID carries the customer's channel identity, usually
	// their phone number.
	HeaderCustomerID = "X-User-ID"

	// CtxCustomerID is where an upstream authenticator stores the customer
	// id; it wins over the header.
	CtxCustomerID = "userID"

	// AnonymousCustomer is used when a request names no customer.
	AnonymousCustomer = "demo-user"
)

// CustomerID resolves the customer a request acts for.
func CustomerID(c *gin.Context) string {
	if id, ok := customerFromContext(c); ok {
		return id
	}
	return AnonymousCustomer
}

func customerFromContext(c *gin.Context) (string, bool) {
	if c == nil {
		return "", false
	}
	if v, ok := c.Get(CtxCustomerID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderCustomerID)); h != "" {
			return h, true
		}
	}
	return "", false
}
