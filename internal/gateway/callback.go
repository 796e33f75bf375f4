package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Callback is a decoded asynchronous push result.
type Callback struct {
	MerchantRequestID string
	CorrelationID     string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Amount            float64
	Phone             string
}

// Success reports whether the customer paid.
func (c Callback) Success() bool { return c.ResultCode == ResultSuccess }

type callbackEnvelope struct {
	Body struct {
		STKCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string          `json:"Name"`
					Value json.RawMessage `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseCallback decodes the provider's STK callback envelope.
func ParseCallback(body []byte) (Callback, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Callback{}, errors.Wrap(err, "decode callback")
	}
	cb := env.Body.STKCallback
	if cb.CheckoutRequestID == "" {
		return Callback{}, errors.New("callback has no CheckoutRequestID")
	}
	out := Callback{
		MerchantRequestID: cb.MerchantRequestID,
		CorrelationID:     cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	for _, it := range cb.CallbackMetadata.Item {
		switch it.Name {
		case "MpesaReceiptNumber":
			out.Receipt = NormalizeReceipt(rawString(it.Value))
		case "Amount":
			out.Amount, _ = strconv.ParseFloat(rawString(it.Value), 64)
		case "PhoneNumber":
			out.Phone = rawString(it.Value)
		}
	}
	return out, nil
}

// rawString renders a JSON scalar without quotes. Phone numbers arrive as
// large integers, so numbers are decoded with UseNumber semantics.
func rawString(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return fmt.Sprint(string(v))
}
