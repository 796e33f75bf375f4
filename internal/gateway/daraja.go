package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/go-booking-backend/internal/config"
)

// Daraja is the Safaricom M-Pesa Express (STK push) client.
type Daraja struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	HTTP           *http.Client
	Now            func() time.Time

	loc *time.Location

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewDaraja builds a client whose outbound calls are traced.
func NewDaraja(cfg config.GatewayConfig) *Daraja {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		loc = time.FixedZone("EAT", 3*60*60)
	}
	return &Daraja{
		BaseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		ConsumerKey:    cfg.ConsumerKey,
		ConsumerSecret: cfg.ConsumerSecret,
		ShortCode:      cfg.ShortCode,
		Passkey:        cfg.Passkey,
		CallbackURL:    cfg.CallbackURL,
		HTTP: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Now: time.Now,
		loc: loc,
	}
}

type darajaError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Codes the query endpoint uses while the customer has not answered yet.
const darajaStillProcessing = "500.001.1001"

func (d *Daraja) accessToken(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.token != "" && d.Now().Before(d.expiresAt) {
		return d.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(d.ConsumerKey, d.ConsumerSecret)
	res, err := d.HTTP.Do(req)
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "daraja oauth"), ErrUnavailable)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode != http.StatusOK {
		return "", errors.Mark(errors.Newf("daraja oauth failed: %s (%d)", string(body), res.StatusCode), ErrUnavailable)
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.AccessToken == "" {
		return "", errors.Mark(errors.New("daraja oauth: malformed token response"), ErrUnavailable)
	}
	ttl, _ := strconv.Atoi(out.ExpiresIn)
	if ttl <= 0 {
		ttl = 3599
	}
	d.token = out.AccessToken
	// Refresh a minute early so a token never expires mid-request.
	d.expiresAt = d.Now().Add(time.Duration(ttl)*time.Second - time.Minute)
	return d.token, nil
}

func (d *Daraja) password(ts string) string {
	return base64.StdEncoding.EncodeToString([]byte(d.ShortCode + d.Passkey + ts))
}

func (d *Daraja) timestamp() string {
	return d.Now().In(d.loc).Format("20060102150405")
}

func (d *Daraja) post(ctx context.Context, path string, payload any, out any) (*darajaError, error) {
	token, err := d.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := d.HTTP.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "daraja %s", path), ErrUnavailable)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		if err := json.Unmarshal(body, out); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "daraja %s: decode", path), ErrUnavailable)
		}
		return nil, nil
	}
	if res.StatusCode == http.StatusUnauthorized {
		d.mu.Lock()
		d.token = ""
		d.mu.Unlock()
	}
	var de darajaError
	if json.Unmarshal(body, &de) == nil && de.ErrorCode != "" {
		return &de, nil
	}
	if res.StatusCode >= 500 {
		return nil, errors.Mark(errors.Newf("daraja %s: status %d", path, res.StatusCode), ErrUnavailable)
	}
	return nil, errors.Mark(errors.Newf("daraja %s: status %d: %s", path, res.StatusCode, string(body)), ErrRejected)
}

// Push sends an STK push. The returned correlation id is the provider's
// CheckoutRequestID.
func (d *Daraja) Push(ctx context.Context, r PushRequest) (PushResult, error) {
	ts := d.timestamp()
	payload := map[string]any{
		"BusinessShortCode": d.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            r.Amount,
		"PartyA":            r.Phone,
		"PartyB":            d.ShortCode,
		"PhoneNumber":       r.Phone,
		"CallBackURL":       d.CallbackURL,
		"AccountReference":  truncate(r.Reference, 12),
		"TransactionDesc":   truncate(r.Description, 13),
	}
	var out struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		CustomerMessage     string `json:"CustomerMessage"`
	}
	de, err := d.post(ctx, "/mpesa/stkpush/v1/processrequest", payload, &out)
	if err != nil {
		return PushResult{}, err
	}
	if de != nil {
		return PushResult{}, errors.Mark(errors.Newf("stk push rejected: %s %s", de.ErrorCode, de.ErrorMessage), ErrRejected)
	}
	if out.ResponseCode != "0" || out.CheckoutRequestID == "" {
		return PushResult{}, errors.Mark(errors.Newf("stk push rejected: %s %s", out.ResponseCode, out.ResponseDescription), ErrRejected)
	}
	return PushResult{CorrelationID: out.CheckoutRequestID, CustomerMessage: out.CustomerMessage}, nil
}

// Query asks the provider for the outcome of a push.
func (d *Daraja) Query(ctx context.Context, correlationID string) (QueryResult, error) {
	ts := d.timestamp()
	payload := map[string]any{
		"BusinessShortCode": d.ShortCode,
		"Password":          d.password(ts),
		"Timestamp":         ts,
		"CheckoutRequestID": correlationID,
	}
	var out struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
	}
	de, err := d.post(ctx, "/mpesa/stkpushquery/v1/query", payload, &out)
	if err != nil {
		return QueryResult{}, err
	}
	if de != nil {
		if de.ErrorCode == darajaStillProcessing {
			return QueryResult{State: StatePending, ResultDesc: de.ErrorMessage}, nil
		}
		if strings.Contains(strings.ToLower(de.ErrorMessage), "invalid checkoutrequestid") {
			return QueryResult{}, errors.Wrap(ErrUnknownTransaction, correlationID)
		}
		return QueryResult{}, errors.Mark(errors.Newf("stk query rejected: %s %s", de.ErrorCode, de.ErrorMessage), ErrRejected)
	}
	code, err := strconv.Atoi(out.ResultCode)
	if err != nil {
		return QueryResult{State: StatePending, ResultDesc: out.ResultDesc}, nil
	}
	state := StateFailed
	if code == ResultSuccess {
		state = StateSuccess
	}
	return QueryResult{State: state, ResultCode: code, ResultDesc: out.ResultDesc}, nil
}

// Verify confirms that the push identified by correlationID completed
// successfully. The STK query endpoint does not echo the receipt, so a
// successful state is the strongest match available; callers have already
// checked the receipt's shape and that no other payment holds it.
func (d *Daraja) Verify(ctx context.Context, correlationID, receipt string) (bool, error) {
	if !ValidReceipt(receipt) {
		return false, nil
	}
	res, err := d.Query(ctx, correlationID)
	if err != nil {
		if errors.Is(err, ErrUnknownTransaction) {
			return false, nil
		}
		return false, err
	}
	if res.Receipt != "" {
		return res.State == StateSuccess && res.Receipt == receipt, nil
	}
	return res.State == StateSuccess, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// String identifies the client in logs without leaking credentials.
func (d *Daraja) String() string {
	return fmt.Sprintf("daraja(%s, shortcode=%s)", d.BaseURL, d.ShortCode)
}
