package gateway

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"academix-api/config"
	"academix-api/internal/errdefs"
)

const (
	SandboxBaseURL = "https://sandbox.sslcommerz.com"
	LiveBaseURL    = "https://securepay.sslcommerz.com"

	sessionPath    = "/gwprocess/v4/api.php"
	validationPath = "/validator/api/validationserverAPI.php"
)

var (
	ErrMissingSignature = fmt.Errorf("callback signature missing: %w", errdefs.ErrInvalidArgument)
	ErrInvalidSignature = fmt.Errorf("callback signature mismatch: %w", errdefs.ErrInvalidArgument)
)

// SessionRequest describes one checkout session
type SessionRequest struct {
	TotalAmount     float64
	Currency        string
	TranID          string
	SuccessURL      string
	FailURL         string
	CancelURL       string
	IPNURL          string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	CustomerAddress string
	ProductName     string
	ProductCategory string
}

// SessionResponse is the subset of the session API reply the service uses
type SessionResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	SessionKey     string `json:"sessionkey"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

// ValidationResponse is the subset of the validation API reply the service uses
type ValidationResponse struct {
	Status   string `json:"status"`
	TranID   string `json:"tran_id"`
	ValID    string `json:"val_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// Valid reports whether the gateway considers the transaction settled
func (v *ValidationResponse) Valid() bool {
	return v.Status == "VALID" || v.Status == "VALIDATED"
}

type Client struct {
	httpClient    *http.Client
	baseURL       string
	storeID       string
	storePassword string
}

type Option func(*Client)

// WithBaseURL overrides the sandbox/live endpoint
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// NewClient creates an SSLCommerz client. Every request is bounded by cfg.Timeout.
func NewClient(cfg *config.GatewayConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := SandboxBaseURL
	if cfg.IsLive {
		baseURL = LiveBaseURL
	}

	c := &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		storeID:       cfg.StoreID,
		storePassword: cfg.StorePassword,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitSession opens a gateway session and returns its redirect URL
func (c *Client) InitSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	form := url.Values{}
	form.Set("store_id", c.storeID)
	form.Set("store_passwd", c.storePassword)
	form.Set("total_amount", strconv.FormatFloat(req.TotalAmount, 'f', 2, 64))
	form.Set("currency", req.Currency)
	form.Set("tran_id", req.TranID)
	form.Set("success_url", req.SuccessURL)
	form.Set("fail_url", req.FailURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("ipn_url", req.IPNURL)
	form.Set("shipping_method", "NO")
	form.Set("num_of_item", "1")
	form.Set("product_name", valueOr(req.ProductName, "Course"))
	form.Set("product_category", valueOr(req.ProductCategory, "Education"))
	form.Set("product_profile", "non-physical-goods")
	form.Set("cus_name", req.CustomerName)
	form.Set("cus_email", req.CustomerEmail)
	form.Set("cus_phone", req.CustomerPhone)
	form.Set("cus_add1", valueOr(req.CustomerAddress, "Dhaka"))
	form.Set("cus_city", "Dhaka")
	form.Set("cus_country", "Bangladesh")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sessionPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result SessionResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, fmt.Errorf("init session %s: %w", req.TranID, err)
	}

	if !strings.EqualFold(result.Status, "SUCCESS") || result.GatewayPageURL == "" {
		return nil, fmt.Errorf("init session %s: status=%s reason=%q: %w",
			req.TranID, result.Status, result.FailedReason, errdefs.ErrPaymentGateway)
	}

	return &result, nil
}

// ValidateTransaction asks the gateway to confirm a successful payment by its val_id
func (c *Client) ValidateTransaction(ctx context.Context, valID string) (*ValidationResponse, error) {
	q := url.Values{}
	q.Set("val_id", valID)
	q.Set("store_id", c.storeID)
	q.Set("store_passwd", c.storePassword)
	q.Set("v", "1")
	q.Set("format", "json")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+validationPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	var result ValidationResponse
	if err := c.do(httpReq, &result); err != nil {
		return nil, fmt.Errorf("validate %s: %w", valID, err)
	}
	return &result, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errdefs.ErrPaymentGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status=%d body=%s", errdefs.ErrPaymentGateway, resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", errdefs.ErrPaymentGateway, err)
	}
	return nil
}

// VerifyCallback checks the verify_sign/verify_key pair the gateway attaches
// to callback and IPN posts.
func (c *Client) VerifyCallback(form url.Values) error {
	sign := form.Get("verify_sign")
	keys := form.Get("verify_key")
	if sign == "" || keys == "" {
		return ErrMissingSignature
	}

	expected := Sign(form, strings.Split(keys, ","), c.storePassword)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sign)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Signed reports whether field is one of the verify_key fields, i.e. covered
// by verify_sign.
func Signed(form url.Values, field string) bool {
	for _, k := range strings.Split(form.Get("verify_key"), ",") {
		if strings.TrimSpace(k) == field {
			return true
		}
	}
	return false
}

// Sign computes the SSLCommerz callback signature: md5 over the listed
// fields plus md5(store password), sorted by name and joined as k=v&k=v.
func Sign(form url.Values, keys []string, storePassword string) string {
	fields := make(map[string]string, len(keys)+1)
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			fields[k] = form.Get(k)
		}
	}
	fields["store_passwd"] = md5Hex(storePassword)

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, k := range names {
		pairs = append(pairs, k+"="+fields[k])
	}
	return md5Hex(strings.Join(pairs, "&"))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
