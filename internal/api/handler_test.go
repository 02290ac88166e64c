package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"academix-api/config"
	"academix-api/internal/auth"
	"academix-api/internal/errdefs"
	"academix-api/internal/gateway"
	"academix-api/internal/models"
	"academix-api/internal/service"
	"academix-api/internal/testutils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router    *gin.Engine
	store     *testutils.MemoryStore
	gw        *testutils.MockGateway
	publisher *testutils.RecordingPublisher
	tokens    *auth.TokenManager
}

func newTestServer(t *testing.T, ping error) *testServer {
	t.Helper()
	gw := &testutils.MockGateway{}
	s := newCheckoutTestServer(t, ping, gw, service.CheckoutConfig{})
	s.gw = gw
	return s
}

// newCheckoutTestServer wires the router around gw. Unset URLs default to
// http://api.test and http://web.test.
func newCheckoutTestServer(t *testing.T, ping error, gw service.PaymentGateway, cfg service.CheckoutConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://api.test"
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://web.test"
	}

	st := testutils.NewMemoryStore()
	pub := &testutils.RecordingPublisher{}
	tokens := auth.NewTokenManager("test-secret", 0)

	checkout := service.NewCheckoutService(st, st, gw, pub, nil, cfg)
	h := NewHandler(
		service.NewUserService(st, tokens),
		service.NewCourseService(st),
		checkout,
		tokens,
		fakePinger{err: ping},
		[]string{"*"},
	)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, store: st, publisher: pub, tokens: tokens}
}

func (s *testServer) do(method, path string, body interface{}, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestWelcomeAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, welcomeMessage, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = s.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/ready", nil, http.Header{requestIDHeader: {"rid-1"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "rid-1", w.Header().Get(requestIDHeader))
}

func TestReadyReportsStoreOutage(t *testing.T) {
	s := newTestServer(t, errors.New("server selection timeout"))
	w := s.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRegisterThenLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/user", map[string]string{"email": "a@x.com", "name": "A"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var created service.RegisterResult
	decode(t, w, &created)
	assert.Equal(t, "User created", created.Message)

	email, err := s.tokens.Verify(created.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)

	w = s.do(http.MethodPost, "/user", map[string]string{"email": "a@x.com", "name": "Changed"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var login service.RegisterResult
	decode(t, w, &login)
	assert.Equal(t, "Login success", login.Message)
	assert.NotEmpty(t, login.Token)

	w = s.do(http.MethodGet, "/user/a@x.com", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user models.User
	decode(t, w, &user)
	assert.Equal(t, "A", user.Name)

	w = s.do(http.MethodGet, "/users", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	decode(t, w, &users)
	assert.Len(t, users, 1)

	w = s.do(http.MethodPost, "/user", map[string]string{"name": "no email"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name   string
		header http.Header
		body   string
	}{
		{"no header", nil, "Authorization header missing"},
		{"no token", http.Header{"Authorization": {"Bearer"}}, "Token missing"},
		{"bad token", bearer("garbage"), "Invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/courses", map[string]string{"title": "x"}, tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tc.body, w.Body.String())
		})
	}
}

func TestProfileEditRequiresOwner(t *testing.T) {
	s := newTestServer(t, nil)
	token, err := s.tokens.Issue("a@x.com")
	require.NoError(t, err)

	w := s.do(http.MethodPatch, "/user/a@x.com", map[string]string{"phone": "0170"}, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPatch, "/user/b@y.com", map[string]string{"phone": "0170"}, bearer(token))
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "PermissionDenied", body["error"])
}

func TestCourseRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	token, err := s.tokens.Issue("t@x.com")
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/courses", map[string]interface{}{"title": "Algebra", "price": 500}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		InsertedID string        `json:"insertedId"`
		Course     models.Course `json:"course"`
	}
	decode(t, w, &created)
	assert.Equal(t, "t@x.com", created.Course.UserEmail)

	w = s.do(http.MethodGet, "/courses/t@x.com", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var owned []models.Course
	decode(t, w, &owned)
	assert.Len(t, owned, 1)

	w = s.do(http.MethodPatch, "/course/edit/"+created.InsertedID, map[string]interface{}{"level": "Beginner"}, bearer(token))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/course/"+created.InsertedID, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var course models.Course
	decode(t, w, &course)
	assert.Equal(t, "Beginner", course.Level)

	w = s.do(http.MethodGet, "/course/not-hex", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, "/course/"+created.InsertedID, nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	var deleted map[string]int64
	decode(t, w, &deleted)
	assert.EqualValues(t, 1, deleted["deletedCount"])

	w = s.do(http.MethodGet, "/course/"+created.InsertedID, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "NotFound", body["error"])
}

func TestCreateCourseAcceptsStringPrice(t *testing.T) {
	s := newTestServer(t, nil)
	token, err := s.tokens.Issue("t@x.com")
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/courses", map[string]interface{}{"title": "Algebra", "price": "500"}, bearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Course models.Course `json:"course"`
	}
	decode(t, w, &created)
	assert.Equal(t, 500.0, created.Course.Price)

	w = s.do(http.MethodPost, "/courses", map[string]interface{}{"title": "Algebra", "price": "free"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/courses", map[string]interface{}{"title": "Algebra", "price": "-1"}, bearer(token))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func (s *testServer) placeOrder(t *testing.T, courseID string) service.CreateOrderResponse {
	t.Helper()
	w := s.do(http.MethodPost, "/orders", map[string]string{
		"productId": courseID,
		"name":      "Bob",
		"email":     "b@y.com",
		"phone":     "01700000000",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp service.CreateOrderResponse
	decode(t, w, &resp)
	return resp
}

func TestCheckoutSuccess(t *testing.T) {
	s := newTestServer(t, nil)
	instructor, err := s.tokens.Issue("a@x.com")
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/courses", map[string]interface{}{
		"title": "Algebra", "price": 500, "userEmail": "a@x.com",
	}, bearer(instructor))
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		InsertedID string `json:"insertedId"`
	}
	decode(t, w, &created)
	courseID := created.InsertedID

	s.gw.On("InitSession", mock.Anything, mock.Anything).
		Return(&gateway.SessionResponse{Status: "SUCCESS", GatewayPageURL: "https://gw/pay/1"}, nil)

	order := s.placeOrder(t, courseID)
	assert.Equal(t, "https://gw/pay/1", order.URL)

	p, err := s.store.GetPaymentByTransactionID(context.Background(), order.TransactionID)
	require.NoError(t, err)
	assert.False(t, p.Paid)
	assert.Equal(t, 500.0, p.Price)

	w = s.postForm("/payment/success/"+order.TransactionID, url.Values{"val_id": {"v1"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://web.test/payment/success/"+order.TransactionID, w.Header().Get("Location"))

	p, err = s.store.GetPaymentByTransactionID(context.Background(), order.TransactionID)
	require.NoError(t, err)
	assert.True(t, p.Paid)
	require.NotNil(t, p.PaidAt)

	// redelivery is acknowledged the same way
	w = s.postForm("/payment/success/"+order.TransactionID, url.Values{"val_id": {"v1"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)

	token, err := s.tokens.Issue("b@y.com")
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/payments/"+order.TransactionID, nil, bearer(token))
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Payment
	decode(t, w, &got)
	assert.True(t, got.Paid)

	other, err := s.tokens.Issue("eve@x.com")
	require.NoError(t, err)
	w = s.do(http.MethodGet, "/payments/"+order.TransactionID, nil, bearer(other))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutCancel(t *testing.T) {
	s := newTestServer(t, nil)
	courseID := s.store.AddCourse(models.Course{Title: "Algebra", Price: 500})
	s.gw.On("InitSession", mock.Anything, mock.Anything).
		Return(&gateway.SessionResponse{Status: "SUCCESS", GatewayPageURL: "https://gw/pay/1"}, nil)

	order := s.placeOrder(t, courseID)

	w := s.postForm("/payment/cancel/"+order.TransactionID, url.Values{})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://web.test/payment/cancel/"+order.TransactionID, w.Header().Get("Location"))

	_, err := s.store.GetPaymentByTransactionID(context.Background(), order.TransactionID)
	assert.ErrorIs(t, err, errdefs.ErrNotFound)

	w = s.postForm("/payment/cancel/nonexistent", url.Values{})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://web.test/payment/cancel/nonexistent", w.Header().Get("Location"))

	// tran_id can also arrive in the form only
	w = s.postForm("/payment/fail", url.Values{"tran_id": {"other"}})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "http://web.test/payment/fail/other", w.Header().Get("Location"))
}

func TestCheckoutGatewayFailure(t *testing.T) {
	s := newTestServer(t, nil)
	courseID := s.store.AddCourse(models.Course{Title: "Algebra", Price: 500})
	s.gw.On("InitSession", mock.Anything, mock.Anything).
		Return(nil, errdefs.ErrPaymentGateway)

	w := s.do(http.MethodPost, "/orders", map[string]string{"productId": courseID, "email": "b@y.com"}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "PaymentGatewayError", body["error"])
	assert.Zero(t, s.store.PaymentCount())
}

func TestCreateOrderValidation(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/orders", map[string]string{"email": "b@y.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/orders", map[string]string{"productId": "65a000000000000000000009", "email": "b@y.com"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPaymentIPN(t *testing.T) {
	s := newTestServer(t, nil)
	courseID := s.store.AddCourse(models.Course{Title: "Algebra", Price: 500})
	s.gw.On("InitSession", mock.Anything, mock.Anything).
		Return(&gateway.SessionResponse{Status: "SUCCESS", GatewayPageURL: "https://gw/pay/1"}, nil)
	order := s.placeOrder(t, courseID)

	w := s.postForm("/payment/ipn", url.Values{"tran_id": {order.TransactionID}, "status": {"VALID"}})
	require.Equal(t, http.StatusOK, w.Code)
	var ack service.CallbackAck
	decode(t, w, &ack)
	assert.True(t, ack.Matched)
	assert.Equal(t, models.OutcomeSuccess, ack.Outcome)

	w = s.postForm("/payment/ipn", url.Values{"tran_id": {order.TransactionID}, "status": {"WHATEVER"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/courses", nil)
	req.Header.Set("Origin", "http://web.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSignedCheckoutCallbacks(t *testing.T) {
	const password = "academix@ssl"

	sslcommerz := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/gwprocess/v4/api.php":
			assert.NoError(t, r.ParseForm())
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":         "SUCCESS",
				"sessionkey":     "sess-" + r.PostForm.Get("tran_id"),
				"GatewayPageURL": "https://sandbox.test/pay/" + r.PostForm.Get("tran_id"),
			})
		case "/validator/api/validationserverAPI.php":
			valID := r.URL.Query().Get("val_id")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "VALID",
				"val_id":  valID,
				"tran_id": strings.TrimPrefix(valID, "val-"),
				"amount":  "500.00",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(sslcommerz.Close)

	client := gateway.NewClient(&config.GatewayConfig{
		StoreID:       "academix",
		StorePassword: password,
		Timeout:       5 * time.Second,
	}, gateway.WithBaseURL(sslcommerz.URL))
	s := newCheckoutTestServer(t, nil, client, service.CheckoutConfig{VerifyCallbacks: true, ValidateSuccess: true})

	courseID := s.store.AddCourse(models.Course{Title: "Algebra", Price: 500, UserEmail: "a@x.com"})
	order := s.placeOrder(t, courseID)
	assert.Equal(t, "https://sandbox.test/pay/"+order.TransactionID, order.URL)

	signed := func(status string) url.Values {
		keys := []string{"amount", "status", "tran_id", "val_id"}
		form := url.Values{
			"tran_id": {order.TransactionID},
			"val_id":  {"val-" + order.TransactionID},
			"amount":  {"500.00"},
			"status":  {status},
		}
		form.Set("verify_key", strings.Join(keys, ","))
		form.Set("verify_sign", gateway.Sign(form, keys, password))
		return form
	}
	paid := func() bool {
		p, err := s.store.GetPaymentByTransactionID(context.Background(), order.TransactionID)
		require.NoError(t, err)
		return p.Paid
	}
	successPath := "/payment/success/" + order.TransactionID

	w := s.postForm(successPath, url.Values{"tran_id": {order.TransactionID}, "status": {"VALID"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	forged := signed("VALID")
	forged.Set("amount", "1.00")
	w = s.postForm(successPath, forged)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// a genuine fail callback replayed against the success route
	w = s.postForm(successPath, signed("FAILED"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, paid())

	w = s.postForm(successPath, signed("VALID"))
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	assert.Equal(t, "http://web.test"+successPath, w.Header().Get("Location"))
	assert.True(t, paid())
	assert.Equal(t, []string{models.EventTypePaymentCreated, models.EventTypePaymentPaid}, s.publisher.EventTypes())
}
