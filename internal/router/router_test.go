package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bookinghandler "github.com/jwalitptl/consult-api/internal/handler/booking"
	"github.com/jwalitptl/consult-api/internal/handler/health"
	paymenthandler "github.com/jwalitptl/consult-api/internal/handler/payment"
	providerhandler "github.com/jwalitptl/consult-api/internal/handler/provider"
	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/internal/repository/memory"
	"github.com/jwalitptl/consult-api/internal/router"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	"github.com/jwalitptl/consult-api/internal/service/booking"
	"github.com/jwalitptl/consult-api/internal/service/flag"
	"github.com/jwalitptl/consult-api/internal/service/provider"
	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/logger"
	"github.com/jwalitptl/consult-api/pkg/metrics"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testAPI struct {
	t      *testing.T
	engine *gin.Engine
	tokens *auth.TokenParser
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	require.NoError(t, middleware.RegisterValidation())

	store := memory.NewStore()
	log := logger.Nop()
	m := metrics.New("test")

	providers := provider.NewService(store.Providers(), "LKR", log)
	calendar := availability.NewService(store.Providers(), store.Availability(), store.Bookings(),
		availability.Config{Location: time.UTC}, log, m)
	bookings := booking.NewService(store.Bookings(), log, m)
	flags := flag.NewService(store.Bookings(), log)

	tokens := auth.NewTokenParser("test-secret")
	r, err := router.NewRouter(router.RouterConfig{
		Mode:          gin.TestMode,
		MetricsPrefix: "consult_http",
		Tokens:        tokens,
		Logger:        zerolog.Nop(),
		CORSConfig:    middleware.DefaultCORSConfig(),
		Registry:      prometheus.NewRegistry(),
	},
		health.NewHandler(nil),
		bookinghandler.NewHandler(bookings, flags),
		providerhandler.NewHandler(providers, calendar),
		paymenthandler.NewHandler(bookings),
	)
	require.NoError(t, err)
	r.Setup()

	return &testAPI{t: t, engine: r.Engine(), tokens: tokens}
}

func (a *testAPI) do(method, path string, body interface{}, headers ...string) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

type bookingView struct {
	ID            uuid.UUID `json:"id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	Amount        int64     `json:"amount"`
	Flags         []struct {
		ID      uuid.UUID `json:"id"`
		Type    string    `json:"type"`
		Message string    `json:"message"`
	} `json:"flags"`
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func seedProvider(t *testing.T, api *testAPI) (uuid.UUID, string) {
	t.Helper()
	providerID := uuid.New()
	today := time.Now().UTC().Format("2006-01-02")

	code, _ := api.do(http.MethodPut, "/api/v1/providers/"+providerID.String(), map[string]interface{}{
		"name":             "Dr. Perera",
		"consultation_fee": 2500,
	})
	require.Equal(t, http.StatusOK, code)

	code, env := api.do(http.MethodPut, "/api/v1/providers/"+providerID.String()+"/availability/week", map[string]interface{}{
		"days": []map[string]interface{}{{
			"date":         today,
			"is_available": true,
			"slots": []map[string]string{
				{"start_time": "09:00", "end_time": "09:30"},
				{"start_time": "09:30", "end_time": "10:00"},
			},
		}},
	})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	return providerID, today
}

func bookingBody(providerID uuid.UUID, requester uuid.UUID, date, clock string) map[string]interface{} {
	return map[string]interface{}{
		"provider_id":  providerID,
		"requester_id": requester,
		"date":         date,
		"time":         clock,
		"name":         "Nimal",
		"email":        "nimal@example.com",
		"phone":        "+94770000000",
		"reference":    "PAY-" + requester.String()[:8],
	}
}

func TestBookingLifecycle(t *testing.T) {
	api := newTestAPI(t)
	providerID, today := seedProvider(t, api)
	alice, bob := uuid.New(), uuid.New()

	code, env := api.do(http.MethodPost, "/api/v1/bookings", bookingBody(providerID, alice, today, "09:00"))
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	created := decode[bookingView](t, env.Data)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, int64(2500), created.Amount)

	code, env = api.do(http.MethodPost, "/api/v1/bookings", bookingBody(providerID, bob, today, "09:00"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, int(errors.CodeConflict), env.Error.Code)

	code, env = api.do(http.MethodPost, "/api/v1/bookings", bookingBody(providerID, alice, today, "09:00"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, int(errors.CodeDuplicateRequest), env.Error.Code)

	code, env = api.do(http.MethodPost, "/api/v1/bookings", bookingBody(providerID, bob, today, "11:00"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, int(errors.CodeSlotUnavailable), env.Error.Code)

	code, env = api.do(http.MethodGet, "/api/v1/providers/"+providerID.String()+"/availability/"+today+"/open-slots", nil)
	require.Equal(t, http.StatusOK, code)
	for _, s := range decode[[]map[string]string](t, env.Data) {
		assert.NotEqual(t, "09:00", s["start_time"])
	}

	code, env = api.do(http.MethodPost, "/api/v1/payments/refund", map[string]interface{}{"booking_id": created.ID})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	refunded := decode[bookingView](t, env.Data)
	assert.Equal(t, "refunded", refunded.PaymentStatus)
	assert.Equal(t, "pending", refunded.Status)
	require.Len(t, refunded.Flags, 1)
	assert.Equal(t, "info", refunded.Flags[0].Type)

	code, env = api.do(http.MethodPatch, "/api/v1/bookings/"+created.ID.String()+"/status", map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	assert.Equal(t, "confirmed", decode[bookingView](t, env.Data).Status)

	code, env = api.do(http.MethodPost, "/api/v1/payments/refund", map[string]interface{}{"booking_id": created.ID})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, int(errors.CodeRefundNotPermitted), env.Error.Code)

	code, env = api.do(http.MethodGet, "/api/v1/bookings/transactions?providerId="+providerID.String(), nil)
	require.Equal(t, http.StatusOK, code, "%+v", env.Error)
	report := decode[struct {
		Transactions []bookingView `json:"transactions"`
		Summary      struct {
			TotalAmount          int64 `json:"total_amount"`
			TotalTransactions    int64 `json:"total_transactions"`
			RefundedTransactions int64 `json:"refunded_transactions"`
		} `json:"summary"`
		Pagination struct {
			Page  int   `json:"page"`
			Total int64 `json:"total"`
		} `json:"pagination"`
	}](t, env.Data)
	assert.Len(t, report.Transactions, 1)
	assert.Equal(t, int64(1), report.Summary.TotalTransactions)
	assert.Equal(t, int64(1), report.Summary.RefundedTransactions)
	assert.Equal(t, int64(2500), report.Summary.TotalAmount)
	assert.Equal(t, 1, report.Pagination.Page)
	assert.Equal(t, int64(1), report.Pagination.Total)

	code, _ = api.do(http.MethodDelete, "/api/v1/bookings/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(http.MethodGet, "/api/v1/bookings/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestFlags(t *testing.T) {
	api := newTestAPI(t)
	providerID, today := seedProvider(t, api)

	code, env := api.do(http.MethodPost, "/api/v1/bookings", bookingBody(providerID, uuid.New(), today, "09:30"))
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
	id := decode[bookingView](t, env.Data).ID.String()

	var flagIDs []string
	for _, msg := range []string{"first", "second", "third"} {
		code, env = api.do(http.MethodPost, "/api/v1/bookings/"+id+"/flags", map[string]string{
			"type": "warning", "message": msg, "created_by": "desk",
		})
		require.Equal(t, http.StatusCreated, code, "%+v", env.Error)
		flagIDs = append(flagIDs, decode[map[string]string](t, env.Data)["id"])
	}

	code, env = api.do(http.MethodPost, "/api/v1/bookings/"+id+"/flags", map[string]string{
		"type": "urgent", "message": "x", "created_by": "desk",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, int(errors.CodeInvalidFlagType), env.Error.Code)

	code, _ = api.do(http.MethodDelete, "/api/v1/bookings/"+id+"/flags/"+flagIDs[1], nil)
	require.Equal(t, http.StatusOK, code)

	code, env = api.do(http.MethodGet, "/api/v1/bookings/"+id+"/flags", nil)
	require.Equal(t, http.StatusOK, code)
	flags := decode[[]map[string]string](t, env.Data)
	require.Len(t, flags, 2)
	assert.Equal(t, "first", flags[0]["message"])
	assert.Equal(t, "third", flags[1]["message"])
}

func TestRequesterFromToken(t *testing.T) {
	api := newTestAPI(t)
	providerID, today := seedProvider(t, api)
	requester := uuid.New()

	token, err := api.tokens.Sign(requester, time.Hour)
	require.NoError(t, err)

	body := bookingBody(providerID, uuid.New(), today, "09:00")
	code, env := api.do(http.MethodPost, "/api/v1/bookings", body, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusCreated, code, "%+v", env.Error)

	code, env = api.do(http.MethodGet, "/api/v1/bookings/requester/"+requester.String(), nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decode[[]bookingView](t, env.Data), 1)

	code, _ = api.do(http.MethodGet, "/api/v1/bookings/requester/"+requester.String(), nil, "Authorization", "Bearer junk")
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	providerID, today := seedProvider(t, api)

	tests := []struct {
		name string
		body interface{}
	}{
		{"unknown field", `{"provider_id":"` + providerID.String() + `","date":"` + today + `","time":"09:00","name":"a","email":"a@b.co","phone":"1","extra":true}`},
		{"bad clock", bookingBody(providerID, uuid.New(), today, "9:00")},
		{"bad date", bookingBody(providerID, uuid.New(), "2026-1-5", "09:00")},
		{"malformed json", `{"provider_id":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := api.do(http.MethodPost, "/api/v1/bookings", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, int(errors.CodeBadRequest), env.Error.Code)
		})
	}

	code, _ := api.do(http.MethodGet, "/api/v1/bookings/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestOperationalEndpoints(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "consult_http_requests_total")
}
