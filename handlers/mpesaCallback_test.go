package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/mpesa"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var handlerNow = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type testServer struct {
	store  *repository.MemoryStore
	router *gin.Engine
	record models.BillingRecord
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	unit := &models.Unit{PropertyId: "prop-1", UnitNumber: "A101", MonthlyRent: decimal.NewFromInt(15000)}
	require.NoError(t, store.Units().Create(ctx, unit))
	tenant := &models.Tenant{UserId: "user-1", UnitId: &unit.ID}
	require.NoError(t, store.Tenants().Create(ctx, tenant))
	rec := &models.BillingRecord{
		TenantId:  tenant.ID,
		UnitId:    unit.ID,
		MonthYear: models.PeriodKey(handlerNow, time.UTC),
		AmountDue: decimal.NewFromInt(15000),
		DueDate:   time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.BillingRecords().Create(ctx, rec))

	logger := quietLogger()
	reconciler := &workflow.Reconciler{
		Store:             store,
		Logger:            logger,
		Location:          time.UTC,
		Overpayment:       models.OverpaymentAccept,
		MaxBalanceRetries: workflow.DefaultBalanceRetries,
	}
	recorder := &workflow.PaymentRecorder{Store: store, Logger: logger, MaxBalanceRetries: workflow.DefaultBalanceRetries}

	r := NewRouter(Dependencies{
		Store:       store,
		Reconciler:  reconciler,
		Recorder:    recorder,
		Logger:      logger,
		Location:    time.UTC,
		PhoneRegion: "KE",
	})
	// Pin the clock so the rent record for January is "current".
	r.POST("/test/mpesa/callback", MpesaCallbackHandler(reconciler, CallbackOptions{
		Logger: logger, Location: time.UTC, PhoneRegion: "KE",
		Now: func() time.Time { return handlerNow },
	}))
	return &testServer{store: store, router: r, record: *rec}
}

func (s *testServer) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func assertAccepted(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code)
	var ack mpesa.Ack
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ack))
	assert.Equal(t, mpesa.Accepted, ack)
}

func TestMpesaCallback_AppliesPayment(t *testing.T) {
	s := newTestServer(t)
	body := `{"TransID":"QX1","TransTime":"20240115093000","TransAmount":"15000","BillRefNumber":"a101","MSISDN":"254712345678"}`

	w := s.do(http.MethodPost, "/test/mpesa/callback", body, map[string]string{"x-correlation-id": "cid-1"})
	assertAccepted(t, w)
	assert.Equal(t, "cid-1", w.Header().Get("x-correlation-id"))

	rec, err := s.store.BillingRecords().GetByID(context.Background(), s.record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusPaid, rec.Status)

	audit, err := s.store.MpesaTransactions().GetByTransactionID(context.Background(), "QX1")
	require.NoError(t, err)
	assert.Equal(t, "cid-1", audit.CorrelationId)
	assert.JSONEq(t, body, string(audit.RawPayload))

	// The provider retries; the answer is the same and nothing moves.
	assertAccepted(t, s.do(http.MethodPost, "/test/mpesa/callback", body, nil))
	rec2, err := s.store.BillingRecords().GetByID(context.Background(), s.record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, rec.Version, rec2.Version)
}

func TestMpesaCallback_AlwaysAccepts(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"not json":       `{"TransID":`,
		"no trans id":    `{"TransAmount":"100","BillRefNumber":"A101"}`,
		"empty body":     ``,
		"unknown unit":   `{"TransID":"QX2","TransTime":"20240115093000","TransAmount":"100","BillRefNumber":"ZZZ"}`,
		"garbage amount": `{"TransID":"QX3","TransTime":"20240115093000","TransAmount":"lots","BillRefNumber":"A101"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assertAccepted(t, s.do(http.MethodPost, "/api/mpesa/callback", body, nil))
		})
	}

	pending, err := s.store.MpesaTransactions().ListByStatus(context.Background(), models.InboundStatusPendingReview, 0, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2, "only callbacks with a TransID leave an audit row")
}

type failingReconciler struct {
	err   error
	panic bool
}

func (f failingReconciler) Reconcile(ctx context.Context, txn mpesa.Transaction, now time.Time) (workflow.Result, error) {
	if f.panic {
		panic("boom")
	}
	return workflow.Result{}, f.err
}

func TestMpesaCallback_AcceptsOnInternalFailure(t *testing.T) {
	body := `{"TransID":"QX9","TransTime":"20240115093000","TransAmount":"100","BillRefNumber":"A101"}`
	for _, rec := range []failingReconciler{{err: errors.New("db down")}, {panic: true}} {
		r := gin.New()
		r.POST("/cb", MpesaCallbackHandler(rec, CallbackOptions{Logger: quietLogger()}))
		req := httptest.NewRequest(http.MethodPost, "/cb", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assertAccepted(t, w)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestMpesaCallback_NumericFieldsStillApply(t *testing.T) {
	s := newTestServer(t)
	body := `{"TransID":"QXNUM","TransTime":20240115093000,"TransAmount":15000,"BillRefNumber":"A101","MSISDN":254712345678}`

	assertAccepted(t, s.do(http.MethodPost, "/test/mpesa/callback", body, nil))

	audit, err := s.store.MpesaTransactions().GetByTransactionID(context.Background(), "QXNUM")
	require.NoError(t, err)
	assert.Equal(t, models.InboundStatusCompleted, audit.Status)
	rec, err := s.store.BillingRecords().GetByID(context.Background(), s.record.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.BillingStatusPaid, rec.Status)
}

func TestMpesaCallback_UndecodableFieldParksForReview(t *testing.T) {
	s := newTestServer(t)
	cases := map[string]string{
		"QXOBJ": `{"TransID":"QXOBJ","TransTime":"20240115093000","TransAmount":{"value":15000},"BillRefNumber":"A101"}`,
		"98765": `{"TransID":98765,"TransTime":"20240115093000","TransAmount":"15000","BillRefNumber":["A101"]}`,
	}
	for id, body := range cases {
		t.Run(id, func(t *testing.T) {
			assertAccepted(t, s.do(http.MethodPost, "/test/mpesa/callback", body, nil))

			audit, err := s.store.MpesaTransactions().GetByTransactionID(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, models.InboundStatusPendingReview, audit.Status)
			assert.False(t, audit.Matched)
			require.NotNil(t, audit.ErrorMessage)
			assert.True(t, strings.HasPrefix(*audit.ErrorMessage, "malformed payload"), *audit.ErrorMessage)
			assert.JSONEq(t, body, string(audit.RawPayload))
		})
	}

	rec, err := s.store.BillingRecords().GetByID(context.Background(), s.record.ID, false)
	require.NoError(t, err)
	assert.True(t, rec.AmountPaid.IsZero())
	assert.Empty(t, mustPayments(t, s))
}

func TestMpesaCallback_OversizedAccountReferenceIsClamped(t *testing.T) {
	s := newTestServer(t)
	long := strings.Repeat("A", 5000)
	body := `{"TransID":"QXLONG","TransTime":"20240115093000","TransAmount":"100","BillRefNumber":"` + long + `"}`

	assertAccepted(t, s.do(http.MethodPost, "/test/mpesa/callback", body, nil))

	audit, err := s.store.MpesaTransactions().GetByTransactionID(context.Background(), "QXLONG")
	require.NoError(t, err)
	assert.Equal(t, models.InboundStatusPendingReview, audit.Status)
	assert.Len(t, audit.AccountNumber, mpesa.MaxAccountReferenceLength)
	require.NotNil(t, audit.ErrorMessage)
	assert.Contains(t, *audit.ErrorMessage, "account reference longer than")
}

func mustPayments(t *testing.T, s *testServer) []models.Payment {
	t.Helper()
	payments, err := s.store.Payments().ListByRentRecord(context.Background(), s.record.ID)
	require.NoError(t, err)
	return payments
}
