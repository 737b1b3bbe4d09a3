package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(t *testing.T, role string) map[string]string {
	t.Helper()
	token, err := utils.JwtGenerate("staff-1", role, time.Hour)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAdminRoutes_RequireAdminToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/api/admin/mpesa-transactions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/admin/mpesa-transactions", "", map[string]string{"Authorization": "Bearer not-a-token"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/admin/mpesa-transactions", "", bearer(t, "tenant"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/admin/mpesa-transactions", "", bearer(t, utils.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListMpesaTransactions(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	s := newTestServer(t)
	ctx := context.Background()
	for _, row := range []models.MpesaTransaction{
		{TransactionId: "P1", Status: models.InboundStatusPendingReview},
		{TransactionId: "P2", Status: models.InboundStatusPendingReview},
		{TransactionId: "C1", Status: models.InboundStatusCompleted, Matched: true},
	} {
		row := row
		_, err := s.store.MpesaTransactions().InsertIfAbsent(ctx, &row)
		require.NoError(t, err)
	}

	type page struct {
		Data   []models.MpesaTransaction `json:"data"`
		Limit  int                       `json:"limit"`
		Offset int                       `json:"offset"`
	}
	get := func(query string) (int, page) {
		w := s.do(http.MethodGet, "/api/admin/mpesa-transactions"+query, "", bearer(t, utils.RoleAdmin))
		var p page
		if w.Code == http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		}
		return w.Code, p
	}

	code, p := get("")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, p.Data, 2)
	assert.Equal(t, 50, p.Limit)

	_, p = get("?status=completed")
	require.Len(t, p.Data, 1)
	assert.Equal(t, "C1", p.Data[0].TransactionId)

	_, p = get("?status=all&limit=2")
	assert.Len(t, p.Data, 2)
	assert.Equal(t, 2, p.Limit)

	code, _ = get("?status=bogus")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecordPayment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	s := newTestServer(t)
	path := "/api/admin/rent-records/" + s.record.ID + "/payments"
	admin := bearer(t, utils.RoleAdmin)

	w := s.do(http.MethodPost, path, `{"amount":"5000","payment_method":"cash","payment_date":"2024-01-10","reference_number":"R-1"}`, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var body struct {
		Payment    models.Payment       `json:"payment"`
		RentRecord models.BillingRecord `json:"rent_record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.BillingStatusPartial, body.RentRecord.Status)
	require.NotNil(t, body.Payment.RecordedBy)
	assert.Equal(t, "staff-1", *body.Payment.RecordedBy)
	assert.True(t, body.RentRecord.AmountPaid.Equal(decimal.NewFromInt(5000)))

	w = s.do(http.MethodPost, path, `{"amount":"5000","payment_method":"cash","payment_date":"2024-01-10","reference_number":"R-1"}`, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, path, `{"amount":"5000","payment_method":"cheque","payment_date":"2024-01-10"}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, `{"amount":"5000","payment_method":"cash","payment_date":"10/01/2024"}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, path, `{"amount":"-1","payment_method":"cash","payment_date":"2024-01-10"}`, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/admin/rent-records/missing/payments", `{"amount":"1","payment_method":"cash","payment_date":"2024-01-10"}`, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecordPayment_BlankReferenceIsNoReference(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	s := newTestServer(t)
	path := "/api/admin/rent-records/" + s.record.ID + "/payments"
	admin := bearer(t, utils.RoleAdmin)

	for i := 0; i < 2; i++ {
		w := s.do(http.MethodPost, path, `{"amount":"1000","payment_method":"cash","payment_date":"2024-01-10","reference_number":""}`, admin)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var body struct {
			Payment models.Payment `json:"payment"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Nil(t, body.Payment.ReferenceNumber)
	}

	rec, err := s.store.BillingRecords().GetByID(context.Background(), s.record.ID, false)
	require.NoError(t, err)
	assert.True(t, rec.AmountPaid.Equal(decimal.NewFromInt(2000)))
}
