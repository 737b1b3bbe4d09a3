package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ListMpesaTransactionsHandler serves the review queue (status=pending_review by
// default; completed or all are also accepted).
func ListMpesaTransactionsHandler(repo repository.MpesaTransactionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var status models.InboundStatus
		switch s := strings.TrimSpace(c.DefaultQuery("status", string(models.InboundStatusPendingReview))); s {
		case string(models.InboundStatusPendingReview), string(models.InboundStatusCompleted):
			status = models.InboundStatus(s)
		case "all":
			status = ""
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be pending_review, completed or all"})
			return
		}
		limit := queryInt(c, "limit", defaultPageSize)
		if limit <= 0 || limit > maxPageSize {
			limit = defaultPageSize
		}
		offset := queryInt(c, "offset", 0)
		if offset < 0 {
			offset = 0
		}

		txns, err := repo.ListByStatus(c.Request.Context(), status, limit, offset)
		if err != nil {
			config.LogError(config.GetLogger(), "handlers", "ListMpesaTransactionsHandler", "ListByStatus", status, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list transactions"})
			return
		}
		if txns == nil {
			txns = []models.MpesaTransaction{}
		}
		c.JSON(http.StatusOK, gin.H{"data": txns, "limit": limit, "offset": offset})
	}
}

type recordPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method" binding:"required,oneof=cash mobile_money bank_transfer"`
	PaymentDate     string          `json:"payment_date" binding:"required"`
	ReferenceNumber *string         `json:"reference_number"`
	Notes           *string         `json:"notes"`
}

// RecordPaymentHandler records a staff-entered payment against a rent record.
func RecordPaymentHandler(recorder *workflow.PaymentRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if fields := utils.ProcessValidationErrors(err); len(fields) > 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		paidOn, err := time.Parse("2006-01-02", strings.TrimSpace(req.PaymentDate))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payment_date must be YYYY-MM-DD"})
			return
		}

		by, _ := utils.GetAdminSubjectFromContext(c.Request.Context())
		payment, record, err := recorder.Record(c.Request.Context(), workflow.ManualPayment{
			RentRecordID:    c.Param("id"),
			Amount:          req.Amount,
			Method:          models.PaymentMethod(req.PaymentMethod),
			PaymentDate:     paidOn,
			ReferenceNumber: req.ReferenceNumber,
			Notes:           req.Notes,
			RecordedBy:      by,
		})
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, gin.H{"payment": payment, "rent_record": record})
		case errors.Is(err, workflow.ErrInvalidPayment):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "rent record not found"})
		case errors.Is(err, workflow.ErrDuplicateReference):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, workflow.ErrRetriesExhausted):
			c.JSON(http.StatusConflict, gin.H{"error": "rent record is busy, retry"})
		default:
			config.LogError(config.GetLogger(), "handlers", "RecordPaymentHandler", "Record", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record payment"})
		}
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
