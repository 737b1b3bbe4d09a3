package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/mpesa"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/sirupsen/logrus"
)

const maxCallbackBodyBytes = 1 << 20

type CallbackReconciler interface {
	Reconcile(ctx context.Context, txn mpesa.Transaction, now time.Time) (workflow.Result, error)
}

// MpesaCallbackHandler always answers the provider with Accepted. Problems are
// logged; whatever could be recorded has been by the time it responds.
func MpesaCallbackHandler(reconciler CallbackReconciler, opts CallbackOptions) gin.HandlerFunc {
	logger := opts.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				config.LogError(logger, "handlers", "MpesaCallbackHandler", "panic", nil, fmt.Errorf("%v", p))
				c.JSON(http.StatusOK, mpesa.Accepted)
			}
		}()

		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBodyBytes))
		if err != nil {
			config.LogError(logger, "handlers", "MpesaCallbackHandler", "io.ReadAll", cid, err)
			c.JSON(http.StatusOK, mpesa.Accepted)
			return
		}

		receivedAt := now()
		var txn mpesa.Transaction
		cb, err := mpesa.Decode(body)
		switch {
		case err == nil:
			txn = mpesa.Normalize(cb, body, mpesa.NormalizeOptions{
				Location:    opts.Location,
				PhoneRegion: opts.PhoneRegion,
				ReceivedAt:  receivedAt,
			})
		case errors.Is(err, mpesa.ErrMalformedPayload) && cb.TransID != "":
			config.LogError(logger, "handlers", "MpesaCallbackHandler", "mpesa.Decode", cb.TransID.String(), err)
			txn = mpesa.Malformed(cb.TransID.String(), body, receivedAt, err)
		default:
			// No transaction id means nothing to key an audit row on.
			config.LogError(logger, "handlers", "MpesaCallbackHandler", "mpesa.Decode", string(body), err)
			c.JSON(http.StatusOK, mpesa.Accepted)
			return
		}

		// The provider may hang up; once started, the write runs to completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), opts.timeout())
		defer cancel()

		res, err := reconciler.Reconcile(ctx, txn, receivedAt)
		if err != nil {
			config.LogError(logger, "handlers", "MpesaCallbackHandler", "Reconcile", txn.TransactionID, err)
			c.JSON(http.StatusOK, mpesa.Accepted)
			return
		}

		logger.WithFields(logrus.Fields{
			"field":          "MpesaCallbackHandler",
			"transaction_id": txn.TransactionID,
			"outcome":        res.Outcome,
			"reason":         res.Reason,
			"correlation_id": cid,
		}).Info("mpesa callback handled")
		c.JSON(http.StatusOK, mpesa.Accepted)
	}
}

type CallbackOptions struct {
	Logger      *logrus.Logger
	Location    *time.Location
	PhoneRegion string
	Now         func() time.Time
	Timeout     time.Duration
}

func (o CallbackOptions) timeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	return 30 * time.Second
}
