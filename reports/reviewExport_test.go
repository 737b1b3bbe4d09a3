package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestWriteReviewWorkbook(t *testing.T) {
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	reason := "unit not found: Z999"
	txns := []models.MpesaTransaction{{
		TransactionId:   "QX2",
		TransactionDate: time.Date(2024, time.January, 15, 6, 30, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("15000.50"),
		AccountNumber:   "Z999",
		PhoneNumber:     "+254712345678",
		Status:          models.InboundStatusPendingReview,
		ErrorMessage:    &reason,
		CreatedAt:       time.Date(2024, time.January, 15, 6, 30, 5, 0, time.UTC),
		CorrelationId:   "cid-1",
	}}

	var buf bytes.Buffer
	if err := WriteReviewWorkbook(&buf, txns, nairobi); err != nil {
		t.Fatalf("WriteReviewWorkbook: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(ReviewSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected heading + 1 row, got %d", len(rows))
	}
	if rows[0][0] != "TransactionId" || rows[0][7] != "Reason" {
		t.Fatalf("unexpected headings: %v", rows[0])
	}
	row := rows[1]
	expect := map[int]string{
		0: "QX2",
		1: "2024-01-15 09:30:00",
		2: "15000.5",
		3: "Z999",
		7: reason,
		8: "2024-01-15 09:30:05",
		9: "cid-1",
	}
	for idx, want := range expect {
		if idx >= len(row) || row[idx] != want {
			t.Fatalf("column %d: expected %q, got %v", idx, want, row)
		}
	}
}

func TestBuildReviewWorkbook_Empty(t *testing.T) {
	f, err := BuildReviewWorkbook(nil, nil)
	if err != nil {
		t.Fatalf("BuildReviewWorkbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(ReviewSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the heading row, got %d", len(rows))
	}
}
