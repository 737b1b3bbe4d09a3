package reports

import (
	"fmt"
	"io"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/xuri/excelize/v2"
)

const ReviewSheet = "Pending Review"

var reviewHeadings = []string{
	"TransactionId", "TransactionDate", "Amount", "AccountNumber", "PhoneNumber",
	"TenantId", "RentRecordId", "Reason", "ReceivedAt", "CorrelationId",
}

// BuildReviewWorkbook lays out one row per unmatched mobile-money payment for
// whoever works the manual reconciliation queue. Times are shown in loc.
func BuildReviewWorkbook(txns []models.MpesaTransaction, loc *time.Location) (*excelize.File, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", ReviewSheet); err != nil {
		return nil, err
	}

	col := 'A'
	for _, h := range reviewHeadings {
		if err := f.SetCellValue(ReviewSheet, string(col)+"1", h); err != nil {
			return nil, err
		}
		col++
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	lastCol := string(rune('A' + len(reviewHeadings) - 1))
	if err := f.SetCellStyle(ReviewSheet, "A1", lastCol+"1", bold); err != nil {
		return nil, err
	}

	for i, t := range txns {
		row := fmt.Sprint(i + 2)
		values := []interface{}{
			t.TransactionId,
			t.TransactionDate.In(loc).Format("2006-01-02 15:04:05"),
			t.Amount.InexactFloat64(),
			t.AccountNumber,
			t.PhoneNumber,
			derefString(t.TenantId),
			derefString(t.RentRecordId),
			derefString(t.ErrorMessage),
			t.CreatedAt.In(loc).Format("2006-01-02 15:04:05"),
			t.CorrelationId,
		}
		col := 'A'
		for _, v := range values {
			if err := f.SetCellValue(ReviewSheet, string(col)+row, v); err != nil {
				return nil, err
			}
			col++
		}
	}
	if err := f.SetColWidth(ReviewSheet, "A", lastCol, 20); err != nil {
		return nil, err
	}
	return f, nil
}

func WriteReviewWorkbook(w io.Writer, txns []models.MpesaTransaction, loc *time.Location) error {
	f, err := BuildReviewWorkbook(txns, loc)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
