package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/reports"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func main() {
	status := flag.String("status", string(models.InboundStatusPendingReview), "pending_review, completed or all")
	limit := flag.Int("limit", 5000, "Maximum rows to export")
	out := flag.String("out", "", "Output .xlsx path (default mpesa-review-<timestamp>.xlsx)")
	bucket := flag.String("gcs-bucket", "", "Optional: also upload the workbook to this GCS bucket")
	flag.Parse()

	var st models.InboundStatus
	switch *status {
	case string(models.InboundStatusPendingReview), string(models.InboundStatusCompleted):
		st = models.InboundStatus(*status)
	case "all":
	default:
		fmt.Fprintln(os.Stderr, "--status must be pending_review, completed or all")
		os.Exit(1)
	}

	loc := config.ProviderLocation()
	name := strings.TrimSpace(*out)
	if name == "" {
		name = fmt.Sprintf("mpesa-review-%s.xlsx", time.Now().In(loc).Format("20060102-150405"))
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	store := repository.NewGormStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	txns, err := store.MpesaTransactions().ListByStatus(ctx, st, *limit, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list transactions: %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := reports.WriteReviewWorkbook(&buf, txns, loc); err != nil {
		fmt.Fprintf(os.Stderr, "build workbook: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(name, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
		os.Exit(1)
	}
	fmt.Printf("exported %d transactions to %s\n", len(txns), name)

	if strings.TrimSpace(*bucket) != "" {
		uri, err := utils.UploadBytesToGCS(ctx, *bucket, "mpesa-review/"+filepath.Base(name), buf.Bytes(), xlsxContentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded to %s\n", uri)
	}
}
