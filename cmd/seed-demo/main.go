package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/shopspring/decimal"
)

func main() {
	unitNumber := flag.String("unit", "A101", "Unit number (the account reference payers use)")
	rent := flag.String("rent", "15000", "Monthly rent")
	dryRun := flag.Bool("dry-run", true, "Print what would be created (no writes)")
	confirm := flag.String("confirm", "", "Type SEED to proceed when dry-run=false")
	flag.Parse()

	amount, err := decimal.NewFromString(strings.TrimSpace(*rent))
	if err != nil || !amount.IsPositive() {
		fmt.Fprintln(os.Stderr, "--rent must be a positive number")
		os.Exit(1)
	}
	code := strings.ToUpper(strings.TrimSpace(*unitNumber))
	loc := config.ProviderLocation()
	now := time.Now().In(loc)
	period := models.PeriodKey(now, loc)
	dueDate := time.Date(now.Year(), now.Month(), 5, 0, 0, 0, 0, time.UTC)

	if *dryRun {
		fmt.Printf("would create unit=%s rent=%s active tenant, rent_record period=%s due=%s\n",
			code, amount.String(), period, dueDate.Format("2006-01-02"))
		return
	}
	if strings.TrimSpace(*confirm) != "SEED" {
		fmt.Fprintln(os.Stderr, "set --confirm=SEED to proceed")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if err := models.MigrateTable(db); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	store := repository.NewGormStore(db)

	err = store.RunInTx(context.Background(), func(ctx context.Context, tx repository.Repositories) error {
		unit := &models.Unit{
			PropertyId:  models.NewID(),
			UnitNumber:  code,
			MonthlyRent: amount,
			Status:      models.UnitStatusOccupied,
		}
		if err := tx.Units().Create(ctx, unit); err != nil {
			return fmt.Errorf("create unit: %w", err)
		}
		moveIn := now.AddDate(0, -1, 0)
		tenant := &models.Tenant{UserId: models.NewID(), UnitId: &unit.ID, MoveInDate: &moveIn}
		if err := tx.Tenants().Create(ctx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		record := &models.BillingRecord{
			TenantId:   tenant.ID,
			UnitId:     unit.ID,
			MonthYear:  period,
			AmountDue:  amount,
			AmountPaid: decimal.Zero,
			DueDate:    dueDate,
			Status:     models.BillingStatusPending,
		}
		if err := tx.BillingRecords().Create(ctx, record); err != nil {
			return fmt.Errorf("create rent record: %w", err)
		}
		fmt.Printf("unit=%s tenant=%s rent_record=%s period=%s\n", unit.ID, tenant.ID, record.ID, period)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}
