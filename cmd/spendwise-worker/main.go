package main

import (
	"context"
	"errors"
	"os"

	"spendwise/internal/amqp"
	"spendwise/internal/backend"
	"spendwise/internal/cli"
	"spendwise/internal/config"
	"spendwise/internal/log"
	"spendwise/internal/sheets"
	gsheet "spendwise/internal/sheets/google"
	sheetmem "spendwise/internal/sheets/memory"
	"spendwise/internal/store"
	"spendwise/internal/worker"
)

func main() {
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting spendwise-worker", log.FieldOperation, log.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	var exporter sheets.ExpenseExporter
	if cfg.SheetsEnabled() {
		exporter, err = gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			Location:           loc,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			return err
		}
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided, exporting in memory")
		exporter = sheetmem.New(loc)
	}

	// The worker checks created events against the store only when it can
	// see the same data as the web process.
	var reader store.Reader
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	if bcfg.Type.Shared() {
		res, err := backend.NewFactory(logger).CreateStore(ctx, bcfg)
		if err != nil {
			return err
		}
		defer res.Cleanup()
		reader = res.Store
	}

	broker, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
	if err != nil {
		return err
	}
	defer broker.Close()

	w := worker.NewExportWorker(exporter, reader, logger)
	defer func() {
		logger.Info("Export totals", "stats", w.Stats())
	}()

	logger.Info("Consuming export queue", "queue", cfg.AMQPExportQueue)
	err = broker.Consume(ctx, amqp.QueueOptions{Name: cfg.AMQPExportQueue}, w.HandleEvent)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
