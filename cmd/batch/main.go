package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/kirillkom/crop-advisor/internal/bootstrap"
	"github.com/kirillkom/crop-advisor/internal/config"
	"github.com/kirillkom/crop-advisor/internal/core/domain"
	"github.com/kirillkom/crop-advisor/internal/infrastructure/spreadsheet"
	"github.com/kirillkom/crop-advisor/internal/observability/logging"
)

func main() {
	in := flag.String("in", "", "input workbook (.xlsx)")
	out := flag.String("out", "recommendations.xlsx", "output workbook")
	sheet := flag.String("sheet", "", "input sheet name, defaults to the first sheet")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("batch", cfg.LogLevel))

	if *in == "" {
		slog.Error("batch_input_required", "flag", "-in")
		os.Exit(2)
	}
	if err := run(cfg, *in, *out, *sheet); err != nil {
		slog.Error("batch_failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, in, out, sheet string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	rows, err := spreadsheet.ReadInputs(in, sheet)
	if err != nil {
		return err
	}
	inputs := make([]domain.RawInput, len(rows))
	for i, row := range rows {
		inputs[i] = row.Input
	}

	outcomes, summary, scoreErr := app.BatchUC.Score(ctx, inputs)

	results := make([]spreadsheet.ResultRow, len(outcomes))
	for i, outcome := range outcomes {
		results[i] = spreadsheet.ResultRow{
			InputRow:       rows[i],
			Recommendation: outcome.Recommendation,
			Err:            outcome.Err,
		}
		if outcome.Err != nil {
			slog.Warn("batch_row_rejected", "line", rows[i].Line, "error", domain.ErrorText(outcome.Err))
		}
	}
	if err := spreadsheet.WriteResults(out, results); err != nil {
		return err
	}

	slog.Info("batch_completed",
		"input", in,
		"output", out,
		"rows", len(rows),
		"scored", summary.Scored,
		"rejected", summary.Rejected,
		"by_crop", summary.ByCrop,
		"aborted", scoreErr != nil,
	)
	return scoreErr
}
