package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/charmbracelet/log"
	"github.com/k0kubun/pp/v3"
	"github.com/spf13/cobra"

	"github.com/yurifrl/feedscan/pkg/config"
	"github.com/yurifrl/feedscan/pkg/csv"
	"github.com/yurifrl/feedscan/pkg/models"
	"github.com/yurifrl/feedscan/pkg/ocr"
	"github.com/yurifrl/feedscan/pkg/plan"
	"github.com/yurifrl/feedscan/pkg/reconcile"
	"github.com/yurifrl/feedscan/pkg/server"
	"github.com/yurifrl/feedscan/pkg/service"
	"github.com/yurifrl/feedscan/pkg/spreadsheet"
	"github.com/yurifrl/feedscan/pkg/ynab"
)

var (
	cliFilters filters
	cfgFile    string
)

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "feedscan",
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// setup loads configuration for cmd and builds the logger.
func setup(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Build(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

func parseReference(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q (want RFC 3339): %w", value, err)
	}
	return t, nil
}

// emit writes the records kept by filter to path, or as CSV to stdout when
// path is empty.
func emit(processor *service.Processor, records []models.Record, filter csv.FilterFunc, path, format string) error {
	if path == "" {
		if service.FormatFor("", format) != "csv" {
			return fmt.Errorf("%s output needs --output", format)
		}
		_, err := os.Stdout.Write(csv.Create(records, filter))
		return err
	}
	if filter != nil {
		records = applyFilter(records, filter)
	}
	return processor.Write(records, path, format)
}

var rootCmd = &cobra.Command{
	Use:          "feedscan",
	Short:        "Turn payment app activity screenshots into a Note,Date,Amount table",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is provided
		return cmd.Help()
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <input_path>...",
	Short: "OCR screenshots (or .txt line dumps) and print the parsed table",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if err := cliFilters.validate(); err != nil {
			return err
		}
		nowFlag, _ := cmd.Flags().GetString("now")
		ref, err := parseReference(nowFlag)
		if err != nil {
			return err
		}

		paths, err := collectInputs(args, logger)
		if err != nil {
			return err
		}

		engine := ocr.Auto{Images: ocr.NewTesseract(cfg.OCR)}
		processor := service.NewProcessor(engine, logger)
		batch, err := processor.Process(cmd.Context(), paths, ref)
		if err != nil {
			return err
		}
		for _, f := range batch.Failures {
			logger.Warn("skipped input", "file", f.Path, "reason", f.Reason)
		}

		keep := cliFilters.toFilterFunc()
		records := applyFilter(batch.Records, keep)

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			if _, err := pp.Fprintln(os.Stderr, batch); err != nil {
				return err
			}
		}

		total, skipped := models.Total(records)
		logger.Info("converted", "records", len(records), "total", total.StringFixed(2), "without_amount", skipped, "reference", batch.Reference.Format(time.RFC3339))

		return emit(processor, batch.Records, keep, cfg.Output.Path, cfg.Output.Format)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <plan_file>",
	Short: "Preview a YAML plan of screenshot batches, or run it with --apply",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}

		p, err := plan.Load(args[0])
		if err != nil {
			return err
		}
		p.Print(os.Stdout)

		if apply, _ := cmd.Flags().GetBool("apply"); !apply {
			return nil
		}

		ref, err := p.ReferenceTime()
		if err != nil {
			return err
		}
		if ref.IsZero() {
			// one instant for the whole plan
			ref = time.Now()
		}

		processor := service.NewProcessor(ocr.Auto{Images: ocr.NewTesseract(cfg.OCR)}, logger)
		for _, b := range p.Batches {
			paths, err := p.ImagePaths(b)
			if err != nil {
				return fmt.Errorf("batch %s: %w", b.Name, err)
			}
			batch, err := processor.Process(cmd.Context(), paths, ref)
			if err != nil {
				logger.Error("batch failed", "batch", b.Name, "error", err)
				continue
			}
			if err := processor.Write(batch.Records, p.Resolve(b.Output), b.Format); err != nil {
				return fmt.Errorf("batch %s: %w", b.Name, err)
			}
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <table>",
	Short: "Read an edited CSV/XLSX/XLS table and write it back out",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		records, err := loadTable(args[0])
		if err != nil {
			return err
		}
		logger.Info("imported table", "file", args[0], "records", len(records))
		processor := service.NewProcessor(ocr.Text{}, logger)
		return emit(processor, records, nil, cfg.Output.Path, cfg.Output.Format)
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <table>",
	Short: "Create the table's transactions in a YNAB account, skipping ones already there",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		if cfg.YNAB.Token == "" || cfg.YNAB.BudgetID == "" || cfg.YNAB.AccountID == "" {
			return fmt.Errorf("push needs ynab token, budget_id and account_id")
		}

		records, err := loadTable(args[0])
		if err != nil {
			return err
		}

		client := ynab.New(cfg.YNAB.Token)
		remote, err := client.Transactions(cfg.YNAB.BudgetID, cfg.YNAB.AccountID)
		if err != nil {
			return err
		}
		report := reconcile.Build(records, remote, cfg.YNAB.Inflow)
		report.Print(os.Stdout)

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			return nil
		}
		created, err := client.Push(cfg.YNAB.BudgetID, cfg.YNAB.AccountID, report)
		if err != nil {
			return err
		}
		logger.Info("created transactions", "count", created, "account_id", cfg.YNAB.AccountID)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload web server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		srv := server.New(cfg, logger, ocr.Auto{Images: ocr.NewTesseract(cfg.OCR)})
		logger.Info("starting server", "addr", cfg.Server.Addr)
		return srv.Start(cfg.Server.Addr)
	},
}

func loadTable(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return spreadsheet.Load(data, path)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default is config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	// OCR flags
	for _, cmd := range []*cobra.Command{convertCmd, planCmd, serveCmd} {
		cmd.Flags().String("tesseract", "", "Path to the tesseract binary")
		cmd.Flags().Int("psm", 6, "Tesseract page segmentation mode")
		cmd.Flags().String("lang", "", "Tesseract language, e.g. eng")
	}

	// Output flags
	for _, cmd := range []*cobra.Command{convertCmd, importCmd} {
		cmd.Flags().StringP("output", "o", "", "Output file (default stdout, csv only)")
		cmd.Flags().String("format", "", "Output format: csv or xlsx (default from extension)")
	}

	convertCmd.Flags().String("now", "", "Reference instant for relative dates, RFC 3339 (default now)")
	convertCmd.Flags().Bool("dump", false, "Pretty-print the parsed batch to stderr")
	convertCmd.Flags().StringVar(&cliFilters.startDate, "start", "", "Start date (MM/DD/YYYY)")
	convertCmd.Flags().StringVar(&cliFilters.endDate, "end", "", "End date (MM/DD/YYYY)")
	convertCmd.Flags().Float64Var(&cliFilters.minAmount, "min", 0, "Minimum amount")
	convertCmd.Flags().Float64Var(&cliFilters.maxAmount, "max", 0, "Maximum amount")
	convertCmd.Flags().StringVar(&cliFilters.payee, "payee", "", "Filter by note (case insensitive)")

	planCmd.Flags().Bool("apply", false, "Run the plan and write every batch output")

	pushCmd.Flags().String("token", "", "YNAB personal access token (default $YNAB_TOKEN)")
	pushCmd.Flags().String("budget", "", "YNAB budget ID")
	pushCmd.Flags().String("account", "", "YNAB account ID")
	pushCmd.Flags().Bool("inflow", false, "Treat amounts as money received")
	pushCmd.Flags().Bool("dry-run", false, "Only show what would be created")

	serveCmd.Flags().String("addr", "", "Listen address (default 0.0.0.0:3000)")
	serveCmd.Flags().String("upload-dir", "", "Directory for in-flight uploads")

	rootCmd.AddCommand(convertCmd, planCmd, importCmd, pushCmd, serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
