package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-tracker/internal/batch"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/files"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/pdftext"
	"github.com/zombor/invoice-tracker/internal/report"
	"github.com/zombor/invoice-tracker/internal/scanning"
	"github.com/zombor/invoice-tracker/internal/store"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

const (
	stageRules  = "rules"
	stageLLM    = "llm"
	stageRename = "rename"
	stageJSON   = "json"
)

type config struct {
	input       string
	output      string
	duplicates  string
	tripSheets  string
	stage       string
	workers     int
	scanner     string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
	ocrTimeout  time.Duration
	pdftotext   bool
	report      string
	db          string
	logFormat   string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// The API key usually lives in .env next to the input folder
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}

	var cfg config
	fs := ff.NewFlagSet("invoice-batch")
	fs.StringVar(&cfg.input, 0, "input", "input", "Directory holding the invoices to process")
	fs.StringVar(&cfg.output, 0, "output", "output", "Directory for renamed invoices and JSON output")
	fs.StringVar(&cfg.duplicates, 0, "duplicates", "duplicates", "Directory for duplicate invoices")
	fs.StringVar(&cfg.tripSheets, 0, "trip-sheets", "trip_sheets", "Directory for trip sheets")
	fs.StringVar(&cfg.stage, 0, "stage", stageJSON, "Stage to run: rules, llm, rename or json")
	fs.IntVar(&cfg.workers, 0, "workers", 4, "Documents processed at the same time")
	fs.StringVar(&cfg.scanner, 0, "scanner", "gemini", "Model fallback: 'gemini', 'ollama' or 'none'")
	fs.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.5-flash", "Google Gemini model name")
	fs.StringVar(&cfg.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&cfg.ollamaModel, 0, "ollama-model", "qwen2.5vl", "Ollama vision model name")
	fs.DurationVar(&cfg.ocrTimeout, 0, "ocr-timeout", 60*time.Second, "Timeout of one model request")
	fs.BoolVar(&cfg.pdftotext, 0, "pdftotext", "Fall back to the pdftotext tool when a text layer cannot be read")
	fs.StringVar(&cfg.report, 0, "report", "invoices.xlsx", "Spreadsheet written to the output directory (empty disables)")
	fs.StringVar(&cfg.db, 0, "db", "run.db", "Run archive written to the output directory (empty disables)")
	fs.StringVar(&cfg.logFormat, 0, "log-format", "text", "Log format: 'text' or 'json'")
	showVersion := fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_BATCH"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	setupLogging(cfg.logFormat)

	switch cfg.stage {
	case stageRules, stageLLM, stageRename, stageJSON:
	default:
		slog.Error("Invalid stage", "stage", cfg.stage, "valid", "rules, llm, rename or json")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Batch failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(format string) {
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

// newScanner builds the model fallback. A missing Gemini key is a
// configuration error; the run continues with a scanner that refuses every
// request without touching the network.
func newScanner(ctx context.Context, cfg config) (scanning.Scanner, error) {
	switch cfg.scanner {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini scanner...", "model", cfg.geminiModel)
		scanner, err := scanning.NewGemini(ctx, apiKey, cfg.geminiModel, cfg.ocrTimeout)
		if errors.Is(err, scanning.ErrMissingCredential) {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable; model fallback disabled")
			return scanning.Unavailable{Err: err}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return scanner, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		scanner, err := scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel, cfg.ocrTimeout)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return scanner, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid scanner type %q, valid: gemini, ollama or none", cfg.scanner)
	}
}

func run(ctx context.Context, cfg config) error {
	start := time.Now()

	if err := os.MkdirAll(cfg.input, 0755); err != nil {
		return fmt.Errorf("creating input directory: %w", err)
	}
	organizer, err := files.NewOrganizer(files.Dirs{
		Output:     cfg.output,
		Duplicates: cfg.duplicates,
		TripSheets: cfg.tripSheets,
	})
	if err != nil {
		return err
	}

	reader := &pdftext.Reader{Repair: true, FallbackPdftotext: cfg.pdftotext}

	var fallback invoice.Extractor
	if cfg.stage != stageRules {
		scanner, err := newScanner(ctx, cfg)
		if err != nil {
			return err
		}
		if scanner != nil {
			defer scanner.Close()
			fallback = invoice.NewModelExtractor(scanner)
		}
	}
	extractor := invoice.NewLayered(invoice.NewRuleExtractor(reader), fallback)

	opts := []batch.Option{batch.WithWorkers(cfg.workers)}
	switch cfg.stage {
	case stageRules:
		organizer.Invoices, organizer.Duplicates = false, false
		opts = append(opts, batch.WithSink(organizer))
	case stageRename, stageJSON:
		opts = append(opts, batch.WithSink(organizer))
	}
	processor := batch.NewProcessor(extractor, tripsheet.NewParser(reader), opts...)

	docs, err := document.Discover(cfg.input)
	if err != nil {
		return err
	}
	slog.Info("Processing batch", "dir", cfg.input, "documents", len(docs), "stage", cfg.stage, "workers", cfg.workers)

	result, err := processor.Run(ctx, docs)
	if errors.Is(err, batch.ErrEmptyBatch) {
		slog.Warn("No invoices found, put files into the input directory and run again", "dir", cfg.input)
		return nil
	}
	if err != nil {
		return err
	}

	switch cfg.stage {
	case stageRules, stageLLM:
		for _, o := range result.Outcomes {
			slog.Info("Extracted", "stage", cfg.stage, "file", o.Document.Name, "kind", o.Kind, "fields", o.Fields)
		}
	case stageJSON:
		writeOutputs(cfg, organizer, result)
	}

	slog.Info("Batch finished",
		"documents", len(result.Outcomes),
		"invoices", result.Count(batch.KindInvoice),
		"duplicates", result.Count(batch.KindDuplicate),
		"trip_sheets", result.Count(batch.KindTripSheet),
		"skipped", result.Count(batch.KindSkipped),
		"failed", result.Count(batch.KindFailed),
		"unmatched_trip_sheets", len(result.Unmatched),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// writeOutputs saves the trip sheet JSON, the invoice JSON, the spreadsheet
// and the run archive. Each failure is logged and the rest are still written.
func writeOutputs(cfg config, organizer *files.Organizer, result *batch.Result) {
	for _, sheet := range result.TripSheets {
		path, err := organizer.WriteJSON(sheet.JSONName(), sheet)
		if err != nil {
			slog.Error("Failed to save trip sheet JSON", "file", sheet.FileName, "error", err)
			continue
		}
		slog.Info("Saved trip sheet JSON", "path", path)
	}

	if len(result.Invoices) == 0 {
		slog.Warn("No invoice data to save")
	} else {
		path, err := organizer.WriteJSON(files.InvoiceDataFile, result.Invoices)
		if err != nil {
			slog.Error("Failed to save invoice JSON", "error", err)
		} else {
			slog.Info("Saved invoice JSON", "path", path, "invoices", len(result.Invoices))
		}

		if cfg.report != "" {
			path := organizer.Path(cfg.report)
			if err := report.Write(path, result.Invoices, result.TripSheets); err != nil {
				slog.Error("Failed to write spreadsheet", "path", path, "error", err)
			} else {
				slog.Info("Wrote spreadsheet", "path", path)
			}
		}
	}

	if cfg.db != "" {
		path := organizer.Path(cfg.db)
		archive, err := store.NewArchive(path)
		if err != nil {
			slog.Error("Failed to open run archive", "path", path, "error", err)
			return
		}
		defer archive.Close()
		if err := archive.SaveResult(result); err != nil {
			slog.Error("Failed to save run archive", "path", path, "error", err)
			return
		}
		slog.Info("Saved run archive", "path", path)
	}
}
