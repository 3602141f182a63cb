package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/gigurra/subscription-tracker/internal/api"
	"github.com/gigurra/subscription-tracker/internal/extractor"
	"github.com/gigurra/subscription-tracker/internal/gcs"
	"github.com/gigurra/subscription-tracker/internal/logger"
	"github.com/gigurra/subscription-tracker/internal/postgres"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// environment is what a command needs once config and storage are open.
type environment struct {
	cfg     *internal.Config
	log     zerolog.Logger
	tracker *internal.Tracker
	closers []func()
}

func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func newLogger(p CommonParams) zerolog.Logger {
	if p.Verbose {
		return logger.NewWithLevel(zerolog.DebugLevel)
	}
	return logger.New()
}

func loadConfig(p CommonParams) (*internal.Config, error) {
	path := p.Config
	if path == "" {
		path = internal.DefaultConfigPath()
	}
	cfg, err := internal.LoadConfigOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// openEnv loads config, opens the store (Postgres when a DSN is given, memory
// otherwise) and seeds the cancellation guides.
func openEnv(ctx context.Context, common CommonParams, sp StoreParams, ext internal.TextExtractor) (context.Context, *environment, error) {
	log := newLogger(common)
	ctx = logger.WithContext(ctx, log)

	cfg, err := loadConfig(common)
	if err != nil {
		return ctx, nil, err
	}
	env := &environment{cfg: cfg, log: log}

	var store internal.Store
	if sp.Database != "" {
		pg, err := postgres.Open(ctx, sp.Database)
		if err != nil {
			return ctx, nil, err
		}
		env.closers = append(env.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			env.Close()
			return ctx, nil, err
		}
		store = pg
	} else {
		log.Debug().Msg("no database configured, using in-memory store")
		store = internal.NewMemoryStore()
	}

	env.tracker = internal.NewTracker(store, cfg, ext)
	if _, err := env.tracker.SeedGuides(ctx); err != nil {
		env.Close()
		return ctx, nil, fmt.Errorf("seeding guides: %w", err)
	}
	return ctx, env, nil
}

// resolveSource applies the --source flag, then a "format:" prefix on the
// argument, then the file extension. Empty means a statement document.
func resolveSource(flag, arg string) (source, path string) {
	format, path := internal.ParseFileArg(arg)
	source = flag
	if source == "" {
		source = format
	}
	if source == "" {
		source = internal.SourceForPath(path)
	}
	return source, path
}

func isRowSource(source string) bool {
	return internal.IsKnownParser(source)
}

// documentExtractor returns the text extractor for a document source, or nil
// for structured row sources.
func documentExtractor(ctx context.Context, source string) (internal.TextExtractor, error) {
	switch {
	case isRowSource(source):
		return nil, nil
	case source == "pdf":
		return extractor.PDF{}, nil
	case source == "ocr":
		ocr, err := extractor.NewGeminiOCR(ctx, extractor.GeminiOptions{})
		if err != nil {
			return nil, err
		}
		return ocr, nil
	}

	// OCR is optional for auto-detected documents
	var ocr internal.TextExtractor
	if g, err := extractor.NewGeminiOCR(ctx, extractor.GeminiOptions{}); err == nil {
		ocr = g
	}
	return extractor.Auto(ocr), nil
}

func readInput(ctx context.Context, path string) ([]byte, error) {
	if !gcs.IsURI(path) {
		return os.ReadFile(path)
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	return client.Fetch(ctx, path)
}

// importCurrency falls back from the flag to the config and then to the system locale.
func importCurrency(flag string, cfg *internal.Config) string {
	if flag != "" {
		return flag
	}
	if c := cfg.ImportCurrency(); c != "" {
		return c
	}
	return internal.DetectSystemCurrency()
}

func parseOptions(in InputParams, cfg *internal.Config) (internal.ParseOptions, error) {
	opts := internal.ParseOptions{Currency: importCurrency(in.Currency, cfg)}
	if in.DateFormat != "" {
		f, err := internal.ParseDateFormat(in.DateFormat)
		if err != nil {
			return opts, err
		}
		opts.DateFormat = f
	}
	return opts, nil
}

func importFile(ctx context.Context, env *environment, user string, in InputParams, source, path string) (internal.ImportResult, error) {
	data, err := readInput(ctx, path)
	if err != nil {
		return internal.ImportResult{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if isRowSource(source) {
		parser, err := internal.GetParser(source)
		if err != nil {
			return internal.ImportResult{}, err
		}
		rows, err := parser.Parse(bytes.NewReader(data))
		if err != nil {
			return internal.ImportResult{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		return env.tracker.ImportRows(ctx, user, rows, importCurrency(in.Currency, env.cfg))
	}

	opts, err := parseOptions(in, env.cfg)
	if err != nil {
		return internal.ImportResult{}, err
	}
	return env.tracker.ImportDocument(ctx, user, data, opts)
}

func runImport(ctx context.Context, w io.Writer, p *ImportParams) error {
	source, path := resolveSource(p.Source, p.File)
	ext, err := documentExtractor(ctx, source)
	if err != nil {
		return err
	}
	ctx, env, err := openEnv(ctx, p.CommonParams, p.StoreParams, ext)
	if err != nil {
		return err
	}
	defer env.Close()

	result, err := importFile(ctx, env, p.User, p.InputParams, source, path)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Imported %d transactions (%d skipped, %d over limit)\n", result.Count, result.Skipped, result.Overflow)
	fmt.Fprintf(w, "Subscriptions: %d new, %d updated\n", result.Detection.Created, result.Detection.Updated)
	if p.Database == "" {
		env.log.Warn().Msg("no database configured, imported data is not persisted")
	}
	return nil
}

func runParse(ctx context.Context, w io.Writer, p *ParseParams) error {
	ctx = logger.WithContext(ctx, newLogger(p.CommonParams))
	cfg, err := loadConfig(p.CommonParams)
	if err != nil {
		return err
	}

	source, path := resolveSource(p.Source, p.File)
	if isRowSource(source) {
		return fmt.Errorf("parse reads statement documents, %s exports are imported directly", source)
	}
	ext, err := documentExtractor(ctx, source)
	if err != nil {
		return err
	}
	opts, err := parseOptions(p.InputParams, cfg)
	if err != nil {
		return err
	}
	if opts.DateFormat == "" {
		opts.DateFormat = cfg.StatementDateFormat()
	}

	data, err := readInput(ctx, path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	text, err := ext.ExtractText(ctx, data)
	if err != nil {
		return fmt.Errorf("extracting text: %w", err)
	}
	clear(data)

	candidates := internal.ParseStatement(text, opts)
	if len(candidates) == 0 {
		return internal.ErrNoTransactions
	}
	internal.PrintCandidatesTable(w, candidates, cfg)
	fmt.Fprintf(w, "%d transactions, checked against %d known subscriptions\n", len(candidates), cfg.KnownCount())
	return nil
}

func runDetect(ctx context.Context, w io.Writer, p *DetectParams) error {
	var ext internal.TextExtractor
	source, path := resolveSource(p.Source, p.File)
	if p.File != "" {
		var err error
		if ext, err = documentExtractor(ctx, source); err != nil {
			return err
		}
	}
	ctx, env, err := openEnv(ctx, p.CommonParams, p.StoreParams, ext)
	if err != nil {
		return err
	}
	defer env.Close()

	// importing runs detection itself
	if p.File != "" {
		if _, err := importFile(ctx, env, p.User, p.InputParams, source, path); err != nil {
			return err
		}
	} else if _, err := env.tracker.Recalculate(ctx, p.User); err != nil {
		return err
	}

	all, err := env.tracker.ListSubscriptions(ctx, p.User)
	if err != nil {
		return err
	}
	all = internal.FilterByExclusions(all, env.cfg)
	display := internal.FilterByStatus(all, p.Show)
	display = internal.FilterByTags(display, p.Tags, env.cfg)

	if p.Output == "json" {
		internal.SortSubscriptions(display, p.Sort, p.SortDir, env.cfg)
		return internal.PrintSubscriptionsJSON(w, display, env.cfg)
	}
	if len(all) == 0 {
		fmt.Fprintln(w, "No subscriptions detected.")
		return nil
	}
	internal.PrintSubscriptionsTable(w, all, display, internal.OutputOptions{
		ShowFilter: p.Show,
		TagFilter:  p.Tags,
		SortField:  p.Sort,
		SortDir:    p.SortDir,
	}, env.cfg)
	return nil
}

func runAdd(ctx context.Context, w io.Writer, p *AddParams) error {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return fmt.Errorf("%w: %q", internal.ErrInvalidAmount, p.Amount)
	}
	interval, err := internal.ParseBillingInterval(p.Interval)
	if err != nil {
		return err
	}
	in := internal.ManualInput{
		MerchantName: p.Merchant,
		Amount:       amount,
		Currency:     p.Currency,
		Interval:     interval,
	}
	if p.Next != "" {
		if in.NextExpectedDate, err = time.Parse(dateLayout, p.Next); err != nil {
			return fmt.Errorf("%w: --next must be YYYY-MM-DD", internal.ErrInvalidDate)
		}
	}

	ctx, env, err := openEnv(ctx, p.CommonParams, p.StoreParams, nil)
	if err != nil {
		return err
	}
	defer env.Close()

	if p.Guide != "" {
		g, err := env.tracker.GetGuideBySlug(ctx, p.Guide)
		if err != nil {
			return err
		}
		in.GuideID = g.ID
	}

	sub, err := env.tracker.CreateManualSubscription(ctx, p.User, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Added %s: %s %s, next charge %s\n",
		p.Merchant, internal.GetCurrency(sub.Currency).Format(sub.AverageAmount), sub.Interval,
		sub.NextExpectedDate.Format(dateLayout))
	if p.Database == "" {
		env.log.Warn().Msg("no database configured, the subscription is not persisted")
	}
	return nil
}

func runServe(p *ServeParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ext, err := documentExtractor(ctx, "")
	if err != nil {
		return err
	}
	ctx, env, err := openEnv(ctx, p.CommonParams, p.StoreParams, ext)
	if err != nil {
		return err
	}
	defer env.Close()
	if p.Database == "" {
		env.log.Warn().Msg("no database configured, data is kept in memory only")
	}

	server := api.New(env.tracker, env.log)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Listen(p.Addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	env.log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
