// Package main is scorecheck, an offline CLI that runs the spam and quality
// engine over a JSON file of submissions.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/onnwee/contentrank/internal/enrich"
	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/spam"
)

// Exit codes.
const (
	exitOK       = 0
	exitError    = 1
	exitUsage    = 2
	exitRejected = 3
)

var errNoItems = errors.New("input contains no submissions")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	calibration string
	lexicon     string
	enrichURL   string
	enrichKey   string
	format      string
	strict      bool
	failOnSpam  bool
	verbose     bool
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("scorecheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	help := fs.Bool("help", false, "display help message")
	fs.StringVar(&opts.calibration, "calibration", "", "ranking calibration JSON (defaults when empty)")
	fs.StringVar(&opts.lexicon, "lexicon", "", "lexicon YAML (defaults when empty)")
	fs.StringVar(&opts.enrichURL, "enrich-url", os.Getenv("ENRICHMENT_URL"), "enrichment service endpoint")
	fs.StringVar(&opts.enrichKey, "enrich-key", os.Getenv("ENRICHMENT_API_KEY"), "enrichment service API key")
	fs.StringVar(&opts.format, "format", "text", "output format: text or json")
	fs.BoolVar(&opts.strict, "strict", false, "force strict mode on every submission")
	fs.BoolVar(&opts.failOnSpam, "fail-on-spam", false, "exit 3 when any submission is flagged as spam")
	fs.BoolVar(&opts.verbose, "v", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		fmt.Fprintln(stdout, "Content Score Check")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Usage: scorecheck [options] <file.json | ->")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "The input is a single spam check request or {\"items\": [...]}.")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Options:")
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		return exitOK
	}
	if fs.NArg() != 1 || (opts.format != "text" && opts.format != "json") {
		fmt.Fprintln(stderr, "usage: scorecheck [options] <file.json | ->")
		return exitUsage
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	reqs, err := readRequests(fs.Arg(0), stdin)
	if err != nil {
		logger.Error("failed to read input", "error", err)
		return exitError
	}
	if opts.strict {
		for i := range reqs {
			reqs[i].Options.StrictMode = true
		}
	}

	svc, err := newService(opts, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		return exitError
	}

	results, summary, err := evaluate(ctx, svc, reqs)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		return exitError
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(spam.BatchResponse{Success: true, Results: results, Summary: summary})
	default:
		err = printTable(stdout, results, summary)
	}
	if err != nil {
		logger.Error("failed to write output", "error", err)
		return exitError
	}

	if opts.failOnSpam && summary.Spam > 0 {
		return exitRejected
	}
	return exitOK
}

func newService(opts options, logger *slog.Logger) (*spam.Service, error) {
	weights, version, err := ranking.LoadCalibration(opts.calibration)
	if err != nil {
		return nil, err
	}
	lexicon, err := ranking.LoadLexicon(opts.lexicon)
	if err != nil {
		return nil, err
	}
	logger.Debug("calibration loaded", "version", version)

	var analyzer enrich.Analyzer = enrich.NoopAnalyzer{}
	if opts.enrichURL != "" {
		a, err := enrich.NewHTTPAnalyzer(enrich.HTTPConfig{
			Endpoint: opts.enrichURL,
			APIKey:   opts.enrichKey,
			Timeout:  5 * time.Second,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		analyzer = a
	}
	return spam.NewService(spam.Config{
		Ranking:  ranking.NewStore(version, weights, lexicon),
		Analyzer: analyzer,
		Logger:   logger,
	}), nil
}

// readRequests decodes either {"items": [...]} or a single request.
func readRequests(path string, stdin io.Reader) ([]spam.Request, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var batch struct {
		Items []spam.Request `json:"items"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(batch.Items) > 0 {
		return batch.Items, nil
	}
	if bytes.Contains(data, []byte(`"items"`)) {
		return nil, errNoItems
	}

	var single spam.Request
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return []spam.Request{single}, nil
}

// evaluate runs reqs in chunks the service accepts and renumbers the results
// to their position in the input.
func evaluate(ctx context.Context, svc *spam.Service, reqs []spam.Request) ([]spam.BatchResult, spam.BatchSummary, error) {
	var (
		results []spam.BatchResult
		summary spam.BatchSummary
	)
	for offset := 0; offset < len(reqs); offset += spam.MaxBatchSize {
		end := min(offset+spam.MaxBatchSize, len(reqs))
		resp, err := svc.CheckBatch(ctx, reqs[offset:end])
		if err != nil {
			return nil, summary, err
		}
		for _, r := range resp.Results {
			r.Index += offset
			results = append(results, r)
		}
		summary.Total += resp.Summary.Total
		summary.Spam += resp.Summary.Spam
		summary.LowQuality += resp.Summary.LowQuality
		summary.Review += resp.Summary.Review
		summary.Invalid += resp.Summary.Invalid
	}
	return results, summary, nil
}

func printTable(w io.Writer, results []spam.BatchResult, summary spam.BatchSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDECISION\tSPAM\tQUALITY\tTOXICITY\tAI\tREASONS")
	for _, r := range results {
		if !r.Success {
			fmt.Fprintf(tw, "%d\tinvalid\t-\t-\t-\t-\t%s\n", r.Index, r.Error)
			continue
		}
		s := r.Scores
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			r.Index, r.Recommendations.Decision, s.Spam, s.Quality, s.Toxicity, s.AIGenerated,
			strings.Join(r.Recommendations.Reasons, "; "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d checked: %d spam, %d low quality, %d for review, %d invalid\n",
		summary.Total, summary.Spam, summary.LowQuality, summary.Review, summary.Invalid)
	return err
}
