package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

var (
	classifyURL string
	classifyOut string
)

var classifyCmd = &cobra.Command{
	Use:   "classify FILE...",
	Short: "Classify audio files and print the predictions as JSON",
	Long: `Runs the model in-process, or uploads the files to a running
service when --url is set. With --out the results are also written to
<out>/session_<timestamp>/predictions.json.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	f := classifyCmd.Flags()
	f.StringVar(&classifyURL, "url", "", "base URL of a running service (e.g. http://127.0.0.1:5050)")
	f.StringVar(&classifyOut, "out", "", "directory for a session bundle")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		info    clients.ModelInfo
		results []orchestrator.FileResult
	)
	if classifyURL != "" {
		info, results, err = classifyRemote(ctx, strings.TrimRight(classifyURL, "/"), cfg.Model.Timeout, args)
	} else {
		var p *orchestrator.Pipeline
		p, err = buildPipeline(ctx, cfg, logger)
		if err == nil {
			info = p.Model()
			results = p.RunFiles(ctx, args)
		}
	}
	if err != nil {
		printError("classify", err)
		return err
	}

	if err := printResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}

	if classifyOut != "" {
		_, path, err := orchestrator.Persist(classifyOut, info, results)
		if err != nil {
			printError("write session bundle", err)
			return err
		}
		logger.WithField("path", path).Info("session bundle written")
	}

	if n := failed(results); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, len(results))
	}
	return nil
}

func classifyRemote(ctx context.Context, url string, timeout time.Duration, paths []string) (clients.ModelInfo, []orchestrator.FileResult, error) {
	h := clients.NewHTTP(timeout)
	health, err := h.Health(ctx, url)
	if err != nil {
		return clients.ModelInfo{}, nil, fmt.Errorf("service not healthy: %w", err)
	}

	results := make([]orchestrator.FileResult, 0, len(paths))
	for _, path := range paths {
		res := orchestrator.FileResult{Path: path}
		preds, err := h.Classify(ctx, url, path)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Predictions = preds
			if len(preds) > 0 {
				res.Dominant = preds[0].Label
			}
		}
		results = append(results, res)
	}
	return health.ModelInfo, results, nil
}

func printResults(w io.Writer, results []orchestrator.FileResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func failed(results []orchestrator.FileResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
