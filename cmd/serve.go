package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/edmo-emotion/httpserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP classification service",
	Long: `Loads the configured model once and serves

  GET  /health
  POST /classify   (multipart field "file")

until SIGINT or SIGTERM.

The speechbrain backend runs model.command once per request. Its argv may
use {wav}, {model}, {device} and {dir}; {wav} is a mono 16 kHz 16-bit WAV
file. The command must print one JSON object as its last stdout line:

  {"probs": [...], "score": 0.83, "index": 1, "label": "ang"}

probs is the class vector in label_encoder.txt order (probabilities or
log-probabilities). When it cannot be matched to the label map, only
label and score are used.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("host", "", "bind address (default 0.0.0.0, env EMOTION_HOST)")
	f.Int("port", 0, "bind port (default 5050, env EMOTION_PORT)")
	_ = v.BindPFlag("server.host", f.Lookup("host"))
	_ = v.BindPFlag("server.port", f.Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		printError("config", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		return err
	}

	srv, err := httpserver.New(httpserver.Options{Config: cfg, Pipeline: p, Logger: logger})
	if err != nil {
		return err
	}
	logger.WithField("addr", cfg.Addr()).Infof("%s %s ready", cfg.Service.Name, cfg.Service.Version)
	return srv.Listen(ctx)
}
