package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maastricht-university/edmo-emotion/audio"
	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/config"
	"github.com/maastricht-university/edmo-emotion/logging"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

var (
	cfgFile string
	v       = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "emotion",
	Short: "Speech emotion classification service",
	Long: `Classifies the emotion of a speech clip into
angry, disgust, fear, happy, neutral, sad and surprise.

Backends:
  wavlm        - WavLM categorical model behind a KServe v2 server
  pipeline     - generic audio-classification inference API
  speechbrain  - file based classifier run as a local command`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: config/<CONFIG_ENV>/config.yaml)")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("backend", "", "model backend: wavlm, pipeline or speechbrain (env EMOTION_BACKEND)")
	pf.String("model", "", "model id (env EMOTION_MODEL)")
	_ = v.BindPFlag("service.log_level", pf.Lookup("log-level"))
	_ = v.BindPFlag("model.backend", pf.Lookup("backend"))
	_ = v.BindPFlag("model.id", pf.Lookup("model"))
}

func loadConfig() (*config.Root, *logrus.Logger, error) {
	cfg, err := config.Load(config.Options{ConfigFile: cfgFile, Viper: v})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.Service.LogLevel, cfg.Service.LogFormat), nil
}

// buildPipeline resolves the device, looks up ffmpeg and loads the model.
func buildPipeline(ctx context.Context, cfg *config.Root, logger *logrus.Logger) (*orchestrator.Pipeline, error) {
	log := logging.Component(logger, "startup")

	device := clients.DetectDevice(ctx, cfg.Model.Device)

	tc, err := audio.LookupTranscoder(cfg.Audio.Transcoder, cfg.Audio.TranscodeTimeout)
	if err != nil {
		log.WithError(err).Warn("transcoder unavailable, only WAV and MP3 input will decode")
		tc = nil
	} else {
		tc.TempDir = cfg.Audio.TempDir
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Model.Backend,
		"model":   cfg.Model.ID,
		"device":  device,
	}).Info("loading emotion model")
	start := time.Now()
	clf, err := clients.Load(ctx, cfg, device, logging.Component(logger, "model"))
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", cfg.Model.ID, err)
	}
	info := clf.Info()
	log.WithFields(logrus.Fields{
		"load_time":   time.Since(start).Round(time.Millisecond).String(),
		"sample_rate": info.SampleRate,
		"labels":      info.Labels,
	}).Info("model loaded")

	return orchestrator.NewPipeline(audio.NewNormalizer(tc), clf, logging.Component(logger, "pipeline")), nil
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
