package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	BackendWavLM       = "wavlm"
	BackendPipeline    = "pipeline"
	BackendSpeechBrain = "speechbrain"
)

// DefaultModels holds the model used by each backend when none is configured.
var DefaultModels = map[string]string{
	BackendWavLM:       "3loi/SER-Odyssey-Baseline-WavLM-Categorical",
	BackendPipeline:    "superb/wav2vec2-base-superb-er",
	BackendSpeechBrain: "speechbrain/emotion-recognition-wav2vec2-IEMOCAP",
}

// DefaultEndpoints holds the inference server used by the HTTP backends.
var DefaultEndpoints = map[string]string{
	BackendWavLM:    "http://127.0.0.1:8080",
	BackendPipeline: "https://api-inference.huggingface.co",
}

type Service struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Version   string `mapstructure:"version" yaml:"version"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

type Server struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	UploadField       string        `mapstructure:"upload_field" yaml:"upload_field"`
	MaxUploadMB       int           `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
}

type Model struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	ID      string `mapstructure:"id" yaml:"id"`
	// Device is "auto", "cuda" or "cpu".
	Device string `mapstructure:"device" yaml:"device"`
	// Endpoint of the inference server (wavlm: KServe v2, pipeline: inference API).
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	ServingName string        `mapstructure:"serving_name" yaml:"serving_name"`
	HubURL      string        `mapstructure:"hub_url" yaml:"hub_url"`
	Token       string        `mapstructure:"token" yaml:"-"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// Command and Dir drive the file based speechbrain backend.
	Command []string `mapstructure:"command" yaml:"command"`
	Dir     string   `mapstructure:"dir" yaml:"dir"`
}

type Audio struct {
	SampleRate       int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Transcoder       string        `mapstructure:"transcoder" yaml:"transcoder"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout" yaml:"transcode_timeout"`
	TempDir          string        `mapstructure:"temp_dir" yaml:"temp_dir"`
}

type Metrics struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

type Root struct {
	Service Service `mapstructure:"service" yaml:"service"`
	Server  Server  `mapstructure:"server" yaml:"server"`
	Model   Model   `mapstructure:"model" yaml:"model"`
	Audio   Audio   `mapstructure:"audio" yaml:"audio"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`
	Paths   struct {
		Outputs string `mapstructure:"outputs" yaml:"outputs"`
	} `mapstructure:"paths" yaml:"paths"`
}

func (r *Root) Addr() string {
	return net.JoinHostPort(r.Server.Host, strconv.Itoa(r.Server.Port))
}

// Options controls where Load looks for configuration.
type Options struct {
	ConfigFile string
	EnvFile    string
	// Viper may carry flag bindings made by the caller.
	Viper *viper.Viper
}

// Load merges defaults, the config file, EMOTION_* env vars and bound flags.
func Load(opts Options) (*Root, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := opts.Viper
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	file := opts.ConfigFile
	if file == "" {
		file = os.Getenv("EMOTION_CONFIG_FILE")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		v.SetConfigName("config")
		v.AddConfigPath(filepath.Join("config", env))
		v.AddConfigPath(filepath.Join("src", "shared"))
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("EMOTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// short names used by deployments
	_ = v.BindEnv("model.id", "EMOTION_MODEL", "EMOTION_MODEL_ID")
	_ = v.BindEnv("model.backend", "EMOTION_BACKEND", "EMOTION_MODEL_BACKEND")
	_ = v.BindEnv("server.port", "EMOTION_PORT", "EMOTION_SERVER_PORT")
	_ = v.BindEnv("server.host", "EMOTION_HOST", "EMOTION_SERVER_HOST")
	_ = v.BindEnv("model.token", "HF_TOKEN", "EMOTION_MODEL_TOKEN")

	var cfg Root
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Model.ID == "" {
		cfg.Model.ID = DefaultModels[cfg.Model.Backend]
	}
	if cfg.Model.Endpoint == "" {
		cfg.Model.Endpoint = DefaultEndpoints[cfg.Model.Backend]
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *Root) Validate() error {
	if _, ok := DefaultModels[r.Model.Backend]; !ok {
		return fmt.Errorf("model.backend %q must be one of %s, %s, %s",
			r.Model.Backend, BackendWavLM, BackendPipeline, BackendSpeechBrain)
	}
	if r.Server.Port <= 0 || r.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", r.Server.Port)
	}
	if r.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	switch r.Model.Device {
	case "auto", "cuda", "cpu":
	default:
		return fmt.Errorf("model.device %q must be auto, cuda or cpu", r.Model.Device)
	}
	if r.Model.Backend == BackendSpeechBrain && len(r.Model.Command) == 0 {
		return fmt.Errorf("model.command is required for the %s backend", BackendSpeechBrain)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "emotion-service")
	v.SetDefault("service.version", "2.1.0")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.log_format", "text")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5050)
	v.SetDefault("server.upload_field", "file")
	v.SetDefault("server.max_upload_mb", 25)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("model.backend", BackendWavLM)
	v.SetDefault("model.device", "auto")
	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.hub_url", "https://huggingface.co")
	v.SetDefault("model.timeout", "60s")
	v.SetDefault("model.id", "")
	v.SetDefault("model.serving_name", "")
	v.SetDefault("model.token", "")
	v.SetDefault("model.dir", "")
	v.SetDefault("model.command", []string{"speechbrain-classify", "--source", "{model}", "--device", "{device}", "{wav}"})

	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.transcoder", "ffmpeg")
	v.SetDefault("audio.transcode_timeout", "20s")
	v.SetDefault("audio.temp_dir", "")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("paths.outputs", "outputs")
}
