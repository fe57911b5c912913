package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/logging"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

const (
	// AppName names the config file and the env prefix
	AppName   = "sonido-cough"
	EnvPrefix = "SONIDO_COUGH"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig           `mapstructure:"server" yaml:"server"`
	Audio    AudioConfig            `mapstructure:"audio" yaml:"audio"`
	Features features.FeatureConfig `mapstructure:"features" yaml:"features"`
	Model    ModelConfig            `mapstructure:"model" yaml:"model"`
	Log      LogConfig              `mapstructure:"log" yaml:"log"`
}

// ServerConfig contains HTTP transport settings
type ServerConfig struct {
	Host               string        `mapstructure:"host" yaml:"host"`
	Port               int           `mapstructure:"port" yaml:"port"`
	UploadDir          string        `mapstructure:"upload_dir" yaml:"upload_dir"`
	MaxUploadBytes     int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ExposeErrorDetails bool          `mapstructure:"expose_error_details" yaml:"expose_error_details"`
	CORSOrigins        []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr returns host:port for net/http
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// AudioConfig contains decoding and clip length settings
type AudioConfig struct {
	transcode.DecoderConfig `mapstructure:",squash" yaml:",inline"`
	Duration                time.Duration `mapstructure:"duration" yaml:"duration"`
}

// ModelConfig points at the trained artifacts
type ModelConfig struct {
	ScalerPath string `mapstructure:"scaler_path" yaml:"scaler_path"`
	ForestPath string `mapstructure:"forest_path" yaml:"forest_path"`
}

// LogConfig selects the logging backend
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// LoadOptions controls where configuration is read from
type LoadOptions struct {
	// ConfigFile is used instead of searching SearchPaths
	ConfigFile string
	// SearchPaths defaults to DefaultSearchPaths
	SearchPaths []string
	// EnvFile is loaded into the environment when it exists
	EnvFile string
	// Flags are bound by name through FlagKeys
	Flags *pflag.FlagSet
}

// FlagKeys maps command line flag names to configuration keys
var FlagKeys = map[string]string{
	"host":       "server.host",
	"port":       "server.port",
	"upload-dir": "server.upload_dir",
	"decoder":    "audio.decoder",
	"scaler":     "model.scaler_path",
	"forest":     "model.forest_path",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// DefaultSearchPaths lists the directories searched for sonido-cough.yaml
func DefaultSearchPaths() []string {
	paths := []string{".", "./configs"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", AppName))
	}
	return append(paths, "/etc/"+AppName)
}

// Load merges defaults, the config file, the environment and flags, in increasing
// priority, and validates the result
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if _, err := os.Stat(opts.EnvFile); err == nil {
			if err := godotenv.Load(opts.EnvFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", opts.EnvFile, err)
			}
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		paths := opts.SearchPaths
		if paths == nil {
			paths = DefaultSearchPaths()
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// cloud platforms pass the listen port as a bare PORT
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	// one sample rate drives both decoding and extraction
	config.Features.SampleRate = config.Audio.TargetSampleRate

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if used := v.ConfigFileUsed(); used != "" {
		logging.Debug("Configuration loaded", logging.Fields{"file": used})
	}
	return config, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var lastErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := FlagKeys[f.Name]
		if !ok {
			return
		}
		// unset flags must not shadow file and env values
		if !f.Changed {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			lastErr = err
		}
	})
	return lastErr
}

// Validate rejects values the service cannot start with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Server.UploadDir == "" {
		return fmt.Errorf("server upload_dir must be set")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max_upload_bytes must be positive")
	}
	if c.Audio.Duration < 100*time.Millisecond {
		return fmt.Errorf("audio duration too short: %v", c.Audio.Duration)
	}
	if err := c.Audio.DecoderConfig.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}
