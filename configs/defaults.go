package configs

import (
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	d := GetDefaultConfig()

	// Server defaults
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.upload_dir", d.Server.UploadDir)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.expose_error_details", d.Server.ExposeErrorDetails)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	// Audio defaults
	v.SetDefault("audio.sample_rate", d.Audio.TargetSampleRate)
	v.SetDefault("audio.duration", d.Audio.Duration)
	v.SetDefault("audio.decoder", d.Audio.Backend)
	v.SetDefault("audio.resample_quality", d.Audio.ResampleQuality)
	v.SetDefault("audio.ffmpeg_path", d.Audio.FFmpegPath)
	v.SetDefault("audio.ffprobe_path", d.Audio.FFprobePath)
	v.SetDefault("audio.timeout", d.Audio.Timeout)

	// Feature defaults
	v.SetDefault("features.n_fft", d.Features.WindowSize)
	v.SetDefault("features.hop_length", d.Features.HopSize)
	v.SetDefault("features.n_mfcc", d.Features.NumMFCC)
	v.SetDefault("features.n_mels", d.Features.NumMels)
	v.SetDefault("features.rolloff_percent", d.Features.RolloffPercent)
	v.SetDefault("features.estimate_tuning", d.Features.EstimateTuning)

	// Model defaults
	v.SetDefault("model.scaler_path", d.Model.ScalerPath)
	v.SetDefault("model.forest_path", d.Model.ForestPath)

	// Log defaults
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			UploadDir:       "uploads",
			MaxUploadBytes:  32 << 20,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
		},
		Audio: AudioConfig{
			DecoderConfig: *transcode.DefaultDecoderConfig(),
			Duration:      10 * time.Second,
		},
		Features: features.DefaultFeatureConfig(),
		Model: ModelConfig{
			ScalerPath: "models/scaler.json",
			ForestPath: "models/forest.msgpack",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
