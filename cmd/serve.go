package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-cough/classify"
	"github.com/RyanBlaney/sonido-cough/logging"
	"github.com/RyanBlaney/sonido-cough/server"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP classification API",
		Long: `Starts the HTTP API:

  GET  /          service banner
  GET  /health    liveness and model summary
  POST /predict   multipart upload, field "file"

The model is loaded before the port is bound; a broken artifact stops the
process with a non-zero exit status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := opts.config

			decoder, err := decoderStatus(cmd.Context(), &config.Audio.DecoderConfig)
			if err != nil {
				return err
			}

			service, err := buildService(config, true)
			if err != nil {
				return err
			}

			srv, err := server.New(server.Options{
				Config:     config.Server,
				Classifier: service,
				Version:    Version,
				Debug:      strings.EqualFold(config.Log.Level, "debug"),
				Decoder:    decoder,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logging.Info("Starting sonido-cough", logging.Fields{
				"version":    Version,
				"addr":       config.Server.Addr(),
				"upload_dir": config.Server.UploadDir,
				"decoder":    config.Audio.Backend,
			})
			return srv.Run(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "listen address")
	flags.Int("port", 5000, "listen port (also PORT)")
	flags.String("upload-dir", "uploads", "directory for transient uploads")
	addModelFlags(cmd)
	return cmd
}

// decoderStatus checks the ffmpeg binaries the backend depends on. The ffmpeg backend
// cannot work without them; auto only loses formats other than WAV and MP3.
func decoderStatus(ctx context.Context, config *transcode.DecoderConfig) (map[string]any, error) {
	status := map[string]any{"backend": config.Backend}
	if config.Backend == transcode.BackendNative {
		return status, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := transcode.NewFFmpegDecoder(config).CheckAvailability(ctx)
	switch {
	case err == nil:
		status["ffmpeg"] = "available"
	case config.Backend == transcode.BackendFFmpeg:
		return nil, classify.Wrap(classify.KindConfiguration, "cmd.serve", "ffmpeg decoder is not available", err)
	default:
		logging.Warn("ffmpeg not available, only WAV and MP3 uploads can be decoded", logging.Fields{
			"error": err.Error(),
		})
		status["ffmpeg"] = "unavailable"
	}
	return status, nil
}

func addDecoderFlag(cmd *cobra.Command) {
	cmd.Flags().String("decoder", "auto", "audio decoder backend (auto, native, ffmpeg)")
}

// addModelFlags registers the flags shared by every command that runs the full pipeline
func addModelFlags(cmd *cobra.Command) {
	addDecoderFlag(cmd)
	flags := cmd.Flags()
	flags.String("scaler", "models/scaler.json", "scaler artifact (.json or .msgpack)")
	flags.String("forest", "models/forest.msgpack", "random forest artifact (.json or .msgpack)")
}
