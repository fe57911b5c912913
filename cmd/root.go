package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-cough/classify"
	"github.com/RyanBlaney/sonido-cough/configs"
	"github.com/RyanBlaney/sonido-cough/logging"
)

// Set at build time with -ldflags "-X github.com/RyanBlaney/sonido-cough/cmd.Version=..."
var (
	Version = "dev"
	Commit  = "none"
)

// rootOptions holds the persistent flags and the configuration they produce
type rootOptions struct {
	configFile   string
	envFile      string
	logLevel     string
	logFormat    string
	outputFormat string

	config *configs.Config
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "sonido-cough",
		Short: "Cough recording classifier",
		Long: `Classifies short cough recordings as covid, healthy or symptomatic.

The audio is decoded, fixed to a ten second clip, summarised as 30 spectral
features (MFCC, centroid, zero crossing rate, chroma, rolloff), standardised
and scored by a random forest.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.initialize(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "",
		"config file (default is ./sonido-cough.yaml or $HOME/.config/sonido-cough/sonido-cough.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVarP(&opts.outputFormat, "output", "o", OutputTable, "output format (table, json, yaml)")

	root.AddCommand(
		newServeCommand(opts),
		newClassifyCommand(opts),
		newFeaturesCommand(opts),
		newVersionCommand(),
	)
	return root
}

// initialize loads configuration once flags are parsed and installs the logger
func (o *rootOptions) initialize(cmd *cobra.Command) error {
	if err := validateOutputFormat(o.outputFormat); err != nil {
		return err
	}

	config, err := configs.Load(configs.LoadOptions{
		ConfigFile: o.configFile,
		EnvFile:    o.envFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return classify.Wrap(classify.KindConfiguration, "cmd.config", "invalid configuration", err)
	}
	o.config = config

	level, err := logging.ParseLevel(config.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(config.Log.Format, level)
	if err != nil {
		return err
	}
	logging.SetGlobalLogger(logger)
	return nil
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	err := NewRootCommand().Execute()
	if syncer, ok := logging.GetGlobalLogger().(interface{ Sync() error }); ok {
		_ = syncer.Sync()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
