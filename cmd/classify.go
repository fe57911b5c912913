package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-cough/classify"
)

type classifyReport struct {
	File            string `json:"file" yaml:"file"`
	classify.Result `yaml:",inline"`
	ElapsedMS       int64 `json:"elapsed_ms" yaml:"elapsed_ms"`
}

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <file>",
		Short: "Classify one recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := buildService(opts.config, false)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return classify.Wrap(classify.KindMissingInput, "cmd.classify", "failed to read audio file", err)
			}

			start := time.Now()
			result, err := service.Classify(cmd.Context(), data)
			if err != nil {
				return err
			}

			report := classifyReport{
				File:      filepath.Base(args[0]),
				Result:    *result,
				ElapsedMS: time.Since(start).Milliseconds(),
			}
			return writeOutput(cmd.OutOrStdout(), opts.outputFormat, report, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "File:\t%s\n", report.File)
				fmt.Fprintf(tw, "Classification:\t%s\n\n", report.Classification)
				fmt.Fprintf(tw, "LABEL\tSCORE\n")
				for _, p := range report.Probabilities {
					fmt.Fprintf(tw, "%s\t%.4f\n", p.Label, p.Score)
				}
			})
		},
	}
	addModelFlags(cmd)
	return cmd
}
