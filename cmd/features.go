package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-cough/classify"
	"github.com/RyanBlaney/sonido-cough/features"
	"github.com/RyanBlaney/sonido-cough/transcode"
)

type namedFeature struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

type featuresReport struct {
	File     string              `json:"file" yaml:"file"`
	Waveform *transcode.Waveform `json:"waveform" yaml:"waveform"`
	Frames   int                 `json:"frames" yaml:"frames"`
	Tuning   float64             `json:"tuning" yaml:"tuning"`
	Features []namedFeature      `json:"features" yaml:"features"`
}

func newFeaturesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features <file>",
		Short: "Print the raw 30-value feature vector of a recording",
		Long: `Decodes and length-fixes a recording and prints the unscaled feature vector
the classifier consumes, along with decode diagnostics. No model is loaded.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			normalizer, err := buildNormalizer(opts.config)
			if err != nil {
				return err
			}
			extractor, err := buildExtractor(opts.config)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return classify.Wrap(classify.KindMissingInput, "cmd.features", "failed to read audio file", err)
			}

			waveform, err := normalizer.Normalize(cmd.Context(), data)
			if err != nil {
				return classify.Wrap(classify.KindDecode, "cmd.features", "failed to decode audio", err)
			}
			analysis, err := extractor.Analyze(cmd.Context(), waveform.Samples, waveform.SampleRate)
			if err != nil {
				return classify.Wrap(classify.KindFeatureExtraction, "cmd.features", "failed to extract features", err)
			}

			report := featuresReport{
				File:     filepath.Base(args[0]),
				Waveform: waveform,
				Frames:   analysis.Frames,
				Tuning:   analysis.Tuning,
			}
			for i, name := range features.Names() {
				report.Features = append(report.Features, namedFeature{Name: name, Value: analysis.Vector[i]})
			}

			return writeOutput(cmd.OutOrStdout(), opts.outputFormat, report, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "File:\t%s\n", report.File)
				fmt.Fprintf(tw, "Format:\t%s (%s, %s)\n", waveform.Format, waveform.ContentType, waveform.Backend)
				fmt.Fprintf(tw, "Source rate:\t%d Hz\n", waveform.SourceSampleRate)
				fmt.Fprintf(tw, "Padded / truncated:\t%t / %t\n", waveform.Padded, waveform.Truncated)
				fmt.Fprintf(tw, "RMS:\t%.1f dBFS\n", waveform.Level.RMSdB)
				fmt.Fprintf(tw, "Frames:\t%d\n", report.Frames)
				fmt.Fprintf(tw, "Tuning:\t%+.2f semitones\n\n", report.Tuning)
				fmt.Fprintf(tw, "FEATURE\tVALUE\n")
				for _, f := range report.Features {
					fmt.Fprintf(tw, "%s\t%.6g\n", f.Name, f.Value)
				}
			})
		},
	}
	addDecoderFlag(cmd)
	return cmd
}
