package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"toonlab/internal/cartoon"
	"toonlab/internal/imaging"
	"toonlab/internal/infra"
	"toonlab/internal/storage"
)

type filterFlags struct {
	filter     string
	seed       int64
	maxSamples int
	onFailure  string
	format     string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.filter, "filter", "f", cartoon.FilterCartoonA, "filter name (cartoon_a or cartoon_b)")
	cmd.Flags().Int64Var(&f.seed, "seed", -1, "k-means seed, negative for a random run")
	cmd.Flags().IntVar(&f.maxSamples, "max-samples", 100000, "pixels used to fit the palette, 0 for all")
	cmd.Flags().StringVar(&f.onFailure, "on-failure", "", "override the failure policy (fallback_to_original or propagate)")
	cmd.Flags().StringVar(&f.format, "format", "jpeg", "output format (jpeg or png)")
}

func (f *filterFlags) pipeline(logger *infra.Logger) (*cartoon.Pipeline, error) {
	kmeans := imaging.DefaultKMeansOptions
	kmeans.MaxSamples = f.maxSamples
	if f.seed >= 0 {
		seed := uint64(f.seed)
		kmeans.Seed = &seed
	}
	opts := cartoon.Options{
		KMeans: kmeans,
		Encode: imaging.EncodeOptions{Format: f.format},
		Logger: logger,
	}
	if f.onFailure != "" {
		policy, ok := cartoon.ParseFailurePolicy(f.onFailure)
		if !ok {
			return nil, fmt.Errorf("unknown failure policy %q", f.onFailure)
		}
		opts.Policies = map[string]cartoon.FailurePolicy{f.filter: policy}
	}
	registry, err := cartoon.DefaultRegistry(opts)
	if err != nil {
		return nil, err
	}
	return registry.Get(f.filter)
}

// NewCLI builds the cartoonize command tree.
func NewCLI() *cobra.Command {
	logger := infra.NewLogger(os.Getenv("APP_ENV"))

	root := &cobra.Command{
		Use:           "cartoonize",
		Short:         "Apply cartoon filters to images",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		applyCmd(&logger),
		stagesCmd(&logger),
		filtersCmd(),
	)
	return root
}

func applyCmd(logger *infra.Logger) *cobra.Command {
	var flags filterFlags
	var stage, out string
	cmd := &cobra.Command{
		Use:   "apply INPUT",
		Short: "Run a filter and write the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := flags.pipeline(logger)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			s, _ := cartoon.ParseStage(stage)
			res, err := pipeline.Apply(cmd.Context(), data, s)
			if err != nil {
				return err
			}
			if out == "" {
				out = defaultOutput(args[0], string(res.Stage), res.ContentType)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return err
			}
			if res.FellBack {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s failed (%v), wrote the original image\n", pipeline.Name(), res.Cause)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&stage, "stage", "", "stop at this stage (original, grayscale, edges, color_reduced, blurred, final)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file")
	return cmd
}

func stagesCmd(logger *infra.Logger) *cobra.Command {
	var flags filterFlags
	var dir string
	cmd := &cobra.Command{
		Use:   "stages INPUT",
		Short: "Write every intermediate stage to a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := flags.pipeline(logger)
			if err != nil {
				return err
			}
			store, err := storage.NewFileStore(dir)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			artifacts, runErr := pipeline.CollectStages(cmd.Context(), data)
			base := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			for i, art := range artifacts {
				key, err := store.Write(cmd.Context(), fmt.Sprintf("%s/%d_%s%s", base, i, art.Stage, art.Extension), art.Data)
				if err != nil {
					return err
				}
				path, _ := store.Path(key)
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return runErr
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&dir, "dir", "d", "stages", "output directory")
	return cmd
}

func filtersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List available filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := cartoon.DefaultRegistry(cartoon.Options{})
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func defaultOutput(input, stage, contentType string) string {
	ext := ".jpg"
	if contentType == "image/png" {
		ext = ".png"
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return fmt.Sprintf("%s_%s%s", base, stage, ext)
}
