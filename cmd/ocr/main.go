// Command ocr recognizes text from the command line and writes model build
// configuration.
//
//	ocr recognize ./receipt.png --detector korean
//	ocr languages
//	ocr models gradle android/build.gradle --models korean,japanese --write
//	ocr models tags --models korean
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adverant/nexus/ocr-worker/internal/config"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/imageloader"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
	"github.com/adverant/nexus/ocr-worker/internal/modelconfig"
	"github.com/adverant/nexus/ocr-worker/internal/models"
	"github.com/adverant/nexus/ocr-worker/internal/processor"
	"github.com/adverant/nexus/ocr-worker/internal/recognizer"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ocr",
		Short:         "Recognize text in images with on-host language models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRecognizeCmd(), newLanguagesCmd(), newModelsCmd())
	return root
}

// newProcessor wires a processor from the environment the same way the
// worker does, without persistence or queues
func newProcessor(cfg *config.Config) (*processor.TextProcessor, error) {
	resolvers := []imageloader.ContentResolver{imageloader.DataURIResolver{}}
	if cfg.S3Enabled {
		s3Resolver, err := imageloader.NewS3Resolver(context.Background(), cfg.AWSRegion, cfg.MaxImageSize)
		if err != nil {
			return nil, err
		}
		resolvers = append(resolvers, s3Resolver)
	}

	registry := recognizer.NewRegistry()
	models.Install(registry, cfg.TessdataDir())

	return processor.NewTextProcessor(&processor.ProcessorConfig{
		Loader: imageloader.NewLoader(&imageloader.LoaderConfig{
			Timeout:      cfg.DownloadTimeout,
			MaxImageSize: cfg.MaxImageSize,
			Resolvers:    resolvers,
		}),
		Registry: registry,
		Logger:   logging.NewLogger("ocr"),
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg.LogLevel, "console")
	return cfg, nil
}

func newRecognizeCmd() *cobra.Command {
	var detector, tessdata string

	cmd := &cobra.Command{
		Use:   "recognize <image-uri>",
		Short: "Recognize text in an image and print the document as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if tessdata != "" {
				cfg.TessdataPrefix = tessdata
				cfg.UseBundled = false
			}

			proc, err := newProcessor(cfg)
			if err != nil {
				return err
			}
			defer proc.Close()

			doc, err := proc.RecognizeText(cmd.Context(), args[0], detector)
			if err != nil {
				writeJSON(cmd.ErrOrStderr(), map[string]string{
					"code":    string(errors.CodeOf(err)),
					"message": errors.MessageOf(err),
				})
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVarP(&detector, "detector", "d", "", "language model: latin, chinese, devanagari, japanese, korean")
	cmd.Flags().StringVar(&tessdata, "tessdata", "", "directory holding traineddata files")
	return cmd
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List the language models available in this build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			proc, err := newProcessor(cfg)
			if err != nil {
				return err
			}
			defer proc.Close()
			return writeJSON(cmd.OutOrStdout(), proc.GetAvailableLanguages(cmd.Context()))
		},
	}
}

func newModelsCmd() *cobra.Command {
	var (
		selected []string
		bundled  bool
		write    bool
	)

	props := func(cmd *cobra.Command) modelconfig.Props {
		p := modelconfig.Props{UseBundled: bundled}
		if cmd.Flags().Changed("models") {
			p.Models = selected
		}
		return p
	}

	patchCmd := func(use, short string, patch func(string, modelconfig.Props) string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <file>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				out := patch(string(data), props(cmd))
				if !write {
					_, err := io.WriteString(cmd.OutOrStdout(), out)
					return err
				}
				if err := os.WriteFile(args[0], []byte(out), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", args[0], err)
				}
				return nil
			},
		}
	}

	tagsCmd := &cobra.Command{
		Use:   "tags",
		Short: "Print the go build tags that link the selected models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := modelconfig.BuildTags(props(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, ","))
			return err
		},
	}

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Write the OCR model selection into build files",
	}
	cmd.PersistentFlags().StringSliceVar(&selected, "models", nil, "models to bundle (default all)")
	cmd.PersistentFlags().BoolVar(&bundled, "bundled", false, "bundle models with the app instead of downloading them")
	cmd.PersistentFlags().BoolVarP(&write, "write", "w", false, "rewrite the file in place instead of printing it")
	cmd.AddCommand(
		patchCmd("gradle", "Patch a Groovy build.gradle", modelconfig.PatchGradle),
		patchCmd("podfile", "Patch a CocoaPods Podfile", modelconfig.PatchPodfile),
		tagsCmd,
	)
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
