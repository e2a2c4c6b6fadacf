package cli

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"emotionserver/internal/app"
	"emotionserver/internal/service"
	"emotionserver/internal/service/emotion"
	"emotionserver/internal/service/frame"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var imageExtensions = []string{".bmp", ".gif", ".jpeg", ".jpg", ".png", ".tif", ".tiff", ".webp"}

func newPredictCmd(e *env) *cobra.Command {
	var (
		save     bool
		allFaces bool
	)
	cmd := &cobra.Command{
		Use:   "predict <file|dir>...",
		Short: "Classify the faces in image files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			files, err := expandInputs(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no images found in %s", strings.Join(args, ", "))
			}

			locator, model, pipeline, err := app.NewPipeline(e.cfg, e.logger, nil)
			if err != nil {
				return err
			}
			defer locator.Close()
			defer model.Close()

			var manager *service.Manager
			if save {
				repo, err := app.OpenRepository(ctx, e.cfg)
				if err != nil {
					return err
				}
				defer repo.Close()
				manager = service.NewManager(pipeline, repo, nil, nil, e.logger)
				manager.SetMaxFramePixels(e.cfg.MaxFramePixels)
			}

			var bar *progressbar.ProgressBar
			if term.IsTerminal(int(os.Stderr.Fd())) {
				bar = progressbar.NewOptions(len(files),
					progressbar.OptionSetDescription("Classifying"),
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}

			classify := func(path string) ([]emotion.Decision, error) {
				return classifyFile(path, pipeline, locator, allFaces, e.cfg.MaxFramePixels)
			}
			var record recordFunc
			if manager != nil {
				record = func(ctx context.Context, d emotion.Decision, path string) error {
					_, err := manager.Record(ctx, d, path, "")
					return err
				}
			}
			report := func(path string, err error) {
				if err != nil {
					e.logger.Warning("Skipping %s: %v", path, err)
				}
				if bar != nil {
					bar.Add(1)
				}
			}

			failed, err := predictFiles(ctx, cmd.OutOrStdout(), files, classify, record, report)
			if err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be classified", failed, len(files))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "store the predictions in the history database")
	cmd.Flags().BoolVar(&allFaces, "all", false, "classify every detected face, not only the first")
	return cmd
}

type recordFunc func(ctx context.Context, d emotion.Decision, path string) error

// predictFiles prints one table row per decision and counts the files that
// could not be classified. record may be nil. The table is flushed on every
// return, so rows printed before a failing save are kept. report runs after
// each file with its classification error, if any.
func predictFiles(ctx context.Context, out io.Writer, files []string, classify func(string) ([]emotion.Decision, error), record recordFunc, report func(string, error)) (int, error) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "FILE\tEMOTION\tCONFIDENCE\tREGION")
	fmt.Fprintln(w, "----\t-------\t----------\t------")

	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return failed, err
		}

		decisions, err := classify(path)
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s\terror\t-\t%v\n", path, err)
		}
		for _, d := range decisions {
			printDecision(w, path, d)
			if record == nil {
				continue
			}
			if err := record(ctx, d, path); err != nil {
				return failed, fmt.Errorf("save %s: %w", path, err)
			}
		}
		if report != nil {
			report(path, err)
		}
	}
	return failed, nil
}

// classifyFile returns one decision, or one per face with all set.
func classifyFile(path string, pipeline *emotion.Pipeline, locator emotion.Locator, all bool, maxPixels int) ([]emotion.Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	img, _, err := frame.DecodeLimited(data, maxPixels)
	if err != nil {
		return nil, err
	}

	regions, err := locator.Locate(img)
	if err != nil {
		return nil, err
	}
	if !all || len(regions) == 0 {
		d, err := pipeline.Decide(img, regions)
		if err != nil {
			return nil, err
		}
		return []emotion.Decision{d}, nil
	}

	dists, err := pipeline.ClassifyRegions(img, regions)
	if err != nil {
		return nil, err
	}
	out := make([]emotion.Decision, len(regions))
	for i, r := range regions {
		out[i] = emotion.Decision{Region: r, Result: dists[i].Top()}
	}
	return out, nil
}

func printDecision(w io.Writer, path string, d emotion.Decision) {
	e, ok := d.Emotion()
	if !ok {
		fmt.Fprintf(w, "%s\t%s\t-\t-\n", path, d.Result)
		return
	}
	fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", path, e.Label, e.Confidence, formatRegion(d.Region))
}

func formatRegion(r image.Rectangle) string {
	return fmt.Sprintf("%d,%d %dx%d", r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// expandInputs replaces directories by the images directly inside them.
func expandInputs(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if entry.Type().IsRegular() && slices.Contains(imageExtensions, ext) {
				files = append(files, filepath.Join(arg, entry.Name()))
			}
		}
	}
	return files, nil
}
