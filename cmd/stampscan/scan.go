package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alainbuyze/stampscan/internal/config"
	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/scan"
	"github.com/alainbuyze/stampscan/internal/session"
)

// buildApp wires the pipeline, recorder, and index from config. The
// returned closer releases the index handle and the fallback model.
func buildApp(cfg config.Config) (*scan.Runner, *session.Recorder, *session.Index, func(), error) {
	var index *session.Index
	if cfg.IndexPath != "" {
		var err error
		index, err = session.OpenIndex(cfg.IndexPath)
		if err != nil {
			// The directory tree stays authoritative without the index.
			slog.Warn("session index disabled", "path", cfg.IndexPath, "error", err)
			index = nil
		}
	}

	recorder, err := session.NewRecorder(cfg.SessionRoot, index)
	if err != nil {
		if index != nil {
			index.Close()
		}
		return nil, nil, nil, nil, err
	}

	var fallback detection.Fallback
	var model *detection.ModelDetector
	if cfg.Pipeline.EnableFallback {
		model = detection.NewModelDetector(cfg.Fallback)
		fallback = model
	}

	pipeline := detection.NewPipeline(
		detection.NewShapeDetector(cfg.Shapes),
		detection.NewClassifier(cfg.Classifier),
		fallback,
		cfg.Pipeline,
	)

	runner := scan.NewRunner(pipeline, nil, recorder)

	closer := func() {
		if model != nil {
			model.Close()
		}
		if index != nil {
			index.Close()
		}
	}
	return runner, recorder, index, closer, nil
}

func newScanCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image> [image...]",
		Short: "Scan sheet images for stamps",
		Long: `Runs the detection pipeline on each image: shape detection, heuristic
classification, and session recording. Accepted stamps are recorded as
pending; catalog identification requires a configured identification
engine with describer, embedder, and index endpoints. Prints a
per-image summary table.`,
		Example: `  # Scan one sheet
  stampscan scan sheet.jpg

  # Scan a batch
  stampscan scan scans/*.png`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			runner, _, _, closer, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer closer()

			var failed int
			for _, path := range args {
				result, err := runner.ScanFile(cmd.Context(), path)
				if err != nil {
					slog.Error("scan failed", "file", path, "error", err)
					failed++
					continue
				}
				printResult(path, result)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scans failed", failed, len(args))
			}
			return nil
		},
	}
	return cmd
}

func printResult(path string, result *scan.Result) {
	sum := result.Summary
	fmt.Printf("%s -> session %s (%.1fs)\n", path, result.Session.SessionID, result.Elapsed.Seconds())
	fmt.Printf("  %d detected: %d identified, %d ambiguous, %d no match, %d rejected, %d pending\n",
		sum.Total, sum.Identified, sum.Ambiguous, sum.NoMatch, sum.Rejected, sum.Pending)

	if len(result.Session.Records) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSHAPE\tSTATUS\tDETAIL")
	for i := range result.Session.Records {
		rec := &result.Session.Records[i]
		detail := ""
		switch rec.Status() {
		case session.StatusIdentified:
			if m, ok := rec.TopMatch(); ok {
				detail = fmt.Sprintf("%s (%.0f%%)", m.CatalogID, m.Score*100)
			}
		case session.StatusAmbiguous:
			detail = fmt.Sprintf("%d candidates", len(rec.MatchDetails))
		case session.StatusRejected:
			detail = rec.RejectReason
		default:
			if rec.ErrorNote != "" {
				detail = rec.ErrorNote
			}
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", rec.DetectionID, rec.ShapeType, rec.Status(), detail)
	}
	w.Flush()
}
