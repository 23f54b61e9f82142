package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/docverify/internal/fetcher"
	"github.com/sells-group/docverify/internal/pipeline"
)

var (
	extractHint     string
	extractShipment string
	extractLimit    int
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE|URL...",
	Short: "Extract, validate and store documents",
	Long:  "Reads PDF, XLSX or text documents from local paths or ftp/http URLs, extracts their fields, validates them and stores the result. Prints one JSON object per document.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "extract", true)
		if err != nil {
			return err
		}
		defer env.Close()

		dir := cfg.Fetch.TempDir
		if dir == "" {
			if dir, err = os.MkdirTemp("", "docverify-*"); err != nil {
				return eris.Wrap(err, "create staging dir")
			}
			defer os.RemoveAll(dir)
		}
		stager := newStager(dir)

		concurrency := extractLimit
		if concurrency <= 0 {
			concurrency = cfg.Extraction.MaxConcurrent
		}
		outcomes, err := processFiles(ctx, args, concurrency, func(ctx context.Context, src string) (*pipeline.Outcome, error) {
			return processSource(ctx, stager, env.Processor, src)
		})
		if encErr := printOutcomes(os.Stdout, outcomes); encErr != nil {
			return encErr
		}
		return err
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractHint, "hint", "", "document type hint (e.g. packing_list)")
	extractCmd.Flags().StringVar(&extractShipment, "shipment", "", "shipment id the documents belong to")
	extractCmd.Flags().IntVar(&extractLimit, "concurrency", 0, "max documents in flight (default from config)")
	rootCmd.AddCommand(extractCmd)
}

// processSource stages src, acquires its text and runs it through the
// processor.
func processSource(ctx context.Context, stager *fetcher.Stager, proc *pipeline.Processor, src string) (*pipeline.Outcome, error) {
	path, err := stager.Stage(ctx, src)
	if err != nil {
		return nil, err
	}
	ex, err := textExtractor(path)
	if err != nil {
		return nil, err
	}
	text, err := ex.ExtractText(ctx, path)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("text acquired",
		zap.String("source", src),
		zap.Int("chars", text.Length),
	)
	return proc.Process(ctx, pipeline.Input{
		Text:       text.Text,
		Hint:       extractHint,
		ShipmentID: extractShipment,
		Source:     src,
	})
}

// processFunc handles one document source.
type processFunc func(ctx context.Context, src string) (*pipeline.Outcome, error)

// processFiles runs process over sources with bounded concurrency. Outcomes
// keep the order of sources; a failed source leaves a nil slot and does not
// stop the others. The error reports how many sources failed.
func processFiles(ctx context.Context, sources []string, concurrency int, process processFunc) ([]*pipeline.Outcome, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	zap.L().Info("processing documents",
		zap.Int("documents", len(sources)),
		zap.Int("concurrency", concurrency),
	)

	outcomes := make([]*pipeline.Outcome, len(sources))
	var succeeded, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, src := range sources {
		g.Go(func() error {
			log := zap.L().With(zap.String("source", src))
			out, err := process(gctx, src)
			if err != nil {
				failed.Add(1)
				log.Error("document failed", zap.Error(err))
				return nil // don't abort the batch on one document
			}
			outcomes[i] = out
			succeeded.Add(1)
			log.Info("document complete",
				zap.String("record_id", out.Record.ID()),
				zap.Bool("valid", out.Validation.IsValid),
			)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if n := failed.Load(); n > 0 {
		return outcomes, eris.Errorf("extract: %d of %d documents failed", n, len(sources))
	}
	return outcomes, nil
}

func printOutcomes(w io.Writer, outcomes []*pipeline.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "encode outcome")
		}
	}
	return nil
}
