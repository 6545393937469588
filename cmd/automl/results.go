package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/artifact"
	"github.com/thalesfsp/automl/history"
	"github.com/thalesfsp/automl/history/postgres"
	"go.uber.org/zap"
)

func newResultsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Trial history and model artifact operations",
	}

	cmd.AddCommand(newResultsBestCmd(a))
	cmd.AddCommand(newResultsImportCmd(a))
	cmd.AddCommand(newResultsUploadCmd(a))

	return cmd
}

func newResultsBestCmd(a *app) *cobra.Command {
	var (
		runID     string
		top       int
		direction string
	)

	cmd := &cobra.Command{
		Use:   "best [FILE]",
		Short: "Rank the recorded trials of a run",
		Long: `Rank the trials of a run recorded in a JSON lines history file, best
first. Failed trials are left out. The run defaults to the most recent one in
the file and FILE defaults to history.path.

Examples:
  automl results best trials.jsonl --top 5
  automl results best trials.jsonl --run 6f1c... --direction minimize`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.History.Path
			if len(args) == 1 {
				path = args[0]
			}

			if path == "" {
				return errors.New("no history file, pass FILE or set history.path")
			}

			if direction == "" {
				direction = a.cfg.Search.Direction
			}

			dir, err := automl.ParseDirection(direction)
			if err != nil {
				return err
			}

			records, err := history.Load(path)
			if err != nil {
				return err
			}

			if runID == "" {
				runID = latestRun(records)
			}

			run := history.ForRun(records, runID)
			if len(run) == 0 {
				return fmt.Errorf("no trials for run %q in %s", runID, path)
			}

			ranked := automl.TopNBy(run, top, dir, history.Record.ScoreValue)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "run: %s (%d trials, %s)\n", runID, len(run), dir)
			fmt.Fprintln(w, "RANK\tITERATION\tSTAGE\tTRAINER\tSCORE\tDURATION")

			for i, r := range ranked {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\n",
					i+1,
					r.Iteration,
					r.Stage,
					r.Trainer,
					formatScore(r),
					(time.Duration(r.DurationMS) * time.Millisecond).String(),
				)
			}

			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "run ID (default: most recent)")
	cmd.Flags().IntVar(&top, "top", 10, "number of trials to show")
	cmd.Flags().StringVar(&direction, "direction", "", "maximize or minimize (default from config)")

	return cmd
}

func newResultsImportCmd(a *app) *cobra.Command {
	var runID string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Copy a JSON lines history into PostgreSQL",
		Long: `Copy the trials of a JSON lines history file into the PostgreSQL trial
table at history.database_url. Trials already present are skipped.

Examples:
  AUTOML_HISTORY_DATABASE_URL=postgres://localhost/automl automl results import trials.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.History.DatabaseURL == "" {
				return errors.New("history.database_url is not set")
			}

			records, err := history.Load(args[0])
			if err != nil {
				return err
			}

			if runID != "" {
				records = history.ForRun(records, runID)
			}

			ctx := cmd.Context()

			db, err := postgres.Open(ctx, postgres.DefaultConfig(a.cfg.History.DatabaseURL))
			if err != nil {
				return err
			}
			defer db.Close()

			store, err := postgres.New(db)
			if err != nil {
				return err
			}

			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}

			for _, r := range records {
				if err := store.Insert(ctx, r); err != nil {
					return fmt.Errorf("run %s iteration %d: %w", r.RunID, r.Iteration, err)
				}
			}

			a.logger.Info("trials imported", zap.Int("count", len(records)))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d trials\n", len(records))

			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "only import this run")

	return cmd
}

func newResultsUploadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [DIR]",
		Short: "Upload saved models to the MinIO bucket",
		Long: `Upload every model file under DIR (default artifacts.dir) to the
configured MinIO bucket, keeping relative paths as object keys.

Examples:
  automl results upload ./models --config automl.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Artifacts.Dir
			if len(args) == 1 {
				dir = args[0]
			}

			if dir == "" {
				return errors.New("no model directory, pass DIR or set artifacts.dir")
			}

			if !a.cfg.Artifacts.MinioEnabled() {
				return errors.New("artifacts.minio_endpoint is not set")
			}

			src, err := artifact.NewFileStore(dir)
			if err != nil {
				return err
			}

			dst, err := artifact.NewMinioStore(a.cfg.Artifacts.Minio())
			if err != nil {
				return err
			}

			n, err := upload(cmd.Context(), src, dst, a.logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %d models\n", n)

			return nil
		},
	}
}

// remoteStore is what upload needs from the destination bucket.
type remoteStore interface {
	automl.ArtifactStore
	EnsureBucket(ctx context.Context) error
}

func upload(ctx context.Context, src *artifact.FileStore, dst remoteStore, logger *zap.Logger) (int, error) {
	if err := dst.EnsureBucket(ctx); err != nil {
		return 0, err
	}

	keys, err := src.List()
	if err != nil {
		return 0, err
	}

	for _, key := range keys {
		if err := copyModel(ctx, src, dst, key); err != nil {
			return 0, err
		}

		logger.Debug("model uploaded", zap.String("key", key))
	}

	return len(keys), nil
}

func copyModel(ctx context.Context, src *artifact.FileStore, dst automl.ArtifactStore, key string) error {
	rc, size, err := src.Open(key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := dst.Put(ctx, key, rc, size); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	return nil
}

// latestRun returns the run of the most recently recorded trial.
func latestRun(records []history.Record) string {
	var (
		runID  string
		latest time.Time
	)

	for _, r := range records {
		if runID == "" || r.RecordedAt.After(latest) {
			runID = r.RunID
			latest = r.RecordedAt
		}
	}

	return runID
}

func formatScore(r history.Record) string {
	if r.Score == nil {
		if r.Error != "" {
			return "failed"
		}

		return "NaN"
	}

	return strconv.FormatFloat(*r.Score, 'g', 6, 64)
}
