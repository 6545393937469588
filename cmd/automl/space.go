package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/internal/spacefile"
	"go.uber.org/zap"
)

var errNotRun = errors.New("not run")

// dryRunner fails every candidate without training it.
type dryRunner struct{}

func (dryRunner) Run(ctx context.Context, _ automl.CandidatePipeline, _ int) (automl.RunResult, error) {
	if err := ctx.Err(); err != nil {
		return automl.RunResult{}, err
	}

	return automl.RunResult{Score: math.NaN(), Err: errNotRun}, nil
}

// tableRecorder prints each trial as a table row.
type tableRecorder struct {
	w io.Writer
}

func (r tableRecorder) Record(_ context.Context, t automl.Trial) error {
	_, err := fmt.Fprintf(r.w, "%d\t%s\t%s\n", t.Iteration, t.Stage, t.Entry.Candidate)

	return err
}

func newSpaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Search space file operations",
	}

	cmd.AddCommand(newSpaceValidateCmd())
	cmd.AddCommand(newSpaceSampleCmd(a))

	return cmd
}

func newSpaceValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a search space file",
		Long: `Validate a search space file and print the size of each trainer's space.

Examples:
  automl space validate space.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, specs, err := loadSpace(args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "task: %s\n", task)
			fmt.Fprintln(w, "TRAINER\tPARAMS\tPOINTS")

			for _, spec := range specs {
				fmt.Fprintf(w, "%s\t%d\t%s\n", spec.Kind(), len(spec.Generators()), spacePoints(spec))
			}

			return w.Flush()
		},
	}
}

func newSpaceSampleCmd(a *app) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "sample FILE",
		Short: "Print the first candidates a search would propose",
		Long: `Print the first candidates the search strategy would propose for a
search space, without training anything. Every proposal is treated as a
failed run, so the output shows the exploration order followed by the
exploitation rotation.

The sweeper, seed and strategy settings come from the search config.

Examples:
  automl space sample space.yaml -n 20
  AUTOML_SEARCH_SWEEPER=random AUTOML_SEARCH_SEED=7 automl space sample space.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if n < 1 {
				return errors.New("-n must be at least 1")
			}

			_, specs, err := loadSpace(args[0])
			if err != nil {
				return err
			}

			s, err := automl.NewSuggester(a.cfg.Search.SuggesterConfig(specs, nil, a.logger))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ITERATION\tSTAGE\tPIPELINE")

			cfg := a.cfg.ExperimentConfig(a.logger)
			cfg.MaxTrials = n
			cfg.Recorder = tableRecorder{w: w}

			e, err := automl.NewExperiment(s, dryRunner{}, cfg)
			if err != nil {
				return err
			}

			report, err := e.Execute(cmd.Context())
			if err != nil {
				return err
			}

			a.logger.Info("sampling stopped",
				zap.Stringer("reason", report.StopReason),
				zap.Int("candidates", len(report.Entries)),
			)

			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&n, "num", "n", 10, "number of candidates")

	return cmd
}

func loadSpace(path string) (automl.TaskKind, []automl.TrainerSpec, error) {
	f, err := spacefile.Load(path)
	if err != nil {
		return 0, nil, err
	}

	task, err := f.TaskKind()
	if err != nil {
		return 0, nil, err
	}

	specs, err := f.TrainerSpecs()
	if err != nil {
		return 0, nil, err
	}

	return task, specs, nil
}

// maxPoints caps the reported size of a trainer's space.
const maxPoints = 1_000_000_000

// spacePoints describes the number of distinct assignments of a trainer.
func spacePoints(spec automl.TrainerSpec) string {
	total := 1

	for _, g := range spec.Generators() {
		n := g.Len()
		if n == 0 {
			return "continuous"
		}

		if total > maxPoints/n {
			return fmt.Sprintf(">%d", maxPoints)
		}

		total *= n
	}

	return strconv.Itoa(total)
}
