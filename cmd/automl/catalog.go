package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/thalesfsp/automl"
	"github.com/thalesfsp/automl/internal/spacefile"
)

func newCatalogCmd(a *app) *cobra.Command {
	var (
		task   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the trainers of a task and their hyperparameters",
		Long: `List the catalog trainers of a task, in search order, with their
sweepable hyperparameters.

Examples:
  # Trainers of the configured task
  automl catalog

  # Regression trainers as a search space file
  automl catalog --task regression --format yaml > space.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if task == "" {
				task = a.cfg.Search.Task
			}

			kind, err := automl.ParseTaskKind(task)
			if err != nil {
				return err
			}

			specs, err := automl.AllowedTrainers(kind)
			if err != nil {
				return err
			}

			switch format {
			case "yaml":
				return spacefile.FromSpecs(kind, specs).Encode(cmd.OutOrStdout())
			case "text":
				return printSpecs(cmd, specs)
			default:
				return fmt.Errorf("unknown format %q, must be text or yaml", format)
			}
		},
	}

	cmd.Flags().StringVar(&task, "task", "", "task: binary, multiclass or regression (default from config)")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or yaml")

	return cmd
}

func printSpecs(cmd *cobra.Command, specs []automl.TrainerSpec) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(w, "TRAINER\tPARAM\tKIND\tVALUES")

	for _, spec := range specs {
		domains := spec.Domains()
		if len(domains) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\n", spec.Kind())

			continue
		}

		for _, d := range domains {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", spec.Kind(), d.Name, d.Kind, describeDomain(d))
		}
	}

	return w.Flush()
}

func describeDomain(d automl.ParamDomain) string {
	if d.Kind == automl.DiscreteParam {
		return "{" + strings.Join(d.Options, ",") + "}"
	}

	out := fmt.Sprintf("[%g, %g]", d.Min, d.Max)

	if d.LogScale {
		out += " log"
	}

	switch {
	case d.NumSteps > 0:
		out += fmt.Sprintf(" steps=%d", d.NumSteps)
	case d.StepSize > 0:
		out += fmt.Sprintf(" step=%g", d.StepSize)
	}

	return out
}
