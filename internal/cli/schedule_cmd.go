package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jspindler/takt/internal/cli/formatter"
	"github.com/jspindler/takt/internal/contract"
	"github.com/jspindler/takt/internal/domain"
	"github.com/jspindler/takt/internal/importer"
)

func newScheduleCmd(app *App) *cobra.Command {
	var dryRun, byOrderIndex, noExplain bool
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "schedule BATCH_FILE",
		Short: "Schedule a batch of process instances",
		Long: `Schedule reads a batch file (JSON or YAML) of process instances and
places each one on a capable machine. Machines come from the batch file
when it carries any, otherwise from the registry.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			instances, machines, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			if len(machines) == 0 {
				machines, err = app.Machines.List(ctx)
				if err != nil {
					return fmt.Errorf("loading machine registry: %w", err)
				}
			}

			req := contract.NewScheduleRequest(instances, machines)
			req.DryRun = dryRun
			req.Explain = !noExplain
			if nowFlag != "" {
				now, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("parsing --now: %w", err)
				}
				req.Now = &now
			}

			svc := app.Schedule
			if byOrderIndex {
				svc = app.Sequence
			}
			resp, err := svc.Schedule(ctx, req)
			if err != nil {
				return err
			}

			cmd.Print(formatter.FormatScheduleResponse(resp, instances))
			if !resp.Success {
				// A run with conflicts still prints everything; the exit code
				// carries the verdict for scripting.
				return errSilentFailure
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute the schedule without persisting entries")
	cmd.Flags().BoolVar(&byOrderIndex, "order-index", false, "Place in operator order, skipping dependency analysis")
	cmd.Flags().BoolVar(&noExplain, "no-explain", false, "Omit the priority score breakdown")
	cmd.Flags().StringVar(&nowFlag, "now", "", "Reference time (RFC 3339), defaults to the wall clock")

	return cmd
}

// errSilentFailure flips the exit code without printing a second error;
// the conflict report is already on screen.
var errSilentFailure = errors.New("scheduling finished with conflicts")

// loadBatch parses and validates a batch file, itemizing every problem.
func loadBatch(path string) ([]*domain.ProcessInstance, []*domain.Machine, error) {
	batch, err := importer.LoadBatch(path)
	if err != nil {
		return nil, nil, err
	}
	if errs := importer.ValidateBatch(batch); len(errs) > 0 {
		msg := fmt.Sprintf("batch file %s has %d problem(s):", path, len(errs))
		for _, e := range errs {
			msg += "\n  - " + e.Error()
		}
		return nil, nil, errors.New(msg)
	}
	return importer.Convert(batch)
}
