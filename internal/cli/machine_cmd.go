package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jspindler/takt/internal/cli/formatter"
	"github.com/jspindler/takt/internal/domain"
)

func newMachinesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "machines",
		Short: "Manage the machine registry",
	}

	cmd.AddCommand(
		newMachinesListCmd(app),
		newMachinesImportCmd(app),
		newMachinesUtilizationCmd(app),
	)

	return cmd
}

func newMachinesListCmd(app *App) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered machines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			var machines []*domain.Machine
			var err error
			if activeOnly {
				machines, err = app.Machines.ListActive(ctx)
			} else {
				machines, err = app.Machines.List(ctx)
			}
			if err != nil {
				return err
			}

			cmd.Print(formatter.FormatMachines(machines))
			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show only active machines")

	return cmd
}

func newMachinesImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import BATCH_FILE",
		Short: "Upsert machines from a batch file into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			_, machines, err := loadBatch(args[0])
			if err != nil {
				return err
			}
			if len(machines) == 0 {
				return fmt.Errorf("batch file %s carries no machines", args[0])
			}

			for _, m := range machines {
				if err := app.Machines.Upsert(ctx, m); err != nil {
					return fmt.Errorf("upserting machine %s: %w", m.ID, err)
				}
			}
			cmd.Printf("Imported %d machine(s)\n", len(machines))
			return nil
		},
	}
}

func newMachinesUtilizationCmd(app *App) *cobra.Command {
	var days int
	var fromFlag string

	cmd := &cobra.Command{
		Use:   "utilization",
		Short: "Show per-machine utilization over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveWindow(fromFlag, days)
			if err != nil {
				return err
			}

			snapshot, err := app.Machines.UtilizationSnapshot(context.Background(), from, to)
			if err != nil {
				return err
			}

			cmd.Print(formatter.FormatUtilization(snapshot))
			return nil
		},
	}

	addWindowFlags(cmd.Flags(), &days, &fromFlag)

	return cmd
}
