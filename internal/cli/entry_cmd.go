package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jspindler/takt/internal/cli/formatter"
	"github.com/jspindler/takt/internal/domain"
)

func newEntriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Inspect and advance schedule entries",
	}

	cmd.AddCommand(
		newEntriesListCmd(app),
		newEntriesTransitionCmd(app, "start", "Mark an entry in progress", domain.EntryInProgress),
		newEntriesTransitionCmd(app, "complete", "Mark an entry completed", domain.EntryCompleted),
		newEntriesTransitionCmd(app, "cancel", "Cancel an entry, freeing its window", domain.EntryCancelled),
	)

	return cmd
}

func newEntriesListCmd(app *App) *cobra.Command {
	var machineID, fromFlag string
	var days int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one machine's entries over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := resolveWindow(fromFlag, days)
			if err != nil {
				return err
			}

			entries, err := app.Entries.ListByMachine(context.Background(), machineID, from, to)
			if err != nil {
				return err
			}
			cmd.Print(formatter.FormatEntries(machineID, entries))
			return nil
		},
	}

	cmd.Flags().StringVar(&machineID, "machine", "", "Machine ID")
	addWindowFlags(cmd.Flags(), &days, &fromFlag)
	_ = cmd.MarkFlagRequired("machine")

	return cmd
}

func newEntriesTransitionCmd(app *App, use, short string, target domain.EntryStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ENTRY_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := app.Entries.Transition(context.Background(), args[0], target)
			if err != nil {
				return err
			}
			cmd.Printf("%s %s on %s\n", formatter.EntryStatusPill(entry.Status),
				entry.ProcessInstanceID, entry.MachineID)
			return nil
		},
	}
}
