package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/event"
	"github.com/jspindler/takt/internal/notify"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/service"
)

// App holds references to all services used by CLI commands.
type App struct {
	Config config.FacilityConfig

	Schedule  service.ScheduleService
	Sequence  service.ScheduleService // order-index strategy
	Emergency service.EmergencyService
	Machines  service.MachineService
	Entries   service.EntryService

	EmergencyRequests repository.EmergencyRepo

	Bus *event.Bus
	Hub *notify.Hub
}

// Version is stamped by the build; "dev" otherwise.
var Version = "dev"

// NewRootCmd creates the top-level "takt" command and registers all
// subcommands against the provided App.
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "takt",
		Short: "Manufacturing process scheduler",
	}

	root.AddCommand(
		newScheduleCmd(app),
		newMachinesCmd(app),
		newEmergencyCmd(app),
		newEntriesCmd(app),
		newServeCmd(app),
		newVersionCmd(),
	)

	return root
}

// addWindowFlags registers the shared reporting-window flags.
func addWindowFlags(fs *pflag.FlagSet, days *int, from *string) {
	fs.IntVar(days, "days", 7, "Window length in days")
	fs.StringVar(from, "from", "", "Window start (RFC 3339), defaults to now")
}

// resolveWindow turns the flag pair into a concrete [from, to) interval.
func resolveWindow(fromFlag string, days int) (time.Time, time.Time, error) {
	from := time.Now().UTC()
	if fromFlag != "" {
		parsed, err := time.Parse(time.RFC3339, fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --from: %w", err)
		}
		from = parsed
	}
	return from, from.AddDate(0, 0, days), nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the takt version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("takt " + Version)
		},
	}
}
