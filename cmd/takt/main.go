package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/jspindler/takt/internal/cli"
	"github.com/jspindler/takt/internal/config"
	"github.com/jspindler/takt/internal/db"
	"github.com/jspindler/takt/internal/event"
	"github.com/jspindler/takt/internal/notify"
	"github.com/jspindler/takt/internal/repository"
	"github.com/jspindler/takt/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// DB path: env var or default ~/.takt/takt.db
	dbPath := os.Getenv("TAKT_DB")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("finding home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".takt", "takt.db")
	}

	cfg, err := config.Load(os.Getenv("TAKT_CONFIG"))
	if err != nil {
		return err
	}

	database, err := db.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer database.Close()

	store := repository.NewSQLiteScheduleStore(database)
	machines := repository.NewSQLiteMachineRepo(database)
	requests := repository.NewSQLiteEmergencyRepo(database)
	uow := db.NewSQLiteUnitOfWork(database)

	bus := event.NewBus()

	// Structured run telemetry goes to stderr when the output is consumed
	// by a pipeline or TAKT_VERBOSE asks for it; interactive sessions get
	// the formatted report only.
	var observer service.RunObserver = service.NoopRunObserver{}
	interactive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if !interactive || os.Getenv("TAKT_VERBOSE") == "1" {
		observer = service.NewLogRunObserver(os.Stderr)
	}

	app := &cli.App{
		Config:            cfg,
		Schedule:          service.NewEnhancedAutoScheduler(cfg, store, bus, observer),
		Sequence:          service.NewAutoScheduler(cfg, store, observer),
		Emergency:         service.NewEmergencyScheduler(cfg, requests, machines, store, uow, bus, observer),
		Machines:          service.NewMachineService(cfg, machines, store),
		Entries:           service.NewEntryService(store, bus),
		EmergencyRequests: requests,
		Bus:               bus,
		Hub:               notify.NewHub(nil),
	}

	return cli.NewRootCmd(app).Execute()
}
