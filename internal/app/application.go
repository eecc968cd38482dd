package app

import (
	"context"
	"errors"
	"io"

	"github.com/raysh454/netaudit/internal/cli"
	"github.com/raysh454/netaudit/internal/logging"
)

// Application is the global runtime state container.
// It holds config, parsed CLI args and the core services that are shared
// across modules (runner, logger). Pass Application into modules that
// need access to the global state rather than using package-level variables.
type Application struct {
	Config *Config
	Args   *cli.CLIArgs

	Logger logging.Logger
	Runner *Runner

	// Store is closed on Shutdown when set.
	Store io.Closer
}

// NewApplication constructs an Application from the provided parts.
// Keep the constructor simple: pass already-constructed parts so this function
// is easy to test and does not import heavy dependencies.
func NewApplication(cfg *Config, args *cli.CLIArgs, logger logging.Logger, runner *Runner, store io.Closer) *Application {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Application{
		Config: cfg,
		Args:   args,
		Logger: logger,
		Runner: runner,
		Store:  store,
	}
}

// Shutdown releases the store. It is safe to call more than once.
func (a *Application) Shutdown(_ context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	if a.Logger != nil {
		a.Logger.Info("application shutdown initiated")
	}
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}
