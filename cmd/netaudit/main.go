// Command netaudit runs the CORB and mixed-content audits over a recorded page
// load, lists and compares stored runs, or serves the HTTP API.
//
// Usage:
//
//	netaudit -log page.devtoolslog.json -url https://example.com/
//	netaudit -job list -limit 10
//	netaudit -job compare -base <run-id> -head <run-id>
//	netaudit -job serve -addr :8080
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/netaudit/internal/app"
	"github.com/raysh454/netaudit/internal/audit"
	"github.com/raysh454/netaudit/internal/cli"
	"github.com/raysh454/netaudit/internal/logging"
	"github.com/raysh454/netaudit/internal/recordlog"
	"github.com/raysh454/netaudit/internal/server"
	"github.com/raysh454/netaudit/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one job and returns the process exit code: 0 on success, 1 when
// the job or any audit failed, 2 for usage errors.
func run(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 2
	}

	cfg := app.DefaultConfig()
	if args.StorageRoot != "" {
		cfg.StorageRoot = args.StorageRoot
	}
	if args.ListenAddr != "" {
		cfg.ServerCfg.ListenAddr = args.ListenAddr
	}
	logger := logging.NewWriterLogger(stderr, "netaudit")

	if args.JobType == cli.JobServe {
		return serve(ctx, cfg, logger)
	}

	path, err := cfg.StorePath()
	if err != nil {
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 1
	}
	st, err := store.Open(path, logger)
	if err != nil {
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 1
	}
	runner, err := app.NewRunner(cfg, audit.Default(), st, logger)
	if err != nil {
		st.Close()
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 1
	}
	application := app.NewApplication(cfg, args, logger, runner, st)
	defer application.Shutdown(ctx) //nolint:errcheck

	switch args.JobType {
	case cli.JobList:
		runs, err := st.ListRuns(ctx, args.Limit)
		if err != nil {
			fmt.Fprintf(stderr, "netaudit: %v\n", err)
			return 1
		}
		return printJSON(stdout, stderr, runs)

	case cli.JobCompare:
		cmp, err := st.CompareRuns(ctx, args.BaseID, args.HeadID)
		if err != nil {
			fmt.Fprintf(stderr, "netaudit: %v\n", err)
			return 1
		}
		return printJSON(stdout, stderr, cmp)
	}

	return runAudit(ctx, application, stdout, stderr)
}

func runAudit(ctx context.Context, a *app.Application, stdout, stderr io.Writer) int {
	name := a.Args.Format
	if name == "" {
		name = a.Config.DefaultLogFormat
	}
	format, err := recordlog.ParseFormat(name)
	if err != nil {
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 2
	}

	result, err := a.Runner.Run(ctx, app.RunRequest{
		FinalURL: a.Args.FinalURL,
		Source:   a.Args.LogPath,
		Records:  recordlog.FileSource{Path: a.Args.LogPath, Format: format},
	})
	if result != nil {
		if code := printJSON(stdout, stderr, result); code != 0 {
			return code
		}
	}
	if err != nil {
		fmt.Fprintf(stderr, "netaudit: %v\n", err)
		return 1
	}
	if result.Failed() {
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *app.Config, logger logging.Logger) int {
	srv, err := server.NewServer(server.Config{AppConfig: cfg, Logger: logger})
	if err != nil {
		logger.Error("creating server", logging.Field{Key: "error", Value: err})
		return 1
	}
	defer srv.Close()

	httpSrv := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", logging.Field{Key: "addr", Value: httpSrv.Addr})
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", logging.Field{Key: "error", Value: err})
			return 1
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", logging.Field{Key: "error", Value: err})
		}
	}
	return 0
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "netaudit: encoding output: %v\n", err)
		return 1
	}
	return 0
}
