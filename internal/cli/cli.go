package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

// Job types.
const (
	JobAudit   = "audit"
	JobServe   = "serve"
	JobList    = "list"
	JobCompare = "compare"
)

// CLIArgs are the command-line arguments that control a single job.
type CLIArgs struct {
	// JobType is one of audit|serve|list|compare.
	JobType string

	// LogPath is the recorded page load to audit.
	LogPath string

	// Format is auto|devtools|har; empty means the configured default.
	Format string

	// FinalURL is the page URL after redirects. Without it CORB is not applicable.
	FinalURL string

	// StorageRoot overrides the config storage root; empty keeps the default.
	StorageRoot string

	// ListenAddr overrides the server listen address for serve.
	ListenAddr string

	BaseID string
	HeadID string

	// Limit caps list output; 0 means the server default.
	Limit int

	// RawArgs is the original args slice (useful for debugging/tests).
	RawArgs []string
}

// ParseArgs parses a slice of args and returns CLIArgs. Use in tests by passing
// arbitrary slices. The function is deterministic and does not read os.Args.
func ParseArgs(args []string) (*CLIArgs, error) {
	fs := flag.NewFlagSet("netaudit", flag.ContinueOnError)
	var (
		jobType  = fs.String("job", JobAudit, "Job type: audit|serve|list|compare")
		logPath  = fs.String("log", "", "DevTools log or HAR file to audit")
		format   = fs.String("format", "", "Log format: auto|devtools|har")
		finalURL = fs.String("url", "", "Final page URL after redirects")
		storage  = fs.String("store", "", "Storage root for the run database")
		addr     = fs.String("addr", "", "Listen address for -job serve")
		base     = fs.String("base", "", "Base run id for -job compare")
		head     = fs.String("head", "", "Head run id for -job compare")
		limit    = fs.Int("limit", 0, "Maximum runs for -job list (0=all)")
	)

	// Ensure Parse doesn't write to stdout/stderr in tests
	fs.SetOutput(io.Discard)

	if err := fs.Parse(args); err != nil {
		// Flag parsing errors are useful to return to caller
		return nil, err
	}

	out := &CLIArgs{
		JobType:     strings.ToLower(strings.TrimSpace(*jobType)),
		LogPath:     strings.TrimSpace(*logPath),
		Format:      *format,
		FinalURL:    strings.TrimSpace(*finalURL),
		StorageRoot: *storage,
		ListenAddr:  *addr,
		BaseID:      *base,
		HeadID:      *head,
		Limit:       *limit,
		RawArgs:     args,
	}

	switch out.JobType {
	case JobAudit:
		if out.LogPath == "" {
			return nil, errors.New("missing required -log argument")
		}
	case JobCompare:
		if out.BaseID == "" || out.HeadID == "" {
			return nil, errors.New("compare needs both -base and -head")
		}
	case JobList:
		if out.Limit < 0 {
			return nil, fmt.Errorf("invalid -limit %d", out.Limit)
		}
	case JobServe:
	default:
		return nil, fmt.Errorf("unknown job type %q", *jobType)
	}
	return out, nil
}
