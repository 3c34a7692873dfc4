package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/rgwstat/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"
	verbose bool
)

// Exit codes for structured error reporting.
const (
	ExitSuccess    = 0
	ExitInternal   = 1
	ExitInvalidArg = 2
	ExitNotFound   = 3
	ExitNetwork    = 5
	ExitPartial    = 6
)

// PartialError indicates the cycle completed but some buckets failed to
// collect.
type PartialError struct {
	Collected int
	Errors    int
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%d buckets collected, %d failed", e.Collected, e.Errors)
}

func main() {
	logging.Init(false)

	root := &cobra.Command{
		Use:   "rgwstat",
		Short: "Ceph RGW bucket statistics collector",
		Long: `rgwstat keeps per-bucket RGW statistics fresh without hammering
radosgw-admin: it tracks which buckets are stale, refreshes only those,
and switches to one bulk call when most of the fleet is out of date.

Results land in an embedded SQLite database and an atomically published
JSON snapshot that dashboards can read without touching the database.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(verbose)
		},
	}

	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose logging")
	root.SilenceUsage = true
	root.SilenceErrors = true

	root.AddCommand(NewCollectCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewCacheCmd())
	root.AddCommand(NewVersionCmd())

	if err := root.Execute(); err != nil {
		exitCode := classifyError(err)
		var pe *PartialError
		if errors.As(err, &pe) {
			slog.Warn("collection finished with failures",
				slog.Int("collected", pe.Collected),
				slog.Int("errors", pe.Errors))
		} else {
			slog.Error("command failed", slog.String("error", err.Error()))
		}
		os.Exit(exitCode)
	}
}

func classifyError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var pe *PartialError
	if errors.As(err, &pe) {
		return ExitPartial
	}

	if os.IsNotExist(err) {
		return ExitNotFound
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "not found") {
		return ExitNotFound
	}

	if strings.Contains(msg, "dial") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "network is unreachable") {
		return ExitNetwork
	}

	if strings.Contains(msg, "required") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "must be") ||
		strings.Contains(msg, "expected") {
		return ExitInvalidArg
	}

	return ExitInternal
}
