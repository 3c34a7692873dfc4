package rgw

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner executes one radosgw-admin invocation and returns its stdout.
// Implementations must honor ctx cancellation and deadlines.
type CommandRunner interface {
	Run(ctx context.Context, args []string) ([]byte, error)
}

// LocalRunner invokes radosgw-admin as a local subprocess. This is the path
// used on hosts with direct cluster access (mons reachable, keyring present).
type LocalRunner struct {
	Binary string
}

// NewLocalRunner creates a runner using the radosgw-admin binary on PATH.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{Binary: "radosgw-admin"}
}

// Run executes the command and returns stdout. Stderr is folded into the
// error because radosgw-admin reports failures there.
func (r *LocalRunner) Run(ctx context.Context, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%s %s failed: %s", r.Binary, firstArg(args), msg)
	}

	return stdout.Bytes(), nil
}

func firstArg(args []string) string {
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return a
		}
	}
	return ""
}
