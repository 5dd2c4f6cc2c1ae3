package kubernetes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runner abstracts kubectl invocation so tests can substitute canned output.
type runner interface {
	run(ctx context.Context, args ...string) (string, error)
}

type execRunner struct {
	binary string
}

func (r *execRunner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%s %s: %s", r.binary, args[0], detail)
	}
	return stdout.String(), nil
}
