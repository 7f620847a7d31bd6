// Copyright (C) 2025-2026, GweiZero Labs. All rights reserved.
// See LICENSE for license information.

package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/gweizero/engine/pkg/logger/log"
)

// forceKillDelay is how long a terminated subprocess gets to exit before it
// is killed outright.
const forceKillDelay = 1500 * time.Millisecond

// exec runs one estimator invocation (compile or measure) and returns its
// stdout. On context cancellation the process receives SIGTERM, then
// SIGKILL after forceKillDelay, and the context error is returned.
func (r *Runner) exec(ctx context.Context, subcommand string, env []string) (string, error) {
	if len(r.cfg.EstimatorCommand) == 0 {
		return "", fmt.Errorf("estimator command not configured")
	}

	args := append(append([]string{}, r.cfg.EstimatorCommand[1:]...), subcommand)
	cmd := exec.Command(r.cfg.EstimatorCommand[0], args...)
	cmd.Dir = r.cfg.EstimatorDir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start estimator %s: %w", subcommand, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		terminate(cmd, done)
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("estimator %s failed: %s", subcommand, firstNonEmpty(
				sanitizeReason(stderr.String()),
				sanitizeReason(stdout.String()),
				err.Error(),
			))
		}
		return stdout.String(), nil
	}
}

// terminate asks the subprocess to exit and kills it if it does not comply
// within forceKillDelay.
func terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Warnf("runner: SIGTERM failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(forceKillDelay):
		log.Warnf("runner: estimator did not exit after SIGTERM, killing pid %d", cmd.Process.Pid)
		if err := cmd.Process.Kill(); err != nil {
			log.Warnf("runner: kill failed: %v", err)
		}
		<-done
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
