package hostapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxOutputSize caps captured stdout and stderr of child processes.
const maxOutputSize = 10 * 1024 * 1024

// CommandOptions mirrors the optional third argument of runCommand().
type CommandOptions struct {
	Env       map[string]string `json:"env"`
	Cwd       string            `json:"cwd"`
	TimeoutMs int64             `json:"timeoutMs"`
}

// CommandOutput is returned to the extension as a plain object.
type CommandOutput struct {
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	Code      int    `json:"code"`
	TimedOut  bool   `json:"timedOut"`
	Truncated bool   `json:"truncated"`
}

// RunCommand spawns a granted command. The child gets only the environment
// passed in opts, never the host's.
func (b *Backend) RunCommand(ctx context.Context, command string, args []string, opts CommandOptions) (*CommandOutput, error) {
	if command == "" {
		return nil, errors.New("command cannot be empty")
	}
	if err := b.checker.CheckExec(command, args); err != nil {
		slog.WarnContext(ctx, "command denied", "command", command, "args", args, "error", err)
		return nil, err
	}

	dir := ""
	if opts.Cwd != "" {
		dir = b.abs(opts.Cwd)
		if err := b.checker.CheckRead(dir); err != nil {
			return nil, err
		}
	}

	execCtx := ctx
	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	//nolint:gosec // G204: command is checked against the run permissions; no shell interpretation
	cmd := exec.CommandContext(execCtx, command, args...)
	cmd.Dir = dir
	cmd.Env = envList(opts.Env)

	stdout := NewBoundedBuffer(maxOutputSize)
	stderr := NewBoundedBuffer(maxOutputSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	out := &CommandOutput{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated || stderr.Truncated,
	}

	slog.DebugContext(ctx, "executed command",
		"command", command,
		"args", args,
		"duration", duration,
		"error", err)

	if err == nil {
		return out, nil
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.TimedOut = true
		out.Code = -1
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.Code = exitErr.ExitCode()
		return out, nil
	}
	return nil, fmt.Errorf("failed to run %s: %w", command, err)
}

func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// executionType represents the type of command execution.
type executionType string

const (
	execTypeSafe        executionType = "safe"
	execTypeShell       executionType = "shell"
	execTypeInterpreter executionType = "interpreter code execution"
	execTypeSuspicious  executionType = "suspicious execution"
)

// detectExecutionType determines if the command is dangerous and what type.
func detectExecutionType(command string, args []string) executionType {
	if isShellExecution(command) && len(args) > 0 {
		return execTypeShell
	}
	if hasCodeExecutionFlags(command, args) {
		return execTypeInterpreter
	}
	if hasSuspiciousFlags(args) {
		return execTypeSuspicious
	}
	return execTypeSafe
}

// BoundedBuffer is a bytes.Buffer wrapper that limits the size of written data.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a new BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{
		limit: limit,
	}
}

// Write implements io.Writer. Excess bytes are dropped but reported as
// written so the child never sees a short write.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	if b.buffer.Len() >= b.limit {
		b.Truncated = true
		return len(p), nil
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		if _, err := b.buffer.Write(p[:remaining]); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	return b.buffer.Write(p)
}

// String returns the buffer contents as a string.
func (b *BoundedBuffer) String() string {
	return b.buffer.String()
}

func basename(command string) string {
	return strings.ToLower(strings.TrimSuffix(filepath.Base(filepath.ToSlash(command)), ".exe"))
}

// isShellExecution detects if a command is a shell invocation.
func isShellExecution(command string) bool {
	switch basename(command) {
	case "sh", "bash", "dash", "zsh", "ksh", "csh", "tcsh", "fish", "cmd", "powershell", "pwsh":
		return true
	}
	return false
}

// interpreterFlags lists the inline-code flags per interpreter family.
var interpreterFlags = map[string][]string{
	"python": {"-c", "--command"},
	"perl":   {"-e", "-E"},
	"ruby":   {"-e"},
	"irb":    {"-e"},
	"node":   {"-e", "--eval", "-p", "--print"},
	"nodejs": {"-e", "--eval", "-p", "--print"},
	"deno":   {"eval"},
	"bun":    {"-e", "--eval"},
	"php":    {"-r"},
	"lua":    {"-e"},
	"tclsh":  {"-c"},
	"wish":   {"-c"},
}

// interpreterFamily strips version suffixes: python3.11 -> python.
func interpreterFamily(base string) string {
	return strings.TrimRight(base, "0123456789.")
}

// hasCodeExecutionFlags detects if an interpreter is being invoked with inline code.
func hasCodeExecutionFlags(command string, args []string) bool {
	base := basename(command)

	switch base {
	case "awk", "gawk", "mawk", "nawk":
		// BEGIN/END blocks run without any input.
		for _, arg := range args {
			trimmed := strings.TrimSpace(arg)
			if strings.HasPrefix(trimmed, "BEGIN") || strings.HasPrefix(trimmed, "END") {
				return true
			}
		}
		return false
	}

	flags, ok := interpreterFlags[interpreterFamily(base)]
	if !ok {
		return false
	}
	for _, arg := range args {
		for _, flag := range flags {
			if arg == flag || strings.HasPrefix(arg, flag+"=") {
				return true
			}
		}
	}
	return false
}

// hasSuspiciousFlags detects code-execution flags in unrecognized commands.
func hasSuspiciousFlags(args []string) bool {
	for _, arg := range args {
		switch arg {
		case "-c", "-e", "-E", "-r", "--eval", "--command":
			return true
		}
	}
	return false
}
