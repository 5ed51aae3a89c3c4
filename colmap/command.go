package colmap

import (
	"context"
	"os/exec"
)

// CommandExecutor runs one prepared command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder prepares commands, letting tests replace the real COLMAP binary.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

type RealCommandExecutor struct {
	cmd *exec.Cmd
}

func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// RealCommandBuilder runs commands with os/exec. Arguments are passed as argv, never through a shell.
type RealCommandBuilder struct{}

func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

func (b *RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &RealCommandExecutor{cmd: exec.CommandContext(ctx, name, args...)}
}
