// Command otaagent is the CLI driver for the update orchestration engine:
// check-in, install, complete, and an optional daemon wrapper around the
// same three operations (§6). Structured the way the teacher's
// cmd/docbuilder/main.go wires kong: a root CLI struct with one field per
// subcommand and a shared Global carrying cross-cutting state.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/edgefleet/otaupdater/internal/config"
	"github.com/edgefleet/otaupdater/internal/exitstatus"
	"github.com/edgefleet/otaupdater/internal/version"
)

// CLI is the root command set and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"/etc/otaagent/config.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Check    CheckCmd    `cmd:"" help:"Check in for candidate update targets"`
	Install  InstallCmd  `cmd:"" help:"Download and install an update target"`
	Complete CompleteCmd `cmd:"" help:"Finalize or roll back the pending installation after reboot"`
	Daemon   DaemonCmd   `cmd:"" help:"Run check-in/install on a periodic schedule"`
}

// Global carries state subcommands share, built once in AfterApply.
type Global struct {
	Logger *slog.Logger
}

func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

func main() {
	cli := &CLI{}
	parser := kong.Parse(cli,
		kong.Description("otaagent: on-device OTA update orchestration engine."),
		kong.Vars{"version": version.Version},
	)

	logger := slog.Default()
	globals := &Global{Logger: logger}

	err := parser.Run(globals, cli)
	if err == nil {
		os.Exit(int(exitstatus.Ok))
	}

	var exitErr *exitError
	if asExitError(err, &exitErr) {
		fmt.Fprintln(os.Stderr, exitErr.message)
		logger.Error("command failed", "code", exitErr.code.String(), "error", exitErr.message)
		os.Exit(int(exitErr.code))
	}

	fmt.Fprintln(os.Stderr, err)
	logger.Error("command failed", "code", exitstatus.UnknownError.String(), "error", err.Error())
	os.Exit(int(exitstatus.UnknownError))
}

// exitError pairs an error message with the specific exit code the command
// wants to report, letting main's error path stay generic.
type exitError struct {
	code    exitstatus.Code
	message string
}

func (e *exitError) Error() string { return e.message }

func asExitError(err error, target **exitError) bool {
	ee, ok := err.(*exitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

func fail(code exitstatus.Code, format string, args ...any) error {
	return &exitError{code: code, message: fmt.Sprintf(format, args...)}
}

// loadConfig centralizes the config.Load call every subcommand needs before
// it can build an env, wrapping its error.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
