package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/vk/componentry/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Commands accepted on the command line.
const (
	CmdCheck   = "check"
	CmdList    = "list"
	CmdEnable  = "enable"
	CmdDisable = "disable"
	CmdServe   = "serve"
)

var commands = []string{CmdCheck, CmdList, CmdEnable, CmdDisable, CmdServe}

// Command is a parsed invocation.
type Command struct {
	Name string
	// IDs are the implementation ids given to enable and disable.
	IDs    []string
	Config *app.Config
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	if v == "" {
		return errors.New("must not be empty")
	}
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns the command to run, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Command, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("componentry", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Componentry - component interface registry.

Usage:
  componentry [options] <command> [ids...]

Commands:
  check     Load the configuration and registry and report problems.
  list      List implementations with their binding and enabled state.
  enable    Enable the given implementation ids and save.
  disable   Disable the given implementation ids and save.
  serve     Keep the registry loaded and serve /health and /metrics.
            SIGHUP reloads the configuration.

Options:
`)
		flagSet.PrintDefaults()
	}

	var configPaths stringList
	flagSet.Var(&configPaths, "config", "Instance configuration file. Repeatable; later files win.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'. Defaults to the configuration.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'. Defaults to the configuration.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No command provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	name := flagSet.Arg(0)
	if !slices.Contains(commands, name) {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", name)}
	}
	ids := flagSet.Args()[1:]
	switch name {
	case CmdEnable, CmdDisable:
		if len(ids) == 0 {
			return nil, false, &ExitError{Code: 2, Message: name + " requires at least one implementation id"}
		}
	default:
		if len(ids) > 0 {
			return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("%s takes no arguments", name)}
		}
	}

	config, err := app.NewConfig(app.Config{
		ConfigPaths:     configPaths,
		HealthcheckPort: *healthPortFlag,
		LogFormat:       strings.ToLower(*logFormatFlag),
		LogLevel:        strings.ToLower(*logLevelFlag),
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "command", name, "config", config)
	return &Command{Name: name, IDs: ids, Config: config}, false, nil
}
