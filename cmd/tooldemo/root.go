package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/callbacks"
	"github.com/effective-security/toolbind/internal/config"
	"github.com/effective-security/toolbind/internal/container"
	"github.com/effective-security/toolbind/pkg/llmutils"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

// app holds the state shared by the commands
type app struct {
	cfgFile string
	format  string
	verbose bool
	debug   bool

	stdout io.Writer
	stderr io.Writer

	cfg       *config.Config
	container *container.Container
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout: stdout,
		stderr: stderr,
	}

	rootCmd := &cobra.Command{
		Use:           "tooldemo",
		Short:         "Typed tool invocation demo",
		Long:          "tooldemo binds typed tools to a language model, runs the tool calls the model produces, and serves the tools over MCP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "cfg", "c", os.Getenv("TOOLDEMO_CONFIG"), "application config file")
	flags.StringVarP(&a.format, "output", "o", "yaml", "output format: yaml|json|toml")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "print tool outputs and model responses")
	flags.BoolVarP(&a.debug, "debug", "D", false, "enable debug logs")

	rootCmd.AddCommand(
		newListCmd(a),
		newInvokeCmd(a),
		newChatCmd(a),
		newMCPCmd(a),
	)
	return rootCmd
}

func (a *app) load() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}

	xlog.SetFormatter(xlog.NewStringFormatter(a.stderr))
	if a.debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(cfg.Level())
	}

	mode := callbacks.ModeDefault
	if a.verbose {
		mode = callbacks.ModeVerbose
	}

	// stdout is reserved for command output, and for the protocol in mcp
	c, err := container.New(cfg, container.Output{Writer: a.stderr, Mode: mode})
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.container = c
	return nil
}

// print writes v in the selected output format
func (a *app) print(v any) error {
	switch a.format {
	case "json":
		_, err := io.WriteString(a.stdout, llmutils.ToJSONIndent(v)+"\n")
		return errors.WithStack(err)
	case "yaml", "":
		_, err := io.WriteString(a.stdout, llmutils.ToYAML(v))
		return errors.WithStack(err)
	case "toml":
		// TOML documents are tables, lists are printed as an array of tables
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
			v = map[string]any{"items": v}
		}
		return errors.WithStack(toml.NewEncoder(a.stdout).Encode(v))
	}
	return errors.Newf("unsupported output format: %s", a.format)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
