// Package cli wires the ndstream command line
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anggasct/ndstream/internal/config"
	"github.com/anggasct/ndstream/internal/logger"
)

// ExitCodeErr is implemented by errors that carry a process exit code
type ExitCodeErr interface {
	ExitCode() int
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

type app struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
	log *logger.Logger
}

// Root builds the command tree
func Root() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "ndstream",
		Short:             "stream newline-delimited JSON over HTTP",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           version(),
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(a.getCmd(), a.postCmd(), a.serveCmd(), versionCmd())
	return root
}

// setup loads the configuration and initialises the root logger before any
// subcommand runs
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Init(logger.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "ndstream",
		Writer:  cmd.ErrOrStderr(),
	})
	a.cfg = cfg
	a.log = logger.Named("cli")
	return nil
}

// Main runs the command line and exits with the resulting status
func Main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		ec := 1
		var ece ExitCodeErr
		if errors.As(err, &ece) {
			ec = ece.ExitCode()
		}
		stop()
		os.Exit(ec)
	}
}
