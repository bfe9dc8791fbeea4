package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/critq/internal/config"
	"github.com/roach88/critq/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string

	// LogWriter receives structured logs; stderr when nil.
	LogWriter io.Writer

	log *logger.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// Logger returns the logger for module, building the root logger on first
// use. --verbose forces debug level.
func (o *RootOptions) Logger(module string) (*logger.Logger, error) {
	if o.log == nil {
		level := o.LogLevel
		if o.Verbose {
			level = "debug"
		}
		w := o.LogWriter
		if w == nil {
			w = os.Stderr
		}
		l, err := logger.New(w, level)
		if err != nil {
			return nil, err
		}
		o.log = l
	}
	return o.log.Named(module), nil
}

// NewRootCommand creates the root command for the critq CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "critq",
		Short: "critq - typed criteria to query compiler",
		Long: `Compile typed criteria statements over entity metadata into
SQL (PostgreSQL, MySQL, SQLite) or MongoDB commands.

Settings come from flags, CRITQ_* environment variables and an optional
critq.yaml in the working directory, in that order of precedence.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load("critq", cmd.Flags()); err != nil {
				return NewExitError(ExitCommandError, err.Error())
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			_, err := opts.Logger("cli")
			return err
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, config.KeyLogLevel, "warn", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewEntitiesCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}
