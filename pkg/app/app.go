// Package app builds cobra commands from named option groups. Flags, an
// optional config file and RCBRIDGE_* environment variables are merged by
// viper before the options are validated and the run function is called.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"
	"k8s.io/component-base/cli/globalflag"
	"k8s.io/component-base/term"
	"k8s.io/klog/v2"

	"github.com/autopeer-io/rcbridge/pkg/log"
)

// RunFunc is the entry point of a command, called after options are
// loaded, completed and validated.
type RunFunc func() error

// NamedFlagSetOptions is implemented by the option struct of a command.
type NamedFlagSetOptions interface {
	// Flags returns the flags grouped by option section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in derived fields.
	Complete() error

	// Validate checks every option group.
	Validate() error
}

// LogOptionsProvider is implemented by options that configure the logger.
type LogOptionsProvider interface {
	LogOptions() *log.Options
}

type App struct {
	name        string
	shortDesc   string
	description string
	options     NamedFlagSetOptions
	run         RunFunc
	args        cobra.PositionalArgs
	subCommands []*cobra.Command
	noConfig    bool

	cmd *cobra.Command
}

// Option configures an App.
type Option func(*App)

func WithOptions(opts NamedFlagSetOptions) Option {
	return func(a *App) { a.options = opts }
}

func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.run = run }
}

func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithDefaultValidArgs rejects positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) {
		a.args = func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				if len(arg) > 0 {
					return fmt.Errorf("%q does not take any arguments, got %q", cmd.CommandPath(), args)
				}
			}
			return nil
		}
	}
}

func WithValidArgs(args cobra.PositionalArgs) Option {
	return func(a *App) { a.args = args }
}

func WithSubCommands(cmds ...*cobra.Command) Option {
	return func(a *App) { a.subCommands = append(a.subCommands, cmds...) }
}

// WithNoConfig disables the --config flag and config file lookup.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// NewApp creates an App and builds its cobra command.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{name: name, shortDesc: shortDesc}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.Flags().SortFlags = true
	cmd.AddCommand(a.subCommands...)

	if a.run != nil {
		cmd.RunE = a.runCommand
	}

	var namedFlagSets cliflag.NamedFlagSets
	if a.options != nil {
		namedFlagSets = a.options.Flags()
	}
	if !a.noConfig {
		addConfigFlag(a.name, namedFlagSets.FlagSet("global"))
	}
	globalflag.AddGlobalFlags(namedFlagSets.FlagSet("global"), cmd.Name())

	fs := cmd.Flags()
	for _, f := range namedFlagSets.FlagSets {
		fs.AddFlagSet(f)
	}

	cols, _, _ := term.TerminalSize(cmd.OutOrStdout())
	cliflag.SetUsageAndHelpFunc(cmd, namedFlagSets, cols)

	a.cmd = cmd
}

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if a.options != nil {
		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.Unmarshal(a.options); err != nil {
			return fmt.Errorf("failed to decode options: %w", err)
		}
		if err := a.options.Complete(); err != nil {
			return err
		}
		if err := a.options.Validate(); err != nil {
			return err
		}

		if p, ok := a.options.(LogOptionsProvider); ok {
			log.Init(p.LogOptions())
			klog.SetLogger(log.Logr())
		}
	}
	defer func() { _ = log.Sync() }()

	if used := viper.ConfigFileUsed(); used != "" {
		log.Info("Using config file", "file", used)
	}

	return a.run()
}

// Command returns the underlying cobra command.
func (a *App) Command() *cobra.Command {
	return a.cmd
}

// Run executes the command and exits the process on failure.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// AggregateErrors flattens validation errors of several option groups.
func AggregateErrors(groups ...[]error) error {
	var errs []error
	for _, g := range groups {
		errs = append(errs, g...)
	}
	return utilerrors.NewAggregate(errs)
}
