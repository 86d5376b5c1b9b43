package cli

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/plugman/pkg/config"
	"github.com/platinummonkey/plugman/pkg/observability"
	"github.com/platinummonkey/plugman/pkg/plugins"
)

// ManagerFunc builds the manager a command operates on
type ManagerFunc func(opts ...plugins.Option) (*plugins.Manager, error)

// SharedManager configures and returns the process-wide manager
func SharedManager(opts ...plugins.Option) (*plugins.Manager, error) {
	if err := plugins.ConfigureSharedInstance(opts...); err != nil {
		return nil, err
	}
	return plugins.SharedInstance(), nil
}

// IsolatedManager returns a fresh manager on every call
func IsolatedManager(opts ...plugins.Option) (*plugins.Manager, error) {
	return plugins.NewManager(opts...), nil
}

// rootOptions holds the persistent flags shared by every subcommand
type rootOptions struct {
	pluginDirs   []string
	manifestName string
	logLevel     string
	logFormat    string
	version      string

	newManager ManagerFunc
	extraOpts  []plugins.Option
}

// NewRootCommand creates the plugman command tree backed by the shared manager
func NewRootCommand(version, commit, date string) *cobra.Command {
	return newRootCommand(&rootOptions{version: version, newManager: SharedManager}, commit, date)
}

// NewRootCommandWithManager creates the command tree with a custom manager
// constructor and extra manager options (such as an instantiator with
// registered factories)
func NewRootCommandWithManager(version string, newManager ManagerFunc, opts ...plugins.Option) *cobra.Command {
	return newRootCommand(&rootOptions{version: version, newManager: newManager, extraOpts: opts}, "none", "unknown")
}

func newRootCommand(o *rootOptions, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plugman",
		Short: "plugman - plugin discovery and dependency-ordered loading",
		Long: `plugman discovers plugin bundles in the configured search directories,
orders them so every plugin loads after its dependencies, and loads them.

Plugins with missing or cyclic dependencies are excluded and reported.
Configuration comes from PLUGMAN_* environment variables; flags override them.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", o.version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringSliceVar(&o.pluginDirs, "plugin-dir", nil, "Plugin search directory (repeatable, overrides PLUGMAN_PLUGIN_DIRS)")
	flags.StringVar(&o.manifestName, "manifest-name", "", "Manifest file name inside each bundle")
	flags.StringVar(&o.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&o.logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(newPlanCommand(o))
	rootCmd.AddCommand(newLoadCommand(o))
	rootCmd.AddCommand(newServeCommand(o))

	return rootCmd
}

// setup loads the environment configuration and applies flag overrides
func (o *rootOptions) setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	if len(o.pluginDirs) > 0 {
		cfg.Plugins.SearchDirs = o.pluginDirs
	}
	if o.manifestName != "" {
		cfg.Plugins.ManifestName = o.manifestName
	}
	if o.logLevel != "" {
		cfg.Observability.LogLevel = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Observability.LogFormat = strings.ToLower(o.logFormat)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, cmd.ErrOrStderr())
	return cfg, logger, nil
}

func (o *rootOptions) manager(cfg *config.Config, logger *logrus.Logger, opts ...plugins.Option) (*plugins.Manager, error) {
	all := plugins.OptionsFromConfig(cfg, logger)
	all = append(all, o.extraOpts...)
	all = append(all, opts...)
	return o.newManager(all...)
}
