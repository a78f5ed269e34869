package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/nsstore/internal/config"
	"github.com/zjrosen/nsstore/internal/log"
	"github.com/zjrosen/nsstore/internal/presentation"
)

// localConfigPath is checked before the user config directory.
const localConfigPath = ".nsstore/config.yaml"

var (
	version  = "dev"
	cfgFile  string
	debug    bool
	noColor  bool
	cfg      config.Config
	logClose func()
)

var rootCmd = &cobra.Command{
	Use:   "nsstore",
	Short: "A namespaced, reference-counted state store",
	Long: `nsstore partitions application state into namespaces that are created,
shared between owners and deleted when the last owner lets go.

Actions addressed to a namespace pass through that type's middleware
pipeline before they are reduced.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logClose != nil {
			logClose()
			logClose = nil
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./.nsstore/config.yaml, then ~/.config/nsstore/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false,
		"write a debug log (path from log.path)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
}

func initConfig() {
	viper.Reset()
	setDefaults(viper.GetViper(), config.Defaults())

	viper.SetEnvPrefix("NSSTORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .nsstore/config.yaml (current directory)
		// 2. ~/.config/nsstore/config.yaml (user config)
		if _, err := os.Stat(localConfigPath); err == nil {
			viper.SetConfigFile(localConfigPath)
		} else if dir := config.DefaultConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}
}

// setDefaults registers every key so env overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d config.Config) {
	v.SetDefault("engine.token_semantics", d.Engine.TokenSemantics)
	v.SetDefault("engine.strict_unref", d.Engine.StrictUnref)
	v.SetDefault("processor.queue_capacity", d.Processor.QueueCapacity)
	v.SetDefault("middleware.dedup_ttl", d.Middleware.DedupTTL)
	v.SetDefault("middleware.slow_threshold", d.Middleware.SlowThreshold)
	v.SetDefault("middleware.diff_state", d.Middleware.DiffState)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("journal.enabled", d.Journal.Enabled)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.include_updates", d.Journal.IncludeUpdates)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
}

// setup loads the config and starts the debug log before any subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	cfg = config.Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decoding config: %w", err)
	}

	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		presentation.DisableColor()
	}

	if debug || os.Getenv("NSSTORE_DEBUG") != "" {
		path := cfg.Log.Path
		if path == "" {
			path = filepath.Join(os.TempDir(), "nsstore-debug.log")
		}
		closeFn, err := log.Init(path)
		if err != nil {
			return fmt.Errorf("starting debug log: %w", err)
		}
		logClose = closeFn
		if level, ok := log.ParseLevel(cfg.Log.Level); ok {
			log.SetMinLevel(level)
		}
		log.Info(log.CatConfig, "config loaded",
			"file", viper.ConfigFileUsed(),
			"command", cmd.CommandPath(),
		)
	}
	return nil
}

// configFileUsed returns the loaded config file, or the local default path
// when none was found.
func configFileUsed() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return localConfigPath
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
