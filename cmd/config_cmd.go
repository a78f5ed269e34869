package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/nsstore/internal/config"
)

var (
	configInitPath  string
	configInitForce bool

	configEnginePath   string
	configEngineTokens string
	configEngineStrict bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the nsstore config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a commented default config file",
	Long: `Write the default configuration, with every option documented, to
./.nsstore/config.yaml or --path. An existing file is kept unless --force
is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configInitPath
		if path == "" {
			path = localConfigPath
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}

		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var configEngineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Update the engine section of the config file",
	Long: `Rewrite the engine section of the config file in place. Comments and
other sections are preserved. Flags that are not given keep their current
values.

Examples:
  nsstore config engine --token-semantics multiset
  nsstore config engine --strict-unref=false --path ./.nsstore/config.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configEnginePath
		if path == "" {
			path = configFileUsed()
		}

		engine := cfg.Engine
		if cmd.Flags().Changed("token-semantics") {
			engine.TokenSemantics = configEngineTokens
		}
		if cmd.Flags().Changed("strict-unref") {
			engine.StrictUnref = configEngineStrict
		}

		if err := config.SaveEngine(path, engine); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "updated engine in %s\n", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVarP(&configInitPath, "path", "p", "", "where to write the config (default ./.nsstore/config.yaml)")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")

	configEngineCmd.Flags().StringVarP(&configEnginePath, "path", "p", "", "config file to update (default: the loaded config)")
	configEngineCmd.Flags().StringVar(&configEngineTokens, "token-semantics", config.TokensSet, "owner token semantics: set or multiset")
	configEngineCmd.Flags().BoolVar(&configEngineStrict, "strict-unref", false, "reject unref of tokens the namespace does not hold")

	configCmd.AddCommand(configInitCmd, configEngineCmd)
	rootCmd.AddCommand(configCmd)
}
