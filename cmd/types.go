package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zjrosen/nsstore/internal/app"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/presentation"
)

var typesJSON bool

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List registered namespace types",
	Long: `List the namespace types registered by the current configuration,
with their initial state and the number of pipeline stages each one runs.

Examples:
  nsstore types
  nsstore types --json | jq '.[].name'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// The journal plays no part in listing types.
		typesCfg := cfg
		typesCfg.Journal.Enabled = false

		a, err := app.New(cmd.Context(), typesCfg)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		registry := a.Store.Registry()
		descs := make([]namespace.TypeDescriptor, 0, registry.Len())
		for _, name := range registry.Names() {
			desc, err := registry.Lookup(name)
			if err != nil {
				return err
			}
			descs = append(descs, desc)
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		dtos := presentation.FromDescriptors(descs)
		if typesJSON {
			return formatter.FormatJSON(dtos)
		}
		return formatter.FormatTypes(dtos)
	},
}

func init() {
	typesCmd.Flags().BoolVar(&typesJSON, "json", false, "print types as JSON")
	rootCmd.AddCommand(typesCmd)
}
