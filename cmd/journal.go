package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/nsstore/internal/journal"
	"github.com/zjrosen/nsstore/internal/namespace"
	"github.com/zjrosen/nsstore/internal/presentation"
)

var (
	journalNamespace string
	journalKind      string
	journalLimit     int
	journalJSON      bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the lifecycle journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded namespace changes",
	Long: `List namespace changes recorded in the SQLite journal, oldest first.

The journal is written while journal.enabled is set in the config.

Examples:
  nsstore journal list
  nsstore journal list --namespace Counter/6f1c...
  nsstore journal list --kind deleted --limit 20
  nsstore journal list --json | jq '.[].kind'`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind := namespace.ChangeKind(journalKind)
		switch kind {
		case "", namespace.ChangeCreated, namespace.ChangeReferenced,
			namespace.ChangeUnreferenced, namespace.ChangeUpdated, namespace.ChangeDeleted:
		default:
			return fmt.Errorf("unknown --kind %q", journalKind)
		}
		if journalLimit < 0 {
			return fmt.Errorf("--limit must not be negative, got %d", journalLimit)
		}

		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()

		entries, err := j.List(cmd.Context(), journal.Query{
			Namespace: journalNamespace,
			Kind:      kind,
			Limit:     journalLimit,
		})
		if err != nil {
			return err
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		dtos := presentation.FromJournal(entries)
		if journalJSON {
			return formatter.FormatJSON(dtos)
		}
		return formatter.FormatJournal(dtos)
	},
}

func init() {
	journalListCmd.Flags().StringVarP(&journalNamespace, "namespace", "n", "", "only entries for this namespace key")
	journalListCmd.Flags().StringVarP(&journalKind, "kind", "k", "", "only entries of this kind (created, referenced, unreferenced, updated, deleted)")
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "l", 0, "show only the newest N entries")
	journalListCmd.Flags().BoolVar(&journalJSON, "json", false, "print entries as JSON")
	journalCmd.AddCommand(journalListCmd)
	rootCmd.AddCommand(journalCmd)
}
