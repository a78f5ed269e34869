package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/nsstore/internal/counter"
	"github.com/zjrosen/nsstore/internal/presentation"
)

// ===========================================================================
// Test Helpers
// ===========================================================================

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfgFile = ""

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a minimal config with the journal under dir.
func writeConfig(t *testing.T, journalEnabled bool) (string, string) {
	t.Helper()
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "journal.db")
	body := fmt.Sprintf(`engine:
  token_semantics: set
middleware:
  dedup_ttl: 5s
  slow_threshold: 0s
journal:
  enabled: %t
  path: %s
log:
  path: %s
`, journalEnabled, journalPath, filepath.Join(dir, "debug.log"))

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, journalPath
}

// ===========================================================================
// Tests
// ===========================================================================

func TestDemo_JSON(t *testing.T) {
	path, _ := writeConfig(t, false)

	stdout, stderr, err := execute(t, "demo", "--config", path, "--counters", "2", "--delay", "10ms", "--json")
	require.NoError(t, err)
	assert.Contains(t, stderr, "rejected as expected")

	var dtos []presentation.NamespaceDTO
	require.NoError(t, json.Unmarshal([]byte(stdout), &dtos))
	require.Len(t, dtos, 2, "the last counter is removed")

	assert.Equal(t, counter.ListTypeName, dtos[0].Type)
	assert.Equal(t, []string{"demo"}, dtos[0].Owners)
	assert.Equal(t, counter.CounterTypeName, dtos[1].Type)
	assert.Equal(t, "2", dtos[1].State, "Add{1} plus the delayed increment")
	assert.Equal(t, []string{dtos[0].Key}, dtos[1].Owners)
}

func TestDemo_Table(t *testing.T) {
	path, _ := writeConfig(t, false)

	stdout, _, err := execute(t, "demo", "--config", path, "--counters", "1", "--delay", "1ms", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, stdout, "CounterList")
	assert.Contains(t, stdout, "Counter")
}

func TestDemo_RejectsZeroCounters(t *testing.T) {
	path, _ := writeConfig(t, false)

	_, _, err := execute(t, "demo", "--config", path, "--counters", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--counters")
}

func TestDemo_EnvOverride(t *testing.T) {
	path, _ := writeConfig(t, false)
	t.Setenv("NSSTORE_ENGINE_TOKEN_SEMANTICS", "bag")

	_, _, err := execute(t, "demo", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestTypes_JSON(t *testing.T) {
	path, _ := writeConfig(t, false)

	stdout, _, err := execute(t, "types", "--config", path, "--json")
	require.NoError(t, err)

	var dtos []presentation.TypeDTO
	require.NoError(t, json.Unmarshal([]byte(stdout), &dtos))
	require.Len(t, dtos, 3)
	assert.Equal(t, counter.CounterTypeName, dtos[0].Name)
	assert.Equal(t, counter.ListTypeName, dtos[1].Name)
	assert.True(t, dtos[1].OnDelete)
	assert.Equal(t, counter.DummyTypeName, dtos[2].Name)
	assert.Zero(t, dtos[2].Middleware)
}

func TestJournalList_AfterDemo(t *testing.T) {
	path, _ := writeConfig(t, true)

	_, _, err := execute(t, "demo", "--config", path, "--counters", "2", "--delay", "1ms", "--json")
	require.NoError(t, err)

	stdout, _, err := execute(t, "journal", "list", "--config", path, "--kind", "deleted", "--json")
	require.NoError(t, err)

	var deleted []presentation.JournalEntryDTO
	require.NoError(t, json.Unmarshal([]byte(stdout), &deleted))
	require.Len(t, deleted, 1, "only the removed counter is gone")
	assert.Equal(t, counter.CounterTypeName, deleted[0].Type)

	stdout, _, err = execute(t, "journal", "list", "--config", path, "--limit", "1", "--json")
	require.NoError(t, err)
	var last []presentation.JournalEntryDTO
	require.NoError(t, json.Unmarshal([]byte(stdout), &last))
	require.Len(t, last, 1)
}

func TestJournalList_RejectsUnknownKind(t *testing.T) {
	path, _ := writeConfig(t, false)

	_, _, err := execute(t, "journal", "list", "--config", path, "--kind", "renamed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown --kind")
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.yaml")
	path, _ := writeConfig(t, false)

	stdout, _, err := execute(t, "config", "init", "--config", path, "--path", target)
	require.NoError(t, err)
	assert.Contains(t, stdout, target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# nsstore configuration")

	_, _, err = execute(t, "config", "init", "--config", path, "--path", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, _, err = execute(t, "config", "init", "--config", path, "--path", target, "--force")
	require.NoError(t, err)
}

func TestConfigEngine_KeepsComments(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.yaml")
	path, _ := writeConfig(t, false)
	_, _, err := execute(t, "config", "init", "--config", path, "--path", target)
	require.NoError(t, err)

	_, _, err = execute(t, "config", "engine", "--config", target, "--token-semantics", "multiset")
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token_semantics: multiset")
	assert.Contains(t, string(data), "# SQLite lifecycle journal")

	_, _, err = execute(t, "config", "engine", "--config", target, "--token-semantics", "bag")
	require.Error(t, err)
}
