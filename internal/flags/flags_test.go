package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_Enabled(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]bool
		flag      string
		expected  bool
	}{
		{name: "default on", flag: FlagDeferredActions, expected: true},
		{name: "default off", flag: FlagActionLog, expected: false},
		{name: "override turns on", overrides: map[string]bool{FlagActionLog: true}, flag: FlagActionLog, expected: true},
		{name: "override turns off", overrides: map[string]bool{FlagDeferredActions: false}, flag: FlagDeferredActions, expected: false},
		{name: "unknown flag", overrides: map[string]bool{"other": true}, flag: "missing", expected: false},
		{name: "custom flag", overrides: map[string]bool{"other": true}, flag: "other", expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, New(tt.overrides).Enabled(tt.flag))
		})
	}
}

func TestRegistry_NilIsSafe(t *testing.T) {
	var r *Registry
	require.False(t, r.Enabled(FlagDeferredActions))
	require.Equal(t, map[string]bool{}, r.All())
}

func TestRegistry_All_ReturnsCopy(t *testing.T) {
	overrides := map[string]bool{FlagActionLog: true}
	r := New(overrides)

	all := r.All()
	all[FlagActionLog] = false
	overrides[FlagActionLog] = false

	require.True(t, r.Enabled(FlagActionLog))
	require.Len(t, r.All(), len(Defaults()))
}
