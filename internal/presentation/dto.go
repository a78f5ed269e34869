package presentation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/nsstore/internal/journal"
	"github.com/zjrosen/nsstore/internal/namespace"
)

// TypeDTO describes a registered namespace type.
type TypeDTO struct {
	Name         string `json:"name"`
	InitialState string `json:"initial_state"`
	Middleware   int    `json:"middleware"`
	OnDelete     bool   `json:"on_delete"`
}

// NamespaceDTO is one live namespace in a snapshot.
type NamespaceDTO struct {
	Key    string   `json:"key"`
	Seq    uint64   `json:"seq"`
	Type   string   `json:"type"`
	Owners []string `json:"owners"`
	State  string   `json:"state"`
}

// JournalEntryDTO is one journal row.
type JournalEntryDTO struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Namespace  string    `json:"namespace"`
	Type       string    `json:"type"`
	Token      string    `json:"token,omitempty"`
	Owners     int       `json:"owners"`
	Action     string    `json:"action"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FromDescriptors converts descriptors sorted by name.
func FromDescriptors(descs []namespace.TypeDescriptor) []TypeDTO {
	dtos := make([]TypeDTO, 0, len(descs))
	for _, d := range descs {
		dtos = append(dtos, TypeDTO{
			Name:         d.Name,
			InitialState: formatValue(d.InitialState),
			Middleware:   len(d.Middleware),
			OnDelete:     d.OnDelete != nil,
		})
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Name < dtos[j].Name })
	return dtos
}

// FromState lists every namespace in creation order.
func FromState(s *namespace.State) []NamespaceDTO {
	keys := s.Keys()
	dtos := make([]NamespaceDTO, 0, len(keys))
	for _, k := range keys {
		typeName, _ := s.TypeOf(k)
		value, _ := s.StateOf(k)
		owners := s.Owners(k)
		names := make([]string, len(owners))
		for i, o := range owners {
			names[i] = fmt.Sprint(o)
		}
		dtos = append(dtos, NamespaceDTO{
			Key:    k.String(),
			Seq:    k.Seq(),
			Type:   typeName,
			Owners: names,
			State:  formatValue(value),
		})
	}
	return dtos
}

// FromJournal converts journal entries.
func FromJournal(entries []journal.Entry) []JournalEntryDTO {
	dtos := make([]JournalEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = JournalEntryDTO{
			ID:         e.ID,
			Kind:       string(e.Kind),
			Namespace:  e.Namespace,
			Type:       e.TypeName,
			Token:      e.Token,
			Owners:     e.Owners,
			Action:     string(e.ActionType),
			RecordedAt: e.RecordedAt,
		}
	}
	return dtos
}

// formatValue renders a state slot. Key slices print one key per entry.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case []namespace.Key:
		parts := make([]string, len(val))
		for i, k := range val {
			parts[i] = k.String()
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
