// Package presentation renders store snapshots, type listings and journal
// rows as JSON or terminal tables.
package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
)

// MaxCellWidth bounds the display width of a rendered state cell.
const MaxCellWidth = 48

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("#6B7280"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4B5563"))
)

// DisableColor renders all further output without ANSI styling.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// Formatter handles output formatting.
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter.
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{writer: writer}
}

// FormatJSON writes v as indented JSON.
func (f *Formatter) FormatJSON(v any) error {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// FormatNamespaces writes a namespace table.
func (f *Formatter) FormatNamespaces(dtos []NamespaceDTO) error {
	rows := make([][]string, len(dtos))
	for i, d := range dtos {
		rows[i] = []string{
			strconv.FormatUint(d.Seq, 10),
			d.Type,
			strings.Join(d.Owners, ", "),
			truncate(d.State),
		}
	}
	return f.write(render([]string{"#", "Type", "Owners", "State"}, rows), len(dtos), "namespaces")
}

// FormatTypes writes a type table.
func (f *Formatter) FormatTypes(dtos []TypeDTO) error {
	rows := make([][]string, len(dtos))
	for i, d := range dtos {
		onDelete := "-"
		if d.OnDelete {
			onDelete = "yes"
		}
		rows[i] = []string{d.Name, truncate(d.InitialState), strconv.Itoa(d.Middleware), onDelete}
	}
	return f.write(render([]string{"Type", "Initial", "Stages", "onDelete"}, rows), len(dtos), "types")
}

// FormatJournal writes a journal table.
func (f *Formatter) FormatJournal(dtos []JournalEntryDTO) error {
	rows := make([][]string, len(dtos))
	for i, d := range dtos {
		rows[i] = []string{
			d.RecordedAt.Format("15:04:05.000"),
			d.Kind,
			d.Namespace,
			d.Token,
			strconv.Itoa(d.Owners),
		}
	}
	return f.write(render([]string{"Time", "Kind", "Namespace", "Token", "Owners"}, rows), len(dtos), "entries")
}

func (f *Formatter) write(body string, n int, noun string) error {
	if n == 0 {
		_, err := fmt.Fprintln(f.writer, mutedStyle.Render("no "+noun))
		return err
	}
	_, err := fmt.Fprintln(f.writer, body)
	return err
}

func render(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// truncate limits s to MaxCellWidth display columns.
func truncate(s string) string {
	return runewidth.Truncate(s, MaxCellWidth, "…")
}
