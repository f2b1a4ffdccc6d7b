package board

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
)

// NameFunc maps an identity to a display name
type NameFunc func(id uuid.UUID) string

// String returns "target: votes" lines in Totals order, targets shown as ids
func (b *Board) String() string {
	return b.Summary(nil)
}

// Summary returns "name: votes" lines in Totals order. nil nameOf prints ids
func (b *Board) Summary(nameOf NameFunc) string {
	lines := []string{}
	for _, t := range b.Totals() {
		lines = append(lines, fmt.Sprintf("%s: %d", displayName(t.Target, nameOf), t.Votes))
	}
	return strings.Join(lines, "\n")
}

// WriteTable renders totals as a markdown-like table
func (b *Board) WriteTable(w io.Writer, nameOf NameFunc) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Player", "Votes"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoFormatHeaders(false)

	for i, t := range b.Totals() {
		table.Append([]string{strconv.Itoa(i + 1), displayName(t.Target, nameOf), strconv.Itoa(t.Votes)})
	}
	table.Render()
}

func displayName(id uuid.UUID, nameOf NameFunc) string {
	if nameOf == nil {
		return id.String()
	}
	if name := nameOf(id); name != "" {
		return name
	}
	return id.String()
}
