package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hpungsan/nounimaging/internal/imaging"
	"github.com/hpungsan/nounimaging/internal/noun"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderReport renders the run summary, per-action counts and any failures.
func renderReport(report *imaging.Report) string {
	s := report.Summary
	summary := renderTable(
		[]string{"Run", "Value"},
		[][]string{
			{"ID", s.RunID},
			{"Namespace", s.Namespace},
			{"Files", fmt.Sprintf("%d (%s)", s.ListedFiles, humanize.Bytes(uint64(max(s.ListedBytes, 0))))},
			{"Skipped", strconv.Itoa(s.Skipped)},
			{"Repaired names", strconv.Itoa(s.Repaired)},
			{"Records", strconv.Itoa(s.Records)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Cleaned references", strconv.Itoa(s.Cleaned)},
			{"Started", humanize.Time(s.StartedAt)},
			{"Duration", (time.Duration(s.DurationMs) * time.Millisecond).String()},
		},
		[]columnAlignment{alignLeft, alignRight},
	)

	actionRows := make([][]string, 0, len(imaging.Actions))
	for _, a := range imaging.Actions {
		if n := s.Actions[a]; n > 0 {
			actionRows = append(actionRows, []string{string(a), humanize.Comma(int64(n))})
		}
	}

	var b strings.Builder
	b.WriteString(summary)
	if len(actionRows) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Action", "Files"}, actionRows, []columnAlignment{alignLeft, alignRight}))
	}

	failed := failedResults(report)
	if len(failed) > 0 {
		rows := make([][]string, 0, len(failed))
		for _, r := range failed {
			rows = append(rows, []string{r.Original, string(r.Action), r.Error})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"File", "Action", "Error"}, rows, nil))
	}
	return b.String()
}

// renderNouns renders one page of nouns.
func renderNouns(items []*noun.Noun) string {
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		image := "-"
		if n.HasImage() {
			image = "yes"
		}
		rows = append(rows, []string{n.ID, n.NameEn, n.NameHe, n.CategoryRef, image})
	}
	return renderTable([]string{"ID", "English", "Hebrew", "Category", "Image"}, rows, nil)
}
