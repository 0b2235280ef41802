package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/yourusername/nascar-calendar/internal/models"
	"github.com/yourusername/nascar-calendar/internal/service"
)

func newTable(w io.Writer, header table.Row, rightAligned ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// renderReport prints the per-series and per-document outcome of a run
func renderReport(w io.Writer, report *service.RunReport) {
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintf(w, "Run %s, season %d%s\n", report.RunID, report.Year, mode)

	series := newTable(w, table.Row{"Series", "Status", "Fetched", "Normalized", "Dropped", "Unknown tracks", "Attempts", "Error"}, 3, 4, 5, 6, 7)
	for _, s := range report.Series {
		status := "ok"
		errText := ""
		if s.Failed() {
			status = string(models.KindOf(s.Err))
			if status == "" {
				status = "failed"
			}
			errText = s.Err.Error()
		}
		series.AppendRow(table.Row{
			s.Series.DisplayName(),
			status,
			s.Fetched,
			s.Normalized,
			s.SchemaDropped + s.ParseErrors + s.Duplicates,
			s.UnknownTracks,
			s.Attempts,
			text.WrapSoft(errText, 60),
		})
	}
	series.Render()

	if len(report.Documents) == 0 {
		return
	}

	header := table.Row{"Document", "Entries"}
	for _, o := range service.AllOutcomes() {
		header = append(header, string(o))
	}
	header = append(header, "Written")
	right := []int{2}
	for i := range service.AllOutcomes() {
		right = append(right, 3+i)
	}

	docs := newTable(w, header, right...)
	for _, d := range report.Documents {
		row := table.Row{d.Location, d.Entries}
		for _, o := range service.AllOutcomes() {
			row = append(row, d.Outcomes[o])
		}
		written := strconv.FormatBool(d.Written)
		switch {
		case d.Failed():
			written = "failed: " + string(models.KindOf(d.Err))
		case !d.Changed:
			written = "unchanged"
		}
		row = append(row, written)
		docs.AppendRow(row)
	}
	docs.Render()
}
