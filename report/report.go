// Package report writes a spreadsheet summary of an imported graph.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/store"
)

// Sheet names in the written workbook.
const (
	SheetSummary    = "Summary"
	SheetEdges      = "Edges"
	SheetComponents = "Components"
	SheetRuns       = "Runs"
)

// sampleSize is how many vertex URIs a component row lists.
const sampleSize = 5

// WriteXLSX writes the store's statistics, every edge with its weights,
// and the given components to path. A Runs sheet is added when the store
// keeps import-run bookkeeping.
func WriteXLSX(ctx context.Context, insp store.Inspector, comps []graph.Component, path string) error {
	stats, err := insp.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}
	uris, err := insp.VertexStrings(ctx, graph.PropURI)
	if err != nil {
		return fmt.Errorf("reading vertex URIs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}
	w := &writer{f: f, header: bold}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("renaming sheet: %w", err)
	}
	if err := w.summary(stats, comps); err != nil {
		return err
	}
	if err := w.edges(ctx, insp, uris); err != nil {
		return err
	}
	if err := w.components(comps, uris); err != nil {
		return err
	}
	if rr, ok := insp.(store.RunRecorder); ok {
		runs, err := rr.Runs(ctx)
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}
		if err := w.runs(runs); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving report: %w", err)
	}
	slog.Info("report: written", "path", path, "edges", stats.Edges, "components", len(comps))
	return nil
}

type writer struct {
	f      *excelize.File
	header int
}

func (w *writer) sheet(name string, header ...any) error {
	if name != SheetSummary {
		if _, err := w.f.NewSheet(name); err != nil {
			return fmt.Errorf("creating sheet %s: %w", name, err)
		}
	}
	if err := w.row(name, 1, header...); err != nil {
		return err
	}
	return w.f.SetRowStyle(name, 1, 1, w.header)
}

func (w *writer) row(sheet string, n int, values ...any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, n, err)
	}
	return nil
}

func (w *writer) summary(stats *store.Stats, comps []graph.Component) error {
	if err := w.sheet(SheetSummary, "Metric", "Value"); err != nil {
		return err
	}
	var level0 int
	for _, c := range comps {
		if c.Level == 0 {
			level0++
		}
	}
	rows := [][]any{
		{"vertices", stats.Vertices},
		{"edges", stats.Edges},
		{"signatures", stats.Signatures},
		{"components", level0},
		{"key indexes", strings.Join(stats.KeyIndexes, ", ")},
	}
	labels := make([]string, 0, len(stats.EdgesByLabel))
	for l := range stats.EdgesByLabel {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	for _, l := range labels {
		rows = append(rows, []any{"edges: " + l, stats.EdgesByLabel[l]})
	}
	for i, r := range rows {
		if err := w.row(SheetSummary, i+2, r...); err != nil {
			return err
		}
	}
	return w.f.SetColWidth(SheetSummary, "A", "B", 28)
}

func (w *writer) edges(ctx context.Context, insp store.Inspector, uris map[store.VertexID]string) error {
	if err := w.sheet(SheetEdges, "Out", "In", "Label", "Connected by", "Weights"); err != nil {
		return err
	}
	edges, err := insp.AllEdges(ctx)
	if err != nil {
		return fmt.Errorf("reading edges: %w", err)
	}
	for i, e := range edges {
		props, err := insp.EdgeProperties(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("reading edge %d: %w", e.ID, err)
		}
		mediator, _ := props[graph.PropConnectedBy].(string)
		if err := w.row(SheetEdges, i+2, uris[e.Out], uris[e.In], e.Label, mediator, formatWeights(props)); err != nil {
			return err
		}
	}
	return w.f.SetColWidth(SheetEdges, "A", "E", 40)
}

// formatWeights renders the counter properties of an edge as
// "key=value" pairs in key order.
func formatWeights(props map[string]any) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		if k == graph.PropConnected || k == graph.PropConnectedBy {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, props[k])
	}
	return strings.Join(parts, ", ")
}

func (w *writer) components(comps []graph.Component, uris map[store.VertexID]string) error {
	if err := w.sheet(SheetComponents, "#", "Level", "Parent", "Vertices", "Edges", "Sample"); err != nil {
		return err
	}
	for i, c := range comps {
		sample := make([]string, 0, sampleSize)
		for _, v := range c.Vertices[:min(sampleSize, len(c.Vertices))] {
			sample = append(sample, uris[v])
		}
		if err := w.row(SheetComponents, i+2, i, c.Level, c.Parent, len(c.Vertices), c.Edges, strings.Join(sample, " ")); err != nil {
			return err
		}
	}
	return nil
}

func (w *writer) runs(runs []store.Run) error {
	if err := w.sheet(SheetRuns, "Run", "Phase", "Status", "Started", "Elapsed", "Entities", "Vertices", "Edges created", "Edges updated", "Error"); err != nil {
		return err
	}
	for i, r := range runs {
		if err := w.row(SheetRuns, i+2, r.ID, r.Phase, r.Status, r.StartedAt.UTC().Format("2006-01-02 15:04:05"),
			r.Elapsed.String(), r.Entities, r.Vertices, r.EdgesCreated, r.EdgesUpdated, r.Error); err != nil {
			return err
		}
	}
	return nil
}
