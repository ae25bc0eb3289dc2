//go:build cgo

package main

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestImportStatsSimilar(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "graph")

	_, err := execute(t, "import", "-i", sample, "-o", out)
	require.NoError(t, err)

	xlsx := filepath.Join(dir, "report.xlsx")
	stats, err := execute(t, "stats", "-o", out, "--xlsx", xlsx)
	require.NoError(t, err)
	assert.Contains(t, stats, "vertices:   5\n")
	assert.Contains(t, stats, "edges:      5\n")
	assert.Contains(t, stats, "components: 2 (largest 3 vertices)\n")

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Runs")

	similar, err := execute(t, "similar", "-o", out, "-k", "2", "http://rdf.basekb.com/ns/m.01")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(similar), "\n")
	assert.Len(t, lines, 2)
	assert.NotContains(t, similar, "ns/m.01\n")

	nb, err := execute(t, "neighbors", "-o", out, "-d", "2", "http://rdf.basekb.com/ns/m.03")
	require.NoError(t, err)
	lines = strings.Split(strings.TrimSpace(nb), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "0\thttp://rdf.basekb.com/ns/m.03", lines[0])
	assert.ElementsMatch(t, []string{
		"1\thttp://rdf.basekb.com/ns/m.04",
		"1\thttp://rdf.basekb.com/ns/m.05",
	}, lines[1:])
}
