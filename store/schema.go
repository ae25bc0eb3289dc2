package store

import "fmt"

// schemaSQL returns the DDL for all tables. signatureDim controls the
// vec0 virtual table dimension.
func schemaSQL(signatureDim int) string {
	return fmt.Sprintf(`
-- Property graph: vertices and their properties
CREATE TABLE IF NOT EXISTS vertices (
    id INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS vertex_properties (
    vertex_id INTEGER NOT NULL REFERENCES vertices(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    value JSON NOT NULL,
    PRIMARY KEY (vertex_id, key)
);

-- Property graph: labelled edges and their properties
CREATE TABLE IF NOT EXISTS edges (
    id INTEGER PRIMARY KEY,
    out_id INTEGER NOT NULL REFERENCES vertices(id) ON DELETE CASCADE,
    in_id INTEGER NOT NULL REFERENCES vertices(id) ON DELETE CASCADE,
    label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS edge_properties (
    edge_id INTEGER NOT NULL REFERENCES edges(id) ON DELETE CASCADE,
    key TEXT NOT NULL,
    value JSON NOT NULL,
    PRIMARY KEY (edge_id, key)
);

-- Declared lookup keys; each has a partial index on the property table
CREATE TABLE IF NOT EXISTS key_indexes (
    kind TEXT NOT NULL,
    key TEXT NOT NULL,
    index_name TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (kind, key)
);

-- Type signatures via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_vertices USING vec0(
    vertex_id INTEGER PRIMARY KEY,
    signature float[%d]
);

-- Import run bookkeeping, one row per phase
CREATE TABLE IF NOT EXISTS import_runs (
    run_id TEXT NOT NULL,
    phase TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at DATETIME NOT NULL,
    elapsed_ms INTEGER NOT NULL DEFAULT 0,
    entities INTEGER NOT NULL DEFAULT 0,
    vertices INTEGER NOT NULL DEFAULT 0,
    edges_created INTEGER NOT NULL DEFAULT 0,
    edges_updated INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    PRIMARY KEY (run_id, phase)
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_edges_out ON edges(out_id);
CREATE INDEX IF NOT EXISTS idx_edges_in ON edges(in_id);
CREATE INDEX IF NOT EXISTS idx_edges_label ON edges(label);
`, signatureDim)
}
