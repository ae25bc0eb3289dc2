package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store is the SQLite-backed property graph. All writes go through one
// long-lived transaction that Commit ends; the next write opens a new one.
type Store struct {
	db           *sql.DB
	signatureDim int

	mu     sync.Mutex
	tx     *sql.Tx
	closed bool
}

var (
	_ Graph          = (*Store)(nil)
	_ RunRecorder    = (*Store)(nil)
	_ SignatureIndex = (*Store)(nil)
	_ Inspector      = (*Store)(nil)
)

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec signature table.
func New(dbPath string, signatureDim int) (*Store, error) {
	if signatureDim <= 0 {
		return nil, fmt.Errorf("signature dimension must be positive, got %d", signatureDim)
	}

	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(signatureDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, signatureDim: signatureDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close commits any pending writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var commitErr error
	if s.tx != nil {
		commitErr = s.tx.Commit()
		s.tx = nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	if commitErr != nil {
		return fmt.Errorf("committing on close: %w", commitErr)
	}
	return nil
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// SignatureDim returns the configured signature dimension.
func (s *Store) SignatureDim() int {
	return s.signatureDim
}

// Commit ends the open write transaction, if any.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// --- Vertex operations ---

func (s *Store) CreateVertex(ctx context.Context) (VertexID, error) {
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "INSERT INTO vertices DEFAULT VALUES")
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("creating vertex: %w", err)
	}
	return VertexID(id), nil
}

func (s *Store) VertexProperty(ctx context.Context, v VertexID, key string) (any, bool, error) {
	return s.property(ctx, "vertex_properties", "vertex_id", int64(v), key)
}

func (s *Store) SetVertexProperty(ctx context.Context, v VertexID, key string, value any) error {
	if err := s.setProperty(ctx, "vertex_properties", "vertex_id", int64(v), key, value); err != nil {
		return fmt.Errorf("setting vertex %d property %q: %w", v, key, err)
	}
	return nil
}

func (s *Store) FindVertices(ctx context.Context, key, value string) ([]VertexID, error) {
	enc, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	var ids []VertexID
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT vertex_id FROM vertex_properties WHERE key = "+quoteLiteral(key)+" AND value = ? ORDER BY vertex_id",
			enc)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, VertexID(id))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("finding vertices by %q: %w", key, err)
	}
	return ids, nil
}

// --- Edge operations ---

func (s *Store) CreateEdge(ctx context.Context, out, in VertexID, label string) (EdgeID, error) {
	if label == "" {
		return 0, errors.New("store: edge label is empty")
	}
	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO edges (out_id, in_id, label) VALUES (?, ?, ?)", int64(out), int64(in), label)
		if err != nil {
			if isForeignKeyErr(err) {
				return fmt.Errorf("%w: endpoint vertex", ErrNotFound)
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("creating %s edge %d->%d: %w", label, out, in, err)
	}
	return EdgeID(id), nil
}

func (s *Store) EdgeProperty(ctx context.Context, e EdgeID, key string) (any, bool, error) {
	return s.property(ctx, "edge_properties", "edge_id", int64(e), key)
}

func (s *Store) SetEdgeProperty(ctx context.Context, e EdgeID, key string, value any) error {
	if err := s.setProperty(ctx, "edge_properties", "edge_id", int64(e), key, value); err != nil {
		return fmt.Errorf("setting edge %d property %q: %w", e, key, err)
	}
	return nil
}

func (s *Store) FindEdges(ctx context.Context, key, value string) ([]Edge, error) {
	enc, err := encodeValue(value)
	if err != nil {
		return nil, err
	}
	var edges []Edge
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT e.id, e.label, e.out_id, e.in_id
			FROM edge_properties p
			JOIN edges e ON e.id = p.edge_id
			WHERE p.key = `+quoteLiteral(key)+` AND p.value = ?
			ORDER BY e.id`, enc)
		if err != nil {
			return err
		}
		defer rows.Close()
		edges, err = scanEdges(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finding edges by %q: %w", key, err)
	}
	return edges, nil
}

// EnsureKeyIndex records key as a lookup key and creates a partial index
// over the matching property rows.
func (s *Store) EnsureKeyIndex(ctx context.Context, kind ElementKind, key string) error {
	var table string
	switch kind {
	case KindVertex:
		table = "vertex_properties"
	case KindEdge:
		table = "edge_properties"
	default:
		return fmt.Errorf("store: unknown element kind %d", kind)
	}
	name := indexName(kind, key)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %s ON %s(value) WHERE key = %s",
			name, table, quoteLiteral(key))); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO key_indexes (kind, key, index_name) VALUES (?, ?, ?)",
			kind.String(), key, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("ensuring %s key index %q: %w", kind, key, err)
	}
	slog.Debug("store: key index ensured", "kind", kind.String(), "key", key, "index", name)
	return nil
}

// indexName derives a stable SQL identifier for a key index.
func indexName(kind ElementKind, key string) string {
	h := sha256.Sum256([]byte(kind.String() + "\x00" + key))
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= 24 {
			break
		}
	}
	return fmt.Sprintf("idx_key_%s_%s_%s", kind.String(), b.String(), hex.EncodeToString(h[:4]))
}

// --- Signatures ---

func (s *Store) SetVertexSignature(ctx context.Context, v VertexID, sig []float32) error {
	if len(sig) != s.signatureDim {
		return fmt.Errorf("signature has %d dimensions, store expects %d", len(sig), s.signatureDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_vertices WHERE vertex_id = ?", int64(v)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO vec_vertices (vertex_id, signature) VALUES (?, ?)",
			int64(v), serializeFloat32(sig))
		return err
	})
}

// NearestVertices performs a KNN search over vertex signatures.
func (s *Store) NearestVertices(ctx context.Context, sig []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	var out []Neighbor
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT vertex_id, distance
			FROM vec_vertices
			WHERE signature MATCH ? AND k = ?
			ORDER BY distance
		`, serializeFloat32(sig), k)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var n Neighbor
			var id int64
			if err := rows.Scan(&id, &n.Distance); err != nil {
				return err
			}
			n.Vertex = VertexID(id)
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("signature search: %w", err)
	}
	return out, nil
}

// --- Import runs ---

func (s *Store) RecordRun(ctx context.Context, r Run) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO import_runs (run_id, phase, status, started_at, elapsed_ms,
				entities, vertices, edges_created, edges_updated, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, phase) DO UPDATE SET
				status = excluded.status,
				elapsed_ms = excluded.elapsed_ms,
				entities = excluded.entities,
				vertices = excluded.vertices,
				edges_created = excluded.edges_created,
				edges_updated = excluded.edges_updated,
				error = excluded.error
		`, r.ID, r.Phase, r.Status, r.StartedAt.UTC(), r.Elapsed.Milliseconds(),
			r.Entities, r.Vertices, r.EdgesCreated, r.EdgesUpdated, nullString(r.Error))
		return err
	})
}

func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	var runs []Run
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT run_id, phase, status, started_at, elapsed_ms,
				entities, vertices, edges_created, edges_updated, error
			FROM import_runs ORDER BY started_at, run_id, phase
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r Run
			var ms int64
			var errText sql.NullString
			if err := rows.Scan(&r.ID, &r.Phase, &r.Status, &r.StartedAt, &ms,
				&r.Entities, &r.Vertices, &r.EdgesCreated, &r.EdgesUpdated, &errText); err != nil {
				return err
			}
			r.Elapsed = time.Duration(ms) * time.Millisecond
			r.Error = errText.String
			runs = append(runs, r)
		}
		return rows.Err()
	})
	return runs, err
}

// --- Diagnostics ---

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{EdgesByLabel: make(map[string]int64)}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		queries := []struct {
			query string
			dest  *int64
		}{
			{"SELECT COUNT(*) FROM vertices", &stats.Vertices},
			{"SELECT COUNT(*) FROM edges", &stats.Edges},
			{"SELECT COUNT(*) FROM vec_vertices", &stats.Signatures},
		}
		for _, q := range queries {
			if err := tx.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
				return fmt.Errorf("counting %s: %w", q.query, err)
			}
		}

		rows, err := tx.QueryContext(ctx, "SELECT label, COUNT(*) FROM edges GROUP BY label")
		if err != nil {
			return err
		}
		for rows.Next() {
			var label string
			var n int64
			if err := rows.Scan(&label, &n); err != nil {
				rows.Close()
				return err
			}
			stats.EdgesByLabel[label] = n
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = tx.QueryContext(ctx, "SELECT kind, key FROM key_indexes ORDER BY kind, key")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var kind, key string
			if err := rows.Scan(&kind, &key); err != nil {
				return err
			}
			stats.KeyIndexes = append(stats.KeyIndexes, kind+":"+key)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// AllEdges returns every edge ordered by id.
func (s *Store) AllEdges(ctx context.Context) ([]Edge, error) {
	var edges []Edge
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id, label, out_id, in_id FROM edges ORDER BY id")
		if err != nil {
			return err
		}
		defer rows.Close()
		edges, err = scanEdges(rows)
		return err
	})
	return edges, err
}

// VertexStrings returns the string value of key for every vertex that has
// one.
func (s *Store) VertexStrings(ctx context.Context, key string) (map[VertexID]string, error) {
	out := make(map[VertexID]string)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			"SELECT vertex_id, value FROM vertex_properties WHERE key = "+quoteLiteral(key))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var raw string
			if err := rows.Scan(&id, &raw); err != nil {
				return err
			}
			v, err := decodeValue(raw)
			if err != nil {
				return err
			}
			if str, ok := v.(string); ok {
				out[VertexID(id)] = str
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EdgeProperties returns all properties of an edge.
func (s *Store) EdgeProperties(ctx context.Context, e EdgeID) (map[string]any, error) {
	props := make(map[string]any)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT key, value FROM edge_properties WHERE edge_id = ?", int64(e))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key, raw string
			if err := rows.Scan(&key, &raw); err != nil {
				return err
			}
			v, err := decodeValue(raw)
			if err != nil {
				return err
			}
			props[key] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return props, nil
}

// --- helpers ---

// inTx runs fn inside the store's open write transaction, beginning one
// if needed. The store lock is held for the duration of fn.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		// The transaction outlives the call that opens it.
		tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
		if err != nil {
			return err
		}
		s.tx = tx
	}
	return fn(s.tx)
}

func (s *Store) property(ctx context.Context, table, idCol string, id int64, key string) (any, bool, error) {
	var raw string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			"SELECT value FROM "+table+" WHERE "+idCol+" = ? AND key = ?", id, key).Scan(&raw)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeValue(raw)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) setProperty(ctx context.Context, table, idCol string, id int64, key string, value any) error {
	enc, err := encodeValue(value)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO "+table+" ("+idCol+", key, value) VALUES (?, ?, ?) "+
				"ON CONFLICT("+idCol+", key) DO UPDATE SET value = excluded.value",
			id, key, enc)
		if err != nil && isForeignKeyErr(err) {
			return fmt.Errorf("%w: %s %d", ErrNotFound, strings.TrimSuffix(idCol, "_id"), id)
		}
		return err
	})
}

func isForeignKeyErr(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func scanEdges(rows *sql.Rows) ([]Edge, error) {
	var edges []Edge
	for rows.Next() {
		var e Edge
		var id, out, in int64
		if err := rows.Scan(&id, &e.Label, &out, &in); err != nil {
			return nil, err
		}
		e.ID, e.Out, e.In = EdgeID(id), VertexID(out), VertexID(in)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
