// Package neo4jstore implements store.Graph on a Neo4j server. Vertices
// are nodes labelled Vertex; edges are relationships whose type is the
// edge label.
package neo4jstore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/bbiangul/triplegraph/store"
)

// VertexLabel is the node label given to every vertex.
const VertexLabel = "Vertex"

// Config holds connection settings for a Neo4j server.
type Config struct {
	URI            string `json:"uri" yaml:"uri"`
	Username       string `json:"username" yaml:"username"`
	Password       string `json:"password" yaml:"password"`
	Database       string `json:"database" yaml:"database"`
	MaxPoolSize    int    `json:"max_pool_size" yaml:"max_pool_size"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`

	// EdgeLabels are the relationship types indexed at bootstrap, before
	// the first edge of each type is created.
	EdgeLabels []string `json:"edge_labels" yaml:"edge_labels"`
}

// Store writes the graph through one explicit transaction per commit
// window. Schema statements run in their own auto-commit sessions.
type Store struct {
	driver   neo4j.DriverWithContext
	database string

	mu      sync.Mutex
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	closed  bool

	// edge keys that must be indexed for every relationship type known
	edgeKeys   map[string]struct{}
	edgeLabels map[string]struct{}
}

var _ store.Graph = (*Store)(nil)

// Open connects to the server and verifies connectivity.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4jstore: uri is required")
	}
	user := cfg.Username
	if user == "" {
		user = "neo4j"
	}
	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = maxPool
			c.SocketConnectTimeout = timeout
		})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore: verify connectivity: %w", err)
	}

	return newStore(driver, cfg), nil
}

func newStore(driver neo4j.DriverWithContext, cfg Config) *Store {
	s := &Store{
		driver:     driver,
		database:   cfg.Database,
		edgeKeys:   make(map[string]struct{}),
		edgeLabels: make(map[string]struct{}),
	}
	for _, l := range cfg.EdgeLabels {
		if l != "" {
			s.edgeLabels[l] = struct{}{}
		}
	}
	return s
}

func (s *Store) CreateVertex(ctx context.Context) (store.VertexID, error) {
	var id int64
	err := s.run(ctx, "CREATE (v:"+VertexLabel+") RETURN id(v)", nil, func(rec []any) error {
		id = rec[0].(int64)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("creating vertex: %w", err)
	}
	return store.VertexID(id), nil
}

func (s *Store) VertexProperty(ctx context.Context, v store.VertexID, key string) (any, bool, error) {
	return s.property(ctx, "MATCH (x:"+VertexLabel+") WHERE id(x) = $id RETURN x[$key]", int64(v), key)
}

func (s *Store) SetVertexProperty(ctx context.Context, v store.VertexID, key string, value any) error {
	return s.setProperty(ctx,
		"MATCH (x:"+VertexLabel+") WHERE id(x) = $id SET x += $props RETURN id(x)", int64(v), key, value)
}

func (s *Store) FindVertices(ctx context.Context, key, value string) ([]store.VertexID, error) {
	var ids []store.VertexID
	err := s.run(ctx,
		"MATCH (x:"+VertexLabel+") WHERE x."+quoteName(key)+" = $value RETURN id(x) ORDER BY id(x)",
		map[string]any{"value": value},
		func(rec []any) error {
			ids = append(ids, store.VertexID(rec[0].(int64)))
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("finding vertices by %q: %w", key, err)
	}
	return ids, nil
}

func (s *Store) CreateEdge(ctx context.Context, out, in store.VertexID, label string) (store.EdgeID, error) {
	if label == "" {
		return 0, fmt.Errorf("neo4jstore: edge label is empty")
	}
	if err := s.ensureLabelIndexes(ctx, label); err != nil {
		return 0, err
	}
	var id int64
	found := false
	err := s.run(ctx,
		"MATCH (a:"+VertexLabel+"), (b:"+VertexLabel+") WHERE id(a) = $out AND id(b) = $in "+
			"CREATE (a)-[r:"+quoteName(label)+"]->(b) RETURN id(r)",
		map[string]any{"out": int64(out), "in": int64(in)},
		func(rec []any) error {
			id = rec[0].(int64)
			found = true
			return nil
		})
	if err != nil {
		return 0, fmt.Errorf("creating %s edge %d->%d: %w", label, out, in, err)
	}
	if !found {
		return 0, fmt.Errorf("creating %s edge %d->%d: %w", label, out, in, store.ErrNotFound)
	}
	return store.EdgeID(id), nil
}

func (s *Store) EdgeProperty(ctx context.Context, e store.EdgeID, key string) (any, bool, error) {
	return s.property(ctx, "MATCH ()-[r]->() WHERE id(r) = $id RETURN r[$key]", int64(e), key)
}

func (s *Store) SetEdgeProperty(ctx context.Context, e store.EdgeID, key string, value any) error {
	return s.setProperty(ctx, "MATCH ()-[r]->() WHERE id(r) = $id SET r += $props RETURN id(r)", int64(e), key, value)
}

// FindEdges looks the value up once per known relationship type, since
// relationship property indexes are only used when the type is matched.
func (s *Store) FindEdges(ctx context.Context, key, value string) ([]store.Edge, error) {
	labels := s.knownLabels()
	if len(labels) == 0 {
		return nil, nil
	}
	var edges []store.Edge
	err := s.run(ctx, findEdgesCypher(labels, key), map[string]any{"value": value},
		func(rec []any) error {
			edges = append(edges, store.Edge{
				ID:    store.EdgeID(rec[0].(int64)),
				Label: rec[1].(string),
				Out:   store.VertexID(rec[2].(int64)),
				In:    store.VertexID(rec[3].(int64)),
			})
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("finding edges by %q: %w", key, err)
	}
	slices.SortFunc(edges, func(a, b store.Edge) int { return cmp.Compare(a.ID, b.ID) })
	return edges, nil
}

// EnsureKeyIndex creates a schema index. Relationship indexes are per
// type: an edge key is indexed for the configured labels, the types
// already in the database and every type created later.
func (s *Store) EnsureKeyIndex(ctx context.Context, kind store.ElementKind, key string) error {
	switch kind {
	case store.KindVertex:
		return s.schema(ctx, fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (x:%s) ON (x.%s)",
			quoteName(indexName("vertex", VertexLabel, key)), VertexLabel, quoteName(key)))
	case store.KindEdge:
		existing, err := s.relationshipTypes(ctx)
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.edgeKeys[key] = struct{}{}
		for _, l := range existing {
			s.edgeLabels[l] = struct{}{}
		}
		s.mu.Unlock()
		for _, l := range s.knownLabels() {
			if err := s.schema(ctx, edgeIndexCypher(l, key)); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("neo4jstore: unknown element kind %d", kind)
	}
}

// Commit ends the open explicit transaction, if any.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	return s.commitLocked(ctx)
}

// Close commits pending writes and releases the driver.
func (s *Store) Close() error {
	ctx := context.Background()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	commitErr := s.commitLocked(ctx)
	if s.session != nil {
		_ = s.session.Close(ctx)
		s.session = nil
	}
	if err := s.driver.Close(ctx); err != nil {
		return err
	}
	return commitErr
}

func (s *Store) commitLocked(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	defer tx.Close(ctx)
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("neo4jstore: commit: %w", err)
	}
	return nil
}

// run executes cypher in the open write transaction and hands each
// record's values to fn.
func (s *Store) run(ctx context.Context, cypher string, params map[string]any, fn func([]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if s.session == nil {
		s.session = s.driver.NewSession(ctx, neo4j.SessionConfig{
			AccessMode:   neo4j.AccessModeWrite,
			DatabaseName: s.database,
		})
	}
	if s.tx == nil {
		tx, err := s.session.BeginTransaction(context.WithoutCancel(ctx))
		if err != nil {
			return fmt.Errorf("neo4jstore: begin: %w", err)
		}
		s.tx = tx
	}

	res, err := s.tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	for res.Next(ctx) {
		if fn == nil {
			continue
		}
		if err := fn(res.Record().Values); err != nil {
			return err
		}
	}
	return res.Err()
}

// schema runs a schema statement in its own auto-commit session.
func (s *Store) schema(ctx context.Context, cypher string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, cypher, nil)
	if err != nil {
		return fmt.Errorf("neo4jstore: schema: %w", err)
	}
	if _, err := res.Consume(ctx); err != nil {
		return fmt.Errorf("neo4jstore: schema: %w", err)
	}
	slog.Debug("neo4jstore: schema statement applied", "cypher", cypher)
	return nil
}

// relationshipTypes lists the relationship types present in the database.
func (s *Store) relationshipTypes(ctx context.Context) ([]string, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	res, err := session.Run(ctx, "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType", nil)
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: relationship types: %w", err)
	}
	var types []string
	for res.Next(ctx) {
		if t, ok := res.Record().Values[0].(string); ok {
			types = append(types, t)
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("neo4jstore: relationship types: %w", err)
	}
	return types, nil
}

func (s *Store) knownLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := make([]string, 0, len(s.edgeLabels))
	for l := range s.edgeLabels {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

func (s *Store) ensureLabelIndexes(ctx context.Context, label string) error {
	s.mu.Lock()
	if _, ok := s.edgeLabels[label]; ok {
		s.mu.Unlock()
		return nil
	}
	s.edgeLabels[label] = struct{}{}
	keys := make([]string, 0, len(s.edgeKeys))
	for k := range s.edgeKeys {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		if err := s.schema(ctx, edgeIndexCypher(label, k)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) property(ctx context.Context, cypher string, id int64, key string) (any, bool, error) {
	var (
		val   any
		found bool
	)
	err := s.run(ctx, cypher, map[string]any{"id": id, "key": key}, func(rec []any) error {
		if rec[0] == nil {
			return nil
		}
		v, err := fromNeo4j(rec[0])
		if err != nil {
			return err
		}
		val, found = v, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return val, found, nil
}

func (s *Store) setProperty(ctx context.Context, cypher string, id int64, key string, value any) error {
	v, err := toNeo4j(value)
	if err != nil {
		return err
	}
	matched := false
	err = s.run(ctx, cypher, map[string]any{"id": id, "props": map[string]any{key: v}}, func([]any) error {
		matched = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("setting property %q on %d: %w", key, id, err)
	}
	if !matched {
		return fmt.Errorf("setting property %q on %d: %w", key, id, store.ErrNotFound)
	}
	return nil
}

// findEdgesCypher matches key = $value on each relationship type in turn.
func findEdgesCypher(labels []string, key string) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = "MATCH (a)-[r:" + quoteName(l) + "]->(b) WHERE r." + quoteName(key) + " = $value " +
			"RETURN id(r) AS edge, type(r) AS label, id(a) AS source, id(b) AS target"
	}
	return strings.Join(parts, " UNION ALL ")
}

func edgeIndexCypher(label, key string) string {
	return fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR ()-[r:%s]-() ON (r.%s)",
		quoteName(indexName("edge", label, key)), quoteName(label), quoteName(key))
}

// quoteName escapes a Cypher identifier with backticks.
func quoteName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func indexName(kind, label, key string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_", "`", "")
	return "triplegraph_" + kind + "_" + r.Replace(label) + "_" + r.Replace(key)
}

// toNeo4j maps a property value onto a type the driver can send.
func toNeo4j(v any) (any, error) {
	switch x := v.(type) {
	case string, int64:
		return x, nil
	case int:
		return int64(x), nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported property value type %T", v)
	}
}

// fromNeo4j maps a returned value back onto string, []string or int64.
func fromNeo4j(v any) (any, error) {
	switch x := v.(type) {
	case string, int64:
		return x, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected list element type %T", e)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected property value type %T", v)
	}
}
