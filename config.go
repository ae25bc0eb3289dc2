package triplegraph

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/bbiangul/triplegraph/entity"
	"github.com/bbiangul/triplegraph/graph"
	"github.com/bbiangul/triplegraph/store/neo4jstore"
)

// Backend names accepted in Config.Backend.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// DBFile is the SQLite database file name inside the output directory.
const DBFile = "graph.db"

// Config holds all configuration for an import run.
type Config struct {
	// Input is an RDF file or a directory of them (one level deep).
	Input string `json:"input" yaml:"input"`

	// Output is the directory holding the SQLite database. It is created
	// when missing and must not be a regular file.
	Output string `json:"output" yaml:"output"`

	// Backend selects the graph store: sqlite (default), neo4j or memory.
	Backend string            `json:"backend" yaml:"backend"`
	Neo4j   neo4jstore.Config `json:"neo4j" yaml:"neo4j"`

	// Phases
	GenerateGraph     bool `json:"generate_graph" yaml:"generate_graph"`
	GenerateRelations bool `json:"generate_relations" yaml:"generate_relations"`

	// Concurrency
	Workers         int `json:"workers" yaml:"workers"`                   // vertex phase workers (default NumCPU)
	RelationWorkers int `json:"relation_workers" yaml:"relation_workers"` // relation phase workers (default 1)
	QueueCapacity   int `json:"queue_capacity" yaml:"queue_capacity"`

	// Commit cadence, in entities per worker
	VertexCommitEvery   int `json:"vertex_commit_every" yaml:"vertex_commit_every"`
	RelationCommitEvery int `json:"relation_commit_every" yaml:"relation_commit_every"`

	// Include filters directory inputs by file name (doublestar glob).
	Include string `json:"include" yaml:"include"`

	// PredicateOrder is lexical (default) or arrival.
	PredicateOrder string `json:"predicate_order" yaml:"predicate_order"`

	Vocabulary graph.Vocabulary `json:"vocabulary" yaml:"vocabulary"`

	// SignatureDim is the length of the type-signature vector kept per
	// vertex by the SQLite backend.
	SignatureDim int `json:"signature_dim" yaml:"signature_dim"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090".
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// DefaultConfig returns a Config with both phases enabled and the
// commit cadence of the reference importer.
func DefaultConfig() Config {
	return Config{
		Backend:             BackendSQLite,
		GenerateGraph:       true,
		GenerateRelations:   true,
		Workers:             runtime.NumCPU(),
		RelationWorkers:     1,
		QueueCapacity:       10,
		VertexCommitEvery:   2000,
		RelationCommitEvery: 300,
		PredicateOrder:      string(entity.OrderLexical),
		Vocabulary:          graph.DefaultVocabulary(),
		SignatureDim:        64,
	}
}

// LoadConfig reads a YAML file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TRIPLEGRAPH_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("TRIPLEGRAPH_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("TRIPLEGRAPH_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("TRIPLEGRAPH_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("TRIPLEGRAPH_NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
	}
	if v := os.Getenv("TRIPLEGRAPH_NEO4J_USERNAME"); v != "" {
		c.Neo4j.Username = v
	}
	if v := os.Getenv("TRIPLEGRAPH_NEO4J_PASSWORD"); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv("TRIPLEGRAPH_NEO4J_DATABASE"); v != "" {
		c.Neo4j.Database = v
	}
	if v := os.Getenv("TRIPLEGRAPH_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	for name, dst := range map[string]*int{
		"TRIPLEGRAPH_WORKERS":          &c.Workers,
		"TRIPLEGRAPH_RELATION_WORKERS": &c.RelationWorkers,
		"TRIPLEGRAPH_QUEUE_CAPACITY":   &c.QueueCapacity,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
		}
		*dst = n
	}
	return nil
}

// Validate checks the configuration without touching the filesystem.
func (c *Config) Validate() error {
	var errs []error
	if c.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	switch c.Backend {
	case BackendSQLite, BackendMemory:
		if c.Output == "" && c.Backend == BackendSQLite {
			errs = append(errs, errors.New("output is required"))
		}
	case BackendNeo4j:
		if c.Neo4j.URI == "" {
			errs = append(errs, errors.New("neo4j.uri is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RelationWorkers < 1 {
		errs = append(errs, fmt.Errorf("relation_workers must be at least 1, got %d", c.RelationWorkers))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity))
	}
	if c.VertexCommitEvery < 1 || c.RelationCommitEvery < 1 {
		errs = append(errs, errors.New("commit intervals must be at least 1"))
	}
	if _, err := entity.ParseOrder(c.PredicateOrder); err != nil {
		errs = append(errs, err)
	}
	if err := c.Vocabulary.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Backend == BackendSQLite && c.SignatureDim < 1 {
		errs = append(errs, fmt.Errorf("signature_dim must be at least 1, got %d", c.SignatureDim))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
