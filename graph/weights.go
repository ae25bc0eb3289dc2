package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/bbiangul/triplegraph/store"
)

// WeightKeys returns the counter keys a predicate contributes to: every
// dotted prefix of its local name. music.recording.canonical_version
// yields music, music.recording and music.recording.canonical_version.
func WeightKeys(predicate string) []string {
	local := LocalName(predicate)
	parts := strings.Split(local, ".")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	keys := make([]string, 0, len(parts))
	for i := range parts {
		keys = append(keys, strings.Join(parts[:i+1], "."))
	}
	return keys
}

// UpdateEdgeWeights increments each of the predicate's counters on e.
// Absent counters start at zero. Callers hold the edge's pair lock.
func UpdateEdgeWeights(ctx context.Context, g store.Graph, e store.EdgeID, predicate string) error {
	for _, key := range WeightKeys(predicate) {
		v, ok, err := g.EdgeProperty(ctx, e, key)
		if err != nil {
			return err
		}
		var n int64
		if ok {
			n, err = toInt64(v)
			if err != nil {
				return fmt.Errorf("counter %q: %w", key, err)
			}
		}
		if err := g.SetEdgeProperty(ctx, e, key, n+1); err != nil {
			return err
		}
	}
	return nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("not a counter: %T", v)
	}
}
