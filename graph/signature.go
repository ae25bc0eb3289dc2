package graph

import (
	"hash/fnv"
	"math"
)

// Signature hashes the local names of a topic's types into a unit vector
// of dim buckets. Topics sharing types land close together. It returns
// nil when no type contributes.
func Signature(types []string, dim int) []float32 {
	if dim <= 0 || len(types) == 0 {
		return nil
	}
	vec := make([]float32, dim)
	for _, t := range types {
		name := LocalName(t)
		if name == "" {
			continue
		}
		f := fnv.New32a()
		f.Write([]byte(name))
		vec[f.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
