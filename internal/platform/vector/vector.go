package vector

import "context"

// Store is the similarity-search collaborator: the ingestion side writes
// chunk vectors, the retrieval engine queries them. Implementations must
// return matches ordered by descending score.
type Store interface {
	Upsert(ctx context.Context, namespace string, vectors []Vector) error
	// QueryMatches returns IDs with their similarity scores (higher is better),
	// scoped to the namespace.
	QueryMatches(ctx context.Context, namespace string, q []float32, topK int) ([]Match, error)
}

type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

type Match struct {
	ID    string
	Score float64
}
