// Package driver talks Cypher to the Memgraph database behind the meeting
// archive.
package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GraphDriver runs Cypher against the meeting archive.
type GraphDriver interface {
	// ExecuteQuery runs query with params and returns every record.
	ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error)
	// BuildIndices creates the archive's lookup indices; existing ones are kept.
	BuildIndices(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ GraphDriver = (*MemgraphDriver)(nil)
