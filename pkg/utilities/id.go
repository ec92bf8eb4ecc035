package utilities

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// IDGenerator hands out snowflake IDs from a single node. One generator must
// be shared per process so the node's sequence counter is respected.
type IDGenerator struct {
	node *snowflake.Node
}

// NewIDGenerator creates a generator bound to nodeID (0..1023).
func NewIDGenerator(nodeID int64) (*IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &IDGenerator{node: node}, nil
}

// Next returns a new, time ordered int64 ID.
func (g *IDGenerator) Next() int64 {
	return g.node.Generate().Int64()
}

// SnowflakeNodeFromEnv reads SNOWFLAKE_NODE, defaulting to node 1 when unset.
func SnowflakeNodeFromEnv() (int64, error) {
	nodeEnv := os.Getenv("SNOWFLAKE_NODE")
	if nodeEnv == "" {
		return 1, nil
	}
	nodeID, err := strconv.ParseInt(nodeEnv, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid SNOWFLAKE_NODE %q: %w", nodeEnv, err)
	}
	return nodeID, nil
}
