// Package idgen issues identifiers: snowflake ids for users and listings,
// opaque random ids for payment intents.
package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

const IntentPrefix = "pi_"

type Generator struct {
	node *snowflake.Node
}

// New returns a generator for the given snowflake node (0-1023). Each running
// replica needs its own node number for ids to stay unique.
func New(node int64) (*Generator, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Generator{node: n}, nil
}

// Next returns a time-ordered 64-bit id.
func (g *Generator) Next() int64 {
	return g.node.Generate().Int64()
}

// IntentID returns "pi_" followed by 32 lowercase hex characters.
func IntentID() string {
	return IntentPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ClientSecret returns a secret bound to the intent id. The random part is
// read from crypto/rand and cannot be derived from the id.
func ClientSecret(intentID string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return intentID + "_secret_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
