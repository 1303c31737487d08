package idgen

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var intentIDPattern = regexp.MustCompile(`^pi_[0-9a-f]{32}$`)

func TestIntentID_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := IntentID()
		assert.Regexp(t, intentIDPattern, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestClientSecret_NotDerivable(t *testing.T) {
	id := IntentID()

	a, err := ClientSecret(id)
	require.NoError(t, err)
	b, err := ClientSecret(id)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, id+"_secret_"))
	assert.Len(t, strings.TrimPrefix(a, id+"_secret_"), 32)
	assert.NotEqual(t, a, b)
}

func TestGenerator_Next(t *testing.T) {
	g, err := New(1)
	require.NoError(t, err)

	prev := g.Next()
	for i := 0; i < 100; i++ {
		next := g.Next()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestNew_RejectsBadNode(t *testing.T) {
	_, err := New(4096)
	assert.Error(t, err)
}
