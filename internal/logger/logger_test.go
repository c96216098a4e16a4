package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "sk-123", "stage", "analysis"})

	assert.Equal(t, []interface{}{"api_key", "[REDACTED]", "stage", "analysis"}, out)
}

func TestSanitizeKVsHashesUserIDs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"owner_id", "child-42"})

	hashed, ok := out[1].(string)
	assert.True(t, ok)
	assert.NotEqual(t, "child-42", hashed)
	assert.Contains(t, hashed, "hash:")
}

func TestSanitizeKVsKeepsDanglingKey(t *testing.T) {
	out := sanitizeKVs([]interface{}{"stage", "bbox", "orphan"})

	assert.Len(t, out, 3)
	assert.Equal(t, "orphan", out[2])
}
