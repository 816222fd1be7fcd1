package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeKVsRedactsCredentials(t *testing.T) {
	got := sanitizeKVs([]interface{}{
		"project_id", "p1",
		"share_token", "abc",
		"Session_Cookie", "xyz",
		"dangling",
	})
	require.Len(t, got, 7)
	assert.Equal(t, "p1", got[1])
	assert.Equal(t, "[REDACTED]", got[3])
	assert.Equal(t, "[REDACTED]", got[5])
	assert.Equal(t, "dangling", got[6])
}

func TestNewTestModeIsSilent(t *testing.T) {
	l, err := New("test")
	require.NoError(t, err)
	l.Info("hello", "k", "v")
	l.With("step_id", "s1").Warn("still quiet")
}
