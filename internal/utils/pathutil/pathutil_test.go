package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	t.Run("Should replace a leading tilde with the home directory", func(t *testing.T) {
		home, err := os.UserHomeDir()
		require.NoError(t, err)

		expanded, err := ExpandPath("~/.lesion/models")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".lesion", "models"), expanded)
	})

	t.Run("Should leave other paths untouched", func(t *testing.T) {
		expanded, err := ExpandPath("/srv/models/model.msgpack")
		require.NoError(t, err)
		assert.Equal(t, "/srv/models/model.msgpack", expanded)
	})
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "artifact.bin")
	require.NoError(t, os.WriteFile(file, []byte{1}, 0o644))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing")))
}
