package mp3_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalpath/signalpath/mp3"
)

func TestLoadMissing(t *testing.T) {
	_, _, err := mp3.Load(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not an mp3"), 0644))

	_, _, err := mp3.Load(path)
	assert.Error(t, err)
}
