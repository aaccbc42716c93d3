//go:build !windows

package filesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serax/pkg/contract"
)

func TestMapPathInvalidUnix(t *testing.T) {
	flat := false
	w, err := New(&Options{OutputDir: t.TempDir(), Flat: &flat})
	require.NoError(t, err)
	for _, id := range []string{"/abs", "..", ".", "../../etc/passwd"} {
		_, err := w.mapPath(contract.ArtifactID(id))
		assert.ErrorIs(t, err, contract.ErrPathInvalid, id)
	}
}
