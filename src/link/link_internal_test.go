package link

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/layout"
	"instance-provision/src/result"
)

func TestLinkAsset_DeleteFailure(t *testing.T) {
	l, err := layout.New(t.TempDir(), layout.DefaultNames())
	require.NoError(t, err)
	src := filepath.Join(l.WorldTemplates(), "survival", "world")
	require.NoError(t, os.MkdirAll(src, 0o755))
	inst := l.InstanceDir("s1")
	require.NoError(t, os.MkdirAll(filepath.Join(inst, "world"), 0o755))

	orig := removeAsset
	removeAsset = func(string) error { return errors.New("device busy") }
	t.Cleanup(func() { removeAsset = orig })

	r := New(l).LinkAsset(inst, "world", "survival", "")
	require.False(t, r.OK())
	assert.Equal(t, ReasonDeleteAsset, result.Reason(r))
	assert.NotEqual(t, ReasonCreateAssetLink, result.Reason(r))
	assert.DirExists(t, filepath.Join(inst, "world"))
}
