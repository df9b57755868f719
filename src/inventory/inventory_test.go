package inventory_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/inventory"
	"instance-provision/src/layout"
)

func mkdir(t *testing.T, parts ...string) string {
	t.Helper()
	p := filepath.Join(parts...)
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func newNetwork(t *testing.T) layout.Layout {
	t.Helper()
	l, err := layout.New(t.TempDir(), layout.DefaultNames())
	require.NoError(t, err)
	return l
}

func TestNew_MissingRoot(t *testing.T) {
	l, err := layout.New(filepath.Join(t.TempDir(), "nope"), layout.DefaultNames())
	require.NoError(t, err)
	_, err = inventory.New(l)
	assert.Error(t, err)
}

func TestList_EmptyNetwork(t *testing.T) {
	inv, err := inventory.New(newNetwork(t))
	require.NoError(t, err)
	entries, err := inv.List(inventory.KindAll)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestList_Instances(t *testing.T) {
	l := newNetwork(t)
	world := mkdir(t, l.WorldTemplates(), "survival", "world")
	dir := mkdir(t, l.InstanceDir("lobby"))
	require.NoError(t, os.Symlink(world, filepath.Join(dir, "world")))
	require.NoError(t, os.Symlink(filepath.Join(l.Root, "gone"), filepath.Join(dir, "logs")))
	mkdir(t, dir, "config")

	inv, err := inventory.New(l)
	require.NoError(t, err)
	entries, err := inv.List(inventory.KindInstances)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "instance", e.Kind)
	assert.Equal(t, "lobby", e.Name)
	assert.Equal(t, []inventory.Link{
		{Name: "logs", Target: filepath.Join(l.Root, "gone"), Dangles: true},
		{Name: "world", Target: world},
	}, e.Links)
}

func TestList_Templates(t *testing.T) {
	l := newNetwork(t)
	owner := uuid.New()
	mkdir(t, l.OwnerDir("survival", "task1", owner.String()), "home")
	mkdir(t, l.OwnerDir("survival", "task1", "public"), "spawn")
	mkdir(t, l.OwnerDir("survival", "task1", "not-an-owner"), "junk")
	mkdir(t, l.ServerTemplates(), "survival", "task1", "default", "plugins")
	mkdir(t, l.ServerTemplates(), "basis", "x", "y", "z")

	inv, err := inventory.New(l)
	require.NoError(t, err)
	entries, err := inv.List(inventory.KindTemplates)
	require.NoError(t, err)

	var got []string
	for _, e := range entries {
		assert.Equal(t, "template", e.Kind)
		got = append(got, e.Owner+"/"+e.Name)
	}
	assert.ElementsMatch(t, []string{owner.String() + "/home", "public/spawn"}, got)
}

func TestList_Logs(t *testing.T) {
	l := newNetwork(t)
	mkdir(t, l.LogsRoot(), "survival", "task1", "lobby", "2024-03-09_14-05-07")
	mkdir(t, l.LogsRoot(), "creative", "build", "2024-03-10_08-00-00")
	mkdir(t, l.LogsRoot(), "creative", "build", "not-a-run")

	inv, err := inventory.New(l)
	require.NoError(t, err)
	entries, err := inv.List(inventory.KindLogs)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, inventory.Entry{
		Kind: "logs", Type: "creative", Name: "build", Timestamp: "2024-03-10_08-00-00",
		Path: filepath.Join(l.LogsRoot(), "creative", "build", "2024-03-10_08-00-00"),
	}, entries[0])
	assert.Equal(t, "task1", entries[1].Task)
	assert.Equal(t, "lobby", entries[1].Name)
}

func TestList_UnknownKind(t *testing.T) {
	inv, err := inventory.New(newNetwork(t))
	require.NoError(t, err)
	_, err = inv.List("volumes")
	assert.Error(t, err)
}
