package resolve_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/resolve"
)

const (
	typeID = "survival"
	task   = "task1"
	def    = "default"
)

func mkdir(t *testing.T, parts ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(parts...), 0o755))
}

// TestTemplate_PresenceMatrix covers every combination of type, task and
// default directory presence. hasDefault places a default directory at
// every tier whose parent exists.
func TestTemplate_PresenceMatrix(t *testing.T) {
	for _, hasType := range []bool{false, true} {
		for _, hasTask := range []bool{false, true} {
			for _, hasDefault := range []bool{false, true} {
				name := fmt.Sprintf("type=%t/task=%t/default=%t", hasType, hasTask, hasDefault)
				t.Run(name, func(t *testing.T) {
					root := t.TempDir()
					if hasType {
						mkdir(t, root, typeID)
						if hasTask {
							mkdir(t, root, typeID, task)
						}
					} else if hasTask {
						// a task-named folder directly under the root must not be picked up
						mkdir(t, root, task)
					}
					if hasDefault {
						mkdir(t, root, def)
						if hasType {
							mkdir(t, root, typeID, def)
						}
						if hasType && hasTask {
							mkdir(t, root, typeID, task, def)
						}
					}

					var want string
					switch {
					case !hasType:
						want = filepath.Join(root, def)
					case hasTask && hasDefault:
						want = filepath.Join(root, typeID, task, def)
					case hasTask:
						want = filepath.Join(root, typeID, task)
					case hasDefault:
						want = filepath.Join(root, typeID, def)
					default:
						want = filepath.Join(root, typeID)
					}
					assert.Equal(t, want, resolve.Template(root, typeID, task, def))
				})
			}
		}
	}
}

func TestTemplate_NothingExists_ReturnsGlobalDefault(t *testing.T) {
	root := t.TempDir()
	for _, k := range []string{"", task, "other"} {
		assert.Equal(t, filepath.Join(root, def), resolve.Template(root, typeID, k, def))
	}
}

func TestTemplate_TypeWithoutDefault_FallsBackToGlobalDefault(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, typeID)
	mkdir(t, root, def)

	assert.Equal(t, filepath.Join(root, def), resolve.Template(root, typeID, "", def))
}

func TestTemplate_EmptyTaskSkipsTaskBranch(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, typeID, def)
	mkdir(t, root, typeID, task, def)

	assert.Equal(t, filepath.Join(root, typeID, def), resolve.Template(root, typeID, "", def))
}

func TestTemplate_UnknownTaskUsesTypeDefault(t *testing.T) {
	root := t.TempDir()
	mkdir(t, root, typeID, def)
	mkdir(t, root, typeID, task)

	assert.Equal(t, filepath.Join(root, typeID, def), resolve.Template(root, typeID, "missing", def))
}

func TestAssetLayer(t *testing.T) {
	root := t.TempDir()
	assert.Equal(t, root, resolve.AssetLayer(root, typeID, task), "missing type resolves to the kind root")

	mkdir(t, root, typeID, def)
	assert.Equal(t, filepath.Join(root, typeID), resolve.AssetLayer(root, typeID, task), "asset layers never descend into default")

	mkdir(t, root, typeID, task, def)
	assert.Equal(t, filepath.Join(root, typeID, task), resolve.AssetLayer(root, typeID, task))
	assert.Equal(t, filepath.Join(root, typeID), resolve.AssetLayer(root, typeID, ""))
}

func TestDefault(t *testing.T) {
	root := t.TempDir()
	const pd = "player_default"

	got, ok := resolve.Default(root, typeID, task, pd)
	assert.False(t, ok)
	assert.Equal(t, filepath.Join(root, pd), got)

	// owner folders below the task must never be picked
	mkdir(t, root, typeID, task, "owner", "world")
	mkdir(t, root, pd)
	got, ok = resolve.Default(root, typeID, task, pd)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(root, pd), got)

	mkdir(t, root, typeID, pd)
	got, _ = resolve.Default(root, typeID, task, pd)
	assert.Equal(t, filepath.Join(root, typeID, pd), got)

	mkdir(t, root, typeID, task, pd)
	got, _ = resolve.Default(root, typeID, task, pd)
	assert.Equal(t, filepath.Join(root, typeID, task, pd), got)

	got, _ = resolve.Default(root, typeID, "", pd)
	assert.Equal(t, filepath.Join(root, typeID, pd), got)
}
