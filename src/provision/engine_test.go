package provision_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instance-provision/src/digest"
	"instance-provision/src/events"
	"instance-provision/src/fsutil"
	"instance-provision/src/instance"
	"instance-provision/src/layout"
	"instance-provision/src/link"
	"instance-provision/src/materialize"
	"instance-provision/src/metrics"
	"instance-provision/src/provision"
	"instance-provision/src/render"
	"instance-provision/src/result"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

const stamp = "2024-03-09_14-05-07"

type fixture struct {
	root     string
	layout   layout.Layout
	engine   *provision.Engine
	events   *events.Recorder
	metrics  *metrics.Metrics
	rendered []string
	renderFn func(dir string) error
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func readLink(t *testing.T, path string) string {
	t.Helper()
	target, err := os.Readlink(path)
	require.NoError(t, err)
	return target
}

// newFixture builds a network with one survival type: a global basis, a
// type basis, a task default, two worlds and a player default layer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	l, err := layout.New(root, layout.DefaultNames())
	require.NoError(t, err)

	servers := l.ServerTemplates()
	writeFile(t, filepath.Join(servers, "basis", "eula.txt"), "eula=true")
	writeFile(t, filepath.Join(servers, "survival", "basis", "a.txt"), "a")
	writeFile(t, filepath.Join(servers, "survival", "task1", "default", "b.txt"), "b")
	writeFile(t, filepath.Join(servers, "survival", "player_default", "server.properties"), "motd=home")

	worlds := l.WorldTemplates()
	writeFile(t, filepath.Join(worlds, "survival", "task1", "world", "level.dat"), "overworld")
	writeFile(t, filepath.Join(worlds, "survival", "task1", "world_nether", "level.dat"), "nether")

	f := &fixture{root: root, layout: l, events: &events.Recorder{}, metrics: metrics.New()}
	f.engine, err = provision.New(provision.Config{
		Layout: l,
		Renderer: render.Func(func(_ context.Context, dir string, _ instance.Spec) error {
			f.rendered = append(f.rendered, dir)
			if f.renderFn != nil {
				return f.renderFn(dir)
			}
			return nil
		}),
		Events:  f.events,
		Metrics: f.metrics,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return f
}

func spec(name string, copyType instance.CopyType) instance.Spec {
	s := instance.New(name, "survival", 25565)
	s.Task = "task1"
	s.Options.WorldCopy = copyType
	return s
}

func TestNew_RequiresLayout(t *testing.T) {
	_, err := provision.New(provision.Config{})
	require.Error(t, err)
}

func TestCreateServer_SyncWorlds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.engine.CreateServer(ctx, spec("lobby", instance.SyncAssets))
	require.True(t, r.OK(), result.Reason(r))

	dir := f.layout.InstanceDir("lobby")
	assert.Equal(t, dir, result.Path(r))
	assert.Equal(t, "eula=true", readFile(t, filepath.Join(dir, "eula.txt")))
	assert.Equal(t, "a", readFile(t, filepath.Join(dir, "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dir, "b.txt")))

	assert.Equal(t, filepath.Join(f.layout.WorldTemplates(), "survival", "task1", "world"), readLink(t, filepath.Join(dir, "world")))
	assert.Equal(t, filepath.Join(f.layout.WorldTemplates(), "survival", "task1", "world_nether"), readLink(t, filepath.Join(dir, "world_nether")))

	assert.Equal(t, filepath.Join(f.layout.LogsRoot(), "survival", "task1", "lobby", stamp), readLink(t, filepath.Join(dir, "logs")))
	assert.True(t, fsutil.IsDir(filepath.Join(dir, "config")))
	assert.True(t, fsutil.IsDir(filepath.Join(dir, "plugins", "channel")))

	assert.Equal(t, []string{dir}, f.rendered)
	assert.Equal(t, []string{events.KindInstanceCreated}, f.events.Kinds())
	ev := f.events.Events()[0]
	assert.True(t, ev.OK)
	assert.Equal(t, "lobby", ev.Instance)
	assert.Equal(t, fixedNow, ev.At)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations().WithLabelValues("create_server", metrics.OutcomeSuccess)))
}

func TestCreateServer_CopyWorlds(t *testing.T) {
	f := newFixture(t)
	r := f.engine.CreateServer(context.Background(), spec("arena", instance.CopyAssets))
	require.True(t, r.OK(), result.Reason(r))

	world := filepath.Join(f.layout.InstanceDir("arena"), "world")
	info, err := os.Lstat(world)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "copied worlds are real directories")
	assert.Equal(t, "overworld", readFile(t, filepath.Join(world, "level.dat")))
}

func TestCreateServer_NoWorldsNoLogs(t *testing.T) {
	f := newFixture(t)
	s := spec("plain", instance.CopyNone)
	s.Options.SyncLogs = false

	r := f.engine.CreateServer(context.Background(), s)
	require.True(t, r.OK(), result.Reason(r))

	dir := f.layout.InstanceDir("plain")
	assert.False(t, fsutil.Lexists(filepath.Join(dir, "world")))
	assert.False(t, fsutil.Lexists(filepath.Join(dir, "logs")))
}

func TestCreateServer_UsesFolderName(t *testing.T) {
	f := newFixture(t)
	s := spec("lobby", instance.CopyNone)
	s.Folder = "lobby-blue"

	r := f.engine.CreateServer(context.Background(), s)
	require.True(t, r.OK(), result.Reason(r))
	assert.Equal(t, f.layout.InstanceDir("lobby-blue"), result.Path(r))
	assert.Equal(t, "b", readFile(t, filepath.Join(f.layout.InstanceDir("lobby-blue"), "b.txt")))
}

func TestCreateServer_PlayerData(t *testing.T) {
	f := newFixture(t)
	s := spec("lobby", instance.CopyAssets)
	s.Options.SyncPlayerData = true

	r := f.engine.CreateServer(context.Background(), s)
	require.True(t, r.OK(), result.Reason(r))

	got := readLink(t, filepath.Join(f.layout.InstanceDir("lobby"), "world", "playerdata"))
	assert.Equal(t, filepath.Join(f.layout.PlayerTemplates(), "default", "playerdata"), got)
}

func TestCreateServer_MissingTemplate(t *testing.T) {
	root := t.TempDir()
	l, err := layout.New(root, layout.DefaultNames())
	require.NoError(t, err)
	rec := &events.Recorder{}
	e, err := provision.New(provision.Config{Layout: l, Events: rec})
	require.NoError(t, err)

	r := e.CreateServer(context.Background(), spec("lobby", instance.CopyNone))
	require.False(t, r.OK())
	assert.Equal(t, materialize.ReasonNoTemplate, result.Reason(r))
	assert.Equal(t, []string{events.KindInstanceFailed}, rec.Kinds())
	assert.Equal(t, materialize.ReasonNoTemplate, rec.Events()[0].Reason)
}

func TestCreateServer_RenderFailureStopsWorkflow(t *testing.T) {
	f := newFixture(t)
	f.renderFn = func(string) error { return errors.New("bad template") }

	r := f.engine.CreateServer(context.Background(), spec("lobby", instance.SyncAssets))
	require.False(t, r.OK())
	assert.Equal(t, provision.ReasonRender, result.Reason(r))

	dir := f.layout.InstanceDir("lobby")
	assert.True(t, fsutil.Exists(filepath.Join(dir, "a.txt")), "earlier steps are not rolled back")
	assert.False(t, fsutil.Lexists(filepath.Join(dir, "logs")), "later steps never ran")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Operations().WithLabelValues("create_server", metrics.OutcomeFail)))
}

func TestCreateServer_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	r := f.engine.CreateServer(context.Background(), spec("../escape", instance.CopyNone))
	require.False(t, r.OK())
	assert.Equal(t, provision.ReasonInvalidSpec, result.Reason(r))
	assert.Empty(t, f.rendered)
}

func TestCreateServer_RerunHeals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := spec("lobby", instance.SyncAssets)

	require.True(t, f.engine.CreateServer(ctx, s).OK())
	require.NoError(t, os.Remove(filepath.Join(f.layout.InstanceDir("lobby"), "b.txt")))
	require.NoError(t, os.Remove(filepath.Join(f.layout.InstanceDir("lobby"), "world")))

	r := f.engine.CreateServer(ctx, s)
	require.True(t, r.OK(), result.Reason(r))
	assert.Equal(t, "b", readFile(t, filepath.Join(f.layout.InstanceDir("lobby"), "b.txt")))
	assert.Equal(t, "overworld", readFile(t, filepath.Join(f.layout.InstanceDir("lobby"), "world", "level.dat")))
}

func TestCreateServer_PublishFailureKeepsResult(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("nats down")

	r := f.engine.CreateServer(context.Background(), spec("lobby", instance.CopyNone))
	assert.True(t, r.OK(), result.Reason(r))
}

func TestInitAndCreatePlayerServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	r := f.engine.InitPlayerServer(ctx, owner, "survival", "task1", "home")
	require.True(t, r.OK(), result.Reason(r))
	tmpl := filepath.Join(f.layout.OwnerDir("survival", "task1", owner.String()), "home")
	assert.Equal(t, tmpl, result.Path(r))
	assert.Equal(t, "motd=home", readFile(t, filepath.Join(tmpl, "server.properties")))

	got, ok := f.engine.PlayerServerOwner(owner, "survival", "task1", "home")
	require.True(t, ok)
	assert.Equal(t, owner, got)
	assert.Equal(t, []string{"home"}, f.engine.OwnerServerNames(owner, "survival", "task1"))
	assert.Equal(t, map[uuid.UUID][]string{owner: {"home"}}, f.engine.AllPlayerServerNames("survival", "task1"))

	s := spec("home-1", instance.CopyNone)
	s.Folder = "home"
	r = f.engine.CreatePlayerServer(ctx, owner, s)
	require.True(t, r.OK(), result.Reason(r))

	dir := f.layout.InstanceDir("home-1")
	assert.Equal(t, dir, result.Path(r))
	assert.Equal(t, filepath.Join(tmpl, "server.properties"), readLink(t, filepath.Join(dir, "server.properties")))
	assert.Equal(t, "a", readFile(t, filepath.Join(dir, "a.txt")), "shared layers still apply")
	assert.Equal(t, filepath.Join(f.layout.LogsRoot(), "survival", "task1", "home-1", stamp), readLink(t, filepath.Join(dir, "logs")))

	assert.Equal(t, []string{events.KindTemplateInitialized, events.KindInstanceCreated}, f.events.Kinds())
	assert.Equal(t, owner.String(), f.events.Events()[1].Owner)
}

func TestCreatePlayerServer_MissingTemplate(t *testing.T) {
	f := newFixture(t)
	r := f.engine.CreatePlayerServer(context.Background(), uuid.New(), spec("ghost", instance.CopyNone))
	require.False(t, r.OK())
	assert.Equal(t, link.ReasonMissingLinkFiles, result.Reason(r))
	assert.Empty(t, f.rendered)
}

func TestCreatePlayerServer_RequiresTask(t *testing.T) {
	f := newFixture(t)
	s := spec("home-1", instance.CopyNone)
	s.Task = ""
	r := f.engine.CreatePlayerServer(context.Background(), uuid.New(), s)
	require.False(t, r.OK())
	assert.Equal(t, provision.ReasonInvalidSpec, result.Reason(r))
}

func TestInitPlayerServer_NoPlayerDefault(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.RemoveAll(filepath.Join(f.layout.ServerTemplates(), "survival", "player_default")))

	r := f.engine.InitPlayerServer(context.Background(), uuid.New(), "survival", "task1", "home")
	require.False(t, r.OK())
	assert.Equal(t, materialize.ReasonNoTemplate, result.Reason(r))
	assert.Equal(t, []string{events.KindTemplateFailed}, f.events.Kinds())
}

func TestInitPlayerServer_SecondTemplateStaysIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.True(t, f.engine.InitPlayerServer(ctx, a, "survival", "task1", "home").OK())
	r := f.engine.InitPlayerServer(ctx, b, "survival", "task1", "home")
	require.True(t, r.OK(), result.Reason(r))

	names, err := fsutil.ReadNames(result.Path(r), false, false)
	require.NoError(t, err)
	assert.Equal(t, []string{layout.OwnershipFileName, "server.properties"}, names)
}

func TestInitPublicPlayerServer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.engine.InitPublicPlayerServer(ctx, "survival", "task1", "spawn")
	require.True(t, r.OK(), result.Reason(r))
	assert.False(t, fsutil.Exists(filepath.Join(result.Path(r), layout.OwnershipFileName)), "public templates carry no record")

	assert.Equal(t, []string{"spawn"}, f.engine.PublicPlayerServerNames("survival", "task1"))
	assert.Empty(t, f.engine.AllPlayerServerNames("survival", "task1"), "the public folder is not an owner")

	s := spec("spawn-1", instance.CopyNone)
	s.Folder = "spawn"
	r = f.engine.CreatePublicPlayerServer(ctx, s)
	require.True(t, r.OK(), result.Reason(r))
	assert.Equal(t, "motd=home", readFile(t, filepath.Join(f.layout.InstanceDir("spawn-1"), "server.properties")))
}

func TestPlayerServerMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, m1, m2, stranger := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	require.True(t, f.engine.InitPlayerServer(ctx, owner, "survival", "task1", "home").OK())

	assert.Empty(t, f.engine.PlayerServerMembers(owner, "survival", "task1", "home"))
	require.True(t, f.engine.SetPlayerServerMembers(ctx, owner, "survival", "task1", "home", []uuid.UUID{m1, m2}))

	assert.ElementsMatch(t, []uuid.UUID{m1, m2}, f.engine.PlayerServerMembers(owner, "survival", "task1", "home"))
	assert.Equal(t, map[uuid.UUID][]string{owner: {"home"}}, f.engine.MemberServerNames(m2, "survival", "task1"))
	assert.Empty(t, f.engine.MemberServerNames(stranger, "survival", "task1"))

	got, ok := f.engine.PlayerServerOwner(owner, "survival", "task1", "home")
	require.True(t, ok, "member updates keep the owner")
	assert.Equal(t, owner, got)
	assert.Contains(t, f.events.Kinds(), events.KindMembersChanged)

	assert.False(t, f.engine.SetPlayerServerMembers(ctx, owner, "survival", "task1", "missing", []uuid.UUID{m1}))
}

func TestWorlds_SyncExportRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assert.Equal(t, []string{"world", "world_nether"}, f.engine.WorldNames("survival", "task1"))

	require.True(t, f.engine.CreateServer(ctx, spec("build", instance.CopyAssets)).OK())
	dir := f.layout.InstanceDir("build")
	writeFile(t, filepath.Join(dir, "world", "region", "r.0.0.mca"), "edited")
	before, _, err := digest.Tree(ctx, filepath.Join(dir, "world"))
	require.NoError(t, err)

	r := f.engine.ExportWorld(ctx, "build", "world", filepath.Join("survival", "task2"))
	require.True(t, r.OK(), result.Reason(r))
	exported := filepath.Join(f.layout.WorldTemplates(), "survival", "task2", "world")
	assert.Equal(t, exported, result.Path(r))
	assert.Equal(t, exported, readLink(t, filepath.Join(dir, "world")))

	r = f.engine.SyncWorld(ctx, "build", "world", "survival", "task2")
	require.True(t, r.OK(), result.Reason(r))
	after, _, err := digest.Tree(ctx, filepath.Join(dir, "world"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.Equal(t, []string{
		events.KindInstanceCreated, events.KindWorldExported, events.KindWorldLinked,
	}, f.events.Kinds())
}

func TestSyncWorld_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.engine.SyncWorld(ctx, "lobby", "missing", "survival", "task1")
	require.False(t, r.OK())
	assert.Equal(t, link.ReasonAssetMissing, result.Reason(r))

	r = f.engine.SyncWorld(ctx, "..", "world", "survival", "task1")
	require.False(t, r.OK())
	assert.Equal(t, provision.ReasonInvalidSpec, result.Reason(r))

	r = f.engine.ExportWorld(ctx, "lobby", "world", "../../outside")
	require.False(t, r.OK())
	assert.Equal(t, link.ReasonInvalidExport, result.Reason(r))
}

func TestResolveTemplate(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, filepath.Join(f.layout.ServerTemplates(), "survival", "task1", "default"), f.engine.ResolveTemplate("survival", "task1"))
	assert.Equal(t, filepath.Join(f.layout.ServerTemplates(), "default"), f.engine.ResolveTemplate("creative", ""))
}
