package provision

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"instance-provision/src/events"
	"instance-provision/src/instance"
	"instance-provision/src/link"
	"instance-provision/src/result"
)

// CreateServer provisions a shared instance into servers/<folder>:
// template layers, then the asset policy, then rendering, then the
// optional player data and log links.
func (e *Engine) CreateServer(ctx context.Context, spec instance.Spec) result.Result {
	dir := e.layout.InstanceDir(spec.FolderName())
	ev := events.Event{Kind: events.KindInstanceCreated, Instance: spec.Name, Type: spec.TypeID, Task: spec.Task}
	if r := e.checkSpec(spec, false); !r.OK() {
		return e.run(ctx, "create_server", ev, events.KindInstanceFailed, dir, []step{{name: "validate", run: func() result.Result { return r }}})
	}

	steps := []step{
		{name: "materialize", run: func() result.Result {
			return e.materializer.Materialize(ctx, dir, spec.TypeID, spec.Task)
		}},
	}
	switch spec.Options.WorldCopy {
	case instance.CopyAssets:
		steps = append(steps, step{name: "copy_assets", run: func() result.Result {
			return e.linker.CopyAssets(ctx, dir, spec.TypeID, spec.Task)
		}})
	case instance.SyncAssets:
		steps = append(steps, step{name: "sync_assets", run: func() result.Result {
			return e.linker.SyncAssets(dir, spec.TypeID, spec.Task)
		}})
	}
	steps = append(steps, e.renderStep(ctx, dir, spec))
	if spec.Options.SyncPlayerData {
		steps = append(steps, step{name: "sync_player_data", run: func() result.Result {
			return e.linker.SyncPlayerData(dir, spec.TypeID, spec.Task)
		}})
	}
	if spec.Options.SyncLogs {
		steps = append(steps, e.logsStep(dir, spec))
	}
	return e.run(ctx, "create_server", ev, events.KindInstanceFailed, dir, steps)
}

// CreatePlayerServer provisions servers/<name> from the owner's private
// template templates/servers/<type>/<task>/<owner>/<folder>. The template
// entries are linked in first so the player's saved data is used in
// place; the shared layers are then merged on top.
func (e *Engine) CreatePlayerServer(ctx context.Context, owner uuid.UUID, spec instance.Spec) result.Result {
	return e.createOwned(ctx, e.store.OwnerFolder(spec.TypeID, spec.Task, owner), spec)
}

// CreatePublicPlayerServer is CreatePlayerServer for templates kept under
// the public pseudo-owner.
func (e *Engine) CreatePublicPlayerServer(ctx context.Context, spec instance.Spec) result.Result {
	return e.createOwned(ctx, e.layout.Names.Public, spec)
}

func (e *Engine) createOwned(ctx context.Context, ownerDir string, spec instance.Spec) result.Result {
	dir := e.layout.InstanceDir(spec.Name)
	ev := events.Event{Kind: events.KindInstanceCreated, Instance: spec.Name, Type: spec.TypeID, Task: spec.Task, Owner: ownerDir}
	if r := e.checkSpec(spec, true); !r.OK() {
		return e.run(ctx, "create_player_server", ev, events.KindInstanceFailed, dir, []step{{name: "validate", run: func() result.Result { return r }}})
	}
	src := e.store.TemplateDir(spec.TypeID, spec.Task, ownerDir, spec.FolderName())

	steps := []step{
		mkdirStep(dir, ReasonCreateDirectory),
		{name: "link_template", run: func() result.Result {
			return link.ShallowLink(src, dir)
		}},
		{name: "materialize", run: func() result.Result {
			return e.materializer.Materialize(ctx, dir, spec.TypeID, spec.Task)
		}},
		e.renderStep(ctx, dir, spec),
	}
	if spec.Options.SyncLogs {
		steps = append(steps, e.logsStep(dir, spec))
	}
	return e.run(ctx, "create_player_server", ev, events.KindInstanceFailed, dir, steps)
}

// InitPlayerServer creates a new private template entry for owner by
// copying the player default layer to
// templates/servers/<type>/<task>/<owner>/<name> and recording the owner.
func (e *Engine) InitPlayerServer(ctx context.Context, owner uuid.UUID, typeID, task, name string) result.Result {
	return e.initTemplate(ctx, e.store.OwnerFolder(typeID, task, owner), typeID, task, name, func(string) result.Result {
		if err := e.store.WriteOwner(typeID, task, owner, name); err != nil {
			return result.Failf(ReasonWriteOwner, err)
		}
		return result.Ok(e.store.RecordPath(typeID, task, owner, name))
	})
}

// InitPublicPlayerServer creates a template entry under the public
// pseudo-owner. Public templates carry no ownership record.
func (e *Engine) InitPublicPlayerServer(ctx context.Context, typeID, task, name string) result.Result {
	return e.initTemplate(ctx, e.layout.Names.Public, typeID, task, name, nil)
}

func (e *Engine) initTemplate(ctx context.Context, ownerDir, typeID, task, name string, record func(dir string) result.Result) result.Result {
	dest := e.store.TemplateDir(typeID, task, ownerDir, name)
	ev := events.Event{Kind: events.KindTemplateInitialized, Instance: name, Type: typeID, Task: task, Owner: ownerDir}
	spec := instance.Spec{Name: name, TypeID: typeID, Task: task}
	if r := e.checkSpec(spec, true); !r.OK() {
		return e.run(ctx, "init_player_server", ev, events.KindTemplateFailed, dest, []step{{name: "validate", run: func() result.Result { return r }}})
	}

	steps := []step{
		{name: "copy_player_default", run: func() result.Result {
			return e.materializer.CopyLayer(ctx, dest, typeID, task, e.layout.Names.PlayerDefault)
		}},
	}
	if record != nil {
		steps = append(steps, step{name: "write_owner", run: func() result.Result { return record(dest) }})
	}
	return e.run(ctx, "init_player_server", ev, events.KindTemplateFailed, dest, steps)
}

// checkSpec turns caller-contract violations into a Fail. Owner-scoped
// workflows additionally need a task, since templates live below it.
func (e *Engine) checkSpec(spec instance.Spec, needTask bool) result.Result {
	if err := spec.Validate(); err != nil {
		return result.Failf(ReasonInvalidSpec, err)
	}
	if needTask && spec.Task == "" {
		return result.Failf(ReasonInvalidSpec, oops.In("provision").With("instance", spec.Name).Errorf("task is required for player servers"))
	}
	return result.Ok("")
}

func (e *Engine) renderStep(ctx context.Context, dir string, spec instance.Spec) step {
	return step{name: "render", run: func() result.Result {
		for _, sub := range append([]string{""}, e.renderDirs...) {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
				return result.Failf(ReasonRender, oops.In("provision").With("dir", dir).Wrapf(err, "prepare render directories"))
			}
		}
		if err := e.renderer.Render(ctx, dir, spec); err != nil {
			return result.Failf(ReasonRender, err)
		}
		return result.Ok(dir)
	}}
}

func (e *Engine) logsStep(dir string, spec instance.Spec) step {
	return step{name: "sync_logs", run: func() result.Result {
		return e.linker.SyncLogs(dir, spec.Name, spec.TypeID, spec.Task)
	}}
}
