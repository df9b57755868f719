package provision

import (
	"context"

	"github.com/google/uuid"

	"instance-provision/src/events"
	"instance-provision/src/layout"
	"instance-provision/src/result"
)

// PublicPlayerServerNames lists the templates under the public
// pseudo-owner.
func (e *Engine) PublicPlayerServerNames(typeID, task string) []string {
	return e.store.ListInstances(typeID, task, e.layout.Names.Public)
}

// OwnerServerNames lists the private templates of owner.
func (e *Engine) OwnerServerNames(owner uuid.UUID, typeID, task string) []string {
	return e.store.ListInstances(typeID, task, e.store.OwnerFolder(typeID, task, owner))
}

// MemberServerNames maps owners to the templates member may use.
func (e *Engine) MemberServerNames(member uuid.UUID, typeID, task string) map[uuid.UUID][]string {
	return e.store.FindByMember(member, typeID, task)
}

// AllPlayerServerNames maps every owner to its private templates.
func (e *Engine) AllPlayerServerNames(typeID, task string) map[uuid.UUID][]string {
	return e.store.EnumerateByOwner(typeID, task)
}

// PlayerServerMembers returns the recorded members of a private template.
func (e *Engine) PlayerServerMembers(owner uuid.UUID, typeID, task, name string) []uuid.UUID {
	return e.store.ReadMembers(typeID, task, owner, name)
}

// PlayerServerOwner returns the owner recorded for a private template and
// whether a readable record exists.
func (e *Engine) PlayerServerOwner(owner uuid.UUID, typeID, task, name string) (uuid.UUID, bool) {
	return e.store.ReadOwner(typeID, task, owner, name)
}

// SetPlayerServerMembers replaces the member list of a private template.
func (e *Engine) SetPlayerServerMembers(ctx context.Context, owner uuid.UUID, typeID, task, name string, members []uuid.UUID) bool {
	start := e.now()
	ok := e.store.WriteMembers(typeID, task, owner, name, members)
	e.metrics.Observe("set_members", ok, e.now().Sub(start))
	if ok {
		e.publish(ctx, events.Event{
			Kind:     events.KindMembersChanged,
			Instance: name,
			Type:     typeID,
			Task:     task,
			Owner:    owner.String(),
			OK:       true,
			Path:     e.store.RecordPath(typeID, task, owner, name),
			At:       e.now(),
		})
	}
	return ok
}

// WorldNames lists the shared worlds available to a type and task.
func (e *Engine) WorldNames(typeID, task string) []string {
	return e.linker.ListAssetNames(typeID, task)
}

// SyncWorld links world into the running instance servers/<folder>,
// discarding any instance-local copy.
func (e *Engine) SyncWorld(ctx context.Context, folder, world, typeID, task string) result.Result {
	if err := layout.ValidateSegment(folder); err != nil {
		return result.Failf(ReasonInvalidSpec, err)
	}
	dir := e.layout.InstanceDir(folder)
	ev := events.Event{Kind: events.KindWorldLinked, Instance: folder, Type: typeID, Task: task}
	return e.run(ctx, "sync_world", ev, events.KindWorldLinked, "", []step{
		{name: "link_world", run: func() result.Result {
			return e.linker.LinkAsset(dir, world, typeID, task)
		}},
	})
}

// ExportWorld moves the instance-local world of servers/<folder> into
// templates/worlds/<exportPath> and links it back.
func (e *Engine) ExportWorld(ctx context.Context, folder, world, exportPath string) result.Result {
	if err := layout.ValidateSegment(folder); err != nil {
		return result.Failf(ReasonInvalidSpec, err)
	}
	dir := e.layout.InstanceDir(folder)
	ev := events.Event{Kind: events.KindWorldExported, Instance: folder}
	return e.run(ctx, "export_world", ev, events.KindWorldExported, "", []step{
		{name: "export_world", run: func() result.Result {
			return e.linker.ExportAsset(ctx, dir, world, exportPath)
		}},
	})
}
