// Package materialize assembles an instance directory from layered
// server templates.
//
// Layers are merged onto the destination in a fixed order, each one
// overwriting files at the same relative path and never deleting files
// that a later layer does not provide:
//
//  1. the global basis layer (<root>/basis), if present
//  2. the type basis layer (<root>/<type>/basis), if the type exists
//  3. the layer picked by resolve.Template for (type, task, default)
//
// A failed copy leaves whatever earlier layers wrote in place. Callers
// treat the destination as unusable after a Fail; re-running on the same
// destination heals it.
package materialize

import (
	"context"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"instance-provision/src/fsutil"
	"instance-provision/src/layout"
	"instance-provision/src/resolve"
	"instance-provision/src/result"
	"instance-provision/src/util/progress"
)

var log = logrus.WithField("pkg", "materialize")

// ReasonNoTemplate is returned when any layer copy fails.
const ReasonNoTemplate = "no server template found"

// Materializer copies server template layers below Root.
type Materializer struct {
	// Root is the server template directory (templates/servers).
	Root     string
	Names    layout.Names
	Progress *progress.Tracker
}

// New returns a Materializer for the given server template root.
func New(root string, names layout.Names) *Materializer {
	return &Materializer{Root: root, Names: names}
}

// Layers returns the directories Materialize would copy, in order,
// skipping optional basis layers that do not exist.
func (m *Materializer) Layers(typeID, task string) []string {
	var layers []string
	if global := filepath.Join(m.Root, m.Names.Basis); fsutil.IsDir(global) {
		layers = append(layers, global)
	}
	typeDir := filepath.Join(m.Root, typeID)
	if typeID != "" && fsutil.Exists(typeDir) {
		if typeBasis := filepath.Join(typeDir, m.Names.Basis); fsutil.IsDir(typeBasis) {
			layers = append(layers, typeBasis)
		}
	}
	return append(layers, resolve.Template(m.Root, typeID, task, m.Names.Default))
}

// Materialize merges the basis, type and task layers onto dest.
func (m *Materializer) Materialize(ctx context.Context, dest, typeID, task string) result.Result {
	fields := logrus.Fields{
		"at":   "materialize.Materialize",
		"dest": dest,
		"type": typeID,
		"task": task,
	}
	for _, layer := range m.Layers(typeID, task) {
		if err := fsutil.CopyDir(ctx, layer, dest, fsutil.CopyOptions{Progress: m.Progress}); err != nil {
			log.WithFields(fields).WithField("layer", layer).WithError(err).Error("template_layer_copy_failed")
			return result.Failf(ReasonNoTemplate, err)
		}
		log.WithFields(fields).WithField("layer", layer).Debug("template_layer_copied")
	}
	log.WithFields(fields).Info("instance_materialized")
	return result.Ok(dest)
}

// CopyLayer copies the most specific directory named defaultDir for
// (type, task) onto dest, without basis layers. Template initialization
// uses it with the player default directory name.
func (m *Materializer) CopyLayer(ctx context.Context, dest, typeID, task, defaultDir string) result.Result {
	src, _ := resolve.Default(m.Root, typeID, task, defaultDir)
	if err := fsutil.CopyDir(ctx, src, dest, fsutil.CopyOptions{Progress: m.Progress}); err != nil {
		log.WithFields(logrus.Fields{
			"at":    "materialize.CopyLayer",
			"src":   src,
			"dest":  dest,
			"error": err.Error(),
		}).Error("template_layer_copy_failed")
		return result.Failf(ReasonNoTemplate, err)
	}
	return result.Ok(dest)
}
