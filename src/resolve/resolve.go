// Package resolve computes which template directory applies to an
// instance. Resolution walks a fixed fallback chain and always ends in a
// directory path; a missing optional tier never fails.
//
// For a template root R, type T, task K and default name D the chain is:
//
//	R/T missing                        -> R/D
//	K set and R/T/K exists             -> R/T/K/D if it exists, else R/T/K
//	R/T/D exists                       -> R/T/D
//	R/D exists                         -> R/D
//	otherwise                          -> R/T
//
// Asset layers skip every default-descent step: their leaf directory is
// already the content root.
package resolve

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"instance-provision/src/fsutil"
)

var log = logrus.WithField("pkg", "resolve")

// Resolve walks the fallback chain below root. When descend is false the
// default directory is never entered and the deepest existing of
// root, root/typeID, root/typeID/task is returned.
func Resolve(root, typeID, task, defaultDir string, descend bool) string {
	path := filepath.Clean(root)
	typeDir := filepath.Join(path, typeID)
	if typeID == "" || !fsutil.Exists(typeDir) {
		if !descend {
			return path
		}
		return filepath.Join(path, defaultDir)
	}
	path = typeDir

	if task != "" && fsutil.Exists(filepath.Join(path, task)) {
		path = filepath.Join(path, task)
		if descend && fsutil.Exists(filepath.Join(path, defaultDir)) {
			path = filepath.Join(path, defaultDir)
		}
	} else if descend {
		if fsutil.Exists(filepath.Join(path, defaultDir)) {
			path = filepath.Join(path, defaultDir)
		} else if global := filepath.Join(filepath.Clean(root), defaultDir); fsutil.Exists(global) {
			path = global
		}
	}

	log.WithFields(logrus.Fields{
		"at":      "resolve.Resolve",
		"root":    root,
		"type":    typeID,
		"task":    task,
		"descend": descend,
		"result":  path,
	}).Debug("resolved_template_layer")
	return path
}

// Template resolves the most specific template directory for a type and
// optional task, descending into defaultDir where present.
func Template(root, typeID, task, defaultDir string) string {
	return Resolve(root, typeID, task, defaultDir, true)
}

// AssetLayer resolves the directory whose children are shared assets
// (worlds) for a type and optional task.
func AssetLayer(root, typeID, task string) string {
	return Resolve(root, typeID, task, "", false)
}

// Default resolves like Template but only ever returns a directory named
// defaultDir: <root>/<type>/<task>/<d>, then <root>/<type>/<d>, then
// <root>/<d>. It never falls back to a bare type or task directory, which
// for owner-scoped trees would hold other owners' instances.
func Default(root, typeID, task, defaultDir string) (string, bool) {
	var candidates []string
	if typeID != "" {
		if task != "" {
			candidates = append(candidates, filepath.Join(root, typeID, task, defaultDir))
		}
		candidates = append(candidates, filepath.Join(root, typeID, defaultDir))
	}
	candidates = append(candidates, filepath.Join(root, defaultDir))
	for _, c := range candidates {
		if fsutil.IsDir(c) {
			return filepath.Clean(c), true
		}
	}
	return filepath.Join(filepath.Clean(root), defaultDir), false
}
