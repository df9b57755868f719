// Package link attaches shared content to instances by symbolic link
// instead of copying it: whole shared asset trees (worlds), an owner's
// private template content, the player data directory and timestamped
// log directories.
package link

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"instance-provision/src/fsutil"
	"instance-provision/src/layout"
	"instance-provision/src/resolve"
	"instance-provision/src/result"
	"instance-provision/src/util/progress"
)

var log = logrus.WithField("pkg", "link")

// removeAsset deletes an existing asset destination.
var removeAsset = fsutil.Remove

// Failure reasons. Each failure site has its own reason so callers can
// tell them apart.
const (
	ReasonAssetMissing     = "world template not found"
	ReasonDeleteAsset      = "failed to delete old world file"
	ReasonCreateAssetLink  = "failed to create world link"
	ReasonExportAsset      = "failed to export world"
	ReasonInvalidExport    = "invalid world export path"
	ReasonCopyAssets       = "failed to copy worlds"
	ReasonSyncAssets       = "failed to sync worlds"
	ReasonSyncLogs         = "failed to sync logs"
	ReasonSyncPlayerData   = "failed to sync player data"
	ReasonLinkServerFiles  = "failed to link server files"
	ReasonMissingLinkFiles = "server files not found"
)

// Linker creates and replaces links below a network layout.
type Linker struct {
	Layout layout.Layout
	// Now stamps log directories; defaults to time.Now.
	Now      func() time.Time
	Progress *progress.Tracker
}

// New returns a Linker for l.
func New(l layout.Layout) *Linker {
	return &Linker{Layout: l, Now: time.Now}
}

func (k *Linker) now() time.Time {
	if k.Now == nil {
		return time.Now()
	}
	return k.Now()
}

// AssetSource returns the template directory of a named asset for a type
// and optional task.
func (k *Linker) AssetSource(assetName, typeID, task string) string {
	return filepath.Join(resolve.AssetLayer(k.Layout.WorldTemplates(), typeID, task), assetName)
}

// LinkAsset points instanceDir/assetName at the asset's template
// directory. Whatever is at the destination is deleted first, including a
// real directory holding instance-local data: linking means resetting the
// asset to the shared template.
func (k *Linker) LinkAsset(instanceDir, assetName, typeID, task string) result.Result {
	fields := logrus.Fields{
		"at":       "link.LinkAsset",
		"instance": instanceDir,
		"asset":    assetName,
		"type":     typeID,
		"task":     task,
	}
	if err := layout.ValidateSegment(assetName); err != nil {
		return result.Failf(ReasonCreateAssetLink, oops.In("link").With("asset", assetName).Wrapf(err, "invalid asset name"))
	}
	src := k.AssetSource(assetName, typeID, task)
	if !fsutil.IsDir(src) {
		log.WithFields(fields).WithField("src", src).Warn("asset_template_missing")
		return result.Failf(ReasonAssetMissing, oops.In("link").With("src", src).Errorf("no asset template at %s", src))
	}
	dest := filepath.Join(instanceDir, assetName)

	if fsutil.Lexists(dest) {
		if err := removeAsset(dest); err != nil {
			log.WithFields(fields).WithError(err).Error("asset_delete_failed")
			return result.Failf(ReasonDeleteAsset, err)
		}
	}
	if err := fsutil.Symlink(src, dest); err != nil {
		log.WithFields(fields).WithError(err).Error("asset_link_failed")
		return result.Failf(ReasonCreateAssetLink, err)
	}
	log.WithFields(fields).WithField("src", src).Debug("asset_linked")
	return result.Ok(dest)
}

// ExportAsset turns an instance-local asset into a shared template entry.
// The tree at instanceDir/assetName is copied to
// templates/worlds/<exportPath>/<assetName>, the local copy is deleted and
// replaced by a link to the exported location.
//
// The steps run copy, delete, link. A crash after the copy leaves the data
// in both places; a crash between delete and link leaves the instance
// without the asset until ExportAsset or LinkAsset is run again.
func (k *Linker) ExportAsset(ctx context.Context, instanceDir, assetName, exportPath string) result.Result {
	fields := logrus.Fields{
		"at":       "link.ExportAsset",
		"instance": instanceDir,
		"asset":    assetName,
		"export":   exportPath,
	}
	if err := layout.ValidateSegment(assetName); err != nil {
		return result.Failf(ReasonInvalidExport, oops.In("link").With("asset", assetName).Wrapf(err, "invalid asset name"))
	}
	rel, err := cleanRelative(exportPath)
	if err != nil {
		return result.Failf(ReasonInvalidExport, err)
	}
	src := filepath.Join(instanceDir, assetName)
	dest := filepath.Join(k.Layout.WorldTemplates(), rel, assetName)

	realSrc, realDest := realPath(src), realPath(dest)
	if realSrc == realDest {
		if target, err := os.Readlink(src); err == nil && realPath(target) == realDest {
			log.WithFields(fields).WithField("dest", dest).Debug("asset_already_exported")
			return result.Ok(dest)
		}
	}
	if within(realDest, realSrc) || within(realSrc, realDest) {
		log.WithFields(fields).WithField("dest", dest).Error("asset_export_overlaps")
		return result.Failf(ReasonExportAsset, oops.In("link").With("src", realSrc).With("dest", realDest).Errorf("export source and destination overlap: %s and %s", realSrc, realDest))
	}

	if err := fsutil.CopyDir(ctx, src, dest, fsutil.CopyOptions{Progress: k.Progress}); err != nil {
		log.WithFields(fields).WithError(err).Error("asset_export_copy_failed")
		return result.Failf(ReasonExportAsset, err)
	}
	if err := fsutil.Remove(src); err != nil {
		log.WithFields(fields).WithError(err).Error("asset_export_delete_failed")
		return result.Failf(ReasonExportAsset, err)
	}
	if err := fsutil.Symlink(dest, src); err != nil {
		log.WithFields(fields).WithError(err).Error("asset_export_link_failed")
		return result.Failf(ReasonCreateAssetLink, err)
	}
	log.WithFields(fields).WithField("dest", dest).Info("asset_exported")
	return result.Ok(dest)
}

// cleanRelative rejects export paths that are absolute or climb out of the
// world template root. An empty path exports directly below the root.
func cleanRelative(p string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(p)))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", oops.In("link").With("path", p).Errorf("export path %q must stay inside the world templates", p)
	}
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

// realPath resolves the symlinks of the longest existing prefix of p and
// appends the rest unchanged.
func realPath(p string) string {
	p = filepath.Clean(p)
	var rest []string
	for {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(append([]string{p}, rest...)...)
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

// within reports whether p is parent itself or below it.
func within(p, parent string) bool {
	rel, err := filepath.Rel(parent, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ListAssetNames lists the assets available to a type and optional task.
// A missing or empty layer yields an empty list.
func (k *Linker) ListAssetNames(typeID, task string) []string {
	layer := resolve.AssetLayer(k.Layout.WorldTemplates(), typeID, task)
	names, err := fsutil.ReadNames(layer, false, true)
	if err != nil {
		log.WithFields(logrus.Fields{
			"at":    "link.ListAssetNames",
			"layer": layer,
			"error": err.Error(),
		}).Debug("asset_layer_unreadable")
		return []string{}
	}
	return names
}

// CopyAssets copies the asset layer of the type, or of its task when one
// exists, into instanceDir. The copies belong to the instance from then
// on. A type without worlds fails.
func (k *Linker) CopyAssets(ctx context.Context, instanceDir, typeID, task string) result.Result {
	root := k.Layout.WorldTemplates()
	layer := resolve.AssetLayer(root, typeID, task)
	if typeID == "" || filepath.Clean(layer) == filepath.Clean(root) {
		log.WithFields(logrus.Fields{
			"at":       "link.CopyAssets",
			"type":     typeID,
			"instance": instanceDir,
		}).Warn("asset_layer_missing")
		return result.Failf(ReasonCopyAssets, oops.In("link").With("type", typeID).Errorf("no worlds for type %q below %s", typeID, root))
	}
	if err := fsutil.CopyDir(ctx, layer, instanceDir, fsutil.CopyOptions{Progress: k.Progress}); err != nil {
		log.WithFields(logrus.Fields{
			"at":       "link.CopyAssets",
			"layer":    layer,
			"instance": instanceDir,
			"error":    err.Error(),
		}).Error("asset_copy_failed")
		return result.Failf(ReasonCopyAssets, err)
	}
	return result.Ok(instanceDir)
}

// SyncAssets links every listed asset into instanceDir, stopping at the
// first failure.
func (k *Linker) SyncAssets(instanceDir, typeID, task string) result.Result {
	for _, name := range k.ListAssetNames(typeID, task) {
		if r := k.LinkAsset(instanceDir, name, typeID, task); !r.OK() {
			return result.Failf(ReasonSyncAssets, result.Err(r))
		}
	}
	return result.Ok(instanceDir)
}

// SyncLogs creates logs/<type>[/<task>]/<name>/<timestamp> and replaces
// instanceDir/logs with a link to it.
func (k *Linker) SyncLogs(instanceDir, name, typeID, task string) result.Result {
	src := filepath.Join(k.Layout.LogsRoot(), typeID)
	if task != "" {
		src = filepath.Join(src, task)
	}
	src = filepath.Join(src, name, k.now().Format(layout.LogTimestampLayout))
	dest := filepath.Join(instanceDir, layout.LogsDir)

	if r := k.replaceWithLink(src, dest, true); !r.OK() {
		return result.Failf(ReasonSyncLogs, result.Err(r))
	}
	return result.Ok(src)
}

// SyncPlayerData links instanceDir/world/playerdata to the player data
// directory of the resolved player template.
func (k *Linker) SyncPlayerData(instanceDir, typeID, task string) result.Result {
	src := filepath.Join(resolve.Template(k.Layout.PlayerTemplates(), typeID, task, k.Layout.Names.Default), layout.PlayerDataDir)
	dest := filepath.Join(instanceDir, "world", layout.PlayerDataDir)
	if r := k.replaceWithLink(src, dest, false); !r.OK() {
		return result.Failf(ReasonSyncPlayerData, result.Err(r))
	}
	return result.Ok(dest)
}

func (k *Linker) replaceWithLink(src, dest string, createSrc bool) result.Result {
	fields := logrus.Fields{"at": "link.replaceWithLink", "src": src, "dest": dest}
	if createSrc {
		if err := mkdirAll(src); err != nil {
			log.WithFields(fields).WithError(err).Error("link_source_create_failed")
			return result.Failf("create link source", err)
		}
	}
	if fsutil.Lexists(dest) {
		if err := fsutil.Remove(dest); err != nil {
			log.WithFields(fields).WithError(err).Error("link_destination_delete_failed")
			return result.Failf("delete link destination", err)
		}
	}
	if err := fsutil.Symlink(src, dest); err != nil {
		log.WithFields(fields).WithError(err).Error("link_create_failed")
		return result.Failf("create link", err)
	}
	log.WithFields(fields).Debug("link_replaced")
	return result.Ok(dest)
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return oops.In("link").With("dir", dir).Wrapf(err, "create directory")
	}
	return nil
}
