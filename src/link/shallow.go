package link

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"instance-provision/src/fsutil"
	"instance-provision/src/result"
)

// ShallowLink creates destDir/<entry> -> srcDir/<entry> for every
// immediate entry of srcDir. A link that already points at the right
// entry is kept, so re-running heals a partially linked directory. The
// first failing entry aborts with a Fail; links made before it stay.
func ShallowLink(srcDir, destDir string) result.Result {
	fields := logrus.Fields{"at": "link.ShallowLink", "src": srcDir, "dest": destDir}
	if !fsutil.IsDir(srcDir) {
		log.WithFields(fields).Warn("shallow_link_source_missing")
		return result.Failf(ReasonMissingLinkFiles, oops.In("link").With("src", srcDir).Errorf("no server files at %s", srcDir))
	}
	names, err := fsutil.ReadNames(srcDir, false, false)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("shallow_link_list_failed")
		return result.Failf(ReasonLinkServerFiles, err)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return result.Failf(ReasonLinkServerFiles, oops.In("link").With("dest", destDir).Wrapf(err, "create destination"))
	}
	for _, name := range names {
		target := filepath.Join(srcDir, name)
		linkPath := filepath.Join(destDir, name)
		if existing, err := os.Readlink(linkPath); err == nil && existing == target {
			continue
		}
		if err := fsutil.Symlink(target, linkPath); err != nil {
			log.WithFields(fields).WithField("entry", name).WithError(err).Error("shallow_link_failed")
			return result.Failf(ReasonLinkServerFiles, err)
		}
	}
	log.WithFields(fields).WithField("entries", len(names)).Debug("shallow_linked")
	return result.Ok(destDir)
}
