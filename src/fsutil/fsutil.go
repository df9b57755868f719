// Package fsutil holds the filesystem primitives shared by the template
// engine: existence checks, sorted directory listings and a merge-copy of
// directory trees.
package fsutil

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/oops"

	"instance-provision/src/util/progress"
)

// Exists reports whether path exists, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path is a directory, following symlinks.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Lexists reports whether path exists without following a final symlink,
// so dangling links count as present.
func Lexists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ReadNames returns the sorted names of the immediate entries of path.
// When dirsOnly is set, entries that are not directories (after following
// symlinks) are skipped. Hidden entries are skipped when skipHidden is set.
func ReadNames(path string, dirsOnly, skipHidden bool) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if skipHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if dirsOnly && !IsDir(filepath.Join(path, name)) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CopyOptions tunes CopyDir.
type CopyOptions struct {
	// Progress, if set, counts copied bytes and files.
	Progress *progress.Tracker
}

// CopyDir merges the tree at src into dst. Files present in both are
// overwritten by src; files only present in dst are left untouched.
// Symlinks inside src are followed and their targets copied. File modes
// and modification times are preserved. The context is checked between
// entries so very large trees can be abandoned.
func CopyDir(ctx context.Context, src, dst string, opts CopyOptions) error {
	info, err := os.Stat(src)
	if err != nil {
		return oops.In("fsutil").With("src", src).Wrapf(err, "source does not exist")
	}
	if !info.IsDir() {
		return oops.In("fsutil").With("src", src).Errorf("source is not a directory: %s", src)
	}
	if err := copyTree(ctx, src, dst, info.Mode().Perm(), opts); err != nil {
		return err
	}
	return nil
}

func copyTree(ctx context.Context, src, dst string, perm fs.FileMode, opts CopyOptions) error {
	if err := ctx.Err(); err != nil {
		return oops.In("fsutil").Wrapf(err, "copy interrupted")
	}
	if err := os.MkdirAll(dst, perm|0o700); err != nil {
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "create directory")
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return oops.In("fsutil").With("src", src).Wrapf(err, "read directory")
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return oops.In("fsutil").Wrapf(err, "copy interrupted")
		}
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		info, err := os.Stat(from)
		if err != nil {
			return oops.In("fsutil").With("path", from).Wrapf(err, "stat")
		}
		switch {
		case info.IsDir():
			if err := copyTree(ctx, from, to, info.Mode().Perm(), opts); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := CopyFile(from, to, info, opts.Progress); err != nil {
				return err
			}
		default:
			// sockets, devices and pipes have no template meaning
			continue
		}
	}
	return nil
}

// CopyFile copies a single regular file, replacing dst's contents.
// info is the already-stat'ed source.
func CopyFile(src, dst string, info fs.FileInfo, tracker *progress.Tracker) error {
	in, err := os.Open(src)
	if err != nil {
		return oops.In("fsutil").With("src", src).Wrapf(err, "open source file")
	}
	defer in.Close()

	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
		return oops.In("fsutil").With("dst", dst).Errorf("cannot overwrite directory %s with a file", dst)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "open destination file")
	}
	if _, err := io.Copy(out, tracker.Reader(in)); err != nil {
		out.Close()
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "copy file contents")
	}
	if err := out.Close(); err != nil {
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "close destination file")
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "set file mode")
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return oops.In("fsutil").With("dst", dst).Wrapf(err, "set file times")
	}
	tracker.FileDone()
	return nil
}

// Remove deletes path. Symlinks are removed themselves, never their
// targets; real directories are removed recursively. A missing path is
// not an error.
func Remove(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return oops.In("fsutil").With("path", path).Wrapf(err, "stat")
	}
	if info.Mode()&fs.ModeSymlink != 0 || !info.IsDir() {
		if err := os.Remove(path); err != nil {
			return oops.In("fsutil").With("path", path).Wrapf(err, "remove")
		}
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return oops.In("fsutil").With("path", path).Wrapf(err, "remove directory")
	}
	return nil
}

// Symlink creates link pointing at target after creating link's parent
// directories.
func Symlink(target, link string) error {
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return oops.In("fsutil").With("link", link).Wrapf(err, "create parent directories")
	}
	if err := os.Symlink(target, link); err != nil {
		return oops.In("fsutil").With("link", link).With("target", target).Wrapf(err, "create symlink")
	}
	return nil
}
