// Package digest fingerprints directory trees so two instance or template
// directories can be compared for content equality.
package digest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/oops"
	"github.com/zeebo/blake3"
)

// treeContext separates tree digests from plain BLAKE3 file hashes.
const treeContext = "instance-provision 2024 directory tree v1"

// Digest is a 32-byte BLAKE3 tree digest.
type Digest [32]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Stats summarizes what a digest covered.
type Stats struct {
	Files int64
	Dirs  int64
	Bytes int64
}

// Tree digests every directory and regular file below root. Entries are
// visited in sorted order and identified by their slash-separated relative
// path; file permission bits and contents are included, timestamps and
// directory modes are not. Symlinks are followed, so a linked asset and a
// copied one digest the same.
func Tree(ctx context.Context, root string) (Digest, Stats, error) {
	var st Stats
	h := blake3.NewDeriveKey(treeContext)
	info, err := os.Stat(root)
	if err != nil {
		return Digest{}, st, oops.In("digest").With("root", root).Wrapf(err, "stat tree root")
	}
	if !info.IsDir() {
		return Digest{}, st, oops.In("digest").With("root", root).Errorf("not a directory: %s", root)
	}
	if err := walk(ctx, root, "", h, &st); err != nil {
		return Digest{}, st, err
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, st, nil
}

func walk(ctx context.Context, dir, rel string, h *blake3.Hasher, st *Stats) error {
	if err := ctx.Err(); err != nil {
		return oops.In("digest").Wrapf(err, "digest interrupted")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return oops.In("digest").With("dir", dir).Wrapf(err, "read directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		full := filepath.Join(dir, name)
		relName := name
		if rel != "" {
			relName = rel + "/" + name
		}
		info, err := os.Stat(full)
		if err != nil {
			return oops.In("digest").With("path", full).Wrapf(err, "stat")
		}
		switch {
		case info.IsDir():
			st.Dirs++
			fmt.Fprintf(h, "d %s\n", relName)
			if err := walk(ctx, full, relName, h, st); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			sum, err := File(full)
			if err != nil {
				return err
			}
			st.Files++
			st.Bytes += info.Size()
			fmt.Fprintf(h, "f %s %o %d %x\n", relName, info.Mode().Perm(), info.Size(), sum)
		}
	}
	return nil
}

// File returns the plain BLAKE3-256 hash of a file's contents.
func File(path string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, oops.In("digest").With("path", path).Wrapf(err, "open file")
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, oops.In("digest").With("path", path).Wrapf(err, "read file")
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
