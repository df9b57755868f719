// Package inventory reports what is provisioned below a network root:
// runtime instances with the links attached to them, private and public
// player templates, and the timestamped log directories.
package inventory

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"instance-provision/src/fsutil"
	"instance-provision/src/layout"
)

// Entry is one discovered item. Fields that do not apply to a kind stay
// empty so the CLI can render one consolidated view.
type Entry struct {
	Kind      string `json:"kind"`           // instance|template|logs
	Type      string `json:"type,omitempty"` // templates and logs
	Task      string `json:"task,omitempty"`
	Owner     string `json:"owner,omitempty"` // identity or the public folder
	Name      string `json:"name"`
	Timestamp string `json:"timestamp,omitempty"` // logs only
	Path      string `json:"path"`
	Links     []Link `json:"links,omitempty"` // instances only
}

// Link is a symbolic link found directly inside an instance, or at
// world/playerdata.
type Link struct {
	Name    string `json:"name"`
	Target  string `json:"target"`
	Dangles bool   `json:"dangles,omitempty"`
}

// Kind filters.
const (
	KindAll       = "all"
	KindInstances = "instances"
	KindTemplates = "templates"
	KindLogs      = "logs"
)

// Kinds lists the accepted filters.
var Kinds = []string{KindAll, KindInstances, KindTemplates, KindLogs}

// Inventory lists a network laid out by layout.Layout.
type Inventory struct {
	Layout layout.Layout
}

// New checks that the network root is a directory.
func New(l layout.Layout) (*Inventory, error) {
	info, err := os.Stat(l.Root)
	if err != nil {
		return nil, oops.In("inventory").With("root", l.Root).Wrapf(err, "stat network root")
	}
	if !info.IsDir() {
		return nil, oops.In("inventory").With("root", l.Root).Errorf("network root is not a directory: %s", l.Root)
	}
	return &Inventory{Layout: l}, nil
}

// List returns the entries of kind, or of every kind for "" and "all",
// sorted by kind, type, task, owner, name and timestamp.
func (inv *Inventory) List(kind string) ([]Entry, error) {
	kinds := []string{KindInstances, KindTemplates, KindLogs}
	if kind != "" && kind != KindAll {
		kinds = []string{kind}
	}
	var entries []Entry
	for _, k := range kinds {
		var (
			e   []Entry
			err error
		)
		switch k {
		case KindInstances:
			e, err = inv.listInstances()
		case KindTemplates:
			e, err = inv.listTemplates()
		case KindLogs:
			e, err = inv.listLogs()
		default:
			return nil, oops.In("inventory").With("kind", kind).Errorf("unknown kind %q (want one of %s)", kind, strings.Join(Kinds, "|"))
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e...)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, c := entries[i], entries[j]
		if a.Kind != c.Kind {
			return a.Kind < c.Kind
		}
		if a.Type != c.Type {
			return a.Type < c.Type
		}
		if a.Task != c.Task {
			return a.Task < c.Task
		}
		if a.Owner != c.Owner {
			return a.Owner < c.Owner
		}
		if a.Name != c.Name {
			return a.Name < c.Name
		}
		return a.Timestamp < c.Timestamp
	})
	return entries, nil
}

func (inv *Inventory) listInstances() ([]Entry, error) {
	base := inv.Layout.InstancesRoot()
	names, err := readDirNames(base)
	if err != nil || names == nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(base, name)
		links, err := instanceLinks(dir)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Kind: "instance", Name: name, Path: dir, Links: links})
	}
	return entries, nil
}

func instanceLinks(dir string) ([]Link, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return nil, oops.In("inventory").With("dir", dir).Wrapf(err, "read instance")
	}
	var links []Link
	add := func(rel string) {
		full := filepath.Join(dir, rel)
		target, err := os.Readlink(full)
		if err != nil {
			return
		}
		links = append(links, Link{Name: filepath.ToSlash(rel), Target: target, Dangles: !fsutil.Exists(full)})
	}
	for _, c := range children {
		add(c.Name())
	}
	add(filepath.Join("world", layout.PlayerDataDir))
	return links, nil
}

// listTemplates walks templates/servers/<type>/<task>/<owner>/<name>,
// keeping owner folders that are an identity or the public folder.
func (inv *Inventory) listTemplates() ([]Entry, error) {
	base := inv.Layout.ServerTemplates()
	names := inv.Layout.Names
	reserved := map[string]bool{names.Basis: true, names.Default: true, names.PlayerDefault: true}

	types, err := readDirNames(base)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, typeID := range types {
		if reserved[typeID] {
			continue
		}
		tasks, err := readDirNames(filepath.Join(base, typeID))
		if err != nil {
			return nil, err
		}
		for _, task := range tasks {
			if reserved[task] {
				continue
			}
			owners, err := readDirNames(filepath.Join(base, typeID, task))
			if err != nil {
				return nil, err
			}
			for _, owner := range owners {
				if owner != names.Public && !isIdentity(owner) {
					continue
				}
				ownerDir := inv.Layout.OwnerDir(typeID, task, owner)
				instances, err := readDirNames(ownerDir)
				if err != nil {
					return nil, err
				}
				for _, name := range instances {
					entries = append(entries, Entry{
						Kind:  "template",
						Type:  typeID,
						Task:  task,
						Owner: owner,
						Name:  name,
						Path:  filepath.Join(ownerDir, name),
					})
				}
			}
		}
	}
	return entries, nil
}

// listLogs finds logs/<type>[/<task>]/<name>/<timestamp> directories. The
// task level is optional, so a directory counts as a log run when its name
// parses as a log timestamp.
func (inv *Inventory) listLogs() ([]Entry, error) {
	base := inv.Layout.LogsRoot()
	var entries []Entry
	var walk func(dir string, parts []string) error
	walk = func(dir string, parts []string) error {
		children, err := readDirNames(dir)
		if err != nil {
			return err
		}
		for _, c := range children {
			full := filepath.Join(dir, c)
			if _, err := time.Parse(layout.LogTimestampLayout, c); err == nil && len(parts) >= 2 {
				e := Entry{Kind: "logs", Type: parts[0], Name: parts[len(parts)-1], Timestamp: c, Path: full}
				if len(parts) == 3 {
					e.Task = parts[1]
				}
				entries = append(entries, e)
				continue
			}
			if len(parts) >= 3 {
				continue
			}
			if err := walk(full, append(append([]string(nil), parts...), c)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(base, nil); err != nil {
		return nil, err
	}
	return entries, nil
}

func isIdentity(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// readDirNames returns the sorted visible subdirectories of path. A
// missing path yields nil without error.
func readDirNames(path string) ([]string, error) {
	names, err := fsutil.ReadNames(path, true, true)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("inventory").With("path", path).Wrapf(err, "read directory")
	}
	return names, nil
}
