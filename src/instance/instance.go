// Package instance defines the description of a provisioned instance as
// handed to the engine by its caller.
package instance

import (
	"strings"

	"github.com/samber/oops"

	"instance-provision/src/layout"
)

// CopyType selects how shared assets (worlds) reach a public instance.
type CopyType int

const (
	// CopyNone leaves assets out of the instance.
	CopyNone CopyType = iota
	// CopyAssets duplicates the asset tree into the instance; the copy is
	// private to the instance afterwards.
	CopyAssets
	// SyncAssets links every asset back to the shared template tree.
	SyncAssets
)

func (c CopyType) String() string {
	switch c {
	case CopyAssets:
		return "copy"
	case SyncAssets:
		return "sync"
	default:
		return "none"
	}
}

// ParseCopyType accepts none, copy or sync (case-insensitive).
func ParseCopyType(s string) (CopyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CopyNone, nil
	case "copy":
		return CopyAssets, nil
	case "sync":
		return SyncAssets, nil
	}
	return CopyNone, oops.In("instance").With("copy_type", s).Errorf("unknown world copy type %q (want none|copy|sync)", s)
}

// Options are per-call provisioning switches.
type Options struct {
	WorldCopy      CopyType
	SyncPlayerData bool
	SyncLogs       bool
}

// DefaultOptions returns the options used when a caller sets none:
// no world handling, no player data link, logs linked.
func DefaultOptions() Options {
	return Options{WorldCopy: CopyNone, SyncLogs: true}
}

// Spec identifies an instance to create. Name and TypeID are its identity;
// the remaining fields shape where and how it is provisioned. Port and
// Params are not interpreted by the engine and only reach the renderer.
type Spec struct {
	Name   string `yaml:"name" json:"name"`
	TypeID string `yaml:"type" json:"type"`
	// Task is optional; empty means no task.
	Task string `yaml:"task,omitempty" json:"task,omitempty"`
	// Folder is the runtime folder name; empty means Name.
	Folder string            `yaml:"folder,omitempty" json:"folder,omitempty"`
	Port   int               `yaml:"port" json:"port"`
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`

	Options Options `yaml:"-" json:"-"`
}

// New returns a Spec with default options.
func New(name, typeID string, port int) Spec {
	return Spec{Name: name, TypeID: typeID, Port: port, Options: DefaultOptions()}
}

// FolderName returns the runtime folder of the instance.
func (s Spec) FolderName() string {
	if s.Folder != "" {
		return s.Folder
	}
	return s.Name
}

// Validate checks that every field used as a path segment is usable as one.
func (s Spec) Validate() error {
	fields := []struct{ key, val string }{
		{"name", s.Name},
		{"type", s.TypeID},
		{"folder", s.FolderName()},
	}
	if s.Task != "" {
		fields = append(fields, struct{ key, val string }{"task", s.Task})
	}
	for _, f := range fields {
		if err := layout.ValidateSegment(f.val); err != nil {
			return oops.In("instance").With("field", f.key).Wrapf(err, "invalid instance %s", f.key)
		}
	}
	if s.Port < 0 || s.Port > 65535 {
		return oops.In("instance").With("port", s.Port).Errorf("port %d out of range", s.Port)
	}
	return nil
}
