// Package layout describes the on-disk shape of a provisioning network:
// where templates, runtime instances and logs live, and which directory
// names are reserved at every template tier.
package layout

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/samber/oops"
)

// Reserved directory and file names.
const (
	DefaultDir       = "default"
	BasisDir         = "basis"
	PlayerDefaultDir = "player_default"
	PublicDir        = "public"
	PlayerDataDir    = "playerdata"

	TemplatesDir = "templates"
	ServersKind  = "servers"
	WorldsKind   = "worlds"
	PlayersKind  = "players"

	InstancesDir = "servers"
	LogsDir      = "logs"

	OwnershipFileName = "own_server_info.toml"

	// LogTimestampLayout names per-start log directories; it sorts lexically.
	LogTimestampLayout = "2006-01-02_15-04-05"
)

// Names holds the reserved directory names recognized at each template tier.
// The zero value is not usable; start from DefaultNames.
type Names struct {
	Basis         string
	Default       string
	PlayerDefault string
	Public        string
}

// DefaultNames returns the reserved names used by a stock network.
func DefaultNames() Names {
	return Names{
		Basis:         BasisDir,
		Default:       DefaultDir,
		PlayerDefault: PlayerDefaultDir,
		Public:        PublicDir,
	}
}

// Validate rejects empty or path-like reserved names.
func (n Names) Validate() error {
	for key, v := range map[string]string{
		"basis":          n.Basis,
		"default":        n.Default,
		"player_default": n.PlayerDefault,
		"public":         n.Public,
	} {
		if err := ValidateSegment(v); err != nil {
			return oops.In("layout").With("name", key).Wrapf(err, "reserved %s directory name", key)
		}
	}
	return nil
}

// Layout resolves every well-known location below a network root.
type Layout struct {
	// Root is the cleaned absolute network directory.
	Root  string
	Names Names
}

// New builds a Layout rooted at root with the given reserved names.
func New(root string, names Names) (Layout, error) {
	clean, err := ParseRoot(root)
	if err != nil {
		return Layout{}, err
	}
	if err := names.Validate(); err != nil {
		return Layout{}, err
	}
	return Layout{Root: clean, Names: names}, nil
}

// TemplateRoot returns the template directory of the given kind
// (servers, worlds or players).
func (l Layout) TemplateRoot(kind string) string {
	return filepath.Join(l.Root, TemplatesDir, kind)
}

// ServerTemplates is shorthand for TemplateRoot(ServersKind).
func (l Layout) ServerTemplates() string { return l.TemplateRoot(ServersKind) }

// WorldTemplates is shorthand for TemplateRoot(WorldsKind).
func (l Layout) WorldTemplates() string { return l.TemplateRoot(WorldsKind) }

// PlayerTemplates is shorthand for TemplateRoot(PlayersKind).
func (l Layout) PlayerTemplates() string { return l.TemplateRoot(PlayersKind) }

// InstanceDir returns the runtime directory of an instance folder.
func (l Layout) InstanceDir(folder string) string {
	return filepath.Join(l.Root, InstancesDir, folder)
}

// InstancesRoot returns the directory holding every runtime instance.
func (l Layout) InstancesRoot() string {
	return filepath.Join(l.Root, InstancesDir)
}

// LogsRoot returns the directory holding timestamped log directories.
func (l Layout) LogsRoot() string {
	return filepath.Join(l.Root, LogsDir)
}

// OwnerDir returns templates/servers/<type>/<task>/<owner>.
func (l Layout) OwnerDir(typeID, task, owner string) string {
	return filepath.Join(l.ServerTemplates(), typeID, task, owner)
}

// ParseRoot accepts either an absolute path or a "dir:/path" URI and
// returns the cleaned absolute path.
func ParseRoot(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", oops.In("layout").Errorf("network root must not be empty; expected an absolute path or 'dir:/path'")
	}
	if i := strings.Index(s, ":"); i > 0 && !isWindowsDrive(s) {
		scheme := strings.ToLower(strings.TrimSpace(s[:i]))
		if scheme != "dir" {
			return "", oops.In("layout").With("scheme", scheme).Errorf("unsupported network root scheme %q", scheme)
		}
		s = strings.TrimSpace(s[i+1:])
		if s == "" {
			return "", oops.In("layout").Errorf("network root path must not be empty")
		}
	}
	clean := filepath.Clean(s)
	if !filepath.IsAbs(clean) {
		return "", oops.In("layout").With("root", raw).Errorf("network root must be an absolute path: %q", raw)
	}
	return clean, nil
}

func isWindowsDrive(s string) bool {
	return runtime.GOOS == "windows" && len(s) >= 2 && s[1] == ':'
}

// ValidateSegment checks that s can be used verbatim as a single path
// segment. Type ids, tasks, owners and instance names all pass through here.
func ValidateSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("must not be empty")
	case s == "." || s == "..":
		return fmt.Errorf("%q is not a valid directory name", s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%q must not contain path separators", s)
	case strings.ContainsRune(s, 0):
		return fmt.Errorf("%q must not contain NUL", s)
	}
	return nil
}
