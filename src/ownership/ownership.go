// Package ownership persists who owns a private instance template and who
// else may use it. The record is a small TOML file inside the template
// directory (templates/servers/<type>/<task>/<owner>/<name>); nothing is
// cached, every call reads or writes the file.
package ownership

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/samber/oops"
	"github.com/sirupsen/logrus"

	"instance-provision/src/fsutil"
	"instance-provision/src/layout"
)

var log = logrus.WithField("pkg", "ownership")

// ErrOwnerChanged is returned by WriteOwner when the record already names
// a different owner.
var ErrOwnerChanged = errors.New("ownership record already has a different owner")

// Record is the on-disk ownership record.
type Record struct {
	Owner   string   `toml:"owner_uuid,omitempty"`
	Members []string `toml:"member_uuids,omitempty"`
}

// Store reads and writes ownership records below a network layout.
type Store struct {
	Layout layout.Layout
}

// New returns a Store for l.
func New(l layout.Layout) *Store {
	return &Store{Layout: l}
}

// TemplateDir returns templates/servers/<type>/<task>/<owner>/<name>.
func (s *Store) TemplateDir(typeID, task, owner, name string) string {
	return filepath.Join(s.Layout.OwnerDir(typeID, task, owner), name)
}

// OwnerFolder returns the folder name of owner below a type/task. An
// existing folder spelling the identity differently, e.g. in upper case,
// is used as is; otherwise the canonical form is returned.
func (s *Store) OwnerFolder(typeID, task string, owner uuid.UUID) string {
	canonical := owner.String()
	taskDir := filepath.Join(s.Layout.ServerTemplates(), typeID, task)
	if fsutil.IsDir(filepath.Join(taskDir, canonical)) {
		return canonical
	}
	names, err := fsutil.ReadNames(taskDir, true, true)
	if err != nil {
		return canonical
	}
	for _, dir := range names {
		if id, err := uuid.Parse(dir); err == nil && id == owner {
			return dir
		}
	}
	return canonical
}

// RecordPath returns the ownership record path of a template.
func (s *Store) RecordPath(typeID, task string, owner uuid.UUID, name string) string {
	return filepath.Join(s.TemplateDir(typeID, task, s.OwnerFolder(typeID, task, owner), name), layout.OwnershipFileName)
}

func validate(parts ...string) error {
	for _, p := range parts {
		if err := layout.ValidateSegment(p); err != nil {
			return err
		}
	}
	return nil
}

// Read loads the record of a template. A missing file yields
// fs.ErrNotExist; a file that does not parse yields a decode error.
func (s *Store) Read(typeID, task string, owner uuid.UUID, name string) (Record, error) {
	if err := validate(typeID, task, name); err != nil {
		return Record{}, oops.In("ownership").With("type", typeID).With("task", task).With("name", name).Wrapf(err, "invalid template coordinates")
	}
	path := s.RecordPath(typeID, task, owner, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, oops.In("ownership").With("path", path).Wrapf(err, "read ownership record")
	}
	var rec Record
	if err := toml.Unmarshal(data, &rec); err != nil {
		return Record{}, oops.In("ownership").With("path", path).Wrapf(err, "decode ownership record")
	}
	return rec, nil
}

// write replaces the record file atomically. The template directory must
// already exist.
func (s *Store) write(typeID, task string, owner uuid.UUID, name string, rec Record) error {
	if err := validate(typeID, task, name); err != nil {
		return oops.In("ownership").With("type", typeID).With("task", task).With("name", name).Wrapf(err, "invalid template coordinates")
	}
	path := s.RecordPath(typeID, task, owner, name)
	if !fsutil.IsDir(filepath.Dir(path)) {
		return oops.In("ownership").With("path", path).Wrapf(fs.ErrNotExist, "template directory missing")
	}
	data, err := toml.Marshal(rec)
	if err != nil {
		return oops.In("ownership").Wrapf(err, "encode ownership record")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".own_server_info-*.tmp")
	if err != nil {
		return oops.In("ownership").With("path", path).Wrapf(err, "create temporary record")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return oops.In("ownership").With("path", path).Wrapf(err, "write temporary record")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return oops.In("ownership").With("path", path).Wrapf(err, "close temporary record")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return oops.In("ownership").With("path", path).Wrapf(err, "replace ownership record")
	}
	return nil
}

// ReadMembers returns the members recorded for a template. A missing or
// unreadable record yields an empty list; member entries that are not
// identities are dropped.
func (s *Store) ReadMembers(typeID, task string, owner uuid.UUID, name string) []uuid.UUID {
	rec, err := s.Read(typeID, task, owner, name)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.WithFields(logrus.Fields{
				"at":    "ownership.ReadMembers",
				"owner": owner.String(),
				"name":  name,
				"error": err.Error(),
			}).Warn("ownership_record_unreadable")
		}
		return []uuid.UUID{}
	}
	return parseIdentities(rec.Members)
}

// WriteMembers replaces the member list of a template, creating the
// record if needed and keeping any recorded owner. It reports false on
// any failure.
func (s *Store) WriteMembers(typeID, task string, owner uuid.UUID, name string, members []uuid.UUID) bool {
	fields := logrus.Fields{
		"at":      "ownership.WriteMembers",
		"owner":   owner.String(),
		"name":    name,
		"members": len(members),
	}
	rec, err := s.Read(typeID, task, owner, name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		// a corrupt record is rewritten from scratch
		log.WithFields(fields).WithError(err).Warn("ownership_record_replaced")
		rec = Record{}
	}
	rec.Members = formatIdentities(members)
	if err := s.write(typeID, task, owner, name, rec); err != nil {
		log.WithFields(fields).WithError(err).Error("ownership_members_write_failed")
		return false
	}
	log.WithFields(fields).Debug("ownership_members_written")
	return true
}

// WriteOwner records owner on a freshly initialized template. Owners never
// change: writing a different owner over an existing one fails with
// ErrOwnerChanged, writing the same owner again is a no-op.
func (s *Store) WriteOwner(typeID, task string, owner uuid.UUID, name string) error {
	rec, err := s.Read(typeID, task, owner, name)
	switch {
	case err == nil:
		if recorded, err := uuid.Parse(rec.Owner); err == nil && recorded == owner {
			return nil
		}
		if rec.Owner != "" {
			return oops.In("ownership").With("recorded", rec.Owner).With("owner", owner.String()).Wrap(ErrOwnerChanged)
		}
	case errors.Is(err, fs.ErrNotExist):
		rec = Record{}
	default:
		return err
	}
	rec.Owner = owner.String()
	if err := s.write(typeID, task, owner, name, rec); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"at":    "ownership.WriteOwner",
		"owner": owner.String(),
		"name":  name,
	}).Info("ownership_owner_written")
	return nil
}

// ReadOwner returns the recorded owner of a template, if any.
func (s *Store) ReadOwner(typeID, task string, owner uuid.UUID, name string) (uuid.UUID, bool) {
	rec, err := s.Read(typeID, task, owner, name)
	if err != nil || rec.Owner == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(rec.Owner)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ListInstances returns the template names under one owner folder, which
// may be an identity or the public pseudo-owner. Missing folders yield an
// empty list.
func (s *Store) ListInstances(typeID, task, ownerDir string) []string {
	if err := validate(typeID, task, ownerDir); err != nil {
		return []string{}
	}
	names, err := fsutil.ReadNames(s.Layout.OwnerDir(typeID, task, ownerDir), true, true)
	if err != nil {
		return []string{}
	}
	return names
}

// EnumerateByOwner maps every owner identity under a type/task to its
// template names. Folders whose name is not an identity, such as the
// public pseudo-owner, are skipped. Identities are accepted in any form
// uuid.Parse understands, upper case included.
func (s *Store) EnumerateByOwner(typeID, task string) map[uuid.UUID][]string {
	out := map[uuid.UUID][]string{}
	if err := validate(typeID, task); err != nil {
		return out
	}
	taskDir := filepath.Join(s.Layout.ServerTemplates(), typeID, task)
	owners, err := fsutil.ReadNames(taskDir, true, true)
	if err != nil {
		return out
	}
	for _, dir := range owners {
		id, err := uuid.Parse(dir)
		if err != nil {
			continue
		}
		out[id] = append(out[id], s.ListInstances(typeID, task, dir)...)
	}
	return out
}

// FindByMember maps owners to the templates whose record lists member.
// It reads one record per template and is meant for listing, not hot
// paths.
func (s *Store) FindByMember(member uuid.UUID, typeID, task string) map[uuid.UUID][]string {
	out := map[uuid.UUID][]string{}
	for owner, names := range s.EnumerateByOwner(typeID, task) {
		for _, name := range names {
			for _, m := range s.ReadMembers(typeID, task, owner, name) {
				if m == member {
					out[owner] = append(out[owner], name)
					break
				}
			}
		}
	}
	return out
}

func parseIdentities(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			log.WithFields(logrus.Fields{"at": "ownership.parseIdentities", "value": r}).Debug("ownership_member_skipped")
			continue
		}
		out = append(out, id)
	}
	return out
}

func formatIdentities(ids []uuid.UUID) []string {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id.String())
	}
	return out
}
