package state

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrReadonlySlot is returned when a write targets a readonly repo slot,
// a hard invariant violation per spec.md §7.
var ErrReadonlySlot = errors.New("state: repo slot is readonly")

const metaHeader = "# agentctl meta document — managed by agentctl, hand edits are preserved across migrations\n"

// Store is the single handle onto the persisted Meta document and layout.
type Store struct {
	Layout Layout
}

// New creates a Store rooted at home, matching the teacher's pattern of a
// thin struct wrapping a root path (internal/project.Manager, internal/session.Manager).
func New(home string) *Store {
	return &Store{Layout: NewLayout(home)}
}

// ReadMeta never fails for absent files; it returns an empty Meta with empty
// repos and transparently migrates the two legacy formats described in
// spec.md §4.A.
func (s *Store) ReadMeta() (*Meta, error) {
	path := s.Layout.MetaPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMeta(), nil
		}
		return NewMeta(), nil // unreadable file yields the default empty Meta
	}

	m, migrated, err := decodeWithMigration(data)
	if err != nil {
		// Errors during migration yield the default empty Meta (spec §4.A).
		return NewMeta(), nil
	}
	if migrated {
		if writeErr := s.WriteMeta(m); writeErr != nil {
			return m, fmt.Errorf("state: failed persisting migrated meta: %w", writeErr)
		}
	}
	return m, nil
}

// WriteMeta atomically (write-temp, rename) persists the document with a
// fixed header comment, per spec.md §4.A.
func (s *Store) WriteMeta(m *Meta) error {
	var buf bytes.Buffer
	buf.WriteString(metaHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("state: failed to encode meta: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("state: failed to close encoder: %w", err)
	}

	path := s.Layout.MetaPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("state: failed to write temp meta: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("state: failed to rename meta into place: %w", err)
	}
	return nil
}

// EnsureLayout idempotently creates every top-level directory.
func (s *Store) EnsureLayout() error {
	return s.Layout.EnsureLayout()
}

// GetRepo, SetRepo, RemoveRepo, ReposByPriority, HighestPriorityRepo are
// read-modify-write convenience wrappers: each loads Meta, mutates it, and
// (for mutators) persists the result, so callers don't need to thread the
// loaded *Meta themselves for simple one-shot operations.

func (s *Store) GetRepo(slot string) (RepoRecord, bool, error) {
	m, err := s.ReadMeta()
	if err != nil {
		return RepoRecord{}, false, err
	}
	r, ok := m.GetRepo(slot)
	return r, ok, nil
}

func (s *Store) SetRepo(slot string, rec RepoRecord) error {
	m, err := s.ReadMeta()
	if err != nil {
		return err
	}
	if err := m.SetRepo(slot, rec); err != nil {
		return err
	}
	return s.WriteMeta(m)
}

func (s *Store) RemoveRepo(slot string) error {
	m, err := s.ReadMeta()
	if err != nil {
		return err
	}
	if err := m.RemoveRepo(slot); err != nil {
		return err
	}
	return s.WriteMeta(m)
}

func (s *Store) ReposByPriority() ([]SlotRepo, error) {
	m, err := s.ReadMeta()
	if err != nil {
		return nil, err
	}
	return m.ReposByPriority(), nil
}

func (s *Store) HighestPriorityRepo() (SlotRepo, bool, error) {
	m, err := s.ReadMeta()
	if err != nil {
		return SlotRepo{}, false, err
	}
	sr, ok := m.HighestPriorityRepo()
	return sr, ok, nil
}
