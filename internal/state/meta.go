package state

// Meta is the root persisted document (spec.md §3).
type Meta struct {
	Agents      map[string]string          `yaml:"agents,omitempty"`
	Repos       map[string]RepoRecord      `yaml:"repos,omitempty"`
	Registries  map[string]RegistryTypeMap `yaml:"registries,omitempty"`
	Sync        []string                   `yaml:"sync,omitempty"`
}

// RegistryTypeMap maps a registry name to its entry, for one registry type
// ({mcp, skill}).
type RegistryTypeMap map[string]RegistryEntry

// RegistryEntry describes one named package/skill registry.
type RegistryEntry struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key,omitempty"`
}

// RepoRecord is the persisted record for one repo slot.
type RepoRecord struct {
	Source       string `yaml:"source"`
	Branch       string `yaml:"branch,omitempty"`
	LastCommit   string `yaml:"last_commit,omitempty"`
	LastSyncedAt string `yaml:"last_synced_at,omitempty"` // ISO-8601
	Priority     int    `yaml:"priority"`
	Readonly     bool   `yaml:"readonly,omitempty"`
}

// Reserved slot names and their fixed priorities (spec.md §3).
const (
	SlotSystem  = "system"
	SlotUser    = "user"
	SlotProject = "project"

	PrioritySystem  = 0
	PriorityUser    = 10
	PriorityProject = 100

	// AdditionalSlotBase is the priority base for slots beyond the three
	// reserved ones: 20 + insertion order.
	AdditionalSlotBase = 20
)

// NewMeta returns an empty Meta with initialized maps, matching
// read_meta()'s "never fails for absent files" contract.
func NewMeta() *Meta {
	return &Meta{
		Agents:     make(map[string]string),
		Repos:      make(map[string]RepoRecord),
		Registries: make(map[string]RegistryTypeMap),
	}
}

func (m *Meta) ensureMaps() {
	if m.Agents == nil {
		m.Agents = make(map[string]string)
	}
	if m.Repos == nil {
		m.Repos = make(map[string]RepoRecord)
	}
	if m.Registries == nil {
		m.Registries = make(map[string]RegistryTypeMap)
	}
}

// GetRepo returns the record for a slot, if present.
func (m *Meta) GetRepo(slot string) (RepoRecord, bool) {
	r, ok := m.Repos[slot]
	return r, ok
}

// SetRepo writes a repo record to a slot. Writing to a readonly slot that
// already exists is rejected; bootstrap code that creates a readonly slot
// for the first time must construct the record directly rather than go
// through SetRepo, matching the invariant in spec.md §4.A.
func (m *Meta) SetRepo(slot string, rec RepoRecord) error {
	m.ensureMaps()
	if existing, ok := m.Repos[slot]; ok && existing.Readonly {
		return ErrReadonlySlot
	}
	m.Repos[slot] = rec
	return nil
}

// RemoveRepo deletes a slot's record. Removing a required named repo
// (system/user/project) by path is a hard invariant violation per spec §7;
// callers enforce that policy before calling RemoveRepo with one of those
// names when the removal targets a readonly/required slot.
func (m *Meta) RemoveRepo(slot string) error {
	if existing, ok := m.Repos[slot]; ok && existing.Readonly {
		return ErrReadonlySlot
	}
	delete(m.Repos, slot)
	return nil
}

// ReposByPriority returns (slot, record) pairs ordered ascending by priority.
func (m *Meta) ReposByPriority() []SlotRepo {
	out := make([]SlotRepo, 0, len(m.Repos))
	for slot, rec := range m.Repos {
		out = append(out, SlotRepo{Slot: slot, Repo: rec})
	}
	sortSlotRepos(out)
	return out
}

// HighestPriorityRepo returns the repo with the greatest priority value
// (highest priority wins, per spec §3).
func (m *Meta) HighestPriorityRepo() (SlotRepo, bool) {
	all := m.ReposByPriority()
	if len(all) == 0 {
		return SlotRepo{}, false
	}
	return all[len(all)-1], true
}

// SlotRepo pairs a slot name with its record.
type SlotRepo struct {
	Slot string
	Repo RepoRecord
}

func sortSlotRepos(s []SlotRepo) {
	// Small N (single-user repo slot count); insertion sort keeps this
	// dependency-free and stable, mirroring the teacher's preference for
	// plain loops over sort.Slice in small, hot-path-free helpers.
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].Repo.Priority > s[j].Repo.Priority {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}

// NextAdditionalPriority computes 20 + insertion order for a new named slot,
// counting only slots that are not one of the three reserved ones.
func (m *Meta) NextAdditionalPriority() int {
	count := 0
	for slot := range m.Repos {
		if slot != SlotSystem && slot != SlotUser && slot != SlotProject {
			count++
		}
	}
	return AdditionalSlotBase + count
}

// AgentVersion returns the globally selected version for an agent, if any.
func (m *Meta) AgentVersion(agent string) (string, bool) {
	v, ok := m.Agents[agent]
	return v, ok
}

// SetAgentVersion sets (or clears, via empty string) the global default.
func (m *Meta) SetAgentVersion(agent, version string) {
	m.ensureMaps()
	if version == "" {
		delete(m.Agents, agent)
		return
	}
	m.Agents[agent] = version
}

// SyncedAgents returns the set of agents sharing the central resources.
func (m *Meta) SyncedAgents() []string {
	return m.Sync
}
