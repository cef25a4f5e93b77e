// Package drive implements Component E's storage half: discovery,
// resolution, and content assembly over the library of markdown "drives"
// under the agents home's drives/ directory. internal/drive/server.go wraps
// this store behind a stdio MCP server.
package drive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// largeFileThreshold and largeFileCount are the "large drive" cutoffs from
// spec.md §4.E: a single file over 50 KiB, or a directory with more than 20
// markdown files.
const (
	largeFileThreshold = 50 * 1024
	largeFileCount     = 20
)

// FrontMatter is the YAML header every drive (or its overview/representative
// file) carries.
type FrontMatter struct {
	Name        string `yaml:"name,omitempty"`
	Description string `yaml:"description,omitempty"`
	Project     string `yaml:"project,omitempty"`
	Repo        string `yaml:"repo,omitempty"`
	Updated     string `yaml:"updated,omitempty"`
}

// Drive is a discovered drive: either a single markdown file or a directory
// containing one or more markdown files (and optionally notes/).
type Drive struct {
	Name        string
	Path        string // absolute path to the file, or to the directory
	IsDir       bool
	FrontMatter FrontMatter
}

// Store resolves and reads drives rooted at a single drives/ directory.
type Store struct {
	Dir string
}

// NewStore creates a Store rooted at dir (normally layout.Drives()).
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// List enumerates every top-level drive under the store's directory.
func (s *Store) List() ([]Drive, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var drives []Drive
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			d, err := s.loadDirDrive(name)
			if err != nil {
				continue // unreadable drive is skipped, not fatal
			}
			drives = append(drives, d)
			continue
		}
		if !strings.HasSuffix(name, ".md") {
			continue
		}
		d, err := s.loadFileDrive(name)
		if err != nil {
			continue
		}
		drives = append(drives, d)
	}
	sort.Slice(drives, func(i, j int) bool { return drives[i].Name < drives[j].Name })
	return drives, nil
}

// Find locates a drive by its exact name.
func (s *Store) Find(name string) (Drive, bool, error) {
	drives, err := s.List()
	if err != nil {
		return Drive{}, false, err
	}
	for _, d := range drives {
		if d.Name == name {
			return d, true, nil
		}
	}
	return Drive{}, false, nil
}

// FindByProject locates the drive whose front-matter project (with ~
// expansion) resolves to the same absolute path as projectPath.
func (s *Store) FindByProject(projectPath string) (Drive, bool, error) {
	target, err := expandAndAbs(projectPath)
	if err != nil {
		return Drive{}, false, nil
	}
	drives, err := s.List()
	if err != nil {
		return Drive{}, false, err
	}
	for _, d := range drives {
		if d.FrontMatter.Project == "" {
			continue
		}
		candidate, err := expandAndAbs(d.FrontMatter.Project)
		if err != nil {
			continue
		}
		if candidate == target {
			return d, true, nil
		}
	}
	return Drive{}, false, nil
}

func (s *Store) loadFileDrive(fileName string) (Drive, error) {
	path := filepath.Join(s.Dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Drive{}, err
	}
	fm, _ := splitFrontMatter(string(data))
	name := strings.TrimSuffix(fileName, ".md")
	if fm.Name != "" {
		name = fm.Name
	}
	return Drive{Name: name, Path: path, IsDir: false, FrontMatter: fm}, nil
}

func (s *Store) loadDirDrive(dirName string) (Drive, error) {
	dirPath := filepath.Join(s.Dir, dirName)
	repFile, err := representativeFile(dirPath)
	if err != nil {
		return Drive{Name: dirName, Path: dirPath, IsDir: true}, nil
	}
	data, err := os.ReadFile(repFile)
	if err != nil {
		return Drive{Name: dirName, Path: dirPath, IsDir: true}, nil
	}
	fm, _ := splitFrontMatter(string(data))
	name := dirName
	if fm.Name != "" {
		name = fm.Name
	}
	return Drive{Name: name, Path: dirPath, IsDir: true, FrontMatter: fm}, nil
}

// representativeFile returns overview.md if present, else the first markdown
// file by sort order, per spec.md §3.
func representativeFile(dirPath string) (string, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return "", err
	}
	overview := filepath.Join(dirPath, "overview.md")
	if _, err := os.Stat(overview); err == nil {
		return overview, nil
	}
	var mdFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			mdFiles = append(mdFiles, e.Name())
		}
	}
	if len(mdFiles) == 0 {
		return "", fmt.Errorf("drive: no markdown files in %s", dirPath)
	}
	sort.Strings(mdFiles)
	return filepath.Join(dirPath, mdFiles[0]), nil
}

// IsLarge reports whether d crosses the "large drive" threshold from
// spec.md §4.E.
func (d Drive) IsLarge() bool {
	if !d.IsDir {
		info, err := os.Stat(d.Path)
		return err == nil && info.Size() > largeFileThreshold
	}
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return false
	}
	count := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			count++
		}
	}
	return count > largeFileCount
}

// ReadContent assembles d's textual content: for a file drive, its body
// (front matter stripped); for a directory drive, every markdown file's
// body concatenated, each prefixed with "## {basename}".
func (d Drive) ReadContent() (string, error) {
	if !d.IsDir {
		data, err := os.ReadFile(d.Path)
		if err != nil {
			return "", err
		}
		_, body := splitFrontMatter(string(data))
		return body, nil
	}

	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(d.Path, name))
		if err != nil {
			continue
		}
		_, body := splitFrontMatter(string(data))
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(strings.TrimSuffix(name, ".md"))
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(body))
	}
	return b.String(), nil
}

// Header renders d's front matter between "---" lines, ending in a single
// newline; the get_context handler adds the blank line that separates it
// from the content (spec.md §4.E).
func (d Drive) Header() (string, error) {
	out, err := yaml.Marshal(d.FrontMatter)
	if err != nil {
		return "", err
	}
	return "---\n" + string(out) + "---\n", nil
}

// splitFrontMatter separates a leading "---\n...\n---\n" YAML block from the
// rest of the document. If there is no front matter, fm is zero-valued and
// body is the entire input.
func splitFrontMatter(data string) (FrontMatter, string) {
	var fm FrontMatter
	if !strings.HasPrefix(data, "---\n") && !strings.HasPrefix(data, "---\r\n") {
		return fm, data
	}
	rest := data[4:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return fm, data
	}
	raw := rest[:idx]
	after := rest[idx+4:]
	after = strings.TrimPrefix(after, "\n")
	_ = yaml.Unmarshal([]byte(raw), &fm)
	return fm, strings.TrimLeft(after, "\r\n")
}

// expandAndAbs expands a leading ~ to the user's home directory and resolves
// the result to an absolute path.
func expandAndAbs(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Abs(p)
}

// nowISO formats t per the timestamp convention used for run ids and note
// file names: ISO-8601 with ':' and '.' rewritten to '-'.
func nowISO(t time.Time) string {
	s := t.UTC().Format("2006-01-02T15:04:05.000Z")
	s = strings.ReplaceAll(s, ":", "-")
	s = strings.ReplaceAll(s, ".", "-")
	return s
}
