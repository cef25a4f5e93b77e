package drive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PromoteToDirectory converts a file drive into a directory drive: the
// directory is created at the drive's name, the original file becomes
// {drive}/overview.md. No-op (returns d unchanged) if d is already a
// directory drive.
func (d Drive) PromoteToDirectory() (Drive, error) {
	if d.IsDir {
		return d, nil
	}
	dirPath := strings.TrimSuffix(d.Path, ".md")
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return Drive{}, fmt.Errorf("drive: failed creating %s: %w", dirPath, err)
	}
	overview := filepath.Join(dirPath, "overview.md")
	if err := os.Rename(d.Path, overview); err != nil {
		return Drive{}, fmt.Errorf("drive: failed promoting %s: %w", d.Path, err)
	}
	return Drive{Name: d.Name, Path: dirPath, IsDir: true, FrontMatter: d.FrontMatter}, nil
}

// AddNote creates a timestamped note file under d/notes/, promoting a file
// drive to a directory drive first if needed. Returns the path to the
// created note file and the (possibly promoted) drive.
func AddNote(d Drive, title, content string, now time.Time) (string, Drive, error) {
	promoted, err := d.PromoteToDirectory()
	if err != nil {
		return "", Drive{}, err
	}

	notesDir := filepath.Join(promoted.Path, "notes")
	if err := os.MkdirAll(notesDir, 0o755); err != nil {
		return "", Drive{}, fmt.Errorf("drive: failed creating notes dir: %w", err)
	}

	fileName := fmt.Sprintf("%s-%s.md", nowISO(now), slugify(title))
	path := filepath.Join(notesDir, fileName)

	fm := struct {
		Title   string `yaml:"title"`
		Created string `yaml:"created"`
	}{Title: title, Created: now.UTC().Format(time.RFC3339)}
	fmBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", Drive{}, err
	}

	doc := "---\n" + string(fmBytes) + "---\n\n" + content + "\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return "", Drive{}, fmt.Errorf("drive: failed writing note: %w", err)
	}
	return path, promoted, nil
}

var (
	nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)
)

// slugify lowercases title and collapses runs of non-alphanumerics to a
// single hyphen, trimming leading/trailing hyphens.
func slugify(title string) string {
	s := strings.ToLower(title)
	s = nonAlnumRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
