package drive

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestStore_List_FileAndDirDrives(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "notes.md"), "---\nname: notes\ndescription: scratch notes\n---\n\n# Notes\n\nhello\n")
	writeFile(t, filepath.Join(dir, "project-a", "overview.md"), "---\nname: project-a\nproject: ~/code/project-a\n---\n\n# Project A\n\nbody\n")

	store := NewStore(dir)
	drives, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(drives) != 2 {
		t.Fatalf("List() = %d drives, want 2", len(drives))
	}

	names := map[string]Drive{}
	for _, d := range drives {
		names[d.Name] = d
	}
	if _, ok := names["notes"]; !ok {
		t.Error("expected file drive \"notes\"")
	}
	pa, ok := names["project-a"]
	if !ok {
		t.Fatal("expected dir drive \"project-a\"")
	}
	if !pa.IsDir {
		t.Error("project-a should be a directory drive")
	}
}

func TestStore_FindByProject(t *testing.T) {
	dir := t.TempDir()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir available")
	}
	projectPath := filepath.Join(home, "code", "widget")
	writeFile(t, filepath.Join(dir, "widget.md"), "---\nname: widget\nproject: ~/code/widget\n---\n\nbody\n")

	store := NewStore(dir)
	d, ok, err := store.FindByProject(projectPath)
	if err != nil {
		t.Fatalf("FindByProject() error = %v", err)
	}
	if !ok || d.Name != "widget" {
		t.Errorf("FindByProject() = %+v, %v; want widget drive", d, ok)
	}
}

func TestDrive_IsLarge(t *testing.T) {
	dir := t.TempDir()
	smallPath := filepath.Join(dir, "small.md")
	writeFile(t, smallPath, "tiny")
	small := Drive{Path: smallPath}
	if small.IsLarge() {
		t.Error("small file drive should not be large")
	}

	bigPath := filepath.Join(dir, "big.md")
	writeFile(t, bigPath, strings.Repeat("x", 60*1024))
	big := Drive{Path: bigPath}
	if !big.IsLarge() {
		t.Error("60KiB file drive should be large")
	}

	manyDir := filepath.Join(dir, "many")
	for i := 0; i < 25; i++ {
		writeFile(t, filepath.Join(manyDir, "f"+string(rune('a'+i))+".md"), "x")
	}
	manyDrive := Drive{Path: manyDir, IsDir: true}
	if !manyDrive.IsLarge() {
		t.Error("directory with 25 markdown files should be large")
	}
}

func TestDrive_GetSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	writeFile(t, path, "# Title\n\nintro\n\n## Usage\n\nstep one\nstep two\n\n## Notes\n\nmisc\n")
	d := Drive{Path: path}

	got, err := d.GetSection("", "Usage")
	if err != nil {
		t.Fatalf("GetSection() error = %v", err)
	}
	want := "## Usage\n\nstep one\nstep two"
	if got != want {
		t.Errorf("GetSection() = %q, want %q", got, want)
	}

	if _, err := d.GetSection("", "Missing"); err == nil {
		t.Error("expected error for missing section")
	}
}

func TestAddNote_PromotesFileDriveToDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch.md")
	writeFile(t, path, "---\nname: scratch\n---\n\nbody\n")
	d := Drive{Name: "scratch", Path: path, IsDir: false}

	notePath, promoted, err := AddNote(d, "My Great Idea!", "details here", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if !promoted.IsDir {
		t.Error("expected drive to be promoted to a directory")
	}
	if _, err := os.Stat(filepath.Join(promoted.Path, "overview.md")); err != nil {
		t.Errorf("expected overview.md after promotion: %v", err)
	}
	if _, err := os.Stat(notePath); err != nil {
		t.Errorf("expected note file at %s: %v", notePath, err)
	}
	if !strings.Contains(filepath.Base(notePath), "my-great-idea") {
		t.Errorf("note file name %q should contain slugified title", notePath)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"My Great Idea!":  "my-great-idea",
		"  leading/trail ": "leading-trail",
		"already-slug":     "already-slug",
	}
	for in, want := range tests {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
