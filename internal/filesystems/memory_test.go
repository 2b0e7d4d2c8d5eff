package filesystems_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/railwayapp/stevedore/internal/filesystems"
)

func botContext() *filesystems.MemoryFS {
	mfs := filesystems.NewMemoryFS()
	mfs.AddFile("requirements.txt", []byte("python-telegram-bot==13.15\n"))
	mfs.AddFile("main.py", []byte("print('hi')\n"))
	mfs.AddFile("roles/roles.py", []byte("WRITER_IDS = set()\n"))
	mfs.AddDir("empty")
	return mfs
}

func TestMemoryFS_ReadFile(t *testing.T) {
	mfs := botContext()

	content, err := mfs.ReadFile("roles/roles.py")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(content) != "WRITER_IDS = set()\n" {
		t.Errorf("unexpected content %q", content)
	}
}

func TestMemoryFS_ReadFile_NotFound(t *testing.T) {
	mfs := botContext()

	_, err := mfs.ReadFile("Pipfile")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestMemoryFS_Exists(t *testing.T) {
	mfs := botContext()

	tests := []struct {
		path string
		want bool
	}{
		{"requirements.txt", true},
		{"roles", true},
		{"empty", true},
		{"missing.txt", false},
	}

	for _, tt := range tests {
		got, err := filesystems.Exists(mfs, tt.path)
		if err != nil {
			t.Fatalf("Exists(%q): unexpected error %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Exists(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if !filesystems.IsDir(mfs, "roles") {
		t.Error("expected roles to be a directory")
	}
	if filesystems.IsDir(mfs, "main.py") {
		t.Error("expected main.py not to be a directory")
	}
}

func TestMemoryFS_ReadDir(t *testing.T) {
	mfs := botContext()

	var names []string
	for entry, err := range mfs.ReadDir(".") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, entry.Name())
	}

	expected := []string{"empty", "main.py", "requirements.txt", "roles"}
	if len(names) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("entry %d: expected %q, got %q", i, expected[i], names[i])
		}
	}
}

func TestMemoryFS_ReadDir_Missing(t *testing.T) {
	mfs := botContext()

	for _, err := range mfs.ReadDir("nope") {
		if !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("expected fs.ErrNotExist, got %v", err)
		}
		return
	}
	t.Fatal("expected an error entry")
}

func TestMemoryFS_Walk_Order(t *testing.T) {
	mfs := botContext()

	var visited []string
	err := mfs.Walk(".", func(path string, info filesystems.FileInfo, err error) error {
		if err != nil {
			return err
		}
		visited = append(visited, path)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{".", "empty", "main.py", "requirements.txt", "roles", "roles/roles.py"}
	if len(visited) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, visited)
	}
	for i := range expected {
		if visited[i] != expected[i] {
			t.Errorf("step %d: expected %q, got %q", i, expected[i], visited[i])
		}
	}
}

func TestMemoryFS_Walk_SkipDir(t *testing.T) {
	mfs := botContext()

	var visited []string
	err := mfs.Walk(".", func(path string, info filesystems.FileInfo, err error) error {
		if info.IsDir() && path == "roles" {
			return filesystems.SkipDir
		}
		visited = append(visited, path)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range visited {
		if p == "roles/roles.py" {
			t.Fatal("expected roles/ to be skipped")
		}
	}
}

func TestMemoryFS_Rel(t *testing.T) {
	mfs := filesystems.NewMemoryFS()

	rel, err := mfs.Rel("app", "app")
	if err != nil || rel != "." {
		t.Errorf("expected '.', got %q (%v)", rel, err)
	}

	rel, err = mfs.Rel("app", "app/roles/roles.py")
	if err != nil || rel != "roles/roles.py" {
		t.Errorf("expected 'roles/roles.py', got %q (%v)", rel, err)
	}

	if _, err := mfs.Rel("app", "other/file.py"); err == nil {
		t.Error("expected error for path outside base")
	}
}

func TestLocalFS_ReadDir_Sorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.py", "alpha.py", "main.py"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	lfs := filesystems.NewLocalFS()
	var names []string
	for entry, err := range lfs.ReadDir(dir) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		names = append(names, entry.Name())
	}

	expected := []string{"alpha.py", "main.py", "zeta.py"}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("entry %d: expected %q, got %q", i, expected[i], names[i])
		}
	}
}

func TestGetBasePath(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"./bot", "./bot"},
		{"file:///srv/bot", "/srv/bot"},
		{"github://acme/bot", "."},
		{"github://acme/mono/tree/main/services/bot", "services/bot"},
		{"git://github.com/acme/bot#v1", "."},
	}

	for _, tt := range tests {
		if got := filesystems.GetBasePath(tt.uri); got != tt.want {
			t.Errorf("GetBasePath(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
