package security

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/vinodismyname/kpibrief/pkg/mcperr"
)

func mustTempDir(t *testing.T) string {
	t.Helper()
	d := t.TempDir()
	// Ensure real path (EvalSymlinks on macOS can change /var -> /private/var)
	real, err := filepath.EvalSymlinks(d)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	return real
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestNewManager_ValidateConfig(t *testing.T) {
	dir := mustTempDir(t)
	m, err := NewManager([]string{dir}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.ValidateConfig(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	if got := len(m.AllowedDirectories()); got != 1 {
		t.Fatalf("allowed dirs len = %d, want 1", got)
	}

	empty, err := NewManager(nil, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := empty.ValidateConfig(); err == nil {
		t.Fatalf("expected error for empty allow-list")
	}
}

func TestValidateOpenPath_AllowsSpreadsheetsWithinRoot(t *testing.T) {
	root := mustTempDir(t)
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m, err := NewManager([]string{root}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, name := range []string{"orders.xlsx", "orders.csv"} {
		fpath := filepath.Join(sub, name)
		writeFile(t, fpath)
		got, err := m.ValidateOpenPath(fpath)
		if err != nil {
			t.Fatalf("validate %s: %v", name, err)
		}
		if !filepath.IsAbs(got) {
			t.Fatalf("expected absolute path, got %q", got)
		}
	}
}

func TestValidateOpenPath_DeniesOutsideRoot(t *testing.T) {
	root := mustTempDir(t)
	outside := filepath.Join(mustTempDir(t), "escape.xlsx")
	writeFile(t, outside)

	m, err := NewManager([]string{root}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = m.ValidateOpenPath(outside)
	if !errors.Is(err, mcperr.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestValidateOpenPath_SymlinkEscapeDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test skipped on Windows")
	}
	root := mustTempDir(t)
	target := filepath.Join(mustTempDir(t), "target.xlsx")
	writeFile(t, target)
	link := filepath.Join(root, "link.xlsx")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	m, err := NewManager([]string{root}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.ValidateOpenPath(link); err == nil {
		t.Fatalf("expected error for symlink escape")
	}
}

func TestValidateOpenPath_UnsupportedExtAndMissing(t *testing.T) {
	root := mustTempDir(t)
	fp := filepath.Join(root, "bad.txt")
	writeFile(t, fp)

	m, err := NewManager([]string{root}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.ValidateOpenPath(fp); !errors.Is(err, mcperr.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if _, err := m.ValidateOpenPath(filepath.Join(root, "gone.xlsx")); !errors.Is(err, mcperr.ErrInputNotFound) {
		t.Fatalf("expected input not found, got %v", err)
	}
}

func TestForFile(t *testing.T) {
	root := mustTempDir(t)
	fp := filepath.Join(root, "data.xlsx")
	writeFile(t, fp)

	m, err := ForFile(fp)
	if err != nil {
		t.Fatalf("for file: %v", err)
	}
	if _, err := m.ValidateOpenPath(fp); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := ForFile(filepath.Join(root, "missing", "x.xlsx")); !errors.Is(err, mcperr.ErrInputNotFound) {
		t.Fatalf("expected input not found, got %v", err)
	}
}

func TestValidateOutputDir(t *testing.T) {
	root := mustTempDir(t)
	out := filepath.Join(root, "reports")
	if err := os.Mkdir(out, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m, err := NewManager([]string{root}, nil)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, dir := range []string{root, out} {
		got, err := m.ValidateOutputDir(dir)
		if err != nil || got != dir {
			t.Fatalf("ValidateOutputDir(%q) = %q, %v", dir, got, err)
		}
	}
	if _, err := m.ValidateOutputDir(mustTempDir(t)); !errors.Is(err, mcperr.ErrNotAllowed) {
		t.Fatalf("expected not allowed, got %v", err)
	}
	if _, err := m.ValidateOutputDir(filepath.Join(root, "missing")); !errors.Is(err, mcperr.ErrInputNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	fp := filepath.Join(root, "a.xlsx")
	writeFile(t, fp)
	if _, err := m.ValidateOutputDir(fp); !errors.Is(err, mcperr.ErrNotAllowed) {
		t.Fatalf("expected not allowed for a file, got %v", err)
	}
}
