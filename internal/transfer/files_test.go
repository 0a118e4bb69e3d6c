package transfer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lanbeam/internal/apperr"

	exp "golang.org/x/exp/rand"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", "report.pdf", "report.pdf", true},
		{"leading space", "  notes.txt", "notes.txt", true},
		{"strips directories", "/etc/passwd", "passwd", true},
		{"strips relative path", "a/b/c.bin", "c.bin", true},
		{"traversal collapses", "../../secret", "secret", true},
		{"empty", "", "", false},
		{"dot", ".", "", false},
		{"dotdot", "..", "", false},
		{"only slashes", "///", "", false},
		{"windows separator survives base", `..\..\boot.ini`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sanitizeName(tt.input)
			if tt.ok {
				if err != nil {
					t.Fatalf("sanitizeName(%q) error = %v", tt.input, err)
				}
				if got != tt.want {
					t.Errorf("sanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
				}
				return
			}
			if err == nil {
				t.Fatalf("sanitizeName(%q) = %q, want error", tt.input, got)
			}
			if !apperr.IsKind(err, apperr.Storage) {
				t.Errorf("sanitizeName(%q) error kind = %v, want storage", tt.input, err)
			}
		})
	}
}

func TestCreateFileFreshName(t *testing.T) {
	dir := t.TempDir()
	f, stored, err := createFile(dir, "a.txt")
	if err != nil {
		t.Fatalf("createFile() error = %v", err)
	}
	f.Close()
	if stored != "a.txt" {
		t.Errorf("stored name = %q, want a.txt", stored)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.txt")); err != nil {
		t.Errorf("created file missing: %v", err)
	}
}

func TestCreateFileCollisionKeepsExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, stored, err := createFile(dir, "a.txt")
	if err != nil {
		t.Fatalf("createFile() error = %v", err)
	}
	f.Close()

	if stored == "a.txt" {
		t.Fatal("collision produced the original name")
	}
	if !strings.HasPrefix(stored, "a-") || !strings.HasSuffix(stored, ".txt") {
		t.Errorf("stored name = %q, want a-<suffix>.txt", stored)
	}
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	if err != nil || string(data) != "existing" {
		t.Errorf("original file disturbed: %q, %v", data, err)
	}
}

func TestCreateFileCollisionWithoutExtension(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "payload"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	f, stored, err := createFile(dir, "payload")
	if err != nil {
		t.Fatalf("createFile() error = %v", err)
	}
	f.Close()
	if !strings.HasPrefix(stored, "payload-") {
		t.Errorf("stored name = %q, want payload-<suffix>", stored)
	}
}

func TestCollisionSuffixSourceIsSeeded(t *testing.T) {
	unseeded := exp.New(exp.NewSource(1))
	matches := 0
	for i := 0; i < 8; i++ {
		if exp.Intn(10000) == unseeded.Intn(10000) {
			matches++
		}
	}
	if matches == 8 {
		t.Error("suffix source follows the default unseeded sequence")
	}
}

func TestSHA256Verifier(t *testing.T) {
	v := SHA256()
	if v.Name() != "sha256" {
		t.Errorf("Name() = %q", v.Name())
	}
	sum, err := v.Sum(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Sum() error = %v", err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if sum != want {
		t.Errorf("Sum() = %s, want %s", sum, want)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "h.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	fileSum, err := FileChecksum(v, path)
	if err != nil {
		t.Fatalf("FileChecksum() error = %v", err)
	}
	if fileSum != want {
		t.Errorf("FileChecksum() = %s, want %s", fileSum, want)
	}
}
