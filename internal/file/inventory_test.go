package file

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"report.txt", "report.txt", true},
		{"../../etc/passwd", "passwd", true},
		{"..\\..\\boot.ini", "boot.ini", true},
		{"dir/sub/notes.md", "notes.md", true},
		{"..", "", false},
		{".", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, err := sanitizeName(tt.raw)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("sanitizeName(%q) = %q, %v; want %q", tt.raw, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("sanitizeName(%q) = %q, want error", tt.raw, got)
		}
	}
}

func TestCreateUniqueAppendsSuffixBeforeExtension(t *testing.T) {
	inv := NewInventory(t.TempDir())

	want := []string{"report.txt", "report_1.txt", "report_2.txt"}
	for _, expected := range want {
		f, name, err := inv.CreateUnique("report.txt")
		if err != nil {
			t.Fatalf("CreateUnique: %v", err)
		}
		f.Close()
		if name != expected {
			t.Errorf("CreateUnique gave %q, want %q", name, expected)
		}
	}
}

func TestCreateUniqueWithoutExtension(t *testing.T) {
	inv := NewInventory(t.TempDir())

	for _, expected := range []string{"README", "README_1"} {
		f, name, err := inv.CreateUnique("README")
		if err != nil {
			t.Fatalf("CreateUnique: %v", err)
		}
		f.Close()
		if name != expected {
			t.Errorf("CreateUnique gave %q, want %q", name, expected)
		}
	}
}

func TestRescanListsRegularFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	inv := NewInventory(dir)
	if err := inv.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	got := inv.List()
	if len(got) != 2 || got[0] != "a.txt" || got[1] != "b.txt" {
		t.Errorf("List() = %v, want [a.txt b.txt]", got)
	}
}
