package lockfile

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	h1 := Hash([]byte("msgid \"Quotation\""))
	h2 := Hash([]byte("msgid \"Quotation\""))
	if h1 != h2 {
		t.Errorf("Hash not deterministic: %s != %s", h1, h2)
	}
	if h1 == Hash([]byte("msgid \"Order\"")) {
		t.Errorf("Hash collision: %s", h1)
	}
}

func TestLoadNonExistent(t *testing.T) {
	lf, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load returned error for non-existent file: %v", err)
	}
	if lf.Version != Version {
		t.Errorf("Version = %d, want %d", lf.Version, Version)
	}
	if len(lf.Checksums) != 0 {
		t.Errorf("Checksums not empty: %v", lf.Checksums)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	lf, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	fr := map[string]string{TemplateKey: "aaa", CatalogKey: "bbb"}
	lf.Update("fr", fr)
	lf.Update("de", map[string]string{TemplateKey: "aaa", CatalogKey: "ccc"})
	if err := lf.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	lf2, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after save: %v", err)
	}
	if !reflect.DeepEqual(lf2.Checksums["fr"], fr) {
		t.Fatalf("fr checksums = %v, want %v", lf2.Checksums["fr"], fr)
	}
	if got := lf2.Languages(); !reflect.DeepEqual(got, []string{"de", "fr"}) {
		t.Fatalf("Languages() = %v", got)
	}
	if lf2.Path() != filepath.Join(dir, LockFileName) {
		t.Fatalf("Path() = %s", lf2.Path())
	}
}

func TestUnchanged(t *testing.T) {
	lf, _ := Load(t.TempDir())
	sums := map[string]string{TemplateKey: "aaa", CatalogKey: "bbb"}

	if lf.Unchanged("fr", sums) {
		t.Fatal("unrecorded language reported unchanged")
	}
	lf.Update("fr", sums)
	if !lf.Unchanged("fr", sums) {
		t.Fatal("recorded checksums reported changed")
	}
	if lf.Unchanged("fr", map[string]string{TemplateKey: "aaa", CatalogKey: "zzz"}) {
		t.Fatal("edited catalog reported unchanged")
	}
	if lf.Unchanged("fr", nil) {
		t.Fatal("empty checksums reported unchanged")
	}
}

func TestCleanAndEmptySave(t *testing.T) {
	dir := t.TempDir()
	lf, _ := Load(dir)
	lf.Update("fr", map[string]string{CatalogKey: "x"})
	lf.Update("de", map[string]string{CatalogKey: "y"})
	lf.Clean([]string{"fr"})
	if got := lf.Languages(); !reflect.DeepEqual(got, []string{"fr"}) {
		t.Fatalf("Languages() after Clean = %v", got)
	}
	if err := lf.Save(); err != nil {
		t.Fatal(err)
	}

	lf.Clean(nil)
	if err := lf.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(lf.Path()); !os.IsNotExist(err) {
		t.Fatalf("empty lock file should be removed, stat err = %v", err)
	}
}

func TestVersionMismatchDiscards(t *testing.T) {
	dir := t.TempDir()
	body := "version: 99\nchecksums:\n  fr:\n    catalog: abc\n"
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	lf, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(lf.Checksums) != 0 {
		t.Fatalf("checksums of another version kept: %v", lf.Checksums)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LockFileName), []byte("version: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected a parse error")
	}
}
