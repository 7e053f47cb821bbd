package pipeline_test

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/xraph/jobgraph/pipeline"
)

func tarEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	tr := tar.NewReader(gz)
	out := make(map[string]string)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar next: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		out[hdr.Name] = string(data)
	}
	return out
}

func TestTarball(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "adtex_out")
	if err := os.MkdirAll(filepath.Join(src, "cnv"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "summary.txt"), []byte("ploidy 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "cnv", "calls.txt"), []byte("chr1 gain"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "s1.tgz")
	if err := pipeline.Tarball(dst, src); err != nil {
		t.Fatalf("Tarball: %v", err)
	}

	entries := tarEntries(t, dst)
	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)
	want := []string{"adtex_out/", "adtex_out/cnv/", "adtex_out/cnv/calls.txt", "adtex_out/summary.txt"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entries = %v, want %v", names, want)
		}
	}
	if entries["adtex_out/cnv/calls.txt"] != "chr1 gain" {
		t.Errorf("calls.txt = %q", entries["adtex_out/cnv/calls.txt"])
	}
}

func TestTarball_MissingSource(t *testing.T) {
	dir := t.TempDir()
	if err := pipeline.Tarball(filepath.Join(dir, "out.tgz"), filepath.Join(dir, "absent")); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(filepath.Join(dir, "out.tgz")); !os.IsNotExist(err) {
		t.Errorf("partial archive left behind: %v", err)
	}
}
