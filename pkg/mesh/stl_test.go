package mesh

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBinaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.stl")
	orig := Box(Vec3{0, 0, 0}, Vec3{2, 3, 4})

	if err := orig.SaveBinary(path); err != nil {
		t.Fatalf("SaveBinary: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Triangles) != len(orig.Triangles) {
		t.Fatalf("triangle count = %d, want %d", len(loaded.Triangles), len(orig.Triangles))
	}
	// float32 storage loses a little precision.
	if !almostEqual(loaded.Volume(), 24, 1e-3) {
		t.Errorf("round-tripped volume = %g, want 24", loaded.Volume())
	}
}

func TestLoadASCII(t *testing.T) {
	src := `solid tetra
facet normal 0 0 -1
  outer loop
    vertex 0 0 0
    vertex 1 0 0
    vertex 0 1 0
  endloop
endfacet
facet normal 0 -1 0
  outer loop
    vertex 0 0 0
    vertex 0 0 1
    vertex 1 0 0
  endloop
endfacet
facet normal -1 0 0
  outer loop
    vertex 0 0 0
    vertex 0 1 0
    vertex 0 0 1
  endloop
endfacet
facet normal 1 1 1
  outer loop
    vertex 1 0 0
    vertex 0 0 1
    vertex 0 1 0
  endloop
endfacet
endsolid tetra
`
	path := filepath.Join(t.TempDir(), "tetra.stl")
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(m.Triangles) != 4 {
		t.Fatalf("triangle count = %d, want 4", len(m.Triangles))
	}
	// Unit right tetrahedron volume is 1/6.
	if !almostEqual(m.Volume(), 1.0/6.0, 1e-9) {
		t.Errorf("volume = %g, want %g", m.Volume(), 1.0/6.0)
	}
}

func TestLoadASCIITruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.stl")
	src := "solid x\nvertex 0 0 0\nvertex 1 0 0\nendsolid x\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for dangling vertices")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "gone.stl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCacheLoadsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.stl")
	if err := Box(Vec3{0, 0, 0}, Vec3{1, 1, 1}).SaveBinary(path); err != nil {
		t.Fatal(err)
	}

	c := NewCache()
	first, err := c.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Replace the file; the cache must still serve the first read.
	if err := Box(Vec3{0, 0, 0}, Vec3{9, 9, 9}).SaveBinary(path); err != nil {
		t.Fatal(err)
	}
	second, err := c.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Error("cache re-read the artifact")
	}

	// Eviction forces a re-read.
	c.Evict(path)
	third, err := c.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("evicted entry still served")
	}
	if !almostEqual(third.Volume(), 729, 1e-2) {
		t.Errorf("reloaded volume = %g, want 729", third.Volume())
	}
}

func TestCopyIsIndependent(t *testing.T) {
	orig := Box(Vec3{0, 0, 0}, Vec3{1, 1, 1})
	cp := orig.Copy()
	cp.Translate(Vec3{100, 0, 0})

	min, _ := orig.BoundingBox()
	if min.X != 0 {
		t.Error("mutating a copy moved the original")
	}
}
