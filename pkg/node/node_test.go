package node

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/chazu/burl/pkg/mesh"
	"github.com/chazu/burl/pkg/scad"
	"github.com/chazu/burl/pkg/stale"
)

// stubDef is a scripted Definition that counts render calls.
type stubDef struct {
	obj     scad.Object
	renders int
}

func (d *stubDef) Render(children []scad.Object) (RawModel, error) {
	d.renders++
	if len(children) == 0 {
		return d.obj, nil
	}
	all := append([]scad.Object{d.obj}, children...)
	return scad.Union(all...), nil
}

func (d *stubDef) Validate(raw RawModel) error { return nil }

func (d *stubDef) AsDescription(raw RawModel) (scad.Object, error) {
	return raw.(scad.Object), nil
}

var srcTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// writeSrc creates a source file with a fixed mtime so stamps are
// deterministic.
func writeSrc(t *testing.T, dir string, mtime time.Time) string {
	t.Helper()
	src := filepath.Join(dir, "part.burl")
	if err := os.WriteFile(src, []byte("(defnode ...)"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(src, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return src
}

func newTestNode(t *testing.T, name string, opts ...Option) (*Node, *stubDef) {
	t.Helper()
	dir := t.TempDir()
	src := writeSrc(t, dir, srcTime)
	def := &stubDef{obj: &scad.Cube{X: 1, Y: 2, Z: 3}}
	n, err := New(name, src, filepath.Join(dir, "_build"), def, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n, def
}

func TestNewRequiresNameAndDefinition(t *testing.T) {
	dir := t.TempDir()
	src := writeSrc(t, dir, srcTime)
	if _, err := New("", src, dir, &stubDef{}); err == nil {
		t.Error("expected error for empty name")
	}
	if _, err := New("part", src, dir, nil); err == nil {
		t.Error("expected error for nil definition")
	}
}

func TestAssembleOnce(t *testing.T) {
	n, def := newTestNode(t, "part")

	first, err := n.Assemble("")
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := n.Assemble("")
	if err != nil {
		t.Fatalf("second Assemble: %v", err)
	}
	if def.renders != 1 {
		t.Errorf("Render called %d times, want 1", def.renders)
	}
	if first != second {
		t.Error("repeat Assemble returned a different object")
	}
}

func TestAssembleStampsDescription(t *testing.T) {
	n, _ := newTestNode(t, "part")
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(n.Paths().ScadFile)
	if err != nil {
		t.Fatalf("description not written: %v", err)
	}
	if !info.ModTime().Equal(srcTime) {
		t.Errorf("description stamp = %v, want %v", info.ModTime(), srcTime)
	}

	data, _ := os.ReadFile(n.Paths().ScadFile)
	if want := "cube([1, 2, 3]);\n"; string(data) != want {
		t.Errorf("description = %q, want %q", data, want)
	}
}

func TestAssembleWithoutBinaryKeepsModel(t *testing.T) {
	n, _ := newTestNode(t, "part")
	assembled, err := n.Assemble("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := assembled.(*scad.Import); ok {
		t.Error("assembled to an import with no binary artifact present")
	}
}

func TestRigidReuseImportsArtifact(t *testing.T) {
	n, _ := newTestNode(t, "part")
	logical, err := n.LogicalTime()
	if err != nil {
		t.Fatal(err)
	}
	// Simulate an earlier successful build of the binary artifact.
	if err := os.WriteFile(n.Paths().StlFile, []byte("solid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := stale.Stamp(n.Paths().StlFile, logical); err != nil {
		t.Fatal(err)
	}

	assembled, err := n.Assemble("")
	if err != nil {
		t.Fatal(err)
	}
	imp, ok := assembled.(*scad.Import)
	if !ok {
		t.Fatalf("assembled = %T, want *scad.Import", assembled)
	}
	if imp.Path == "" {
		t.Error("import path is empty")
	}

	job, err := n.GenerateBinary(Renderer{Command: "/bin/false"})
	if err != nil {
		t.Fatalf("GenerateBinary: %v", err)
	}
	if job != nil {
		t.Error("up-to-date artifact still scheduled a render")
	}
}

func TestStaleArtifactNotReused(t *testing.T) {
	dir := t.TempDir()
	src := writeSrc(t, dir, srcTime)
	buildRoot := filepath.Join(dir, "_build")

	n, err := New("part", src, buildRoot, &stubDef{obj: &scad.Sphere{R: 1}})
	if err != nil {
		t.Fatal(err)
	}
	logical, _ := n.LogicalTime()
	if err := os.WriteFile(n.Paths().StlFile, []byte("solid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := stale.Stamp(n.Paths().StlFile, logical); err != nil {
		t.Fatal(err)
	}

	// Edit the source: the artifact stamp no longer matches.
	if err := os.Chtimes(src, srcTime.Add(time.Hour), srcTime.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	fresh, err := New("part", src, buildRoot, &stubDef{obj: &scad.Sphere{R: 1}})
	if err != nil {
		t.Fatal(err)
	}
	assembled, err := fresh.Assemble("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := assembled.(*scad.Import); ok {
		t.Error("stale artifact was reused")
	}
}

func TestNonRigidNeverRenders(t *testing.T) {
	n, _ := newTestNode(t, "part", NonRigid())
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}
	job, err := n.GenerateBinary(Renderer{Command: "/bin/false"})
	if err != nil {
		t.Fatalf("GenerateBinary: %v", err)
	}
	if job != nil {
		t.Error("non-rigid node scheduled a render")
	}
}

func TestOperationsApplyInOrder(t *testing.T) {
	n, _ := newTestNode(t, "part")
	n.Rotate(90, scad.AxisZ).Translate(scad.Vec3{X: 5})

	assembled, err := n.Assemble("")
	if err != nil {
		t.Fatal(err)
	}
	// First queued operation sits innermost.
	trans, ok := assembled.(*scad.Translation)
	if !ok {
		t.Fatalf("outermost = %T, want *scad.Translation", assembled)
	}
	if _, ok := trans.Child.(*scad.Rotation); !ok {
		t.Fatalf("inner = %T, want *scad.Rotation", trans.Child)
	}
}

func TestChildFilesPropagate(t *testing.T) {
	childDir := t.TempDir()
	childSrc := writeSrc(t, childDir, srcTime)
	child, err := New("wheel", childSrc, filepath.Join(childDir, "_build"), &stubDef{obj: &scad.Sphere{R: 1}})
	if err != nil {
		t.Fatal(err)
	}

	parentDir := t.TempDir()
	parentSrc := writeSrc(t, parentDir, srcTime.Add(time.Minute))
	parent, err := New("car", parentSrc, filepath.Join(parentDir, "_build"),
		&stubDef{obj: &scad.Cube{X: 1, Y: 1, Z: 1}}, WithChildren(child))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parent.Assemble(""); err != nil {
		t.Fatal(err)
	}

	files := parent.Files()
	if len(files) != 2 {
		t.Fatalf("contributing files = %v, want both sources", files)
	}
	logical, err := parent.LogicalTime()
	if err != nil {
		t.Fatal(err)
	}
	if !logical.Equal(srcTime.Add(time.Minute)) {
		t.Errorf("logical time = %v, want max of sources", logical)
	}
}

// stubRenderer writes an executable shell script standing in for the
// external renderer. It is invoked as: script <scad> -o <stl>.
func stubRenderer(t *testing.T, script string) Renderer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "renderer.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return Renderer{Command: path}
}

func TestGenerateBinarySuccess(t *testing.T) {
	n, _ := newTestNode(t, "part")
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}

	r := stubRenderer(t, "#!/bin/sh\ncp \"$1\" \"$3\"\n")
	job, err := n.GenerateBinary(r)
	if err != nil {
		t.Fatalf("GenerateBinary: %v", err)
	}
	if job == nil {
		t.Fatal("expected a pending job")
	}
	if job.Pid() <= 0 {
		t.Errorf("job pid = %d", job.Pid())
	}
	if err := job.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	info, err := os.Stat(n.Paths().StlFile)
	if err != nil {
		t.Fatalf("binary artifact missing: %v", err)
	}
	if !info.ModTime().Equal(job.Stamp) {
		t.Errorf("artifact stamp = %v, want %v", info.ModTime(), job.Stamp)
	}
	if _, err := os.Stat(n.Paths().LockFile); !os.IsNotExist(err) {
		t.Error("render lock not released")
	}
}

func TestGenerateBinaryFailureReleasesLock(t *testing.T) {
	n, _ := newTestNode(t, "part")
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}

	r := stubRenderer(t, "#!/bin/sh\nexit 1\n")
	job, err := n.GenerateBinary(r)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil {
		t.Fatal("expected a pending job")
	}

	var rerr *RenderError
	if err := job.Wait(); !errors.As(err, &rerr) {
		t.Fatalf("Wait = %v, want *RenderError", err)
	}
	if _, err := os.Stat(n.Paths().LockFile); !os.IsNotExist(err) {
		t.Error("render lock not released after failure")
	}
}

func TestGenerateBinarySkipsHeldLock(t *testing.T) {
	n, _ := newTestNode(t, "part")
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}

	// A live pid in the lock file means another writer owns the render.
	if err := os.WriteFile(n.Paths().LockFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}

	job, err := n.GenerateBinary(stubRenderer(t, "#!/bin/sh\ncp \"$1\" \"$3\"\n"))
	if err != nil {
		t.Fatalf("GenerateBinary: %v", err)
	}
	if job != nil {
		t.Error("render started despite a held lock")
	}
}

func TestRenderTreeBuildsChildrenFirst(t *testing.T) {
	childDir := t.TempDir()
	childSrc := writeSrc(t, childDir, srcTime)
	child, err := New("wheel", childSrc, filepath.Join(childDir, "_build"), &stubDef{obj: &scad.Sphere{R: 1}})
	if err != nil {
		t.Fatal(err)
	}
	parentDir := t.TempDir()
	parentSrc := writeSrc(t, parentDir, srcTime)
	parent, err := New("car", parentSrc, filepath.Join(parentDir, "_build"),
		&stubDef{obj: &scad.Cube{X: 1, Y: 1, Z: 1}}, WithChildren(child))
	if err != nil {
		t.Fatal(err)
	}

	r := stubRenderer(t, "#!/bin/sh\ncp \"$1\" \"$3\"\n")
	job, err := parent.RenderTree(r)
	if err != nil {
		t.Fatalf("RenderTree: %v", err)
	}
	if job == nil {
		t.Fatal("expected a pending job for the child")
	}
	if job.StlFile != child.Paths().StlFile {
		t.Errorf("first job renders %s, want the child artifact", job.StlFile)
	}
	if err := job.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestMeshWithOperations(t *testing.T) {
	n, _ := newTestNode(t, "part")
	if _, err := n.Assemble(""); err != nil {
		t.Fatal(err)
	}
	box := mesh.Box(mesh.Vec3{}, mesh.Vec3{X: 1, Y: 1, Z: 1})
	if err := box.SaveBinary(n.Paths().StlFile); err != nil {
		t.Fatal(err)
	}
	n.Translate(scad.Vec3{X: 10})

	cache := mesh.NewCache()
	m, err := n.MeshWithOperations(cache)
	if err != nil {
		t.Fatalf("MeshWithOperations: %v", err)
	}
	min, _ := m.BoundingBox()
	if min.X < 9.9 {
		t.Errorf("translation not applied, min.X = %g", min.X)
	}

	// The cached original stays untouched.
	orig, err := cache.Load(n.Paths().StlFile)
	if err != nil {
		t.Fatal(err)
	}
	omin, _ := orig.BoundingBox()
	if omin.X > 0.1 {
		t.Error("operations leaked into the cached mesh")
	}
}
