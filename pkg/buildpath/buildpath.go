// Package buildpath derives the canonical artifact paths for a node
// from its source location, the build root and its name. Two nodes
// with the same inputs always resolve to the same paths; artifacts are
// addressed by name, not by content hash.
package buildpath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths is the full set of filesystem locations derived for one node.
type Paths struct {
	// ScadFile is the description file fed to the external renderer.
	ScadFile string
	// StlFile is the binary mesh artifact produced by the renderer.
	StlFile string
	// MeshScadFile and MeshStlFile are the with-transforms variants
	// used for spatial queries.
	MeshScadFile string
	MeshStlFile  string
	// LockFile guards renderer invocations for StlFile.
	LockFile string
	// LocalStl is the bare artifact filename, used to build relative
	// import paths.
	LocalStl string
	// BaseDir is the directory of the node's source file.
	BaseDir string
	// BuildDir is the output directory mirroring BaseDir under the
	// build root.
	BuildDir string
}

// Resolve computes the derived paths for a node. Pure: no filesystem
// access. The source directory is mirrored under the build root, with
// any absolute prefix stripped so that all output stays inside it.
func Resolve(src, buildRoot, name string) Paths {
	src = filepath.Clean(src)
	baseDir := filepath.Dir(src)

	rel := baseDir
	if filepath.IsAbs(rel) {
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
	}
	buildDir := filepath.Join(buildRoot, rel)

	script := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	basename := script
	if name != "" {
		basename = script + "-" + name
	}
	base := filepath.Join(buildDir, basename)

	return Paths{
		ScadFile:     base + ".scad",
		StlFile:      base + ".stl",
		MeshScadFile: base + ".mesh.scad",
		MeshStlFile:  base + ".mesh.stl",
		LockFile:     base + ".stl.lock",
		LocalStl:     basename + ".stl",
		BaseDir:      baseDir,
		BuildDir:     buildDir,
	}
}

// ImportPath returns the path used to import the binary artifact from
// a description generated relative to root.
func (p Paths) ImportPath(root string) string {
	rel, err := filepath.Rel(root, p.BaseDir)
	if err != nil {
		return filepath.Join(p.BaseDir, p.LocalStl)
	}
	return filepath.Join(rel, p.LocalStl)
}

// EnvError reports a build environment problem, such as an output
// directory that cannot be created.
type EnvError struct {
	Dir string
	Err error
}

func (e *EnvError) Error() string {
	return fmt.Sprintf("build environment: %s: %v", e.Dir, e.Err)
}

func (e *EnvError) Unwrap() error { return e.Err }

// EnsureBuildDirs creates the output directory chain for p. Anything
// other than the directories already existing is an *EnvError.
func (p Paths) EnsureBuildDirs() error {
	if err := os.MkdirAll(p.BuildDir, 0o755); err != nil {
		return &EnvError{Dir: p.BuildDir, Err: err}
	}
	return nil
}
