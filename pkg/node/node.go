// Package node implements the per-node build lifecycle: assembling an
// in-memory model, generating its description file stamped with the
// logical time of its sources, and reusing or regenerating its binary
// artifact through the external renderer.
package node

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/chazu/burl/pkg/buildpath"
	"github.com/chazu/burl/pkg/mesh"
	"github.com/chazu/burl/pkg/scad"
	"github.com/chazu/burl/pkg/stale"
)

// RawModel is the opaque output of a Definition's Render step, before
// validation and conversion to a description.
type RawModel = any

// Definition supplies the geometry behavior of a node. Implementations
// live outside the build machinery (the script engine, tests).
type Definition interface {
	// Render produces the raw model. The assembled models of the
	// node's children are supplied in child order.
	Render(children []scad.Object) (RawModel, error)
	// Validate rejects malformed geometry. Errors propagate and abort
	// assembly.
	Validate(raw RawModel) error
	// AsDescription converts the raw model to a description object.
	AsDescription(raw RawModel) (scad.Object, error)
}

// Node is one buildable geometry unit with its own description and
// binary artifact pair.
type Node struct {
	name     string
	src      string
	def      Definition
	rigid    bool
	children []*Node
	ops      []Operation

	paths buildpath.Paths
	files map[string]struct{}
	root  string

	model     scad.Object // description before the import decision
	assembled scad.Object
	done      bool

	logger zerolog.Logger
}

// Option configures a Node at construction.
type Option func(*Node)

// NonRigid marks the node as never reusing or writing a binary
// artifact; its in-memory model is always used directly.
func NonRigid() Option {
	return func(n *Node) { n.rigid = false }
}

// WithChildren attaches child nodes, in build order. Each child is
// exclusively owned by its parent.
func WithChildren(children ...*Node) Option {
	return func(n *Node) { n.children = append(n.children, children...) }
}

// WithLogger routes the node's progress lines to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Node) { n.logger = logger }
}

// New constructs a node. The name is required: it uniquely identifies
// one parameterization of the source's geometry and becomes part of
// every derived artifact path. The output directory chain is created
// here; a failure to create it aborts construction.
func New(name, src, buildRoot string, def Definition, opts ...Option) (*Node, error) {
	if name == "" {
		return nil, fmt.Errorf("node: name is required")
	}
	if def == nil {
		return nil, fmt.Errorf("node %s: definition is required", name)
	}

	n := &Node{
		name:   name,
		src:    src,
		def:    def,
		rigid:  true,
		paths:  buildpath.Resolve(src, buildRoot, name),
		files:  map[string]struct{}{src: {}},
		logger: zerolog.Nop(),
	}
	n.root = n.paths.BaseDir

	for _, opt := range opts {
		opt(n)
	}

	if err := n.paths.EnsureBuildDirs(); err != nil {
		return nil, err
	}
	return n, nil
}

// Name returns the node's identity.
func (n *Node) Name() string { return n.name }

// Src returns the node's source location.
func (n *Node) Src() string { return n.src }

// Rigid reports whether the node's binary artifact may be cached.
func (n *Node) Rigid() bool { return n.rigid }

// Children returns the node's children in build order.
func (n *Node) Children() []*Node { return n.children }

// Paths returns the node's derived artifact paths.
func (n *Node) Paths() buildpath.Paths { return n.paths }

// Files returns the contributing source files gathered so far, sorted.
// The set grows as children participate in assembly and never shrinks.
func (n *Node) Files() []string {
	out := make([]string, 0, len(n.files))
	for f := range n.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// LogicalTime returns the maximum mtime across the node's contributing
// files. It is the stamp written onto generated artifacts.
func (n *Node) LogicalTime() (time.Time, error) {
	return stale.LogicalTime(n.Files())
}

// Rotate queues a rotation to apply after assembly. Returns the node
// for chaining.
func (n *Node) Rotate(angle float64, axis scad.Vec3) *Node {
	n.ops = append(n.ops, Rotation{Angle: angle, Axis: axis})
	return n
}

// Translate queues a translation to apply after assembly. Returns the
// node for chaining.
func (n *Node) Translate(offset scad.Vec3) *Node {
	n.ops = append(n.ops, Translation{Offset: offset})
	return n
}

// Operations returns the queued post-assembly operations in order.
func (n *Node) Operations() []Operation { return n.ops }

// Assemble renders this node and returns an optimized model with all
// queued operations applied. Assembly happens at most once; repeat
// calls return the cached result. root anchors relative artifact
// imports; pass "" at the top of a tree to anchor at this node's
// source directory.
func (n *Node) Assemble(root string) (scad.Object, error) {
	if n.done {
		return n.assembled, nil
	}
	if root != "" {
		n.root = root
	}

	childModels := make([]scad.Object, 0, len(n.children))
	for _, c := range n.children {
		m, err := c.Assemble(n.root)
		if err != nil {
			return nil, err
		}
		childModels = append(childModels, m)
		for f := range c.files {
			n.files[f] = struct{}{}
		}
	}

	raw, err := n.def.Render(childModels)
	if err != nil {
		return nil, fmt.Errorf("node %s: render: %w", n.name, err)
	}
	if err := n.def.Validate(raw); err != nil {
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}
	model, err := n.def.AsDescription(raw)
	if err != nil {
		return nil, fmt.Errorf("node %s: describe: %w", n.name, err)
	}
	n.model = model

	if err := n.generateDescription(); err != nil {
		return nil, err
	}

	assembled, err := n.importOptimized()
	if err != nil {
		return nil, err
	}
	for _, op := range n.ops {
		assembled = op.applyDescription(assembled)
	}

	n.assembled = assembled
	n.done = true
	return assembled, nil
}

// Model returns the node's own description object, before the
// reuse-vs-rebuild import decision and before operations. Nil until
// assembled. The preview path uses it, since imports cannot be
// evaluated in-process.
func (n *Node) Model() scad.Object { return n.model }

// generateDescription writes the description file and stamps it with
// the logical time, so a later up-to-date check compares stamps
// rather than wall clocks.
func (n *Node) generateDescription() error {
	code := scad.Render(n.model)
	logical, err := n.LogicalTime()
	if err != nil {
		return fmt.Errorf("node %s: %w", n.name, err)
	}
	if err := os.WriteFile(n.paths.ScadFile, []byte(code), 0o644); err != nil {
		return fmt.Errorf("node %s: %w", n.name, err)
	}
	if err := stale.Stamp(n.paths.ScadFile, logical); err != nil {
		return fmt.Errorf("node %s: %w", n.name, err)
	}
	n.logger.Info().
		Str("file", n.paths.ScadFile).
		Time("stamp", logical).
		Msg("description generated")
	return nil
}

// importOptimized decides between reusing the built binary artifact
// and the freshly assembled in-memory model. Reuse requires the node
// to be rigid and the artifact stamp to match the logical time
// exactly.
func (n *Node) importOptimized() (scad.Object, error) {
	logical, err := n.LogicalTime()
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}
	if n.rigid && stale.UpToDate(n.paths.StlFile, logical) {
		return &scad.Import{Path: n.paths.ImportPath(n.root)}, nil
	}
	return n.model, nil
}

// MeshWithOperations loads the node's binary artifact through the
// cache and applies the queued operations to a private copy.
func (n *Node) MeshWithOperations(cache *mesh.Cache) (*mesh.Mesh, error) {
	loaded, err := cache.Load(n.paths.StlFile)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.name, err)
	}
	m := loaded.Copy()
	for _, op := range n.ops {
		if err := op.applyMesh(m); err != nil {
			return nil, fmt.Errorf("node %s: %w", n.name, err)
		}
	}
	return m, nil
}

// Intersects reports whether the built artifacts of two nodes share
// any volume, with each node's operations applied.
func (n *Node) Intersects(other *Node, cache *mesh.Cache) (bool, error) {
	a, err := n.MeshWithOperations(cache)
	if err != nil {
		return false, err
	}
	b, err := other.MeshWithOperations(cache)
	if err != nil {
		return false, err
	}
	return mesh.Intersects(a, b), nil
}
