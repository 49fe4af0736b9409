package engine

import (
	"fmt"
	"strings"

	zygo "github.com/glycerine/zygomys/zygo"

	"github.com/chazu/burl/pkg/node"
	"github.com/chazu/burl/pkg/scad"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpObj wraps a description object so geometry builtins can compose.
type sexpObj struct {
	obj scad.Object
}

func (o *sexpObj) SexpString(ps *zygo.PrintState) string {
	return "(geometry " + strings.TrimSpace(scad.Render(o.obj)) + ")"
}
func (o *sexpObj) Type() *zygo.RegisteredType { return nil }

// sexpNodeRef wraps a defined node so it can be attached as a child or
// given queued operations.
type sexpNodeRef struct {
	n *node.Node
}

func (r *sexpNodeRef) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(noderef %q)", r.n.Name())
}
func (r *sexpNodeRef) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps a vector.
type sexpVec3 struct {
	vec scad.Vec3
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %.1f %.1f %.1f)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

// isKW checks whether a Sexp is a preprocessed keyword string and
// returns its name.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds a parsed mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// toFloat64 extracts a number from a Sexp. A non-numeric value is the
// type error the geometry builtins refuse to recover from.
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

func toBool(s zygo.Sexp) (bool, error) {
	if b, ok := s.(*zygo.SexpBool); ok {
		return b.Val, nil
	}
	return false, fmt.Errorf("expected bool, got %T (%s)", s, s.SexpString(nil))
}

// toAxis converts an axis keyword (:x, :y, :z) to a unit vector.
func toAxis(s zygo.Sexp) (scad.Vec3, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return scad.Vec3{}, fmt.Errorf("expected axis keyword (:x, :y, :z), got %T", s)
	}
	name := strings.TrimPrefix(str.S, kwPrefix)
	switch name {
	case "x":
		return scad.AxisX, nil
	case "y":
		return scad.AxisY, nil
	case "z":
		return scad.AxisZ, nil
	}
	return scad.Vec3{}, fmt.Errorf("invalid axis %q, expected x, y, or z", name)
}

func toObj(s zygo.Sexp) (scad.Object, error) {
	if o, ok := s.(*sexpObj); ok {
		return o.obj, nil
	}
	return nil, fmt.Errorf("expected geometry, got %T (%s)", s, s.SexpString(nil))
}

func toVec3(s zygo.Sexp) (scad.Vec3, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return scad.Vec3{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a Lisp list or array to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the geometry and node builtins into a
// zygomys environment, bound to the given evaluation state.
//
// Source must be preprocessed with preprocess() first so :keyword
// tokens arrive as marked string literals.
func registerBuiltins(env *zygo.Zlisp, st *evalState) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		x, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: x: %w", err)
		}
		y, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: y: %w", err)
		}
		z, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("vec3: z: %w", err)
		}
		return &sexpVec3{vec: scad.Vec3{X: x, Y: y, Z: z}}, nil
	})

	// -----------------------------------------------------------------------
	// (cube 100 20 10)
	// -----------------------------------------------------------------------
	env.AddFunction("cube", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("cube requires x y z dimensions, got %d arguments", len(args))
		}
		dims := [3]float64{}
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cube: %w", err)
			}
			dims[i] = f
		}
		return &sexpObj{obj: &scad.Cube{X: dims[0], Y: dims[1], Z: dims[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder height radius)
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("cylinder requires height and radius, got %d arguments", len(args))
		}
		h, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: height: %w", err)
		}
		r, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: radius: %w", err)
		}
		return &sexpObj{obj: &scad.Cylinder{H: h, R: r}}, nil
	})

	// -----------------------------------------------------------------------
	// (sphere radius)
	// -----------------------------------------------------------------------
	env.AddFunction("sphere", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("sphere requires a radius, got %d arguments", len(args))
		}
		r, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sphere: radius: %w", err)
		}
		return &sexpObj{obj: &scad.Sphere{R: r}}, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...) / (difference a b ...) / (intersection a b ...)
	// -----------------------------------------------------------------------
	boolBuiltin := func(combine func(...scad.Object) *scad.Boolean) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
		return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) == 0 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least one geometry argument", name)
			}
			objs := make([]scad.Object, 0, len(args))
			for i, a := range args {
				o, err := toObj(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
				}
				objs = append(objs, o)
			}
			return &sexpObj{obj: combine(objs...)}, nil
		}
	}
	env.AddFunction("union", boolBuiltin(scad.Union))
	env.AddFunction("difference", boolBuiltin(scad.Difference))
	env.AddFunction("intersection", boolBuiltin(scad.Intersection))

	// -----------------------------------------------------------------------
	// (translate (vec3 1 0 0) geometry)
	// -----------------------------------------------------------------------
	env.AddFunction("translate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("translate requires a vec3 and geometry, got %d arguments", len(args))
		}
		v, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		o, err := toObj(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("translate: %w", err)
		}
		return &sexpObj{obj: scad.Translate(v, o)}, nil
	})

	// -----------------------------------------------------------------------
	// (rotate 90 :z geometry)
	// -----------------------------------------------------------------------
	env.AddFunction("rotate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("rotate requires angle, axis and geometry, got %d arguments", len(args))
		}
		angle, err := toFloat64(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotate: angle: %w", err)
		}
		axis, err := toAxis(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
		}
		o, err := toObj(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("rotate: %w", err)
		}
		return &sexpObj{obj: scad.Rotate(angle, axis, o)}, nil
	})

	// -----------------------------------------------------------------------
	// (color "burlywood" geometry)
	// -----------------------------------------------------------------------
	env.AddFunction("color", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("color requires a name and geometry, got %d arguments", len(args))
		}
		cname, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("color: %w", err)
		}
		o, err := toObj(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("color: %w", err)
		}
		return &sexpObj{obj: &scad.Color{Name: cname, Child: o}}, nil
	})

	// -----------------------------------------------------------------------
	// (children): placeholder spliced with the assembled child models
	// of the node being defined.
	// -----------------------------------------------------------------------
	env.AddFunction("children", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 0 {
			return zygo.SexpNull, fmt.Errorf("children takes no arguments")
		}
		slot := &scad.Slot{}
		st.pendingSlots = append(st.pendingSlots, slot)
		return &sexpObj{obj: slot}, nil
	})

	// -----------------------------------------------------------------------
	// (defnode "name" :rigid false :children (list ref-or-name ...) body)
	// -----------------------------------------------------------------------
	env.AddFunction("defnode", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 2 {
			return zygo.SexpNull, fmt.Errorf("defnode requires a name and a body expression")
		}
		nodeName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defnode: name: %w", err)
		}
		if st.byName[nodeName] != nil {
			return zygo.SexpNull, fmt.Errorf("defnode: node %q already defined", nodeName)
		}
		body, err := toObj(pa.positional[len(pa.positional)-1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defnode %s: body: %w", nodeName, err)
		}

		opts := []node.Option{node.WithLogger(st.logger)}

		if v, ok := pa.kw["rigid"]; ok {
			rigid, err := toBool(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("defnode %s: rigid: %w", nodeName, err)
			}
			if !rigid {
				opts = append(opts, node.NonRigid())
			}
		}

		if v, ok := pa.kw["children"]; ok {
			items, err := sexpListToSlice(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("defnode %s: children: %w", nodeName, err)
			}
			children := make([]*node.Node, 0, len(items))
			for _, item := range items {
				child, err := st.resolveChild(item)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("defnode %s: children: %w", nodeName, err)
				}
				children = append(children, child)
				st.childNames[child.Name()] = true
			}
			opts = append(opts, node.WithChildren(children...))
		}

		def := &scriptDef{body: body, slots: st.takeSlots()}
		n, err := node.New(nodeName, st.path, st.buildRoot, def, opts...)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defnode: %w", err)
		}

		st.defined = append(st.defined, n)
		st.byName[nodeName] = n
		return &sexpNodeRef{n: n}, nil
	})

	// -----------------------------------------------------------------------
	// (spin ref 90 :z): queue a post-assembly rotation on a node.
	// -----------------------------------------------------------------------
	env.AddFunction("spin", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("spin requires a node, angle and axis, got %d arguments", len(args))
		}
		ref, err := st.resolveChild(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spin: %w", err)
		}
		angle, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spin: angle: %w", err)
		}
		axis, err := toAxis(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("spin: %w", err)
		}
		ref.Rotate(angle, axis)
		return &sexpNodeRef{n: ref}, nil
	})

	// -----------------------------------------------------------------------
	// (shift ref (vec3 1 0 0)): queue a post-assembly translation.
	// -----------------------------------------------------------------------
	env.AddFunction("shift", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("shift requires a node and a vec3, got %d arguments", len(args))
		}
		ref, err := st.resolveChild(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shift: %w", err)
		}
		v, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("shift: %w", err)
		}
		ref.Translate(v)
		return &sexpNodeRef{n: ref}, nil
	})
}

// resolveChild accepts a node reference or a defined node's name.
func (st *evalState) resolveChild(s zygo.Sexp) (*node.Node, error) {
	switch v := s.(type) {
	case *sexpNodeRef:
		return v.n, nil
	case *zygo.SexpStr:
		if n := st.byName[v.S]; n != nil {
			return n, nil
		}
		return nil, fmt.Errorf("no node named %q", v.S)
	}
	return nil, fmt.Errorf("expected node reference or name, got %T (%s)", s, s.SexpString(nil))
}
