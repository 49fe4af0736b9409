// Package scad models OpenSCAD description objects. A description is a
// small tree of primitives, boolean combinators and transforms that
// renders to OpenSCAD source text. The build machinery treats the
// rendered text as opaque; only the external renderer interprets it.
package scad

import (
	"strconv"
	"strings"
)

// Vec3 is a 3-component vector used for translations and rotation axes.
type Vec3 struct {
	X, Y, Z float64
}

// Axis constants for rotations.
var (
	AxisX = Vec3{1, 0, 0}
	AxisY = Vec3{0, 1, 0}
	AxisZ = Vec3{0, 0, 1}
)

// Neg returns the component-wise negation.
func (v Vec3) Neg() Vec3 {
	return Vec3{-v.X, -v.Y, -v.Z}
}

// Add returns the component-wise sum.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Object is a node in a description tree. The variant types are
// exported so consumers (the preview kernel, tests) can inspect them;
// the unexported method keeps the set of variants closed.
type Object interface {
	writeSCAD(b *strings.Builder, indent int)
}

// Render serializes a description tree to OpenSCAD source.
func Render(o Object) string {
	var b strings.Builder
	o.writeSCAD(&b, 0)
	return b.String()
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// Cube is an axis-aligned box with one corner at the origin.
type Cube struct {
	X, Y, Z float64
}

func (c *Cube) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("cube([")
	b.WriteString(num(c.X))
	b.WriteString(", ")
	b.WriteString(num(c.Y))
	b.WriteString(", ")
	b.WriteString(num(c.Z))
	b.WriteString("]);\n")
}

// Cylinder has its base at the origin, extruded along Z.
type Cylinder struct {
	H, R float64
}

func (c *Cylinder) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("cylinder(h = ")
	b.WriteString(num(c.H))
	b.WriteString(", r = ")
	b.WriteString(num(c.R))
	b.WriteString(");\n")
}

// Sphere is centered at the origin.
type Sphere struct {
	R float64
}

func (s *Sphere) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("sphere(r = ")
	b.WriteString(num(s.R))
	b.WriteString(");\n")
}

// Import references a previously rendered binary artifact by path.
type Import struct {
	Path string
}

func (i *Import) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("import(")
	b.WriteString(strconv.Quote(i.Path))
	b.WriteString(");\n")
}

// ---------------------------------------------------------------------------
// Boolean combinators
// ---------------------------------------------------------------------------

// BoolOp selects the boolean operation of a Boolean node.
type BoolOp int

const (
	OpUnion BoolOp = iota
	OpDifference
	OpIntersection
)

func (op BoolOp) String() string {
	switch op {
	case OpUnion:
		return "union"
	case OpDifference:
		return "difference"
	case OpIntersection:
		return "intersection"
	default:
		return "unknown"
	}
}

// Boolean combines children with a boolean operation. For
// OpDifference, every child after the first is subtracted from it.
type Boolean struct {
	Op       BoolOp
	Children []Object
}

// Union combines objects additively.
func Union(children ...Object) *Boolean {
	return &Boolean{Op: OpUnion, Children: children}
}

// Difference subtracts every subsequent object from the first.
func Difference(children ...Object) *Boolean {
	return &Boolean{Op: OpDifference, Children: children}
}

// Intersection keeps only the volume common to all objects.
func Intersection(children ...Object) *Boolean {
	return &Boolean{Op: OpIntersection, Children: children}
}

func (o *Boolean) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString(o.Op.String())
	b.WriteString("() {\n")
	for _, c := range o.Children {
		c.writeSCAD(b, indent+1)
	}
	pad(b, indent)
	b.WriteString("}\n")
}

// ---------------------------------------------------------------------------
// Modifiers
// ---------------------------------------------------------------------------

// Rotation rotates Child by Angle degrees around Axis.
type Rotation struct {
	Angle float64
	Axis  Vec3
	Child Object
}

// Rotate rotates the child by angle degrees around the given axis.
func Rotate(angle float64, axis Vec3, child Object) *Rotation {
	return &Rotation{Angle: angle, Axis: axis, Child: child}
}

func (r *Rotation) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("rotate(a = ")
	b.WriteString(num(r.Angle))
	b.WriteString(", v = ")
	writeVec(b, r.Axis)
	b.WriteString(") {\n")
	r.Child.writeSCAD(b, indent+1)
	pad(b, indent)
	b.WriteString("}\n")
}

// Translation moves Child by Offset.
type Translation struct {
	Offset Vec3
	Child  Object
}

// Translate moves the child by the given offset.
func Translate(offset Vec3, child Object) *Translation {
	return &Translation{Offset: offset, Child: child}
}

func (t *Translation) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("translate(")
	writeVec(b, t.Offset)
	b.WriteString(") {\n")
	t.Child.writeSCAD(b, indent+1)
	pad(b, indent)
	b.WriteString("}\n")
}

// Color tags the child with a named color. Advisory only; the renderer
// ignores color for binary mesh output.
type Color struct {
	Name  string
	Child Object
}

func (c *Color) writeSCAD(b *strings.Builder, indent int) {
	pad(b, indent)
	b.WriteString("color(")
	b.WriteString(strconv.Quote(c.Name))
	b.WriteString(") {\n")
	c.Child.writeSCAD(b, indent+1)
	pad(b, indent)
	b.WriteString("}\n")
}

// Slot is a mutable indirection in a description tree. A slot renders
// its current object, or nothing while unset. The engine uses slots to
// splice assembled child models into a script-defined body.
type Slot struct {
	Obj Object
}

func (s *Slot) writeSCAD(b *strings.Builder, indent int) {
	if s.Obj != nil {
		s.Obj.writeSCAD(b, indent)
	}
}

// ---------------------------------------------------------------------------
// Formatting helpers
// ---------------------------------------------------------------------------

func num(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func writeVec(b *strings.Builder, v Vec3) {
	b.WriteString("[")
	b.WriteString(num(v.X))
	b.WriteString(", ")
	b.WriteString(num(v.Y))
	b.WriteString(", ")
	b.WriteString(num(v.Z))
	b.WriteString("]")
}

func pad(b *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		b.WriteString("  ")
	}
}
