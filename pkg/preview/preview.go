// Package preview lowers description objects to signed distance fields
// and evaluates them in-process, without the external renderer. It
// backs geometry validation and the preview command: malformed
// primitives surface as validation errors at lowering time, and valid
// trees can be tessellated to a triangle mesh by marching cubes.
package preview

import (
	"errors"
	"fmt"
	"math"

	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/burl/pkg/mesh"
	"github.com/chazu/burl/pkg/scad"
)

// DefaultCells is the marching cubes resolution used when callers do
// not choose one.
const DefaultCells = 100

// ErrNotPreviewable marks description trees that reference external
// artifacts (imports), which cannot be evaluated in-process.
var ErrNotPreviewable = errors.New("preview: tree references an external artifact")

// ValidationError reports malformed geometry found while lowering a
// description.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "invalid geometry: " + e.Detail
}

// Validate lowers the description and reports the first geometry
// problem found. Trees containing imports pass validation: the
// imported artifact was validated when it was generated.
func Validate(o scad.Object) error {
	_, err := Lower(o)
	if errors.Is(err, ErrNotPreviewable) {
		return nil
	}
	return err
}

// Lower converts a description tree to a signed distance field.
func Lower(o scad.Object) (sdf.SDF3, error) {
	switch t := o.(type) {
	case *scad.Cube:
		if err := checkDims("cube", t.X, t.Y, t.Z); err != nil {
			return nil, err
		}
		s, err := sdf.Box3D(v3.Vec{X: t.X, Y: t.Y, Z: t.Z}, 0)
		if err != nil {
			return nil, &ValidationError{Detail: err.Error()}
		}
		// Box3D centers at the origin; descriptions use min-corner origin.
		m := sdf.Translate3d(v3.Vec{X: t.X / 2, Y: t.Y / 2, Z: t.Z / 2})
		return sdf.Transform3D(s, m), nil

	case *scad.Cylinder:
		if err := checkDims("cylinder", t.H, t.R); err != nil {
			return nil, err
		}
		s, err := sdf.Cylinder3D(t.H, t.R, 0)
		if err != nil {
			return nil, &ValidationError{Detail: err.Error()}
		}
		// Cylinder3D centers on the origin; descriptions put the base at z=0.
		m := sdf.Translate3d(v3.Vec{Z: t.H / 2})
		return sdf.Transform3D(s, m), nil

	case *scad.Sphere:
		if err := checkDims("sphere", t.R); err != nil {
			return nil, err
		}
		s, err := sdf.Sphere3D(t.R)
		if err != nil {
			return nil, &ValidationError{Detail: err.Error()}
		}
		return s, nil

	case *scad.Boolean:
		return lowerBoolean(t)

	case *scad.Translation:
		child, err := Lower(t.Child)
		if err != nil {
			return nil, err
		}
		m := sdf.Translate3d(v3.Vec{X: t.Offset.X, Y: t.Offset.Y, Z: t.Offset.Z})
		return sdf.Transform3D(child, m), nil

	case *scad.Rotation:
		return lowerRotation(t)

	case *scad.Color:
		return Lower(t.Child)

	case *scad.Slot:
		if t.Obj == nil {
			return nil, &ValidationError{Detail: "empty slot in description tree"}
		}
		return Lower(t.Obj)

	case *scad.Import:
		return nil, ErrNotPreviewable

	default:
		return nil, fmt.Errorf("preview: unhandled description node %T", o)
	}
}

func lowerBoolean(t *scad.Boolean) (sdf.SDF3, error) {
	if len(t.Children) == 0 {
		return nil, &ValidationError{Detail: t.Op.String() + " with no children"}
	}
	parts := make([]sdf.SDF3, 0, len(t.Children))
	for _, c := range t.Children {
		s, err := Lower(c)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	switch t.Op {
	case scad.OpUnion:
		return sdf.Union3D(parts...), nil
	case scad.OpDifference:
		acc := parts[0]
		for _, p := range parts[1:] {
			acc = sdf.Difference3D(acc, p)
		}
		return acc, nil
	case scad.OpIntersection:
		acc := parts[0]
		for _, p := range parts[1:] {
			acc = sdf.Intersect3D(acc, p)
		}
		return acc, nil
	default:
		return nil, fmt.Errorf("preview: unhandled boolean op %v", t.Op)
	}
}

func lowerRotation(t *scad.Rotation) (sdf.SDF3, error) {
	child, err := Lower(t.Child)
	if err != nil {
		return nil, err
	}
	rad := t.Angle * math.Pi / 180.0
	var m sdf.M44
	switch t.Axis {
	case scad.AxisX:
		m = sdf.RotateX(rad)
	case scad.AxisY:
		m = sdf.RotateY(rad)
	case scad.AxisZ:
		m = sdf.RotateZ(rad)
	default:
		return nil, &ValidationError{
			Detail: fmt.Sprintf("rotation axis [%g %g %g] is not a principal axis",
				t.Axis.X, t.Axis.Y, t.Axis.Z),
		}
	}
	return sdf.Transform3D(child, m), nil
}

func checkDims(what string, dims ...float64) error {
	for _, d := range dims {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return &ValidationError{Detail: what + ": dimension is not a finite number"}
		}
		if d <= 0 {
			return &ValidationError{Detail: fmt.Sprintf("%s: dimension %g is not positive", what, d)}
		}
	}
	return nil
}

// Mesh tessellates the description with marching cubes at the given
// per-axis resolution.
func Mesh(o scad.Object, cells int) (*mesh.Mesh, error) {
	s3, err := Lower(o)
	if err != nil {
		return nil, err
	}
	if cells <= 0 {
		cells = DefaultCells
	}
	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s3, renderer)

	out := &mesh.Mesh{Triangles: make([]mesh.Triangle, 0, len(triangles))}
	for _, tri := range triangles {
		out.Triangles = append(out.Triangles, mesh.Triangle{
			{X: tri[0].X, Y: tri[0].Y, Z: tri[0].Z},
			{X: tri[1].X, Y: tri[1].Y, Z: tri[1].Z},
			{X: tri[2].X, Y: tri[2].Y, Z: tri[2].Z},
		})
	}
	return out, nil
}

// Stats summarizes an in-process evaluation of a description.
type Stats struct {
	Min, Max  [3]float64 // bounding box
	Triangles int
	Volume    float64
}

// Evaluate lowers, tessellates and measures the description.
func Evaluate(o scad.Object, cells int) (Stats, error) {
	s3, err := Lower(o)
	if err != nil {
		return Stats{}, err
	}
	bb := s3.BoundingBox()

	m, err := Mesh(o, cells)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Min:       [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z},
		Max:       [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z},
		Triangles: len(m.Triangles),
		Volume:    m.Volume(),
	}, nil
}
