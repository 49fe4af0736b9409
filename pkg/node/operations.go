package node

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/burl/pkg/mesh"
	"github.com/chazu/burl/pkg/scad"
)

// ErrNotANumber rejects non-finite numeric components in operations.
var ErrNotANumber = errors.New("not a finite number")

// Operation is a post-assembly transform. Operations apply both to
// description objects (when assembling) and to loaded meshes (when
// answering spatial queries), in queued order.
type Operation interface {
	applyDescription(o scad.Object) scad.Object
	applyMesh(m *mesh.Mesh) error
	// Reversed returns the inverse operation.
	Reversed() Operation
}

// Rotation rotates by Angle degrees around Axis.
type Rotation struct {
	Angle float64
	Axis  scad.Vec3
}

func (r Rotation) applyDescription(o scad.Object) scad.Object {
	return scad.Rotate(r.Angle, r.Axis, o)
}

func (r Rotation) applyMesh(m *mesh.Mesh) error {
	if err := finite(r.Angle, r.Axis.X, r.Axis.Y, r.Axis.Z); err != nil {
		return err
	}
	m.Rotate(r.Angle, mesh.Vec3{X: r.Axis.X, Y: r.Axis.Y, Z: r.Axis.Z})
	return nil
}

// Reversed returns the rotation with the opposite angle.
func (r Rotation) Reversed() Operation {
	return Rotation{Angle: -r.Angle, Axis: r.Axis}
}

// Translation moves by Offset.
type Translation struct {
	Offset scad.Vec3
}

func (t Translation) applyDescription(o scad.Object) scad.Object {
	return scad.Translate(t.Offset, o)
}

func (t Translation) applyMesh(m *mesh.Mesh) error {
	if err := finite(t.Offset.X, t.Offset.Y, t.Offset.Z); err != nil {
		return err
	}
	m.Translate(mesh.Vec3{X: t.Offset.X, Y: t.Offset.Y, Z: t.Offset.Z})
	return nil
}

// Reversed returns the opposite translation.
func (t Translation) Reversed() Operation {
	return Translation{Offset: t.Offset.Neg()}
}

func finite(vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%v: %w", v, ErrNotANumber)
		}
	}
	return nil
}
