// Package mesh loads binary mesh artifacts and answers spatial queries
// over them. It is a consumer of the build machinery's outputs, not
// part of the build state machine itself.
package mesh

import (
	"math"
)

// Vec3 is a point or direction in mesh space.
type Vec3 struct {
	X, Y, Z float64
}

// Triangle is one face of a mesh, counter-clockwise when viewed from
// outside.
type Triangle [3]Vec3

// Mesh is a triangle soup loaded from an STL artifact.
type Mesh struct {
	Triangles []Triangle
}

func add(a, b Vec3) Vec3    { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func sub(a, b Vec3) Vec3    { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func dot(a, b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func cross(a, b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Volume returns the enclosed volume, computed as the sum of signed
// tetrahedron volumes. The mesh must be closed for the result to be
// meaningful.
func (m *Mesh) Volume() float64 {
	var v float64
	for _, t := range m.Triangles {
		v += dot(t[0], cross(t[1], t[2]))
	}
	return math.Abs(v / 6.0)
}

// BoundingBox returns the axis-aligned bounds of the mesh.
func (m *Mesh) BoundingBox() (min, max Vec3) {
	if len(m.Triangles) == 0 {
		return Vec3{}, Vec3{}
	}
	min = m.Triangles[0][0]
	max = min
	for _, t := range m.Triangles {
		for _, p := range t {
			min.X = math.Min(min.X, p.X)
			min.Y = math.Min(min.Y, p.Y)
			min.Z = math.Min(min.Z, p.Z)
			max.X = math.Max(max.X, p.X)
			max.Y = math.Max(max.Y, p.Y)
			max.Z = math.Max(max.Z, p.Z)
		}
	}
	return min, max
}

// Translate moves every vertex by offset, in place.
func (m *Mesh) Translate(offset Vec3) {
	for i := range m.Triangles {
		for j := range m.Triangles[i] {
			m.Triangles[i][j] = add(m.Triangles[i][j], offset)
		}
	}
}

// Rotate rotates every vertex around the origin by angle degrees about
// axis, in place. Rodrigues rotation.
func (m *Mesh) Rotate(angle float64, axis Vec3) {
	n := math.Sqrt(dot(axis, axis))
	if n == 0 {
		return
	}
	k := Vec3{axis.X / n, axis.Y / n, axis.Z / n}
	rad := angle * math.Pi / 180.0
	c, s := math.Cos(rad), math.Sin(rad)

	rot := func(p Vec3) Vec3 {
		kc := cross(k, p)
		kd := dot(k, p) * (1 - c)
		return Vec3{
			p.X*c + kc.X*s + k.X*kd,
			p.Y*c + kc.Y*s + k.Y*kd,
			p.Z*c + kc.Z*s + k.Z*kd,
		}
	}
	for i := range m.Triangles {
		for j := range m.Triangles[i] {
			m.Triangles[i][j] = rot(m.Triangles[i][j])
		}
	}
}

// containsDir is the ray direction used for containment parity tests.
// Slightly skewed from any axis so that rays through axis-aligned
// geometry do not graze edges.
var containsDir = Vec3{0.5773502692, 0.5784502692, 0.5762502692}

// Contains reports whether p lies inside the mesh, by ray-crossing
// parity.
func (m *Mesh) Contains(p Vec3) bool {
	crossings := 0
	for _, t := range m.Triangles {
		if rayHits(p, containsDir, t) {
			crossings++
		}
	}
	return crossings%2 == 1
}

// rayHits tests ray/triangle intersection (Möller–Trumbore), counting
// only hits strictly in front of the origin.
func rayHits(orig, dir Vec3, t Triangle) bool {
	const eps = 1e-9
	e1 := sub(t[1], t[0])
	e2 := sub(t[2], t[0])
	p := cross(dir, e2)
	det := dot(e1, p)
	if det > -eps && det < eps {
		return false
	}
	inv := 1.0 / det
	s := sub(orig, t[0])
	u := dot(s, p) * inv
	if u < 0 || u > 1 {
		return false
	}
	q := cross(s, e1)
	v := dot(dir, q) * inv
	if v < 0 || u+v > 1 {
		return false
	}
	return dot(e2, q)*inv > eps
}

// defaultIntersectionCells is the per-axis sampling resolution for
// IntersectionVolume.
const defaultIntersectionCells = 32

// IntersectionVolume estimates the volume common to a and b by voxel
// sampling over the overlap of their bounding boxes. The estimate is
// approximate; it is meant for interference checks, not metrology.
func IntersectionVolume(a, b *Mesh) float64 {
	return intersectionVolume(a, b, defaultIntersectionCells)
}

func intersectionVolume(a, b *Mesh, cells int) float64 {
	aMin, aMax := a.BoundingBox()
	bMin, bMax := b.BoundingBox()

	min := Vec3{math.Max(aMin.X, bMin.X), math.Max(aMin.Y, bMin.Y), math.Max(aMin.Z, bMin.Z)}
	max := Vec3{math.Min(aMax.X, bMax.X), math.Min(aMax.Y, bMax.Y), math.Min(aMax.Z, bMax.Z)}
	if min.X >= max.X || min.Y >= max.Y || min.Z >= max.Z {
		return 0
	}

	dx := (max.X - min.X) / float64(cells)
	dy := (max.Y - min.Y) / float64(cells)
	dz := (max.Z - min.Z) / float64(cells)
	cellVol := dx * dy * dz

	inside := 0
	for i := 0; i < cells; i++ {
		x := min.X + (float64(i)+0.5)*dx
		for j := 0; j < cells; j++ {
			y := min.Y + (float64(j)+0.5)*dy
			for k := 0; k < cells; k++ {
				z := min.Z + (float64(k)+0.5)*dz
				p := Vec3{x, y, z}
				if a.Contains(p) && b.Contains(p) {
					inside++
				}
			}
		}
	}
	return float64(inside) * cellVol
}

// Intersects reports whether a and b share any volume.
func Intersects(a, b *Mesh) bool {
	return IntersectionVolume(a, b) > 0
}

// Box returns a closed 12-triangle mesh spanning min..max. Useful for
// stub geometry in tests and calibration of spatial queries.
func Box(min, max Vec3) *Mesh {
	v := [8]Vec3{
		{min.X, min.Y, min.Z}, {max.X, min.Y, min.Z},
		{max.X, max.Y, min.Z}, {min.X, max.Y, min.Z},
		{min.X, min.Y, max.Z}, {max.X, min.Y, max.Z},
		{max.X, max.Y, max.Z}, {min.X, max.Y, max.Z},
	}
	quads := [6][4]int{
		{3, 2, 1, 0}, // bottom (z = min)
		{4, 5, 6, 7}, // top (z = max)
		{0, 1, 5, 4}, // front (y = min)
		{2, 3, 7, 6}, // back (y = max)
		{1, 2, 6, 5}, // right (x = max)
		{3, 0, 4, 7}, // left (x = min)
	}
	m := &Mesh{}
	for _, q := range quads {
		m.Triangles = append(m.Triangles,
			Triangle{v[q[0]], v[q[1]], v[q[2]]},
			Triangle{v[q[0]], v[q[2]], v[q[3]]},
		)
	}
	return m
}
