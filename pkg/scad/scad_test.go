package scad

import (
	"strings"
	"testing"
)

func TestRenderCube(t *testing.T) {
	got := Render(&Cube{X: 100, Y: 20, Z: 10})
	want := "cube([100, 20, 10]);\n"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderNestedTree(t *testing.T) {
	obj := Translate(Vec3{1, 0, 0},
		Rotate(90, AxisZ,
			Union(
				&Cube{X: 1, Y: 2, Z: 3},
				&Cylinder{H: 10, R: 2},
			)))
	got := Render(obj)

	want := strings.Join([]string{
		"translate([1, 0, 0]) {",
		"  rotate(a = 90, v = [0, 0, 1]) {",
		"    union() {",
		"      cube([1, 2, 3]);",
		"      cylinder(h = 10, r = 2);",
		"    }",
		"  }",
		"}",
		"",
	}, "\n")
	if got != want {
		t.Errorf("Render =\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderImportQuotesPath(t *testing.T) {
	got := Render(&Import{Path: "parts/wheel-front.stl"})
	if got != "import(\"parts/wheel-front.stl\");\n" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderDifferenceAndSphere(t *testing.T) {
	got := Render(Difference(&Cube{X: 10, Y: 10, Z: 10}, &Sphere{R: 4}))
	want := "difference() {\n  cube([10, 10, 10]);\n  sphere(r = 4);\n}\n"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestSlotRendersNothingWhileUnset(t *testing.T) {
	slot := &Slot{}
	obj := Union(&Cube{X: 1, Y: 1, Z: 1}, slot)
	if got := Render(obj); strings.Contains(got, "<nil>") || strings.Count(got, ";") != 1 {
		t.Errorf("unset slot leaked into output: %q", got)
	}

	slot.Obj = &Sphere{R: 2}
	if got := Render(obj); !strings.Contains(got, "sphere(r = 2);") {
		t.Errorf("set slot missing from output: %q", got)
	}
}

func TestRenderColor(t *testing.T) {
	got := Render(&Color{Name: "burlywood", Child: &Cube{X: 1, Y: 1, Z: 1}})
	if !strings.HasPrefix(got, "color(\"burlywood\") {") {
		t.Errorf("Render = %q", got)
	}
}

func TestVec3Helpers(t *testing.T) {
	v := Vec3{1, -2, 3}
	if v.Neg() != (Vec3{-1, 2, -3}) {
		t.Errorf("Neg = %v", v.Neg())
	}
	if v.Add(Vec3{1, 1, 1}) != (Vec3{2, -1, 4}) {
		t.Errorf("Add = %v", v.Add(Vec3{1, 1, 1}))
	}
}
