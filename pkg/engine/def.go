package engine

import (
	"fmt"

	"github.com/chazu/burl/pkg/node"
	"github.com/chazu/burl/pkg/preview"
	"github.com/chazu/burl/pkg/scad"
)

// scriptDef is the Definition of a script-defined node: the evaluated
// body plus any (children) placeholders it contains.
type scriptDef struct {
	body  scad.Object
	slots []*scad.Slot
}

// Render splices the assembled child models into the body. With
// (children) placeholders present, every placeholder receives the
// children (unioned when there are several); without placeholders,
// children are unioned after the body.
func (d *scriptDef) Render(children []scad.Object) (node.RawModel, error) {
	if len(d.slots) > 0 {
		var spliced scad.Object
		switch len(children) {
		case 0:
			// Leave the slots empty; validation reports them.
		case 1:
			spliced = children[0]
		default:
			spliced = scad.Union(children...)
		}
		for _, s := range d.slots {
			s.Obj = spliced
		}
		return d.body, nil
	}
	if len(children) > 0 {
		objs := make([]scad.Object, 0, len(children)+1)
		objs = append(objs, d.body)
		objs = append(objs, children...)
		return scad.Union(objs...), nil
	}
	return d.body, nil
}

// Validate lowers the model through the preview kernel, surfacing
// malformed geometry before anything is written to disk.
func (d *scriptDef) Validate(raw node.RawModel) error {
	obj, ok := raw.(scad.Object)
	if !ok {
		return fmt.Errorf("unexpected raw model type %T", raw)
	}
	return preview.Validate(obj)
}

// AsDescription returns the model unchanged; script bodies already are
// description objects.
func (d *scriptDef) AsDescription(raw node.RawModel) (scad.Object, error) {
	obj, ok := raw.(scad.Object)
	if !ok {
		return nil, fmt.Errorf("unexpected raw model type %T", raw)
	}
	return obj, nil
}
