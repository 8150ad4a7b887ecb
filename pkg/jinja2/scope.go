package jinja2

// frame is one level of the render scope stack. The bottom frame wraps the
// caller's Context and is never written; loops, blocks and includes push a
// fresh frame and drop it when they finish, so bindings made inside them are
// invisible to siblings and to the enclosing scope.
type frame struct {
	vars   map[string]Value
	parent *frame
}

func rootFrame(ctx Context) *frame {
	return &frame{vars: ctx}
}

func (f *frame) push() *frame {
	return &frame{vars: map[string]Value{}, parent: f}
}

func (f *frame) lookup(name string) (Value, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f *frame) set(name string, v Value) {
	f.vars[name] = v
}
