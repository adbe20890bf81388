// Package vm is PDP's register-of-stacks virtual machine: one shared
// eval stack, a frame stack with call frames, cell-based closures, and
// suspend/resume generator support.
package vm

import "pdp/compiler"

// ObjKind tags a runtime value's concrete variant.
type ObjKind int

const (
	KindNone ObjKind = iota
	KindNumber
	KindBoolean
	KindString
	KindList
	KindSet
	KindDict
	KindCode
	KindFunction
	KindNative
	KindGenerator
	KindIterator
)

// Object is implemented by every runtime value variant.
type Object interface {
	Kind() ObjKind
}

// None is PDP's null value.
type None struct{}

func (None) Kind() ObjKind { return KindNone }

// Number is every numeric value: integer/float distinction is collapsed,
// so this is always float64 underneath.
type Number float64

func (Number) Kind() ObjKind { return KindNumber }

type Boolean bool

func (Boolean) Kind() ObjKind { return KindBoolean }

type String string

func (String) Kind() ObjKind { return KindString }

// List is a mutable, reference-shared sequence.
type List struct {
	Elems []Object
}

func (*List) Kind() ObjKind { return KindList }

// Set is a mutable, reference-shared, order-preserving, deduplicated
// collection. A real hash set needs hashable keys; PDP's objects aren't
// uniformly hashable (lists/dicts are mutable), so membership is checked
// by linear scan with Equal — fine at the scale this interpreter runs at.
type Set struct {
	Elems []Object
}

func (*Set) Kind() ObjKind { return KindSet }

func (s *Set) Add(o Object) {
	for _, e := range s.Elems {
		if Equal(e, o) {
			return
		}
	}
	s.Elems = append(s.Elems, o)
}

// Dict is a mutable, reference-shared string-keyed map that preserves
// insertion order. Dict literals only ever parse string keys, so that's
// the only key type Dict needs to support.
type Dict struct {
	Keys   []string
	Values []Object
}

func (*Dict) Kind() ObjKind { return KindDict }

func (d *Dict) Get(key string) (Object, bool) {
	for i, k := range d.Keys {
		if k == key {
			return d.Values[i], true
		}
	}
	return nil, false
}

func (d *Dict) Set(key string, val Object) {
	for i, k := range d.Keys {
		if k == key {
			d.Values[i] = val
			return
		}
	}
	d.Keys = append(d.Keys, key)
	d.Values = append(d.Values, val)
}

// Code wraps a compiled CodeObject as a first-class runtime value. No
// literal syntax produces one, and the VM does not construct one either:
// MAKE_FUNCTION wraps its CodeObject in a Function instead.
type Code struct {
	*compiler.CodeObject
}

func (*Code) Kind() ObjKind { return KindCode }

// Cell is a one-slot mutable container shared by reference between a
// defining frame's locals and every closure that captures it.
type Cell struct {
	Value Object
}

// Function is a callable compiled function: its code plus the cells it
// captured from its defining scope at MAKE_FUNCTION time.
type Function struct {
	Code          *compiler.CodeObject
	CapturedCells []*Cell
}

func (*Function) Kind() ObjKind { return KindFunction }

// NativeFunction is a VM builtin (print, range, len, str, int, float,
// bool), dispatched through the same CALL opcode as compiled functions.
type NativeFunction struct {
	Name string
	Fn   func(vm *VM, args []Object) (Object, error)
}

func (*NativeFunction) Kind() ObjKind { return KindNative }

// Generator is a frozen generator: a suspended frame plus the bookkeeping
// FOR_ITER needs to drive it.
type Generator struct {
	frame     *Frame
	lastValue Object
	isDone    bool
	// resumeEnd is the jump target FOR_ITER would branch to on exhaustion;
	// stashed here each resume so RETURN can redirect the driving frame to
	// it directly when the generator body finishes mid-resume, without ever
	// pushing a bogus value for the loop variable to consume.
	resumeEnd int
}

func (*Generator) Kind() ObjKind { return KindGenerator }

// Iterator is GET_ITER's result for eager collections (List, Set): a
// position cursor over a snapshot of the elements at the moment of
// iteration (mutating the source afterward doesn't affect an in-flight
// loop, matching typical for-loop semantics over a materialized sequence).
type Iterator struct {
	Items []Object
	Pos   int
}

func (*Iterator) Kind() ObjKind { return KindIterator }

// Truthy implements the interpreter's truthiness rules: falsy iff None,
// false, zero, or an empty string/collection.
func Truthy(o Object) bool {
	switch v := o.(type) {
	case None:
		return false
	case Boolean:
		return bool(v)
	case Number:
		return v != 0
	case String:
		return len(v) > 0
	case *List:
		return len(v.Elems) > 0
	case *Set:
		return len(v.Elems) > 0
	case *Dict:
		return len(v.Keys) > 0
	default:
		return true
	}
}

// Equal is used for `==`/`!=` and Set membership. List equality is
// structural; sets, dicts, functions, generators and code compare by
// identity, so two distinct sets or dicts with equal contents are not Equal.
func Equal(a, b Object) bool {
	switch av := a.(type) {
	case None:
		_, ok := b.(None)
		return ok
	case Number:
		bv, ok := b.(Number)
		return ok && av == bv
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av == bv
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case *List:
		bv, ok := b.(*List)
		if !ok || len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !Equal(av.Elems[i], bv.Elems[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
