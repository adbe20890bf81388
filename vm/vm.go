package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"pdp/compiler"
)

// DefaultMaxDepth is the frame-depth ceiling that guards against runaway
// recursion.
const DefaultMaxDepth = 1000

// VM is the single-threaded register-of-stacks machine: one shared eval
// stack and one frame stack, dispatched in one fetch-decode-execute loop.
type VM struct {
	Globals  map[string]Object
	Builtins map[string]Object

	Frames []*Frame
	Stack  []Object

	MaxDepth int
	Out      io.Writer
}

// New constructs a VM with its builtins pre-seeded.
func New() *VM {
	v := &VM{
		Globals:  map[string]Object{},
		Builtins: map[string]Object{},
		MaxDepth: DefaultMaxDepth,
		Out:      os.Stdout,
	}
	v.installBuiltins()
	return v
}

func (vm *VM) push(o Object) {
	vm.Stack = append(vm.Stack, o)
}

func (vm *VM) pop() Object {
	n := len(vm.Stack) - 1
	v := vm.Stack[n]
	vm.Stack = vm.Stack[:n]
	return v
}

func (vm *VM) peek() Object {
	return vm.Stack[len(vm.Stack)-1]
}

// Run executes a script's CodeObject to completion. On a normal return the
// eval stack and frame stack are both empty; Run returns the value the
// script's top-level RETURN produced, which for a CodeObject from
// compiler.CompileScript is always None.
func (vm *VM) Run(script *compiler.CodeObject) (Object, error) {
	vm.Frames = []*Frame{newFrame(script, nil)}
	vm.Stack = nil
	return vm.loop()
}

func decodeOperands(code []byte, offset int, def *compiler.OpCodeDefinition) ([]int, int) {
	operands := make([]int, len(def.OperandWidths))
	width := 0
	for i, w := range def.OperandWidths {
		switch w {
		case 1:
			operands[i] = int(code[offset+width])
		case 2:
			operands[i] = int(binary.BigEndian.Uint16(code[offset+width:]))
		}
		width += w
	}
	return operands, width
}

func posAt(frame *Frame, instrPos int) (int, int) {
	if p, ok := frame.Code.Positions[instrPos]; ok {
		return p.Row, p.Col
	}
	return 0, 0
}

func (vm *VM) loop() (Object, error) {
	final := Object(None{})

	for len(vm.Frames) > 0 {
		frame := vm.Frames[len(vm.Frames)-1]
		if frame.IP >= len(frame.Code.Bytecode) {
			vm.Frames = vm.Frames[:len(vm.Frames)-1]
			continue
		}

		op := compiler.Opcode(frame.Code.Bytecode[frame.IP])
		instrPos := frame.IP
		frame.IP++
		def, err := compiler.Get(op)
		if err != nil {
			return final, err
		}
		operands, width := decodeOperands(frame.Code.Bytecode, frame.IP, def)
		frame.IP += width
		row, col := posAt(frame, instrPos)

		switch op {
		case compiler.OpPushNone:
			vm.push(None{})
		case compiler.OpPushNum:
			vm.push(Number(frame.Code.Constants[operands[0]]))
		case compiler.OpPushBool:
			vm.push(Boolean(operands[0] != 0))
		case compiler.OpPushStr:
			vm.push(String(frame.Code.Strings[operands[0]]))
		case compiler.OpPop:
			vm.pop()
		case compiler.OpDup:
			vm.push(vm.peek())

		case compiler.OpLoadLocal:
			vm.push(frame.Locals[operands[0]])
		case compiler.OpStoreLocal:
			frame.Locals[operands[0]] = vm.pop()
		case compiler.OpLoadCell:
			vm.push(frame.Cells[operands[0]].Value)
		case compiler.OpStoreCell:
			frame.Cells[operands[0]].Value = vm.pop()
		case compiler.OpLoadFree:
			vm.push(frame.Frees[operands[0]].Value)
		case compiler.OpLoadGlobal:
			name := frame.Code.Names[operands[0]]
			val, ok := vm.Globals[name]
			if !ok {
				return final, nameError(row, col, "name '"+name+"' is not defined")
			}
			vm.push(val)
		case compiler.OpStoreGlobal:
			name := frame.Code.Names[operands[0]]
			vm.Globals[name] = vm.pop()
		case compiler.OpLoadBuiltin:
			name := frame.Code.Names[operands[0]]
			if val, ok := vm.Globals[name]; ok {
				vm.push(val)
			} else {
				vm.push(vm.Builtins[name])
			}

		case compiler.OpBuildList:
			n := operands[0]
			elems := make([]Object, n)
			copy(elems, vm.Stack[len(vm.Stack)-n:])
			vm.Stack = vm.Stack[:len(vm.Stack)-n]
			vm.push(&List{Elems: elems})
		case compiler.OpBuildSet:
			n := operands[0]
			elems := make([]Object, n)
			copy(elems, vm.Stack[len(vm.Stack)-n:])
			vm.Stack = vm.Stack[:len(vm.Stack)-n]
			s := &Set{}
			for _, e := range elems {
				s.Add(e)
			}
			vm.push(s)
		case compiler.OpBuildDict:
			n := operands[0]
			d := &Dict{}
			pairs := make([]Object, 2*n)
			copy(pairs, vm.Stack[len(vm.Stack)-2*n:])
			vm.Stack = vm.Stack[:len(vm.Stack)-2*n]
			for i := 0; i < n; i++ {
				key, ok := pairs[2*i].(String)
				if !ok {
					return final, typeError(row, col, "dict keys must be strings")
				}
				d.Set(string(key), pairs[2*i+1])
			}
			vm.push(d)

		case compiler.OpIndexGet:
			idx := vm.pop()
			container := vm.pop()
			res, err := vm.indexGet(container, idx, row, col)
			if err != nil {
				return final, err
			}
			vm.push(res)
		case compiler.OpIndexSet:
			idx := vm.pop()
			container := vm.pop()
			val := vm.pop()
			if err := vm.indexSet(container, idx, val, row, col); err != nil {
				return final, err
			}

		case compiler.OpBinOp:
			b := vm.pop()
			a := vm.pop()
			res, err := vm.binOp(byte(operands[0]), a, b, row, col)
			if err != nil {
				return final, err
			}
			vm.push(res)
		case compiler.OpUnaryOp:
			a := vm.pop()
			res, err := vm.unaryOp(byte(operands[0]), a, row, col)
			if err != nil {
				return final, err
			}
			vm.push(res)

		case compiler.OpJump:
			frame.IP = operands[0]
		case compiler.OpJumpIfFalse:
			if !Truthy(vm.pop()) {
				frame.IP = operands[0]
			}
		case compiler.OpJumpIfTrue:
			if Truthy(vm.pop()) {
				frame.IP = operands[0]
			}

		case compiler.OpGetIter:
			v := vm.pop()
			switch o := v.(type) {
			case *List:
				vm.push(&Iterator{Items: append([]Object{}, o.Elems...)})
			case *Set:
				vm.push(&Iterator{Items: append([]Object{}, o.Elems...)})
			case *Generator:
				vm.push(o)
			default:
				return final, typeError(row, col, "object is not iterable")
			}
		case compiler.OpForIter:
			top := vm.peek()
			switch it := top.(type) {
			case *Iterator:
				if it.Pos < len(it.Items) {
					vm.push(it.Items[it.Pos])
					it.Pos++
				} else {
					vm.pop()
					frame.IP = operands[0]
				}
			case *Generator:
				if it.isDone {
					vm.pop()
					frame.IP = operands[0]
				} else {
					it.resumeEnd = operands[0]
					if len(vm.Frames) >= vm.MaxDepth {
						return final, stackOverflowError(vm.MaxDepth)
					}
					vm.Frames = append(vm.Frames, it.frame)
				}
			default:
				return final, typeError(row, col, "object is not iterable")
			}

		case compiler.OpMakeFunction:
			codeIdx := operands[0]
			capCount := operands[1]
			caps := make([]*Cell, capCount)
			for i := 0; i < capCount; i++ {
				tag := frame.Code.Bytecode[frame.IP]
				frame.IP++
				idx := int(binary.BigEndian.Uint16(frame.Code.Bytecode[frame.IP:]))
				frame.IP += 2
				switch tag {
				case compiler.CaptureFromFree:
					caps[i] = frame.Frees[idx]
				default:
					caps[i] = frame.Cells[idx]
				}
			}
			childCode := frame.Code.Children[codeIdx]
			vm.push(&Function{Code: childCode, CapturedCells: caps})

		case compiler.OpCall:
			argc := operands[0]
			args := make([]Object, argc)
			copy(args, vm.Stack[len(vm.Stack)-argc:])
			vm.Stack = vm.Stack[:len(vm.Stack)-argc]
			callee := vm.pop()
			if err := vm.call(callee, args, row, col); err != nil {
				return final, err
			}

		case compiler.OpReturn:
			val := vm.pop()
			popped := frame
			vm.Frames = vm.Frames[:len(vm.Frames)-1]
			if popped.owner != nil {
				popped.owner.isDone = true
				popped.owner.lastValue = None{}
				if len(vm.Frames) > 0 {
					// FOR_ITER only peeked the generator (so repeated
					// resumes see it at the same stack depth); now that
					// it's exhausted, drop it ourselves before jumping
					// past the loop, since the normal FOR_ITER-exhaustion
					// path (which does this) never runs for this case.
					vm.pop()
					vm.Frames[len(vm.Frames)-1].IP = popped.owner.resumeEnd
				}
			} else if len(vm.Frames) == 0 {
				final = val
			} else {
				vm.push(val)
			}

		case compiler.OpYield:
			val := vm.pop()
			popped := frame
			vm.Frames = vm.Frames[:len(vm.Frames)-1]
			if popped.owner != nil {
				popped.owner.lastValue = val
				popped.owner.isDone = false
			}
			vm.push(val)

		case compiler.OpResume:
			v := vm.pop()
			gen, ok := v.(*Generator)
			if !ok {
				return final, typeError(row, col, "RESUME expects a generator")
			}
			if gen.isDone {
				vm.push(None{})
			} else {
				vm.Frames = append(vm.Frames, gen.frame)
			}

		default:
			return final, &RuntimeError{Kind: "CompileError", Row: row, Col: col, Msg: fmt.Sprintf("unhandled opcode %d", op)}
		}
	}

	return final, nil
}

// call dispatches CALL against whichever callable variant the stack held:
// a compiled Function (pushes a new frame, or produces a Generator if its
// code is flagged generator), or a NativeFunction (runs synchronously).
func (vm *VM) call(callee Object, args []Object, row, col int) error {
	switch fn := callee.(type) {
	case *NativeFunction:
		res, err := fn.Fn(vm, args)
		if err != nil {
			return err
		}
		vm.push(res)
		return nil
	case *Function:
		if fn.Code.IsGenerator {
			gframe := newFrame(fn.Code, args)
			gframe.Frees = fn.CapturedCells
			gen := &Generator{frame: gframe}
			gframe.owner = gen
			vm.push(gen)
			return nil
		}
		if len(vm.Frames) >= vm.MaxDepth {
			return stackOverflowError(vm.MaxDepth)
		}
		newF := newFrame(fn.Code, args)
		newF.Frees = fn.CapturedCells
		vm.Frames = append(vm.Frames, newF)
		return nil
	default:
		return typeError(row, col, "object is not callable")
	}
}

func toNumber(o Object) (float64, bool) {
	switch v := o.(type) {
	case Number:
		return float64(v), true
	case Boolean:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (vm *VM) binOp(op byte, a, b Object, row, col int) (Object, error) {
	switch op {
	case compiler.OpAdd:
		if as, ok := a.(String); ok {
			if bs, ok2 := b.(String); ok2 {
				return as + bs, nil
			}
			return nil, typeError(row, col, "cannot add string and non-string")
		}
		an, aok := toNumber(a)
		bn, bok := toNumber(b)
		if aok && bok {
			return Number(an + bn), nil
		}
		return nil, typeError(row, col, "unsupported operand types for +")

	case compiler.OpSub:
		return numOp(a, b, row, col, "-", func(x, y float64) float64 { return x - y })

	case compiler.OpMul:
		if as, ok := a.(String); ok {
			if bn, ok2 := toNumber(b); ok2 {
				return String(strings.Repeat(string(as), clampRepeat(bn))), nil
			}
		}
		if bs, ok := b.(String); ok {
			if an, ok2 := toNumber(a); ok2 {
				return String(strings.Repeat(string(bs), clampRepeat(an))), nil
			}
		}
		return numOp(a, b, row, col, "*", func(x, y float64) float64 { return x * y })

	case compiler.OpDiv:
		an, aok := toNumber(a)
		bn, bok := toNumber(b)
		if !aok || !bok {
			return nil, typeError(row, col, "unsupported operand types for /")
		}
		if bn == 0 {
			return nil, zeroDivisionError(row, col)
		}
		return Number(an / bn), nil

	case compiler.OpFloorDiv:
		an, aok := toNumber(a)
		bn, bok := toNumber(b)
		if !aok || !bok {
			return nil, typeError(row, col, "unsupported operand types for //")
		}
		if bn == 0 {
			return nil, zeroDivisionError(row, col)
		}
		return Number(math.Floor(an / bn)), nil

	case compiler.OpMod:
		an, aok := toNumber(a)
		bn, bok := toNumber(b)
		if !aok || !bok {
			return nil, typeError(row, col, "unsupported operand types for %")
		}
		if bn == 0 {
			return nil, zeroDivisionError(row, col)
		}
		m := math.Mod(an, bn)
		if m != 0 && (m < 0) != (bn < 0) {
			m += bn
		}
		return Number(m), nil

	case compiler.OpPow:
		an, aok := toNumber(a)
		bn, bok := toNumber(b)
		if !aok || !bok {
			return nil, typeError(row, col, "unsupported operand types for **")
		}
		if an == 0 && bn < 0 {
			return nil, zeroDivisionError(row, col)
		}
		return Number(math.Pow(an, bn)), nil

	case compiler.OpEq:
		return Boolean(Equal(a, b)), nil
	case compiler.OpNeq:
		return Boolean(!Equal(a, b)), nil

	case compiler.OpLt, compiler.OpLte, compiler.OpGt, compiler.OpGte:
		if an, aok := toNumber(a); aok {
			if bn, bok := toNumber(b); bok {
				return Boolean(compareNums(op, an, bn)), nil
			}
		}
		if as, aok := a.(String); aok {
			if bs, bok := b.(String); bok {
				return Boolean(compareStrings(op, string(as), string(bs))), nil
			}
		}
		return nil, typeError(row, col, "unsupported operand types for comparison")

	case compiler.OpAnd:
		if !Truthy(a) {
			return a, nil
		}
		return b, nil
	case compiler.OpOr:
		if Truthy(a) {
			return a, nil
		}
		return b, nil
	}
	return nil, typeError(row, col, "unknown operator")
}

func compareNums(op byte, a, b float64) bool {
	switch op {
	case compiler.OpLt:
		return a < b
	case compiler.OpLte:
		return a <= b
	case compiler.OpGt:
		return a > b
	default:
		return a >= b
	}
}

func compareStrings(op byte, a, b string) bool {
	switch op {
	case compiler.OpLt:
		return a < b
	case compiler.OpLte:
		return a <= b
	case compiler.OpGt:
		return a > b
	default:
		return a >= b
	}
}

func numOp(a, b Object, row, col int, name string, f func(float64, float64) float64) (Object, error) {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if !aok || !bok {
		return nil, typeError(row, col, "unsupported operand types for "+name)
	}
	return Number(f(an, bn)), nil
}

func clampRepeat(n float64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}

func (vm *VM) unaryOp(op byte, a Object, row, col int) (Object, error) {
	switch op {
	case compiler.OpNeg:
		n, ok := toNumber(a)
		if !ok {
			return nil, typeError(row, col, "bad operand type for unary -")
		}
		return Number(-n), nil
	case compiler.OpNot:
		return Boolean(!Truthy(a)), nil
	}
	return nil, typeError(row, col, "unknown unary operator")
}

func (vm *VM) indexGet(container, idx Object, row, col int) (Object, error) {
	switch c := container.(type) {
	case *List:
		n, ok := toNumber(idx)
		if !ok {
			return nil, typeError(row, col, "list index must be a number")
		}
		i := int(n)
		if i < 0 || i >= len(c.Elems) {
			return nil, indexError(row, col, "list index out of range")
		}
		return c.Elems[i], nil
	case *Dict:
		key, ok := idx.(String)
		if !ok {
			return nil, typeError(row, col, "dict key must be a string")
		}
		v, found := c.Get(string(key))
		if !found {
			return nil, indexError(row, col, "key not found: "+string(key))
		}
		return v, nil
	case String:
		n, ok := toNumber(idx)
		if !ok {
			return nil, typeError(row, col, "string index must be a number")
		}
		runes := []rune(string(c))
		i := int(n)
		if i < 0 || i >= len(runes) {
			return nil, indexError(row, col, "string index out of range")
		}
		return String(string(runes[i])), nil
	default:
		return nil, typeError(row, col, "object is not subscriptable")
	}
}

func (vm *VM) indexSet(container, idx, val Object, row, col int) error {
	switch c := container.(type) {
	case *List:
		n, ok := toNumber(idx)
		if !ok {
			return typeError(row, col, "list index must be a number")
		}
		i := int(n)
		if i < 0 || i >= len(c.Elems) {
			return indexError(row, col, "list assignment index out of range")
		}
		c.Elems[i] = val
		return nil
	case *Dict:
		key, ok := idx.(String)
		if !ok {
			return typeError(row, col, "dict key must be a string")
		}
		c.Set(string(key), val)
		return nil
	default:
		return typeError(row, col, "object does not support item assignment")
	}
}

// ---- builtins ----

func (vm *VM) installBuiltins() {
	vm.Builtins["print"] = &NativeFunction{Name: "print", Fn: builtinPrint}
	vm.Builtins["range"] = &NativeFunction{Name: "range", Fn: builtinRange}
	vm.Builtins["len"] = &NativeFunction{Name: "len", Fn: builtinLen}
	vm.Builtins["str"] = &NativeFunction{Name: "str", Fn: builtinStr}
	vm.Builtins["int"] = &NativeFunction{Name: "int", Fn: builtinInt}
	vm.Builtins["float"] = &NativeFunction{Name: "float", Fn: builtinFloat}
	vm.Builtins["bool"] = &NativeFunction{Name: "bool", Fn: builtinBool}
}

func builtinPrint(vm *VM, args []Object) (Object, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = objString(a)
	}
	fmt.Fprintln(vm.Out, strings.Join(parts, " "))
	return None{}, nil
}

func builtinRange(vm *VM, args []Object) (Object, error) {
	var start, end, step float64 = 0, 0, 1
	switch len(args) {
	case 1:
		n, ok := toNumber(args[0])
		if !ok {
			return nil, typeError(0, 0, "range() argument must be a number")
		}
		end = n
	case 2, 3:
		n0, ok0 := toNumber(args[0])
		n1, ok1 := toNumber(args[1])
		if !ok0 || !ok1 {
			return nil, typeError(0, 0, "range() arguments must be numbers")
		}
		start, end = n0, n1
		if len(args) == 3 {
			n2, ok2 := toNumber(args[2])
			if !ok2 || n2 == 0 {
				return nil, typeError(0, 0, "range() step must be a non-zero number")
			}
			step = n2
		}
	default:
		return nil, typeError(0, 0, "range() expects 1 to 3 arguments")
	}
	var elems []Object
	if step > 0 {
		for v := start; v < end; v += step {
			elems = append(elems, Number(v))
		}
	} else {
		for v := start; v > end; v += step {
			elems = append(elems, Number(v))
		}
	}
	return &List{Elems: elems}, nil
}

func builtinLen(vm *VM, args []Object) (Object, error) {
	if len(args) != 1 {
		return nil, typeError(0, 0, "len() expects exactly 1 argument")
	}
	switch v := args[0].(type) {
	case *List:
		return Number(len(v.Elems)), nil
	case *Set:
		return Number(len(v.Elems)), nil
	case *Dict:
		return Number(len(v.Keys)), nil
	case String:
		return Number(len([]rune(string(v)))), nil
	default:
		return nil, typeError(0, 0, "object has no len()")
	}
}

func builtinStr(vm *VM, args []Object) (Object, error) {
	if len(args) != 1 {
		return nil, typeError(0, 0, "str() expects exactly 1 argument")
	}
	return String(objString(args[0])), nil
}

func builtinInt(vm *VM, args []Object) (Object, error) {
	if len(args) != 1 {
		return nil, typeError(0, 0, "int() expects exactly 1 argument")
	}
	if s, ok := args[0].(String); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if err != nil {
			return nil, typeError(0, 0, "invalid literal for int(): "+string(s))
		}
		return Number(math.Trunc(f)), nil
	}
	n, ok := toNumber(args[0])
	if !ok {
		return nil, typeError(0, 0, "int() argument must be a string or a number")
	}
	return Number(math.Trunc(n)), nil
}

func builtinFloat(vm *VM, args []Object) (Object, error) {
	if len(args) != 1 {
		return nil, typeError(0, 0, "float() expects exactly 1 argument")
	}
	if s, ok := args[0].(String); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(string(s)), 64)
		if err != nil {
			return nil, typeError(0, 0, "invalid literal for float(): "+string(s))
		}
		return Number(f), nil
	}
	n, ok := toNumber(args[0])
	if !ok {
		return nil, typeError(0, 0, "float() argument must be a string or a number")
	}
	return Number(n), nil
}

func builtinBool(vm *VM, args []Object) (Object, error) {
	if len(args) != 1 {
		return nil, typeError(0, 0, "bool() expects exactly 1 argument")
	}
	return Boolean(Truthy(args[0])), nil
}

// objString renders a value the way print()/str() show it.
func objString(o Object) string {
	switch v := o.(type) {
	case None:
		return "None"
	case Boolean:
		if v {
			return "true"
		}
		return "false"
	case Number:
		return strconv.FormatFloat(float64(v), 'g', -1, 64)
	case String:
		return string(v)
	case *List:
		return "[" + joinObjects(v.Elems) + "]"
	case *Set:
		return "{" + joinObjects(v.Elems) + "}"
	case *Dict:
		parts := make([]string, len(v.Keys))
		for i, k := range v.Keys {
			parts[i] = fmt.Sprintf("%q: %s", k, objString(v.Values[i]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Function:
		return "<function " + v.Code.Name + ">"
	case *NativeFunction:
		return "<builtin " + v.Name + ">"
	case *Generator:
		return "<generator>"
	default:
		return fmt.Sprintf("%v", o)
	}
}

func joinObjects(objs []Object) string {
	parts := make([]string, len(objs))
	for i, o := range objs {
		parts[i] = objString(o)
	}
	return strings.Join(parts, ", ")
}
