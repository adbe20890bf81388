package ast

import "fmt"

// Label renders one line describing n, the way ast.txt shows a node:
// its kind plus whatever scalar fields distinguish it from its siblings.
// Children walks separately, so Label never recurses.
func Label(n Node) string {
	switch v := n.(type) {
	case *Script:
		return "script"
	case *Block:
		return "block"
	case *If:
		return "if_stmt"
	case *While:
		return "while_loop"
	case *For:
		return fmt.Sprintf("for_loop var=%s", v.Var)
	case *Continue:
		return "continue"
	case *Break:
		return "break"
	case *Return:
		return "return_stmt"
	case *FunctionDef:
		return fmt.Sprintf("function_def name=%s", v.Name)
	case *FunctionCall:
		return "function_call"
	case *AssignOp:
		return fmt.Sprintf("assign_op op=%s", v.Op)
	case *Variable:
		return fmt.Sprintf("variable name=%s", v.Name)
	case *Expr:
		return "expr"
	case *UnaryOp:
		return fmt.Sprintf("unary_op op=%s", v.Op)
	case *BinaryOpChain:
		ops := ""
		for _, o := range v.Tail {
			ops += " " + o.Op
		}
		return fmt.Sprintf("binary_op_chain ops=[%s]", ops)
	case *List:
		return "list"
	case *Set:
		return "set"
	case *Dict:
		return "dictionary"
	case *IndexChain:
		return "index_chain"
	case *ParamsList:
		return fmt.Sprintf("params_list names=%v", v.Names)
	case *Arguments:
		return "arguments"
	case *Number:
		return fmt.Sprintf("number value=%v", v.Value)
	case *String:
		return fmt.Sprintf("string value=%q", v.Value)
	case *Boolean:
		return fmt.Sprintf("boolean value=%v", v.Value)
	case *Yield:
		return "yield"
	case *Empty:
		return "empty"
	default:
		return n.Kind().String()
	}
}

// Children returns n's direct descendants in source order, for the
// ast.txt pretty printer's recursive indent walk.
func Children(n Node) []Node {
	switch v := n.(type) {
	case *Script:
		return []Node{v.Body}
	case *Block:
		return v.Stmts
	case *If:
		return []Node{v.Cond, v.Body}
	case *While:
		return []Node{v.Cond, v.Body}
	case *For:
		return []Node{v.Iter, v.Body}
	case *Return:
		if v.Value == nil {
			return nil
		}
		return []Node{v.Value}
	case *FunctionDef:
		return []Node{v.Params, v.Body}
	case *FunctionCall:
		return []Node{v.Callee, v.Args}
	case *AssignOp:
		return []Node{v.Target, v.Value}
	case *Expr:
		return []Node{v.Inner}
	case *UnaryOp:
		return []Node{v.Operand}
	case *BinaryOpChain:
		out := []Node{v.Head}
		for _, o := range v.Tail {
			out = append(out, o.Rhs)
		}
		return out
	case *List:
		return v.Elements
	case *Set:
		return v.Elements
	case *Dict:
		out := make([]Node, 0, len(v.Keys)+len(v.Values))
		for i := range v.Keys {
			out = append(out, v.Keys[i], v.Values[i])
		}
		return out
	case *IndexChain:
		out := []Node{v.Base}
		return append(out, v.Indices...)
	case *Arguments:
		return v.Values
	case *Yield:
		return []Node{v.Value}
	default:
		return nil
	}
}
