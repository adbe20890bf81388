// Package cst is the concrete parse tree built alongside the AST: one node
// per grammar arm, with tokens as leaves.
package cst

import "pdp/token"

// Node is either an internal node for a matched TPG arm (Arm set,
// Children populated) or a leaf wrapping the token it matched (Tok set).
//
// Unlike the AST, the concrete tree has no need for per-arm Go types: its
// only consumer is the pretty printer in package artifact, and every arm
// already carries its own shape in Arm plus an ordered Children slice, so
// one struct covers every production in the grammar — each nonterminal
// variant carries its children in a fixed tuple shape dictated by its
// grammar arm, enforced by the parser that builds the tree rather than by
// distinct Go types.
type Node struct {
	Arm      string
	Tok      *token.Token
	Children []*Node
}

// Leaf wraps a matched token as a parse-tree leaf.
func Leaf(t token.Token) *Node {
	return &Node{Tok: &t}
}

// Branch creates an internal node for the named grammar arm.
func Branch(arm string, children ...*Node) *Node {
	return &Node{Arm: arm, Children: children}
}

// Label is the text the pretty printer shows for this node.
func (n *Node) Label() string {
	if n.Tok != nil {
		return n.Tok.String()
	}
	return n.Arm
}
