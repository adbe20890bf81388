package parser

// ctx is the grammar's context object: indentation depth plus the
// two gating flags that restrict which Unit arms may match. It's threaded
// by value, never shared, so each recursive call sees exactly the context
// its caller intended.
type ctx struct {
	depth      int
	inLoop     bool
	inFunction bool
}

func (c ctx) nested() ctx {
	c.depth++
	return c
}

func (c ctx) loop() ctx {
	c.inLoop = true
	return c
}

// function enters a nested function body. inLoop resets: a loop enclosing
// the def doesn't make break/continue valid inside it, since they bind to
// the nearest loop, not the nearest lexical ancestor.
func (c ctx) function() ctx {
	c.inFunction = true
	c.inLoop = false
	return c
}
