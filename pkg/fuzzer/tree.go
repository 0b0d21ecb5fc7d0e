package fuzzer

// node is a vertex of the expansion tree. A non-terminal node without
// children has not been expanded yet.
type node struct {
	sym      int
	depth    int
	expanded bool
	children []int
}

// tree is an expansion tree stored as an arena of nodes indexed by id.
// Node 0 is the root. The tree owns its nodes exclusively.
type tree struct {
	nodes []node
}

func newTree(root int) *tree {
	return &tree{nodes: []node{{sym: root}}}
}

// expand attaches one child per value to id and returns the child ids.
func (t *tree) expand(id int, values []int) []int {
	depth := t.nodes[id].depth + 1
	children := make([]int, len(values))
	for i, v := range values {
		children[i] = len(t.nodes)
		t.nodes = append(t.nodes, node{sym: v, depth: depth})
	}
	t.nodes[id].children = children
	t.nodes[id].expanded = true
	return children
}

// frontier returns the unexpanded non-terminal leaves in breadth-first
// order.
func (t *tree) frontier(c *compiled) []int {
	var leaves []int
	queue := []int{0}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		n := t.nodes[id]
		if !c.nonTerminal[n.sym] {
			continue
		}
		if !n.expanded {
			leaves = append(leaves, id)
			continue
		}
		queue = append(queue, n.children...)
	}
	return leaves
}

// preorder returns the symbols of the nodes accepted by keep in depth-first
// pre-order, which reads leaves left to right.
func (t *tree) preorder(keep func(n node) bool) []int {
	var result []int
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := t.nodes[id]
		if keep(n) {
			result = append(result, n.sym)
		}
		for i := len(n.children) - 1; i >= 0; i-- {
			stack = append(stack, n.children[i])
		}
	}
	return result
}
