package node3d

// TreeBuilderOption is a functional option applied to a Tree during construction via NewTree.
type TreeBuilderOption func(*Tree)

// WithHooks installs the dispatch table the tree calls on dirtying and destruction.
//
// Parameters:
//   - hooks: the hook table, nil members are skipped
//
// Returns:
//   - TreeBuilderOption: a function that applies the hooks option to a tree
func WithHooks(hooks Hooks3D) TreeBuilderOption {
	return func(t *Tree) {
		t.hooks = hooks
	}
}

// WithCapacity preallocates room for n nodes.
func WithCapacity(n int) TreeBuilderOption {
	return func(t *Tree) {
		if n+1 > cap(t.nodes) {
			nodes := make([]node, len(t.nodes), n+1)
			copy(nodes, t.nodes)
			t.nodes = nodes
		}
	}
}
