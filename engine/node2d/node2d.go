// Package node2d implements the 2D scene graph as an arena of nodes addressed by handles.
// Parent and child links are handles, never pointers, so destroying a subtree cannot leave a
// dangling reference: stale handles simply fail Valid.
package node2d

import (
	"fmt"
	"log"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/transform"
)

// Handle identifies a node in a Tree. The low 32 bits are the slot, the high bits the slot's
// generation, so a recycled slot never matches an old handle.
type Handle int64

// Nil is the zero handle. It never refers to a node.
const Nil Handle = 0

func makeHandle(slot int, gen uint32) Handle {
	return Handle(int64(gen)<<32 | int64(slot))
}

func (h Handle) slot() int {
	return int(int64(h) & 0xffffffff)
}

func (h Handle) gen() uint32 {
	return uint32(int64(h) >> 32)
}

// Hooks2D is the optional dispatch table a Tree calls into.
type Hooks2D struct {
	// OnDirty is called when a node gains dirty bits.
	OnDirty func(h Handle, bits uint8)
	// OnDestroy is called once per node, children before their parent.
	OnDestroy func(h Handle)
}

type node struct {
	gen      uint32
	alive    bool
	name     string
	parent   Handle
	children []Handle
	depth    int
	pos      int
	cache    transform.Cache2D
}

// Tree is an arena of 2D nodes. A Tree is not safe for concurrent use.
type Tree struct {
	nodes      []node
	free       []int
	hooks      Hooks2D
	recomputes int
}

// NewTree creates an empty Tree.
//
// Parameters:
//   - options: functional options to configure the tree
//
// Returns:
//   - *Tree: the new tree
func NewTree(options ...TreeBuilderOption) *Tree {
	t := &Tree{
		// slot 0 backs Nil
		nodes: make([]node, 1, 64),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Create adds a new root node with an identity transform.
func (t *Tree) Create(name string) Handle {
	var slot int
	if n := len(t.free); n > 0 {
		slot = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.nodes = append(t.nodes, node{})
		slot = len(t.nodes) - 1
	}
	n := &t.nodes[slot]
	n.gen++
	n.alive = true
	n.name = name
	n.parent = Nil
	n.children = n.children[:0]
	n.depth = 0
	n.pos = 0
	n.cache = transform.NewCache2D()
	return makeHandle(slot, n.gen)
}

// Valid reports whether h refers to a live node.
func (t *Tree) Valid(h Handle) bool {
	s := h.slot()
	if h == Nil || s <= 0 || s >= len(t.nodes) {
		return false
	}
	n := &t.nodes[s]
	return n.alive && n.gen == h.gen()
}

func (t *Tree) get(h Handle) *node {
	if !t.Valid(h) {
		panic(fmt.Sprintf("node2d: invalid handle %d", h))
	}
	return &t.nodes[h.slot()]
}

func (t *Tree) Name(h Handle) string {
	return t.get(h).name
}

func (t *Tree) Parent(h Handle) Handle {
	return t.get(h).parent
}

// Children returns a copy of the child list in sibling order.
func (t *Tree) Children(h Handle) []Handle {
	return append([]Handle(nil), t.get(h).children...)
}

func (t *Tree) Depth(h Handle) int {
	return t.get(h).depth
}

// Pos returns the node's index among its siblings.
func (t *Tree) Pos(h Handle) int {
	return t.get(h).pos
}

// Dirty returns the node's pending dirty bits.
func (t *Tree) Dirty(h Handle) uint8 {
	return t.get(h).cache.Dirty
}

// Recomputes returns how many transform recomputations the tree has performed.
func (t *Tree) Recomputes() int {
	return t.recomputes
}

func (t *Tree) isAncestor(ancestor, h Handle) bool {
	for p := t.get(h).parent; p != Nil; p = t.get(p).parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

// SetParent moves child under parent, or makes it a root when parent is Nil. Moving a node
// under itself or one of its descendants is refused.
func (t *Tree) SetParent(child, parent Handle) {
	c := t.get(child)
	if c.parent == parent {
		return
	}
	if parent != Nil {
		if parent == child || t.isAncestor(child, parent) {
			log.Printf("[Node2D] refusing to parent %q under its own descendant %q", c.name, t.get(parent).name)
			return
		}
	}

	if c.parent != Nil {
		t.detach(child)
	}
	c.parent = parent
	if parent != Nil {
		p := t.get(parent)
		c.pos = len(p.children)
		p.children = append(p.children, child)
		t.setDepth(child, p.depth+1)
	} else {
		c.pos = 0
		t.setDepth(child, 0)
	}
	t.markDirty(child, transform.DirtyAll)
}

func (t *Tree) detach(child Handle) {
	c := t.get(child)
	p := t.get(c.parent)
	idx := c.pos
	p.children = append(p.children[:idx], p.children[idx+1:]...)
	for i := idx; i < len(p.children); i++ {
		t.get(p.children[i]).pos = i
	}
	c.parent = Nil
}

func (t *Tree) setDepth(h Handle, depth int) {
	n := t.get(h)
	n.depth = depth
	for _, c := range n.children {
		t.setDepth(c, depth+1)
	}
}

// markDirty sets bits on h and pushes them to every child that does not already carry them.
// A set bit on a node implies the same bit on all of its descendants.
func (t *Tree) markDirty(h Handle, bits uint8) {
	t.get(h).cache.MarkDirty(bits)
	if t.hooks.OnDirty != nil {
		t.hooks.OnDirty(h, bits)
	}
	for _, c := range t.get(h).children {
		if t.get(c).cache.Dirty&bits != bits {
			t.markDirty(c, bits)
		}
	}
}

// update brings h's cache up to date, resolving ancestors first. A clean node has clean
// ancestors, so it returns without touching them.
func (t *Tree) update(h Handle) *node {
	n := t.get(h)
	if n.cache.Dirty == 0 {
		return n
	}

	var (
		parentGlobal   *common.Mat3
		parentRotation float32
		parentScale    = [2]float32{1, 1}
	)
	if n.parent != Nil {
		p := t.update(n.parent)
		parentGlobal = &p.cache.Global
		parentRotation = p.cache.GlobalRotation
		parentScale = p.cache.GlobalScale
	}
	n.cache.Apply(transform.Recompute2D(parentGlobal, parentRotation, parentScale, n.cache.Position, n.cache.Rotation, n.cache.Scale))
	t.recomputes++
	return n
}

func (t *Tree) Position(h Handle) [2]float32 {
	return t.get(h).cache.Position
}

func (t *Tree) SetPosition(h Handle, p [2]float32) {
	n := t.get(h)
	if n.cache.Position == p {
		return
	}
	n.cache.Position = p
	t.markDirty(h, transform.DirtyPosition)
}

// Rotation returns the local rotation in radians.
func (t *Tree) Rotation(h Handle) float32 {
	return t.get(h).cache.Rotation
}

func (t *Tree) SetRotation(h Handle, radians float32) {
	n := t.get(h)
	if n.cache.Rotation == radians {
		return
	}
	n.cache.Rotation = radians
	t.markDirty(h, transform.DirtyRotation)
}

func (t *Tree) Scale(h Handle) [2]float32 {
	return t.get(h).cache.Scale
}

func (t *Tree) SetScale(h Handle, s [2]float32) {
	n := t.get(h)
	if n.cache.Scale == s {
		return
	}
	n.cache.Scale = s
	t.markDirty(h, transform.DirtyScale)
}

func (t *Tree) Translate(h Handle, d [2]float32) {
	p := t.Position(h)
	t.SetPosition(h, [2]float32{p[0] + d[0], p[1] + d[1]})
}

func (t *Tree) Rotate(h Handle, radians float32) {
	t.SetRotation(h, t.Rotation(h)+radians)
}

func (t *Tree) ScaleBy(h Handle, s [2]float32) {
	cur := t.Scale(h)
	t.SetScale(h, [2]float32{cur[0] * s[0], cur[1] * s[1]})
}

func (t *Tree) GlobalTransform(h Handle) common.Mat3 {
	return t.update(h).cache.Global
}

func (t *Tree) LocalTransform(h Handle) common.Mat3 {
	return t.update(h).cache.Local
}

func (t *Tree) GlobalInverse(h Handle) common.Mat3 {
	return t.update(h).cache.GlobalInverse()
}

func (t *Tree) GlobalPosition(h Handle) [2]float32 {
	return t.update(h).cache.GlobalPosition
}

// SetGlobalPosition stores the local position that puts h at p in world space.
func (t *Tree) SetGlobalPosition(h Handle, p [2]float32) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetPosition(h, p)
		return
	}
	t.SetPosition(h, t.GlobalInverse(parent).TransformPoint(p))
}

func (t *Tree) GlobalRotation(h Handle) float32 {
	return t.update(h).cache.GlobalRotation
}

func (t *Tree) SetGlobalRotation(h Handle, radians float32) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetRotation(h, radians)
		return
	}
	t.SetRotation(h, radians-t.GlobalRotation(parent))
}

func (t *Tree) GlobalScale(h Handle) [2]float32 {
	return t.update(h).cache.GlobalScale
}

// SetGlobalScale divides s by the parent's global scale. A zero parent component leaves the
// matching local component unchanged.
func (t *Tree) SetGlobalScale(h Handle, s [2]float32) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetScale(h, s)
		return
	}
	ps := t.GlobalScale(parent)
	cur := t.Scale(h)
	out, ok := transform.DivideScale(s[:], ps[:], cur[:])
	if !ok {
		log.Printf("[Node2D] parent scale component is zero, keeping local scale of %q", t.get(h).name)
	}
	t.SetScale(h, [2]float32{out[0], out[1]})
}

// ToLocal converts a world-space point into h's local space.
func (t *Tree) ToLocal(h Handle, p [2]float32) [2]float32 {
	return t.GlobalInverse(h).TransformPoint(p)
}

// ToGlobal converts a point in h's local space into world space.
func (t *Tree) ToGlobal(h Handle, p [2]float32) [2]float32 {
	return t.GlobalTransform(h).TransformPoint(p)
}

// Destroy removes h and its whole subtree, children first.
func (t *Tree) Destroy(h Handle) {
	n := t.get(h)
	children := append([]Handle(nil), n.children...)
	for _, c := range children {
		t.Destroy(c)
	}

	if t.hooks.OnDestroy != nil {
		t.hooks.OnDestroy(h)
	}
	n = t.get(h)
	if n.parent != Nil {
		t.detach(h)
	}
	n.alive = false
	n.children = n.children[:0]
	n.name = ""
	t.free = append(t.free, h.slot())
}

// Walk calls fn for h and its descendants ordered by depth, then by sibling position.
// Returning false from fn skips that node's subtree.
func (t *Tree) Walk(h Handle, fn func(Handle) bool) {
	queue := []Handle{h}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if !fn(cur) {
			continue
		}
		queue = append(queue, t.get(cur).children...)
	}
}

// Roots returns every live root in creation-slot order.
func (t *Tree) Roots() []Handle {
	var roots []Handle
	for i := 1; i < len(t.nodes); i++ {
		n := &t.nodes[i]
		if n.alive && n.parent == Nil {
			roots = append(roots, makeHandle(i, n.gen))
		}
	}
	return roots
}

// TreeString renders h's subtree with one indented line per node.
func (t *Tree) TreeString(h Handle) string {
	var sb strings.Builder
	t.writeTree(&sb, h, 0)
	return sb.String()
}

func (t *Tree) writeTree(sb *strings.Builder, h Handle, indent int) {
	n := t.get(h)
	fmt.Fprintf(sb, "%s%s (depth=%d pos=%d)\n", strings.Repeat("  ", indent), n.name, n.depth, n.pos)
	for _, c := range n.children {
		t.writeTree(sb, c, indent+1)
	}
}
