package node2d

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/engine/transform"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

func assertVec2(t *testing.T, want, got [2]float32) {
	t.Helper()
	assert.InDelta(t, want[0], got[0], tol)
	assert.InDelta(t, want[1], got[1], tol)
}

func TestChildGlobalPositionAddsParentTranslation(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)

	tree.SetPosition(root, [2]float32{10, 10})
	tree.SetPosition(child, [2]float32{5, 5})

	assertVec2(t, [2]float32{15, 15}, tree.GlobalPosition(child))
}

func TestGlobalPositionMatchesParentTransformImmediately(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetPosition(root, [2]float32{3, -2})
	tree.SetRotation(root, 0.7)
	tree.SetScale(root, [2]float32{2, 0.5})
	tree.SetPosition(child, [2]float32{4, 1})

	want := tree.GlobalTransform(root).TransformPoint(tree.Position(child))
	assertVec2(t, want, tree.GlobalPosition(child))

	// a single mutation is visible on the next read
	tree.SetPosition(root, [2]float32{0, 0})
	want = tree.GlobalTransform(root).TransformPoint(tree.Position(child))
	assertVec2(t, want, tree.GlobalPosition(child))
}

func TestSettingCurrentValueDoesNotDirty(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetPosition(child, [2]float32{1, 2})
	tree.GlobalPosition(child)

	before := tree.Recomputes()
	tree.SetPosition(child, [2]float32{1, 2})
	tree.SetRotation(child, 0)
	tree.SetScale(child, [2]float32{1, 1})
	tree.SetParent(child, root)

	assert.Zero(t, tree.Dirty(child))
	tree.GlobalPosition(child)
	assert.Equal(t, before, tree.Recomputes())
}

func TestDirtyBitsPropagateToDescendants(t *testing.T) {
	tree := NewTree()
	a := tree.Create("a")
	b := tree.Create("b")
	c := tree.Create("c")
	tree.SetParent(b, a)
	tree.SetParent(c, b)
	tree.GlobalPosition(c)
	require.Zero(t, tree.Dirty(a))

	tree.SetRotation(a, 1)
	assert.Equal(t, transform.DirtyRotation, tree.Dirty(a))
	assert.Equal(t, transform.DirtyRotation, tree.Dirty(b))
	assert.Equal(t, transform.DirtyRotation, tree.Dirty(c))

	tree.SetScale(b, [2]float32{2, 2})
	assert.Equal(t, transform.DirtyRotation, tree.Dirty(a))
	assert.Equal(t, transform.DirtyRotation|transform.DirtyScale, tree.Dirty(c))
}

func TestGlobalSetterRoundTrip(t *testing.T) {
	tree := NewTree()
	lone := tree.Create("lone")
	tree.SetGlobalPosition(lone, [2]float32{7, -3})
	assertVec2(t, [2]float32{7, -3}, tree.GlobalPosition(lone))

	a := tree.Create("a")
	b := tree.Create("b")
	c := tree.Create("c")
	tree.SetParent(b, a)
	tree.SetParent(c, b)
	tree.SetPosition(a, [2]float32{5, 1})
	tree.SetRotation(a, math32.Pi/3)
	tree.SetScale(a, [2]float32{2, 2})
	tree.SetPosition(b, [2]float32{-1, 4})
	tree.SetRotation(b, -0.4)
	tree.SetScale(b, [2]float32{0.5, 3})

	tree.SetGlobalPosition(c, [2]float32{12, 9})
	assertVec2(t, [2]float32{12, 9}, tree.GlobalPosition(c))

	tree.SetGlobalRotation(c, 0.25)
	assert.InDelta(t, 0.25, tree.GlobalRotation(c), tol)

	tree.SetGlobalScale(c, [2]float32{3, 3})
	assertVec2(t, [2]float32{3, 3}, tree.GlobalScale(c))
}

func TestSetGlobalScaleKeepsComponentForZeroParentScale(t *testing.T) {
	tree := NewTree()
	parent := tree.Create("parent")
	child := tree.Create("child")
	tree.SetParent(child, parent)
	tree.SetScale(parent, [2]float32{0, 2})
	tree.SetScale(child, [2]float32{4, 4})

	tree.SetGlobalScale(child, [2]float32{10, 10})

	assert.Equal(t, [2]float32{4, 5}, tree.Scale(child))
	gs := tree.GlobalScale(child)
	assert.False(t, math32.IsNaN(gs[0]) || math32.IsInf(gs[0], 0))
}

func TestReparentUpdatesDepthAndSiblings(t *testing.T) {
	tree := NewTree()
	a := tree.Create("a")
	b := tree.Create("b")
	c1 := tree.Create("c1")
	c2 := tree.Create("c2")
	c3 := tree.Create("c3")
	tree.SetParent(c1, a)
	tree.SetParent(c2, a)
	tree.SetParent(c3, a)
	tree.SetParent(b, c3)

	assert.Equal(t, 2, tree.Depth(b))
	assert.Equal(t, 2, tree.Pos(c3))

	tree.SetParent(c2, Nil)
	assert.Equal(t, []Handle{c1, c3}, tree.Children(a))
	assert.Equal(t, 1, tree.Pos(c3))
	assert.Equal(t, 0, tree.Depth(c2))

	tree.SetParent(c3, c2)
	assert.Equal(t, 1, tree.Depth(c3))
	assert.Equal(t, 2, tree.Depth(b))
}

func TestReparentUnderDescendantIsRefused(t *testing.T) {
	tree := NewTree()
	a := tree.Create("a")
	b := tree.Create("b")
	tree.SetParent(b, a)

	tree.SetParent(a, b)
	tree.SetParent(a, a)

	assert.Equal(t, Nil, tree.Parent(a))
	assert.Equal(t, a, tree.Parent(b))
}

func TestReparentKeepsGlobalConsistent(t *testing.T) {
	tree := NewTree()
	a := tree.Create("a")
	b := tree.Create("b")
	child := tree.Create("child")
	tree.SetPosition(a, [2]float32{1, 0})
	tree.SetPosition(b, [2]float32{0, 100})
	tree.SetParent(child, a)
	assertVec2(t, [2]float32{1, 0}, tree.GlobalPosition(child))

	tree.SetParent(child, b)
	assertVec2(t, [2]float32{0, 100}, tree.GlobalPosition(child))
}

func TestDestroyNotifiesChildrenFirstAndInvalidatesHandles(t *testing.T) {
	var destroyed []string
	var tree *Tree
	tree = NewTree(WithHooks(Hooks2D{
		OnDestroy: func(h Handle) { destroyed = append(destroyed, tree.Name(h)) },
	}))
	root := tree.Create("root")
	mid := tree.Create("mid")
	leaf := tree.Create("leaf")
	other := tree.Create("other")
	tree.SetParent(mid, root)
	tree.SetParent(leaf, mid)
	tree.SetParent(other, root)

	tree.Destroy(mid)

	assert.Equal(t, []string{"leaf", "mid"}, destroyed)
	assert.False(t, tree.Valid(mid))
	assert.False(t, tree.Valid(leaf))
	assert.Equal(t, []Handle{other}, tree.Children(root))
	assert.Equal(t, 0, tree.Pos(other))

	recycled := tree.Create("recycled")
	assert.True(t, tree.Valid(recycled))
	assert.False(t, tree.Valid(leaf))
	assert.Panics(t, func() { tree.Position(leaf) })
}

func TestWalkOrdersByDepthThenPosition(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	a := tree.Create("a")
	b := tree.Create("b")
	a1 := tree.Create("a1")
	b1 := tree.Create("b1")
	tree.SetParent(a, root)
	tree.SetParent(b, root)
	tree.SetParent(b1, b)
	tree.SetParent(a1, a)

	var names []string
	tree.Walk(root, func(h Handle) bool {
		names = append(names, tree.Name(h))
		return true
	})
	assert.Equal(t, []string{"root", "a", "b", "a1", "b1"}, names)

	names = names[:0]
	tree.Walk(root, func(h Handle) bool {
		names = append(names, tree.Name(h))
		return h != a
	})
	assert.Equal(t, []string{"root", "a", "b", "b1"}, names)
}

func TestToLocalInvertsToGlobal(t *testing.T) {
	tree := NewTree()
	h := tree.Create("h")
	tree.SetPosition(h, [2]float32{3, 4})
	tree.SetRotation(h, 1.2)
	tree.SetScale(h, [2]float32{2, 3})

	p := [2]float32{-5, 8}
	assertVec2(t, p, tree.ToLocal(h, tree.ToGlobal(h, p)))
}

func TestTreeStringIndentsChildren(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)

	lines := strings.Split(strings.TrimSpace(tree.TreeString(root)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "  child"))
}
