package node3d

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

func assertVec3(t *testing.T, want, got [3]float32) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, want[i], got[i], tol, "component %d", i)
	}
}

func newPrimitive(t *testing.T) mesh.MeshPrimitive {
	t.Helper()
	r := renderertest.NewRenderer()
	m, err := mesh.NewMesh(r, mesh.CubeGeometry(1))
	require.NoError(t, err)
	p := mesh.NewMeshPrimitive(r, m, material.NewUnlitMaterial(nil))
	t.Cleanup(p.Release)
	return p
}

func TestChildGlobalPositionFollowsParentTransform(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)

	tree.SetPosition(root, [3]float32{1, 0, 0})
	tree.SetRotation(root, common.QuatFromAxisAngle([3]float32{0, 1, 0}, math32.Pi/2))
	tree.SetScale(root, [3]float32{2, 2, 2})
	tree.SetPosition(child, [3]float32{1, 0, 0})

	// (1,0,0) scaled to (2,0,0), turned to (0,0,-2), moved to (1,0,-2)
	assertVec3(t, [3]float32{1, 0, -2}, tree.GlobalPosition(child))
	assertVec3(t, [3]float32{2, 2, 2}, tree.GlobalScale(child))
	assertVec3(t, [3]float32{}, tree.ToLocal(child, tree.GlobalPosition(child)))
	assertVec3(t, [3]float32{1, 0, -2}, tree.ToGlobal(child, [3]float32{}))
}

func TestDirtyReachesEveryDescendantEachTime(t *testing.T) {
	var dirtied []Handle
	tree := NewTree(WithHooks(Hooks3D{OnDirty: func(h Handle) { dirtied = append(dirtied, h) }}))
	root := tree.Create("root")
	child := tree.Create("child")
	leaf := tree.Create("leaf")
	tree.SetParent(child, root)
	tree.SetParent(leaf, child)
	dirtied = nil

	tree.SetPosition(root, [3]float32{1, 0, 0})
	tree.SetPosition(root, [3]float32{2, 0, 0})
	assert.Equal(t, []Handle{root, child, leaf, root, child, leaf}, dirtied)
	assert.True(t, tree.Dirty(leaf))

	tree.GlobalTransform(leaf)
	assert.False(t, tree.Dirty(child))
	tree.SetPosition(root, [3]float32{2, 0, 0})
	assert.False(t, tree.Dirty(child))
}

func TestSettingCurrentValuesRecomputesNothing(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	leaf := tree.Create("leaf")
	tree.SetParent(child, root)
	tree.SetParent(leaf, child)
	tree.SetPosition(root, [3]float32{1, 2, 3})
	tree.GlobalTransform(leaf)
	before := tree.Recomputes()

	tree.SetPosition(root, [3]float32{1, 2, 3})
	tree.SetRotation(child, tree.Rotation(child))
	tree.SetScale(leaf, tree.Scale(leaf))
	assert.False(t, tree.Dirty(leaf))
	tree.GlobalTransform(leaf)
	assert.Equal(t, before, tree.Recomputes())

	tree.SetPosition(root, [3]float32{1, 2, 4})
	tree.GlobalTransform(leaf)
	assert.Greater(t, tree.Recomputes(), before)
}

func TestSetGlobalPositionRoundTripsThroughNestedParents(t *testing.T) {
	tree := NewTree()
	lone := tree.Create("lone")
	tree.SetGlobalPosition(lone, [3]float32{7, -3, 2})
	assertVec3(t, [3]float32{7, -3, 2}, tree.GlobalPosition(lone))

	a := tree.Create("a")
	b := tree.Create("b")
	c := tree.Create("c")
	tree.SetParent(b, a)
	tree.SetParent(c, b)
	tree.SetPosition(a, [3]float32{5, 1, -2})
	tree.SetRotation(a, common.QuatFromAxisAngle([3]float32{0, 1, 0}, math32.Pi/3))
	tree.SetScale(a, [3]float32{2, 2, 2})
	tree.SetPosition(b, [3]float32{-1, 4, 0.5})
	tree.SetRotation(b, common.QuatFromAxisAngle([3]float32{1, 0, 0}, -0.4))
	tree.SetScale(b, [3]float32{0.5, 0.5, 0.5})

	tree.SetGlobalPosition(c, [3]float32{12, 9, -7})
	assertVec3(t, [3]float32{12, 9, -7}, tree.GlobalPosition(c))
	assertVec3(t, [3]float32{12, 9, -7}, tree.ToGlobal(b, tree.Position(c)))
}

func TestSetGlobalRotationComposesWithParent(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetRotation(root, common.QuatFromAxisAngle([3]float32{0, 1, 0}, 0.8))

	want := common.QuatFromAxisAngle([3]float32{1, 0, 0}, 0.3)
	tree.SetGlobalRotation(child, want)
	v := [3]float32{0.2, 0.5, 1}
	assertVec3(t, want.Rotate(v), tree.GlobalRotation(child).Rotate(v))
}

func TestSetGlobalScaleKeepsComponentUnderZeroParentScale(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetScale(root, [3]float32{2, 0, 4})
	tree.SetScale(child, [3]float32{1, 3, 1})

	tree.SetGlobalScale(child, [3]float32{4, 4, 4})
	assert.Equal(t, [3]float32{2, 3, 1}, tree.Scale(child))
}

func TestLookAtFacesTarget(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetRotation(root, common.QuatFromAxisAngle([3]float32{0, 0, 1}, 0.4))
	tree.SetPosition(child, [3]float32{1, 1, 1})

	target := [3]float32{-3, 2, 6}
	tree.LookAt(child, target, [3]float32{0, 1, 0})
	pos := tree.GlobalPosition(child)
	dir := common.Normalize3([3]float32{target[0] - pos[0], target[1] - pos[1], target[2] - pos[2]})
	assertVec3(t, dir, tree.GlobalRotation(child).Rotate([3]float32{0, 0, 1}))
}

func TestInstanceRecordsTrackNodeChanges(t *testing.T) {
	prim := newPrimitive(t)
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.AttachInstance(child, prim)
	require.Equal(t, 1, prim.InstanceCount())

	prim.WriteInstanceDataToBuffer()
	assert.Equal(t, float32(0), prim.InstanceData()[12])

	tree.SetPosition(root, [3]float32{5, 0, 0})
	tree.SetColor(root, [4]float32{1, 0, 0, 1})
	prim.WriteInstanceDataToBuffer()
	data := prim.InstanceData()
	assert.Equal(t, float32(5), data[12])
	assert.Equal(t, []float32{1, 0, 0, 1}, data[16:20])
	assert.Equal(t, [4]float32{1, 0, 0, 1}, tree.Color(child))

	tree.DetachInstance(child)
	assert.Zero(t, prim.InstanceCount())
	assert.Nil(t, tree.MeshPrimitive(child))
}

func TestCulledTraversalSkipsNodesOutsideFrustum(t *testing.T) {
	prim := newPrimitive(t)
	tree := NewTree()
	root := tree.Create("root")
	near := tree.Create("near")
	far := tree.Create("far")
	tree.SetParent(near, root)
	tree.SetParent(far, root)
	tree.SetPosition(far, [3]float32{100, 0, 0})
	tree.SetFrustumCulled(far, true)
	tree.AttachInstance(near, prim)
	tree.AttachInstance(far, prim)

	cam := camera.NewCamera(camera.WithPosition([3]float32{0, 0, 5}), camera.WithViewport(320, 240))
	calls := 0
	tree.ForEachMeshPrimitiveCulled(root, cam, func(p mesh.MeshPrimitive) {
		calls++
		assert.Equal(t, prim, p)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, prim.VisibleInstanceCount())

	prim.ResetVisibility()
	calls = 0
	tree.ForEachMeshPrimitive(root, func(mesh.MeshPrimitive) { calls++ })
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, prim.VisibleInstanceCount())
}

func TestGlobalBoundsSphereCoversChildren(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	a := tree.Create("a")
	b := tree.Create("b")
	tree.SetParent(a, root)
	tree.SetParent(b, root)
	tree.SetPosition(a, [3]float32{-2, 0, 0})
	tree.SetPosition(b, [3]float32{2, 0, 0})
	tree.SetBounds(a, [3]float32{}, 1)
	tree.SetBounds(b, [3]float32{}, 1)

	center, radius := tree.GlobalBoundsSphere(root)
	assertVec3(t, [3]float32{}, center)
	assert.InDelta(t, 3, radius, tol)

	tree.SetScale(b, [3]float32{1, 4, 1})
	_, radius = tree.GlobalBoundsSphere(b)
	assert.InDelta(t, 4, radius, tol)

	_, radius = tree.GlobalBoundsSphere(tree.Create("empty"))
	assert.Negative(t, radius)
}

func TestCopyDuplicatesSubtreeAndInstances(t *testing.T) {
	prim := newPrimitive(t)
	tree := NewTree()
	root := tree.Create("root")
	arm := tree.Create("arm")
	hand := tree.Create("hand")
	tree.SetParent(arm, root)
	tree.SetParent(hand, arm)
	tree.SetPosition(root, [3]float32{0, 1, 0})
	tree.SetPosition(arm, [3]float32{1, 0, 0})
	tree.SetPosition(hand, [3]float32{0, 0, 1})
	tree.AttachInstance(hand, prim)

	dup := tree.Copy(arm)
	assert.Equal(t, Nil, tree.Parent(dup))
	assertVec3(t, tree.GlobalPosition(arm), tree.GlobalPosition(dup))
	children := tree.Children(dup)
	require.Len(t, children, 1)
	assert.Equal(t, "hand", tree.Name(children[0]))
	assertVec3(t, tree.GlobalPosition(hand), tree.GlobalPosition(children[0]))
	assert.Equal(t, 2, prim.InstanceCount())

	tree.Destroy(dup)
	assert.False(t, tree.Valid(dup))
	assert.Equal(t, 1, prim.InstanceCount())
	assert.True(t, strings.HasPrefix(tree.TreeString(root), "root (depth=0"))
}

func TestParentingUnderDescendantIsRefused(t *testing.T) {
	tree := NewTree()
	root := tree.Create("root")
	child := tree.Create("child")
	tree.SetParent(child, root)
	tree.SetParent(root, child)
	assert.Equal(t, Nil, tree.Parent(root))
	assert.Equal(t, 1, tree.Depth(child))
	assert.Equal(t, []Handle{root}, tree.Roots())
}
