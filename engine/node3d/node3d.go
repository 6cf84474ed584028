// Package node3d implements the 3D scene graph as an arena of nodes addressed by handles. Nodes
// can carry one instance of a mesh.MeshPrimitive, and the tree keeps the primitive's instance
// records in sync with the node's transform and color.
package node3d

import (
	"fmt"
	"log"
	"strings"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/camera"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/Carmen-Shannon/oxy-core/engine/transform"
	"github.com/chewxy/math32"
)

// Handle identifies a node in a Tree. The low 32 bits are the slot, the high bits the slot's
// generation.
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

// Hooks3D is the optional dispatch table a Tree calls into.
type Hooks3D struct {
	// OnDirty is called for every node the dirty flag reaches.
	OnDirty func(h Handle)
	// OnDestroy is called once per node, children before their parent.
	OnDestroy func(h Handle)
}

// instance is the mesh.Instance of a node. Its records read the tree on upload.
type instance struct {
	tree *Tree
	h    Handle
}

func (i *instance) GlobalTransform() common.Mat4 {
	return i.tree.GlobalTransform(i.h)
}

func (i *instance) Color() [4]float32 {
	return i.tree.get(i.h).color
}

type node struct {
	gen      uint32
	alive    bool
	name     string
	parent   Handle
	children []Handle
	depth    int
	pos      int
	cache    transform.Cache3D
	color    [4]float32

	frustumCulled bool
	hasBounds     bool
	boundsCenter  [3]float32
	boundsRadius  float32

	primitive mesh.MeshPrimitive
	instance  *instance
}

// Tree is an arena of 3D nodes. A Tree is not safe for concurrent use.
type Tree struct {
	nodes      []node
	free       []int
	hooks      Hooks3D
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

// Create adds a new root node with an identity transform and a white color.
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
	n.cache = transform.NewCache3D()
	n.color = [4]float32{1, 1, 1, 1}
	n.frustumCulled = false
	n.hasBounds = false
	n.primitive = nil
	n.instance = nil
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
		panic(fmt.Sprintf("node3d: invalid handle %d", h))
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

// Dirty reports whether the node's cached transform is stale.
func (t *Tree) Dirty(h Handle) bool {
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
			log.Printf("[Node3D] refusing to parent %q under its own descendant %q", c.name, t.get(parent).name)
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
	t.markDirty(child)
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

// markDirty flags h and every descendant, whether or not they were already dirty, and queues
// their instance records for upload.
func (t *Tree) markDirty(h Handle) {
	n := t.get(h)
	n.cache.MarkDirty()
	if n.primitive != nil {
		n.primitive.InstanceDirty(n.instance)
	}
	if t.hooks.OnDirty != nil {
		t.hooks.OnDirty(h)
	}
	for _, c := range n.children {
		t.markDirty(c)
	}
}

// update brings h's cache up to date, resolving ancestors first.
func (t *Tree) update(h Handle) *node {
	n := t.get(h)
	if !n.cache.Dirty {
		return n
	}

	var (
		parentGlobal   *common.Mat4
		parentRotation = common.QuatIdentity()
		parentScale    = [3]float32{1, 1, 1}
	)
	if n.parent != Nil {
		p := t.update(n.parent)
		parentGlobal = &p.cache.Global
		parentRotation = p.cache.GlobalRotation
		parentScale = p.cache.GlobalScale
	}
	n.cache.Apply(transform.Recompute3D(parentGlobal, parentRotation, parentScale, n.cache.Position, n.cache.Rotation, n.cache.Scale))
	t.recomputes++
	return n
}

func (t *Tree) Position(h Handle) [3]float32 {
	return t.get(h).cache.Position
}

func (t *Tree) SetPosition(h Handle, p [3]float32) {
	n := t.get(h)
	if n.cache.Position == p {
		return
	}
	n.cache.Position = p
	t.markDirty(h)
}

func (t *Tree) Rotation(h Handle) common.Quat {
	return t.get(h).cache.Rotation
}

func (t *Tree) SetRotation(h Handle, q common.Quat) {
	n := t.get(h)
	if n.cache.Rotation == q {
		return
	}
	n.cache.Rotation = q
	t.markDirty(h)
}

func (t *Tree) Scale(h Handle) [3]float32 {
	return t.get(h).cache.Scale
}

func (t *Tree) SetScale(h Handle, s [3]float32) {
	n := t.get(h)
	if n.cache.Scale == s {
		return
	}
	n.cache.Scale = s
	t.markDirty(h)
}

// Translate moves the node by d in its parent's space.
func (t *Tree) Translate(h Handle, d [3]float32) {
	if d == ([3]float32{}) {
		return
	}
	p := t.Position(h)
	t.SetPosition(h, [3]float32{p[0] + d[0], p[1] + d[1], p[2] + d[2]})
}

// Rotate applies q in the node's local frame, after its current rotation.
func (t *Tree) Rotate(h Handle, q common.Quat) {
	t.SetRotation(h, t.Rotation(h).Mul(q).Normalize())
}

// RotateEuler is Rotate with a rotation built from Euler angles in radians.
func (t *Tree) RotateEuler(h Handle, x, y, z float32) {
	if x == 0 && y == 0 && z == 0 {
		return
	}
	t.Rotate(h, common.QuatFromEuler(x, y, z))
}

func (t *Tree) ScaleBy(h Handle, s [3]float32) {
	cur := t.Scale(h)
	t.SetScale(h, [3]float32{cur[0] * s[0], cur[1] * s[1], cur[2] * s[2]})
}

// SetIdentity resets the local transform.
func (t *Tree) SetIdentity(h Handle) {
	n := t.get(h)
	n.cache.Position = [3]float32{}
	n.cache.Rotation = common.QuatIdentity()
	n.cache.Scale = [3]float32{1, 1, 1}
	t.markDirty(h)
}

func (t *Tree) GlobalTransform(h Handle) common.Mat4 {
	return t.update(h).cache.Global
}

func (t *Tree) LocalTransform(h Handle) common.Mat4 {
	return t.update(h).cache.Local
}

func (t *Tree) GlobalInverse(h Handle) common.Mat4 {
	return t.update(h).cache.GlobalInverse()
}

func (t *Tree) GlobalPosition(h Handle) [3]float32 {
	return t.update(h).cache.GlobalPosition()
}

// SetGlobalPosition stores the local position that puts h at p in world space.
func (t *Tree) SetGlobalPosition(h Handle, p [3]float32) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetPosition(h, p)
		return
	}
	t.SetPosition(h, t.GlobalInverse(parent).TransformPoint(p))
}

func (t *Tree) GlobalRotation(h Handle) common.Quat {
	return t.update(h).cache.GlobalRotation
}

// SetGlobalRotation stores local = inverse(parent global rotation) * q.
func (t *Tree) SetGlobalRotation(h Handle, q common.Quat) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetRotation(h, q)
		return
	}
	t.SetRotation(h, t.GlobalRotation(parent).Inverse().Mul(q).Normalize())
}

func (t *Tree) GlobalScale(h Handle) [3]float32 {
	return t.update(h).cache.GlobalScale
}

// SetGlobalScale divides s by the parent's global scale. A zero parent component leaves the
// matching local component unchanged.
func (t *Tree) SetGlobalScale(h Handle, s [3]float32) {
	parent := t.get(h).parent
	if parent == Nil {
		t.SetScale(h, s)
		return
	}
	ps := t.GlobalScale(parent)
	cur := t.Scale(h)
	out, ok := transform.DivideScale(s[:], ps[:], cur[:])
	if !ok {
		log.Printf("[Node3D] parent scale component is zero, keeping local scale of %q", t.get(h).name)
	}
	t.SetScale(h, [3]float32{out[0], out[1], out[2]})
}

// LookAt turns the node so its local +Z axis points at target in world space. A target at the
// node's position, or straight along up, leaves the rotation unchanged.
//
// Parameters:
//   - h: the node
//   - target: the world-space point to face
//   - up: the world-space up direction
func (t *Tree) LookAt(h Handle, target, up [3]float32) {
	pos := t.GlobalPosition(h)
	q, ok := common.QuatLookAt([3]float32{target[0] - pos[0], target[1] - pos[1], target[2] - pos[2]}, up)
	if !ok {
		return
	}
	t.SetGlobalRotation(h, q)
}

// ToLocal converts a world-space point into h's local space.
func (t *Tree) ToLocal(h Handle, p [3]float32) [3]float32 {
	return t.GlobalInverse(h).TransformPoint(p)
}

// ToGlobal converts a point in h's local space into world space.
func (t *Tree) ToGlobal(h Handle, p [3]float32) [3]float32 {
	return t.GlobalTransform(h).TransformPoint(p)
}

// Color returns the instance tint of the node.
func (t *Tree) Color(h Handle) [4]float32 {
	return t.get(h).color
}

// SetColor sets the tint of h and every descendant.
func (t *Tree) SetColor(h Handle, c [4]float32) {
	n := t.get(h)
	if n.color != c {
		n.color = c
		if n.primitive != nil {
			n.primitive.InstanceDirty(n.instance)
		}
	}
	for _, child := range n.children {
		t.SetColor(child, c)
	}
}

func (t *Tree) FrustumCulled(h Handle) bool {
	return t.get(h).frustumCulled
}

// SetFrustumCulled makes culled traversals test the node's global bounding sphere and skip its
// subtree when the sphere is outside the camera frustum.
func (t *Tree) SetFrustumCulled(h Handle, culled bool) {
	t.get(h).frustumCulled = culled
}

// SetBounds sets the node's local bounding sphere. Without one a node is bounded by its mesh
// and its children.
func (t *Tree) SetBounds(h Handle, center [3]float32, radius float32) {
	n := t.get(h)
	n.hasBounds = true
	n.boundsCenter = center
	n.boundsRadius = radius
}

// GlobalBoundsSphere returns the world-space sphere enclosing the node's own bounds, or its
// mesh bounds, together with the bounds of every descendant.
//
// Parameters:
//   - h: the node
//
// Returns:
//   - [3]float32: the sphere center
//   - float32: the sphere radius, negative when nothing in the subtree has bounds
func (t *Tree) GlobalBoundsSphere(h Handle) ([3]float32, float32) {
	n := t.update(h)
	center, radius := [3]float32{}, float32(-1)
	if n.hasBounds || n.primitive != nil {
		local, r := n.boundsCenter, n.boundsRadius
		if !n.hasBounds {
			local, r = n.primitive.Mesh().Bounds()
		}
		s := n.cache.GlobalScale
		maxScale := max(math32.Abs(s[0]), math32.Abs(s[1]), math32.Abs(s[2]))
		center, radius = n.cache.Global.TransformPoint(local), r*maxScale
	}
	for _, c := range t.get(h).children {
		cc, cr := t.GlobalBoundsSphere(c)
		center, radius = mergeSpheres(center, radius, cc, cr)
	}
	return center, radius
}

// mergeSpheres returns the smallest sphere containing both. A negative radius is empty.
func mergeSpheres(ac [3]float32, ar float32, bc [3]float32, br float32) ([3]float32, float32) {
	if br < 0 {
		return ac, ar
	}
	if ar < 0 {
		return bc, br
	}
	d := [3]float32{bc[0] - ac[0], bc[1] - ac[1], bc[2] - ac[2]}
	dist := math32.Sqrt(common.Dot3(d, d))
	if dist+br <= ar {
		return ac, ar
	}
	if dist+ar <= br {
		return bc, br
	}
	r := (dist + ar + br) / 2
	k := (r - ar) / dist
	return [3]float32{ac[0] + d[0]*k, ac[1] + d[1]*k, ac[2] + d[2]*k}, r
}

// AttachInstance makes the node one instance of prim. The node's global transform and color
// become the instance record, and any later change to either queues the record for upload. A
// node carries at most one instance; attaching again moves it.
//
// Parameters:
//   - h: the node
//   - prim: the primitive to draw the node with
func (t *Tree) AttachInstance(h Handle, prim mesh.MeshPrimitive) {
	n := t.get(h)
	if n.primitive == prim {
		return
	}
	if n.primitive != nil {
		t.DetachInstance(h)
	}
	n.instance = &instance{tree: t, h: h}
	n.primitive = prim
	prim.AddInstance(n.instance)
}

// DetachInstance removes the node from its primitive. Nodes without one are ignored.
func (t *Tree) DetachInstance(h Handle) {
	n := t.get(h)
	if n.primitive == nil {
		return
	}
	n.primitive.RemoveInstance(n.instance)
	n.primitive = nil
	n.instance = nil
}

// MeshPrimitive returns the primitive the node is an instance of, or nil.
func (t *Tree) MeshPrimitive(h Handle) mesh.MeshPrimitive {
	return t.get(h).primitive
}

// ForEachMeshPrimitive calls fn once for every primitive with an instance in h's subtree and
// marks every one of those instances visible. Nothing is culled.
//
// Parameters:
//   - h: the subtree root
//   - fn: called once per primitive, in first-seen depth-first order
func (t *Tree) ForEachMeshPrimitive(h Handle, fn func(mesh.MeshPrimitive)) {
	seen := make(map[mesh.MeshPrimitive]struct{})
	t.forEach(h, nil, seen, fn)
}

// ForEachMeshPrimitiveCulled is ForEachMeshPrimitive with frustum culling. A frustum culled
// node whose global bounding sphere is outside cam's frustum is skipped with its subtree. Only
// the instances of the remaining nodes are marked visible.
//
// Parameters:
//   - h: the subtree root
//   - cam: the camera whose frustum culls
//   - fn: called once per primitive with at least one visible instance
func (t *Tree) ForEachMeshPrimitiveCulled(h Handle, cam camera.Camera, fn func(mesh.MeshPrimitive)) {
	seen := make(map[mesh.MeshPrimitive]struct{})
	t.forEach(h, cam, seen, fn)
}

func (t *Tree) forEach(h Handle, cam camera.Camera, seen map[mesh.MeshPrimitive]struct{}, fn func(mesh.MeshPrimitive)) {
	n := t.get(h)
	if cam != nil && n.frustumCulled {
		center, radius := t.GlobalBoundsSphere(h)
		if radius >= 0 && !cam.SphereInFrustum(center, radius) {
			return
		}
	}
	if prim := n.primitive; prim != nil {
		prim.MarkVisible(n.instance)
		if _, ok := seen[prim]; !ok {
			seen[prim] = struct{}{}
			fn(prim)
		}
	}
	for _, c := range t.get(h).children {
		t.forEach(c, cam, seen, fn)
	}
}

// Copy deep-copies h's subtree into new nodes and returns the new root. The copy is a root
// placed at h's global transform; descendants keep their local transforms. Copied instance
// nodes join the same primitives.
func (t *Tree) Copy(h Handle) Handle {
	global := t.update(h).cache
	root := t.copyNode(h)
	r := t.get(root)
	r.cache.Position = global.GlobalPosition()
	r.cache.Rotation = global.GlobalRotation
	r.cache.Scale = global.GlobalScale
	t.markDirty(root)
	return root
}

func (t *Tree) copyNode(h Handle) Handle {
	dst := t.Create(t.get(h).name)
	src, d := t.get(h), t.get(dst)
	d.cache.Position = src.cache.Position
	d.cache.Rotation = src.cache.Rotation
	d.cache.Scale = src.cache.Scale
	d.color = src.color
	d.frustumCulled = src.frustumCulled
	d.hasBounds = src.hasBounds
	d.boundsCenter = src.boundsCenter
	d.boundsRadius = src.boundsRadius
	prim := src.primitive
	children := append([]Handle(nil), src.children...)

	if prim != nil {
		t.AttachInstance(dst, prim)
	}
	for _, c := range children {
		t.SetParent(t.copyNode(c), dst)
	}
	return dst
}

// Destroy removes h and its whole subtree, children first. Instance nodes leave their
// primitives.
func (t *Tree) Destroy(h Handle) {
	n := t.get(h)
	children := append([]Handle(nil), n.children...)
	for _, c := range children {
		t.Destroy(c)
	}

	if t.hooks.OnDestroy != nil {
		t.hooks.OnDestroy(h)
	}
	t.DetachInstance(h)
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
	p := n.cache.Position
	fmt.Fprintf(sb, "%s%s (depth=%d pos=[%g %g %g])\n", strings.Repeat("  ", indent), n.name, n.depth, p[0], p[1], p[2])
	for _, c := range n.children {
		t.writeTree(sb, c, indent+1)
	}
}
