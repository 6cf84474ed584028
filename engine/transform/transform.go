// Package transform holds the cached transform state of scene nodes and the pure functions that
// rebuild it. Trees own the caches and decide when to recompute; this package only knows how.
package transform

import "github.com/Carmen-Shannon/oxy-core/common"

// Dirty bits of a 2D transform. Each setter marks its own bit.
const (
	DirtyPosition uint8 = 1 << iota
	DirtyScale
	DirtyRotation
)

// DirtyAll marks every component of a 2D transform.
const DirtyAll = DirtyPosition | DirtyScale | DirtyRotation

// Cache2D is the transform state of one 2D node. Position, Rotation and Scale are the source of
// truth; everything else is derived and valid only while Dirty is zero.
type Cache2D struct {
	Position [2]float32
	Rotation float32 // radians
	Scale    [2]float32

	Local  common.Mat3
	Global common.Mat3

	GlobalPosition [2]float32
	GlobalRotation float32
	GlobalScale    [2]float32

	Dirty uint8

	inverse      common.Mat3
	inverseDirty bool
}

// Result2D is the output of Recompute2D.
type Result2D struct {
	Local          common.Mat3
	Global         common.Mat3
	GlobalPosition [2]float32
	GlobalRotation float32
	GlobalScale    [2]float32
}

// NewCache2D returns an identity transform that is dirty, so the first read computes it.
func NewCache2D() Cache2D {
	return Cache2D{
		Scale:        [2]float32{1, 1},
		Local:        common.Identity3(),
		Global:       common.Identity3(),
		GlobalScale:  [2]float32{1, 1},
		Dirty:        DirtyAll,
		inverse:      common.Identity3(),
		inverseDirty: true,
	}
}

// Recompute2D builds local = T*R*S and global = parent*local.
//
// Parameters:
//   - parentGlobal: the parent's global matrix, nil for a root
//   - parentRotation: the parent's global rotation in radians
//   - parentScale: the parent's global scale
//   - position: local position
//   - rotation: local rotation in radians
//   - scale: local scale
//
// Returns:
//   - Result2D: the rebuilt matrices and the decomposed global values
func Recompute2D(parentGlobal *common.Mat3, parentRotation float32, parentScale [2]float32, position [2]float32, rotation float32, scale [2]float32) Result2D {
	local := common.ComposeTRS2D(position, rotation, scale)
	if parentGlobal == nil {
		return Result2D{
			Local:          local,
			Global:         local,
			GlobalPosition: position,
			GlobalRotation: rotation,
			GlobalScale:    scale,
		}
	}
	global := parentGlobal.Mul(local)
	return Result2D{
		Local:          local,
		Global:         global,
		GlobalPosition: [2]float32{global[6], global[7]},
		GlobalRotation: parentRotation + rotation,
		GlobalScale:    [2]float32{parentScale[0] * scale[0], parentScale[1] * scale[1]},
	}
}

// Apply stores a recompute result and clears the dirty bits.
func (c *Cache2D) Apply(r Result2D) {
	c.Local = r.Local
	c.Global = r.Global
	c.GlobalPosition = r.GlobalPosition
	c.GlobalRotation = r.GlobalRotation
	c.GlobalScale = r.GlobalScale
	c.Dirty = 0
	c.inverseDirty = true
}

// MarkDirty sets bits and invalidates the cached inverse.
func (c *Cache2D) MarkDirty(bits uint8) {
	c.Dirty |= bits
	c.inverseDirty = true
}

// GlobalInverse returns the inverse of Global, computing it at most once per change.
// The caller must make sure Global is current.
func (c *Cache2D) GlobalInverse() common.Mat3 {
	if c.inverseDirty {
		c.inverse, _ = c.Global.Invert()
		c.inverseDirty = false
	}
	return c.inverse
}

// Cache3D is the transform state of one 3D node. There is a single dirty flag because 3D scenes
// recompute every frame anyway.
type Cache3D struct {
	Position [3]float32
	Rotation common.Quat
	Scale    [3]float32

	Local  common.Mat4
	Global common.Mat4

	GlobalRotation common.Quat
	GlobalScale    [3]float32

	Dirty bool

	inverse      common.Mat4
	inverseDirty bool
}

// Result3D is the output of Recompute3D.
type Result3D struct {
	Local          common.Mat4
	Global         common.Mat4
	GlobalRotation common.Quat
	GlobalScale    [3]float32
}

// NewCache3D returns an identity transform that is dirty.
func NewCache3D() Cache3D {
	return Cache3D{
		Rotation:       common.QuatIdentity(),
		Scale:          [3]float32{1, 1, 1},
		Local:          common.Identity4(),
		Global:         common.Identity4(),
		GlobalRotation: common.QuatIdentity(),
		GlobalScale:    [3]float32{1, 1, 1},
		Dirty:          true,
		inverse:        common.Identity4(),
		inverseDirty:   true,
	}
}

// Recompute3D builds local = T*R*S and global = parent*local.
//
// Parameters:
//   - parentGlobal: the parent's global matrix, nil for a root
//   - parentRotation: the parent's global rotation
//   - parentScale: the parent's global scale
//   - position: local position
//   - rotation: local rotation
//   - scale: local scale
//
// Returns:
//   - Result3D: the rebuilt matrices and the decomposed global rotation and scale
func Recompute3D(parentGlobal *common.Mat4, parentRotation common.Quat, parentScale [3]float32, position [3]float32, rotation common.Quat, scale [3]float32) Result3D {
	local := common.ComposeTRS(position, rotation, scale)
	if parentGlobal == nil {
		return Result3D{Local: local, Global: local, GlobalRotation: rotation, GlobalScale: scale}
	}
	return Result3D{
		Local:          local,
		Global:         parentGlobal.Mul(local),
		GlobalRotation: parentRotation.Mul(rotation).Normalize(),
		GlobalScale:    [3]float32{parentScale[0] * scale[0], parentScale[1] * scale[1], parentScale[2] * scale[2]},
	}
}

// Apply stores a recompute result and clears the dirty flag.
func (c *Cache3D) Apply(r Result3D) {
	c.Local = r.Local
	c.Global = r.Global
	c.GlobalRotation = r.GlobalRotation
	c.GlobalScale = r.GlobalScale
	c.Dirty = false
	c.inverseDirty = true
}

// MarkDirty flags the transform and invalidates the cached inverse.
func (c *Cache3D) MarkDirty() {
	c.Dirty = true
	c.inverseDirty = true
}

// GlobalPosition returns the translation of Global. The caller must make sure Global is current.
func (c *Cache3D) GlobalPosition() [3]float32 {
	return c.Global.Translation()
}

// GlobalInverse returns the inverse of Global, computing it at most once per change.
func (c *Cache3D) GlobalInverse() common.Mat4 {
	if c.inverseDirty {
		c.inverse, _ = c.Global.Invert()
		c.inverseDirty = false
	}
	return c.inverse
}

// DivideScale returns want/parent per component. Components whose parent scale is zero keep
// their current value and are reported through ok.
func DivideScale(want, parent, current []float32) (out []float32, ok bool) {
	out = make([]float32, len(want))
	ok = true
	for i := range want {
		if common.FuzzyZero(parent[i]) {
			out[i] = current[i]
			ok = false
			continue
		}
		out[i] = want[i] / parent[i]
	}
	return out, ok
}
