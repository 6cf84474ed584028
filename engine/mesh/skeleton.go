package mesh

import "github.com/Carmen-Shannon/oxy-core/common"

// Transform is a decomposed bone transform.
type Transform struct {
	Translation [3]float32
	Rotation    common.Quat
	Scale       [3]float32
}

// Matrix composes the transform as T*R*S.
func (t Transform) Matrix() common.Mat4 {
	return common.ComposeTRS(t.Translation, t.Rotation, t.Scale)
}

// Bone is one joint of a Skeleton.
type Bone struct {
	// Name is the bone's identifier (for debugging and animation targeting).
	Name string

	// Parent is the index of the parent bone, -1 for roots. Parents come before children.
	Parent int

	// InverseBind transforms from model space to bone space at bind pose.
	InverseBind common.Mat4

	// Local is the bone's pose relative to its parent.
	Local Transform
}

// Skeleton is a bone hierarchy posed on the CPU. Its joint matrices feed a Skin.
type Skeleton struct {
	Bones []Bone

	// BoneNameToIndex maps bone names to their indices for quick lookup.
	BoneNameToIndex map[string]int
}

// NewSkeleton indexes bones by name. Bones must be ordered parents first.
func NewSkeleton(bones []Bone) *Skeleton {
	s := &Skeleton{Bones: bones, BoneNameToIndex: make(map[string]int, len(bones))}
	for i, b := range bones {
		s.BoneNameToIndex[b.Name] = i
	}
	return s
}

// SetLocal replaces the pose of the named bone.
//
// Parameters:
//   - name: the bone name
//   - t: the new local pose
//
// Returns:
//   - bool: false if no bone has that name
func (s *Skeleton) SetLocal(name string, t Transform) bool {
	i, ok := s.BoneNameToIndex[name]
	if !ok {
		return false
	}
	s.Bones[i].Local = t
	return true
}

// JointMatrices returns global(bone) * inverseBind for every bone, the matrices a skinned
// vertex stage blends.
//
// Returns:
//   - []common.Mat4: one joint matrix per bone
func (s *Skeleton) JointMatrices() []common.Mat4 {
	globals := make([]common.Mat4, len(s.Bones))
	joints := make([]common.Mat4, len(s.Bones))
	for i, b := range s.Bones {
		local := b.Local.Matrix()
		if b.Parent >= 0 && b.Parent < i {
			globals[i] = globals[b.Parent].Mul(local)
		} else {
			globals[i] = local
		}
		joints[i] = globals[i].Mul(b.InverseBind)
	}
	return joints
}
