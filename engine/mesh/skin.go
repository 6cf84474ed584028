package mesh

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/material"
)

var skinCount atomic.Int64

// skin is the implementation of the Skin interface.
type skin struct {
	mu       *sync.Mutex
	id       int
	r        renderer.Renderer
	joints   []common.Mat4
	provider bind_group_provider.BindGroupProvider
	dirty    bool
}

// Skin holds the joint matrices of a skinned primitive, bound at material.SkinGroup.
type Skin interface {
	// ID returns the process-unique skin id. Skin bind groups are cached by it.
	ID() int

	// JointCount returns the number of joint matrices.
	JointCount() int

	// Joints returns a copy of the joint matrices.
	Joints() []common.Mat4

	// SetJoint replaces one joint matrix. Out of range indices are ignored.
	//
	// Parameters:
	//   - i: the joint index
	//   - m: the joint matrix
	SetJoint(i int, m common.Mat4)

	// SetJoints replaces the leading joint matrices with joints.
	SetJoints(joints []common.Mat4)

	// Pose copies the joint matrices of a posed skeleton.
	Pose(sk *Skeleton)

	// BindGroup returns the provider holding the joint storage buffer.
	//
	// Returns:
	//   - bind_group_provider.BindGroupProvider: the skin bind group
	BindGroup() bind_group_provider.BindGroupProvider

	// WriteToBuffer uploads the joint matrices when they changed since the last upload.
	WriteToBuffer()

	// Release frees the joint buffer.
	Release()
}

var _ Skin = &skin{}

// NewSkin creates a skin of joints identity matrices and its bind group.
//
// Parameters:
//   - r: the renderer creating the storage buffer
//   - joints: the joint count
//
// Returns:
//   - Skin: the skin
//   - error: an error if joints is not positive or the bind group could not be created
func NewSkin(r renderer.Renderer, joints int) (Skin, error) {
	if joints <= 0 {
		return nil, errors.New("mesh: a skin needs at least one joint")
	}
	s := &skin{
		mu:     &sync.Mutex{},
		id:     int(skinCount.Add(1)),
		r:      r,
		joints: make([]common.Mat4, joints),
		dirty:  true,
	}
	for i := range s.joints {
		s.joints[i] = common.Identity4()
	}
	s.provider = bind_group_provider.NewBindGroupProvider(fmt.Sprintf("Skin %d", s.id))
	sizes := map[int]uint64{material.SkinJointBinding: uint64(joints) * 64}
	if err := r.InitBindGroup(s.provider, material.SkinLayout(), nil, sizes); err != nil {
		s.provider.Release()
		return nil, fmt.Errorf("failed to create skin bind group: %w", err)
	}
	return s, nil
}

func (s *skin) ID() int {
	return s.id
}

func (s *skin) JointCount() int {
	return len(s.joints)
}

func (s *skin) Joints() []common.Mat4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Mat4, len(s.joints))
	copy(out, s.joints)
	return out
}

func (s *skin) SetJoint(i int, m common.Mat4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.joints) {
		return
	}
	s.joints[i] = m
	s.dirty = true
}

func (s *skin) SetJoints(joints []common.Mat4) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.joints, joints)
	s.dirty = true
}

func (s *skin) Pose(sk *Skeleton) {
	s.SetJoints(sk.JointMatrices())
}

func (s *skin) BindGroup() bind_group_provider.BindGroupProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider
}

func (s *skin) WriteToBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.provider == nil {
		return
	}
	s.r.WriteBuffers([]bind_group_provider.BufferWrite{{
		Provider: s.provider,
		Binding:  material.SkinJointBinding,
		Data:     common.SliceToBytes(s.joints),
	}})
	s.dirty = false
}

func (s *skin) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != nil {
		s.provider.Release()
		s.provider = nil
	}
}
