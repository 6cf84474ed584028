package animator

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/Carmen-Shannon/oxy-core/engine/renderer/renderertest"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-4

func rest() mesh.Transform {
	return mesh.Transform{Rotation: common.QuatIdentity(), Scale: [3]float32{1, 1, 1}}
}

// twoBones is a root with a child offset one unit up.
func twoBones() *mesh.Skeleton {
	child := rest()
	child.Translation = [3]float32{0, 1, 0}
	return mesh.NewSkeleton([]mesh.Bone{
		{Name: "root", Parent: -1, InverseBind: common.Identity4(), Local: rest()},
		{Name: "arm", Parent: 0, InverseBind: common.Identity4(), Local: child},
	})
}

// slide moves the root from x=0 to x=10 over one second.
func slide() Clip {
	return Clip{
		Name: "slide",
		Channels: []Channel{{
			Bone: 0,
			Translations: []VectorKey{
				{Time: 0, Value: [3]float32{0, 0, 0}},
				{Time: 1, Value: [3]float32{10, 0, 0}},
			},
		}},
	}
}

// lift moves the root to y=4 and leaves the arm alone.
func lift() Clip {
	return Clip{
		Name: "lift",
		Channels: []Channel{{
			Bone:         0,
			Translations: []VectorKey{{Time: 0, Value: [3]float32{0, 4, 0}}, {Time: 2, Value: [3]float32{0, 4, 0}}},
		}},
	}
}

func TestClipDurationFallsBackToLastKey(t *testing.T) {
	a := NewAnimator(twoBones(), WithClips(slide()))
	i, ok := a.ClipIndex("slide")
	require.True(t, ok)
	assert.Equal(t, 0, i)
	assert.Equal(t, 1, a.ClipCount())

	a.Play(i, false)
	a.Update(5)
	assert.InDelta(t, 1, a.Time(), tol, "non-looping playback holds the end")
}

func TestUpdateSamplesKeyframes(t *testing.T) {
	sk := twoBones()
	a := NewAnimator(sk)
	a.Play(a.AddClip(slide()), true)

	a.Update(0.25)
	assert.InDelta(t, 2.5, sk.Bones[0].Local.Translation[0], tol)
	assert.Equal(t, [3]float32{0, 1, 0}, sk.Bones[1].Local.Translation, "unanimated bones keep their rest pose")

	a.Update(1)
	assert.InDelta(t, 0.25, a.Time(), tol, "looping wraps")
	assert.InDelta(t, 2.5, sk.Bones[0].Local.Translation[0], tol)
}

func TestRotationKeysSlerp(t *testing.T) {
	sk := twoBones()
	spin := Clip{Channels: []Channel{{
		Bone: 1,
		Rotations: []QuatKey{
			{Time: 0, Value: common.QuatIdentity()},
			{Time: 1, Value: common.QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/2)},
		},
	}}}
	a := NewAnimator(sk, WithClips(spin))
	a.Play(0, false)
	a.Update(0.5)

	want := common.QuatFromAxisAngle([3]float32{0, 0, 1}, math32.Pi/4)
	for i := range want {
		assert.InDelta(t, want[i], sk.Bones[1].Local.Rotation[i], tol)
	}
}

func TestBlendCrossFadesAndSwitches(t *testing.T) {
	sk := twoBones()
	a := NewAnimator(sk, WithClips(slide(), lift()))
	a.Play(0, true)
	a.BlendTo(1, 1)
	require.True(t, a.IsBlending())

	a.Update(0.5)
	assert.InDelta(t, 0.5, a.BlendProgress(), tol)
	// halfway between slide at t=0.5 (5,0,0) and lift (0,4,0)
	assert.InDelta(t, 2.5, sk.Bones[0].Local.Translation[0], tol)
	assert.InDelta(t, 2, sk.Bones[0].Local.Translation[1], tol)

	a.Update(0.5)
	assert.False(t, a.IsBlending())
	assert.Equal(t, 1, a.Clip())
	assert.InDelta(t, 1, a.Time(), tol, "the target clip kept advancing during the blend")
	assert.InDelta(t, 4, sk.Bones[0].Local.Translation[1], tol)
}

func TestBlendWithoutDurationPlaysImmediately(t *testing.T) {
	a := NewAnimator(twoBones(), WithClips(slide(), lift()))
	a.BlendTo(1, 0.5)
	assert.False(t, a.IsBlending(), "nothing playing yet")
	assert.Equal(t, 1, a.Clip())

	a.BlendTo(0, 0)
	assert.False(t, a.IsBlending())
	assert.Equal(t, 0, a.Clip())

	a.BlendTo(1, 1)
	a.CancelBlend()
	assert.False(t, a.IsBlending())
	assert.Zero(t, a.BlendProgress())
}

func TestUnknownClipsAndBones(t *testing.T) {
	a := NewAnimator(twoBones())
	bad := slide()
	bad.Channels = append(bad.Channels, Channel{Bone: 9})
	a.AddClip(bad)

	a.Play(5, true)
	assert.Equal(t, -1, a.Clip())
	a.Update(1) // nothing playing

	a.Play(0, true)
	assert.NotPanics(t, func() { a.Update(0.1) })

	assert.Panics(t, func() { NewAnimator(nil) })
}

func TestSpeedScalesPlayback(t *testing.T) {
	a := NewAnimator(twoBones(), WithClips(Clip{Duration: 10, Channels: slide().Channels}))
	a.Play(0, false)
	a.SetSpeed(2)
	a.Update(1)
	assert.InDelta(t, 2, a.Time(), tol)

	a.SetSpeed(-1)
	a.Update(1)
	assert.InDelta(t, 2, a.Time(), tol)

	a.SetTime(7)
	assert.InDelta(t, 7, a.Time(), tol)
}

func TestUpdatePosesSkin(t *testing.T) {
	r := renderertest.NewRenderer()
	skin, err := mesh.NewSkin(r, 2)
	require.NoError(t, err)

	sk := twoBones()
	a := NewAnimator(sk, WithSkin(skin), WithClips(slide()))
	a.Play(0, false)
	a.Update(1)

	joints := skin.Joints()
	require.Len(t, joints, 2)
	assert.InDelta(t, 10, joints[0].Translation()[0], tol)
	// the arm follows its parent
	arm := joints[1].Translation()
	assert.InDelta(t, 10, arm[0], tol)
	assert.InDelta(t, 1, arm[1], tol)
}
