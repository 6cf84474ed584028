package animator

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-core/common"
	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
)

// Clip is a single animation (walk, run, attack, etc.).
type Clip struct {
	// Name is the animation identifier.
	Name string

	// Duration is the length of the clip in seconds. Zero uses the last keyframe time.
	Duration float32

	// Channels hold the keyframes of every animated bone.
	Channels []Channel
}

// Channel holds the keyframes of one bone. Keys must be sorted by time.
type Channel struct {
	// Bone is the index of the animated bone in the skeleton.
	Bone int

	Translations []VectorKey
	Rotations    []QuatKey
	Scales       []VectorKey
}

// VectorKey stores a translation or scale at a time in seconds.
type VectorKey struct {
	Time  float32
	Value [3]float32
}

// QuatKey stores a rotation at a time in seconds.
type QuatKey struct {
	Time  float32
	Value common.Quat
}

// length returns Duration, or the time of the last keyframe when Duration is unset.
func (c Clip) length() float32 {
	if c.Duration > 0 {
		return c.Duration
	}
	var end float32
	for _, ch := range c.Channels {
		if n := len(ch.Translations); n > 0 {
			end = max(end, ch.Translations[n-1].Time)
		}
		if n := len(ch.Rotations); n > 0 {
			end = max(end, ch.Rotations[n-1].Time)
		}
		if n := len(ch.Scales); n > 0 {
			end = max(end, ch.Scales[n-1].Time)
		}
	}
	return end
}

// sample poses the channel's bone at time t on top of base. Times before the first key hold the
// first key, times after the last hold the last.
func (ch Channel) sample(t float32, base mesh.Transform) mesh.Transform {
	if len(ch.Translations) > 0 {
		i, f := locate(len(ch.Translations), func(i int) float32 { return ch.Translations[i].Time }, t)
		base.Translation = common.Lerp3(ch.Translations[i].Value, ch.Translations[min(i+1, len(ch.Translations)-1)].Value, f)
	}
	if len(ch.Rotations) > 0 {
		i, f := locate(len(ch.Rotations), func(i int) float32 { return ch.Rotations[i].Time }, t)
		base.Rotation = ch.Rotations[i].Value.Slerp(ch.Rotations[min(i+1, len(ch.Rotations)-1)].Value, f)
	}
	if len(ch.Scales) > 0 {
		i, f := locate(len(ch.Scales), func(i int) float32 { return ch.Scales[i].Time }, t)
		base.Scale = common.Lerp3(ch.Scales[i].Value, ch.Scales[min(i+1, len(ch.Scales)-1)].Value, f)
	}
	return base
}

// locate returns the key at or before t and the interpolation factor toward the next key.
func locate(n int, at func(int) float32, t float32) (int, float32) {
	next := sort.Search(n, func(i int) bool { return at(i) > t })
	if next == 0 {
		return 0, 0
	}
	if next == n {
		return n - 1, 0
	}
	i := next - 1
	span := at(next) - at(i)
	if span <= 0 {
		return i, 0
	}
	return i, (t - at(i)) / span
}

// blend mixes two poses by weight w of b.
func blend(a, b mesh.Transform, w float32) mesh.Transform {
	return mesh.Transform{
		Translation: common.Lerp3(a.Translation, b.Translation, w),
		Rotation:    a.Rotation.Slerp(b.Rotation, w),
		Scale:       common.Lerp3(a.Scale, b.Scale, w),
	}
}
