// Package animator plays keyframed clips on a mesh.Skeleton and uploads the resulting joint
// matrices through a mesh.Skin.
package animator

import (
	"log"
	"sync"

	"github.com/Carmen-Shannon/oxy-core/engine/mesh"
	"github.com/chewxy/math32"
)

// playback is the state of one playing clip.
type playback struct {
	clip int
	time float32
}

// animator is the implementation of the Animator interface.
type animator struct {
	mu *sync.Mutex

	skeleton *mesh.Skeleton
	rest     []mesh.Transform
	skin     mesh.Skin

	// scratch poses of the current and target clips
	primary, secondary []mesh.Transform

	clips  []Clip
	byName map[string]int

	current playback
	speed   float32
	loop    bool

	blending                    bool
	target                      playback
	blendDuration, blendElapsed float32
}

// Animator advances clip playback and poses a skeleton.
//
// Bones without a channel in the playing clip stay at their rest pose, the local transforms the
// skeleton had when the animator was created. Blends cross-fade from the current clip to a
// target clip, both advancing, and switch to the target when the blend completes.
type Animator interface {
	// Skeleton returns the posed skeleton.
	Skeleton() *mesh.Skeleton

	// AddClip registers a clip.
	//
	// Parameters:
	//   - c: the clip; channels naming bones outside the skeleton are ignored
	//
	// Returns:
	//   - int: the clip index
	AddClip(c Clip) int

	// ClipIndex looks a clip up by name.
	//
	// Returns:
	//   - int: the clip index
	//   - bool: false if no clip has that name
	ClipIndex(name string) (int, bool)

	// ClipCount returns the number of registered clips.
	ClipCount() int

	// Play starts a clip from time zero at speed 1, cancelling any blend. Unknown clips are
	// logged and ignored.
	//
	// Parameters:
	//   - clip: the clip index
	//   - loop: wrap time at the end of the clip instead of holding the last frame
	Play(clip int, loop bool)

	// BlendTo cross-fades to a clip over duration seconds. A non-positive duration plays the
	// clip immediately.
	//
	// Parameters:
	//   - clip: the target clip index
	//   - duration: the blend length in seconds
	BlendTo(clip int, duration float32)

	// SetTime seeks the current clip.
	SetTime(t float32)

	// Time returns the playback time of the current clip in seconds.
	Time() float32

	// SetSpeed scales playback. Negative speeds are clamped to zero.
	SetSpeed(speed float32)

	// Clip returns the index of the current clip, -1 before Play.
	Clip() int

	// IsBlending reports whether a blend is in progress.
	IsBlending() bool

	// BlendProgress returns the blend completion in [0, 1), 0 when not blending.
	BlendProgress() float32

	// CancelBlend stops a blend and keeps playing the current clip.
	CancelBlend()

	// Update advances playback by dt seconds, poses the skeleton, and hands the joint matrices to
	// the skin when one is set.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Update(dt float32)
}

var _ Animator = &animator{}

// NewAnimator creates an Animator for sk. Nothing plays until Play is called.
//
// Parameters:
//   - sk: the skeleton to pose
//   - options: functional options
//
// Returns:
//   - Animator: the new animator
func NewAnimator(sk *mesh.Skeleton, options ...AnimatorBuilderOption) Animator {
	if sk == nil {
		panic("animator: skeleton must not be nil")
	}
	a := &animator{
		mu:        &sync.Mutex{},
		skeleton:  sk,
		rest:      make([]mesh.Transform, len(sk.Bones)),
		primary:   make([]mesh.Transform, len(sk.Bones)),
		secondary: make([]mesh.Transform, len(sk.Bones)),
		byName:    make(map[string]int),
		current:   playback{clip: -1},
		speed:     1,
	}
	for i, b := range sk.Bones {
		a.rest[i] = b.Local
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

func (a *animator) Skeleton() *mesh.Skeleton {
	return a.skeleton
}

func (a *animator) AddClip(c Clip) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addClip(c)
}

func (a *animator) addClip(c Clip) int {
	kept := c.Channels[:0:0]
	for _, ch := range c.Channels {
		if ch.Bone < 0 || ch.Bone >= len(a.skeleton.Bones) {
			log.Printf("[Animator] clip %q animates unknown bone %d", c.Name, ch.Bone)
			continue
		}
		kept = append(kept, ch)
	}
	c.Channels = kept
	c.Duration = c.length()

	a.clips = append(a.clips, c)
	idx := len(a.clips) - 1
	if c.Name != "" {
		a.byName[c.Name] = idx
	}
	return idx
}

func (a *animator) ClipIndex(name string) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.byName[name]
	return i, ok
}

func (a *animator) ClipCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clips)
}

func (a *animator) Play(clip int, loop bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if clip < 0 || clip >= len(a.clips) {
		log.Printf("[Animator] cannot play unknown clip %d", clip)
		return
	}
	a.play(clip, loop)
}

func (a *animator) play(clip int, loop bool) {
	a.current = playback{clip: clip}
	a.speed = 1
	a.loop = loop
	a.blending = false
	a.blendElapsed = 0
}

func (a *animator) BlendTo(clip int, duration float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if clip < 0 || clip >= len(a.clips) {
		log.Printf("[Animator] cannot blend to unknown clip %d", clip)
		return
	}
	if duration <= 0 || a.current.clip < 0 {
		a.play(clip, a.loop)
		return
	}
	a.blending = true
	a.target = playback{clip: clip}
	a.blendDuration = duration
	a.blendElapsed = 0
}

func (a *animator) SetTime(t float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current.time = t
}

func (a *animator) Time() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.time
}

func (a *animator) SetSpeed(speed float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speed = max(speed, 0)
}

func (a *animator) Clip() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.clip
}

func (a *animator) IsBlending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blending
}

func (a *animator) BlendProgress() float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.blending {
		return 0
	}
	return a.blendElapsed / a.blendDuration
}

func (a *animator) CancelBlend() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blending = false
	a.blendElapsed = 0
}

func (a *animator) Update(dt float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current.clip < 0 {
		return
	}

	a.advance(&a.current, dt)
	weight := float32(0)
	if a.blending {
		a.blendElapsed += dt
		a.advance(&a.target, dt)
		weight = a.blendElapsed / a.blendDuration
		if weight >= 1 {
			a.current = a.target
			a.blending = false
			a.blendElapsed = 0
			weight = 0
		}
	}

	a.pose(a.primary, a.current)
	if a.blending {
		a.pose(a.secondary, a.target)
		for i := range a.primary {
			a.primary[i] = blend(a.primary[i], a.secondary[i], weight)
		}
	}
	for i := range a.skeleton.Bones {
		a.skeleton.Bones[i].Local = a.primary[i]
	}

	if a.skin != nil {
		a.skin.Pose(a.skeleton)
	}
}

// advance moves p forward, wrapping when looping and holding the end otherwise.
func (a *animator) advance(p *playback, dt float32) {
	p.time += dt * a.speed
	d := a.clips[p.clip].Duration
	if d <= 0 || p.time <= d {
		return
	}
	if a.loop {
		p.time = math32.Mod(p.time, d)
	} else {
		p.time = d
	}
}

// pose fills out with the rest pose overridden by the channels of p's clip.
func (a *animator) pose(out []mesh.Transform, p playback) {
	copy(out, a.rest)
	for _, ch := range a.clips[p.clip].Channels {
		out[ch.Bone] = ch.sample(p.time, a.rest[ch.Bone])
	}
}
