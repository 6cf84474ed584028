package light

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-core/common"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeAmbient is a constant color added to every lit fragment.
	LightTypeAmbient LightType = iota

	// LightTypeDirectional has no position, only direction. Used for large distant sources like
	// the sun. It affects all fragments uniformly with no distance attenuation.
	LightTypeDirectional

	// LightTypePoint emits in all directions from a position and attenuates up to its range.
	// Point lights are the ones assigned to clusters.
	LightTypePoint
)

// String returns the light type name.
func (t LightType) String() string {
	switch t {
	case LightTypeAmbient:
		return "ambient"
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	default:
		return "unknown"
	}
}

type lightImpl struct {
	mu *sync.Mutex

	lightType  LightType
	position   [3]float32
	direction  [3]float32
	color      [3]float32
	intensity  float32
	lightRange float32
	enabled    bool
}

// Light defines the interface for a light source.
//
// Lights are owned by an environment which marshals the enabled ones into its light storage
// buffer once per frame. Properties that do not apply to a light type (position for a
// directional light, direction for a point light) are stored but ignored.
type Light interface {
	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type
	Type() LightType

	// Position returns the world-space position of the light.
	//
	// Returns:
	//   - [3]float32: position as (x, y, z)
	Position() [3]float32

	// Direction returns the normalized direction the light points in.
	//
	// Returns:
	//   - [3]float32: direction as (x, y, z)
	Direction() [3]float32

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - [3]float32: color as (r, g, b)
	Color() [3]float32

	// Intensity returns the scalar multiplier applied to Color.
	//
	// Returns:
	//   - float32: the intensity
	Intensity() float32

	// Range returns the attenuation cutoff distance. A range <= 0 makes a point light affect
	// every cluster.
	//
	// Returns:
	//   - float32: the range
	Range() float32

	// Enabled reports whether the light contributes to rendering.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	SetPosition(x, y, z float32)

	// SetDirection sets the light direction. The vector is normalized before storing.
	//
	// Parameters:
	//   - x, y, z: the direction components
	SetDirection(x, y, z float32)

	SetColor(r, g, b float32)
	SetIntensity(intensity float32)
	SetRange(lightRange float32)
	SetEnabled(enabled bool)

	// GPU returns the light in the storage buffer layout.
	//
	// Returns:
	//   - GPULight: the light record
	GPU() GPULight
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the given type. Defaults are white, intensity 1, range 10,
// pointing down -Y.
//
// Parameters:
//   - lightType: the kind of light to create
//   - opts: variadic list of LightBuilderOption functions to configure the light
//
// Returns:
//   - Light: a new Light instance
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		mu:         &sync.Mutex{},
		lightType:  lightType,
		direction:  [3]float32{0, -1, 0},
		color:      [3]float32{1, 1, 1},
		intensity:  1.0,
		lightRange: 10.0,
		enabled:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Position() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *lightImpl) Direction() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.direction
}

func (l *lightImpl) Color() [3]float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.intensity
}

func (l *lightImpl) Range() float32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lightRange
}

func (l *lightImpl) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *lightImpl) SetPosition(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = [3]float32{x, y, z}
}

func (l *lightImpl) SetDirection(x, y, z float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.direction = common.Normalize3([3]float32{x, y, z})
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = [3]float32{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.intensity = intensity
}

func (l *lightImpl) SetRange(lightRange float32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lightRange = lightRange
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

func (l *lightImpl) GPU() GPULight {
	l.mu.Lock()
	defer l.mu.Unlock()
	return GPULight{
		Position:  l.position,
		Range:     l.lightRange,
		Color:     l.color,
		Intensity: l.intensity,
	}
}
