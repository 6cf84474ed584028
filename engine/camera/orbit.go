package camera

import (
	"github.com/chewxy/math32"
)

// Orbit moves a Camera on a sphere around its target. Azimuth turns around the Y axis, elevation
// lifts from the horizontal plane and radius is the distance to the target.
type Orbit struct {
	Target    [3]float32
	Radius    float32
	Azimuth   float32
	Elevation float32

	MinRadius, MaxRadius       float32
	MinElevation, MaxElevation float32
}

// NewOrbit returns an Orbit around target with the default clamps.
func NewOrbit(target [3]float32, radius float32) *Orbit {
	return &Orbit{
		Target:       target,
		Radius:       radius,
		Elevation:    math32.Pi / 6,
		MinRadius:    1,
		MaxRadius:    2000,
		MinElevation: -math32.Pi/2 + 0.1,
		MaxElevation: math32.Pi/2 - 0.1,
	}
}

// Rotate adds to azimuth and elevation, clamping elevation short of the poles.
func (o *Orbit) Rotate(dAzimuth, dElevation float32) {
	o.Azimuth += dAzimuth
	o.Elevation = clamp(o.Elevation+dElevation, o.MinElevation, o.MaxElevation)
}

// Zoom moves toward (negative) or away from (positive) the target.
func (o *Orbit) Zoom(delta float32) {
	o.Radius = clamp(o.Radius+delta, o.MinRadius, o.MaxRadius)
}

// Position returns the point on the sphere for the current angles.
func (o *Orbit) Position() [3]float32 {
	sinElev, cosElev := math32.Sincos(o.Elevation)
	sinAzim, cosAzim := math32.Sincos(o.Azimuth)
	return [3]float32{
		o.Target[0] + o.Radius*cosElev*sinAzim,
		o.Target[1] + o.Radius*sinElev,
		o.Target[2] + o.Radius*cosElev*cosAzim,
	}
}

// Apply places cam on the orbit looking at the target.
func (o *Orbit) Apply(cam Camera) {
	cam.SetTarget(o.Target)
	cam.SetPosition(o.Position())
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
