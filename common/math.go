package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// Epsilon is the tolerance used by the fuzzy float comparisons in this package.
const Epsilon float32 = 1e-6

// Mat4 is a 4x4 matrix stored in column-major order (WebGPU convention).
type Mat4 [16]float32

// Mat3 is a 3x3 matrix stored in column-major order, used as a 2D affine transform.
type Mat3 [9]float32

// Quat is a rotation quaternion stored as (x, y, z, w).
type Quat [4]float32

// Identity4 returns the 4x4 identity matrix.
func Identity4() Mat4 {
	return Mat4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return Quat{0, 0, 0, 1}
}

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// The returned slice shares memory with the input.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), int(size)*len(data))
}

// Mul4 multiplies two 4x4 column-major matrices and stores a * b in out.
// out may alias either operand.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	Mul4(out[:], m[:], o[:])
	return out
}

// Invert returns the inverse of m and whether m was invertible.
// A singular matrix yields the identity.
func (m Mat4) Invert() (Mat4, bool) {
	out := Identity4()
	if !Invert4(out[:], m[:]) {
		return Identity4(), false
	}
	return out, true
}

// TransformPoint transforms p as a point (w = 1), applying the perspective divide when w != 1.
func (m Mat4) TransformPoint(p [3]float32) [3]float32 {
	x := m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12]
	y := m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13]
	z := m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14]
	w := m[3]*p[0] + m[7]*p[1] + m[11]*p[2] + m[15]
	if w != 1 && w != 0 {
		return [3]float32{x / w, y / w, z / w}
	}
	return [3]float32{x, y, z}
}

// TransformVec4 multiplies m by the homogeneous vector v.
func (m Mat4) TransformVec4(v [4]float32) [4]float32 {
	return [4]float32{
		m[0]*v[0] + m[4]*v[1] + m[8]*v[2] + m[12]*v[3],
		m[1]*v[0] + m[5]*v[1] + m[9]*v[2] + m[13]*v[3],
		m[2]*v[0] + m[6]*v[1] + m[10]*v[2] + m[14]*v[3],
		m[3]*v[0] + m[7]*v[1] + m[11]*v[2] + m[15]*v[3],
	}
}

// Translation returns the translation column of m.
func (m Mat4) Translation() [3]float32 {
	return [3]float32{m[12], m[13], m[14]}
}

// ComposeTRS builds translate * rotate * scale.
//
// Parameters:
//   - t: translation
//   - r: rotation quaternion (expected normalized)
//   - s: scale
//
// Returns:
//   - Mat4: the composed column-major matrix
func ComposeTRS(t [3]float32, r Quat, s [3]float32) Mat4 {
	x, y, z, w := r[0], r[1], r[2], r[3]
	x2, y2, z2 := x+x, y+y, z+z
	xx, xy, xz := x*x2, x*y2, x*z2
	yy, yz, zz := y*y2, y*z2, z*z2
	wx, wy, wz := w*x2, w*y2, w*z2

	return Mat4{
		(1 - (yy + zz)) * s[0], (xy + wz) * s[0], (xz - wy) * s[0], 0,
		(xy - wz) * s[1], (1 - (xx + zz)) * s[1], (yz + wx) * s[1], 0,
		(xz + wy) * s[2], (yz - wx) * s[2], (1 - (xx + yy)) * s[2], 0,
		t[0], t[1], t[2], 1,
	}
}

// Invert4 computes the inverse of a 4x4 column-major matrix using cofactor expansion.
// If the matrix is singular the output is left unchanged and false is returned.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - m: source matrix (16 elements, column-major)
//
// Returns:
//   - bool: true if the matrix was inverted, false if singular
func Invert4(out, m []float32) bool {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}
	inv := 1.0 / det

	var r [16]float32
	r[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * inv
	r[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * inv
	r[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * inv
	r[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * inv

	r[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * inv
	r[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * inv
	r[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * inv
	r[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * inv

	r[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * inv
	r[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * inv
	r[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * inv
	r[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * inv

	r[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * inv
	r[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * inv
	r[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * inv
	r[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * inv

	copy(out, r[:])
	return true
}

// Perspective builds a right-handed perspective projection for WebGPU clip space (z in [0, 1]).
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
func Perspective(out []float32, fovY, aspect, near, far float32) {
	f := 1.0 / math32.Tan(fovY/2.0)
	Identity(out)

	out[0] = f / aspect
	out[5] = f
	out[10] = far / (near - far)
	out[11] = -1.0
	out[14] = (near * far) / (near - far)
	out[15] = 0.0
}

// Ortho builds an orthographic projection for WebGPU clip space (z in [0, 1]).
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - left, right, bottom, top: the view volume extents
//   - near, far: the depth range
func Ortho(out []float32, left, right, bottom, top, near, far float32) {
	Identity(out)
	rl := right - left
	tb := top - bottom
	fn := far - near

	out[0] = 2.0 / rl
	out[5] = 2.0 / tb
	out[10] = -1.0 / fn
	out[12] = -(right + left) / rl
	out[13] = -(top + bottom) / tb
	out[14] = -near / fn
}

// LookAt creates a view matrix transforming world coordinates into camera space.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - eyeX, eyeY, eyeZ: camera position in world space
//   - centerX, centerY, centerZ: target point the camera looks at
//   - upX, upY, upZ: up vector (typically 0,1,0)
func LookAt(out []float32, eyeX, eyeY, eyeZ, centerX, centerY, centerZ, upX, upY, upZ float32) {
	z := Normalize3([3]float32{eyeX - centerX, eyeY - centerY, eyeZ - centerZ})
	x := Normalize3(Cross3([3]float32{upX, upY, upZ}, z))
	y := Cross3(z, x)

	out[0], out[4], out[8], out[12] = x[0], x[1], x[2], -(x[0]*eyeX + x[1]*eyeY + x[2]*eyeZ)
	out[1], out[5], out[9], out[13] = y[0], y[1], y[2], -(y[0]*eyeX + y[1]*eyeY + y[2]*eyeZ)
	out[2], out[6], out[10], out[14] = z[0], z[1], z[2], -(z[0]*eyeX + z[1]*eyeY + z[2]*eyeZ)
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
}

// Cross3 returns a x b.
func Cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Dot3 returns a . b.
func Dot3(a, b [3]float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Normalize3 returns v scaled to unit length. The zero vector is returned unchanged.
func Normalize3(v [3]float32) [3]float32 {
	l := math32.Sqrt(Dot3(v, v))
	if l == 0 {
		return v
	}
	return [3]float32{v[0] / l, v[1] / l, v[2] / l}
}

// FuzzyZero reports whether |v| is within Epsilon of zero.
func FuzzyZero(v float32) bool {
	return math32.Abs(v) <= Epsilon
}

// FuzzyEqual reports whether a and b differ by at most tol.
func FuzzyEqual(a, b, tol float32) bool {
	return math32.Abs(a-b) <= tol
}

// QuatFromAxisAngle builds a rotation of angle radians around axis.
func QuatFromAxisAngle(axis [3]float32, angle float32) Quat {
	a := Normalize3(axis)
	s, c := math32.Sincos(angle / 2)
	return Quat{a[0] * s, a[1] * s, a[2] * s, c}
}

// QuatFromEuler builds a rotation from Euler angles in radians applied in Y * X * Z order.
func QuatFromEuler(x, y, z float32) Quat {
	qy := QuatFromAxisAngle([3]float32{0, 1, 0}, y)
	qx := QuatFromAxisAngle([3]float32{1, 0, 0}, x)
	qz := QuatFromAxisAngle([3]float32{0, 0, 1}, z)
	return qy.Mul(qx).Mul(qz)
}

// Mul returns the Hamilton product q * o (apply o first, then q).
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		q[3]*o[0] + q[0]*o[3] + q[1]*o[2] - q[2]*o[1],
		q[3]*o[1] - q[0]*o[2] + q[1]*o[3] + q[2]*o[0],
		q[3]*o[2] + q[0]*o[1] - q[1]*o[0] + q[2]*o[3],
		q[3]*o[3] - q[0]*o[0] - q[1]*o[1] - q[2]*o[2],
	}
}

// Normalize returns q scaled to unit length. A zero quaternion becomes the identity.
func (q Quat) Normalize() Quat {
	l := math32.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if l == 0 {
		return QuatIdentity()
	}
	return Quat{q[0] / l, q[1] / l, q[2] / l, q[3] / l}
}

// Inverse returns the inverse rotation of q.
func (q Quat) Inverse() Quat {
	n := q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3]
	if n == 0 {
		return QuatIdentity()
	}
	return Quat{-q[0] / n, -q[1] / n, -q[2] / n, q[3] / n}
}

// Rotate applies q to the vector v.
func (q Quat) Rotate(v [3]float32) [3]float32 {
	u := [3]float32{q[0], q[1], q[2]}
	uv := Cross3(u, v)
	uuv := Cross3(u, uv)
	return [3]float32{
		v[0] + 2*(q[3]*uv[0]+uuv[0]),
		v[1] + 2*(q[3]*uv[1]+uuv[1]),
		v[2] + 2*(q[3]*uv[2]+uuv[2]),
	}
}

// Slerp interpolates from q to o along the shorter arc. t is not clamped.
func (q Quat) Slerp(o Quat, t float32) Quat {
	d := q[0]*o[0] + q[1]*o[1] + q[2]*o[2] + q[3]*o[3]
	if d < 0 {
		o = Quat{-o[0], -o[1], -o[2], -o[3]}
		d = -d
	}
	// nearly parallel: sin(theta) underflows, fall back to a normalized lerp
	if d > 0.9995 {
		return Quat{
			q[0] + (o[0]-q[0])*t,
			q[1] + (o[1]-q[1])*t,
			q[2] + (o[2]-q[2])*t,
			q[3] + (o[3]-q[3])*t,
		}.Normalize()
	}
	theta := math32.Acos(d)
	sin := math32.Sin(theta)
	a := math32.Sin((1-t)*theta) / sin
	b := math32.Sin(t*theta) / sin
	return Quat{
		q[0]*a + o[0]*b,
		q[1]*a + o[1]*b,
		q[2]*a + o[2]*b,
		q[3]*a + o[3]*b,
	}
}

// Lerp3 interpolates between two vectors.
func Lerp3(a, b [3]float32, t float32) [3]float32 {
	return [3]float32{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t, a[2] + (b[2]-a[2])*t}
}

// QuatLookAt returns the rotation that turns +Z toward forward with +Y as close to up as
// possible. It returns false when forward is zero or parallel to up.
//
// Parameters:
//   - forward: the direction +Z should face
//   - up: the reference up direction
//
// Returns:
//   - Quat: the rotation
//   - bool: false for a degenerate basis
func QuatLookAt(forward, up [3]float32) (Quat, bool) {
	f := Normalize3(forward)
	r := Cross3(up, f)
	if FuzzyZero(Dot3(f, f)) || FuzzyZero(Dot3(r, r)) {
		return QuatIdentity(), false
	}
	r = Normalize3(r)
	u := Cross3(f, r)

	// columns of the rotation matrix are r, u and f
	m00, m01, m02 := r[0], u[0], f[0]
	m10, m11, m12 := r[1], u[1], f[1]
	m20, m21, m22 := r[2], u[2], f[2]
	var q Quat
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := math32.Sqrt(trace+1) * 2
		q = Quat{(m21 - m12) / s, (m02 - m20) / s, (m10 - m01) / s, s / 4}
	case m00 > m11 && m00 > m22:
		s := math32.Sqrt(1+m00-m11-m22) * 2
		q = Quat{s / 4, (m01 + m10) / s, (m02 + m20) / s, (m21 - m12) / s}
	case m11 > m22:
		s := math32.Sqrt(1+m11-m00-m22) * 2
		q = Quat{(m01 + m10) / s, s / 4, (m12 + m21) / s, (m02 - m20) / s}
	default:
		s := math32.Sqrt(1+m22-m00-m11) * 2
		q = Quat{(m02 + m20) / s, (m12 + m21) / s, s / 4, (m10 - m01) / s}
	}
	return q.Normalize(), true
}

// ComposeTRS2D builds translate * rotate * scale for a 2D affine transform.
//
// Parameters:
//   - t: translation
//   - rotation: rotation in radians (counter-clockwise)
//   - s: scale
//
// Returns:
//   - Mat3: the composed column-major matrix
func ComposeTRS2D(t [2]float32, rotation float32, s [2]float32) Mat3 {
	sin, cos := math32.Sincos(rotation)
	return Mat3{
		cos * s[0], sin * s[0], 0,
		-sin * s[1], cos * s[1], 0,
		t[0], t[1], 1,
	}
}

// Mul returns m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out Mat3
	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			out[c*3+r] = m[r]*o[c*3] + m[3+r]*o[c*3+1] + m[6+r]*o[c*3+2]
		}
	}
	return out
}

// Invert returns the inverse of m and whether m was invertible.
func (m Mat3) Invert() (Mat3, bool) {
	a, b, c := m[0], m[3], m[6]
	d, e, f := m[1], m[4], m[7]
	g, h, i := m[2], m[5], m[8]

	co0 := e*i - f*h
	co1 := f*g - d*i
	co2 := d*h - e*g
	det := a*co0 + b*co1 + c*co2
	if det == 0 {
		return Identity3(), false
	}
	inv := 1 / det
	return Mat3{
		co0 * inv, co1 * inv, co2 * inv,
		(c*h - b*i) * inv, (a*i - c*g) * inv, (b*g - a*h) * inv,
		(b*f - c*e) * inv, (c*d - a*f) * inv, (a*e - b*d) * inv,
	}, true
}

// TransformPoint transforms a 2D point by the affine matrix m.
func (m Mat3) TransformPoint(p [2]float32) [2]float32 {
	return [2]float32{
		m[0]*p[0] + m[3]*p[1] + m[6],
		m[1]*p[0] + m[4]*p[1] + m[7],
	}
}
