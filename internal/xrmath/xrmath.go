// Package xrmath implements the small fixed set of matrix operations the
// compositor needs: off-center perspective projection from OpenXR frustum
// half-angles, rigid view transforms from poses, and affine model
// transforms for quad layers.
//
// Matrices are row-major with the row-vector convention (v' = v * M), right
// handed, depth range [0,1]. The renderer transposes on upload because the
// shaders declare column-major constant packing.
package xrmath

import (
	"math"

	"github.com/xrmirror/layer/internal/xrtypes"
)

// Projection clip planes used for quad layer rendering.
const (
	ClipNear = 0.05
	ClipFar  = 100.0
)

// FovTolerance is the per-angle tolerance in radians under which two
// frustums are treated as identical and the direct copy path can be taken.
const FovTolerance = 0.001

// Mat4 is a 4x4 row-major matrix.
type Mat4 [4][4]float32

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Mul returns a * b under the row-vector convention: transforming by the
// product applies a first, then b.
func Mul(a, b Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j] + a[i][3]*b[3][j]
		}
	}
	return out
}

// Transpose returns the transpose of m.
func Transpose(m Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// PerspectiveOffCenter builds a right-handed off-center perspective
// projection with depth mapped to [0,1]. left/right/bottom/top are the
// near-plane intersections.
func PerspectiveOffCenter(left, right, bottom, top, near, far float32) Mat4 {
	twoNear := 2 * near
	rw := 1 / (right - left)
	rh := 1 / (top - bottom)
	frange := far / (near - far)
	return Mat4{
		{twoNear * rw, 0, 0, 0},
		{0, twoNear * rh, 0, 0},
		{(left + right) * rw, (top + bottom) * rh, frange, -1},
		{0, 0, frange * near, 0},
	}
}

// ProjectionFromFov builds the projection for an OpenXR view frustum. The
// four half-angles become near-plane extents through their tangents; left
// and down angles are negative for a forward-facing view.
func ProjectionFromFov(fov xrtypes.Fovf, near, far float32) Mat4 {
	left := near * tan(fov.AngleLeft)
	right := near * tan(fov.AngleRight)
	bottom := near * tan(fov.AngleDown)
	top := near * tan(fov.AngleUp)
	return PerspectiveOffCenter(left, right, bottom, top, near, far)
}

// RotationFromQuaternion builds the rotation matrix for a unit quaternion.
func RotationFromQuaternion(q xrtypes.Quaternionf) Mat4 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return Mat4{
		{1 - 2*(y*y+z*z), 2 * (x*y + w*z), 2 * (x*z - w*y), 0},
		{2 * (x*y - w*z), 1 - 2*(x*x+z*z), 2 * (y*z + w*x), 0},
		{2 * (x*z + w*y), 2 * (y*z - w*x), 1 - 2*(x*x+y*y), 0},
		{0, 0, 0, 1},
	}
}

// AffineTransform builds scale, then rotate, then translate.
func AffineTransform(scale xrtypes.Vector3f, rotation xrtypes.Quaternionf, translation xrtypes.Vector3f) Mat4 {
	m := RotationFromQuaternion(rotation)
	for j := 0; j < 3; j++ {
		m[0][j] *= scale.X
		m[1][j] *= scale.Y
		m[2][j] *= scale.Z
	}
	m[3][0] = translation.X
	m[3][1] = translation.Y
	m[3][2] = translation.Z
	return m
}

// PoseTransform builds the rigid transform for a pose (unit scale).
func PoseTransform(pose xrtypes.Posef) Mat4 {
	return AffineTransform(xrtypes.Vector3f{X: 1, Y: 1, Z: 1}, pose.Orientation, pose.Position)
}

/// ViewFromPose builds the view matrix for a camera at the given pose: the
// rigid inverse of the pose transform. Cheaper and better conditioned than
// a general 4x4 inverse.
func ViewFromPose(pose xrtypes.Posef) Mat4 {
	m := PoseTransform(pose)
	var out Mat4
	// Transpose the rotation block.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[j][i]
		}
	}
	// Rotate the negated translation.
	tx, ty, tz := m[3][0], m[3][1], m[3][2]
	out[3][0] = -(tx*out[0][0] + ty*out[1][0] + tz*out[2][0])
	out[3][1] = -(tx*out[0][1] + ty*out[1][1] + tz*out[2][1])
	out[3][2] = -(tx*out[0][2] + ty*out[1][2] + tz*out[2][2])
	out[3][3] = 1
	return out
}

// TransformPoint applies m to a point (w = 1) and performs the perspective
// divide when w' is nonzero.
func TransformPoint(v xrtypes.Vector3f, m Mat4) xrtypes.Vector3f {
	x := v.X*m[0][0] + v.Y*m[1][0] + v.Z*m[2][0] + m[3][0]
	y := v.X*m[0][1] + v.Y*m[1][1] + v.Z*m[2][1] + m[3][1]
	z := v.X*m[0][2] + v.Y*m[1][2] + v.Z*m[2][2] + m[3][2]
	w := v.X*m[0][3] + v.Y*m[1][3] + v.Z*m[2][3] + m[3][3]
	if w != 0 && w != 1 {
		x, y, z = x/w, y/w, z/w
	}
	return xrtypes.Vector3f{X: x, Y: y, Z: z}
}

// FovApproxEqual reports whether two frustums match within FovTolerance on
// every half-angle.
func FovApproxEqual(a, b xrtypes.Fovf) bool {
	return abs(a.AngleLeft-b.AngleLeft) <= FovTolerance &&
		abs(a.AngleRight-b.AngleRight) <= FovTolerance &&
		abs(a.AngleUp-b.AngleUp) <= FovTolerance &&
		abs(a.AngleDown-b.AngleDown) <= FovTolerance
}

// SanitizePose replaces invalid pose components with usable defaults: a
// zero-length orientation becomes identity and a position reported invalid
// becomes a standing eye height at the origin. Runtimes that hand back
// garbage poses would otherwise poison the view matrix.
func SanitizePose(pose xrtypes.Posef, flags uint64) xrtypes.Posef {
	out := pose
	o := out.Orientation
	if flags&xrtypes.ViewStateOrientationValid == 0 ||
		(o.X == 0 && o.Y == 0 && o.Z == 0 && o.W == 0) {
		out.Orientation = xrtypes.Quaternionf{W: 1}
	}
	if flags&xrtypes.ViewStatePositionValid == 0 {
		out.Position = xrtypes.Vector3f{X: 0, Y: 1.5, Z: 0}
	}
	return out
}

func tan(v float32) float32 {
	return float32(math.Tan(float64(v)))
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
