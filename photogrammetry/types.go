package photogrammetry

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnsupportedCameraModel is returned when a camera parameter set is neither (f, cx, cy) nor (fx, fy, cx, cy).
	ErrUnsupportedCameraModel = errors.New("unsupported camera model")
	// ErrInvalidIntrinsics is returned for non-positive focal lengths or resolutions.
	ErrInvalidIntrinsics = errors.New("invalid camera intrinsics")
	// ErrZeroDepth is returned when a point lies on the focal plane of the camera it is projected into.
	ErrZeroDepth = errors.New("point has zero depth in camera")
	// ErrLengthMismatch is returned when projection matrices and pixels are not paired one to one.
	ErrLengthMismatch = errors.New("projection matrices and pixels differ in length")
	// ErrFactorization is returned when the SVD of the triangulation system does not converge.
	ErrFactorization = errors.New("failed to factorize triangulation system")
)

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Intrinsics holds the pinhole parameters of a camera, in pixels of the model resolution.
type Intrinsics struct {
	Fx float64 `json:"fx"`
	Fy float64 `json:"fy"`
	Cx float64 `json:"cx"`
	Cy float64 `json:"cy"`
}

// IntrinsicsFromParams reads a COLMAP parameter list.
// Four values are (fx, fy, cx, cy), three values are (f, cx, cy) with a shared focal length.
func IntrinsicsFromParams(params []float64) (Intrinsics, error) {
	switch len(params) {
	case 4:
		return Intrinsics{Fx: params[0], Fy: params[1], Cx: params[2], Cy: params[3]}, nil
	case 3:
		return Intrinsics{Fx: params[0], Fy: params[0], Cx: params[1], Cy: params[2]}, nil
	default:
		return Intrinsics{}, errors.Wrapf(ErrUnsupportedCameraModel, "got %d parameters, want 3 or 4", len(params))
	}
}

func (in Intrinsics) CheckValid() error {
	if in.Fx <= 0 {
		return errors.Wrapf(ErrInvalidIntrinsics, "focal length fx = %v", in.Fx)
	}
	if in.Fy <= 0 {
		return errors.Wrapf(ErrInvalidIntrinsics, "focal length fy = %v", in.Fy)
	}
	return nil
}

// Matrix returns the calibration matrix K.
func (in Intrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		in.Fx, 0, in.Cx,
		0, in.Fy, in.Cy,
		0, 0, 1,
	})
}

// Pose is the world to camera transform of an image: x_cam = R * x_world + t.
type Pose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// Extrinsics returns the 3x4 matrix [R | t].
func (p Pose) Extrinsics() *mat.Dense {
	extrinsics := mat.NewDense(3, 4, nil)
	extrinsics.Slice(0, 3, 0, 3).(*mat.Dense).Copy(p.Rotation)
	extrinsics.SetCol(3, []float64{p.Translation.X, p.Translation.Y, p.Translation.Z})
	return extrinsics
}

// Center returns the camera position in world coordinates.
func (p Pose) Center() r3.Vector {
	trans := mat.NewDense(3, 1, []float64{p.Translation.X, p.Translation.Y, p.Translation.Z})
	center := GetCameraWorldsCoordinates(p.Rotation, trans)
	return r3.Vector{X: center.AtVec(0), Y: center.AtVec(1), Z: center.AtVec(2)}
}
