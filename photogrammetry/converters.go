package photogrammetry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

func FormatMatrixPrint(matrix mat.Matrix) fmt.Formatter {
	return mat.Formatted(matrix, mat.Prefix("    "), mat.Squeeze())
}

func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

func Rad2Degrees(rad float64) float64 {
	res := rad * 180 / math.Pi
	return roundFloat(res, 10)
}

// QuaternionToRotation converts a COLMAP qvec (w, x, y, z) to a rotation matrix.
// The quaternion is normalized first so slightly drifted values still give an orthonormal matrix.
func QuaternionToRotation(q quat.Number) *mat.Dense {
	if norm := quat.Abs(q); norm != 0 && norm != 1 {
		q = quat.Scale(1/norm, q)
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*y*y - 2*z*z, 2*x*y - 2*w*z, 2*z*x + 2*w*y,
		2*x*y + 2*w*z, 1 - 2*x*x - 2*z*z, 2*y*z - 2*w*x,
		2*z*x - 2*w*y, 2*y*z + 2*w*x, 1 - 2*x*x - 2*y*y,
	})
}

// PoseFromQuaternion builds a pose from the qvec and tvec stored in a COLMAP image record.
func PoseFromQuaternion(q quat.Number, t r3.Vector) Pose {
	return Pose{Rotation: QuaternionToRotation(q), Translation: t}
}

func GetCameraWorldsCoordinates(rotation *mat.Dense, trans *mat.Dense) mat.Vector {
	var coordinates mat.Dense
	coordinates.Mul(rotation.T(), trans)
	coordinates.Scale(-1, &coordinates)
	return coordinates.ColView(0)
}

// RescalePixel maps a pixel clicked on a displayed image to the resolution of the model camera.
// Each axis is scaled independently.
func RescalePixel(displayed r2.Point, displayedSize, modelSize Size) r2.Point {
	return r2.Point{
		X: displayed.X * float64(modelSize.Width) / float64(displayedSize.Width),
		Y: displayed.Y * float64(modelSize.Height) / float64(displayedSize.Height),
	}
}

// TriangulationAngle returns the angle in degrees between the rays from two camera centers to a point.
func TriangulationAngle(center1, center2, point r3.Vector) float64 {
	ray1 := point.Sub(center1)
	ray2 := point.Sub(center2)
	if ray1.Norm() == 0 || ray2.Norm() == 0 {
		return 0
	}
	return Rad2Degrees(float64(ray1.Angle(ray2)))
}
