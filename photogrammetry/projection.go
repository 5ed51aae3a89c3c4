package photogrammetry

import (
	"gonum.org/v1/gonum/mat"
)

// ProjectionBuilder assembles camera projection matrices. It holds no state.
type ProjectionBuilder struct{}

// Build returns P = K * [R | t] as a 3x4 matrix.
// The result does not alias the pose rotation, so it stays fixed if the caller mutates the pose.
func (ProjectionBuilder) Build(intrinsics Intrinsics, pose Pose) mat.Matrix {
	return ProjectionMatrix(intrinsics.Matrix(), pose.Extrinsics())
}

func ProjectionMatrix(intrinsics mat.Matrix, extrinsics mat.Matrix) mat.Matrix {
	extrinsicsVecMat := mat.DenseCopyOf(extrinsics)
	extrinsics = extrinsicsVecMat.Slice(0, 3, 0, 4)
	var projMat mat.Dense
	projMat.Mul(intrinsics, extrinsics)

	return &projMat
}
