package photogrammetry

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

func TestIntrinsicsFromParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  []float64
		want    Intrinsics
		wantErr error
	}{
		{
			name:   "shared focal length",
			params: []float64{1000, 500, 500},
			want:   Intrinsics{Fx: 1000, Fy: 1000, Cx: 500, Cy: 500},
		},
		{
			name:   "separate focal lengths",
			params: []float64{1000, 1200, 500, 400},
			want:   Intrinsics{Fx: 1000, Fy: 1200, Cx: 500, Cy: 400},
		},
		{
			name:    "radial distortion parameters",
			params:  []float64{1000, 500, 500, 0.01, 0.02},
			wantErr: ErrUnsupportedCameraModel,
		},
		{
			name:    "empty",
			wantErr: ErrUnsupportedCameraModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IntrinsicsFromParams(tt.params)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IntrinsicsFromParams() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntrinsicsCheckValid(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Intrinsics{Fx: 1, Fy: 1}.CheckValid())
	assert.True(t, errors.Is(Intrinsics{Fx: 0, Fy: 1}.CheckValid(), ErrInvalidIntrinsics))
	assert.True(t, errors.Is(Intrinsics{Fx: 1, Fy: -2}.CheckValid(), ErrInvalidIntrinsics))
}

func TestBuildSeparateFocalLengths(t *testing.T) {
	t.Parallel()

	in, err := IntrinsicsFromParams([]float64{1000, 1200, 500, 400})
	require.NoError(t, err)

	P := ProjectionBuilder{}.Build(in, identityPose(r3.Vector{}))
	rows, cols := P.Dims()
	require.Equal(t, 3, rows)
	require.Equal(t, 4, cols)

	assert.Equal(t, 1000.0, P.At(0, 0))
	assert.Equal(t, 0.0, P.At(0, 1))
	assert.Equal(t, 0.0, P.At(1, 0))
	assert.Equal(t, 1200.0, P.At(1, 1))
	assert.Equal(t, 500.0, P.At(0, 2))
	assert.Equal(t, 400.0, P.At(1, 2))
}

func TestBuildComposesIntrinsicsAndExtrinsics(t *testing.T) {
	t.Parallel()

	in := Intrinsics{Fx: 800, Fy: 820, Cx: 320, Cy: 240}
	pose := PoseFromQuaternion(quat.Number{Real: 0.9, Imag: 0.1, Jmag: 0.3, Kmag: 0.2}, r3.Vector{X: 1, Y: 2, Z: 3})

	var want mat.Dense
	want.Mul(in.Matrix(), pose.Extrinsics())

	P := ProjectionBuilder{}.Build(in, pose)
	assert.True(t, mat.EqualApprox(&want, P, 1e-12))

	// later changes to the pose must not leak into P
	before := P.At(0, 0)
	pose.Rotation.Set(0, 0, 42)
	assert.Equal(t, before, P.At(0, 0))
}

func TestPoseExtrinsics(t *testing.T) {
	t.Parallel()

	pose := Pose{
		Rotation:    mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1}),
		Translation: r3.Vector{X: 4, Y: 5, Z: 6},
	}
	want := mat.NewDense(3, 4, []float64{
		0, -1, 0, 4,
		1, 0, 0, 5,
		0, 0, 1, 6,
	})
	assert.True(t, mat.Equal(want, pose.Extrinsics()))
}

func TestPoseCenter(t *testing.T) {
	t.Parallel()

	pose := identityPose(r3.Vector{X: -1, Y: 2, Z: -3})
	assert.Equal(t, r3.Vector{X: 1, Y: -2, Z: 3}, pose.Center())

	rotated := Pose{
		Rotation:    mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1}),
		Translation: r3.Vector{X: 1, Y: 0, Z: 0},
	}
	// C = -R^T t
	assertVectorNear(t, r3.Vector{X: 0, Y: 1, Z: 0}, rotated.Center(), 1e-12)
}

func TestQuaternionToRotation(t *testing.T) {
	t.Parallel()

	t.Run("identity", func(t *testing.T) {
		R := QuaternionToRotation(quat.Number{Real: 1})
		assert.True(t, mat.EqualApprox(R, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e-12))
	})

	t.Run("quarter turn about z", func(t *testing.T) {
		half := math.Pi / 4
		R := QuaternionToRotation(quat.Number{Real: math.Cos(half), Kmag: math.Sin(half)})
		want := mat.NewDense(3, 3, []float64{0, -1, 0, 1, 0, 0, 0, 0, 1})
		assert.True(t, mat.EqualApprox(R, want, 1e-12))
	})

	t.Run("unnormalized input is orthonormal", func(t *testing.T) {
		R := QuaternionToRotation(quat.Number{Real: 2, Imag: 0.4, Jmag: -1, Kmag: 0.3})
		var product mat.Dense
		product.Mul(R.T(), R)
		assert.True(t, mat.EqualApprox(&product, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), 1e-12))
		assert.True(t, scalar.EqualWithinAbs(mat.Det(R), 1, 1e-12))
	})
}

func TestRescalePixel(t *testing.T) {
	t.Parallel()

	got := RescalePixel(r2.Point{X: 100, Y: 100}, Size{Width: 1000, Height: 800}, Size{Width: 2000, Height: 1600})
	assert.Equal(t, r2.Point{X: 200, Y: 200}, got)

	got = RescalePixel(r2.Point{X: 300, Y: 150}, Size{Width: 600, Height: 300}, Size{Width: 1200, Height: 900})
	assert.Equal(t, r2.Point{X: 600, Y: 450}, got)
}

func TestTriangulationAngle(t *testing.T) {
	t.Parallel()

	angle := TriangulationAngle(r3.Vector{X: -1}, r3.Vector{X: 1}, r3.Vector{Z: 1})
	assert.InDelta(t, 90, angle, 1e-9)
	assert.Equal(t, 0.0, TriangulationAngle(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{}))
}
