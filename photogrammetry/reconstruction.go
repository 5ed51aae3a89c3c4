package photogrammetry

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// DEFAULT_MAX_CONDITION is the condition number of the triangulation system above which
// the camera pair is reported as degenerate.
const DEFAULT_MAX_CONDITION = 1e8

// Triangulator recovers a world point from two pixel observations.
//
// The two cameras must have a sufficient baseline. A degenerate pair (identical centers,
// a point on the baseline) makes the linear system rank deficient: the least-squares solution
// is still returned but carries no geometric meaning. Such pairs are only reported in the log.
type Triangulator struct {
	// MaxCondition overrides DEFAULT_MAX_CONDITION when positive.
	MaxCondition float64

	logger *zap.SugaredLogger
}

func NewTriangulator(logger *zap.SugaredLogger) *Triangulator {
	return &Triangulator{logger: logger}
}

func (t *Triangulator) log() *zap.SugaredLogger {
	if t == nil || t.logger == nil {
		return zap.NewNop().Sugar()
	}
	return t.logger
}

func (t *Triangulator) maxCondition() float64 {
	if t == nil || t.MaxCondition <= 0 {
		return DEFAULT_MAX_CONDITION
	}
	return t.MaxCondition
}

// IsDegenerate reports whether a condition number is above the degenerate threshold.
func (t *Triangulator) IsDegenerate(condition float64) bool {
	return condition > t.maxCondition()
}

// linearSystem stacks, for each camera, the rows (P[2]*u - P[0]) and (P[2]*v - P[1]).
// The fourth column is moved to the right-hand side, giving A (4x3) and B (4x1).
func linearSystem(p1, p2 mat.Matrix, s1, s2 r2.Point) (*mat.Dense, *mat.Dense) {
	A := mat.NewDense(4, 3, nil)
	B := mat.NewDense(4, 1, nil)

	observations := []struct {
		projMat mat.Matrix
		pixel   r2.Point
	}{{p1, s1}, {p2, s2}}

	for index, obs := range observations {
		P := obs.projMat
		for axis, coord := range []float64{obs.pixel.X, obs.pixel.Y} {
			row := 2*index + axis
			for col := 0; col < 3; col++ {
				A.Set(row, col, P.At(2, col)*coord-P.At(axis, col))
			}
			B.Set(row, 0, P.At(axis, 3)-P.At(2, 3)*coord)
		}
	}
	return A, B
}

// Triangulate solves the two-view direct linear transform with the pseudo-inverse of A.
// The only error is a failed SVD, rank deficiency is not an error.
func (t *Triangulator) Triangulate(p1, p2 mat.Matrix, s1, s2 r2.Point) (r3.Vector, error) {
	A, B := linearSystem(p1, p2, s1, s2)

	pinv, s, ok := pseudoInverse(A)
	if !ok {
		return r3.Vector{}, ErrFactorization
	}
	var X mat.Dense
	X.Mul(pinv, B)

	logger := t.log()
	logger.Debugw("triangulation system",
		"A", fmt.Sprintf("%v", FormatMatrixPrint(A)),
		"B", fmt.Sprintf("%v", FormatMatrixPrint(B)),
		"singular_values", s,
	)
	if cond := conditionNumber(s); t.IsDegenerate(cond) {
		logger.Warnw("degenerate configuration, cameras may lack baseline", "condition", cond)
	}

	return r3.Vector{X: X.At(0, 0), Y: X.At(1, 0), Z: X.At(2, 0)}, nil
}

// Condition returns the condition number of the triangulation system for the given observations.
func (t *Triangulator) Condition(p1, p2 mat.Matrix, s1, s2 r2.Point) (float64, error) {
	A, _ := linearSystem(p1, p2, s1, s2)
	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDNone); !ok {
		return 0, ErrFactorization
	}
	return conditionNumber(svd.Values(nil)), nil
}

// ReprojectionEvaluator measures how well a world point projects back onto the observed pixels.
type ReprojectionEvaluator struct{}

// Reproject projects a world point with a 3x4 projection matrix.
func (ReprojectionEvaluator) Reproject(projMat mat.Matrix, point r3.Vector) (r2.Point, error) {
	homogeneous := mat.NewVecDense(4, []float64{point.X, point.Y, point.Z, 1})
	var projected mat.VecDense
	projected.MulVec(projMat, homogeneous)

	if projected.AtVec(2) == 0 {
		return r2.Point{}, ErrZeroDepth
	}
	pixel := scaleHomogeonousPoint(&projected)
	return r2.Point{X: pixel.AtVec(0), Y: pixel.AtVec(1)}, nil
}

// Residuals returns the pixel distance between each observation and the reprojected point.
func (e ReprojectionEvaluator) Residuals(projMats []mat.Matrix, point r3.Vector, pixels []r2.Point) ([]float64, error) {
	if len(projMats) != len(pixels) {
		return nil, errors.Wrapf(ErrLengthMismatch, "%d matrices, %d pixels", len(projMats), len(pixels))
	}
	residuals := make([]float64, len(projMats))
	for index, projMat := range projMats {
		reprojected, err := e.Reproject(projMat, point)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %d", index)
		}
		diff := reprojected.Sub(pixels[index])
		residuals[index] = math.Hypot(diff.X, diff.Y)
	}
	return residuals, nil
}

// Evaluate returns the reprojection error summed over all cameras. It is a sum, not a mean.
func (e ReprojectionEvaluator) Evaluate(projMats []mat.Matrix, point r3.Vector, pixels []r2.Point) (float64, error) {
	residuals, err := e.Residuals(projMats, point, pixels)
	if err != nil {
		return 0, err
	}
	errorSum := 0.0
	for _, residual := range residuals {
		errorSum += residual
	}
	return errorSum, nil
}
