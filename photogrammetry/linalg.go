package photogrammetry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PINV_RCOND matches numpy.linalg.pinv: singular values below rcond * max(s) are treated as zero.
const PINV_RCOND = 1e-15

func scaleHomogeonousPoint(point mat.Vector) mat.Vector {
	var vector mat.VecDense
	vector.ScaleVec((1 / point.AtVec(point.Len()-1)), point)
	return &vector
}

// pseudoInverse returns the Moore-Penrose pseudo-inverse of a along with its singular values.
func pseudoInverse(a mat.Matrix) (*mat.Dense, []float64, bool) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, nil, false
	}

	var matrixU mat.Dense
	var matrixV mat.Dense
	U := &matrixU
	V := &matrixV
	svd.UTo(U)
	svd.VTo(V)
	s := svd.Values(nil)

	cutoff := 0.0
	if len(s) > 0 {
		cutoff = PINV_RCOND * s[0]
	}
	sInv := mat.NewDiagDense(len(s), nil)
	for i, value := range s {
		if value > cutoff {
			sInv.SetDiag(i, 1/value)
		}
	}

	var vs, pinv mat.Dense
	vs.Mul(V, sInv)
	pinv.Mul(&vs, U.T())
	return &pinv, s, true
}

// conditionNumber is the ratio of the largest to the smallest singular value.
func conditionNumber(s []float64) float64 {
	if len(s) == 0 {
		return math.Inf(1)
	}
	smallest := s[len(s)-1]
	if smallest == 0 {
		return math.Inf(1)
	}
	return s[0] / smallest
}
