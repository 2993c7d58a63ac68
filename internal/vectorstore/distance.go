package vectorstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/mfenderov/patent-novelty/pkg/models"
)

// ErrNonFinite indicates a vector holds a NaN or infinite component.
var ErrNonFinite = errors.New("non-finite embedding component")

// L2Distance computes the Euclidean distance between two vectors.
// Accumulation happens in float64 so results are exact for float32 inputs.
func L2Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", models.ErrDimensionMismatch, len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// CheckFinite reports the first NaN or infinite component of vec.
func CheckFinite(vec []float32) error {
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: index %d is %v", ErrNonFinite, i, v)
		}
	}
	return nil
}
