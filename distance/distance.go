package distance

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrInvalidVector is returned when a vector contains NaN or infinite components,
// or is empty.
var ErrInvalidVector = errors.New("invalid vector")

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	// MetricEuclidean is the straight-line (L2) distance.
	MetricEuclidean Metric = iota
	// MetricDotProduct is the negated inner product.
	MetricDotProduct
	// MetricCosine is one minus the cosine similarity.
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "euclidean"
	case MetricDotProduct:
		return "dot_product"
	case MetricCosine:
		return "cosine"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMetric parses a metric name. Matching is case-insensitive and accepts
// common aliases ("l2", "dot", "mip").
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "euclidean", "l2":
		return MetricEuclidean, nil
	case "dot_product", "dotproduct", "dot", "mip", "maximum_inner_product":
		return MetricDotProduct, nil
	case "cosine":
		return MetricCosine, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if m < MetricEuclidean || m > MetricCosine {
		return nil, fmt.Errorf("unknown metric %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
// Implementations assume both vectors have the same length.
type Func func(a, b []float32) float32

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricEuclidean:
		return Euclidean, nil
	case MetricDotProduct:
		return NegativeDot, nil
	case MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Compute validates a and b and returns their distance under m.
func Compute(m Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: length %d != %d", ErrInvalidVector, len(a), len(b))
	}
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	fn, err := Provider(m)
	if err != nil {
		return 0, err
	}
	return fn(a, b), nil
}

// Validate reports ErrInvalidVector for an empty vector or one holding NaN or
// infinite components.
func Validate(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidVector)
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) {
			return fmt.Errorf("%w: component %d is NaN", ErrInvalidVector, i)
		}
		if math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is infinite", ErrInvalidVector, i)
		}
	}
	return nil
}

// Dot calculates the dot product of two vectors.
// Sums run in float64 so that finite inputs never produce NaN.
func Dot(a, b []float32) float32 {
	return float32(dot64(a, b))
}

func dot64(a, b []float32) float64 {
	b = b[:len(a)]
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func squaredL264(a, b []float32) float64 {
	b = b[:len(a)]
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// SquaredL2 calculates the squared Euclidean distance between two vectors.
func SquaredL2(a, b []float32) float32 {
	return float32(squaredL264(a, b))
}

// Euclidean calculates the Euclidean distance between two vectors.
func Euclidean(a, b []float32) float32 {
	return float32(math.Sqrt(squaredL264(a, b)))
}

// NegativeDot returns -dot(a, b) so that larger inner products rank closer.
func NegativeDot(a, b []float32) float32 {
	return -Dot(a, b)
}

// Cosine returns 1 - cos(a, b). A zero-norm operand is treated as orthogonal.
func Cosine(a, b []float32) float32 {
	b = b[:len(a)]
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// NormalizeL2InPlace L2-normalizes v in place.
// Returns false if v has zero L2 norm.
func NormalizeL2InPlace(v []float32) bool {
	if len(v) == 0 {
		return false
	}
	norm2 := dot64(v, v)
	if norm2 == 0 {
		return false
	}
	inv := float32(1 / math.Sqrt(norm2))
	for i := range v {
		v[i] *= inv
	}
	return true
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	dst := slices.Clone(src)
	if !NormalizeL2InPlace(dst) {
		return nil, false
	}
	return dst, true
}
