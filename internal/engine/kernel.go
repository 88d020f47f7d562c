package engine

import (
	"math"
	"math/bits"

	"github.com/viant/vec/search"

	"github.com/hupe1980/annbind/capi"
)

// distanceFunc computes the distance between two decoded vectors.
//
// SAFETY: kernels assume len(a) == len(b) and do not bounds-check.
// Callers must ensure lengths match.
type distanceFunc func(a, b []float32) float32

// bitDistanceFunc computes the distance between two packed bit vectors.
type bitDistanceFunc func(a, b []uint64) float32

// isBitMetric reports whether the metric operates on packed bits rather
// than decoded floats.
func isBitMetric(m capi.MetricKind) bool {
	switch m {
	case capi.MetricHamming, capi.MetricTanimoto, capi.MetricSorensen:
		return true
	}
	return false
}

func scalarKernel(m capi.MetricKind) distanceFunc {
	switch m {
	case capi.MetricIP:
		return ipDistance
	case capi.MetricL2sq:
		return squaredL2
	case capi.MetricHaversine:
		return haversineDistance
	case capi.MetricDivergence:
		return jensenShannonDistance
	case capi.MetricPearson:
		return pearsonDistance
	case capi.MetricCos:
		return cosineDistance
	}
	return nil
}

func bitKernel(m capi.MetricKind) bitDistanceFunc {
	switch m {
	case capi.MetricHamming:
		return hammingDistance
	case capi.MetricTanimoto:
		return tanimotoDistance
	case capi.MetricSorensen:
		return sorensenDistance
	}
	return nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// ipDistance is the inner-product distance 1 - <a, b>. Smallest for the
// most aligned pair when vectors are normalized.
func ipDistance(a, b []float32) float32 {
	return 1 - dot(a, b)
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// cosineDistance is 1 - cos(a, b). Two zero vectors are identical, one
// zero vector is maximally far.
func cosineDistance(a, b []float32) float32 {
	va := search.Float32s(a)
	ma := va.Magnitude()
	mb := search.Float32s(b).Magnitude()
	if ma == 0 && mb == 0 {
		return 0
	}
	if ma == 0 || mb == 0 {
		return 1
	}
	return va.CosineDistanceWithMagnitudesNeon(b, ma, mb)
}

// haversineDistance treats a and b as {latitude, longitude} pairs in
// radians and returns the central angle between them.
func haversineDistance(a, b []float32) float32 {
	dLat := float64(b[0] - a[0])
	dLon := float64(b[1] - a[1])
	sLat := math.Sin(dLat / 2)
	sLon := math.Sin(dLon / 2)
	t := sLat*sLat + math.Cos(float64(a[0]))*math.Cos(float64(b[0]))*sLon*sLon
	return float32(2 * math.Asin(math.Sqrt(t)))
}

// jensenShannonDistance is the square root of the Jensen-Shannon
// divergence between two probability distributions.
func jensenShannonDistance(a, b []float32) float32 {
	const eps = 1e-7
	var klAM, klBM float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		mid := (ai+bi)/2 + eps
		klAM += ai * math.Log(ai/mid+eps)
		klBM += bi * math.Log(bi/mid+eps)
	}
	d := (klAM + klBM) / 2
	if d <= 0 {
		return 0
	}
	return float32(math.Sqrt(d))
}

// pearsonDistance is the negated Pearson correlation coefficient, so
// perfectly correlated vectors sort first.
func pearsonDistance(a, b []float32) float32 {
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		sumA += ai
		sumB += bi
		sumAB += ai * bi
		sumA2 += ai * ai
		sumB2 += bi * bi
	}
	n := float64(len(a))
	denom := math.Sqrt((n*sumA2 - sumA*sumA) * (n*sumB2 - sumB*sumB))
	if denom == 0 {
		return 0
	}
	return float32(-(n*sumAB - sumA*sumB) / denom)
}

func hammingDistance(a, b []uint64) float32 {
	var sum int
	for i := range a {
		sum += bits.OnesCount64(a[i] ^ b[i])
	}
	return float32(sum)
}

// tanimotoDistance is 1 - |a AND b| / |a OR b| over set bits.
func tanimotoDistance(a, b []uint64) float32 {
	var and, or int
	for i := range a {
		and += bits.OnesCount64(a[i] & b[i])
		or += bits.OnesCount64(a[i] | b[i])
	}
	if or == 0 {
		return 0
	}
	return 1 - float32(and)/float32(or)
}

// sorensenDistance is 1 - 2 |a AND b| / (|a| + |b|) over set bits.
func sorensenDistance(a, b []uint64) float32 {
	var and, total int
	for i := range a {
		and += bits.OnesCount64(a[i] & b[i])
		total += bits.OnesCount64(a[i]) + bits.OnesCount64(b[i])
	}
	if total == 0 {
		return 0
	}
	return 1 - 2*float32(and)/float32(total)
}
