package segmentation

import (
	"math"
	"math/rand"
)

// kmeansResult holds the raw clustering output before labels are attached.
type kmeansResult struct {
	assignments []int
	centroids   [][]float64
	converged   bool
}

// runKMeans clusters the feature matrix with Lloyd's algorithm. Initial
// centroids are k distinct points chosen by a seeded generator, so the same
// matrix and seed always produce the same assignment. Iteration stops at a
// fixed point or after maxIter passes.
func runKMeans(features [][]float64, k int, seed int64, maxIter int) kmeansResult {
	rng := rand.New(rand.NewSource(seed))

	centroids := make([][]float64, k)
	for i, idx := range rng.Perm(len(features))[:k] {
		centroids[i] = append([]float64(nil), features[idx]...)
	}

	assignments := make([]int, len(features))
	res := kmeansResult{assignments: assignments, centroids: centroids}

	for iter := 0; iter < maxIter; iter++ {
		changed := false
		for i, f := range features {
			c := nearestCentroid(f, centroids)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if !changed && iter > 0 {
			res.converged = true
			break
		}
		recomputeCentroids(features, assignments, centroids, rng)
	}
	return res
}

func nearestCentroid(point []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		d := squaredDistance(point, centroid)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// recomputeCentroids moves each centroid to the mean of its members. A
// centroid that lost every member is reseeded onto a random point so the
// cluster count never silently collapses.
func recomputeCentroids(features [][]float64, assignments []int, centroids [][]float64, rng *rand.Rand) {
	dims := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, f := range features {
		c := assignments[i]
		counts[c]++
		for d := range f {
			sums[c][d] += f[d]
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			copy(centroids[c], features[rng.Intn(len(features))])
			continue
		}
		for d := range centroids[c] {
			centroids[c][d] = sums[c][d] / float64(counts[c])
		}
	}
}

// zscore standardizes each column of the matrix in place to zero mean and
// unit variance. Constant columns are left at zero so they carry no weight.
func zscore(features [][]float64) {
	if len(features) == 0 {
		return
	}
	dims := len(features[0])
	for d := 0; d < dims; d++ {
		var mean float64
		for _, f := range features {
			mean += f[d]
		}
		mean /= float64(len(features))

		var ss float64
		for _, f := range features {
			dv := f[d] - mean
			ss += dv * dv
		}
		stddev := math.Sqrt(ss / float64(len(features)))

		for _, f := range features {
			if stddev == 0 {
				f[d] = 0
				continue
			}
			f[d] = (f[d] - mean) / stddev
		}
	}
}
