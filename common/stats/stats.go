// Copyright 2026 matjip Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stats holds the numeric kernels of the engine. Degenerate inputs
// (empty sets, zero variance, zero denominators) return 0 instead of NaN.
package stats

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/constraints"
)

const earthRadiusKm = 6371.0

// Pearson computes the sum-based Pearson correlation coefficient of two
// equally long samples.
func Pearson(x, y []float64) float64 {
	n := min(len(x), len(y))
	if n == 0 {
		return 0
	}
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
		sumY2 += y[i] * y[i]
	}
	fn := float64(n)
	numerator := fn*sumXY - sumX*sumY
	denominator := math.Sqrt((fn*sumX2 - sumX*sumX) * (fn*sumY2 - sumY*sumY))
	if denominator == 0 || math.IsNaN(denominator) {
		return 0
	}
	return Clamp(numerator/denominator, -1, 1)
}

// Jaccard returns |a ∩ b| / |a ∪ b|.
func Jaccard[T comparable](a, b mapset.Set[T]) float64 {
	union := a.Union(b).Cardinality()
	if union == 0 {
		return 0
	}
	return float64(a.Intersect(b).Cardinality()) / float64(union)
}

// EMA moves value toward sample by factor alpha.
func EMA(value, sample, alpha float64) float64 {
	return value*(1-alpha) + sample*alpha
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func Clamp[T constraints.Float | constraints.Integer](value, lo, hi T) T {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

// NormalCDF approximates the standard normal CDF with Abramowitz and Stegun
// formula 26.2.17 (absolute error below 7.5e-8).
func NormalCDF(z float64) float64 {
	if math.IsNaN(z) {
		return 0.5
	}
	if z < 0 {
		return 1 - NormalCDF(-z)
	}
	const (
		p  = 0.2316419
		b1 = 0.319381530
		b2 = -0.356563782
		b3 = 1.781477937
		b4 = -1.821255978
		b5 = 1.330274429
	)
	t := 1 / (1 + p*z)
	pdf := math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
	poly := t * (b1 + t*(b2+t*(b3+t*(b4+t*b5))))
	return 1 - pdf*poly
}

// TwoProportionZTest compares conversion rates of a control group (c1 of n1)
// and a test group (c2 of n2) with a pooled z-test. It returns the z-score and
// the two-tailed p-value.
func TwoProportionZTest(c1, n1, c2, n2 float64) (z, pValue float64) {
	if n1 <= 0 || n2 <= 0 {
		return 0, 1
	}
	p1, p2 := c1/n1, c2/n2
	pooled := (c1 + c2) / (n1 + n2)
	se := math.Sqrt(pooled * (1 - pooled) * (1/n1 + 1/n2))
	if se == 0 || math.IsNaN(se) {
		return 0, 1
	}
	z = (p2 - p1) / se
	pValue = 2 * (1 - NormalCDF(math.Abs(z)))
	return z, Clamp(pValue, 0, 1)
}

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
