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

package stats

import (
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

func TestPearson(t *testing.T) {
	x := []float64{4, 5, 3, 1, 2}
	y := []float64{5, 4, 3, 2, 1}
	assert.InDelta(t, stat.Correlation(x, y, nil), Pearson(x, y), 1e-9)
	assert.InDelta(t, 1.0, Pearson([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-9)
	// zero variance
	assert.Zero(t, Pearson([]float64{3, 3, 3}, []float64{1, 2, 3}))
	assert.Zero(t, Pearson(nil, nil))
}

func TestJaccard(t *testing.T) {
	a := mapset.NewSet("u1", "u2", "u3")
	b := mapset.NewSet("u2", "u3", "u4", "u5")
	assert.InDelta(t, 0.4, Jaccard(a, b), 1e-9)
	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
	assert.Zero(t, Jaccard(mapset.NewSet[string](), mapset.NewSet[string]()))
}

func TestEMA(t *testing.T) {
	assert.InDelta(t, 5.4, EMA(5, 9, 0.1), 1e-9)
	assert.Equal(t, 3.0, EMA(3, 7, 0))
}

func TestNormalCDF(t *testing.T) {
	for _, z := range []float64{-3, -1.96, -0.5, 0, 0.5, 1, 1.96, 2.5, 4} {
		assert.InDelta(t, distuv.UnitNormal.CDF(z), NormalCDF(z), 1e-7, "z=%v", z)
	}
	assert.Equal(t, 0.5, NormalCDF(math.NaN()))
}

func TestTwoProportionZTest(t *testing.T) {
	// 10% vs 12% on 1000 users each
	z, p := TwoProportionZTest(100, 1000, 120, 1000)
	assert.InDelta(t, 1.4293, z, 1e-3)
	assert.InDelta(t, 0.1529, p, 1e-3)
	// same rates on 5000 users each
	z, p = TwoProportionZTest(500, 5000, 600, 5000)
	assert.InDelta(t, 3.1960, z, 1e-3)
	assert.Less(t, p, 0.05)
	// degenerate
	z, p = TwoProportionZTest(0, 100, 0, 100)
	assert.Zero(t, z)
	assert.Equal(t, 1.0, p)
	z, p = TwoProportionZTest(0, 0, 1, 10)
	assert.Zero(t, z)
	assert.Equal(t, 1.0, p)
}

func TestHaversine(t *testing.T) {
	// Gangnam station to Hongdae
	d := Haversine(37.4979, 127.0276, 37.5563, 126.9236)
	assert.InDelta(t, 11.24, d, 0.05)
	assert.Zero(t, Haversine(37.5, 127.0, 37.5, 127.0))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1.0, Clamp(1.5, 0, 1))
	assert.Equal(t, 0.0, Clamp(-0.5, 0, 1))
	assert.Equal(t, 5, Clamp(5, 0, 10))
	assert.Zero(t, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}
