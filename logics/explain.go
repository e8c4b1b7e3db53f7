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

package logics

import (
	"context"
	"sort"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/config"
	"github.com/samber/lo"
)

const explainAlgorithm = "hybrid"

type ExplainedComponent struct {
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

type Explanation struct {
	UserId       string                        `json:"userId"`
	RestaurantId string                        `json:"restaurantId"`
	Algorithm    string                        `json:"algorithm"`
	TotalScore   float64                       `json:"totalScore"`
	Breakdown    map[string]ExplainedComponent `json:"breakdown"`
	Reasons      []string                      `json:"reasons"`
	Confidence   float64                       `json:"confidence"`
	TopFactors   []string                      `json:"topFactors"`
}

// Explain breaks down the score of a restaurant for a user.
func (r *Recommender) Explain(ctx context.Context, userId, restaurantId string, rc RecommendationContext) (*Explanation, error) {
	if userId == "" || restaurantId == "" {
		return nil, errors.NotValidf("empty user or restaurant id")
	}
	ctx, span := tracer.Start(ctx, "Explain")
	defer span.End()
	now := r.clock()
	if rc.Time.IsZero() {
		rc.Time = now
	}
	item, err := r.data.GetRestaurant(ctx, restaurantId)
	if err != nil {
		return nil, err
	}
	profile, err := r.loadProfile(ctx, userId, now)
	if err != nil {
		return nil, err
	}
	signals, err := r.loadSignals(ctx, profile, now)
	if err != nil {
		return nil, err
	}
	algorithmName := explainAlgorithm
	algorithm, ok := r.config.Recommend.Algorithms[algorithmName]
	if !ok {
		enabled := r.config.Recommend.EnabledAlgorithms()
		if len(enabled) == 0 {
			return nil, errors.NotFoundf("enabled algorithm")
		}
		algorithmName = enabled[0]
		algorithm = r.config.Recommend.Algorithms[algorithmName]
	}
	components := r.scoreComponents(item, Request{UserId: userId, RecommendationContext: rc}, profile, signals)
	score, _ := profileScore(algorithm, components)
	shares := contributions(algorithm.Weights, components)

	explanation := &Explanation{
		UserId:       userId,
		RestaurantId: restaurantId,
		Algorithm:    algorithmName,
		TotalScore:   score * 100,
		Breakdown:    make(map[string]ExplainedComponent),
	}
	totalWeight := availableWeight(algorithm.Weights, components)
	for name, value := range components {
		w := componentWeight(algorithm.Weights, name)
		if w <= 0 {
			continue
		}
		explanation.Breakdown[name] = ExplainedComponent{
			Score:        value,
			Weight:       w / totalWeight,
			Contribution: shares[name],
		}
	}
	factors := lo.Keys(shares)
	sort.Slice(factors, func(i, j int) bool {
		if shares[factors[i]] != shares[factors[j]] {
			return shares[factors[i]] > shares[factors[j]]
		}
		return factors[i] < factors[j]
	})
	explanation.TopFactors = lo.Subset(factors, 0, 3)
	reason := r.reason(&scoredCandidate{item: item, components: components, algorithm: algorithmName, score: score, weights: algorithm.Weights})
	explanation.Reasons = lo.Compact(append([]string{reason.Primary}, reason.Secondary...))
	if profile.useVector {
		explanation.Confidence = profile.vector.AverageConfidence()
	} else {
		weighted := lo.CountBy(componentNames, func(name string) bool { return componentWeight(algorithm.Weights, name) > 0 })
		if weighted > 0 {
			explanation.Confidence = float64(len(explanation.Breakdown)) / float64(weighted)
		}
	}
	return explanation, nil
}

func availableWeight(weights config.ComponentWeights, components map[string]float64) float64 {
	var total float64
	for name := range components {
		total += componentWeight(weights, name)
	}
	return total
}
