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
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
)

func targetIds(records []*RecommendationRecord) []string {
	return lo.Map(records, func(r *RecommendationRecord, _ int) string { return r.TargetId })
}

// insertActivity gives r2 two reviews and r1 one review from other users.
func (suite *EngineTestSuite) insertActivity() {
	suite.NoError(suite.dataStore.BatchInsertReviews(context.Background(), []data.Review{
		{ReviewId: "a1", UserId: "erin", RestaurantId: "r2", Rating: 5, Timestamp: suite.now.Add(-time.Hour)},
		{ReviewId: "a2", UserId: "frank", RestaurantId: "r2", Rating: 4, Timestamp: suite.now.Add(-time.Hour)},
		{ReviewId: "a3", UserId: "erin", RestaurantId: "r1", Rating: 4, Timestamp: suite.now.Add(-time.Hour)},
	}))
}

func (suite *EngineTestSuite) TestRecommendPopular() {
	ctx := context.Background()
	suite.insertActivity()
	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "ghost"})
	suite.NoError(err)
	suite.Equal(StatusFallbackPopular, response.Status)
	suite.Equal([]string{"r2", "r1", "r3"}, targetIds(response.Recommendations))
	for i, record := range response.Recommendations {
		suite.Equal(AlgorithmPopular, record.Algorithm)
		suite.Equal(i+1, record.Rank)
		suite.Equal("ghost", record.UserId)
		suite.Equal(TargetRestaurant, record.TargetType)
		suite.Equal(suite.now.Add(suite.config.Recommend.Expire), record.ExpiresAt)
		suite.Equal(response.Recommendations[0].BatchId, record.BatchId)
	}
	suite.Equal(1.0, response.Recommendations[0].Score)
	suite.Equal(0.5, response.Recommendations[1].Score)
	suite.Equal("Popular right now", response.Recommendations[0].Reason.Primary)

	active, err := suite.engine.Store.ActiveRecommendations(ctx, "ghost", suite.now)
	suite.NoError(err)
	suite.Equal([]string{"r2", "r1", "r3"}, targetIds(active))
}

func (suite *EngineTestSuite) TestRecommendContent() {
	ctx := context.Background()
	suite.insertActivity()
	suite.putTasteVector("alice", func(v *TasteVector) {
		v.Cuisine.Korean = Dimension{Value: 10, Confidence: 0.9}
	})
	preference := NewUserPreference("alice", suite.now)
	preference.Negative.BlockedRestaurants = []string{"r3"}
	suite.NoError(suite.engine.Store.PutPreference(ctx, preference))

	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "alice", Algorithm: "content", N: 5})
	suite.NoError(err)
	suite.Equal(StatusOK, response.Status)
	suite.Equal([]string{"r1", "r2"}, targetIds(response.Recommendations))
	top := response.Recommendations[0]
	suite.Equal("content", top.Algorithm)
	suite.InDelta((0.7*0.6875+0.1*0.5)/0.8, top.Score, 1e-9)
	suite.InDelta(0.6875, top.Breakdown[ComponentContent], 1e-9)
	suite.InDelta(0.5, top.Breakdown[ComponentTrending], 1e-9)
	suite.Equal("Matches your taste", top.Reason.Primary)
	suite.Equal([]string{"korean", "price_2", "casual"}, top.Reason.Tags)

	response, err = suite.engine.Recommender.Generate(ctx, Request{UserId: "alice", Algorithm: "content", N: 1})
	suite.NoError(err)
	suite.Equal([]string{"r1"}, targetIds(response.Recommendations))
}

func (suite *EngineTestSuite) TestRecommendUncatalogedUser() {
	ctx := context.Background()
	suite.insertActivity()
	// dave has no catalog row but the engine already learned dave's taste
	suite.putTasteVector("dave", func(v *TasteVector) {
		v.Cuisine.Korean = Dimension{Value: 10, Confidence: 0.9}
	})
	preference := NewUserPreference("dave", suite.now)
	preference.Negative.BlockedRestaurants = []string{"r3"}
	suite.NoError(suite.engine.Store.PutPreference(ctx, preference))

	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "dave", Algorithm: "content", N: 5})
	suite.NoError(err)
	suite.Equal(StatusOK, response.Status)
	suite.Equal([]string{"r1", "r2"}, targetIds(response.Recommendations))
	suite.Equal("content", response.Recommendations[0].Algorithm)

	explanation, err := suite.engine.Recommender.Explain(ctx, "dave", "r1", RecommendationContext{})
	suite.NoError(err)
	suite.NotNil(explanation)
	_, err = suite.engine.Recommender.Explain(ctx, "ghost", "r1", RecommendationContext{})
	suite.True(errors.Is(err, errors.NotFound))
}

func (suite *EngineTestSuite) TestRecommendContext() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	// a neutral vector leaves the context to decide
	response, err := suite.engine.Recommender.Generate(ctx, Request{
		UserId:    "alice",
		Algorithm: "nearby",
		RecommendationContext: RecommendationContext{
			Location:  &Location{Lat: 37.497, Lng: 127.028},
			Companion: "date",
			MealTime:  "dinner",
		},
	})
	suite.NoError(err)
	// r3 has no coordinates and nearby requires a location
	suite.Equal([]string{"r1", "r2"}, targetIds(response.Recommendations))
	suite.Contains(response.Recommendations[0].Reason.Tags, "nearby")
	suite.Equal("Close to you", response.Recommendations[0].Reason.Primary)
	suite.Equal("date", response.Recommendations[0].Context.Companion)

	response, err = suite.engine.Recommender.Generate(ctx, Request{
		UserId:                "alice",
		Algorithm:             "content",
		RecommendationContext: RecommendationContext{Companion: "date", Mood: "romantic", Budget: data.PriceLuxury},
	})
	suite.NoError(err)
	// r2 and r3 tie on score and activity, so ids break the tie
	suite.Equal([]string{"r2", "r3", "r1"}, targetIds(response.Recommendations))
	suite.InDelta(1, response.Recommendations[1].Breakdown[ComponentContext], 1e-9)
	suite.InDelta(1.0/3, response.Recommendations[2].Breakdown[ComponentContext], 1e-9)
}

func (suite *EngineTestSuite) TestRecommendSocial() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.NoError(suite.dataStore.BatchInsertUsers(ctx, []data.User{
		{UserId: "alice", Age: 25, City: "seoul", District: "gangnam", Following: []string{"bob"}},
	}))
	suite.insertRatings("bob", map[string]float64{"r2": 5, "r3": 2})
	carol := NewUserPreference("carol", suite.now)
	carol.LikedRestaurants = []LikedRestaurant{{RestaurantId: "r3", Strength: 1, LikedAt: suite.now}}
	suite.NoError(suite.engine.Store.PutPreference(ctx, carol))
	preference := NewUserPreference("alice", suite.now)
	preference.Follow("carol", 1)
	suite.NoError(suite.engine.Store.PutPreference(ctx, preference))

	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "alice", Algorithm: "social"})
	suite.NoError(err)
	suite.ElementsMatch([]string{"r2", "r3"}, targetIds(response.Recommendations))
	for _, record := range response.Recommendations {
		suite.Contains(record.Reason.Tags, "friends_liked")
		suite.InDelta(1.0/3, record.Breakdown[ComponentSocial], 1e-9)
	}
}

func (suite *EngineTestSuite) TestRecommendCollaborative() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", nil)
	suite.insertRatings("bob", map[string]float64{"r3": 5})
	_, err := suite.engine.Similarity.Refresh(ctx, "alice", []string{"bob"}, suite.now)
	suite.NoError(err)

	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "alice", Algorithm: "collaborative"})
	suite.NoError(err)
	suite.Equal([]string{"r3"}, targetIds(response.Recommendations))
	suite.InDelta(1, response.Recommendations[0].Breakdown[ComponentCollaborative], 1e-9)
	suite.Equal("Users with similar taste rated it highly", response.Recommendations[0].Reason.Primary)
}

func (suite *EngineTestSuite) TestRecommendAuto() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	content := NewAlgorithmPerformance("content", suite.now)
	content.Metrics.Engagement.CTR = 0.2
	suite.NoError(suite.engine.Store.PutPerformance(ctx, content))
	suite.NoError(suite.engine.Store.PutPerformance(ctx, NewAlgorithmPerformance("hybrid", suite.now)))

	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "alice", Algorithm: AlgorithmAuto})
	suite.NoError(err)
	suite.NotEmpty(response.Recommendations)
	for _, record := range response.Recommendations {
		suite.Equal("content", record.Algorithm)
	}
}

func (suite *EngineTestSuite) TestRecommendEmpty() {
	ctx := context.Background()
	preference := NewUserPreference("alice", suite.now)
	preference.Negative.AvoidedCuisines = []string{"korean", "japanese"}
	preference.Negative.DislikedRestaurants = []string{"r3"}
	suite.NoError(suite.engine.Store.PutPreference(ctx, preference))
	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "alice"})
	suite.NoError(err)
	suite.Equal(StatusEmpty, response.Status)
	suite.Empty(response.Recommendations)
}

func (suite *EngineTestSuite) TestRecommendFilter() {
	ctx := context.Background()
	suite.config.Recommend.CandidateFilter = "PriceLevel <= 2"
	suite.newEngine()
	response, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "ghost"})
	suite.NoError(err)
	suite.Equal([]string{"r1"}, targetIds(response.Recommendations))
}

func (suite *EngineTestSuite) TestRecommendInvalid() {
	ctx := context.Background()
	for _, req := range []Request{
		{},
		{UserId: "alice", N: -1},
		{UserId: "alice", N: suite.config.Server.MaxN + 1},
		{UserId: "alice", Algorithm: "magic"},
		{UserId: "alice", RecommendationContext: RecommendationContext{Companion: "cat"}},
		{UserId: "alice", RecommendationContext: RecommendationContext{MealTime: "tea"}},
		{UserId: "alice", RecommendationContext: RecommendationContext{Budget: -1}},
		{UserId: "alice", RecommendationContext: RecommendationContext{Location: &Location{Lat: 91}}},
	} {
		_, err := suite.engine.Recommender.Generate(ctx, req)
		suite.True(errors.Is(err, errors.NotValid), req)
	}
}

func (suite *EngineTestSuite) TestRecommendCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := suite.engine.Recommender.Generate(ctx, Request{UserId: "ghost"})
	suite.Error(err)
	active, err := suite.engine.Store.ActiveRecommendations(context.Background(), "ghost", suite.now)
	suite.NoError(err)
	suite.Empty(active)
}

func (suite *EngineTestSuite) TestExplain() {
	ctx := context.Background()
	suite.insertActivity()
	suite.putTasteVector("alice", func(v *TasteVector) {
		v.Cuisine.Korean = Dimension{Value: 10, Confidence: 0.9}
	})
	explanation, err := suite.engine.Recommender.Explain(ctx, "alice", "r1", RecommendationContext{MealTime: "dinner"})
	suite.NoError(err)
	suite.Equal("hybrid", explanation.Algorithm)
	suite.ElementsMatch([]string{ComponentContent, ComponentTrending, ComponentContext}, lo.Keys(explanation.Breakdown))
	suite.InDelta(1, explanation.Breakdown[ComponentContext].Score, 1e-9)
	var weights, contributions float64
	for _, component := range explanation.Breakdown {
		weights += component.Weight
		contributions += component.Contribution
	}
	suite.InDelta(1, weights, 1e-9)
	suite.InDelta(explanation.TotalScore, contributions*100, 1e-9)
	suite.Equal(ComponentContent, explanation.TopFactors[0])
	suite.Len(explanation.TopFactors, 3)
	suite.Equal("Matches your taste", explanation.Reasons[0])
	vector, err := suite.engine.GetTasteVector(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(vector.AverageConfidence(), explanation.Confidence, 1e-9)

	_, err = suite.engine.Recommender.Explain(ctx, "alice", "r9", RecommendationContext{})
	suite.True(errors.Is(err, errors.NotFound))
	_, err = suite.engine.Recommender.Explain(ctx, "", "r1", RecommendationContext{})
	suite.True(errors.Is(err, errors.NotValid))

	// fall back to the first enabled algorithm
	suite.config.Recommend.Algorithms = map[string]config.AlgorithmConfig{
		"content": config.DefaultAlgorithms()["content"],
	}
	explanation, err = suite.engine.Recommender.Explain(ctx, "alice", "r1", RecommendationContext{})
	suite.NoError(err)
	suite.Equal("content", explanation.Algorithm)
}
