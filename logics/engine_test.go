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
	"fmt"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type EngineTestSuite struct {
	suite.Suite
	dataStore  data.Database
	cacheStore cache.Database
	config     *config.Config
	engine     *Engine
	now        time.Time
}

func (suite *EngineTestSuite) SetupSuite() {
	var err error
	suite.dataStore, err = data.Open(fmt.Sprintf("sqlite://%s/data.db", suite.T().TempDir()), "")
	suite.NoError(err)
	suite.NoError(suite.dataStore.Init())
	suite.cacheStore = cache.NewMemory()
}

func (suite *EngineTestSuite) TearDownSuite() {
	suite.NoError(suite.dataStore.Close())
	suite.NoError(suite.cacheStore.Close())
}

func (suite *EngineTestSuite) SetupTest() {
	suite.NoError(suite.dataStore.Purge())
	suite.NoError(suite.cacheStore.Purge())
	suite.config = config.GetDefaultConfig()
	suite.now = testTime
	suite.newEngine()
	suite.insertCatalog()
}

func (suite *EngineTestSuite) newEngine() {
	var err error
	suite.engine, err = NewEngine(suite.config, suite.dataStore, suite.cacheStore)
	suite.NoError(err)
	suite.engine.SetClock(func() time.Time { return suite.now })
}

// insertCatalog inserts four restaurants, the last one closed, and three users.
func (suite *EngineTestSuite) insertCatalog() {
	ctx := context.Background()
	suite.NoError(suite.dataStore.BatchInsertRestaurants(ctx, []data.Restaurant{
		{
			RestaurantId: "r1", Name: "Gangnam Gukbap", Cuisine: "korean", PriceLevel: data.PriceModerate,
			AtmosphereTags: []string{"casual"}, MealTimes: []string{"dinner"}, GoodFor: []string{"friends"},
			Latitude: 37.498, Longitude: 127.027, City: "seoul", District: "gangnam",
		},
		{
			RestaurantId: "r2", Name: "Sushi Mapo", Cuisine: "japanese", PriceLevel: data.PricePremium,
			AtmosphereTags: []string{"quiet"}, MealTimes: []string{"lunch", "dinner"}, GoodFor: []string{"date"},
			Latitude: 37.556, Longitude: 126.910, City: "seoul", District: "mapo",
		},
		{
			RestaurantId: "r3", Name: "Trattoria", Cuisine: "italian", PriceLevel: data.PriceLuxury,
			AtmosphereTags: []string{"romantic"}, MealTimes: []string{"dinner"}, GoodFor: []string{"date"},
			City: "seoul", District: "jongno",
		},
		{
			RestaurantId: "r4", Name: "Closed Bunsik", Cuisine: "korean", PriceLevel: data.PriceBudget,
			IsClosed: true,
		},
	}))
	suite.NoError(suite.dataStore.BatchInsertUsers(ctx, []data.User{
		{UserId: "alice", Age: 25, City: "seoul", District: "gangnam"},
		{UserId: "bob", Age: 35, City: "seoul", District: "mapo"},
		{UserId: "carol", Age: 30, City: "busan"},
	}))
}

func (suite *EngineTestSuite) putTasteVector(userId string, update func(v *TasteVector)) *TasteVector {
	v := NewTasteVector(userId, suite.config.Taste, suite.now)
	v.UpdateCount = 1
	if update != nil {
		update(v)
	}
	suite.NoError(suite.engine.Store.PutTasteVector(context.Background(), v))
	return v
}

func (suite *EngineTestSuite) TestNewEngineFilter() {
	cfg := config.GetDefaultConfig()
	cfg.Recommend.CandidateFilter = "PriceLevel +"
	_, err := NewEngine(cfg, suite.dataStore, suite.cacheStore)
	suite.Error(err)
	cfg.Recommend.CandidateFilter = "PriceLevel"
	_, err = NewEngine(cfg, suite.dataStore, suite.cacheStore)
	suite.True(errors.Is(err, errors.NotValid))
	cfg.Recommend.CandidateFilter = "PriceLevel <= 2 && !IsClosed"
	_, err = NewEngine(cfg, suite.dataStore, suite.cacheStore)
	suite.NoError(err)
}

func (suite *EngineTestSuite) TestFeedback() {
	ctx := context.Background()
	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "alice", RestaurantId: "r1", Action: ActionLike, Source: "feed"}))
	preference, err := suite.engine.GetPreferences(ctx, "alice")
	suite.NoError(err)
	suite.Equal(1.0, preference.LikeStrength("r1"))
	suite.Equal(1.5, preference.CuisineScores["korean"])
	vector, err := suite.engine.GetTasteVector(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(5.3, vector.Cuisine.Korean.Value, 1e-9)
	suite.InDelta(0.55, vector.Cuisine.Korean.Confidence, 1e-9)
	suite.InDelta(5.2, vector.Atmosphere.Casual.Value, 1e-9)
	suite.InDelta(5.2, vector.Price.Moderate.Value, 1e-9)
	suite.Equal(1, vector.UpdateCount)

	// rated visits move toward twice the rating
	rating := 4.5
	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "bob", RestaurantId: "r2", Action: ActionVisit, Rating: &rating, Companion: "date"}))
	vector, err = suite.engine.GetTasteVector(ctx, "bob")
	suite.NoError(err)
	suite.InDelta(5.4, vector.Cuisine.Japanese.Value, 1e-9)
	preference, err = suite.engine.GetPreferences(ctx, "bob")
	suite.NoError(err)
	suite.Len(preference.VisitHistory, 1)
	suite.Equal(1, preference.CompanionPatterns["date"].Frequency)

	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "carol", RestaurantId: "r1", Action: ActionDislike}))
	vector, err = suite.engine.GetTasteVector(ctx, "carol")
	suite.NoError(err)
	suite.InDelta(4.7, vector.Cuisine.Korean.Value, 1e-9)
	suite.InDelta(4.8, vector.Atmosphere.Casual.Value, 1e-9)

	// clicks do not touch the taste vector
	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "dave", RestaurantId: "r1", Action: ActionClick}))
	_, err = suite.engine.GetTasteVector(ctx, "dave")
	suite.True(errors.Is(err, errors.NotFound))

	err = suite.engine.Feedback(ctx, FeedbackRequest{UserId: "alice", RestaurantId: "r1", Action: "share"})
	suite.True(errors.Is(err, errors.NotValid))
	rating = 6
	err = suite.engine.Feedback(ctx, FeedbackRequest{UserId: "alice", RestaurantId: "r1", Action: ActionVisit, Rating: &rating})
	suite.True(errors.Is(err, errors.NotValid))
	err = suite.engine.Feedback(ctx, FeedbackRequest{UserId: "alice", RestaurantId: "r9", Action: ActionLike})
	suite.True(errors.Is(err, errors.NotFound))
}

func (suite *EngineTestSuite) TestFeedbackInvalidatesSimilarity() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", nil)
	entry, stale, err := suite.engine.Similarity.Get(ctx, "alice", "bob", suite.now)
	suite.NoError(err)
	suite.False(stale)
	suite.True(entry.Cache.Valid)

	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "bob", RestaurantId: "r2", Action: ActionLike}))
	entry, err = suite.engine.Store.GetSimilarity(ctx, "bob", "alice")
	suite.NoError(err)
	suite.False(entry.Cache.Valid)
}

func (suite *EngineTestSuite) TestRecordReview() {
	ctx := context.Background()
	review := data.Review{
		ReviewId:       "v1",
		UserId:         "alice",
		RestaurantId:   "r1",
		Rating:         4,
		FlavorRatings:  map[string]float64{"spicy": 9},
		AtmosphereTags: []string{"casual"},
		Occasion:       "friends",
		Companion:      "friends",
		MealTime:       "dinner",
		Spend:          25000,
		Timestamp:      suite.now.Add(-time.Hour),
	}
	suite.NoError(suite.engine.RecordReview(ctx, review))
	vector, err := suite.engine.GetTasteVector(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(5.4, vector.Flavor.Spicy.Value, 1e-9)
	suite.InDelta(0.55, vector.Flavor.Spicy.Confidence, 1e-9)
	suite.InDelta(5.3, vector.Context.Friends.Value, 1e-9)
	suite.InDelta(5.2, vector.TimeOfDay.Dinner.Value, 1e-9)
	suite.InDelta(5.3, vector.Cuisine.Korean.Value, 1e-9)
	suite.Equal(suite.now.Add(-time.Hour), vector.LastUpdated)

	preference, err := suite.engine.GetPreferences(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(5.4, preference.SpicyTolerance, 1e-9)
	suite.Len(preference.VisitHistory, 1)
	suite.Equal("r1", preference.VisitHistory[0].RestaurantId)
	suite.Equal(1, preference.MealTimePatterns["dinner"])
	suite.Equal(25000.0, preference.CompanionPatterns["friends"].AverageSpend)

	invalid := review
	invalid.FlavorRatings = map[string]float64{"metallic": 3}
	suite.True(errors.Is(suite.engine.RecordReview(ctx, invalid), errors.NotValid))
	invalid = review
	invalid.Rating = 0
	suite.True(errors.Is(suite.engine.RecordReview(ctx, invalid), errors.NotValid))
	invalid = review
	invalid.RestaurantId = "r9"
	suite.True(errors.Is(suite.engine.RecordReview(ctx, invalid), errors.NotFound))
	// nothing changed by rejected reviews
	preference, err = suite.engine.GetPreferences(ctx, "alice")
	suite.NoError(err)
	suite.Len(preference.VisitHistory, 1)
}

func (suite *EngineTestSuite) TestApplyGameResult() {
	ctx := context.Background()
	vector, err := suite.engine.ApplyGameResult(ctx, "alice", GameResult{GameType: GameMBTI, Letters: "ENFP"})
	suite.NoError(err)
	suite.InDelta(5.3, vector.Behavior.Adventurous.Value, 1e-9)
	suite.InDelta(5.3, vector.Behavior.Social.Value, 1e-9)
	preference, err := suite.engine.GetPreferences(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(5.3, preference.Adventurousness, 1e-9)

	vector, err = suite.engine.ApplyGameResult(ctx, "alice", GameResult{GameType: GameFoodDuel, Duels: []Duel{{Winner: "tteokbokki", Loser: "pasta"}}})
	suite.NoError(err)
	suite.Equal(2, vector.UpdateCount)
	suite.Greater(vector.Flavor.Spicy.Value, 5.0)
	suite.Less(vector.Cuisine.Italian.Value, 5.0)

	_, err = suite.engine.ApplyGameResult(ctx, "alice", GameResult{GameType: GameMoodPick, Mood: "bored"})
	suite.True(errors.Is(err, errors.NotValid))
	_, err = suite.engine.ApplyGameResult(ctx, "", GameResult{GameType: GameMBTI, Letters: "ENFP"})
	suite.True(errors.Is(err, errors.NotValid))
	stored, err := suite.engine.GetTasteVector(ctx, "alice")
	suite.NoError(err)
	suite.Equal(2, stored.UpdateCount)
}

func (suite *EngineTestSuite) TestPreferences() {
	ctx := context.Background()
	preference, err := suite.engine.GetPreferences(ctx, "nobody")
	suite.NoError(err)
	suite.Equal("nobody", preference.UserId)
	suite.Equal(5.0, preference.SpicyTolerance)

	preference.Negative.BlockedRestaurants = []string{"r2"}
	preference.Follow("bob", 0.8)
	suite.NoError(suite.engine.PutPreferences(ctx, "nobody", preference))
	stored, err := suite.engine.GetPreferences(ctx, "nobody")
	suite.NoError(err)
	suite.True(stored.IsBlocked("r2"))
	suite.Equal([]string{"bob"}, stored.FollowedIds())

	mismatched := NewUserPreference("alice", suite.now)
	suite.True(errors.Is(suite.engine.PutPreferences(ctx, "bob", mismatched), errors.NotValid))
	suite.True(errors.Is(suite.engine.PutPreferences(ctx, "bob", nil), errors.NotValid))
	mismatched.UserId = ""
	suite.NoError(suite.engine.PutPreferences(ctx, "bob", mismatched))
	stored, err = suite.engine.GetPreferences(ctx, "bob")
	suite.NoError(err)
	suite.Equal("bob", stored.UserId)
}

func (suite *EngineTestSuite) TestDecay() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	changed, err := suite.engine.Decay(ctx, "alice", suite.now)
	suite.NoError(err)
	suite.False(changed)

	changed, err = suite.engine.Decay(ctx, "alice", suite.now.Add(30*24*time.Hour))
	suite.NoError(err)
	suite.True(changed)
	vector, err := suite.engine.GetTasteVector(ctx, "alice")
	suite.NoError(err)
	suite.InDelta(0.18394, vector.Flavor.Spicy.Confidence, 1e-5)
	suite.Equal(suite.now.Add(30*24*time.Hour), vector.DecayedAt)

	changed, err = suite.engine.Decay(ctx, "nobody", suite.now)
	suite.NoError(err)
	suite.False(changed)
}

func (suite *EngineTestSuite) TestRecommendObservesMetrics() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	response, err := suite.engine.Recommend(ctx, Request{UserId: "alice", Algorithm: "content"})
	suite.NoError(err)
	suite.NotEmpty(response.Recommendations)
	record, err := suite.engine.Store.GetPerformance(ctx, "content")
	suite.NoError(err)
	suite.True(record.Active)
	suite.Zero(record.Metrics.System.ErrorRate)

	_, err = suite.engine.Recommend(ctx, Request{UserId: "alice", N: 1000})
	suite.True(errors.Is(err, errors.NotValid))

	performances, err := suite.engine.Performances(ctx)
	suite.NoError(err)
	suite.Equal([]string{"content"}, lo.Map(performances, func(p *AlgorithmPerformance, _ int) string { return p.Algorithm }))
}

func (suite *EngineTestSuite) TestABTests() {
	ctx := context.Background()
	test, err := suite.engine.AddABTest(ctx, "hybrid", ABTest{
		Id:      "launch",
		Control: ABTestGroup{Algorithm: "content", Samples: 5000, Conversions: 500},
		Test:    ABTestGroup{Algorithm: "hybrid", Samples: 5000, Conversions: 600},
	})
	suite.NoError(err)
	suite.Equal(suite.now, test.StartedAt)
	_, err = suite.engine.AddABTest(ctx, "hybrid", ABTest{Id: "launch"})
	suite.True(errors.Is(err, errors.AlreadyExists))

	result, err := suite.engine.AnalyzeABTest(ctx, "hybrid", "launch")
	suite.NoError(err)
	suite.Equal(WinnerTest, result.Winner)
	record, err := suite.engine.Store.GetPerformance(ctx, "hybrid")
	suite.NoError(err)
	suite.Equal(WinnerTest, record.ABTests[0].Result.Winner)

	_, err = suite.engine.AnalyzeABTest(ctx, "hybrid", "unknown")
	suite.True(errors.Is(err, errors.NotFound))
	_, err = suite.engine.AnalyzeABTest(ctx, "unknown", "launch")
	suite.True(errors.Is(err, errors.NotFound))

	best, err := suite.engine.BestAlgorithm(ctx, SelectionContext{})
	suite.NoError(err)
	suite.Equal("hybrid", best)
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
