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
	"math/rand"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
)

func (suite *EngineTestSuite) insertRatings(userId string, ratings map[string]float64) {
	reviews := make([]data.Review, 0, len(ratings))
	for restaurantId, rating := range ratings {
		reviews = append(reviews, data.Review{
			ReviewId:     userId + "/" + restaurantId,
			UserId:       userId,
			RestaurantId: restaurantId,
			Rating:       rating,
			Timestamp:    suite.now.Add(-time.Hour),
		})
	}
	suite.NoError(suite.dataStore.BatchInsertReviews(context.Background(), reviews))
}

func (suite *EngineTestSuite) TestSimilaritySymmetric() {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	suite.NoError(suite.dataStore.BatchInsertUsers(ctx, []data.User{
		{UserId: "alice", Age: 25, City: "seoul", District: "gangnam", Following: []string{"carol", "bob"}},
		{UserId: "bob", Age: 35, City: "seoul", District: "mapo", Followers: []string{"carol", "dave"}},
	}))
	for _, userId := range []string{"alice", "bob"} {
		v := randomTasteVector(rng, userId, suite.config.Taste)
		suite.NoError(suite.engine.Store.PutTasteVector(ctx, v))
	}
	suite.insertRatings("alice", map[string]float64{"r1": 5, "r2": 3, "r3": 1})
	suite.insertRatings("bob", map[string]float64{"r1": 4, "r2": 3, "r3": 2})
	suite.NoError(suite.dataStore.BatchInsertInteractions(ctx, []data.Interaction{
		{UserId: "alice", RestaurantId: "r1", Type: "click", InterestScore: 0.8, Timestamp: suite.now.Add(-time.Hour)},
		{UserId: "alice", RestaurantId: "r2", Type: "click", InterestScore: 0.6, Timestamp: suite.now.Add(-time.Hour)},
		{UserId: "bob", RestaurantId: "r1", Type: "click", InterestScore: 0.7, Timestamp: suite.now.Add(-time.Hour)},
		{UserId: "bob", RestaurantId: "r2", Type: "save", InterestScore: 1, Timestamp: suite.now.Add(-time.Hour)},
	}))

	profileA, err := suite.engine.Similarity.loadProfile(ctx, "alice", suite.now)
	suite.NoError(err)
	profileB, err := suite.engine.Similarity.loadProfile(ctx, "bob", suite.now)
	suite.NoError(err)
	ab := suite.engine.Similarity.compare(profileA, profileB, suite.now)
	ba := suite.engine.Similarity.compare(profileB, profileA, suite.now)
	suite.InDelta(ab.Overall, ba.Overall, 1e-12)
	suite.InDelta(ab.Confidence, ba.Confidence, 1e-12)
	suite.GreaterOrEqual(ab.Overall, 0.0)
	suite.LessOrEqual(ab.Overall, 1.0)

	entry, err := suite.engine.Similarity.Calculate(ctx, "bob", "alice", suite.now)
	suite.NoError(err)
	suite.Equal("alice", entry.UserA)
	suite.Equal("bob", entry.UserB)
	c := entry.Components
	suite.True(c.Taste.Available)
	suite.NotNil(entry.Match)
	// rating
	suite.Equal(3, c.Rating.CommonItems)
	suite.True(c.Rating.Available)
	suite.InDelta(1, c.Rating.Coefficient, 1e-9)
	// behavioral
	suite.Equal([]string{"click"}, c.Behavioral.SharedBehaviors)
	suite.InDelta(0.75, c.Behavioral.PerBehavior["click"], 1e-9)
	// social: alice follows bob so bob counts among alice's connections
	suite.Equal(1, c.Social.CommonConnections)
	suite.Equal(3, c.Social.TotalConnections)
	suite.InDelta(1.0/3, c.Social.Score, 1e-9)
	// demographic: ten years apart in the same city
	suite.InDelta(0.5, *c.Demographic.Age, 1e-9)
	suite.InDelta(0.5, *c.Demographic.Location, 1e-9)
	suite.InDelta(0.5, c.Demographic.Score, 1e-9)
	// every component is available with three of ten common items
	suite.InDelta(0.65, entry.Confidence, 1e-9)
	suite.Equal(suite.now.Add(suite.config.Similarity.TTL), entry.Cache.ExpiresAt)
	suite.True(entry.Cache.Valid)
}

func (suite *EngineTestSuite) TestSimilarityFewCommonItems() {
	ctx := context.Background()
	suite.insertRatings("alice", map[string]float64{"r1": 5, "r2": 1})
	suite.insertRatings("bob", map[string]float64{"r1": 5, "r2": 1})
	entry, err := suite.engine.Similarity.Calculate(ctx, "alice", "bob", suite.now)
	suite.NoError(err)
	suite.Equal(2, entry.Components.Rating.CommonItems)
	suite.False(entry.Components.Rating.Available)
	suite.Zero(entry.Components.Rating.Score)
	// only demographics are known
	suite.False(entry.Components.Taste.Available)
	suite.Nil(entry.Match)
	suite.InDelta(0.5, entry.Overall, 1e-9)

	_, err = suite.engine.Similarity.Calculate(ctx, "alice", "alice", suite.now)
	suite.True(errors.Is(err, errors.NotValid))
	_, err = suite.engine.Similarity.Calculate(ctx, "alice", "ghost", suite.now)
	suite.True(errors.Is(err, errors.NotFound))
}

func (suite *EngineTestSuite) TestSimilarityCache() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", nil)
	entry, stale, err := suite.engine.Similarity.Get(ctx, "bob", "alice", suite.now)
	suite.NoError(err)
	suite.False(stale)
	suite.Equal(suite.now, entry.Cache.ComputedAt)

	// fresh entries are served from the cache
	later := suite.now.Add(time.Hour)
	entry, _, err = suite.engine.Similarity.Get(ctx, "alice", "bob", later)
	suite.NoError(err)
	suite.Equal(suite.now, entry.Cache.ComputedAt)

	// expired entries are recomputed
	expired := suite.now.Add(suite.config.Similarity.TTL)
	entry, stale, err = suite.engine.Similarity.Get(ctx, "alice", "bob", expired)
	suite.NoError(err)
	suite.False(stale)
	suite.Equal(expired, entry.Cache.ComputedAt)

	// a stale entry is served when recomputation fails
	ghost := &UserSimilarity{UserA: "ghost_b", UserB: "ghost_a", Overall: 0.7,
		Cache: CacheInfo{ComputedAt: suite.now, ExpiresAt: suite.now, Valid: true}}
	suite.NoError(suite.engine.Store.PutSimilarity(ctx, ghost))
	entry, stale, err = suite.engine.Similarity.Get(ctx, "ghost_a", "ghost_b", suite.now)
	suite.NoError(err)
	suite.True(stale)
	suite.Equal(0.7, entry.Overall)
	suite.Equal("ghost_a", entry.UserA)

	_, _, err = suite.engine.Similarity.Get(ctx, "ghost_a", "ghost_c", suite.now)
	suite.True(errors.Is(err, errors.NotFound))
}

func (suite *EngineTestSuite) TestRefreshAndTopSimilar() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", func(v *TasteVector) { v.Flavor.Spicy.Value = 10 })
	suite.putTasteVector("carol", func(v *TasteVector) {
		for _, category := range v.categories() {
			for _, ref := range category.dimensions {
				ref.dim.Value = 0
			}
		}
	})
	count, err := suite.engine.Similarity.Refresh(ctx, "alice", []string{"carol", "bob", "bob", "ghost", "alice"}, suite.now)
	suite.NoError(err)
	suite.Equal(2, count)

	neighbors, err := suite.engine.Similarity.TopSimilar(ctx, "alice", 10, suite.now)
	suite.NoError(err)
	suite.Equal([]string{"bob", "carol"}, lo.Map(neighbors, func(n Neighbor, _ int) string { return n.UserId }))
	suite.Greater(neighbors[0].Similarity, neighbors[1].Similarity)
	neighbors, err = suite.engine.Similarity.TopSimilar(ctx, "carol", 10, suite.now)
	suite.NoError(err)
	suite.Len(neighbors, 1)
	neighbors, err = suite.engine.Similarity.TopSimilar(ctx, "alice", 0, suite.now)
	suite.NoError(err)
	suite.Empty(neighbors)

	// invalid entries are skipped
	suite.NoError(suite.engine.Similarity.Invalidate(ctx, "bob"))
	neighbors, err = suite.engine.Similarity.TopSimilar(ctx, "alice", 10, suite.now)
	suite.NoError(err)
	suite.Equal([]string{"carol"}, lo.Map(neighbors, func(n Neighbor, _ int) string { return n.UserId }))

	// the neighbor index is trimmed
	suite.config.Similarity.MaxNeighbors = 1
	_, err = suite.engine.Similarity.Refresh(ctx, "alice", []string{"bob", "carol"}, suite.now)
	suite.NoError(err)
	scores, err := suite.engine.Store.Neighbors(ctx, "alice", 0, -1)
	suite.NoError(err)
	suite.Len(scores, 1)
	suite.Equal("bob", scores[0].Id)
}

func (suite *EngineTestSuite) TestInvalidateTrimmedPairs() {
	ctx := context.Background()
	suite.config.Similarity.MaxNeighbors = 1
	suite.newEngine()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", func(v *TasteVector) { v.Flavor.Spicy.Value = 10 })
	suite.putTasteVector("carol", func(v *TasteVector) { v.Flavor.Sweet.Value = 0 })
	_, err := suite.engine.Similarity.Refresh(ctx, "alice", []string{"bob", "carol"}, suite.now)
	suite.NoError(err)
	scores, err := suite.engine.Store.Neighbors(ctx, "alice", 0, -1)
	suite.NoError(err)
	suite.Len(scores, 1)
	pairs, err := suite.engine.Store.Pairs(ctx, "alice")
	suite.NoError(err)
	suite.Equal([]string{"bob", "carol"}, pairs)

	suite.NoError(suite.engine.Feedback(ctx, FeedbackRequest{UserId: "alice", RestaurantId: "r1", Action: ActionLike}))
	for _, other := range []string{"bob", "carol"} {
		entry, err := suite.engine.Store.GetSimilarity(ctx, "alice", other)
		suite.NoError(err)
		suite.False(entry.Cache.Valid, other)
	}
	// invalidation does not restore trimmed neighbors
	scores, err = suite.engine.Store.Neighbors(ctx, "alice", 0, -1)
	suite.NoError(err)
	suite.Len(scores, 1)
}

func (suite *EngineTestSuite) TestRecordExchange() {
	ctx := context.Background()
	suite.putTasteVector("alice", nil)
	suite.putTasteVector("bob", nil)
	entry, err := suite.engine.Similarity.RecordExchange(ctx, "bob", "alice", true, suite.now)
	suite.NoError(err)
	suite.Equal(ExchangeStats{Sent: 1, Accepted: 1, AcceptanceRate: 1}, entry.Match.Exchange.BToA)
	entry, err = suite.engine.Similarity.RecordExchange(ctx, "bob", "alice", false, suite.now)
	suite.NoError(err)
	suite.Equal(ExchangeStats{Sent: 2, Accepted: 1, AcceptanceRate: 0.5}, entry.Match.Exchange.BToA)
	entry, err = suite.engine.Similarity.RecordExchange(ctx, "alice", "bob", false, suite.now)
	suite.NoError(err)
	suite.Equal(ExchangeStats{Sent: 1}, entry.Match.Exchange.AToB)

	// recomputation keeps exchange statistics
	entry, _, err = suite.engine.Similarity.Get(ctx, "alice", "bob", suite.now.Add(suite.config.Similarity.TTL))
	suite.NoError(err)
	suite.Equal(2, entry.Match.Exchange.BToA.Sent)
	suite.Equal(1, entry.Match.Exchange.AToB.Sent)

	_, err = suite.engine.Similarity.RecordExchange(ctx, "alice", "alice", true, suite.now)
	suite.True(errors.Is(err, errors.NotValid))
}
