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
)

func (suite *EngineTestSuite) TestStoreRecommendations() {
	ctx := context.Background()
	first := suite.generate("ghost")
	suite.now = suite.now.Add(time.Hour)
	second := suite.generate("ghost")

	// newest batch first, by rank within a batch
	active, err := suite.engine.Store.ActiveRecommendations(ctx, "ghost", suite.now)
	suite.NoError(err)
	suite.Len(active, 6)
	suite.Equal(second[0].Id, active[0].Id)
	suite.Equal(second[2].Id, active[2].Id)
	suite.Equal(first[0].Id, active[3].Id)

	expire := suite.config.Recommend.Expire
	active, err = suite.engine.Store.ActiveRecommendations(ctx, "ghost", testTime.Add(expire))
	suite.NoError(err)
	suite.Len(active, 3)
	suite.Equal(second[0].BatchId, active[0].BatchId)

	expired, err := suite.engine.Store.ExpiredRecommendations(ctx, "ghost", testTime, testTime.Add(expire))
	suite.NoError(err)
	suite.Len(expired, 3)
	suite.Equal(first[0].BatchId, expired[0].BatchId)
	expired, err = suite.engine.Store.ExpiredRecommendations(ctx, "ghost", testTime.Add(expire), testTime.Add(2*expire))
	suite.NoError(err)
	suite.Len(expired, 3)
	suite.Equal(second[0].BatchId, expired[0].BatchId)

	pruned, err := suite.engine.Store.PruneRecommendations(ctx, "ghost", testTime.Add(expire))
	suite.NoError(err)
	suite.Equal(3, pruned)
	_, err = suite.engine.Store.GetRecommendation(ctx, first[0].Id)
	suite.True(errors.Is(err, errors.NotFound))
	pruned, err = suite.engine.Store.PruneRecommendations(ctx, "ghost", testTime.Add(expire))
	suite.NoError(err)
	suite.Zero(pruned)
	active, err = suite.engine.Store.ActiveRecommendations(ctx, "ghost", suite.now)
	suite.NoError(err)
	suite.Len(active, 3)
}

func (suite *EngineTestSuite) TestStorePerformances() {
	ctx := context.Background()
	content := NewAlgorithmPerformance("content", suite.now)
	suite.NoError(suite.engine.Store.PutPerformance(ctx, content))
	hybrid := NewAlgorithmPerformance("hybrid", suite.now)
	suite.NoError(suite.engine.Store.PutPerformance(ctx, hybrid))
	active, err := suite.engine.Store.ActivePerformances(ctx)
	suite.NoError(err)
	suite.Len(active, 2)

	content.Active = false
	suite.NoError(suite.engine.Store.PutPerformance(ctx, content))
	active, err = suite.engine.Store.ActivePerformances(ctx)
	suite.NoError(err)
	suite.Len(active, 1)
	suite.Equal("hybrid", active[0].Algorithm)
	records, err := suite.engine.Store.Performances(ctx, []string{"content", "missing"})
	suite.NoError(err)
	suite.Len(records, 1)
	suite.False(records[0].Active)
	suite.NotNil(records[0].TimeBuckets)
}
