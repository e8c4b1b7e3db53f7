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

func (suite *EngineTestSuite) generate(userId string) []*RecommendationRecord {
	response, err := suite.engine.Recommend(context.Background(), Request{UserId: userId})
	suite.NoError(err)
	suite.Len(response.Recommendations, 3)
	return response.Recommendations
}

func (suite *EngineTestSuite) TestRecordImpression() {
	ctx := context.Background()
	records := suite.generate("ghost")
	id := records[0].Id

	record, changed, err := suite.engine.Outcomes.RecordImpression(ctx, id, 0)
	suite.NoError(err)
	suite.True(changed)
	suite.True(record.Outcome.Impressed)
	suite.Equal(suite.now, *record.Outcome.ImpressedAt)

	// impressions are recorded once
	impressedAt := suite.now
	suite.now = suite.now.Add(time.Minute)
	record, changed, err = suite.engine.Outcomes.RecordImpression(ctx, id, 4)
	suite.NoError(err)
	suite.False(changed)
	suite.Equal(impressedAt, *record.Outcome.ImpressedAt)
	suite.Equal(0, record.Outcome.ImpressionPosition)

	performance, err := suite.engine.Store.GetPerformance(ctx, AlgorithmPopular)
	suite.NoError(err)
	suite.Equal(TimeBucket{Impressions: 1}, performance.TimeBuckets["12"])

	_, _, err = suite.engine.Outcomes.RecordImpression(ctx, id, -1)
	suite.True(errors.Is(err, errors.NotValid))
	_, _, err = suite.engine.Outcomes.RecordImpression(ctx, "unknown", 0)
	suite.True(errors.Is(err, errors.NotFound))
	_, _, err = suite.engine.Outcomes.RecordImpression(ctx, "", 0)
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *EngineTestSuite) TestRecordConversion() {
	ctx := context.Background()
	records := suite.generate("ghost")

	// a conversion implies an impression and a click at the rank
	record, changed, err := suite.engine.Outcomes.RecordConversion(ctx, records[1].Id, "reservation")
	suite.NoError(err)
	suite.True(changed)
	suite.True(record.Outcome.Impressed)
	suite.True(record.Outcome.Clicked)
	suite.True(record.Outcome.Converted)
	suite.Equal("reservation", record.Outcome.ConversionType)
	suite.Equal(2, record.Outcome.ClickPosition)
	suite.Equal(2, record.Outcome.ImpressionPosition)

	_, changed, err = suite.engine.Outcomes.RecordConversion(ctx, records[1].Id, "save")
	suite.NoError(err)
	suite.False(changed)
	_, changed, err = suite.engine.Outcomes.RecordClick(ctx, records[1].Id, 5)
	suite.NoError(err)
	suite.False(changed)

	// a click on an impressed record only adds the click
	_, _, err = suite.engine.Outcomes.RecordImpression(ctx, records[0].Id, 0)
	suite.NoError(err)
	suite.now = suite.now.Add(time.Hour)
	record, changed, err = suite.engine.Outcomes.RecordClick(ctx, records[0].Id, 1)
	suite.NoError(err)
	suite.True(changed)
	suite.Equal(0, record.Outcome.ImpressionPosition)
	suite.Equal(1, record.Outcome.ClickPosition)
	suite.Equal(testTime, *record.Outcome.ImpressedAt)
	suite.Equal(testTime.Add(time.Hour), *record.Outcome.ClickedAt)

	performance, err := suite.engine.Store.GetPerformance(ctx, AlgorithmPopular)
	suite.NoError(err)
	suite.Equal(TimeBucket{Impressions: 2, Clicks: 1, Conversions: 1}, performance.TimeBuckets["12"])
	suite.Equal(TimeBucket{Clicks: 1}, performance.TimeBuckets["13"])

	_, _, err = suite.engine.Outcomes.RecordConversion(ctx, records[2].Id, "")
	suite.True(errors.Is(err, errors.NotValid))
	_, _, err = suite.engine.Outcomes.RecordClick(ctx, records[2].Id, -3)
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *EngineTestSuite) TestRecordOutcomeFeedback() {
	ctx := context.Background()
	records := suite.generate("ghost")
	record, err := suite.engine.Outcomes.RecordOutcomeFeedback(ctx, records[0].Id, 2, "too salty")
	suite.NoError(err)
	suite.Equal(&OutcomeFeedback{Rating: 2, Comment: "too salty", At: suite.now}, record.Outcome.Feedback)
	record, err = suite.engine.Outcomes.RecordOutcomeFeedback(ctx, records[0].Id, 5, "")
	suite.NoError(err)
	suite.Equal(5.0, record.Outcome.Feedback.Rating)
	stored, err := suite.engine.Store.GetRecommendation(ctx, records[0].Id)
	suite.NoError(err)
	suite.Equal(5.0, stored.Outcome.Feedback.Rating)
	// feedback is not an impression
	suite.False(stored.Outcome.Impressed)

	_, err = suite.engine.Outcomes.RecordOutcomeFeedback(ctx, records[0].Id, 0, "")
	suite.True(errors.Is(err, errors.NotValid))
	_, err = suite.engine.Outcomes.RecordOutcomeFeedback(ctx, "unknown", 3, "")
	suite.True(errors.Is(err, errors.NotFound))
}
