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
	"math"
	"testing"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/config"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestUpdateMetrics(t *testing.T) {
	p := NewAlgorithmPerformance("hybrid", testTime)
	assert.True(t, p.Active)
	assert.True(t, MetricsBatch{}.Empty())

	p.UpdateMetrics(MetricsBatch{CTR: lo.ToPtr(0.1), LatencyMs: lo.ToPtr(math.NaN())}, testTime)
	assert.InDelta(t, 0.01, p.Metrics.Engagement.CTR, 1e-9)
	assert.Zero(t, p.Metrics.System.LatencyMs)
	p.UpdateMetrics(MetricsBatch{CTR: lo.ToPtr(0.1)}, testTime)
	assert.InDelta(t, 0.019, p.Metrics.Engagement.CTR, 1e-9)
	assert.Zero(t, p.Metrics.Accuracy.Precision)
}

func TestPerformanceScore(t *testing.T) {
	p := NewAlgorithmPerformance("hybrid", testTime)
	// an idle algorithm only scores on system health
	assert.InDelta(t, 10, p.CalculatePerformanceScore(), 1e-9)
	p.Metrics.Engagement.CTR = 1
	p.Metrics.System.ErrorRate = 1
	p.Metrics.System.LatencyMs = 5000
	assert.InDelta(t, 40, p.CalculatePerformanceScore(), 1e-9)
}

func TestABTest(t *testing.T) {
	p := NewAlgorithmPerformance("hybrid", testTime)
	assert.True(t, errors.Is(p.AddABTest(ABTest{}), errors.NotValid))
	assert.True(t, errors.Is(p.AddABTest(ABTest{Id: "bad", Control: ABTestGroup{Samples: 10, Conversions: 11}}), errors.NotValid))
	assert.NoError(t, p.AddABTest(ABTest{
		Id:      "small",
		Control: ABTestGroup{Algorithm: "content", Samples: 1000, Conversions: 100},
		Test:    ABTestGroup{Algorithm: "hybrid", Samples: 1000, Conversions: 120},
	}))
	assert.NoError(t, p.AddABTest(ABTest{
		Id:      "large",
		Control: ABTestGroup{Algorithm: "content", Samples: 5000, Conversions: 500},
		Test:    ABTestGroup{Algorithm: "hybrid", Samples: 5000, Conversions: 600},
	}))
	assert.True(t, errors.Is(p.AddABTest(ABTest{Id: "small"}), errors.AlreadyExists))

	result, err := p.AnalyzeABTest("small", testTime)
	assert.NoError(t, err)
	assert.False(t, result.Significant)
	assert.Equal(t, WinnerNone, result.Winner)
	assert.InDelta(t, 0.2, result.Lift, 1e-9)
	assert.InDelta(t, 1.43, result.ZScore, 0.01)

	result, err = p.AnalyzeABTest("large", testTime)
	assert.NoError(t, err)
	assert.True(t, result.Significant)
	assert.Equal(t, WinnerTest, result.Winner)
	assert.Less(t, result.PValue, 0.01)

	test, err := p.GetABTest("large")
	assert.NoError(t, err)
	assert.Equal(t, result, test.Result)

	// control wins when the test group converts less
	assert.NoError(t, p.AddABTest(ABTest{
		Id:      "worse",
		Control: ABTestGroup{Samples: 5000, Conversions: 600},
		Test:    ABTestGroup{Samples: 5000, Conversions: 500},
	}))
	result, err = p.AnalyzeABTest("worse", testTime)
	assert.NoError(t, err)
	assert.Equal(t, WinnerControl, result.Winner)

	_, err = p.GetABTest("unknown")
	assert.True(t, errors.Is(err, errors.NotFound))
	_, err = p.AnalyzeABTest("unknown", testTime)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func healthyPerformance() *AlgorithmPerformance {
	p := NewAlgorithmPerformance("hybrid", testTime)
	p.Metrics.Engagement.CTR = 0.05
	p.Metrics.System.ErrorRate = 0.01
	p.Metrics.System.LatencyMs = 120
	p.Metrics.Diversity.Coverage = 0.4
	return p
}

func TestDetectAnomalies(t *testing.T) {
	cfg := config.PerformanceConfig{MaxAnomalies: 3}
	p := healthyPerformance()
	assert.Empty(t, p.DetectAnomalies(cfg, testTime))
	assert.Empty(t, p.Anomalies)

	p.Metrics.Engagement.CTR = 0.005
	detected := p.DetectAnomalies(cfg, testTime)
	assert.Len(t, detected, 1)
	assert.Equal(t, AnomalyLowCTR, detected[0].Type)
	assert.Equal(t, SeverityHigh, detected[0].Severity)
	assert.Equal(t, 0.005, detected[0].Value)

	p.Metrics.System.ErrorRate = 0.2
	p.Metrics.System.LatencyMs = 900
	p.Metrics.Diversity.Coverage = 0.01
	detected = p.DetectAnomalies(cfg, testTime)
	assert.ElementsMatch(t, []string{AnomalyLowCTR, AnomalyHighErrorRate, AnomalyHighLatency, AnomalyLowCoverage},
		lo.Map(detected, func(a Anomaly, _ int) string { return a.Type }))
	// the log keeps the latest entries
	assert.Len(t, p.Anomalies, 3)
	assert.Equal(t, AnomalyLowCoverage, p.Anomalies[2].Type)

	assert.Equal(t, 1, p.ResolveAnomalies(AnomalyLowCoverage))
	assert.Equal(t, 0, p.ResolveAnomalies(AnomalyLowCoverage))
	assert.True(t, p.Anomalies[2].Resolved)
}

func TestSegmentsAndTimeBuckets(t *testing.T) {
	p := NewAlgorithmPerformance("hybrid", testTime)
	p.UpdateSegment("new_users", 0.6, 0.1)
	p.UpdateSegment("new_users", 1.6, 0.2)
	assert.InDelta(t, 0.7, p.Segments["new_users"].Satisfaction, 1e-9)
	assert.InDelta(t, 0.11, p.Segments["new_users"].CTR, 1e-9)
	assert.Equal(t, 2, p.Segments["new_users"].Users)

	assert.NoError(t, p.RecordTimeBucket(7, StageImpression))
	assert.NoError(t, p.RecordTimeBucket(7, StageClick))
	assert.NoError(t, p.RecordTimeBucket(23, StageConversion))
	assert.Equal(t, TimeBucket{Impressions: 1, Clicks: 1}, p.TimeBuckets["07"])
	assert.Equal(t, TimeBucket{Conversions: 1}, p.TimeBuckets["23"])
	assert.True(t, errors.Is(p.RecordTimeBucket(24, StageClick), errors.NotValid))
	assert.True(t, errors.Is(p.RecordTimeBucket(-1, StageClick), errors.NotValid))
	assert.True(t, errors.Is(p.RecordTimeBucket(3, "dwell"), errors.NotValid))
}

func TestSelectBestAlgorithm(t *testing.T) {
	assert.Equal(t, "", SelectBestAlgorithm(nil, SelectionContext{}))

	alpha := NewAlgorithmPerformance("alpha", testTime)
	alpha.Metrics.Engagement.CTR = 0.1
	beta := NewAlgorithmPerformance("beta", testTime)
	beta.Metrics.Engagement.CTR = 0.06
	beta.Metrics.Diversity.IntraListDiversity = 0.8
	records := []*AlgorithmPerformance{beta, alpha}
	assert.Equal(t, "alpha", SelectBestAlgorithm(records, SelectionContext{}))
	assert.Equal(t, "beta", SelectBestAlgorithm(records, SelectionContext{NeedDiversity: true}))

	// inactive algorithms are never selected
	alpha.Active = false
	assert.Equal(t, "beta", SelectBestAlgorithm(records, SelectionContext{}))
	beta.Active = false
	assert.Equal(t, "", SelectBestAlgorithm(records, SelectionContext{}))

	// ties go to the lexically first name
	gamma := NewAlgorithmPerformance("gamma", testTime)
	delta := NewAlgorithmPerformance("delta", testTime)
	assert.Equal(t, "delta", SelectBestAlgorithm([]*AlgorithmPerformance{gamma, delta}, SelectionContext{}))

	// satisfied segments get a boost
	gamma.UpdateSegment("family", 0.9, 0.1)
	assert.Equal(t, "gamma", SelectBestAlgorithm([]*AlgorithmPerformance{gamma, delta}, SelectionContext{Segment: "family"}))
}

func TestAggregateOutcomes(t *testing.T) {
	assert.True(t, AggregateOutcomes(OutcomeSummary{}).Empty())

	records := []*RecommendationRecord{
		{BatchId: "b1", TargetId: "r1", Rank: 1, Outcome: Outcome{Impressed: true}},
		{BatchId: "b1", TargetId: "r2", Rank: 2, Outcome: Outcome{Impressed: true, Clicked: true}},
		{BatchId: "b1", TargetId: "r3", Rank: 3, Outcome: Outcome{Impressed: true, Clicked: true, Converted: true, ConversionType: "reservation"}},
		{BatchId: "b2", TargetId: "r4", Rank: 1, Outcome: Outcome{Impressed: true}},
		{BatchId: "b2", TargetId: "r5", Rank: 2},
	}
	batch := AggregateOutcomes(OutcomeSummary{
		Records:     records,
		Cuisines:    map[string]string{"r1": "korean", "r2": "korean", "r3": "japanese", "r4": "korean"},
		Activity:    map[string]int{"r1": 10},
		CatalogSize: 10,
	})
	assert.InDelta(t, 0.5, *batch.CTR, 1e-9)
	assert.InDelta(t, 0.5, *batch.Precision, 1e-9)
	assert.InDelta(t, 0.25, *batch.ConversionRate, 1e-9)
	assert.InDelta(t, 0, *batch.SaveRate, 1e-9)
	assert.InDelta(t, 1, *batch.Reservations, 1e-9)
	assert.InDelta(t, 0.5, *batch.HitRate, 1e-9)
	ndcg := (1/math.Log2(3) + 1/math.Log2(4)) / (1 + 1/math.Log2(3)) / 2
	assert.InDelta(t, ndcg, *batch.NDCG, 1e-9)
	assert.InDelta(t, 0.5, *batch.Recall, 1e-9)
	assert.InDelta(t, 1.0/3, *batch.IntraListDiversity, 1e-9)
	assert.InDelta(t, 0.5, *batch.Coverage, 1e-9)
	assert.InDelta(t, 0.8, *batch.Novelty, 1e-9)
	assert.Nil(t, batch.LatencyMs)
}
