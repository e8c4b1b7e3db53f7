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
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/samber/lo"
)

const metricsAlpha = 0.1

// Outcome stages.
const (
	StageImpression = "impression"
	StageClick      = "click"
	StageConversion = "conversion"
)

// A/B test winners.
const (
	WinnerTest    = "test"
	WinnerControl = "control"
	WinnerNone    = "none"
)

const significanceLevel = 0.05

// Anomaly types and severities.
const (
	AnomalyLowCTR        = "low_ctr"
	AnomalyHighErrorRate = "high_error_rate"
	AnomalyHighLatency   = "high_latency"
	AnomalyLowCoverage   = "low_coverage"

	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type AccuracyMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	NDCG      float64 `json:"ndcg"`
	HitRate   float64 `json:"hitRate"`
}

type EngagementMetrics struct {
	CTR            float64 `json:"ctr"`
	ConversionRate float64 `json:"conversionRate"`
	SaveRate       float64 `json:"saveRate"`
}

type DiversityMetrics struct {
	Coverage           float64 `json:"coverage"`
	IntraListDiversity float64 `json:"intraListDiversity"`
	Novelty            float64 `json:"novelty"`
}

type BusinessMetrics struct {
	Reservations float64 `json:"reservations"`
	AverageSpend float64 `json:"averageSpend"`
}

type SystemMetrics struct {
	LatencyMs  float64 `json:"latencyMs"`
	ErrorRate  float64 `json:"errorRate"`
	Throughput float64 `json:"throughput"`
}

type PerformanceMetrics struct {
	Accuracy   AccuracyMetrics   `json:"accuracy"`
	Engagement EngagementMetrics `json:"engagement"`
	Diversity  DiversityMetrics  `json:"diversity"`
	Business   BusinessMetrics   `json:"business"`
	System     SystemMetrics     `json:"system"`
}

// MetricsBatch is a set of observations. Nil fields are not observed.
type MetricsBatch struct {
	Precision          *float64 `json:"precision,omitempty"`
	Recall             *float64 `json:"recall,omitempty"`
	NDCG               *float64 `json:"ndcg,omitempty"`
	HitRate            *float64 `json:"hitRate,omitempty"`
	CTR                *float64 `json:"ctr,omitempty"`
	ConversionRate     *float64 `json:"conversionRate,omitempty"`
	SaveRate           *float64 `json:"saveRate,omitempty"`
	Coverage           *float64 `json:"coverage,omitempty"`
	IntraListDiversity *float64 `json:"intraListDiversity,omitempty"`
	Novelty            *float64 `json:"novelty,omitempty"`
	Reservations       *float64 `json:"reservations,omitempty"`
	AverageSpend       *float64 `json:"averageSpend,omitempty"`
	LatencyMs          *float64 `json:"latencyMs,omitempty"`
	ErrorRate          *float64 `json:"errorRate,omitempty"`
	Throughput         *float64 `json:"throughput,omitempty"`
}

func (b MetricsBatch) Empty() bool {
	return b == MetricsBatch{}
}

type ABTestGroup struct {
	Algorithm   string  `json:"algorithm"`
	Samples     float64 `json:"samples"`
	Conversions float64 `json:"conversions"`
}

func (g ABTestGroup) Rate() float64 {
	if g.Samples <= 0 {
		return 0
	}
	return g.Conversions / g.Samples
}

type ABTestResult struct {
	ZScore      float64   `json:"zScore"`
	PValue      float64   `json:"pValue"`
	Lift        float64   `json:"lift"`
	Winner      string    `json:"winner"`
	Significant bool      `json:"significant"`
	AnalyzedAt  time.Time `json:"analyzedAt"`
}

type ABTest struct {
	Id        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Control   ABTestGroup   `json:"control"`
	Test      ABTestGroup   `json:"test"`
	StartedAt time.Time     `json:"startedAt"`
	Result    *ABTestResult `json:"result,omitempty"`
}

type SegmentPerformance struct {
	Satisfaction float64 `json:"satisfaction"`
	CTR          float64 `json:"ctr"`
	Users        int     `json:"users"`
}

type TimeBucket struct {
	Impressions int `json:"impressions"`
	Clicks      int `json:"clicks"`
	Conversions int `json:"conversions"`
}

type Anomaly struct {
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Threshold  float64   `json:"threshold"`
	DetectedAt time.Time `json:"detectedAt"`
	Resolved   bool      `json:"resolved"`
}

// AlgorithmPerformance tracks how well a scoring algorithm performs.
type AlgorithmPerformance struct {
	Algorithm   string                        `json:"algorithm"`
	Active      bool                          `json:"active"`
	Metrics     PerformanceMetrics            `json:"metrics"`
	ABTests     []ABTest                      `json:"abTests,omitempty"`
	Segments    map[string]SegmentPerformance `json:"segments"`
	TimeBuckets map[string]TimeBucket         `json:"timeBuckets"`
	Anomalies   []Anomaly                     `json:"anomalies,omitempty"`
	UpdatedAt   time.Time                     `json:"updatedAt"`
}

func NewAlgorithmPerformance(algorithm string, now time.Time) *AlgorithmPerformance {
	return &AlgorithmPerformance{
		Algorithm:   algorithm,
		Active:      true,
		Segments:    make(map[string]SegmentPerformance),
		TimeBuckets: make(map[string]TimeBucket),
		UpdatedAt:   now,
	}
}

func (p *AlgorithmPerformance) ensureMaps() {
	if p.Segments == nil {
		p.Segments = make(map[string]SegmentPerformance)
	}
	if p.TimeBuckets == nil {
		p.TimeBuckets = make(map[string]TimeBucket)
	}
}

// UpdateMetrics blends observed metrics into the record.
func (p *AlgorithmPerformance) UpdateMetrics(batch MetricsBatch, now time.Time) {
	blend := func(target *float64, sample *float64) {
		if sample != nil && !math.IsNaN(*sample) {
			*target = stats.EMA(*target, *sample, metricsAlpha)
		}
	}
	m := &p.Metrics
	blend(&m.Accuracy.Precision, batch.Precision)
	blend(&m.Accuracy.Recall, batch.Recall)
	blend(&m.Accuracy.NDCG, batch.NDCG)
	blend(&m.Accuracy.HitRate, batch.HitRate)
	blend(&m.Engagement.CTR, batch.CTR)
	blend(&m.Engagement.ConversionRate, batch.ConversionRate)
	blend(&m.Engagement.SaveRate, batch.SaveRate)
	blend(&m.Diversity.Coverage, batch.Coverage)
	blend(&m.Diversity.IntraListDiversity, batch.IntraListDiversity)
	blend(&m.Diversity.Novelty, batch.Novelty)
	blend(&m.Business.Reservations, batch.Reservations)
	blend(&m.Business.AverageSpend, batch.AverageSpend)
	blend(&m.System.LatencyMs, batch.LatencyMs)
	blend(&m.System.ErrorRate, batch.ErrorRate)
	blend(&m.System.Throughput, batch.Throughput)
	p.UpdatedAt = now
}

// CalculatePerformanceScore combines metrics into a score from 0 to 100.
func (p *AlgorithmPerformance) CalculatePerformanceScore() float64 {
	m := p.Metrics
	accuracy := 0.4*m.Accuracy.Precision + 0.3*m.Accuracy.Recall + 0.3*m.Accuracy.NDCG
	engagement := stats.Clamp(5*m.Engagement.CTR+3*m.Engagement.ConversionRate+2*m.Engagement.SaveRate, 0, 1)
	diversity := 0.4*m.Diversity.Coverage + 0.3*m.Diversity.IntraListDiversity + 0.3*m.Diversity.Novelty
	system := 0.5*(1-math.Min(1, m.System.LatencyMs/1000)) + 0.5*(1-math.Min(1, 10*m.System.ErrorRate))
	return stats.Clamp(100*(0.3*accuracy+0.4*engagement+0.2*diversity+0.1*system), 0, 100)
}

// AddABTest registers a test. Ids are unique within a record.
func (p *AlgorithmPerformance) AddABTest(test ABTest) error {
	if test.Id == "" {
		return errors.NotValidf("empty A/B test id")
	}
	if lo.ContainsBy(p.ABTests, func(t ABTest) bool { return t.Id == test.Id }) {
		return errors.AlreadyExistsf("A/B test %s", test.Id)
	}
	for _, group := range []ABTestGroup{test.Control, test.Test} {
		if group.Samples < 0 || group.Conversions < 0 || group.Conversions > group.Samples {
			return errors.NotValidf("A/B test group %v", group)
		}
	}
	p.ABTests = append(p.ABTests, test)
	return nil
}

// GetABTest returns a test by id.
func (p *AlgorithmPerformance) GetABTest(testId string) (*ABTest, error) {
	for i := range p.ABTests {
		if p.ABTests[i].Id == testId {
			return &p.ABTests[i], nil
		}
	}
	return nil, errors.NotFoundf("A/B test %s", testId)
}

// AnalyzeABTest runs a pooled two-proportion z-test on a test.
func (p *AlgorithmPerformance) AnalyzeABTest(testId string, now time.Time) (*ABTestResult, error) {
	test, err := p.GetABTest(testId)
	if err != nil {
		return nil, err
	}
	p1, p2 := test.Control.Rate(), test.Test.Rate()
	z, pValue := stats.TwoProportionZTest(test.Control.Conversions, test.Control.Samples, test.Test.Conversions, test.Test.Samples)
	result := &ABTestResult{
		ZScore:      z,
		PValue:      pValue,
		Winner:      WinnerNone,
		Significant: pValue < significanceLevel,
		AnalyzedAt:  now,
	}
	if p1 > 0 {
		result.Lift = (p2 - p1) / p1
	}
	if result.Significant {
		switch {
		case p2 > p1:
			result.Winner = WinnerTest
		case p1 > p2:
			result.Winner = WinnerControl
		}
	}
	test.Result = result
	return result, nil
}

// DetectAnomalies appends an anomaly for every unhealthy metric and returns
// the new ones. The log keeps the most recent maxAnomalies entries.
func (p *AlgorithmPerformance) DetectAnomalies(cfg config.PerformanceConfig, now time.Time) []Anomaly {
	m := p.Metrics
	var detected []Anomaly
	check := func(unhealthy bool, anomalyType, severity, metric string, value, threshold float64) {
		if unhealthy {
			detected = append(detected, Anomaly{
				Type:       anomalyType,
				Severity:   severity,
				Metric:     metric,
				Value:      value,
				Threshold:  threshold,
				DetectedAt: now,
			})
		}
	}
	check(m.Engagement.CTR < 0.01, AnomalyLowCTR, SeverityHigh, "ctr", m.Engagement.CTR, 0.01)
	check(m.System.ErrorRate > 0.05, AnomalyHighErrorRate, SeverityCritical, "error_rate", m.System.ErrorRate, 0.05)
	check(m.System.LatencyMs > 500, AnomalyHighLatency, SeverityMedium, "latency_ms", m.System.LatencyMs, 500)
	check(m.Diversity.Coverage < 0.1, AnomalyLowCoverage, SeverityLow, "coverage", m.Diversity.Coverage, 0.1)
	p.Anomalies = append(p.Anomalies, detected...)
	if overflow := len(p.Anomalies) - cfg.MaxAnomalies; cfg.MaxAnomalies > 0 && overflow > 0 {
		p.Anomalies = append([]Anomaly(nil), p.Anomalies[overflow:]...)
	}
	return detected
}

// ResolveAnomalies marks open anomalies of a type resolved.
func (p *AlgorithmPerformance) ResolveAnomalies(anomalyType string) int {
	count := 0
	for i := range p.Anomalies {
		if p.Anomalies[i].Type == anomalyType && !p.Anomalies[i].Resolved {
			p.Anomalies[i].Resolved = true
			count++
		}
	}
	return count
}

// UpdateSegment blends satisfaction and CTR observed in a segment.
func (p *AlgorithmPerformance) UpdateSegment(segment string, satisfaction, ctr float64) {
	p.ensureMaps()
	current, ok := p.Segments[segment]
	if !ok {
		current = SegmentPerformance{Satisfaction: satisfaction, CTR: ctr}
	} else {
		current.Satisfaction = stats.EMA(current.Satisfaction, satisfaction, metricsAlpha)
		current.CTR = stats.EMA(current.CTR, ctr, metricsAlpha)
	}
	current.Users++
	p.Segments[segment] = current
}

// RecordTimeBucket counts an outcome stage in an hour of day.
func (p *AlgorithmPerformance) RecordTimeBucket(hour int, stage string) error {
	if hour < 0 || hour > 23 {
		return errors.NotValidf("hour %d", hour)
	}
	p.ensureMaps()
	key := fmt.Sprintf("%02d", hour)
	bucket := p.TimeBuckets[key]
	switch stage {
	case StageImpression:
		bucket.Impressions++
	case StageClick:
		bucket.Clicks++
	case StageConversion:
		bucket.Conversions++
	default:
		return errors.NotValidf("stage %s", stage)
	}
	p.TimeBuckets[key] = bucket
	return nil
}

type SelectionContext struct {
	NeedDiversity bool
	NeedSpeed     bool
	Segment       string
}

// SelectBestAlgorithm returns the active algorithm with the best adjusted
// score, or an empty string without candidates.
func SelectBestAlgorithm(records []*AlgorithmPerformance, ctx SelectionContext) string {
	candidates := lo.Filter(records, func(p *AlgorithmPerformance, _ int) bool { return p != nil && p.Active })
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Algorithm < candidates[j].Algorithm })
	var (
		best      string
		bestScore = math.Inf(-1)
	)
	for _, p := range candidates {
		score := p.CalculatePerformanceScore()
		if ctx.NeedDiversity && p.Metrics.Diversity.IntraListDiversity > 0.7 {
			score *= 1.2
		}
		if ctx.NeedSpeed && p.Metrics.System.LatencyMs < 200 {
			score *= 1.1
		}
		if segment, ok := p.Segments[ctx.Segment]; ctx.Segment != "" && ok && segment.Satisfaction > 0.8 {
			score *= 1.15
		}
		if score > bestScore {
			best, bestScore = p.Algorithm, score
		}
	}
	return best
}

// OutcomeSummary is the outcome of a finished recommendation list.
type OutcomeSummary struct {
	Records []*RecommendationRecord
	// Cuisines maps restaurant to cuisine for intra-list diversity.
	Cuisines map[string]string
	// Activity maps restaurant to recent activity for novelty.
	Activity    map[string]int
	CatalogSize int
}

// AggregateOutcomes derives a metrics batch from records of one algorithm.
func AggregateOutcomes(summary OutcomeSummary) MetricsBatch {
	var batch MetricsBatch
	impressed := lo.Filter(summary.Records, func(r *RecommendationRecord, _ int) bool { return r.Outcome.Impressed })
	if len(impressed) == 0 {
		return batch
	}
	clicks := lo.CountBy(impressed, func(r *RecommendationRecord) bool { return r.Outcome.Clicked })
	conversions := lo.CountBy(impressed, func(r *RecommendationRecord) bool { return r.Outcome.Converted })
	reservations := lo.CountBy(impressed, func(r *RecommendationRecord) bool {
		return r.Outcome.Converted && r.Outcome.ConversionType == "reservation"
	})
	saves := lo.CountBy(impressed, func(r *RecommendationRecord) bool {
		return r.Outcome.Converted && r.Outcome.ConversionType == "save"
	})
	n := float64(len(impressed))
	ctr := float64(clicks) / n
	batch.CTR = &ctr
	batch.Precision = &ctr
	cvr := float64(conversions) / n
	batch.ConversionRate = &cvr
	saveRate := float64(saves) / n
	batch.SaveRate = &saveRate
	reservationCount := float64(reservations)
	batch.Reservations = &reservationCount

	batches := lo.GroupBy(impressed, func(r *RecommendationRecord) string { return r.BatchId })
	var hits, ndcgs, recalls, diversities []float64
	for _, records := range batches {
		clicked := lo.Filter(records, func(r *RecommendationRecord, _ int) bool { return r.Outcome.Clicked })
		hits = append(hits, lo.Ternary(len(clicked) > 0, 1.0, 0.0))
		// DCG over clicked ranks against the ideal ordering
		var dcg, idcg float64
		for _, r := range clicked {
			dcg += 1 / math.Log2(float64(r.Rank)+1)
		}
		for i := range clicked {
			idcg += 1 / math.Log2(float64(i)+2)
		}
		if idcg > 0 {
			ndcgs = append(ndcgs, dcg/idcg)
		} else {
			ndcgs = append(ndcgs, 0)
		}
		converted := lo.CountBy(records, func(r *RecommendationRecord) bool { return r.Outcome.Converted })
		if len(clicked) > 0 {
			recalls = append(recalls, float64(converted)/float64(len(clicked)))
		}
		diversities = append(diversities, intraListDiversity(records, summary.Cuisines))
	}
	hitRate, ndcg := stats.Mean(hits), stats.Mean(ndcgs)
	batch.HitRate, batch.NDCG = &hitRate, &ndcg
	if len(recalls) > 0 {
		recall := stats.Mean(recalls)
		batch.Recall = &recall
	}
	ild := stats.Mean(diversities)
	batch.IntraListDiversity = &ild

	targets := lo.Uniq(lo.Map(summary.Records, func(r *RecommendationRecord, _ int) string { return r.TargetId }))
	if summary.CatalogSize > 0 {
		coverage := math.Min(1, float64(len(targets))/float64(summary.CatalogSize))
		batch.Coverage = &coverage
	}
	if maxActivity := lo.Max(lo.Values(summary.Activity)); maxActivity > 0 {
		novelty := 1 - stats.Mean(lo.Map(targets, func(id string, _ int) float64 {
			return float64(summary.Activity[id]) / float64(maxActivity)
		}))
		batch.Novelty = &novelty
	}
	return batch
}

// intraListDiversity is the share of record pairs with different cuisines.
func intraListDiversity(records []*RecommendationRecord, cuisines map[string]string) float64 {
	var pairs, different int
	for i := range records {
		for j := i + 1; j < len(records); j++ {
			pairs++
			if cuisines[records[i].TargetId] != cuisines[records[j].TargetId] {
				different++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(different) / float64(pairs)
}
