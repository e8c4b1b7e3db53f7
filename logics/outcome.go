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
	"math"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/common/parallel"
	"github.com/matjip-io/matjip/config"
	"go.uber.org/zap"
)

// OutcomeTracker records what happened to recommendations. Stages are
// first-write-wins and never regress: a click implies an impression and a
// conversion implies both.
type OutcomeTracker struct {
	config *config.Config
	store  *Store
	locks  *parallel.KeyedMutex
	clock  func() time.Time
}

func NewOutcomeTracker(cfg *config.Config, store *Store, locks *parallel.KeyedMutex) *OutcomeTracker {
	if locks == nil {
		locks = parallel.NewKeyedMutex()
	}
	return &OutcomeTracker{config: cfg, store: store, locks: locks, clock: time.Now}
}

func (t *OutcomeTracker) update(ctx context.Context, id string, mutate func(record *RecommendationRecord, now time.Time) []string) (*RecommendationRecord, bool, error) {
	if id == "" {
		return nil, false, errors.NotValidf("empty recommendation id")
	}
	unlock := t.locks.Lock(cacheRecordKey(id))
	record, err := t.store.GetRecommendation(ctx, id)
	if err != nil {
		unlock()
		return nil, false, err
	}
	now := t.clock()
	stages := mutate(record, now)
	if len(stages) == 0 {
		unlock()
		return record, false, nil
	}
	err = t.store.PutRecommendation(ctx, record)
	unlock()
	if err != nil {
		return nil, false, err
	}
	t.bumpTimeBuckets(ctx, record.Algorithm, now, stages)
	return record, true, nil
}

func cacheRecordKey(id string) string {
	return "recommendation/" + id
}

func performanceKey(algorithm string) string {
	return "algorithm/" + algorithm
}

func markImpression(record *RecommendationRecord, position int, now time.Time) []string {
	if record.Outcome.Impressed {
		return nil
	}
	record.Outcome.Impressed = true
	record.Outcome.ImpressedAt = &now
	record.Outcome.ImpressionPosition = position
	return []string{StageImpression}
}

func markClick(record *RecommendationRecord, position int, now time.Time) []string {
	if record.Outcome.Clicked {
		return nil
	}
	stages := markImpression(record, position, now)
	record.Outcome.Clicked = true
	record.Outcome.ClickedAt = &now
	record.Outcome.ClickPosition = position
	return append(stages, StageClick)
}

func markConversion(record *RecommendationRecord, conversionType string, now time.Time) []string {
	if record.Outcome.Converted {
		return nil
	}
	stages := markClick(record, record.Rank, now)
	record.Outcome.Converted = true
	record.Outcome.ConvertedAt = &now
	record.Outcome.ConversionType = conversionType
	return append(stages, StageConversion)
}

// RecordImpression marks a recommendation shown at a position.
func (t *OutcomeTracker) RecordImpression(ctx context.Context, id string, position int) (*RecommendationRecord, bool, error) {
	if position < 0 {
		return nil, false, errors.NotValidf("position %d", position)
	}
	return t.update(ctx, id, func(record *RecommendationRecord, now time.Time) []string {
		return markImpression(record, position, now)
	})
}

// RecordClick marks a recommendation clicked at a position.
func (t *OutcomeTracker) RecordClick(ctx context.Context, id string, position int) (*RecommendationRecord, bool, error) {
	if position < 0 {
		return nil, false, errors.NotValidf("position %d", position)
	}
	return t.update(ctx, id, func(record *RecommendationRecord, now time.Time) []string {
		return markClick(record, position, now)
	})
}

// RecordConversion marks a recommendation converted, e.g. by a reservation.
func (t *OutcomeTracker) RecordConversion(ctx context.Context, id, conversionType string) (*RecommendationRecord, bool, error) {
	if conversionType == "" {
		return nil, false, errors.NotValidf("empty conversion type")
	}
	return t.update(ctx, id, func(record *RecommendationRecord, now time.Time) []string {
		return markConversion(record, conversionType, now)
	})
}

// RecordOutcomeFeedback stores feedback on a recommendation. The latest
// feedback replaces earlier feedback.
func (t *OutcomeTracker) RecordOutcomeFeedback(ctx context.Context, id string, rating float64, comment string) (*RecommendationRecord, error) {
	if math.IsNaN(rating) || rating < 1 || rating > 5 {
		return nil, errors.NotValidf("rating %v", rating)
	}
	if id == "" {
		return nil, errors.NotValidf("empty recommendation id")
	}
	defer t.locks.Lock(cacheRecordKey(id))()
	record, err := t.store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	record.Outcome.Feedback = &OutcomeFeedback{Rating: rating, Comment: comment, At: t.clock()}
	if err = t.store.PutRecommendation(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// bumpTimeBuckets counts newly reached stages in the algorithm's hourly buckets.
func (t *OutcomeTracker) bumpTimeBuckets(ctx context.Context, algorithm string, now time.Time, stages []string) {
	if algorithm == "" {
		return
	}
	defer t.locks.Lock(performanceKey(algorithm))()
	record, err := t.store.GetPerformance(ctx, algorithm)
	if errors.Is(err, errors.NotFound) {
		record = NewAlgorithmPerformance(algorithm, now)
	} else if err != nil {
		log.Logger().Error("failed to load algorithm performance", zap.String("algorithm", algorithm), zap.Error(err))
		return
	}
	for _, stage := range stages {
		if err = record.RecordTimeBucket(now.Hour(), stage); err != nil {
			log.Logger().Error("failed to record time bucket", zap.String("stage", stage), zap.Error(err))
			return
		}
	}
	record.UpdatedAt = now
	if err = t.store.PutPerformance(ctx, record); err != nil {
		log.Logger().Error("failed to save algorithm performance", zap.String("algorithm", algorithm), zap.Error(err))
	}
}
