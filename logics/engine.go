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
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/common/parallel"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Engine ties user signals, similarity, recommendation and performance
// tracking together. Read-modify-write of per-user documents is serialized
// by user id.
type Engine struct {
	Config      *config.Config
	Store       *Store
	Similarity  *SimilarityCalculator
	Recommender *Recommender
	Outcomes    *OutcomeTracker

	data  data.Database
	locks *parallel.KeyedMutex
	clock func() time.Time
}

func NewEngine(cfg *config.Config, dataClient data.Database, cacheClient cache.Database) (*Engine, error) {
	locks := parallel.NewKeyedMutex()
	store := NewStore(cacheClient)
	similarity := NewSimilarityCalculator(cfg, store, dataClient, locks)
	recommender, err := NewRecommender(cfg, store, dataClient, similarity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Engine{
		Config:      cfg,
		Store:       store,
		Similarity:  similarity,
		Recommender: recommender,
		Outcomes:    NewOutcomeTracker(cfg, store, locks),
		data:        dataClient,
		locks:       locks,
		clock:       time.Now,
	}, nil
}

// SetClock replaces the clock of the engine and its components.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
	e.Recommender.clock = clock
	e.Outcomes.clock = clock
}

func (e *Engine) Now() time.Time {
	return e.clock()
}

func (e *Engine) Data() data.Database {
	return e.data
}

func userKey(userId string) string {
	return "user/" + userId
}

type FeedbackRequest struct {
	UserId       string   `json:"userId"`
	RestaurantId string   `json:"restaurantId"`
	Action       string   `json:"action"`
	Rating       *float64 `json:"rating,omitempty"`
	Source       string   `json:"source,omitempty"`
	Companion    string   `json:"companion,omitempty"`
	MealTime     string   `json:"mealTime,omitempty"`
	Spend        float64  `json:"spend,omitempty"`
}

func (r *FeedbackRequest) Validate() error {
	if r.UserId == "" || r.RestaurantId == "" {
		return errors.NotValidf("empty user or restaurant id")
	}
	if !lo.Contains([]string{ActionClick, ActionVisit, ActionLike, ActionDislike, ActionSave}, r.Action) {
		return errors.NotValidf("feedback action %q", r.Action)
	}
	if r.Rating != nil && (math.IsNaN(*r.Rating) || *r.Rating < 1 || *r.Rating > 5) {
		return errors.NotValidf("rating %v", *r.Rating)
	}
	if r.Spend < 0 {
		return errors.NotValidf("spend %v", r.Spend)
	}
	return nil
}

// loadUserDocuments loads the preference and taste vector of a user,
// creating defaults for missing ones.
func (e *Engine) loadUserDocuments(ctx context.Context, userId string, now time.Time) (*UserPreference, *TasteVector, error) {
	preference, err := e.Store.GetPreference(ctx, userId)
	if errors.Is(err, errors.NotFound) {
		preference = NewUserPreference(userId, now)
	} else if err != nil {
		return nil, nil, errors.Trace(err)
	}
	vector, err := e.Store.GetTasteVector(ctx, userId)
	if errors.Is(err, errors.NotFound) {
		vector = NewTasteVector(userId, e.Config.Taste, now)
	} else if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return preference, vector, nil
}

// Feedback applies a feedback action to the preference and taste vector of
// a user, then invalidates the user's similarity pairs.
func (e *Engine) Feedback(ctx context.Context, req FeedbackRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	item, err := e.data.GetRestaurant(ctx, req.RestaurantId)
	if err != nil {
		return err
	}
	now := e.clock()
	unlock := e.locks.Lock(userKey(req.UserId))
	preference, vector, err := e.loadUserDocuments(ctx, req.UserId, now)
	if err != nil {
		unlock()
		return err
	}
	visit := Visit{Companion: req.Companion, MealTime: req.MealTime, Spend: req.Spend, Date: now}
	if err = preference.RecordFeedback(e.Config.Preference, item, req.Action, req.Rating, visit, now); err != nil {
		unlock()
		return err
	}
	signal := feedbackSignal(item, req.Action, req.Rating, now)
	vectorChanged := false
	if !signal.Empty() {
		if err = vector.Update(e.Config.Taste, signal); err != nil {
			unlock()
			return err
		}
		vectorChanged = true
	}
	err = e.Store.PutPreference(ctx, preference)
	if err == nil && vectorChanged {
		err = e.Store.PutTasteVector(ctx, vector)
	}
	unlock()
	if err != nil {
		return err
	}
	log.Logger().Debug("apply feedback",
		zap.String("user_id", req.UserId),
		zap.String("restaurant_id", req.RestaurantId),
		zap.String("action", req.Action),
		zap.String("source", req.Source))
	return e.Similarity.Invalidate(ctx, req.UserId)
}

// feedbackSignal maps visit, like and dislike feedback to taste targets.
func feedbackSignal(item data.Restaurant, action string, rating *float64, now time.Time) TasteSignal {
	signal := TasteSignal{Timestamp: now}
	var cuisineTarget, tagTarget float64
	switch action {
	case ActionVisit:
		cuisineTarget, tagTarget = 7, 7
	case ActionLike:
		cuisineTarget, tagTarget = 8, 7
	case ActionDislike:
		cuisineTarget, tagTarget = 2, 3
	default:
		return signal
	}
	if rating != nil {
		cuisineTarget = stats.Clamp(*rating*2, 0, maxDimensionValue)
	}
	if cuisine := strings.ToLower(item.Cuisine); HasDimension(CategoryCuisine, cuisine) {
		signal.Set(CategoryCuisine, cuisine, cuisineTarget)
	}
	for _, tag := range item.AtmosphereTags {
		if tag = strings.ToLower(tag); HasDimension(CategoryAtmosphere, tag) {
			signal.Set(CategoryAtmosphere, tag, tagTarget)
		}
	}
	if price, ok := priceDimension(item.PriceLevel); ok {
		signal.Set(CategoryPrice, price, tagTarget)
	}
	return signal
}

// ValidateReview checks a review signal before anything is mutated.
func ValidateReview(review data.Review) error {
	if review.UserId == "" || review.RestaurantId == "" {
		return errors.NotValidf("empty user or restaurant id")
	}
	if math.IsNaN(review.Rating) || review.Rating < 1 || review.Rating > 5 {
		return errors.NotValidf("rating %v", review.Rating)
	}
	for flavor, value := range review.FlavorRatings {
		if !HasDimension(CategoryFlavor, flavor) {
			return errors.NotValidf("flavor %q", flavor)
		}
		if math.IsNaN(value) || value < 0 || value > maxDimensionValue {
			return errors.NotValidf("flavor rating %v of %s", value, flavor)
		}
	}
	if review.Spend < 0 {
		return errors.NotValidf("spend %v", review.Spend)
	}
	return nil
}

// RecordReview turns a review into taste targets and a visit.
func (e *Engine) RecordReview(ctx context.Context, review data.Review) error {
	if err := ValidateReview(review); err != nil {
		return err
	}
	item, err := e.data.GetRestaurant(ctx, review.RestaurantId)
	if err != nil {
		return err
	}
	now := e.clock()
	timestamp := review.Timestamp
	if timestamp.IsZero() {
		timestamp = now
	}
	signal := TasteSignal{Timestamp: timestamp}
	for flavor, value := range review.FlavorRatings {
		signal.Set(CategoryFlavor, flavor, value)
	}
	for _, tag := range review.AtmosphereTags {
		if tag = strings.ToLower(tag); HasDimension(CategoryAtmosphere, tag) {
			signal.Set(CategoryAtmosphere, tag, 7)
		}
	}
	if occasion := strings.ToLower(review.Occasion); HasDimension(CategoryContext, occasion) {
		signal.Set(CategoryContext, occasion, 8)
	}
	if mealTime := strings.ToLower(review.MealTime); HasDimension(CategoryTimeOfDay, mealTime) {
		signal.Set(CategoryTimeOfDay, mealTime, 7)
	}
	if cuisine := strings.ToLower(item.Cuisine); HasDimension(CategoryCuisine, cuisine) {
		signal.Set(CategoryCuisine, cuisine, review.Rating*2)
	}

	unlock := e.locks.Lock(userKey(review.UserId))
	preference, vector, err := e.loadUserDocuments(ctx, review.UserId, now)
	if err != nil {
		unlock()
		return err
	}
	if spicy, ok := review.FlavorRatings["spicy"]; ok {
		preference.SpicyTolerance = stats.EMA(preference.SpicyTolerance, spicy, vector.LearningRate)
	}
	if err = preference.AddVisit(e.Config.Preference, Visit{
		RestaurantId: review.RestaurantId,
		Date:         timestamp,
		Rating:       review.Rating,
		Companion:    review.Companion,
		MealTime:     review.MealTime,
		Spend:        review.Spend,
	}); err != nil {
		unlock()
		return err
	}
	if err = vector.Update(e.Config.Taste, signal); err != nil {
		unlock()
		return err
	}
	err = e.Store.PutPreference(ctx, preference)
	if err == nil {
		err = e.Store.PutTasteVector(ctx, vector)
	}
	unlock()
	if err != nil {
		return err
	}
	return e.Similarity.Invalidate(ctx, review.UserId)
}

// ApplyGameResult moves the taste vector of a user toward a game result.
func (e *Engine) ApplyGameResult(ctx context.Context, userId string, result GameResult) (*TasteVector, error) {
	if userId == "" {
		return nil, errors.NotValidf("empty user id")
	}
	effect, err := mapGameResult(result)
	if err != nil {
		return nil, err
	}
	now := e.clock()
	effect.signal.Timestamp = now
	unlock := e.locks.Lock(userKey(userId))
	defer unlock()
	preference, vector, err := e.loadUserDocuments(ctx, userId, now)
	if err != nil {
		return nil, err
	}
	alpha := vector.LearningRate
	if err = vector.Update(e.Config.Taste, effect.signal); err != nil {
		return nil, err
	}
	if err = e.Store.PutTasteVector(ctx, vector); err != nil {
		return nil, err
	}
	if effect.adventurousness != nil {
		preference.Adventurousness = stats.EMA(preference.Adventurousness, *effect.adventurousness, alpha)
		preference.UpdatedAt = now
		if err = e.Store.PutPreference(ctx, preference); err != nil {
			return nil, err
		}
	}
	return vector, nil
}

// GetPreferences returns the preference of a user or a fresh default one.
func (e *Engine) GetPreferences(ctx context.Context, userId string) (*UserPreference, error) {
	if userId == "" {
		return nil, errors.NotValidf("empty user id")
	}
	preference, err := e.Store.GetPreference(ctx, userId)
	if errors.Is(err, errors.NotFound) {
		return NewUserPreference(userId, e.clock()), nil
	}
	return preference, err
}

// PutPreferences replaces the preference of a user.
func (e *Engine) PutPreferences(ctx context.Context, userId string, preference *UserPreference) error {
	if preference == nil {
		return errors.NotValidf("empty preference")
	}
	if preference.UserId == "" {
		preference.UserId = userId
	}
	if preference.UserId != userId {
		return errors.NotValidf("user id %s of preference for %s", preference.UserId, userId)
	}
	if err := preference.Validate(); err != nil {
		return err
	}
	preference.ensureMaps()
	if overflow := len(preference.VisitHistory) - e.Config.Preference.MaxVisitHistory; overflow > 0 {
		preference.VisitHistory = preference.VisitHistory[overflow:]
	}
	preference.UpdatedAt = e.clock()
	unlock := e.locks.Lock(userKey(userId))
	err := e.Store.PutPreference(ctx, preference)
	unlock()
	if err != nil {
		return err
	}
	return e.Similarity.Invalidate(ctx, userId)
}

func (e *Engine) GetTasteVector(ctx context.Context, userId string) (*TasteVector, error) {
	if userId == "" {
		return nil, errors.NotValidf("empty user id")
	}
	return e.Store.GetTasteVector(ctx, userId)
}

// Decay fades the confidence of a user's taste vector. It reports whether
// the vector changed.
func (e *Engine) Decay(ctx context.Context, userId string, now time.Time) (bool, error) {
	defer e.locks.Lock(userKey(userId))()
	vector, err := e.Store.GetTasteVector(ctx, userId)
	if errors.Is(err, errors.NotFound) {
		return false, nil
	} else if err != nil {
		return false, errors.Trace(err)
	}
	if !vector.DecayTo(e.Config.Taste, now) {
		return false, nil
	}
	return true, e.Store.PutTasteVector(ctx, vector)
}

// Recommend generates recommendations and records latency and errors of
// the algorithms involved.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	response, err := e.Recommender.Generate(ctx, req)
	latency := float64(time.Since(start).Milliseconds())
	now := e.clock()
	if err != nil {
		if !errors.Is(err, errors.NotValid) {
			if _, ok := e.Config.Recommend.Algorithms[req.Algorithm]; ok {
				errorRate := 1.0
				e.observe(ctx, req.Algorithm, MetricsBatch{ErrorRate: &errorRate}, now)
			}
		}
		return nil, err
	}
	algorithms := lo.Uniq(lo.Map(response.Recommendations, func(r *RecommendationRecord, _ int) string { return r.Algorithm }))
	for _, algorithm := range algorithms {
		errorRate := 0.0
		e.observe(ctx, algorithm, MetricsBatch{LatencyMs: &latency, ErrorRate: &errorRate}, now)
	}
	return response, nil
}

func (e *Engine) observe(ctx context.Context, algorithm string, batch MetricsBatch, now time.Time) {
	err := e.UpdatePerformance(ctx, algorithm, func(p *AlgorithmPerformance) error {
		p.UpdateMetrics(batch, now)
		return nil
	})
	if err != nil {
		log.Logger().Error("failed to observe algorithm metrics", zap.String("algorithm", algorithm), zap.Error(err))
	}
}

// UpdatePerformance runs a read-modify-write on the performance record of an
// algorithm, creating the record when missing.
func (e *Engine) UpdatePerformance(ctx context.Context, algorithm string, mutate func(p *AlgorithmPerformance) error) error {
	if algorithm == "" {
		return errors.NotValidf("empty algorithm")
	}
	defer e.locks.Lock(performanceKey(algorithm))()
	record, err := e.Store.GetPerformance(ctx, algorithm)
	if errors.Is(err, errors.NotFound) {
		record = NewAlgorithmPerformance(algorithm, e.clock())
	} else if err != nil {
		return errors.Trace(err)
	}
	if err = mutate(record); err != nil {
		return err
	}
	return e.Store.PutPerformance(ctx, record)
}

// Performances returns records of configured and active algorithms.
func (e *Engine) Performances(ctx context.Context) ([]*AlgorithmPerformance, error) {
	active, err := e.Store.Cache().GetSet(ctx, cache.ActiveAlgorithms)
	if err != nil {
		return nil, errors.Trace(err)
	}
	names := lo.Uniq(append(lo.Keys(e.Config.Recommend.Algorithms), active...))
	records, err := e.Store.Performances(ctx, names)
	if err != nil {
		return nil, err
	}
	return lo.Filter(records, func(p *AlgorithmPerformance, _ int) bool { return p != nil }), nil
}

// BestAlgorithm selects the best performing active algorithm.
func (e *Engine) BestAlgorithm(ctx context.Context, selection SelectionContext) (string, error) {
	records, err := e.Store.ActivePerformances(ctx)
	if err != nil {
		return "", err
	}
	return SelectBestAlgorithm(records, selection), nil
}

// AddABTest registers an A/B test on an algorithm.
func (e *Engine) AddABTest(ctx context.Context, algorithm string, test ABTest) (*ABTest, error) {
	if test.StartedAt.IsZero() {
		test.StartedAt = e.clock()
	}
	err := e.UpdatePerformance(ctx, algorithm, func(p *AlgorithmPerformance) error {
		return p.AddABTest(test)
	})
	if err != nil {
		return nil, err
	}
	return &test, nil
}

// AnalyzeABTest analyzes and saves the result of an A/B test.
func (e *Engine) AnalyzeABTest(ctx context.Context, algorithm, testId string) (*ABTestResult, error) {
	if _, err := e.Store.GetPerformance(ctx, algorithm); err != nil {
		return nil, err
	}
	var result *ABTestResult
	err := e.UpdatePerformance(ctx, algorithm, func(p *AlgorithmPerformance) error {
		var err error
		result, err = p.AnalyzeABTest(testId, e.clock())
		return err
	})
	return result, err
}
