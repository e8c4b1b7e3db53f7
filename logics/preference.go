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
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
)

// Feedback actions of the app.
const (
	ActionClick   = "click"
	ActionVisit   = "visit"
	ActionLike    = "like"
	ActionDislike = "dislike"
	ActionSave    = "save"
)

var (
	Companions = []string{"solo", "date", "friends", "family", "business"}
	MealTimes  = []string{"breakfast", "brunch", "lunch", "dinner", "late_night"}
)

type Visit struct {
	RestaurantId string    `json:"restaurantId"`
	Date         time.Time `json:"date"`
	Rating       float64   `json:"rating,omitempty"`
	Companion    string    `json:"companion,omitempty"`
	MealTime     string    `json:"mealTime,omitempty"`
	Spend        float64   `json:"spend,omitempty"`
}

type CompanionPattern struct {
	Frequency    int     `json:"frequency"`
	AverageSpend float64 `json:"averageSpend"`
	SpendVisits  int     `json:"spendVisits"`
}

// Curator is a followed user whose likes count as social proof.
type Curator struct {
	UserId     string  `json:"userId"`
	TrustScore float64 `json:"trustScore"`
}

type LikedRestaurant struct {
	RestaurantId string    `json:"restaurantId"`
	Strength     float64   `json:"strength"`
	LikedAt      time.Time `json:"likedAt"`
}

type NegativePreference struct {
	BlockedRestaurants  []string `json:"blockedRestaurants"`
	DislikedRestaurants []string `json:"dislikedRestaurants"`
	AvoidedCuisines     []string `json:"avoidedCuisines"`
}

// UserPreference holds the raw preference counters of a user. Events only
// move counters; nothing resets them except the user.
type UserPreference struct {
	UserId            string                      `json:"userId"`
	CuisineScores     map[string]float64          `json:"cuisineScores"`
	PriceScores       map[int]float64             `json:"priceScores"`
	AtmosphereScores  map[string]float64          `json:"atmosphereScores"`
	SpicyTolerance    float64                     `json:"spicyTolerance"`
	Adventurousness   float64                     `json:"adventurousness"`
	VisitHistory      []Visit                     `json:"visitHistory"`
	CompanionPatterns map[string]CompanionPattern `json:"companionPatterns"`
	MealTimePatterns  map[string]int              `json:"mealTimePatterns"`
	Following         []Curator                   `json:"following"`
	LikedRestaurants  []LikedRestaurant           `json:"likedRestaurants"`
	SavedRestaurants  []string                    `json:"savedRestaurants"`
	Negative          NegativePreference          `json:"negative"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

func NewUserPreference(userId string, now time.Time) *UserPreference {
	p := &UserPreference{UserId: userId}
	p.Reset(now)
	return p
}

// Reset clears every counter.
func (p *UserPreference) Reset(now time.Time) {
	*p = UserPreference{
		UserId:            p.UserId,
		CuisineScores:     make(map[string]float64),
		PriceScores:       make(map[int]float64),
		AtmosphereScores:  make(map[string]float64),
		SpicyTolerance:    neutralDimensionValue,
		Adventurousness:   neutralDimensionValue,
		CompanionPatterns: make(map[string]CompanionPattern),
		MealTimePatterns:  make(map[string]int),
		UpdatedAt:         now,
	}
}

// ensureMaps initializes maps dropped by a JSON document.
func (p *UserPreference) ensureMaps() {
	if p.CuisineScores == nil {
		p.CuisineScores = make(map[string]float64)
	}
	if p.PriceScores == nil {
		p.PriceScores = make(map[int]float64)
	}
	if p.AtmosphereScores == nil {
		p.AtmosphereScores = make(map[string]float64)
	}
	if p.CompanionPatterns == nil {
		p.CompanionPatterns = make(map[string]CompanionPattern)
	}
	if p.MealTimePatterns == nil {
		p.MealTimePatterns = make(map[string]int)
	}
}

// Validate checks a document replaced by the user.
func (p *UserPreference) Validate() error {
	if p.UserId == "" {
		return errors.NotValidf("empty user id")
	}
	if p.SpicyTolerance < 0 || p.SpicyTolerance > maxDimensionValue {
		return errors.NotValidf("spicy tolerance %v", p.SpicyTolerance)
	}
	if p.Adventurousness < 0 || p.Adventurousness > maxDimensionValue {
		return errors.NotValidf("adventurousness %v", p.Adventurousness)
	}
	for level, score := range p.PriceScores {
		if level < data.PriceBudget || level > data.PriceLuxury {
			return errors.NotValidf("price level %d", level)
		}
		if score < 0 {
			return errors.NotValidf("price score %v", score)
		}
	}
	for cuisine, score := range p.CuisineScores {
		if score < 0 || math.IsNaN(score) {
			return errors.NotValidf("cuisine score %v of %s", score, cuisine)
		}
	}
	for _, curator := range p.Following {
		if curator.UserId == "" || curator.TrustScore < 0 || curator.TrustScore > 1 {
			return errors.NotValidf("curator %v", curator)
		}
	}
	return nil
}

// AddVisit appends a visit to the bounded history and updates patterns.
func (p *UserPreference) AddVisit(cfg config.PreferenceConfig, v Visit) error {
	if v.RestaurantId == "" {
		return errors.NotValidf("visit without restaurant")
	}
	p.ensureMaps()
	p.VisitHistory = append(p.VisitHistory, v)
	if overflow := len(p.VisitHistory) - cfg.MaxVisitHistory; overflow > 0 {
		p.VisitHistory = slices.Clone(p.VisitHistory[overflow:])
	}
	if v.Companion != "" {
		pattern := p.CompanionPatterns[v.Companion]
		pattern.Frequency++
		if v.Spend > 0 {
			pattern.SpendVisits++
			pattern.AverageSpend += (v.Spend - pattern.AverageSpend) / float64(pattern.SpendVisits)
		}
		p.CompanionPatterns[v.Companion] = pattern
	}
	if v.MealTime != "" {
		p.MealTimePatterns[v.MealTime]++
	}
	if !v.Date.IsZero() {
		p.UpdatedAt = v.Date
	}
	return nil
}

// RecordFeedback moves counters for a feedback action on a restaurant.
func (p *UserPreference) RecordFeedback(cfg config.PreferenceConfig, item data.Restaurant, action string, rating *float64, visit Visit, now time.Time) error {
	p.ensureMaps()
	switch action {
	case ActionClick:
		p.addCuisine(item.Cuisine, 0.5)
	case ActionVisit:
		visit.RestaurantId = item.RestaurantId
		if visit.Date.IsZero() {
			visit.Date = now
		}
		if rating != nil {
			visit.Rating = *rating
		}
		if err := p.AddVisit(cfg, visit); err != nil {
			return err
		}
		p.addCuisine(item.Cuisine, 2)
		if item.PriceLevel >= data.PriceBudget && item.PriceLevel <= data.PriceLuxury {
			p.PriceScores[item.PriceLevel]++
		}
		for _, tag := range item.AtmosphereTags {
			p.AtmosphereScores[tag]++
		}
	case ActionLike:
		index := slices.IndexFunc(p.LikedRestaurants, func(l LikedRestaurant) bool {
			return l.RestaurantId == item.RestaurantId
		})
		if index < 0 {
			p.LikedRestaurants = append(p.LikedRestaurants, LikedRestaurant{RestaurantId: item.RestaurantId, LikedAt: now})
			index = len(p.LikedRestaurants) - 1
		}
		p.LikedRestaurants[index].Strength++
		p.LikedRestaurants[index].LikedAt = now
		p.addCuisine(item.Cuisine, 1.5)
	case ActionDislike:
		p.addCuisine(item.Cuisine, -1)
		if !slices.Contains(p.Negative.DislikedRestaurants, item.RestaurantId) {
			p.Negative.DislikedRestaurants = append(p.Negative.DislikedRestaurants, item.RestaurantId)
		}
	case ActionSave:
		if !slices.Contains(p.SavedRestaurants, item.RestaurantId) {
			p.SavedRestaurants = append(p.SavedRestaurants, item.RestaurantId)
		}
		p.addCuisine(item.Cuisine, 0.5)
	default:
		return errors.NotValidf("feedback action %s", action)
	}
	p.UpdatedAt = now
	return nil
}

func (p *UserPreference) addCuisine(cuisine string, delta float64) {
	if cuisine == "" {
		return
	}
	p.CuisineScores[cuisine] = math.Max(0, p.CuisineScores[cuisine]+delta)
}

// Follow adds or updates a curator.
func (p *UserPreference) Follow(userId string, trust float64) {
	trust = stats.Clamp(trust, 0, 1)
	for i := range p.Following {
		if p.Following[i].UserId == userId {
			p.Following[i].TrustScore = trust
			return
		}
	}
	p.Following = append(p.Following, Curator{UserId: userId, TrustScore: trust})
}

func (p *UserPreference) IsBlocked(restaurantId string) bool {
	return slices.Contains(p.Negative.BlockedRestaurants, restaurantId)
}

func (p *UserPreference) IsDisliked(restaurantId string) bool {
	return slices.Contains(p.Negative.DislikedRestaurants, restaurantId)
}

func (p *UserPreference) IsAvoidedCuisine(cuisine string) bool {
	return cuisine != "" && containsFold(p.Negative.AvoidedCuisines, cuisine)
}

func (p *UserPreference) LikeStrength(restaurantId string) float64 {
	liked, _ := lo.Find(p.LikedRestaurants, func(l LikedRestaurant) bool { return l.RestaurantId == restaurantId })
	return liked.Strength
}

// PreferenceContext is the situation a fallback score is computed for.
type PreferenceContext struct {
	MealTime  string
	Companion string
	// LikedBy holds users who liked the restaurant.
	LikedBy mapset.Set[string]
}

// CalculateRecommendationScore is the fallback scorer used when the taste
// vector is not confident enough. It returns a score from 0 to 100.
func (p *UserPreference) CalculateRecommendationScore(cfg config.PreferenceConfig, item data.Restaurant, ctx PreferenceContext) float64 {
	terms := p.ScoreTerms(cfg, item, ctx)
	score := cfg.Weights.Cuisine*terms.Cuisine +
		cfg.Weights.Price*terms.Price +
		cfg.Weights.TimeOfDay*terms.TimeOfDay +
		cfg.Weights.Companion*terms.Companion +
		cfg.Weights.Social*terms.Social
	if p.IsAvoidedCuisine(item.Cuisine) {
		score -= cfg.NegativePenalty
	}
	return stats.Clamp(score, 0, 100)
}

// PreferenceTerms are the matches of the fallback scorer, each in [0, 1].
type PreferenceTerms struct {
	Cuisine   float64
	Price     float64
	TimeOfDay float64
	Companion float64
	Social    float64
	// Available counts terms backed by data.
	Available int
}

func (p *UserPreference) ScoreTerms(cfg config.PreferenceConfig, item data.Restaurant, ctx PreferenceContext) PreferenceTerms {
	var terms PreferenceTerms
	collect := func(value float64, err error) float64 {
		if err != nil {
			return 0
		}
		terms.Available++
		return value
	}
	terms.Cuisine = collect(p.cuisineMatch(item))
	terms.Price = collect(p.priceMatch(item))
	terms.TimeOfDay = collect(p.timeOfDayMatch(cfg, item, ctx.MealTime))
	terms.Companion = collect(p.companionMatch(cfg, item, ctx.Companion))
	terms.Social = collect(p.socialProof(ctx.LikedBy))
	return terms
}

func (p *UserPreference) cuisineMatch(item data.Restaurant) (float64, error) {
	maxScore := lo.Max(lo.Values(p.CuisineScores))
	if maxScore <= 0 || item.Cuisine == "" {
		return 0, ErrInsufficientData
	}
	return p.CuisineScores[item.Cuisine] / maxScore, nil
}

func (p *UserPreference) priceMatch(item data.Restaurant) (float64, error) {
	maxScore := lo.Max(lo.Values(p.PriceScores))
	if maxScore <= 0 || item.PriceLevel == 0 {
		return 0, ErrInsufficientData
	}
	return p.PriceScores[item.PriceLevel] / maxScore, nil
}

func (p *UserPreference) timeOfDayMatch(cfg config.PreferenceConfig, item data.Restaurant, mealTime string) (float64, error) {
	if len(p.VisitHistory) < cfg.MinVisits || mealTime == "" {
		return 0, ErrInsufficientData
	}
	total := lo.Sum(lo.Values(p.MealTimePatterns))
	if total == 0 {
		return 0, ErrInsufficientData
	}
	if !containsFold(item.MealTimes, mealTime) {
		return 0, nil
	}
	return float64(p.MealTimePatterns[mealTime]) / float64(total), nil
}

func (p *UserPreference) companionMatch(cfg config.PreferenceConfig, item data.Restaurant, companion string) (float64, error) {
	if len(p.VisitHistory) < cfg.MinVisits || companion == "" {
		return 0, ErrInsufficientData
	}
	total := lo.SumBy(lo.Values(p.CompanionPatterns), func(pattern CompanionPattern) int { return pattern.Frequency })
	if total == 0 {
		return 0, ErrInsufficientData
	}
	if !containsFold(item.GoodFor, companion) {
		return 0, nil
	}
	return float64(p.CompanionPatterns[companion].Frequency) / float64(total), nil
}

func (p *UserPreference) socialProof(likedBy mapset.Set[string]) (float64, error) {
	if len(p.Following) == 0 || likedBy == nil {
		return 0, ErrInsufficientData
	}
	var trust float64
	for _, curator := range p.Following {
		if likedBy.Contains(curator.UserId) {
			trust += curator.TrustScore
		}
	}
	return math.Min(1, trust/3), nil
}

// FollowedIds returns ids of followed curators.
func (p *UserPreference) FollowedIds() []string {
	return lo.Map(p.Following, func(c Curator, _ int) string { return c.UserId })
}
