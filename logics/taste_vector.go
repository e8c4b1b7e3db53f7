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
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
)

const (
	CategoryFlavor     = "flavor"
	CategoryCuisine    = "cuisine"
	CategoryAtmosphere = "atmosphere"
	CategoryContext    = "context"
	CategoryPrice      = "price"
	CategoryBehavior   = "behavior"
	CategoryTimeOfDay  = "time_of_day"
	CategoryDietary    = "dietary"
)

const (
	maxDimensionValue     = 10.0
	neutralDimensionValue = 5.0
	initialConfidence     = 0.5
)

// Dimension is a single taste preference. Value ranges from 0 to 10 and
// confidence from 0 to 1.
type Dimension struct {
	Value      float64 `json:"value"`
	Confidence float64 `json:"confidence"`
}

type dimensionRef struct {
	name string
	dim  *Dimension
}

type FlavorProfile struct {
	Spicy  Dimension `json:"spicy"`
	Sweet  Dimension `json:"sweet"`
	Salty  Dimension `json:"salty"`
	Sour   Dimension `json:"sour"`
	Umami  Dimension `json:"umami"`
	Bitter Dimension `json:"bitter"`
	Rich   Dimension `json:"rich"`
}

func (p *FlavorProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"spicy", &p.Spicy}, {"sweet", &p.Sweet}, {"salty", &p.Salty}, {"sour", &p.Sour},
		{"umami", &p.Umami}, {"bitter", &p.Bitter}, {"rich", &p.Rich},
	}
}

type CuisineProfile struct {
	Korean   Dimension `json:"korean"`
	Japanese Dimension `json:"japanese"`
	Chinese  Dimension `json:"chinese"`
	Western  Dimension `json:"western"`
	Italian  Dimension `json:"italian"`
	Asian    Dimension `json:"asian"`
	Mexican  Dimension `json:"mexican"`
	Fusion   Dimension `json:"fusion"`
	Cafe     Dimension `json:"cafe"`
}

func (p *CuisineProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"korean", &p.Korean}, {"japanese", &p.Japanese}, {"chinese", &p.Chinese},
		{"western", &p.Western}, {"italian", &p.Italian}, {"asian", &p.Asian},
		{"mexican", &p.Mexican}, {"fusion", &p.Fusion}, {"cafe", &p.Cafe},
	}
}

type AtmosphereProfile struct {
	Quiet    Dimension `json:"quiet"`
	Lively   Dimension `json:"lively"`
	Romantic Dimension `json:"romantic"`
	Casual   Dimension `json:"casual"`
	Formal   Dimension `json:"formal"`
	Cozy     Dimension `json:"cozy"`
	Trendy   Dimension `json:"trendy"`
}

func (p *AtmosphereProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"quiet", &p.Quiet}, {"lively", &p.Lively}, {"romantic", &p.Romantic}, {"casual", &p.Casual},
		{"formal", &p.Formal}, {"cozy", &p.Cozy}, {"trendy", &p.Trendy},
	}
}

// ContextProfile is the situational preference: who the user dines with.
type ContextProfile struct {
	Solo        Dimension `json:"solo"`
	Date        Dimension `json:"date"`
	Friends     Dimension `json:"friends"`
	Family      Dimension `json:"family"`
	Business    Dimension `json:"business"`
	Celebration Dimension `json:"celebration"`
}

func (p *ContextProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"solo", &p.Solo}, {"date", &p.Date}, {"friends", &p.Friends},
		{"family", &p.Family}, {"business", &p.Business}, {"celebration", &p.Celebration},
	}
}

// PriceProfile is the affinity to each price level.
type PriceProfile struct {
	Budget   Dimension `json:"budget"`
	Moderate Dimension `json:"moderate"`
	Premium  Dimension `json:"premium"`
	Luxury   Dimension `json:"luxury"`
}

func (p *PriceProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"budget", &p.Budget}, {"moderate", &p.Moderate}, {"premium", &p.Premium}, {"luxury", &p.Luxury},
	}
}

type BehaviorProfile struct {
	Adventurous     Dimension `json:"adventurous"`
	Loyal           Dimension `json:"loyal"`
	Social          Dimension `json:"social"`
	HealthConscious Dimension `json:"health_conscious"`
	TrendFollower   Dimension `json:"trend_follower"`
}

func (p *BehaviorProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"adventurous", &p.Adventurous}, {"loyal", &p.Loyal}, {"social", &p.Social},
		{"health_conscious", &p.HealthConscious}, {"trend_follower", &p.TrendFollower},
	}
}

type TimeOfDayProfile struct {
	Breakfast Dimension `json:"breakfast"`
	Brunch    Dimension `json:"brunch"`
	Lunch     Dimension `json:"lunch"`
	Dinner    Dimension `json:"dinner"`
	LateNight Dimension `json:"late_night"`
}

func (p *TimeOfDayProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"breakfast", &p.Breakfast}, {"brunch", &p.Brunch}, {"lunch", &p.Lunch},
		{"dinner", &p.Dinner}, {"late_night", &p.LateNight},
	}
}

// DietaryProfile holds dietary restrictions. A value above 5 is a
// requirement the restaurant has to satisfy.
type DietaryProfile struct {
	Vegetarian  Dimension `json:"vegetarian"`
	Vegan       Dimension `json:"vegan"`
	Halal       Dimension `json:"halal"`
	GlutenFree  Dimension `json:"gluten_free"`
	LactoseFree Dimension `json:"lactose_free"`
}

func (p *DietaryProfile) dimensions() []dimensionRef {
	return []dimensionRef{
		{"vegetarian", &p.Vegetarian}, {"vegan", &p.Vegan}, {"halal", &p.Halal},
		{"gluten_free", &p.GlutenFree}, {"lactose_free", &p.LactoseFree},
	}
}

// TasteVector is the multi-dimensional taste model of a user.
type TasteVector struct {
	UserId       string            `json:"userId"`
	Flavor       FlavorProfile     `json:"flavor"`
	Cuisine      CuisineProfile    `json:"cuisine"`
	Atmosphere   AtmosphereProfile `json:"atmosphere"`
	Context      ContextProfile    `json:"context"`
	Price        PriceProfile      `json:"price"`
	Behavior     BehaviorProfile   `json:"behavior"`
	TimeOfDay    TimeOfDayProfile  `json:"timeOfDay"`
	Dietary      DietaryProfile    `json:"dietary"`
	LearningRate float64           `json:"learningRate"`
	UpdateCount  int               `json:"updateCount"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastUpdated  time.Time         `json:"lastUpdated"`
	DecayedAt    time.Time         `json:"decayedAt"`
}

type categoryRef struct {
	name       string
	dimensions []dimensionRef
}

// NewTasteVector creates a neutral vector. Dietary restrictions start at 0.
func NewTasteVector(userId string, cfg config.TasteConfig, now time.Time) *TasteVector {
	v := &TasteVector{
		UserId:       userId,
		LearningRate: cfg.InitialLearningRate,
		CreatedAt:    now,
		LastUpdated:  now,
		DecayedAt:    now,
	}
	for _, category := range v.categories() {
		for _, ref := range category.dimensions {
			ref.dim.Value = neutralDimensionValue
			ref.dim.Confidence = stats.Clamp(initialConfidence, cfg.MinConfidence, cfg.MaxConfidence)
			if category.name == CategoryDietary {
				ref.dim.Value = 0
			}
		}
	}
	return v
}

func (v *TasteVector) categories() []categoryRef {
	return []categoryRef{
		{CategoryFlavor, v.Flavor.dimensions()},
		{CategoryCuisine, v.Cuisine.dimensions()},
		{CategoryAtmosphere, v.Atmosphere.dimensions()},
		{CategoryContext, v.Context.dimensions()},
		{CategoryPrice, v.Price.dimensions()},
		{CategoryBehavior, v.Behavior.dimensions()},
		{CategoryTimeOfDay, v.TimeOfDay.dimensions()},
		{CategoryDietary, v.Dietary.dimensions()},
	}
}

func (v *TasteVector) category(name string) (categoryRef, bool) {
	return lo.Find(v.categories(), func(c categoryRef) bool { return c.name == name })
}

// Dimension returns a dimension by category and name.
func (v *TasteVector) Dimension(category, name string) (*Dimension, bool) {
	c, ok := v.category(category)
	if !ok {
		return nil, false
	}
	ref, ok := lo.Find(c.dimensions, func(ref dimensionRef) bool { return ref.name == name })
	if !ok {
		return nil, false
	}
	return ref.dim, true
}

// HasDimension reports whether the category has the dimension.
func HasDimension(category, name string) bool {
	var v TasteVector
	_, ok := v.Dimension(category, name)
	return ok
}

// DimensionNames lists the dimensions of a category.
func DimensionNames(category string) []string {
	var v TasteVector
	c, ok := v.category(category)
	if !ok {
		return nil
	}
	return lo.Map(c.dimensions, func(ref dimensionRef, _ int) string { return ref.name })
}

func categoryWeight(weights config.CategoryWeights, category string) float64 {
	switch category {
	case CategoryFlavor:
		return weights.Flavor
	case CategoryCuisine:
		return weights.Cuisine
	case CategoryAtmosphere:
		return weights.Atmosphere
	case CategoryContext:
		return weights.Context
	case CategoryPrice:
		return weights.Price
	case CategoryBehavior:
		return weights.Behavior
	case CategoryTimeOfDay:
		return weights.TimeOfDay
	case CategoryDietary:
		return weights.Dietary
	}
	return 0
}

// TasteSignal moves dimensions toward target values.
type TasteSignal struct {
	// Targets maps category to dimension to target value in [0, 10].
	Targets   map[string]map[string]float64
	Timestamp time.Time
}

// Set adds a target to the signal.
func (s *TasteSignal) Set(category, dimension string, value float64) {
	if s.Targets == nil {
		s.Targets = make(map[string]map[string]float64)
	}
	if s.Targets[category] == nil {
		s.Targets[category] = make(map[string]float64)
	}
	s.Targets[category][dimension] = value
}

func (s *TasteSignal) Empty() bool {
	return lo.EveryBy(lo.Values(s.Targets), func(dims map[string]float64) bool { return len(dims) == 0 })
}

// Validate checks every target before anything is mutated.
func (s *TasteSignal) Validate() error {
	if s.Empty() {
		return errors.NotValidf("empty taste signal")
	}
	for category, dims := range s.Targets {
		for name, value := range dims {
			if !HasDimension(category, name) {
				return errors.NotValidf("taste dimension %s/%s", category, name)
			}
			if math.IsNaN(value) || value < 0 || value > maxDimensionValue {
				return errors.NotValidf("taste value %v of %s/%s", value, category, name)
			}
		}
	}
	return nil
}

// Update applies a signal with the current learning rate, boosts the
// confidence of touched dimensions and decays the learning rate.
func (v *TasteVector) Update(cfg config.TasteConfig, signal TasteSignal) error {
	if err := signal.Validate(); err != nil {
		return err
	}
	alpha := v.LearningRate
	for category, dims := range signal.Targets {
		for name, target := range dims {
			dim, _ := v.Dimension(category, name)
			dim.Value = stats.Clamp(stats.EMA(dim.Value, target, alpha), 0, maxDimensionValue)
			dim.Confidence = stats.Clamp(dim.Confidence+cfg.ConfidenceBoost, cfg.MinConfidence, cfg.MaxConfidence)
		}
	}
	v.LearningRate = math.Max(v.LearningRate*cfg.LearningRateDecay, cfg.MinLearningRate)
	v.UpdateCount++
	if !signal.Timestamp.IsZero() {
		v.LastUpdated = signal.Timestamp
	}
	return nil
}

// CategorySimilarity returns the similarity of each category.
func (v *TasteVector) CategorySimilarity(other *TasteVector) map[string]float64 {
	result := make(map[string]float64)
	otherCategories := other.categories()
	for i, category := range v.categories() {
		values := make([]float64, len(category.dimensions))
		for j, ref := range category.dimensions {
			o := otherCategories[i].dimensions[j].dim
			closeness := 1 - math.Abs(ref.dim.Value-o.Value)/maxDimensionValue
			values[j] = closeness * (ref.dim.Confidence + o.Confidence) / 2
		}
		result[category.name] = stats.Mean(values)
	}
	return result
}

// Similarity combines category similarities weighted by category weights.
func (v *TasteVector) Similarity(other *TasteVector, weights config.CategoryWeights) float64 {
	total := weights.Sum()
	if total <= 0 {
		return 0
	}
	similarities := v.CategorySimilarity(other)
	var sum float64
	for _, category := range v.categories() {
		sum += categoryWeight(weights, category.name) * similarities[category.name]
	}
	return stats.Clamp(sum/total, 0, 1)
}

// matchedDimensions maps restaurant attributes onto taste dimensions.
func (v *TasteVector) matchedDimensions(item data.Restaurant) map[string][]*Dimension {
	matched := make(map[string][]*Dimension)
	match := func(category, name string) {
		if dim, ok := v.Dimension(category, strings.ToLower(name)); ok && !slices.Contains(matched[category], dim) {
			matched[category] = append(matched[category], dim)
		}
	}
	if item.Cuisine != "" {
		match(CategoryCuisine, item.Cuisine)
	}
	if name, ok := priceDimension(item.PriceLevel); ok {
		match(CategoryPrice, name)
	}
	for _, tag := range item.AtmosphereTags {
		match(CategoryAtmosphere, tag)
	}
	for _, tag := range item.FlavorTags {
		match(CategoryFlavor, tag)
	}
	for _, mealTime := range item.MealTimes {
		match(CategoryTimeOfDay, mealTime)
	}
	for _, companion := range item.GoodFor {
		match(CategoryContext, companion)
	}
	return matched
}

// Score returns the affinity of the user to a restaurant from 0 to 100. A
// neutral vector scores 50.
func (v *TasteVector) Score(item data.Restaurant, weights config.CategoryWeights) float64 {
	affinity := 0.5
	var weighted, totalWeight float64
	matched := v.matchedDimensions(item)
	for _, category := range v.categories() {
		dims := matched[category.name]
		w := categoryWeight(weights, category.name)
		if len(dims) == 0 || w <= 0 {
			continue
		}
		contributions := lo.Map(dims, func(dim *Dimension, _ int) float64 {
			return 0.5 + (dim.Value/maxDimensionValue-0.5)*dim.Confidence
		})
		weighted += w * stats.Mean(contributions)
		totalWeight += w
	}
	if totalWeight > 0 {
		affinity = weighted / totalWeight
	}
	// unmet dietary restrictions
	for _, ref := range v.Dietary.dimensions() {
		if ref.dim.Value > neutralDimensionValue && !containsFold(item.DietaryOptions, ref.name) {
			affinity *= 1 - 0.5*(ref.dim.Value/maxDimensionValue)*ref.dim.Confidence
		}
	}
	return stats.Clamp(affinity*100, 0, 100)
}

// DecayConfidence fades every confidence by the elapsed days.
func (v *TasteVector) DecayConfidence(cfg config.TasteConfig, days float64) {
	if days <= 0 {
		return
	}
	factor := math.Exp(-days / cfg.HalfLifeDays)
	for _, category := range v.categories() {
		for _, ref := range category.dimensions {
			ref.dim.Confidence = math.Max(ref.dim.Confidence*factor, cfg.MinConfidence)
		}
	}
}

// DecayTo decays confidence by the days since the vector was last updated
// or decayed.
func (v *TasteVector) DecayTo(cfg config.TasteConfig, now time.Time) bool {
	since := v.LastUpdated
	if v.DecayedAt.After(since) {
		since = v.DecayedAt
	}
	days := now.Sub(since).Hours() / 24
	if days <= 0 {
		return false
	}
	v.DecayConfidence(cfg, days)
	v.DecayedAt = now
	return true
}

// AverageConfidence is the mean confidence over all dimensions.
func (v *TasteVector) AverageConfidence() float64 {
	var confidences []float64
	for _, category := range v.categories() {
		for _, ref := range category.dimensions {
			confidences = append(confidences, ref.dim.Confidence)
		}
	}
	return stats.Mean(confidences)
}

func priceDimension(level int) (string, bool) {
	switch level {
	case data.PriceBudget:
		return "budget", true
	case data.PriceModerate:
		return "moderate", true
	case data.PricePremium:
		return "premium", true
	case data.PriceLuxury:
		return "luxury", true
	}
	return "", false
}

func containsFold(values []string, target string) bool {
	return lo.ContainsBy(values, func(value string) bool { return strings.EqualFold(value, target) })
}
