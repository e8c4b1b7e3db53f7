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
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Scoring components.
const (
	ComponentCollaborative = "collaborative"
	ComponentContent       = "content"
	ComponentTrending      = "trending"
	ComponentLocation      = "location"
	ComponentSocial        = "social"
	ComponentContext       = "context"
)

var componentNames = []string{
	ComponentCollaborative, ComponentContent, ComponentTrending,
	ComponentLocation, ComponentSocial, ComponentContext,
}

const (
	StatusOK              = "ok"
	StatusFallbackPopular = "fallback_popular"
	StatusEmpty           = "empty"

	// AlgorithmAuto selects the best performing algorithm.
	AlgorithmAuto = "auto"
	// AlgorithmPopular ranks by popularity only. It serves unknown users.
	AlgorithmPopular = "popular"

	TargetRestaurant = "restaurant"
)

var tracer = otel.Tracer("github.com/matjip-io/matjip/logics")

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RecommendationContext is the situation recommendations are generated for.
type RecommendationContext struct {
	Location  *Location `json:"location,omitempty"`
	Time      time.Time `json:"time"`
	Companion string    `json:"companion,omitempty"`
	MealTime  string    `json:"mealTime,omitempty"`
	Mood      string    `json:"mood,omitempty"`
	Weather   string    `json:"weather,omitempty"`
	// Budget is the highest acceptable price level. Zero accepts any.
	Budget int `json:"budget,omitempty"`
}

type Request struct {
	UserId string
	RecommendationContext
	N         int
	Algorithm string
	Segment   string
}

type Reason struct {
	Primary   string   `json:"primary"`
	Secondary []string `json:"secondary,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type OutcomeFeedback struct {
	Rating  float64   `json:"rating"`
	Comment string    `json:"comment,omitempty"`
	At      time.Time `json:"at"`
}

type Outcome struct {
	Impressed          bool             `json:"impressed"`
	ImpressedAt        *time.Time       `json:"impressedAt,omitempty"`
	ImpressionPosition int              `json:"impressionPosition,omitempty"`
	Clicked            bool             `json:"clicked"`
	ClickedAt          *time.Time       `json:"clickedAt,omitempty"`
	ClickPosition      int              `json:"clickPosition,omitempty"`
	Converted          bool             `json:"converted"`
	ConvertedAt        *time.Time       `json:"convertedAt,omitempty"`
	ConversionType     string           `json:"conversionType,omitempty"`
	Feedback           *OutcomeFeedback `json:"feedback,omitempty"`
}

type RecommendationRecord struct {
	Id          string                `json:"id"`
	UserId      string                `json:"userId"`
	TargetId    string                `json:"targetId"`
	TargetType  string                `json:"targetType"`
	Algorithm   string                `json:"algorithm"`
	Score       float64               `json:"score"`
	Rank        int                   `json:"rank"`
	BatchId     string                `json:"batchId"`
	Reason      Reason                `json:"reason"`
	Breakdown   map[string]float64    `json:"breakdown"`
	Context     RecommendationContext `json:"context"`
	GeneratedAt time.Time             `json:"generatedAt"`
	ExpiresAt   time.Time             `json:"expiresAt"`
	Outcome     Outcome               `json:"outcome"`
}

func (r *RecommendationRecord) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type Response struct {
	Recommendations []*RecommendationRecord `json:"recommendations"`
	Context         RecommendationContext   `json:"context"`
	Timestamp       time.Time               `json:"timestamp"`
	Status          string                  `json:"status"`
}

// Recommender generates ranked and explained recommendations.
type Recommender struct {
	config     *config.Config
	store      *Store
	data       data.Database
	similarity *SimilarityCalculator
	filter     *vm.Program
	clock      func() time.Time
}

func NewRecommender(cfg *config.Config, store *Store, dataClient data.Database, similarity *SimilarityCalculator) (*Recommender, error) {
	r := &Recommender{
		config:     cfg,
		store:      store,
		data:       dataClient,
		similarity: similarity,
		clock:      time.Now,
	}
	if cfg.Recommend.CandidateFilter != "" {
		program, err := expr.Compile(cfg.Recommend.CandidateFilter, expr.Env(data.Restaurant{}))
		if err != nil {
			return nil, errors.Annotate(err, "compile candidate filter")
		}
		if program.Node().Type().Kind() != reflect.Bool {
			return nil, errors.NotValidf("candidate filter %q not returning bool", cfg.Recommend.CandidateFilter)
		}
		r.filter = program
	}
	return r, nil
}

// ValidateRequest rejects malformed requests.
func (r *Recommender) ValidateRequest(req *Request) error {
	if req.UserId == "" {
		return errors.NotValidf("empty user id")
	}
	if loc := req.Location; loc != nil {
		if math.IsNaN(loc.Lat) || loc.Lat < -90 || loc.Lat > 90 {
			return errors.NotValidf("latitude %v", loc.Lat)
		}
		if math.IsNaN(loc.Lng) || loc.Lng < -180 || loc.Lng > 180 {
			return errors.NotValidf("longitude %v", loc.Lng)
		}
	}
	if req.Companion != "" && !lo.Contains(Companions, req.Companion) {
		return errors.NotValidf("companion %s", req.Companion)
	}
	if req.MealTime != "" && !lo.Contains(MealTimes, req.MealTime) {
		return errors.NotValidf("meal time %s", req.MealTime)
	}
	if req.Budget < 0 {
		return errors.NotValidf("budget %d", req.Budget)
	}
	if req.N < 0 || req.N > r.config.Server.MaxN {
		return errors.NotValidf("limit %d", req.N)
	}
	if req.Algorithm != "" && req.Algorithm != AlgorithmAuto {
		if _, ok := r.config.Recommend.Algorithms[req.Algorithm]; !ok {
			return errors.NotValidf("algorithm %s", req.Algorithm)
		}
	}
	return nil
}

// scoringProfile is everything known about the requesting user.
type scoringProfile struct {
	user       data.User
	vector     *TasteVector
	preference *UserPreference
	useVector  bool
	neighbors  []Neighbor
	followed   mapset.Set[string]
}

// candidateSignals are the signals shared by every candidate.
type candidateSignals struct {
	activity     map[string]int
	maxActivity  int
	neighborHits map[string][]neighborRating
	friendLikes  map[string]mapset.Set[string]
}

type neighborRating struct {
	similarity float64
	rating     float64
}

// scoredCandidate is a candidate with component scores.
type scoredCandidate struct {
	item       data.Restaurant
	components map[string]float64
	algorithm  string
	score      float64
	weights    config.ComponentWeights
}

// Generate runs the recommendation pipeline for a request.
func (r *Recommender) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.ValidateRequest(&req); err != nil {
		return nil, err
	}
	now := r.clock()
	if req.Time.IsZero() {
		req.Time = now
	}
	if req.N == 0 {
		req.N = r.config.Server.DefaultN
	}
	ctx, span := tracer.Start(ctx, "Generate", trace.WithAttributes(
		attribute.String("user_id", req.UserId),
		attribute.String("algorithm", req.Algorithm)))
	defer span.End()

	profile, err := r.loadProfile(ctx, req.UserId, now)
	if errors.Is(err, errors.NotFound) {
		return r.generatePopular(ctx, req, now)
	} else if err != nil {
		return nil, err
	}
	candidates, err := r.loadCandidates(ctx, profile.preference)
	if err != nil {
		return nil, err
	}
	response := &Response{Context: req.RecommendationContext, Timestamp: now, Status: StatusOK}
	if len(candidates) == 0 {
		response.Status = StatusEmpty
		response.Recommendations = []*RecommendationRecord{}
		return response, nil
	}
	signals, err := r.loadSignals(ctx, profile, now)
	if err != nil {
		return nil, err
	}
	algorithms, err := r.selectAlgorithms(ctx, req)
	if err != nil {
		return nil, err
	}
	_, scoreSpan := tracer.Start(ctx, "Score", trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	best := make(map[string]*scoredCandidate)
	for _, item := range candidates {
		components := r.scoreComponents(item, req, profile, signals)
		for _, name := range algorithms {
			algorithm := r.config.Recommend.Algorithms[name]
			score, ok := profileScore(algorithm, components)
			if !ok {
				continue
			}
			if current, exists := best[item.RestaurantId]; !exists || score > current.score {
				best[item.RestaurantId] = &scoredCandidate{
					item:       item,
					components: components,
					algorithm:  name,
					score:      score,
					weights:    algorithm.Weights,
				}
			}
		}
	}
	scoreSpan.End()
	response.Recommendations = r.rank(req, lo.Values(best), signals, now)
	if len(response.Recommendations) == 0 {
		response.Status = StatusEmpty
	}
	if err = r.persist(ctx, response.Recommendations); err != nil {
		return nil, err
	}
	return response, nil
}

func (r *Recommender) loadProfile(ctx context.Context, userId string, now time.Time) (*scoringProfile, error) {
	user, err := r.data.GetUser(ctx, userId)
	cataloged := err == nil
	if errors.Is(err, errors.NotFound) {
		user = data.User{UserId: userId}
	} else if err != nil {
		return nil, err
	}
	profile := &scoringProfile{user: user}
	profile.vector, err = r.store.GetTasteVector(ctx, userId)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	profile.preference, err = r.store.GetPreference(ctx, userId)
	if errors.Is(err, errors.NotFound) {
		// users unknown to both the catalog and the engine are strangers
		if !cataloged && profile.vector == nil {
			return nil, errors.Annotate(data.ErrUserNotExist, userId)
		}
		profile.preference = NewUserPreference(userId, now)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	profile.useVector = profile.vector != nil &&
		profile.vector.UpdateCount > 0 &&
		profile.vector.AverageConfidence() >= r.config.Recommend.MinVectorConfidence
	if r.config.Recommend.Neighbors > 0 && r.similarity != nil {
		profile.neighbors, err = r.similarity.TopSimilar(ctx, userId, r.config.Recommend.Neighbors, now)
		if err != nil {
			return nil, err
		}
	}
	profile.followed = mapset.NewThreadUnsafeSet(user.Following...)
	profile.followed.Append(profile.preference.FollowedIds()...)
	profile.followed.Remove(userId)
	return profile, nil
}

// loadCandidates scans the catalog and drops restaurants the user must not see.
func (r *Recommender) loadCandidates(ctx context.Context, preference *UserPreference) ([]data.Restaurant, error) {
	_, span := tracer.Start(ctx, "LoadCandidates")
	defer span.End()
	var (
		candidates []data.Restaurant
		cursor     string
	)
	const pageSize = 256
	for {
		next, restaurants, err := r.data.GetRestaurants(ctx, cursor, pageSize)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, item := range restaurants {
			if item.IsClosed {
				continue
			}
			if preference != nil && (preference.IsBlocked(item.RestaurantId) ||
				preference.IsDisliked(item.RestaurantId) ||
				preference.IsAvoidedCuisine(item.Cuisine)) {
				continue
			}
			if r.filter != nil {
				result, err := expr.Run(r.filter, item)
				if err != nil {
					log.Logger().Error("evaluate candidate filter", zap.String("restaurant_id", item.RestaurantId), zap.Error(err))
					continue
				}
				if !result.(bool) {
					continue
				}
			}
			candidates = append(candidates, item)
			if len(candidates) >= r.config.Recommend.MaxCandidates {
				return candidates, nil
			}
		}
		if next == "" {
			return candidates, nil
		}
		cursor = next
	}
}

func (r *Recommender) loadSignals(ctx context.Context, profile *scoringProfile, now time.Time) (*candidateSignals, error) {
	signals := &candidateSignals{
		neighborHits: make(map[string][]neighborRating),
		friendLikes:  make(map[string]mapset.Set[string]),
	}
	var err error
	signals.activity, err = r.data.CountActivity(ctx, now.Add(-r.config.Recommend.TrendingWindow))
	if err != nil {
		return nil, errors.Trace(err)
	}
	signals.maxActivity = lo.Max(lo.Values(signals.activity))
	if profile == nil {
		return signals, nil
	}
	for _, neighbor := range profile.neighbors {
		if neighbor.Similarity <= 0 {
			continue
		}
		reviews, err := r.data.GetUserReviews(ctx, neighbor.UserId)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, review := range reviews {
			signals.neighborHits[review.RestaurantId] = append(signals.neighborHits[review.RestaurantId],
				neighborRating{similarity: neighbor.Similarity, rating: review.Rating})
		}
	}
	addLike := func(restaurantId, userId string) {
		if signals.friendLikes[restaurantId] == nil {
			signals.friendLikes[restaurantId] = mapset.NewThreadUnsafeSet[string]()
		}
		signals.friendLikes[restaurantId].Add(userId)
	}
	for _, friend := range profile.followed.ToSlice() {
		reviews, err := r.data.GetUserReviews(ctx, friend)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, review := range reviews {
			if review.Rating >= 4 {
				addLike(review.RestaurantId, friend)
			}
		}
		preference, err := r.store.GetPreference(ctx, friend)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, errors.Trace(err)
		}
		for _, liked := range preference.LikedRestaurants {
			addLike(liked.RestaurantId, friend)
		}
	}
	return signals, nil
}

// selectAlgorithms resolves the profiles a request runs.
func (r *Recommender) selectAlgorithms(ctx context.Context, req Request) ([]string, error) {
	enabled := r.config.Recommend.EnabledAlgorithms()
	switch req.Algorithm {
	case "":
		return enabled, nil
	case AlgorithmAuto:
		records, err := r.store.ActivePerformances(ctx)
		if err != nil {
			return nil, err
		}
		best := SelectBestAlgorithm(records, SelectionContext{Segment: req.Segment})
		if best != "" && lo.Contains(enabled, best) {
			return []string{best}, nil
		}
		return enabled, nil
	default:
		return []string{req.Algorithm}, nil
	}
}

// scoreComponents returns available component scores, each in [0, 1].
func (r *Recommender) scoreComponents(item data.Restaurant, req Request, profile *scoringProfile, signals *candidateSignals) map[string]float64 {
	components := make(map[string]float64)
	// collaborative
	if hits := signals.neighborHits[item.RestaurantId]; len(hits) > 0 {
		var weighted, total float64
		for _, hit := range hits {
			weighted += hit.similarity * stats.Clamp((hit.rating-1)/4, 0, 1)
			total += hit.similarity
		}
		if total > 0 {
			components[ComponentCollaborative] = weighted / total
		}
	}
	// content
	if profile.useVector {
		components[ComponentContent] = profile.vector.Score(item, r.config.Taste.CategoryWeights) / 100
	} else {
		components[ComponentContent] = profile.preference.CalculateRecommendationScore(r.config.Preference, item, PreferenceContext{
			MealTime:  req.MealTime,
			Companion: req.Companion,
			LikedBy:   signals.friendLikes[item.RestaurantId],
		}) / 100
	}
	// trending
	if activity := signals.activity[item.RestaurantId]; activity > 0 && signals.maxActivity > 0 {
		components[ComponentTrending] = float64(activity) / float64(signals.maxActivity)
	}
	// location
	if distance, ok := distanceKm(req.Location, item); ok {
		components[ComponentLocation] = 1 / (1 + distance/r.config.Recommend.DistanceDecayKm)
	}
	// social
	if likes := signals.friendLikes[item.RestaurantId]; likes != nil && likes.Cardinality() > 0 {
		components[ComponentSocial] = math.Min(1, float64(likes.Cardinality())/3)
	}
	// context
	if score, ok := contextMatch(item, req.RecommendationContext); ok {
		components[ComponentContext] = score
	}
	return components
}

func distanceKm(location *Location, item data.Restaurant) (float64, bool) {
	if location == nil || (item.Latitude == 0 && item.Longitude == 0) {
		return 0, false
	}
	return stats.Haversine(location.Lat, location.Lng, item.Latitude, item.Longitude), true
}

var moodAtmospheres = map[string][]string{
	"happy":       {"lively", "trendy"},
	"stressed":    {"cozy", "quiet"},
	"tired":       {"cozy", "quiet"},
	"romantic":    {"romantic", "quiet"},
	"adventurous": {"trendy", "lively"},
	"calm":        {"quiet", "cozy"},
	"celebrating": {"lively", "formal"},
}

// contextMatch is the mean of the applicable situational matches.
func contextMatch(item data.Restaurant, c RecommendationContext) (float64, bool) {
	var matches []float64
	match := func(ok bool) {
		matches = append(matches, lo.Ternary(ok, 1.0, 0.0))
	}
	if c.MealTime != "" {
		match(containsFold(item.MealTimes, c.MealTime))
	}
	if c.Companion != "" {
		match(containsFold(item.GoodFor, c.Companion))
	}
	if tags, ok := moodAtmospheres[strings.ToLower(c.Mood)]; ok {
		match(lo.SomeBy(tags, func(tag string) bool { return containsFold(item.AtmosphereTags, tag) }))
	}
	switch strings.ToLower(c.Weather) {
	case "rain", "rainy", "snow", "snowy":
		match(containsFold(item.AtmosphereTags, "cozy") || containsFold(item.AtmosphereTags, "quiet"))
	}
	if c.Budget > 0 && item.PriceLevel > 0 {
		match(item.PriceLevel <= c.Budget)
	}
	if len(matches) == 0 {
		return 0, false
	}
	return stats.Mean(matches), true
}

// profileScore is the weighted mean over available components. A profile
// skips items missing its required component.
func profileScore(algorithm config.AlgorithmConfig, components map[string]float64) (float64, bool) {
	if algorithm.Requires != "" {
		if _, ok := components[algorithm.Requires]; !ok {
			return 0, false
		}
	}
	var weighted, total float64
	for _, name := range componentNames {
		score, ok := components[name]
		w := componentWeight(algorithm.Weights, name)
		if !ok || w <= 0 {
			continue
		}
		weighted += w * score
		total += w
	}
	if total <= 0 {
		return 0, false
	}
	return stats.Clamp(weighted/total, 0, 1), true
}

func componentWeight(weights config.ComponentWeights, name string) float64 {
	switch name {
	case ComponentCollaborative:
		return weights.Collaborative
	case ComponentContent:
		return weights.Content
	case ComponentTrending:
		return weights.Trending
	case ComponentLocation:
		return weights.Location
	case ComponentSocial:
		return weights.Social
	case ComponentContext:
		return weights.Context
	}
	return 0
}

// contributions are the weighted shares of available components.
func contributions(weights config.ComponentWeights, components map[string]float64) map[string]float64 {
	var total float64
	for _, name := range componentNames {
		if _, ok := components[name]; ok {
			total += componentWeight(weights, name)
		}
	}
	result := make(map[string]float64)
	if total <= 0 {
		return result
	}
	for name, score := range components {
		if w := componentWeight(weights, name); w > 0 {
			result[name] = w * score / total
		}
	}
	return result
}

// rank orders candidates by score, then popularity, then id, and builds records.
func (r *Recommender) rank(req Request, candidates []*scoredCandidate, signals *candidateSignals, now time.Time) []*RecommendationRecord {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		ai, aj := signals.activity[candidates[i].item.RestaurantId], signals.activity[candidates[j].item.RestaurantId]
		if ai != aj {
			return ai > aj
		}
		return candidates[i].item.RestaurantId < candidates[j].item.RestaurantId
	})
	if len(candidates) > req.N {
		candidates = candidates[:req.N]
	}
	batchId := uuid.NewString()
	records := make([]*RecommendationRecord, len(candidates))
	for i, candidate := range candidates {
		records[i] = &RecommendationRecord{
			Id:          uuid.NewString(),
			UserId:      req.UserId,
			TargetId:    candidate.item.RestaurantId,
			TargetType:  TargetRestaurant,
			Algorithm:   candidate.algorithm,
			Score:       candidate.score,
			Rank:        i + 1,
			BatchId:     batchId,
			Reason:      r.reason(candidate),
			Breakdown:   candidate.components,
			Context:     req.RecommendationContext,
			GeneratedAt: now,
			ExpiresAt:   now.Add(r.config.Recommend.Expire),
		}
	}
	return records
}

var reasonSentences = map[string]string{
	ComponentCollaborative: "Users with similar taste rated it highly",
	ComponentContent:       "Matches your taste",
	ComponentTrending:      "Popular right now",
	ComponentLocation:      "Close to you",
	ComponentSocial:        "Liked by people you follow",
	ComponentContext:       "Fits your plans",
}

func (r *Recommender) reason(candidate *scoredCandidate) Reason {
	shares := contributions(candidate.weights, candidate.components)
	names := lo.Keys(shares)
	sort.Slice(names, func(i, j int) bool {
		if shares[names[i]] != shares[names[j]] {
			return shares[names[i]] > shares[names[j]]
		}
		return names[i] < names[j]
	})
	var reason Reason
	if len(names) > 0 {
		reason.Primary = reasonSentences[names[0]]
		for _, name := range names[1:] {
			if shares[name] >= r.config.Recommend.SecondaryReasonThreshold {
				reason.Secondary = append(reason.Secondary, reasonSentences[name])
			}
		}
	}
	item := candidate.item
	if item.Cuisine != "" {
		reason.Tags = append(reason.Tags, strings.ToLower(item.Cuisine))
	}
	if item.PriceLevel > 0 {
		reason.Tags = append(reason.Tags, fmt.Sprintf("price_%d", item.PriceLevel))
	}
	reason.Tags = append(reason.Tags, item.AtmosphereTags...)
	if score, ok := candidate.components[ComponentLocation]; ok && score >= 0.5 {
		reason.Tags = append(reason.Tags, "nearby")
	}
	if _, ok := candidate.components[ComponentSocial]; ok {
		reason.Tags = append(reason.Tags, "friends_liked")
	}
	return reason
}

// persist saves a batch unless the generation was cancelled.
func (r *Recommender) persist(ctx context.Context, records []*RecommendationRecord) error {
	if err := ctx.Err(); err != nil {
		return errors.Annotate(err, "discard recommendations")
	}
	_, span := tracer.Start(ctx, "Persist", trace.WithAttributes(attribute.Int("records", len(records))))
	defer span.End()
	return r.store.PutRecommendations(ctx, records)
}

// generatePopular ranks candidates by popularity for users unknown to the catalog.
func (r *Recommender) generatePopular(ctx context.Context, req Request, now time.Time) (*Response, error) {
	preference, err := r.store.GetPreference(ctx, req.UserId)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	candidates, err := r.loadCandidates(ctx, preference)
	if err != nil {
		return nil, err
	}
	response := &Response{Context: req.RecommendationContext, Timestamp: now, Status: StatusFallbackPopular}
	if len(candidates) == 0 {
		response.Status = StatusEmpty
		response.Recommendations = []*RecommendationRecord{}
		return response, nil
	}
	signals, err := r.loadSignals(ctx, nil, now)
	if err != nil {
		return nil, err
	}
	weights := config.ComponentWeights{Trending: 1}
	scored := lo.Map(candidates, func(item data.Restaurant, _ int) *scoredCandidate {
		components := map[string]float64{ComponentTrending: 0}
		if signals.maxActivity > 0 {
			components[ComponentTrending] = float64(signals.activity[item.RestaurantId]) / float64(signals.maxActivity)
		}
		return &scoredCandidate{
			item:       item,
			components: components,
			algorithm:  AlgorithmPopular,
			score:      components[ComponentTrending],
			weights:    weights,
		}
	})
	response.Recommendations = r.rank(req, scored, signals, now)
	if err = r.persist(ctx, response.Recommendations); err != nil {
		return nil, err
	}
	return response, nil
}
