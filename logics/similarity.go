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
	"slices"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/common/parallel"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type SimilarityComponent struct {
	Score     float64 `json:"score"`
	Weight    float64 `json:"weight"`
	Available bool    `json:"available"`
}

type TasteComponent struct {
	SimilarityComponent
	PerCategory map[string]float64 `json:"perCategory,omitempty"`
}

type BehavioralComponent struct {
	SimilarityComponent
	SharedBehaviors []string           `json:"sharedBehaviors,omitempty"`
	PerBehavior     map[string]float64 `json:"perBehavior,omitempty"`
}

type RatingComponent struct {
	SimilarityComponent
	CommonItems int     `json:"commonItems"`
	Coefficient float64 `json:"coefficient"`
}

type SocialComponent struct {
	SimilarityComponent
	CommonConnections int `json:"commonConnections"`
	TotalConnections  int `json:"totalConnections"`
}

type DemographicComponent struct {
	SimilarityComponent
	Age      *float64 `json:"age,omitempty"`
	Location *float64 `json:"location,omitempty"`
}

type SimilarityComponents struct {
	Taste       TasteComponent       `json:"taste"`
	Behavioral  BehavioralComponent  `json:"behavioral"`
	Rating      RatingComponent      `json:"rating"`
	Social      SocialComponent      `json:"social"`
	Demographic DemographicComponent `json:"demographic"`
}

func (c *SimilarityComponents) all() []*SimilarityComponent {
	return []*SimilarityComponent{
		&c.Taste.SimilarityComponent,
		&c.Behavioral.SimilarityComponent,
		&c.Rating.SimilarityComponent,
		&c.Social.SimilarityComponent,
		&c.Demographic.SimilarityComponent,
	}
}

// ExchangeStats counts recommendations passed from one user to the other.
type ExchangeStats struct {
	Sent           int     `json:"sent"`
	Accepted       int     `json:"accepted"`
	AcceptanceRate float64 `json:"acceptanceRate"`
}

type Exchange struct {
	AToB ExchangeStats `json:"aToB"`
	BToA ExchangeStats `json:"bToA"`
}

type Match struct {
	DiningCompatibility float64  `json:"diningCompatibility"`
	Exchange            Exchange `json:"exchange"`
}

type CacheInfo struct {
	ComputedAt time.Time `json:"computedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Valid      bool      `json:"valid"`
}

// IsStale reports whether the entry has to be recomputed.
func (c CacheInfo) IsStale(now time.Time) bool {
	return !c.Valid || !now.Before(c.ExpiresAt)
}

// UserSimilarity is the similarity of an unordered pair of users. UserA is
// always lexicographically smaller than UserB.
type UserSimilarity struct {
	UserA      string               `json:"userA"`
	UserB      string               `json:"userB"`
	Components SimilarityComponents `json:"components"`
	Overall    float64              `json:"overall"`
	Confidence float64              `json:"confidence"`
	Match      *Match               `json:"match,omitempty"`
	Cache      CacheInfo            `json:"cache"`
}

// OrderedPair returns the pair in lexicographic order.
func OrderedPair(a, b string) (string, string) {
	if a > b {
		return b, a
	}
	return a, b
}

// NormalizePair restores the pair order and swaps per-direction data with it.
func (s *UserSimilarity) NormalizePair() {
	if s.UserA <= s.UserB {
		return
	}
	s.UserA, s.UserB = s.UserB, s.UserA
	if s.Match != nil {
		s.Match.Exchange.AToB, s.Match.Exchange.BToA = s.Match.Exchange.BToA, s.Match.Exchange.AToB
	}
}

// Other returns the user paired with userId.
func (s *UserSimilarity) Other(userId string) string {
	if s.UserA == userId {
		return s.UserB
	}
	return s.UserA
}

// Neighbor is a similar user.
type Neighbor struct {
	UserId     string  `json:"userId"`
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// similarityProfile is everything loaded about a user to compare pairs.
type similarityProfile struct {
	user         data.User
	vector       *TasteVector
	interactions []data.Interaction
	ratings      map[string]float64
	exists       bool
}

type SimilarityCalculator struct {
	config *config.Config
	store  *Store
	data   data.Database
	locks  *parallel.KeyedMutex
}

func NewSimilarityCalculator(cfg *config.Config, store *Store, dataClient data.Database, locks *parallel.KeyedMutex) *SimilarityCalculator {
	if locks == nil {
		locks = parallel.NewKeyedMutex()
	}
	return &SimilarityCalculator{config: cfg, store: store, data: dataClient, locks: locks}
}

func (c *SimilarityCalculator) loadProfile(ctx context.Context, userId string, now time.Time) (*similarityProfile, error) {
	profile := &similarityProfile{user: data.User{UserId: userId}}
	user, err := c.data.GetUser(ctx, userId)
	if err == nil {
		profile.user = user
		profile.exists = true
	} else if !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	profile.vector, err = c.store.GetTasteVector(ctx, userId)
	if err == nil {
		profile.exists = true
	} else if !errors.Is(err, errors.NotFound) {
		return nil, errors.Trace(err)
	}
	if !profile.exists {
		return nil, errors.Annotate(data.ErrUserNotExist, userId)
	}
	profile.interactions, err = c.data.GetUserInteractions(ctx, userId, now.Add(-c.config.Similarity.BehaviorWindow))
	if err != nil {
		return nil, errors.Trace(err)
	}
	reviews, err := c.data.GetUserReviews(ctx, userId)
	if err != nil {
		return nil, errors.Trace(err)
	}
	// the latest review of a restaurant wins
	sort.SliceStable(reviews, func(i, j int) bool { return reviews[i].Timestamp.Before(reviews[j].Timestamp) })
	profile.ratings = make(map[string]float64, len(reviews))
	for _, review := range reviews {
		profile.ratings[review.RestaurantId] = review.Rating
	}
	return profile, nil
}

// Calculate computes the similarity of two users.
func (c *SimilarityCalculator) Calculate(ctx context.Context, a, b string, now time.Time) (*UserSimilarity, error) {
	if a == "" || b == "" || a == b {
		return nil, errors.NotValidf("user pair %s/%s", a, b)
	}
	a, b = OrderedPair(a, b)
	profileA, err := c.loadProfile(ctx, a, now)
	if err != nil {
		return nil, err
	}
	profileB, err := c.loadProfile(ctx, b, now)
	if err != nil {
		return nil, err
	}
	return c.compare(profileA, profileB, now), nil
}

func (c *SimilarityCalculator) compare(a, b *similarityProfile, now time.Time) *UserSimilarity {
	weights := c.config.Similarity.Weights
	entry := &UserSimilarity{UserA: a.user.UserId, UserB: b.user.UserId}
	components := &entry.Components
	components.Taste = tasteSimilarity(a.vector, b.vector, c.config.Taste.CategoryWeights)
	components.Taste.Weight = weights.Taste
	components.Behavioral = behavioralSimilarity(a.interactions, b.interactions)
	components.Behavioral.Weight = weights.Behavioral
	components.Rating = ratingSimilarity(a.ratings, b.ratings, c.config.Similarity.MinCommonItems)
	components.Rating.Weight = weights.Rating
	components.Social = socialSimilarity(a.user, b.user)
	components.Social.Weight = weights.Social
	components.Demographic = demographicSimilarity(a.user, b.user)
	components.Demographic.Weight = weights.Demographic

	var weighted, availableWeight float64
	for _, component := range components.all() {
		if component.Available {
			weighted += component.Weight * component.Score
			availableWeight += component.Weight
		}
	}
	if availableWeight > 0 {
		entry.Overall = stats.Clamp(weighted/availableWeight, 0, 1)
	}
	if totalWeight := weights.Sum(); totalWeight > 0 {
		common := float64(components.Rating.CommonItems)
		entry.Confidence = 0.5*(availableWeight/totalWeight) +
			0.5*math.Min(1, common/float64(c.config.Similarity.ConfidenceItems))
	}
	if components.Taste.Available {
		entry.Match = &Match{DiningCompatibility: stats.Mean([]float64{
			components.Taste.PerCategory[CategoryAtmosphere],
			components.Taste.PerCategory[CategoryPrice],
			components.Taste.PerCategory[CategoryTimeOfDay],
			components.Taste.PerCategory[CategoryContext],
		})}
	}
	entry.Cache = CacheInfo{ComputedAt: now, ExpiresAt: now.Add(c.config.Similarity.TTL), Valid: true}
	return entry
}

func tasteSimilarity(a, b *TasteVector, weights config.CategoryWeights) TasteComponent {
	if a == nil || b == nil {
		return TasteComponent{}
	}
	return TasteComponent{
		SimilarityComponent: SimilarityComponent{Score: a.Similarity(b, weights), Available: true},
		PerCategory:         a.CategorySimilarity(b),
	}
}

type behaviorSummary struct {
	frequency     float64
	interestScore float64
}

func summarizeBehaviors(interactions []data.Interaction) map[string]behaviorSummary {
	groups := lo.GroupBy(interactions, func(i data.Interaction) string { return i.Type })
	return lo.MapValues(groups, func(group []data.Interaction, _ string) behaviorSummary {
		return behaviorSummary{
			frequency: float64(len(group)),
			interestScore: stats.Mean(lo.Map(group, func(i data.Interaction, _ int) float64 {
				return stats.Clamp(i.InterestScore, 0, 1)
			})),
		}
	})
}

func behavioralSimilarity(a, b []data.Interaction) BehavioralComponent {
	var component BehavioralComponent
	if len(a) == 0 || len(b) == 0 {
		return component
	}
	component.Available = true
	summaryA, summaryB := summarizeBehaviors(a), summarizeBehaviors(b)
	shared := lo.Intersect(lo.Keys(summaryA), lo.Keys(summaryB))
	slices.Sort(shared)
	if len(shared) == 0 {
		return component
	}
	component.SharedBehaviors = shared
	component.PerBehavior = make(map[string]float64, len(shared))
	scores := make([]float64, 0, len(shared))
	for _, behavior := range shared {
		sa, sb := summaryA[behavior], summaryB[behavior]
		frequency := 1 - math.Abs(sa.frequency-sb.frequency)/math.Max(sa.frequency, sb.frequency)
		interest := 1 - math.Abs(sa.interestScore-sb.interestScore)
		score := (frequency + interest) / 2
		component.PerBehavior[behavior] = score
		scores = append(scores, score)
	}
	component.Score = stats.Mean(scores)
	return component
}

func ratingSimilarity(a, b map[string]float64, minCommonItems int) RatingComponent {
	common := lo.Intersect(lo.Keys(a), lo.Keys(b))
	slices.Sort(common)
	component := RatingComponent{CommonItems: len(common)}
	if len(common) < minCommonItems {
		return component
	}
	x := lo.Map(common, func(id string, _ int) float64 { return a[id] })
	y := lo.Map(common, func(id string, _ int) float64 { return b[id] })
	component.Coefficient = stats.Pearson(x, y)
	component.Score = component.Coefficient
	component.Available = true
	return component
}

func connections(user data.User) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet(user.Followers...)
	set.Append(user.Following...)
	return set
}

func socialSimilarity(a, b data.User) SocialComponent {
	setA, setB := connections(a), connections(b)
	var component SocialComponent
	component.TotalConnections = setA.Union(setB).Cardinality()
	if component.TotalConnections == 0 {
		return component
	}
	component.CommonConnections = setA.Intersect(setB).Cardinality()
	component.Score = stats.Jaccard(setA, setB)
	component.Available = true
	return component
}

func demographicSimilarity(a, b data.User) DemographicComponent {
	var (
		component DemographicComponent
		scores    []float64
	)
	if a.Age > 0 && b.Age > 0 {
		age := math.Max(0, 1-math.Abs(float64(a.Age-b.Age))/20)
		component.Age = &age
		scores = append(scores, age)
	}
	if a.City != "" && b.City != "" {
		var location float64
		if a.City == b.City {
			location = 0.5
			if a.District != "" && a.District == b.District {
				location = 1
			}
		}
		component.Location = &location
		scores = append(scores, location)
	}
	if len(scores) > 0 {
		component.Score = stats.Mean(scores)
		component.Available = true
	}
	return component
}

func pairKey(a, b string) string {
	a, b = OrderedPair(a, b)
	return "pair/" + a + "/" + b
}

// Get returns a fresh entry of a pair, recomputing it when missing or stale.
// When recomputation fails the stale entry is returned with stale set.
func (c *SimilarityCalculator) Get(ctx context.Context, a, b string, now time.Time) (*UserSimilarity, bool, error) {
	if a == "" || b == "" || a == b {
		return nil, false, errors.NotValidf("user pair %s/%s", a, b)
	}
	a, b = OrderedPair(a, b)
	defer c.locks.Lock(pairKey(a, b))()
	cached, err := c.store.GetSimilarity(ctx, a, b)
	if err != nil && !errors.Is(err, errors.NotFound) {
		return nil, false, errors.Trace(err)
	}
	if cached != nil && !cached.Cache.IsStale(now) {
		return cached, false, nil
	}
	entry, err := c.Calculate(ctx, a, b, now)
	if err == nil {
		if cached != nil && cached.Match != nil {
			if entry.Match == nil {
				entry.Match = &Match{}
			}
			entry.Match.Exchange = cached.Match.Exchange
		}
		err = c.store.PutSimilarity(ctx, entry)
	}
	if err != nil {
		if cached != nil {
			log.Logger().Warn("failed to recompute similarity, use stale entry",
				zap.String("user_a", a), zap.String("user_b", b), zap.Error(err))
			return cached, true, nil
		}
		return nil, false, err
	}
	return entry, false, nil
}

// Invalidate marks every cached pair of a user invalid, including pairs
// trimmed from the neighbor index.
func (c *SimilarityCalculator) Invalidate(ctx context.Context, userId string) error {
	pairs, err := c.store.Pairs(ctx, userId)
	if err != nil {
		return err
	}
	neighbors, err := c.store.Neighbors(ctx, userId, 0, -1)
	if err != nil {
		return err
	}
	for _, neighbor := range neighbors {
		pairs = append(pairs, neighbor.Id)
	}
	for _, other := range lo.Uniq(pairs) {
		if err = c.invalidatePair(ctx, userId, other); err != nil {
			return err
		}
	}
	return nil
}

func (c *SimilarityCalculator) invalidatePair(ctx context.Context, a, b string) error {
	defer c.locks.Lock(pairKey(a, b))()
	entry, err := c.store.GetSimilarity(ctx, a, b)
	if errors.Is(err, errors.NotFound) {
		return nil
	} else if err != nil {
		return errors.Trace(err)
	}
	if !entry.Cache.Valid {
		return nil
	}
	entry.Cache.Valid = false
	return c.store.UpdateSimilarity(ctx, entry)
}

// TopSimilar returns the k most similar users with valid entries.
func (c *SimilarityCalculator) TopSimilar(ctx context.Context, userId string, k int, now time.Time) ([]Neighbor, error) {
	if k <= 0 {
		return []Neighbor{}, nil
	}
	neighbors := make([]Neighbor, 0, k)
	const pageSize = 64
	for offset := 0; len(neighbors) < k; offset += pageSize {
		scores, err := c.store.Neighbors(ctx, userId, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, score := range scores {
			entry, err := c.store.GetSimilarity(ctx, userId, score.Id)
			if errors.Is(err, errors.NotFound) {
				continue
			} else if err != nil {
				return nil, errors.Trace(err)
			}
			if entry.Cache.IsStale(now) {
				continue
			}
			neighbors = append(neighbors, Neighbor{UserId: score.Id, Similarity: entry.Overall, Confidence: entry.Confidence})
			if len(neighbors) == k {
				break
			}
		}
		if len(scores) < pageSize {
			break
		}
	}
	return neighbors, nil
}

// Refresh recomputes the pairs between a user and candidates and trims the
// neighbor index. It returns the number of pairs written.
func (c *SimilarityCalculator) Refresh(ctx context.Context, userId string, candidates []string, now time.Time) (int, error) {
	profile, err := c.loadProfile(ctx, userId, now)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, candidate := range lo.Uniq(candidates) {
		if candidate == userId || candidate == "" {
			continue
		}
		if err = ctx.Err(); err != nil {
			return count, errors.Trace(err)
		}
		other, err := c.loadProfile(ctx, candidate, now)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return count, err
		}
		if err = c.refreshPair(ctx, profile, other, now); err != nil {
			return count, err
		}
		count++
	}
	return count, c.store.TrimNeighbors(ctx, userId, c.config.Similarity.MaxNeighbors)
}

func (c *SimilarityCalculator) refreshPair(ctx context.Context, a, b *similarityProfile, now time.Time) error {
	if a.user.UserId > b.user.UserId {
		a, b = b, a
	}
	defer c.locks.Lock(pairKey(a.user.UserId, b.user.UserId))()
	entry := c.compare(a, b, now)
	cached, err := c.store.GetSimilarity(ctx, a.user.UserId, b.user.UserId)
	if err == nil && cached.Match != nil {
		if entry.Match == nil {
			entry.Match = &Match{}
		}
		entry.Match.Exchange = cached.Match.Exchange
	} else if err != nil && !errors.Is(err, errors.NotFound) {
		return errors.Trace(err)
	}
	return c.store.PutSimilarity(ctx, entry)
}

// RecordExchange counts a recommendation passed from one user to another.
func (c *SimilarityCalculator) RecordExchange(ctx context.Context, from, to string, accepted bool, now time.Time) (*UserSimilarity, error) {
	if _, _, err := c.Get(ctx, from, to, now); err != nil {
		return nil, err
	}
	defer c.locks.Lock(pairKey(from, to))()
	entry, err := c.store.GetSimilarity(ctx, from, to)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if entry.Match == nil {
		entry.Match = &Match{}
	}
	direction := &entry.Match.Exchange.AToB
	if from != entry.UserA {
		direction = &entry.Match.Exchange.BToA
	}
	direction.Sent++
	if accepted {
		direction.Accepted++
	}
	direction.AcceptanceRate = float64(direction.Accepted) / float64(direction.Sent)
	if err = c.store.PutSimilarity(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
