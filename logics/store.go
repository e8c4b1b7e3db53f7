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
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/samber/lo"
)

// Store persists engine records as JSON documents in the cache database.
type Store struct {
	cache cache.Database
}

func NewStore(cacheClient cache.Database) *Store {
	return &Store{cache: cacheClient}
}

func (s *Store) Cache() cache.Database {
	return s.cache
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	return s.cache.Get(ctx, key).Unmarshal(v)
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	value, err := cache.JSON(key, v)
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.cache.Set(ctx, value))
}

func (s *Store) GetTasteVector(ctx context.Context, userId string) (*TasteVector, error) {
	var v TasteVector
	if err := s.get(ctx, cache.Key(cache.TasteVector, userId), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *Store) PutTasteVector(ctx context.Context, v *TasteVector) error {
	return s.put(ctx, cache.Key(cache.TasteVector, v.UserId), v)
}

func (s *Store) GetPreference(ctx context.Context, userId string) (*UserPreference, error) {
	var p UserPreference
	if err := s.get(ctx, cache.Key(cache.UserPreference, userId), &p); err != nil {
		return nil, err
	}
	p.ensureMaps()
	return &p, nil
}

func (s *Store) PutPreference(ctx context.Context, p *UserPreference) error {
	return s.put(ctx, cache.Key(cache.UserPreference, p.UserId), p)
}

// GetSimilarity loads the entry of a pair in either order.
func (s *Store) GetSimilarity(ctx context.Context, a, b string) (*UserSimilarity, error) {
	a, b = OrderedPair(a, b)
	var entry UserSimilarity
	if err := s.get(ctx, cache.Key(cache.UserSimilarity, a, b), &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// PutSimilarity normalizes and saves an entry, then indexes both users as
// neighbors of each other.
func (s *Store) PutSimilarity(ctx context.Context, entry *UserSimilarity) error {
	if err := s.UpdateSimilarity(ctx, entry); err != nil {
		return err
	}
	if err := s.cache.AddSet(ctx, cache.Key(cache.UserPairs, entry.UserA), entry.UserB); err != nil {
		return errors.Trace(err)
	}
	if err := s.cache.AddSet(ctx, cache.Key(cache.UserPairs, entry.UserB), entry.UserA); err != nil {
		return errors.Trace(err)
	}
	if err := s.cache.AddScores(ctx, cache.UserNeighbors, entry.UserA, []cache.Score{{Id: entry.UserB, Score: entry.Overall}}); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(s.cache.AddScores(ctx, cache.UserNeighbors, entry.UserB, []cache.Score{{Id: entry.UserA, Score: entry.Overall}}))
}

// UpdateSimilarity saves an entry without touching the neighbor index.
func (s *Store) UpdateSimilarity(ctx context.Context, entry *UserSimilarity) error {
	entry.NormalizePair()
	return s.put(ctx, cache.Key(cache.UserSimilarity, entry.UserA, entry.UserB), entry)
}

// Pairs returns every user a pair entry was ever written with. Unlike the
// neighbor index it is never trimmed.
func (s *Store) Pairs(ctx context.Context, userId string) ([]string, error) {
	members, err := s.cache.GetSet(ctx, cache.Key(cache.UserPairs, userId))
	return members, errors.Trace(err)
}

// Neighbors returns indexed neighbors of a user by descending similarity.
func (s *Store) Neighbors(ctx context.Context, userId string, offset, n int) ([]cache.Score, error) {
	scores, err := s.cache.SearchScores(ctx, cache.UserNeighbors, userId, offset, n)
	return scores, errors.Trace(err)
}

// TrimNeighbors keeps the n most similar neighbors in the index of a user.
func (s *Store) TrimNeighbors(ctx context.Context, userId string, n int) error {
	overflow, err := s.cache.SearchScores(ctx, cache.UserNeighbors, userId, n, -1)
	if err != nil {
		return errors.Trace(err)
	}
	if len(overflow) == 0 {
		return nil
	}
	ids := lo.Map(overflow, func(score cache.Score, _ int) string { return score.Id })
	return errors.Trace(s.cache.DeleteScores(ctx, cache.UserNeighbors, userId, ids...))
}

func (s *Store) GetRecommendation(ctx context.Context, id string) (*RecommendationRecord, error) {
	var record RecommendationRecord
	if err := s.get(ctx, cache.Key(cache.Recommendation, id), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) PutRecommendation(ctx context.Context, record *RecommendationRecord) error {
	return s.put(ctx, cache.Key(cache.Recommendation, record.Id), record)
}

// PutRecommendations saves a batch and indexes it by expiry.
func (s *Store) PutRecommendations(ctx context.Context, records []*RecommendationRecord) error {
	if len(records) == 0 {
		return nil
	}
	values := make([]cache.Value, 0, len(records))
	for _, record := range records {
		value, err := cache.JSON(cache.Key(cache.Recommendation, record.Id), record)
		if err != nil {
			return errors.Trace(err)
		}
		values = append(values, value)
	}
	if err := s.cache.Set(ctx, values...); err != nil {
		return errors.Trace(err)
	}
	groups := lo.GroupBy(records, func(record *RecommendationRecord) string { return record.UserId })
	for userId, group := range groups {
		scores := lo.Map(group, func(record *RecommendationRecord, _ int) cache.Score {
			return cache.Score{Id: record.Id, Score: float64(record.ExpiresAt.Unix())}
		})
		if err := s.cache.AddScores(ctx, cache.UserRecommendations, userId, scores); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ActiveRecommendations returns unexpired records of a user, newest batch
// first and by rank within a batch.
func (s *Store) ActiveRecommendations(ctx context.Context, userId string, now time.Time) ([]*RecommendationRecord, error) {
	records, err := s.indexedRecommendations(ctx, userId, func(expiresAt float64) bool {
		return expiresAt > float64(now.Unix())
	})
	if err != nil {
		return nil, err
	}
	records = lo.Filter(records, func(record *RecommendationRecord, _ int) bool { return !record.IsExpired(now) })
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].GeneratedAt.Equal(records[j].GeneratedAt) {
			return records[i].GeneratedAt.After(records[j].GeneratedAt)
		}
		return records[i].Rank < records[j].Rank
	})
	return records, nil
}

// ExpiredRecommendations returns records of a user expired in (since, until].
func (s *Store) ExpiredRecommendations(ctx context.Context, userId string, since, until time.Time) ([]*RecommendationRecord, error) {
	return s.indexedRecommendations(ctx, userId, func(expiresAt float64) bool {
		return expiresAt > float64(since.Unix()) && expiresAt <= float64(until.Unix())
	})
}

func (s *Store) indexedRecommendations(ctx context.Context, userId string, match func(expiresAt float64) bool) ([]*RecommendationRecord, error) {
	scores, err := s.cache.SearchScores(ctx, cache.UserRecommendations, userId, 0, -1)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var records []*RecommendationRecord
	for _, score := range scores {
		if !match(score.Score) {
			continue
		}
		record, err := s.GetRecommendation(ctx, score.Id)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// PruneRecommendations deletes records of a user expired at or before a
// moment, together with their index entries.
func (s *Store) PruneRecommendations(ctx context.Context, userId string, before time.Time) (int, error) {
	scores, err := s.cache.SearchScores(ctx, cache.UserRecommendations, userId, 0, -1)
	if err != nil {
		return 0, errors.Trace(err)
	}
	expired := lo.FilterMap(scores, func(score cache.Score, _ int) (string, bool) {
		return score.Id, score.Score <= float64(before.Unix())
	})
	if len(expired) == 0 {
		return 0, nil
	}
	names := lo.Map(expired, func(id string, _ int) string { return cache.Key(cache.Recommendation, id) })
	if err = s.cache.Delete(ctx, names...); err != nil {
		return 0, errors.Trace(err)
	}
	if err = s.cache.DeleteScores(ctx, cache.UserRecommendations, userId, expired...); err != nil {
		return 0, errors.Trace(err)
	}
	return len(expired), nil
}

func (s *Store) GetPerformance(ctx context.Context, algorithm string) (*AlgorithmPerformance, error) {
	var p AlgorithmPerformance
	if err := s.get(ctx, cache.Key(cache.AlgorithmPerformance, algorithm), &p); err != nil {
		return nil, err
	}
	p.ensureMaps()
	return &p, nil
}

// PutPerformance saves a record and keeps the set of active algorithms.
func (s *Store) PutPerformance(ctx context.Context, p *AlgorithmPerformance) error {
	if err := s.put(ctx, cache.Key(cache.AlgorithmPerformance, p.Algorithm), p); err != nil {
		return err
	}
	if p.Active {
		return errors.Trace(s.cache.AddSet(ctx, cache.ActiveAlgorithms, p.Algorithm))
	}
	return errors.Trace(s.cache.RemSet(ctx, cache.ActiveAlgorithms, p.Algorithm))
}

// ActivePerformances loads records of active algorithms.
func (s *Store) ActivePerformances(ctx context.Context) ([]*AlgorithmPerformance, error) {
	names, err := s.cache.GetSet(ctx, cache.ActiveAlgorithms)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return s.Performances(ctx, names)
}

// Performances loads records by name and skips missing ones.
func (s *Store) Performances(ctx context.Context, names []string) ([]*AlgorithmPerformance, error) {
	records := make([]*AlgorithmPerformance, 0, len(names))
	for _, name := range names {
		p, err := s.GetPerformance(ctx, name)
		if errors.Is(err, errors.NotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}
