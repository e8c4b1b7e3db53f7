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

package cache

import (
	"context"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
)

// Memory keeps everything in process. It is meant for a single server and tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	sets   map[string]mapset.Set[string]
	scores map[string]map[string]float64
}

func NewMemory() *Memory {
	m := &Memory{}
	m.reset()
	return m
}

func (m *Memory) reset() {
	m.values = make(map[string]string)
	m.sets = make(map[string]mapset.Set[string])
	m.scores = make(map[string]map[string]float64)
}

func (m *Memory) Init() error  { return nil }
func (m *Memory) Ping() error  { return nil }
func (m *Memory) Close() error { return nil }

func (m *Memory) Purge() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset()
	return nil
}

func (m *Memory) Get(_ context.Context, name string) *ReturnValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[name]
	if !ok {
		return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
	}
	return &ReturnValue{value: value}
}

func (m *Memory) Set(_ context.Context, values ...Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		m.values[v.name] = v.value
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		delete(m.values, name)
	}
	return nil
}

func (m *Memory) GetSet(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.sets[key]
	if !ok {
		return nil, nil
	}
	members := set.ToSlice()
	sort.Strings(members)
	return members, nil
}

func (m *Memory) AddSet(_ context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.sets[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		m.sets[key] = set
	}
	set.Append(members...)
	return nil
}

func (m *Memory) RemSet(_ context.Context, key string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.sets[key]; ok {
		set.RemoveAll(members...)
	}
	return nil
}

func (m *Memory) AddScores(_ context.Context, collection, subset string, scores []Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := Key(collection, subset)
	sorted, ok := m.scores[key]
	if !ok {
		sorted = make(map[string]float64)
		m.scores[key] = sorted
	}
	for _, score := range scores {
		sorted[score.Id] = score.Score
	}
	return nil
}

func (m *Memory) SearchScores(_ context.Context, collection, subset string, offset, n int) ([]Score, error) {
	m.mu.RLock()
	sorted := m.scores[Key(collection, subset)]
	scores := lo.MapToSlice(sorted, func(id string, score float64) Score {
		return Score{Id: id, Score: score}
	})
	m.mu.RUnlock()
	sortScores(scores)
	return page(scores, offset, n), nil
}

func (m *Memory) DeleteScores(_ context.Context, collection, subset string, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		delete(m.scores, Key(collection, subset))
		return nil
	}
	if sorted, ok := m.scores[Key(collection, subset)]; ok {
		for _, id := range ids {
			delete(sorted, id)
		}
	}
	return nil
}

// sortScores orders by descending score, then by id.
func sortScores(scores []Score) {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Id < scores[j].Id
	})
}

func page(scores []Score, offset, n int) []Score {
	if offset >= len(scores) {
		return []Score{}
	}
	scores = scores[offset:]
	if n >= 0 && n < len(scores) {
		scores = scores[:n]
	}
	return scores
}
