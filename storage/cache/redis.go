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

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

// Redis cache storage. Values are strings, sets are Redis sets and sorted
// sets are Redis sorted sets keyed by collection and subset.
type Redis struct {
	storage.TablePrefix
	client *redis.Client
}

// Close redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Init nothing.
func (r *Redis) Init() error {
	return nil
}

func (r *Redis) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

// Purge removes every key owned by this store.
func (r *Redis) Purge() error {
	ctx := context.Background()
	for _, table := range []string{r.ValuesTable(), r.SetsTable(), r.SortedSetsTable()} {
		iter := r.client.Scan(ctx, 0, table+"/*", 0).Iterator()
		for iter.Next(ctx) {
			if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
				return errors.Trace(err)
			}
		}
		if err := iter.Err(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (r *Redis) valueKey(name string) string {
	return r.ValuesTable() + "/" + name
}

func (r *Redis) setKey(name string) string {
	return r.SetsTable() + "/" + name
}

func (r *Redis) sortedKey(collection, subset string) string {
	return Key(r.SortedSetsTable(), collection, subset)
}

func (r *Redis) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	p := r.client.Pipeline()
	for _, v := range values {
		p.Set(ctx, r.valueKey(v.name), v.value, 0)
	}
	_, err := p.Exec(ctx)
	return errors.Trace(err)
}

// Get returns a value from Redis.
func (r *Redis) Get(ctx context.Context, name string) *ReturnValue {
	val, err := r.client.Get(ctx, r.valueKey(name)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
		}
		return &ReturnValue{err: errors.Trace(err)}
	}
	return &ReturnValue{value: val}
}

func (r *Redis) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	return errors.Trace(r.client.Del(ctx, lo.Map(names, func(name string, _ int) string {
		return r.valueKey(name)
	})...).Err())
}

func (r *Redis) GetSet(ctx context.Context, key string) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.setKey(key)).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	sort.Strings(members)
	return members, nil
}

func (r *Redis) AddSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return errors.Trace(r.client.SAdd(ctx, r.setKey(key), lo.ToAnySlice(members)...).Err())
}

func (r *Redis) RemSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return errors.Trace(r.client.SRem(ctx, r.setKey(key), lo.ToAnySlice(members)...).Err())
}

func (r *Redis) AddScores(ctx context.Context, collection, subset string, scores []Score) error {
	if len(scores) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, r.sortedKey(collection, subset), lo.Map(scores, func(s Score, _ int) redis.Z {
			return redis.Z{Member: s.Id, Score: s.Score}
		})...)
		return nil
	})
	return errors.Trace(err)
}

func (r *Redis) SearchScores(ctx context.Context, collection, subset string, offset, n int) ([]Score, error) {
	stop := int64(-1)
	if n >= 0 {
		stop = int64(offset + n - 1)
		if n == 0 {
			return []Score{}, nil
		}
	}
	members, err := r.client.ZRevRangeWithScores(ctx, r.sortedKey(collection, subset), int64(offset), stop).Result()
	if err != nil {
		return nil, errors.Trace(err)
	}
	scores := lo.Map(members, func(z redis.Z, _ int) Score {
		return Score{Id: z.Member.(string), Score: z.Score}
	})
	// Redis breaks ties by descending member; keep ascending id like other stores.
	sortScores(scores)
	return scores, nil
}

func (r *Redis) DeleteScores(ctx context.Context, collection, subset string, ids ...string) error {
	key := r.sortedKey(collection, subset)
	if len(ids) == 0 {
		return errors.Trace(r.client.Del(ctx, key).Err())
	}
	return errors.Trace(r.client.ZRem(ctx, key, lo.ToAnySlice(ids)...).Err())
}
