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
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

var ErrObjectNotExist = errors.NotFoundf("object")

const (
	// TasteVector is the taste vector of a user.
	//  taste_vector/{user_id}
	TasteVector = "taste_vector"
	// UserPreference is the raw preference counters of a user.
	//  user_preference/{user_id}
	UserPreference = "user_preference"
	// UserSimilarity is the similarity entry of an ordered user pair.
	//  user_similarity/{user_a}/{user_b}
	UserSimilarity = "user_similarity"
	// Recommendation is a single recommendation record.
	//  recommendation/{recommendation_id}
	Recommendation = "recommendation"
	// AlgorithmPerformance is the performance record of a scoring algorithm.
	//  algorithm_performance/{algorithm}
	AlgorithmPerformance = "algorithm_performance"

	// UserNeighbors is the sorted set of similar users scored by overall similarity.
	UserNeighbors = "user_neighbors"
	// UserRecommendations is the sorted set of recommendation ids scored by expiry.
	UserRecommendations = "user_recommendations"
	// UserPairs is the set of every user paired with a user, trimmed or not.
	//  user_pairs/{user_id}
	UserPairs = "user_pairs"
	// ActiveAlgorithms is the set of active algorithms.
	ActiveAlgorithms = "active_algorithms"
)

// Key creates key for cache. Empty field will be ignored.
func Key(keys ...string) string {
	if len(keys) == 0 {
		return ""
	}
	var builder strings.Builder
	builder.WriteString(keys[0])
	for _, key := range keys[1:] {
		if key != "" {
			builder.WriteRune('/')
			builder.WriteString(key)
		}
	}
	return builder.String()
}

type Value struct {
	name  string
	value string
}

func String(name, value string) Value {
	return Value{name: name, value: value}
}

func Integer(name string, value int) Value {
	return Value{name: name, value: strconv.Itoa(value)}
}

func Time(name string, value time.Time) Value {
	return Value{name: name, value: value.UTC().Format(time.RFC3339Nano)}
}

// JSON encodes a document as a value.
func JSON(name string, document any) (Value, error) {
	data, err := json.Marshal(document)
	if err != nil {
		return Value{}, errors.Trace(err)
	}
	return Value{name: name, value: string(data)}, nil
}

type ReturnValue struct {
	value string
	err   error
}

func (r *ReturnValue) String() (string, error) {
	return r.value, r.err
}

func (r *ReturnValue) Integer() (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	return strconv.Atoi(r.value)
}

func (r *ReturnValue) Time() (time.Time, error) {
	if r.err != nil {
		return time.Time{}, r.err
	}
	t, err := time.Parse(time.RFC3339Nano, r.value)
	return t, errors.Trace(err)
}

// Unmarshal decodes a JSON document into v.
func (r *ReturnValue) Unmarshal(v any) error {
	if r.err != nil {
		return r.err
	}
	return errors.Trace(json.Unmarshal([]byte(r.value), v))
}

// Score is a member of a sorted set.
type Score struct {
	Id    string  `json:"id" bson:"id"`
	Score float64 `json:"score" bson:"score"`
}

// Database is the store of engine records: plain values, sets and sorted
// sets. Sorted sets are addressed by collection and subset.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error

	Get(ctx context.Context, name string) *ReturnValue
	Set(ctx context.Context, values ...Value) error
	Delete(ctx context.Context, names ...string) error

	GetSet(ctx context.Context, key string) ([]string, error)
	AddSet(ctx context.Context, key string, members ...string) error
	RemSet(ctx context.Context, key string, members ...string) error

	// AddScores inserts or updates members of a sorted set.
	AddScores(ctx context.Context, collection, subset string, scores []Score) error
	// SearchScores returns n members from offset in descending order of score.
	// A negative n returns all remaining members.
	SearchScores(ctx context.Context, collection, subset string, offset, n int) ([]Score, error)
	// DeleteScores removes members from a sorted set. Without ids the whole
	// subset is removed.
	DeleteScores(ctx context.Context, collection, subset string, ids ...string) error
}

// Open a connection to a cache database.
func Open(path, tablePrefix string) (Database, error) {
	switch {
	case strings.HasPrefix(path, storage.MemoryPrefix):
		return NewMemory(), nil
	case strings.HasPrefix(path, storage.RedisPrefix), strings.HasPrefix(path, storage.RedissPrefix):
		opt, err := redis.ParseURL(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database := new(Redis)
		database.client = redis.NewClient(opt)
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		if err = redisotel.InstrumentTracing(database.client); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	case strings.HasPrefix(path, storage.MongoPrefix), strings.HasPrefix(path, storage.MongoSrvPrefix):
		opts := options.Client()
		opts.Monitor = otelmongo.NewMonitor()
		opts.ApplyURI(path)
		database := new(MongoDB)
		var err error
		if database.client, err = mongo.Connect(context.Background(), opts); err != nil {
			return nil, errors.Trace(err)
		}
		cs, err := connstring.ParseAndValidate(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		database.dbName = cs.Database
		database.TablePrefix = storage.TablePrefix(tablePrefix)
		return database, nil
	case storage.IsSQL(path):
		gormDB, client, driver, err := storage.OpenSQL(path, tablePrefix)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &SQLDatabase{
			TablePrefix: storage.TablePrefix(tablePrefix),
			gormDB:      gormDB,
			client:      client,
			driver:      driver,
		}, nil
	}
	return nil, errors.Errorf("unknown cache store: %s", path)
}
