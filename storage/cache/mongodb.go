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
	"math"
	"sort"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoDB struct {
	storage.TablePrefix
	client *mongo.Client
	dbName string
}

func (m MongoDB) Init() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	// list collections
	collections, err := d.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return errors.Trace(err)
	}
	existed := lo.SliceToMap(collections, func(name string) (string, struct{}) {
		return name, struct{}{}
	})
	// create collections
	for _, name := range []string{m.ValuesTable(), m.SetsTable(), m.SortedSetsTable()} {
		if _, ok := existed[name]; !ok {
			if err = d.CreateCollection(ctx, name); err != nil {
				return errors.Trace(err)
			}
		}
	}
	// create index
	_, err = d.Collection(m.SetsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{"name", 1}, {"member", 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(m.SortedSetsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{"collection", 1}, {"subset", 1}, {"id", 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Trace(err)
	}
	_, err = d.Collection(m.SortedSetsTable()).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{"collection", 1}, {"subset", 1}, {"score", -1}},
	})
	return errors.Trace(err)
}

func (m MongoDB) Ping() error {
	return m.client.Ping(context.Background(), nil)
}

func (m MongoDB) Close() error {
	return m.client.Disconnect(context.Background())
}

func (m MongoDB) Purge() error {
	ctx := context.Background()
	d := m.client.Database(m.dbName)
	for _, name := range []string{m.ValuesTable(), m.SetsTable(), m.SortedSetsTable()} {
		if _, err := d.Collection(name).DeleteMany(ctx, bson.M{}); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (m MongoDB) Get(ctx context.Context, name string) *ReturnValue {
	c := m.client.Database(m.dbName).Collection(m.ValuesTable())
	r := c.FindOne(ctx, bson.M{"_id": bson.M{"$eq": name}})
	if err := r.Err(); errors.Is(err, mongo.ErrNoDocuments) {
		return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
	} else if err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	}
	raw, err := r.Raw()
	if err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	}
	return &ReturnValue{value: raw.Lookup("value").StringValue()}
}

func (m MongoDB) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.ValuesTable())
	var models []mongo.WriteModel
	for _, value := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"_id": bson.M{"$eq": value.name}}).
			SetUpdate(bson.M{"$set": bson.M{"_id": value.name, "value": value.value}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.ValuesTable())
	_, err := c.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": names}})
	return errors.Trace(err)
}

func (m MongoDB) GetSet(ctx context.Context, key string) ([]string, error) {
	c := m.client.Database(m.dbName).Collection(m.SetsTable())
	r, err := c.Find(ctx, bson.M{"name": key})
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	var members []string
	for r.Next(ctx) {
		var doc bson.Raw
		if err = r.Decode(&doc); err != nil {
			return nil, errors.Trace(err)
		}
		members = append(members, doc.Lookup("member").StringValue())
	}
	sort.Strings(members)
	return members, errors.Trace(r.Err())
}

func (m MongoDB) AddSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.SetsTable())
	var models []mongo.WriteModel
	for _, member := range members {
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(bson.M{"name": bson.M{"$eq": key}, "member": bson.M{"$eq": member}}).
			SetUpdate(bson.M{"$set": bson.M{"name": key, "member": member}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) RemSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.SetsTable())
	_, err := c.DeleteMany(ctx, bson.M{"name": key, "member": bson.M{"$in": members}})
	return errors.Trace(err)
}

func (m MongoDB) AddScores(ctx context.Context, collection, subset string, scores []Score) error {
	if len(scores) == 0 {
		return nil
	}
	c := m.client.Database(m.dbName).Collection(m.SortedSetsTable())
	var models []mongo.WriteModel
	for _, score := range scores {
		filter := bson.M{"collection": collection, "subset": subset, "id": score.Id}
		models = append(models, mongo.NewUpdateOneModel().
			SetUpsert(true).
			SetFilter(filter).
			SetUpdate(bson.M{"$set": bson.M{"collection": collection, "subset": subset, "id": score.Id, "score": score.Score}}))
	}
	_, err := c.BulkWrite(ctx, models)
	return errors.Trace(err)
}

func (m MongoDB) SearchScores(ctx context.Context, collection, subset string, offset, n int) ([]Score, error) {
	c := m.client.Database(m.dbName).Collection(m.SortedSetsTable())
	opt := options.Find().
		SetSort(bson.D{{"score", -1}, {"id", 1}}).
		SetSkip(int64(offset))
	if n >= 0 {
		if n == 0 {
			return []Score{}, nil
		}
		opt.SetLimit(int64(n))
	} else {
		opt.SetLimit(math.MaxInt32)
	}
	r, err := c.Find(ctx, bson.M{"collection": collection, "subset": subset}, opt)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close(ctx)
	scores := make([]Score, 0)
	for r.Next(ctx) {
		var score Score
		if err = r.Decode(&score); err != nil {
			return nil, errors.Trace(err)
		}
		scores = append(scores, score)
	}
	return scores, errors.Trace(r.Err())
}

func (m MongoDB) DeleteScores(ctx context.Context, collection, subset string, ids ...string) error {
	c := m.client.Database(m.dbName).Collection(m.SortedSetsTable())
	filter := bson.M{"collection": collection, "subset": subset}
	if len(ids) > 0 {
		filter["id"] = bson.M{"$in": ids}
	}
	_, err := c.DeleteMany(ctx, filter)
	return errors.Trace(err)
}
