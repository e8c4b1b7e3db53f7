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
	"database/sql"
	"math"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLValue struct {
	Name  string `gorm:"type:varchar(256);primaryKey"`
	Value string `gorm:"type:text;not null"`
}

type SQLSetMember struct {
	Name   string `gorm:"type:varchar(256);primaryKey"`
	Member string `gorm:"type:varchar(256);primaryKey"`
}

type SQLScore struct {
	Collection string  `gorm:"type:varchar(256);primaryKey"`
	Subset     string  `gorm:"type:varchar(256);primaryKey"`
	Id         string  `gorm:"type:varchar(256);primaryKey"`
	Score      float64 `gorm:"not null;index"`
}

type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver storage.SQLDriver
}

func (db *SQLDatabase) Init() error {
	tables := []lo.Tuple2[string, any]{
		{A: db.ValuesTable(), B: &SQLValue{}},
		{A: db.SetsTable(), B: &SQLSetMember{}},
		{A: db.SortedSetsTable(), B: &SQLScore{}},
	}
	for _, table := range tables {
		if err := db.gormDB.Table(table.A).AutoMigrate(table.B); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *SQLDatabase) Ping() error {
	return db.client.Ping()
}

func (db *SQLDatabase) Close() error {
	return db.client.Close()
}

func (db *SQLDatabase) Purge() error {
	for _, table := range []string{db.ValuesTable(), db.SetsTable(), db.SortedSetsTable()} {
		if err := db.gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (db *SQLDatabase) Get(ctx context.Context, name string) *ReturnValue {
	var rows []SQLValue
	err := db.gormDB.WithContext(ctx).Table(db.ValuesTable()).
		Where("name = ?", name).Limit(1).Find(&rows).Error
	if err != nil {
		return &ReturnValue{err: errors.Trace(err)}
	}
	if len(rows) == 0 {
		return &ReturnValue{err: errors.Annotate(ErrObjectNotExist, name)}
	}
	return &ReturnValue{value: rows[0].Value}
}

func (db *SQLDatabase) Set(ctx context.Context, values ...Value) error {
	if len(values) == 0 {
		return nil
	}
	rows := lo.Map(values, func(v Value, _ int) SQLValue {
		return SQLValue{Name: v.name, Value: v.value}
	})
	// the last write of a name wins within a batch
	rows = lo.Reverse(lo.UniqBy(lo.Reverse(rows), func(row SQLValue) string { return row.Name }))
	err := db.gormDB.WithContext(ctx).Table(db.ValuesTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) Delete(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	err := db.gormDB.WithContext(ctx).Table(db.ValuesTable()).
		Where("name IN ?", names).Delete(&SQLValue{}).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) GetSet(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := db.gormDB.WithContext(ctx).Table(db.SetsTable()).
		Where("name = ?", key).Order("member").Pluck("member", &members).Error
	if err != nil {
		return nil, errors.Trace(err)
	}
	return members, nil
}

func (db *SQLDatabase) AddSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	rows := lo.Map(lo.Uniq(members), func(member string, _ int) SQLSetMember {
		return SQLSetMember{Name: key, Member: member}
	})
	err := db.gormDB.WithContext(ctx).Table(db.SetsTable()).
		Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) RemSet(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	err := db.gormDB.WithContext(ctx).Table(db.SetsTable()).
		Where("name = ? AND member IN ?", key, members).Delete(&SQLSetMember{}).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) AddScores(ctx context.Context, collection, subset string, scores []Score) error {
	if len(scores) == 0 {
		return nil
	}
	rows := lo.Map(scores, func(s Score, _ int) SQLScore {
		return SQLScore{Collection: collection, Subset: subset, Id: s.Id, Score: s.Score}
	})
	rows = lo.Reverse(lo.UniqBy(lo.Reverse(rows), func(row SQLScore) string { return row.Id }))
	err := db.gormDB.WithContext(ctx).Table(db.SortedSetsTable()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "subset"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score"}),
	}).Create(&rows).Error
	return errors.Trace(err)
}

func (db *SQLDatabase) SearchScores(ctx context.Context, collection, subset string, offset, n int) ([]Score, error) {
	if n == 0 {
		return []Score{}, nil
	}
	tx := db.gormDB.WithContext(ctx).Table(db.SortedSetsTable()).
		Select("id, score").
		Where("collection = ? AND subset = ?", collection, subset).
		Order("score DESC").Order("id").
		Offset(offset)
	if n < 0 {
		n = math.MaxInt32
	}
	tx = tx.Limit(n)
	var rows []SQLScore
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(row SQLScore, _ int) Score {
		return Score{Id: row.Id, Score: row.Score}
	}), nil
}

func (db *SQLDatabase) DeleteScores(ctx context.Context, collection, subset string, ids ...string) error {
	tx := db.gormDB.WithContext(ctx).Table(db.SortedSetsTable()).
		Where("collection = ? AND subset = ?", collection, subset)
	if len(ids) > 0 {
		tx = tx.Where("id IN ?", ids)
	}
	return errors.Trace(tx.Delete(&SQLScore{}).Error)
}
