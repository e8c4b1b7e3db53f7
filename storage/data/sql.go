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

package data

import (
	"context"
	"database/sql"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	client *sql.DB
	driver storage.SQLDriver
}

// Init creates the catalog tables. Production catalogs are owned by the app
// and already exist.
func (d *SQLDatabase) Init() error {
	tables := []lo.Tuple2[string, any]{
		{A: d.UsersTable(), B: &User{}},
		{A: d.RestaurantsTable(), B: &Restaurant{}},
		{A: d.ReviewsTable(), B: &Review{}},
		{A: d.InteractionsTable(), B: &Interaction{}},
	}
	for _, table := range tables {
		if err := d.gormDB.Table(table.A).AutoMigrate(table.B); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) Ping() error {
	return d.client.Ping()
}

func (d *SQLDatabase) Close() error {
	return d.client.Close()
}

func (d *SQLDatabase) Purge() error {
	for _, table := range []string{d.UsersTable(), d.RestaurantsTable(), d.ReviewsTable(), d.InteractionsTable()} {
		if err := d.gormDB.Exec("DELETE FROM " + table).Error; err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, users []User) error {
	if len(users) == 0 {
		return nil
	}
	err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&users).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetUser(ctx context.Context, userId string) (User, error) {
	var users []User
	if err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Where("user_id = ?", userId).Limit(1).Find(&users).Error; err != nil {
		return User{}, errors.Trace(err)
	}
	if len(users) == 0 {
		return User{}, errors.Annotate(ErrUserNotExist, userId)
	}
	return users[0], nil
}

// GetUsers returns a page of users ordered by id and the cursor of the next page.
func (d *SQLDatabase) GetUsers(ctx context.Context, cursor string, n int) (string, []User, error) {
	var users []User
	if err := d.gormDB.WithContext(ctx).Table(d.UsersTable()).
		Where("user_id >= ?", cursor).Order("user_id").Limit(n + 1).
		Find(&users).Error; err != nil {
		return "", nil, errors.Trace(err)
	}
	if len(users) == n+1 {
		return users[n].UserId, users[:n], nil
	}
	return "", users, nil
}

func (d *SQLDatabase) BatchInsertRestaurants(ctx context.Context, restaurants []Restaurant) error {
	if len(restaurants) == 0 {
		return nil
	}
	rows := lo.Map(restaurants, func(r Restaurant, _ int) Restaurant {
		r.Timestamp = r.Timestamp.UTC()
		return r
	})
	err := d.gormDB.WithContext(ctx).Table(d.RestaurantsTable()).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetRestaurant(ctx context.Context, restaurantId string) (Restaurant, error) {
	var restaurants []Restaurant
	if err := d.gormDB.WithContext(ctx).Table(d.RestaurantsTable()).
		Where("restaurant_id = ?", restaurantId).Limit(1).Find(&restaurants).Error; err != nil {
		return Restaurant{}, errors.Trace(err)
	}
	if len(restaurants) == 0 {
		return Restaurant{}, errors.Annotate(ErrRestaurantNotExist, restaurantId)
	}
	return restaurants[0], nil
}

func (d *SQLDatabase) BatchGetRestaurants(ctx context.Context, restaurantIds []string) ([]Restaurant, error) {
	if len(restaurantIds) == 0 {
		return nil, nil
	}
	var restaurants []Restaurant
	if err := d.gormDB.WithContext(ctx).Table(d.RestaurantsTable()).
		Where("restaurant_id IN ?", restaurantIds).Order("restaurant_id").
		Find(&restaurants).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return restaurants, nil
}

func (d *SQLDatabase) GetRestaurants(ctx context.Context, cursor string, n int) (string, []Restaurant, error) {
	var restaurants []Restaurant
	if err := d.gormDB.WithContext(ctx).Table(d.RestaurantsTable()).
		Where("restaurant_id >= ?", cursor).Order("restaurant_id").Limit(n + 1).
		Find(&restaurants).Error; err != nil {
		return "", nil, errors.Trace(err)
	}
	if len(restaurants) == n+1 {
		return restaurants[n].RestaurantId, restaurants[:n], nil
	}
	return "", restaurants, nil
}

func (d *SQLDatabase) BatchInsertReviews(ctx context.Context, reviews []Review) error {
	if len(reviews) == 0 {
		return nil
	}
	rows := lo.Map(reviews, func(r Review, _ int) Review {
		r.Timestamp = r.Timestamp.UTC()
		return r
	})
	err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rows).Error
	return errors.Trace(err)
}

func (d *SQLDatabase) GetUserReviews(ctx context.Context, userId string) ([]Review, error) {
	var reviews []Review
	if err := d.gormDB.WithContext(ctx).Table(d.ReviewsTable()).
		Where("user_id = ?", userId).Order("time_stamp").
		Find(&reviews).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return reviews, nil
}

func (d *SQLDatabase) BatchInsertInteractions(ctx context.Context, interactions []Interaction) error {
	if len(interactions) == 0 {
		return nil
	}
	rows := lo.Map(interactions, func(i Interaction, _ int) Interaction {
		i.Id = 0
		i.Timestamp = i.Timestamp.UTC()
		return i
	})
	return errors.Trace(d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).Create(&rows).Error)
}

func (d *SQLDatabase) GetUserInteractions(ctx context.Context, userId string, since time.Time) ([]Interaction, error) {
	var interactions []Interaction
	if err := d.gormDB.WithContext(ctx).Table(d.InteractionsTable()).
		Where("user_id = ? AND time_stamp >= ?", userId, since.UTC()).Order("time_stamp").
		Find(&interactions).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return interactions, nil
}

func (d *SQLDatabase) CountActivity(ctx context.Context, since time.Time) (map[string]int, error) {
	type activity struct {
		RestaurantId string
		Count        int
	}
	counts := make(map[string]int)
	for _, table := range []string{d.ReviewsTable(), d.InteractionsTable()} {
		var rows []activity
		if err := d.gormDB.WithContext(ctx).Table(table).
			Select("restaurant_id, COUNT(*) AS count").
			Where("time_stamp >= ?", since.UTC()).
			Group("restaurant_id").
			Scan(&rows).Error; err != nil {
			return nil, errors.Trace(err)
		}
		for _, row := range rows {
			counts[row.RestaurantId] += row.Count
		}
	}
	return counts, nil
}
