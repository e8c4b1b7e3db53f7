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
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/juju/errors"
	"github.com/matjip-io/matjip/storage"
)

var (
	ErrUserNotExist       = errors.NotFoundf("user")
	ErrRestaurantNotExist = errors.NotFoundf("restaurant")
)

// Price levels of restaurants.
const (
	PriceBudget   = 1
	PriceModerate = 2
	PricePremium  = 3
	PriceLuxury   = 4
)

// Interaction types recorded by the app.
const (
	InteractionView  = "view"
	InteractionClick = "click"
	InteractionLike  = "like"
	InteractionSave  = "save"
	InteractionShare = "share"
	InteractionVisit = "visit"
)

// Restaurant is a catalog entry. The engine never modifies restaurants.
type Restaurant struct {
	RestaurantId   string    `gorm:"column:restaurant_id;type:varchar(256);primaryKey" json:"restaurantId"`
	Name           string    `gorm:"column:name;type:varchar(256)" json:"name"`
	Cuisine        string    `gorm:"column:cuisine;type:varchar(64);index" json:"cuisine"`
	PriceLevel     int       `gorm:"column:price_level" json:"priceLevel"`
	AtmosphereTags []string  `gorm:"column:atmosphere_tags;serializer:json" json:"atmosphereTags"`
	FlavorTags     []string  `gorm:"column:flavor_tags;serializer:json" json:"flavorTags"`
	DietaryOptions []string  `gorm:"column:dietary_options;serializer:json" json:"dietaryOptions"`
	GoodFor        []string  `gorm:"column:good_for;serializer:json" json:"goodFor"`
	MealTimes      []string  `gorm:"column:meal_times;serializer:json" json:"mealTimes"`
	Latitude       float64   `gorm:"column:latitude" json:"latitude"`
	Longitude      float64   `gorm:"column:longitude" json:"longitude"`
	City           string    `gorm:"column:city;type:varchar(64)" json:"city"`
	District       string    `gorm:"column:district;type:varchar(64)" json:"district"`
	IsClosed       bool      `gorm:"column:is_closed" json:"isClosed"`
	Timestamp      time.Time `gorm:"column:time_stamp" json:"timestamp"`
}

// FlavorRatings maps a flavor to its 0-10 rating. It is stored as JSON text.
type FlavorRatings map[string]float64

func (f FlavorRatings) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]float64(f))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return string(b), nil
}

func (f *FlavorRatings) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.NotValidf("flavor ratings of type %T", src)
	}
	var m map[string]float64
	if err := json.Unmarshal(b, &m); err != nil {
		return errors.Trace(err)
	}
	if len(m) == 0 {
		m = nil
	}
	*f = m
	return nil
}

// Review is a rating left by a user. Rating ranges from 1 to 5 and flavor
// ratings from 0 to 10.
type Review struct {
	ReviewId       string             `gorm:"column:review_id;type:varchar(256);primaryKey" json:"reviewId"`
	UserId         string             `gorm:"column:user_id;type:varchar(256);index" json:"userId"`
	RestaurantId   string             `gorm:"column:restaurant_id;type:varchar(256);index" json:"restaurantId"`
	Rating         float64            `gorm:"column:rating" json:"rating"`
	FlavorRatings  FlavorRatings      `gorm:"column:flavor_ratings;type:text" json:"flavorRatings,omitempty"`
	AtmosphereTags []string           `gorm:"column:atmosphere_tags;serializer:json" json:"atmosphereTags,omitempty"`
	Occasion       string             `gorm:"column:occasion;type:varchar(64)" json:"occasion,omitempty"`
	Companion      string             `gorm:"column:companion;type:varchar(64)" json:"companion,omitempty"`
	MealTime       string             `gorm:"column:meal_time;type:varchar(64)" json:"mealTime,omitempty"`
	Spend          float64            `gorm:"column:spend" json:"spend,omitempty"`
	Timestamp      time.Time          `gorm:"column:time_stamp;index" json:"timestamp"`
}

// User is the profile and social graph of an app user.
type User struct {
	UserId    string   `gorm:"column:user_id;type:varchar(256);primaryKey" json:"userId"`
	Age       int      `gorm:"column:age" json:"age,omitempty"`
	City      string   `gorm:"column:city;type:varchar(64)" json:"city,omitempty"`
	District  string   `gorm:"column:district;type:varchar(64)" json:"district,omitempty"`
	Followers []string `gorm:"column:followers;serializer:json" json:"followers,omitempty"`
	Following []string `gorm:"column:following;serializer:json" json:"following,omitempty"`
}

// Interaction is a behavioral event with an interest score in [0,1].
type Interaction struct {
	Id            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	UserId        string    `gorm:"column:user_id;type:varchar(256);index" json:"userId"`
	RestaurantId  string    `gorm:"column:restaurant_id;type:varchar(256)" json:"restaurantId"`
	Type          string    `gorm:"column:type;type:varchar(64)" json:"type"`
	InterestScore float64   `gorm:"column:interest_score" json:"interestScore"`
	Timestamp     time.Time `gorm:"column:time_stamp;index" json:"timestamp"`
}

// Database is the read model of the restaurant catalog.
type Database interface {
	Init() error
	Ping() error
	Close() error
	Purge() error
	BatchInsertUsers(ctx context.Context, users []User) error
	GetUser(ctx context.Context, userId string) (User, error)
	GetUsers(ctx context.Context, cursor string, n int) (string, []User, error)
	BatchInsertRestaurants(ctx context.Context, restaurants []Restaurant) error
	GetRestaurant(ctx context.Context, restaurantId string) (Restaurant, error)
	BatchGetRestaurants(ctx context.Context, restaurantIds []string) ([]Restaurant, error)
	GetRestaurants(ctx context.Context, cursor string, n int) (string, []Restaurant, error)
	BatchInsertReviews(ctx context.Context, reviews []Review) error
	GetUserReviews(ctx context.Context, userId string) ([]Review, error)
	BatchInsertInteractions(ctx context.Context, interactions []Interaction) error
	GetUserInteractions(ctx context.Context, userId string, since time.Time) ([]Interaction, error)
	// CountActivity counts reviews and interactions per restaurant since a moment.
	CountActivity(ctx context.Context, since time.Time) (map[string]int, error)
}

// Open a connection to a catalog database.
func Open(path, tablePrefix string) (Database, error) {
	if !storage.IsSQL(path) {
		return nil, errors.Errorf("unknown data store: %s", path)
	}
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
