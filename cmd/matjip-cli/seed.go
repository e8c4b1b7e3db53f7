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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jaswdr/faker"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedCuisines   = []string{"korean", "japanese", "chinese", "western", "italian", "asian", "mexican", "fusion", "cafe"}
	seedAtmosphere = []string{"quiet", "lively", "romantic", "casual", "formal", "cozy", "trendy"}
	seedFlavors    = []string{"spicy", "sweet", "salty", "sour", "umami", "bitter", "rich"}
	seedDistricts  = []string{"gangnam", "mapo", "jongno", "yongsan", "seongsu"}
)

func init() {
	cliCommand.AddCommand(seedCommand)
	seedCommand.Flags().Int("restaurants", 100, "number of restaurants")
	seedCommand.Flags().Int("users", 20, "number of users")
	seedCommand.Flags().Int("reviews", 200, "number of reviews")
}

var seedCommand = &cobra.Command{
	Use:   "seed",
	Short: "Fill the stores with a fake catalog for local testing",
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpen(cmd)
		defer s.Close()
		numRestaurants, _ := cmd.Flags().GetInt("restaurants")
		numUsers, _ := cmd.Flags().GetInt("users")
		numReviews, _ := cmd.Flags().GetInt("reviews")
		if err := seed(context.Background(), s, faker.New(), numRestaurants, numUsers, numReviews); err != nil {
			log.Logger().Fatal("failed to seed", zap.Error(err))
		}
		log.Logger().Info("seed stores",
			zap.Int("restaurants", numRestaurants),
			zap.Int("users", numUsers),
			zap.Int("reviews", numReviews))
	},
}

func fakeRestaurants(fake faker.Faker, n int, now time.Time) []data.Restaurant {
	restaurants := make([]data.Restaurant, n)
	for i := range restaurants {
		restaurants[i] = data.Restaurant{
			RestaurantId:   fmt.Sprintf("restaurant_%d", i),
			Name:           fake.Company().Name(),
			Cuisine:        fake.RandomStringElement(seedCuisines),
			PriceLevel:     fake.IntBetween(data.PriceBudget, data.PriceLuxury),
			AtmosphereTags: lo.Samples(seedAtmosphere, fake.IntBetween(1, 3)),
			FlavorTags:     lo.Samples(seedFlavors, fake.IntBetween(1, 3)),
			GoodFor:        lo.Samples(logics.Companions, fake.IntBetween(1, 3)),
			MealTimes:      lo.Samples(logics.MealTimes, fake.IntBetween(1, 3)),
			Latitude:       37.45 + fake.Float64(4, 0, 1)*0.2,
			Longitude:      126.85 + fake.Float64(4, 0, 1)*0.3,
			City:           "seoul",
			District:       fake.RandomStringElement(seedDistricts),
			Timestamp:      now,
		}
	}
	return restaurants
}

func fakeUsers(fake faker.Faker, n int) []data.User {
	users := make([]data.User, n)
	for i := range users {
		users[i] = data.User{
			UserId:   fmt.Sprintf("user_%d", i),
			Age:      fake.IntBetween(18, 65),
			City:     "seoul",
			District: fake.RandomStringElement(seedDistricts),
		}
		if n > 1 {
			users[i].Following = []string{fmt.Sprintf("user_%d", (i+fake.IntBetween(1, n-1))%n)}
		}
	}
	return users
}

func seed(ctx context.Context, s *session, fake faker.Faker, numRestaurants, numUsers, numReviews int) error {
	now := s.engine.Now()
	restaurants := fakeRestaurants(fake, numRestaurants, now)
	if err := s.data.BatchInsertRestaurants(ctx, restaurants); err != nil {
		return errors.Trace(err)
	}
	users := fakeUsers(fake, numUsers)
	if err := s.data.BatchInsertUsers(ctx, users); err != nil {
		return errors.Trace(err)
	}
	if numRestaurants == 0 || numUsers == 0 {
		return nil
	}
	bar := progressbar.Default(int64(numReviews), "seed reviews")
	for i := 0; i < numReviews; i++ {
		review := data.Review{
			ReviewId:      fmt.Sprintf("review_%d", i),
			UserId:        users[fake.IntBetween(0, numUsers-1)].UserId,
			RestaurantId:  restaurants[fake.IntBetween(0, numRestaurants-1)].RestaurantId,
			Rating:        float64(fake.IntBetween(1, 5)),
			FlavorRatings: map[string]float64{fake.RandomStringElement(seedFlavors): float64(fake.IntBetween(0, 10))},
			Companion:     fake.RandomStringElement(logics.Companions),
			MealTime:      fake.RandomStringElement(logics.MealTimes),
			Spend:         float64(fake.IntBetween(1, 10) * 10000),
			Timestamp:     now.Add(-time.Duration(fake.IntBetween(0, 30*24)) * time.Hour),
		}
		if err := s.data.BatchInsertReviews(ctx, []data.Review{review}); err != nil {
			return errors.Trace(err)
		}
		if err := s.engine.RecordReview(ctx, review); err != nil {
			return errors.Trace(err)
		}
		if err := bar.Add(1); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(bar.Finish())
}
