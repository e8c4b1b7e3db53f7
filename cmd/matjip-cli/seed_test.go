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
	"testing"
	"time"

	"github.com/jaswdr/faker"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/cache"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/stretchr/testify/assert"
)

func TestFakeCatalog(t *testing.T) {
	fake := faker.New()
	restaurants := fakeRestaurants(fake, 10, time.Now())
	assert.Len(t, restaurants, 10)
	for _, restaurant := range restaurants {
		assert.Contains(t, seedCuisines, restaurant.Cuisine)
		assert.GreaterOrEqual(t, restaurant.PriceLevel, data.PriceBudget)
		assert.LessOrEqual(t, restaurant.PriceLevel, data.PriceLuxury)
		assert.NotEmpty(t, restaurant.AtmosphereTags)
		assert.InDelta(t, 37.55, restaurant.Latitude, 0.11)
	}
	users := fakeUsers(fake, 5)
	assert.Len(t, users, 5)
	for _, user := range users {
		assert.Len(t, user.Following, 1)
		assert.NotEqual(t, user.UserId, user.Following[0])
	}
}

func TestSeed(t *testing.T) {
	dataStore, err := data.Open(fmt.Sprintf("sqlite://%s/data.db", t.TempDir()), "")
	assert.NoError(t, err)
	assert.NoError(t, dataStore.Init())
	s := &session{config: config.GetDefaultConfig(), data: dataStore, cache: cache.NewMemory()}
	s.engine, err = logics.NewEngine(s.config, s.data, s.cache)
	assert.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	assert.NoError(t, seed(ctx, s, faker.New(), 20, 4, 30))
	_, restaurants, err := dataStore.GetRestaurants(ctx, "", 100)
	assert.NoError(t, err)
	assert.Len(t, restaurants, 20)
	_, users, err := dataStore.GetUsers(ctx, "", 100)
	assert.NoError(t, err)
	assert.Len(t, users, 4)
	reviewed := 0
	for _, user := range users {
		if _, err := s.engine.GetTasteVector(ctx, user.UserId); err == nil {
			reviewed++
		}
	}
	assert.Positive(t, reviewed)
}
