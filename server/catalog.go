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

package server

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/matjip-io/matjip/storage/data"
)

// CachedCatalog serves restaurant lookups from a local cache. Entries expire
// after the TTL and are dropped when the restaurant is written through it.
type CachedCatalog struct {
	data.Database
	restaurants *ttlcache.Cache[string, data.Restaurant]
}

func NewCachedCatalog(database data.Database, ttl time.Duration) *CachedCatalog {
	restaurants := ttlcache.New[string, data.Restaurant](
		ttlcache.WithTTL[string, data.Restaurant](ttl),
		ttlcache.WithDisableTouchOnHit[string, data.Restaurant](),
	)
	go restaurants.Start()
	return &CachedCatalog{Database: database, restaurants: restaurants}
}

func (c *CachedCatalog) GetRestaurant(ctx context.Context, restaurantId string) (data.Restaurant, error) {
	if item := c.restaurants.Get(restaurantId); item != nil {
		return item.Value(), nil
	}
	restaurant, err := c.Database.GetRestaurant(ctx, restaurantId)
	if err != nil {
		return restaurant, err
	}
	c.restaurants.Set(restaurantId, restaurant, ttlcache.DefaultTTL)
	return restaurant, nil
}

func (c *CachedCatalog) BatchInsertRestaurants(ctx context.Context, restaurants []data.Restaurant) error {
	err := c.Database.BatchInsertRestaurants(ctx, restaurants)
	for _, restaurant := range restaurants {
		c.restaurants.Delete(restaurant.RestaurantId)
	}
	return err
}

func (c *CachedCatalog) Purge() error {
	c.restaurants.DeleteAll()
	return c.Database.Purge()
}

func (c *CachedCatalog) Close() error {
	c.restaurants.Stop()
	return c.Database.Close()
}

// Len returns the number of cached restaurants.
func (c *CachedCatalog) Len() int {
	return c.restaurants.Len()
}
