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

package storage

import (
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestAppendURLParams(t *testing.T) {
	url, err := AppendURLParams("sqlite:///tmp/matjip.db", []lo.Tuple2[string, string]{
		{"_pragma", "busy_timeout(10000)"},
	})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite:///tmp/matjip.db?_pragma=busy_timeout%2810000%29", url)
}

func TestAppendMySQLParams(t *testing.T) {
	params := map[string]string{"parseTime": "true", "sql_mode": "'STRICT_TRANS_TABLES'"}
	// an explicit parseTime is kept
	dsn, err := AppendMySQLParams("matjip:pass@tcp(localhost:3306)/matjip?parseTime=false", params)
	assert.NoError(t, err)
	cfg, err := mysql.ParseDSN(dsn)
	assert.NoError(t, err)
	assert.False(t, cfg.ParseTime)
	assert.Equal(t, "'STRICT_TRANS_TABLES'", cfg.Params["sql_mode"])

	// a missing parseTime is added
	dsn, err = AppendMySQLParams("matjip:pass@tcp(localhost:3306)/matjip?sql_mode=ANSI", params)
	assert.NoError(t, err)
	cfg, err = mysql.ParseDSN(dsn)
	assert.NoError(t, err)
	assert.True(t, cfg.ParseTime)
	assert.Equal(t, "ANSI", cfg.Params["sql_mode"])

	_, err = AppendMySQLParams("matjip@tcp(localhost:3306)/matjip", map[string]string{"parseTime": "maybe"})
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestIsSQL(t *testing.T) {
	assert.True(t, IsSQL("mysql://matjip@tcp(localhost)/matjip"))
	assert.True(t, IsSQL("postgresql://localhost/matjip"))
	assert.True(t, IsSQL("sqlite:///tmp/matjip.db"))
	assert.False(t, IsSQL("redis://localhost:6379"))
	assert.False(t, IsSQL("memory://"))
}

func TestTablePrefix(t *testing.T) {
	prefix := TablePrefix("matjip_")
	assert.Equal(t, "matjip_values", prefix.ValuesTable())
	assert.Equal(t, "matjip_sorted_sets", prefix.SortedSetsTable())
	assert.Equal(t, "matjip_restaurants", prefix.RestaurantsTable())
	assert.Equal(t, "matjip_taste_vector", prefix.Key("taste_vector"))
}

func TestOpenSQL(t *testing.T) {
	db, client, driver, err := OpenSQL(fmt.Sprintf("sqlite://%s/matjip.db", t.TempDir()), "")
	assert.NoError(t, err)
	assert.Equal(t, SQLite, driver)
	assert.NoError(t, db.Exec("SELECT 1").Error)
	assert.NoError(t, client.Close())

	_, _, _, err = OpenSQL("redis://localhost:6379", "")
	assert.Error(t, err)
}
