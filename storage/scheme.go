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
	"database/sql"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/juju/errors"
	_ "github.com/lib/pq"
	"github.com/matjip-io/matjip/common/log"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	_ "modernc.org/sqlite"
)

const (
	MySQLPrefix      = "mysql://"
	MongoPrefix      = "mongodb://"
	MongoSrvPrefix   = "mongodb+srv://"
	PostgresPrefix   = "postgres://"
	PostgreSQLPrefix = "postgresql://"
	SQLitePrefix     = "sqlite://"
	RedisPrefix      = "redis://"
	RedissPrefix     = "rediss://"
	MemoryPrefix     = "memory://"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

func (d SQLDriver) String() string {
	switch d {
	case MySQL:
		return "mysql"
	case Postgres:
		return "postgresql"
	default:
		return "sqlite"
	}
}

func AppendURLParams(rawURL string, params []lo.Tuple2[string, string]) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", errors.Trace(err)
	}
	q := parsed.Query()
	for _, tuple := range params {
		q.Add(tuple.A, tuple.B)
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

// AppendMySQLParams adds params that are not already present in a MySQL DSN.
// The driver moves parseTime out of the params, so it is looked up in the
// raw query instead.
func AppendMySQLParams(dsn string, params map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Trace(err)
	}
	_, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", errors.Trace(err)
	}
	if cfg.Params == nil {
		cfg.Params = make(map[string]string)
	}
	for key, value := range params {
		if key == "parseTime" {
			if !query.Has(key) {
				if cfg.ParseTime, err = strconv.ParseBool(value); err != nil {
					return "", errors.NotValidf("parseTime %q", value)
				}
			}
			continue
		}
		if _, exist := cfg.Params[key]; !exist {
			cfg.Params[key] = value
		}
	}
	return cfg.FormatDSN(), nil
}

// IsSQL reports whether path points to a store reachable through GORM.
func IsSQL(path string) bool {
	return strings.HasPrefix(path, MySQLPrefix) ||
		strings.HasPrefix(path, PostgresPrefix) ||
		strings.HasPrefix(path, PostgreSQLPrefix) ||
		strings.HasPrefix(path, SQLitePrefix)
}

// OpenSQL opens a traced SQL connection and wraps it with GORM.
func OpenSQL(path, tablePrefix string) (*gorm.DB, *sql.DB, SQLDriver, error) {
	var (
		driver    SQLDriver
		dialect   func(*sql.DB) gorm.Dialector
		name      string
		sqlDriver string
		err       error
	)
	switch {
	case strings.HasPrefix(path, MySQLPrefix):
		driver, sqlDriver = MySQL, "mysql"
		if name, err = AppendMySQLParams(path[len(MySQLPrefix):], map[string]string{
			"sql_mode":  "'ONLY_FULL_GROUP_BY,STRICT_TRANS_TABLES,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION'",
			"parseTime": "true",
		}); err != nil {
			return nil, nil, 0, errors.Trace(err)
		}
		dialect = func(db *sql.DB) gorm.Dialector {
			return gormmysql.New(gormmysql.Config{Conn: db})
		}
	case strings.HasPrefix(path, PostgresPrefix), strings.HasPrefix(path, PostgreSQLPrefix):
		driver, sqlDriver, name = Postgres, "postgres", path
		dialect = func(db *sql.DB) gorm.Dialector {
			return postgres.New(postgres.Config{Conn: db})
		}
	case strings.HasPrefix(path, SQLitePrefix):
		driver, sqlDriver = SQLite, "sqlite"
		if path, err = AppendURLParams(path, []lo.Tuple2[string, string]{
			{"_pragma", "busy_timeout(10000)"},
			{"_pragma", "journal_mode(wal)"},
		}); err != nil {
			return nil, nil, 0, errors.Trace(err)
		}
		name = path[len(SQLitePrefix):]
		dialect = func(db *sql.DB) gorm.Dialector {
			return sqlite.Dialector{Conn: db}
		}
	default:
		return nil, nil, 0, errors.NotSupportedf("sql store %s", log.RedactDBURL(path))
	}
	client, err := otelsql.Open(sqlDriver, name,
		otelsql.WithAttributes(attribute.String("db.system", driver.String())),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
	)
	if err != nil {
		return nil, nil, 0, errors.Trace(err)
	}
	if driver == SQLite {
		// SQLite allows a single writer.
		client.SetMaxOpenConns(1)
	}
	gormDB, err := gorm.Open(dialect(client), NewGORMConfig(tablePrefix))
	if err != nil {
		return nil, nil, 0, errors.Trace(err)
	}
	return gormDB, client, driver, nil
}

type TablePrefix string

func (tp TablePrefix) ValuesTable() string {
	return string(tp) + "values"
}

func (tp TablePrefix) SetsTable() string {
	return string(tp) + "sets"
}

func (tp TablePrefix) SortedSetsTable() string {
	return string(tp) + "sorted_sets"
}

func (tp TablePrefix) UsersTable() string {
	return string(tp) + "users"
}

func (tp TablePrefix) RestaurantsTable() string {
	return string(tp) + "restaurants"
}

func (tp TablePrefix) ReviewsTable() string {
	return string(tp) + "reviews"
}

func (tp TablePrefix) InteractionsTable() string {
	return string(tp) + "interactions"
}

func (tp TablePrefix) Key(key string) string {
	return string(tp) + key
}

func NewGORMConfig(tablePrefix string) *gorm.Config {
	return &gorm.Config{
		Logger: logger.New(zap.NewStdLog(log.Logger()), logger.Config{
			SlowThreshold:             10 * time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		CreateBatchSize:        1000,
		SkipDefaultTransaction: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   tablePrefix,
			SingularTable: true,
			NameReplacer: strings.NewReplacer(
				"SQLValue", "Values",
				"SQLSetMember", "Sets",
				"SQLScore", "SortedSets",
				"SQLUser", "Users",
				"SQLRestaurant", "Restaurants",
				"SQLReview", "Reviews",
				"SQLInteraction", "Interactions",
			),
		},
	}
}
