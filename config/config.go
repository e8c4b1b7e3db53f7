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

package config

import (
	"slices"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/go-viper/mapstructure/v2"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config is the configuration for the engine.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Server      ServerConfig      `mapstructure:"server"`
	Taste       TasteConfig       `mapstructure:"taste"`
	Preference  PreferenceConfig  `mapstructure:"preference"`
	Similarity  SimilarityConfig  `mapstructure:"similarity"`
	Recommend   RecommendConfig   `mapstructure:"recommend"`
	Performance PerformanceConfig `mapstructure:"performance"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
}

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	DataStore        string `mapstructure:"data_store" validate:"required,data_store"`
	CacheStore       string `mapstructure:"cache_store" validate:"required,cache_store"`
	TablePrefix      string `mapstructure:"table_prefix"`
	DataTablePrefix  string `mapstructure:"data_table_prefix"`
	CacheTablePrefix string `mapstructure:"cache_table_prefix"`
}

// ServerConfig is the configuration for the REST server.
type ServerConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	APIKey             string        `mapstructure:"api_key"`
	DefaultN           int           `mapstructure:"default_n" validate:"gt=0"`
	MaxN               int           `mapstructure:"max_n" validate:"gtefield=DefaultN"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	RestaurantCacheTTL time.Duration `mapstructure:"restaurant_cache_ttl" validate:"gte=0"`
}

// TasteConfig controls the online updates of taste vectors.
type TasteConfig struct {
	InitialLearningRate float64         `mapstructure:"initial_learning_rate" validate:"gt=0,lte=1"`
	LearningRateDecay   float64         `mapstructure:"learning_rate_decay" validate:"gt=0,lte=1"`
	MinLearningRate     float64         `mapstructure:"min_learning_rate" validate:"gte=0,ltefield=InitialLearningRate"`
	ConfidenceBoost     float64         `mapstructure:"confidence_boost" validate:"gte=0,lte=1"`
	MinConfidence       float64         `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	MaxConfidence       float64         `mapstructure:"max_confidence" validate:"gtefield=MinConfidence,lte=1"`
	HalfLifeDays        float64         `mapstructure:"half_life_days" validate:"gt=0"`
	CategoryWeights     CategoryWeights `mapstructure:"category_weights"`
}

// CategoryWeights weighs the categories of a taste vector.
type CategoryWeights struct {
	Flavor     float64 `mapstructure:"flavor" validate:"gte=0"`
	Cuisine    float64 `mapstructure:"cuisine" validate:"gte=0"`
	Atmosphere float64 `mapstructure:"atmosphere" validate:"gte=0"`
	Context    float64 `mapstructure:"context" validate:"gte=0"`
	Price      float64 `mapstructure:"price" validate:"gte=0"`
	Behavior   float64 `mapstructure:"behavior" validate:"gte=0"`
	TimeOfDay  float64 `mapstructure:"time_of_day" validate:"gte=0"`
	Dietary    float64 `mapstructure:"dietary" validate:"gte=0"`
}

func (w CategoryWeights) Sum() float64 {
	return w.Flavor + w.Cuisine + w.Atmosphere + w.Context + w.Price + w.Behavior + w.TimeOfDay + w.Dietary
}

// PreferenceConfig controls the fallback scorer built on raw preferences.
type PreferenceConfig struct {
	MaxVisitHistory int               `mapstructure:"max_visit_history" validate:"gt=0"`
	MinVisits       int               `mapstructure:"min_visits" validate:"gte=0"`
	NegativePenalty float64           `mapstructure:"negative_penalty" validate:"gte=0"`
	Weights         PreferenceWeights `mapstructure:"weights"`
}

// PreferenceWeights are the points each term of the fallback scorer is worth.
type PreferenceWeights struct {
	Cuisine   float64 `mapstructure:"cuisine" validate:"gte=0"`
	Price     float64 `mapstructure:"price" validate:"gte=0"`
	TimeOfDay float64 `mapstructure:"time_of_day" validate:"gte=0"`
	Companion float64 `mapstructure:"companion" validate:"gte=0"`
	Social    float64 `mapstructure:"social" validate:"gte=0"`
}

func (w PreferenceWeights) Sum() float64 {
	return w.Cuisine + w.Price + w.TimeOfDay + w.Companion + w.Social
}

// SimilarityConfig controls the user similarity matrix.
type SimilarityConfig struct {
	TTL             time.Duration     `mapstructure:"ttl" validate:"gt=0"`
	BehaviorWindow  time.Duration     `mapstructure:"behavior_window" validate:"gt=0"`
	MinCommonItems  int               `mapstructure:"min_common_items" validate:"gte=2"`
	ConfidenceItems int               `mapstructure:"confidence_items" validate:"gt=0"`
	MaxNeighbors    int               `mapstructure:"max_neighbors" validate:"gt=0"`
	Weights         SimilarityWeights `mapstructure:"weights"`
}

// SimilarityWeights weighs the components of a similarity entry.
type SimilarityWeights struct {
	Taste       float64 `mapstructure:"taste" validate:"gte=0"`
	Behavioral  float64 `mapstructure:"behavioral" validate:"gte=0"`
	Rating      float64 `mapstructure:"rating" validate:"gte=0"`
	Social      float64 `mapstructure:"social" validate:"gte=0"`
	Demographic float64 `mapstructure:"demographic" validate:"gte=0"`
}

func (w SimilarityWeights) Sum() float64 {
	return w.Taste + w.Behavioral + w.Rating + w.Social + w.Demographic
}

// RecommendConfig controls the recommendation pipeline.
type RecommendConfig struct {
	Expire                   time.Duration              `mapstructure:"expire" validate:"gt=0"`
	Neighbors                int                        `mapstructure:"neighbors" validate:"gte=0"`
	MinVectorConfidence      float64                    `mapstructure:"min_vector_confidence" validate:"gte=0,lte=1"`
	TrendingWindow           time.Duration              `mapstructure:"trending_window" validate:"gt=0"`
	DistanceDecayKm          float64                    `mapstructure:"distance_decay_km" validate:"gt=0"`
	SecondaryReasonThreshold float64                    `mapstructure:"secondary_reason_threshold" validate:"gte=0"`
	CandidateFilter          string                     `mapstructure:"candidate_filter"`
	MaxCandidates            int                        `mapstructure:"max_candidates" validate:"gt=0"`
	Algorithms               map[string]AlgorithmConfig `mapstructure:"algorithms" validate:"required,dive"`
}

// AlgorithmConfig is a named weight profile over the scoring components.
type AlgorithmConfig struct {
	Enabled  bool             `mapstructure:"enabled"`
	Requires string           `mapstructure:"requires" validate:"omitempty,oneof=collaborative content trending location social context"`
	Weights  ComponentWeights `mapstructure:"weights"`
}

// ComponentWeights weighs the scoring components of the pipeline.
type ComponentWeights struct {
	Collaborative float64 `mapstructure:"collaborative" validate:"gte=0"`
	Content       float64 `mapstructure:"content" validate:"gte=0"`
	Trending      float64 `mapstructure:"trending" validate:"gte=0"`
	Location      float64 `mapstructure:"location" validate:"gte=0"`
	Social        float64 `mapstructure:"social" validate:"gte=0"`
	Context       float64 `mapstructure:"context" validate:"gte=0"`
}

func (w ComponentWeights) Sum() float64 {
	return w.Collaborative + w.Content + w.Trending + w.Location + w.Social + w.Context
}

// PerformanceConfig controls algorithm performance tracking.
type PerformanceConfig struct {
	MaxAnomalies int `mapstructure:"max_anomalies" validate:"gt=0"`
}

// WorkerConfig controls the batch jobs.
type WorkerConfig struct {
	Jobs              int           `mapstructure:"jobs" validate:"gt=0"`
	StoreRateLimit    int           `mapstructure:"store_rate_limit" validate:"gte=0"`
	BatchSize         int           `mapstructure:"batch_size" validate:"gt=0"`
	MaxRetries        uint          `mapstructure:"max_retries"`
	DecayPeriod       time.Duration `mapstructure:"decay_period" validate:"gt=0"`
	SimilarityPeriod  time.Duration `mapstructure:"similarity_period" validate:"gt=0"`
	RecommendPeriod   time.Duration `mapstructure:"recommend_period" validate:"gt=0"`
	PerformancePeriod time.Duration `mapstructure:"performance_period" validate:"gt=0"`
}

// TracingConfig is the configuration for OpenTelemetry tracing.
type TracingConfig struct {
	EnableTracing     bool    `mapstructure:"enable_tracing"`
	Exporter          string  `mapstructure:"exporter" validate:"oneof=otlp otlphttp zipkin"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	Sampler           string  `mapstructure:"sampler" validate:"oneof=always never ratio"`
	Ratio             float64 `mapstructure:"ratio" validate:"gte=0,lte=1"`
}

// GetDefaultConfig returns the configuration used when a key is absent.
func GetDefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DataStore:  "sqlite://data.db",
			CacheStore: "sqlite://cache.db",
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8087,
			DefaultN:           10,
			MaxN:               100,
			RequestTimeout:     5 * time.Second,
			RestaurantCacheTTL: time.Minute,
		},
		Taste: TasteConfig{
			InitialLearningRate: 0.1,
			LearningRateDecay:   0.99,
			MinLearningRate:     0.01,
			ConfidenceBoost:     0.05,
			MinConfidence:       0.1,
			MaxConfidence:       0.95,
			HalfLifeDays:        30,
			CategoryWeights: CategoryWeights{
				Flavor:     0.25,
				Cuisine:    0.25,
				Atmosphere: 0.1,
				Context:    0.1,
				Price:      0.1,
				Behavior:   0.1,
				TimeOfDay:  0.05,
				Dietary:    0.05,
			},
		},
		Preference: PreferenceConfig{
			MaxVisitHistory: 100,
			MinVisits:       3,
			NegativePenalty: 50,
			Weights: PreferenceWeights{
				Cuisine:   30,
				Price:     20,
				TimeOfDay: 15,
				Companion: 15,
				Social:    20,
			},
		},
		Similarity: SimilarityConfig{
			TTL:             7 * 24 * time.Hour,
			BehaviorWindow:  30 * 24 * time.Hour,
			MinCommonItems:  3,
			ConfidenceItems: 10,
			MaxNeighbors:    50,
			Weights: SimilarityWeights{
				Taste:       0.35,
				Behavioral:  0.2,
				Rating:      0.25,
				Social:      0.1,
				Demographic: 0.1,
			},
		},
		Recommend: RecommendConfig{
			Expire:                   24 * time.Hour,
			Neighbors:                20,
			MinVectorConfidence:      0.3,
			TrendingWindow:           14 * 24 * time.Hour,
			DistanceDecayKm:          2,
			SecondaryReasonThreshold: 0.1,
			MaxCandidates:            1000,
			Algorithms:               DefaultAlgorithms(),
		},
		Performance: PerformanceConfig{
			MaxAnomalies: 1000,
		},
		Worker: WorkerConfig{
			Jobs:              4,
			StoreRateLimit:    100,
			BatchSize:         100,
			MaxRetries:        3,
			DecayPeriod:       24 * time.Hour,
			SimilarityPeriod:  6 * time.Hour,
			RecommendPeriod:   time.Hour,
			PerformancePeriod: time.Hour,
		},
		Tracing: TracingConfig{
			Exporter: "otlp",
			Sampler:  "always",
			Ratio:    1,
		},
	}
}

// DefaultAlgorithms returns the built-in scoring profiles.
func DefaultAlgorithms() map[string]AlgorithmConfig {
	return map[string]AlgorithmConfig{
		"hybrid": {
			Enabled: true,
			Weights: ComponentWeights{Collaborative: 0.3, Content: 0.3, Trending: 0.1, Location: 0.1, Social: 0.1, Context: 0.1},
		},
		"collaborative": {
			Enabled:  true,
			Requires: "collaborative",
			Weights:  ComponentWeights{Collaborative: 0.7, Content: 0.2, Context: 0.1},
		},
		"content": {
			Enabled: true,
			Weights: ComponentWeights{Content: 0.7, Context: 0.2, Trending: 0.1},
		},
		"trending": {
			Enabled:  true,
			Requires: "trending",
			Weights:  ComponentWeights{Trending: 0.6, Content: 0.2, Context: 0.2},
		},
		"nearby": {
			Enabled:  true,
			Requires: "location",
			Weights:  ComponentWeights{Location: 0.6, Content: 0.3, Context: 0.1},
		},
		"social": {
			Enabled:  true,
			Requires: "social",
			Weights:  ComponentWeights{Social: 0.6, Content: 0.3, Context: 0.1},
		},
	}
}

// EnabledAlgorithms returns the names of enabled profiles in lexical order.
func (config *RecommendConfig) EnabledAlgorithms() []string {
	names := lo.Keys(lo.PickBy(config.Algorithms, func(_ string, a AlgorithmConfig) bool {
		return a.Enabled
	}))
	slices.Sort(names)
	return names
}

var storePrefixes = []string{"mysql://", "postgres://", "postgresql://", "sqlite://"}

var cacheStorePrefixes = []string{"mysql://", "postgres://", "postgresql://", "sqlite://", "redis://", "rediss://", "mongodb://", "mongodb+srv://", "memory://"}

func (config *Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("data_store", func(fl validator.FieldLevel) bool {
		return hasPrefix(fl.Field().String(), storePrefixes)
	}); err != nil {
		return errors.Trace(err)
	}
	if err := validate.RegisterValidation("cache_store", func(fl validator.FieldLevel) bool {
		return hasPrefix(fl.Field().String(), cacheStorePrefixes)
	}); err != nil {
		return errors.Trace(err)
	}
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		if sl.Current().Interface().(CategoryWeights).Sum() <= 0 {
			sl.ReportError(sl.Current().Interface(), "CategoryWeights", "category_weights", "positive_sum", "")
		}
	}, CategoryWeights{})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		if sl.Current().Interface().(SimilarityWeights).Sum() <= 0 {
			sl.ReportError(sl.Current().Interface(), "Weights", "weights", "positive_sum", "")
		}
	}, SimilarityWeights{})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		if sl.Current().Interface().(PreferenceWeights).Sum() <= 0 {
			sl.ReportError(sl.Current().Interface(), "Weights", "weights", "positive_sum", "")
		}
	}, PreferenceWeights{})
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		if sl.Current().Interface().(ComponentWeights).Sum() <= 0 {
			sl.ReportError(sl.Current().Interface(), "Weights", "weights", "positive_sum", "")
		}
	}, ComponentWeights{})

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	if err := en_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return errors.Trace(err)
	}
	if err := validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := lo.Map(validationErrors, func(e validator.FieldError, _ int) string {
				return e.Translate(trans)
			})
			return errors.NotValidf("config: %s", strings.Join(messages, "; "))
		}
		return errors.Trace(err)
	}
	return nil
}

func hasPrefix(s string, prefixes []string) bool {
	return lo.ContainsBy(prefixes, func(prefix string) bool {
		return strings.HasPrefix(s, prefix)
	})
}

// bindings maps environment variables onto configuration keys.
var bindings = []struct {
	key string
	env string
}{
	{"database.cache_store", "MATJIP_CACHE_STORE"},
	{"database.data_store", "MATJIP_DATA_STORE"},
	{"database.table_prefix", "MATJIP_TABLE_PREFIX"},
	{"database.cache_table_prefix", "MATJIP_CACHE_TABLE_PREFIX"},
	{"database.data_table_prefix", "MATJIP_DATA_TABLE_PREFIX"},
	{"server.host", "MATJIP_SERVER_HOST"},
	{"server.port", "MATJIP_SERVER_PORT"},
	{"server.api_key", "MATJIP_SERVER_API_KEY"},
	{"worker.jobs", "MATJIP_WORKER_JOBS"},
	{"tracing.enable_tracing", "MATJIP_ENABLE_TRACING"},
	{"tracing.collector_endpoint", "MATJIP_COLLECTOR_ENDPOINT"},
}

// LoadConfig loads configuration from a TOML or YAML file. An empty path loads
// defaults and environment variables only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	for _, binding := range bindings {
		if err := v.BindEnv(binding.key, binding.env); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config %s", path)
		}
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := GetDefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Database.TablePrefix != "" {
		if cfg.Database.DataTablePrefix == "" {
			cfg.Database.DataTablePrefix = cfg.Database.TablePrefix
		}
		if cfg.Database.CacheTablePrefix == "" {
			cfg.Database.CacheTablePrefix = cfg.Database.TablePrefix
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}
