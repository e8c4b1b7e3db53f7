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

package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/common/parallel"
	"github.com/matjip-io/matjip/common/stats"
	"github.com/matjip-io/matjip/config"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	JobDecay       = "decay"
	JobSimilarity  = "similarity"
	JobRecommend   = "recommend"
	JobPerformance = "performance"
)

var jobNames = []string{JobDecay, JobSimilarity, JobRecommend, JobPerformance}

// Progress receives the number of users processed.
type Progress interface {
	Add(num int) error
}

type jobState struct {
	running   atomic.Bool
	lastRun   atomic.Time
	duration  atomic.Duration
	processed atomic.Int64
	failed    atomic.Int64
}

// JobStatus is a snapshot of a batch job.
type JobStatus struct {
	Name      string        `json:"name"`
	Running   bool          `json:"running"`
	LastRun   time.Time     `json:"lastRun"`
	Duration  time.Duration `json:"duration"`
	Processed int64         `json:"processed"`
	Failed    int64         `json:"failed"`
}

// Worker runs the periodic batch jobs of the engine.
type Worker struct {
	config   *config.Config
	engine   *logics.Engine
	data     data.Database
	limiter  parallel.RateLimiter
	backOff  func() backoff.BackOff
	progress Progress
	states   map[string]*jobState
}

func NewWorker(cfg *config.Config, engine *logics.Engine) *Worker {
	w := &Worker{
		config:  cfg,
		engine:  engine,
		data:    engine.Data(),
		limiter: parallel.NewRateLimiter(cfg.Worker.StoreRateLimit),
		backOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
		states: make(map[string]*jobState),
	}
	for _, name := range jobNames {
		w.states[name] = &jobState{}
	}
	return w
}

// SetProgress reports processed users to p.
func (w *Worker) SetProgress(p Progress) {
	w.progress = p
}

func (w *Worker) Status() []JobStatus {
	return lo.Map(jobNames, func(name string, _ int) JobStatus {
		state := w.states[name]
		return JobStatus{
			Name:      name,
			Running:   state.running.Load(),
			LastRun:   state.lastRun.Load(),
			Duration:  state.duration.Load(),
			Processed: state.processed.Load(),
			Failed:    state.failed.Load(),
		}
	})
}

func (w *Worker) run(ctx context.Context, job string, fn func(ctx context.Context) error) error {
	state := w.states[job]
	if !state.running.CompareAndSwap(false, true) {
		return errors.AlreadyExistsf("running job %s", job)
	}
	defer state.running.Store(false)
	state.processed.Store(0)
	state.failed.Store(0)
	start := time.Now()
	log.Logger().Info("start job", zap.String("job", job), zap.Int("n_jobs", w.config.Worker.Jobs))
	err := fn(ctx)
	elapsed := time.Since(start)
	state.lastRun.Store(start)
	state.duration.Store(elapsed)
	JobSecondsVec.WithLabelValues(job).Set(elapsed.Seconds())
	if err != nil {
		log.Logger().Error("job failed", zap.String("job", job), zap.Error(err))
		return err
	}
	log.Logger().Info("complete job", zap.String("job", job),
		zap.Int64("processed", state.processed.Load()),
		zap.Int64("failed", state.failed.Load()),
		zap.Duration("elapsed", elapsed))
	return nil
}

// retry runs op after taking a store token. Invalid input and missing
// records are not retried.
func (w *Worker) retry(ctx context.Context, op func() error) error {
	if err := parallel.Wait(ctx, w.limiter, 1); err != nil {
		return err
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err != nil && (errors.Is(err, errors.NotValid) || errors.Is(err, errors.NotFound) || ctx.Err() != nil) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(w.backOff()), backoff.WithMaxTries(w.config.Worker.MaxRetries+1))
	return err
}

// pageUsers passes pages of catalog user ids to fn.
func (w *Worker) pageUsers(ctx context.Context, fn func(userIds []string) error) error {
	cursor := ""
	for {
		var (
			next  string
			users []data.User
		)
		err := w.retry(ctx, func() (err error) {
			next, users, err = w.data.GetUsers(ctx, cursor, w.config.Worker.BatchSize)
			return
		})
		if err != nil {
			return errors.Trace(err)
		}
		if err = fn(lo.Map(users, func(u data.User, _ int) string { return u.UserId })); err != nil {
			return err
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

// forEach applies fn to users in parallel. A failed user is logged and
// counted without stopping the job.
func (w *Worker) forEach(ctx context.Context, job string, userIds []string, fn func(ctx context.Context, userId string) error) error {
	state := w.states[job]
	return parallel.Parallel(ctx, len(userIds), w.config.Worker.Jobs, func(_, jobId int) error {
		userId := userIds[jobId]
		if err := w.retry(ctx, func() error { return fn(ctx, userId) }); err != nil {
			if ctx.Err() != nil {
				return errors.Trace(ctx.Err())
			}
			state.failed.Inc()
			JobErrorsTotalVec.WithLabelValues(job).Inc()
			log.Logger().Error("failed to process user", zap.String("job", job),
				zap.String("user_id", userId), zap.Error(err))
			return nil
		}
		state.processed.Inc()
		JobProcessedTotalVec.WithLabelValues(job).Inc()
		if w.progress != nil {
			_ = w.progress.Add(1)
		}
		return nil
	})
}

// forEachUser pages through the catalog users and applies fn to each.
func (w *Worker) forEachUser(ctx context.Context, job string, fn func(ctx context.Context, userId string) error) error {
	return w.pageUsers(ctx, func(userIds []string) error {
		return w.forEach(ctx, job, userIds, fn)
	})
}

// Decay fades the confidence of taste vectors not updated recently.
func (w *Worker) Decay(ctx context.Context) error {
	return w.run(ctx, JobDecay, func(ctx context.Context) error {
		now := w.engine.Now()
		return w.forEachUser(ctx, JobDecay, func(ctx context.Context, userId string) error {
			_, err := w.engine.Decay(ctx, userId, now)
			return err
		})
	})
}

// RefreshSimilarity recomputes every user pair once and trims the neighbor
// indices afterwards.
func (w *Worker) RefreshSimilarity(ctx context.Context) error {
	return w.run(ctx, JobSimilarity, func(ctx context.Context) error {
		var userIds []string
		if err := w.pageUsers(ctx, func(page []string) error {
			userIds = append(userIds, page...)
			return nil
		}); err != nil {
			return err
		}
		sort.Strings(userIds)
		positions := make(map[string]int, len(userIds))
		for i, userId := range userIds {
			positions[userId] = i
		}
		now := w.engine.Now()
		if err := w.forEach(ctx, JobSimilarity, userIds, func(ctx context.Context, userId string) error {
			_, err := w.engine.Similarity.Refresh(ctx, userId, userIds[positions[userId]+1:], now)
			return err
		}); err != nil {
			return err
		}
		return w.trimNeighbors(ctx, userIds)
	})
}

// trimNeighbors trims the neighbor indices of users, one chunk per job.
func (w *Worker) trimNeighbors(ctx context.Context, userIds []string) error {
	chunks := parallel.Split(userIds, w.config.Worker.Jobs)
	errs := make([]error, len(chunks))
	parallel.ForEach(chunks, w.config.Worker.Jobs, func(i int, chunk []string) {
		for _, userId := range chunk {
			if errs[i] = ctx.Err(); errs[i] != nil {
				return
			}
			errs[i] = w.retry(ctx, func() error {
				return w.engine.Store.TrimNeighbors(ctx, userId, w.config.Similarity.MaxNeighbors)
			})
			if errs[i] != nil {
				return
			}
		}
	})
	for _, err := range errs {
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Recommend generates a fresh list for every user.
func (w *Worker) Recommend(ctx context.Context) error {
	return w.run(ctx, JobRecommend, func(ctx context.Context) error {
		return w.forEachUser(ctx, JobRecommend, func(ctx context.Context, userId string) error {
			_, err := w.engine.Recommend(ctx, logics.Request{UserId: userId})
			return err
		})
	})
}

// AggregatePerformance folds the outcomes of recommendations expired in the
// last period into the algorithm records, runs anomaly detection and prunes
// records aggregated by earlier runs.
func (w *Worker) AggregatePerformance(ctx context.Context) error {
	return w.run(ctx, JobPerformance, func(ctx context.Context) error {
		now := w.engine.Now()
		since := now.Add(-w.config.Worker.PerformancePeriod)
		var mu sync.Mutex
		byAlgorithm := make(map[string][]*logics.RecommendationRecord)
		if err := w.forEachUser(ctx, JobPerformance, func(ctx context.Context, userId string) error {
			records, err := w.engine.Store.ExpiredRecommendations(ctx, userId, since, now)
			if err != nil {
				return err
			}
			if _, err = w.engine.Store.PruneRecommendations(ctx, userId, since); err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, record := range records {
				byAlgorithm[record.Algorithm] = append(byAlgorithm[record.Algorithm], record)
			}
			return nil
		}); err != nil {
			return err
		}
		if len(byAlgorithm) == 0 {
			return nil
		}

		summary, err := w.catalogSummary(ctx, since)
		if err != nil {
			return err
		}
		algorithms := lo.Keys(byAlgorithm)
		sort.Strings(algorithms)
		for _, algorithm := range algorithms {
			records := byAlgorithm[algorithm]
			summary.Records = records
			batch := logics.AggregateOutcomes(summary)
			if batch.Empty() {
				continue
			}
			if err = w.engine.UpdatePerformance(ctx, algorithm, func(p *logics.AlgorithmPerformance) error {
				p.UpdateMetrics(batch, now)
				for segment, satisfaction := range segmentOutcomes(records) {
					p.UpdateSegment(segment, satisfaction.A, satisfaction.B)
				}
				for _, anomaly := range p.DetectAnomalies(w.config.Performance, now) {
					AnomaliesTotalVec.WithLabelValues(algorithm, anomaly.Type).Inc()
					log.Logger().Warn("algorithm anomaly detected",
						zap.String("algorithm", algorithm),
						zap.String("type", anomaly.Type),
						zap.String("severity", anomaly.Severity),
						zap.Float64("value", anomaly.Value),
						zap.Float64("threshold", anomaly.Threshold))
				}
				return nil
			}); err != nil {
				return errors.Trace(err)
			}
		}
		return nil
	})
}

func (w *Worker) catalogSummary(ctx context.Context, since time.Time) (logics.OutcomeSummary, error) {
	summary := logics.OutcomeSummary{Cuisines: make(map[string]string)}
	cursor := ""
	for {
		var (
			next        string
			restaurants []data.Restaurant
		)
		err := w.retry(ctx, func() (err error) {
			next, restaurants, err = w.data.GetRestaurants(ctx, cursor, w.config.Worker.BatchSize)
			return
		})
		if err != nil {
			return summary, errors.Trace(err)
		}
		for _, restaurant := range restaurants {
			summary.Cuisines[restaurant.RestaurantId] = restaurant.Cuisine
			if !restaurant.IsClosed {
				summary.CatalogSize++
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	err := w.retry(ctx, func() (err error) {
		summary.Activity, err = w.data.CountActivity(ctx, since)
		return
	})
	return summary, errors.Trace(err)
}

// segmentOutcomes returns satisfaction and CTR of impressed records per
// companion. Satisfaction is the mean feedback rating out of 5, or the
// conversion rate without feedback.
func segmentOutcomes(records []*logics.RecommendationRecord) map[string]lo.Tuple2[float64, float64] {
	impressed := lo.Filter(records, func(r *logics.RecommendationRecord, _ int) bool {
		return r.Outcome.Impressed && r.Context.Companion != ""
	})
	segments := make(map[string]lo.Tuple2[float64, float64])
	for segment, group := range lo.GroupBy(impressed, func(r *logics.RecommendationRecord) string { return r.Context.Companion }) {
		n := float64(len(group))
		ctr := float64(lo.CountBy(group, func(r *logics.RecommendationRecord) bool { return r.Outcome.Clicked })) / n
		ratings := lo.FilterMap(group, func(r *logics.RecommendationRecord, _ int) (float64, bool) {
			if r.Outcome.Feedback == nil {
				return 0, false
			}
			return r.Outcome.Feedback.Rating / 5, true
		})
		satisfaction := float64(lo.CountBy(group, func(r *logics.RecommendationRecord) bool { return r.Outcome.Converted })) / n
		if len(ratings) > 0 {
			satisfaction = stats.Mean(ratings)
		}
		segments[segment] = lo.T2(satisfaction, ctr)
	}
	return segments
}

// RunAll runs every job once in dependency order.
func (w *Worker) RunAll(ctx context.Context) error {
	for _, job := range []func(context.Context) error{w.Decay, w.RefreshSimilarity, w.Recommend, w.AggregatePerformance} {
		if err := job(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Serve runs the jobs on their periods until ctx is done.
func (w *Worker) Serve(ctx context.Context) error {
	tickers := map[string]*time.Ticker{
		JobDecay:       time.NewTicker(w.config.Worker.DecayPeriod),
		JobSimilarity:  time.NewTicker(w.config.Worker.SimilarityPeriod),
		JobRecommend:   time.NewTicker(w.config.Worker.RecommendPeriod),
		JobPerformance: time.NewTicker(w.config.Worker.PerformancePeriod),
	}
	defer func() {
		for _, ticker := range tickers {
			ticker.Stop()
		}
	}()
	log.Logger().Info("start worker",
		zap.Int("n_jobs", w.config.Worker.Jobs),
		zap.Duration("decay_period", w.config.Worker.DecayPeriod),
		zap.Duration("similarity_period", w.config.Worker.SimilarityPeriod),
		zap.Duration("recommend_period", w.config.Worker.RecommendPeriod),
		zap.Duration("performance_period", w.config.Worker.PerformancePeriod))
	for {
		var err error
		select {
		case <-ctx.Done():
			return errors.Trace(ctx.Err())
		case <-tickers[JobDecay].C:
			err = w.Decay(ctx)
		case <-tickers[JobSimilarity].C:
			err = w.RefreshSimilarity(ctx)
		case <-tickers[JobRecommend].C:
			err = w.Recommend(ctx)
		case <-tickers[JobPerformance].C:
			err = w.AggregatePerformance(ctx)
		}
		if err != nil && ctx.Err() != nil {
			return errors.Trace(ctx.Err())
		}
	}
}
