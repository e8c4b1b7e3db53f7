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
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/juju/errors"
	"github.com/matjip-io/matjip/common/log"
	"github.com/matjip-io/matjip/logics"
	"github.com/matjip-io/matjip/storage/data"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const apiKeyHeader = "X-API-Key"

type Success struct {
	RowAffected int `json:"rowAffected"`
}

type HealthStatus struct {
	Ready         bool   `json:"ready"`
	DataStoreErr  string `json:"dataStoreError,omitempty"`
	CacheStoreErr string `json:"cacheStoreError,omitempty"`
}

type GameResultRequest struct {
	UserId string `json:"userId"`
	logics.GameResult
}

type PositionRequest struct {
	Position int `json:"position"`
}

type ConversionRequest struct {
	Type string `json:"type"`
}

type OutcomeFeedbackRequest struct {
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment,omitempty"`
}

type ExchangeRequest struct {
	From     string `json:"from"`
	Accepted bool   `json:"accepted"`
}

type OutcomeResult struct {
	Changed        bool                         `json:"changed"`
	Recommendation *logics.RecommendationRecord `json:"recommendation"`
}

type AlgorithmScore struct {
	*logics.AlgorithmPerformance
	Score float64 `json:"score"`
}

type BestAlgorithm struct {
	Algorithm string `json:"algorithm"`
}

// CreateWebService registers the routes of the REST API.
func (s *Server) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api")
	ws.Filter(LogFilter)
	ws.Filter(s.AuthFilter)

	/* Recommendations */

	ws.Route(ws.GET("/recommendations/{user-id}").To(s.getRecommendations).
		Doc("Generate recommendations for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("lat", "latitude of the user").DataType("number")).
		Param(ws.QueryParameter("lng", "longitude of the user").DataType("number")).
		Param(ws.QueryParameter("companion", "solo, date, friends, family or business").DataType("string")).
		Param(ws.QueryParameter("mealTime", "breakfast, lunch, dinner or late_night").DataType("string")).
		Param(ws.QueryParameter("mood", "mood of the user").DataType("string")).
		Param(ws.QueryParameter("weather", "current weather").DataType("string")).
		Param(ws.QueryParameter("budget", "highest acceptable price level").DataType("integer")).
		Param(ws.QueryParameter("time", "time of the visit").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned recommendations").DataType("integer")).
		Param(ws.QueryParameter("algorithm", "scoring algorithm, or auto").DataType("string")).
		Param(ws.QueryParameter("segment", "user segment for algorithm selection").DataType("string")).
		Returns(http.StatusOK, "OK", logics.Response{}).
		Writes(logics.Response{}))
	ws.Route(ws.GET("/recommendations/{user-id}/active").To(s.getActiveRecommendations).
		Doc("Get unexpired recommendations of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Writes([]logics.RecommendationRecord{}))
	ws.Route(ws.GET("/explain/{user-id}/{restaurant-id}").To(s.explain).
		Doc("Explain the score of a restaurant for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.PathParameter("restaurant-id", "identifier of the restaurant").DataType("string")).
		Param(ws.QueryParameter("companion", "solo, date, friends, family or business").DataType("string")).
		Param(ws.QueryParameter("mealTime", "breakfast, lunch, dinner or late_night").DataType("string")).
		Writes(logics.Explanation{}))
	ws.Route(ws.POST("/recommendation/{recommendation-id}/impression").To(s.recordImpression).
		Doc("Record an impression of a recommendation.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("recommendation-id", "identifier of the recommendation").DataType("string")).
		Reads(PositionRequest{}).
		Writes(OutcomeResult{}))
	ws.Route(ws.POST("/recommendation/{recommendation-id}/click").To(s.recordClick).
		Doc("Record a click on a recommendation.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("recommendation-id", "identifier of the recommendation").DataType("string")).
		Reads(PositionRequest{}).
		Writes(OutcomeResult{}))
	ws.Route(ws.POST("/recommendation/{recommendation-id}/conversion").To(s.recordConversion).
		Doc("Record a conversion of a recommendation.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("recommendation-id", "identifier of the recommendation").DataType("string")).
		Reads(ConversionRequest{}).
		Writes(OutcomeResult{}))
	ws.Route(ws.POST("/recommendation/{recommendation-id}/feedback").To(s.recordOutcomeFeedback).
		Doc("Rate a recommendation.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("recommendation-id", "identifier of the recommendation").DataType("string")).
		Reads(OutcomeFeedbackRequest{}).
		Writes(logics.RecommendationRecord{}))

	/* Users */

	ws.Route(ws.POST("/feedback").To(s.insertFeedback).
		Doc("Insert feedback of a user on a restaurant.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Reads(logics.FeedbackRequest{}).
		Writes(Success{}))
	ws.Route(ws.POST("/review").To(s.insertReview).
		Doc("Learn from a review.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Reads(data.Review{}).
		Writes(Success{}))
	ws.Route(ws.POST("/game-result").To(s.applyGameResult).
		Doc("Learn from the result of a taste game.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Reads(GameResultRequest{}).
		Writes(logics.TasteVector{}))
	ws.Route(ws.GET("/preferences/{user-id}").To(s.getPreferences).
		Doc("Get preferences of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Writes(logics.UserPreference{}))
	ws.Route(ws.PUT("/preferences/{user-id}").To(s.putPreferences).
		Doc("Replace preferences of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Reads(logics.UserPreference{}).
		Writes(Success{}))
	ws.Route(ws.GET("/taste-vector/{user-id}").To(s.getTasteVector).
		Doc("Get the taste vector of a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"user"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Writes(logics.TasteVector{}))

	/* Similarity */

	ws.Route(ws.GET("/similar-users/{user-id}").To(s.getSimilarUsers).
		Doc("Get the most similar users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"similarity"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned users").DataType("integer")).
		Writes([]logics.Neighbor{}))
	ws.Route(ws.GET("/similarity/{user-a}/{user-b}").To(s.getSimilarity).
		Doc("Get the similarity of two users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"similarity"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-a", "identifier of a user").DataType("string")).
		Param(ws.PathParameter("user-b", "identifier of another user").DataType("string")).
		Writes(logics.UserSimilarity{}))
	ws.Route(ws.POST("/similarity/{user-a}/{user-b}/exchange").To(s.recordExchange).
		Doc("Count a recommendation passed between two users.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"similarity"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("user-a", "identifier of a user").DataType("string")).
		Param(ws.PathParameter("user-b", "identifier of another user").DataType("string")).
		Reads(ExchangeRequest{}).
		Writes(logics.UserSimilarity{}))

	/* Algorithms */

	ws.Route(ws.GET("/algorithms").To(s.getAlgorithms).
		Doc("Get performance of algorithms.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"algorithm"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Writes([]AlgorithmScore{}))
	ws.Route(ws.GET("/algorithms/best").To(s.getBestAlgorithm).
		Doc("Select the best performing algorithm.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"algorithm"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.QueryParameter("diversity", "prefer diverse lists").DataType("boolean")).
		Param(ws.QueryParameter("speed", "prefer fast algorithms").DataType("boolean")).
		Param(ws.QueryParameter("segment", "user segment").DataType("string")).
		Writes(BestAlgorithm{}))
	ws.Route(ws.POST("/algorithms/{algorithm}/ab-tests").To(s.addABTest).
		Doc("Register an A/B test.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"algorithm"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("algorithm", "name of the algorithm").DataType("string")).
		Reads(logics.ABTest{}).
		Writes(logics.ABTest{}))
	ws.Route(ws.GET("/algorithms/{algorithm}/ab-tests/{test-id}").To(s.analyzeABTest).
		Doc("Analyze an A/B test.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"algorithm"}).
		Param(ws.HeaderParameter(apiKeyHeader, "secret key for RESTful API")).
		Param(ws.PathParameter("algorithm", "name of the algorithm").DataType("string")).
		Param(ws.PathParameter("test-id", "identifier of the test").DataType("string")).
		Writes(logics.ABTestResult{}))

	/* Health */

	ws.Route(ws.GET("/health/live").To(s.checkLive).
		Doc("Probe liveness.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))
	ws.Route(ws.GET("/health/ready").To(s.checkReady).
		Doc("Probe readiness.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(HealthStatus{}))
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	route := req.SelectedRoutePath()
	RequestSecondsVec.WithLabelValues(route).Observe(time.Since(start).Seconds())
	RequestTotalVec.WithLabelValues(route, strconv.Itoa(resp.StatusCode())).Inc()
	if !strings.HasPrefix(route, "/api/health") {
		log.ResponseLogger(resp).Info(req.Request.Method+" "+req.Request.URL.String(),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// AuthFilter rejects requests without the API key. Health probes are open.
func (s *Server) AuthFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	if s.Config.Server.APIKey == "" || strings.HasPrefix(req.Request.URL.Path, "/api/health") {
		chain.ProcessFilter(req, resp)
		return
	}
	if req.HeaderParameter(apiKeyHeader) != s.Config.Server.APIKey {
		log.ResponseLogger(resp).Error("unauthorized", zap.String("path", req.Request.URL.Path))
		if err := resp.WriteErrorString(http.StatusUnauthorized, "unauthorized"); err != nil {
			log.ResponseLogger(resp).Error("failed to write error", zap.Error(err))
		}
		return
	}
	chain.ProcessFilter(req, resp)
}

// ParseInt reads an integer query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (int, error) {
	valueString := request.QueryParameter(name)
	if valueString == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueString)
	if err != nil {
		return 0, errors.NewNotValid(err, name)
	}
	return value, nil
}

// ParseBool reads a boolean query parameter.
func ParseBool(request *restful.Request, name string) (bool, error) {
	valueString := request.QueryParameter(name)
	if valueString == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(valueString)
	if err != nil {
		return false, errors.NewNotValid(err, name)
	}
	return value, nil
}

// parseContext reads the recommendation context from query parameters.
func parseContext(request *restful.Request) (logics.RecommendationContext, error) {
	rc := logics.RecommendationContext{
		Companion: request.QueryParameter("companion"),
		MealTime:  request.QueryParameter("mealTime"),
		Mood:      request.QueryParameter("mood"),
		Weather:   request.QueryParameter("weather"),
	}
	lat, lng := request.QueryParameter("lat"), request.QueryParameter("lng")
	if lat != "" || lng != "" {
		latitude, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return rc, errors.NewNotValid(err, "lat")
		}
		longitude, err := strconv.ParseFloat(lng, 64)
		if err != nil {
			return rc, errors.NewNotValid(err, "lng")
		}
		rc.Location = &logics.Location{Lat: latitude, Lng: longitude}
	}
	var err error
	if rc.Budget, err = ParseInt(request, "budget", 0); err != nil {
		return rc, err
	}
	if t := request.QueryParameter("time"); t != "" {
		if rc.Time, err = dateparse.ParseAny(t); err != nil {
			return rc, errors.NewNotValid(err, "time")
		}
	}
	return rc, nil
}

func (s *Server) getRecommendations(request *restful.Request, response *restful.Response) {
	rc, err := parseContext(request)
	if err != nil {
		Error(response, err)
		return
	}
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		Error(response, err)
		return
	}
	ctx, cancel := context.WithTimeout(request.Request.Context(), s.Config.Server.RequestTimeout)
	defer cancel()
	result, err := s.Engine.Recommend(ctx, logics.Request{
		UserId:                request.PathParameter("user-id"),
		RecommendationContext: rc,
		N:                     n,
		Algorithm:             request.QueryParameter("algorithm"),
		Segment:               request.QueryParameter("segment"),
	})
	if err != nil {
		Error(response, err)
		return
	}
	RecommendationsTotalVec.WithLabelValues(result.Status).Inc()
	Ok(response, result)
}

func (s *Server) getActiveRecommendations(request *restful.Request, response *restful.Response) {
	records, err := s.Engine.Store.ActiveRecommendations(request.Request.Context(), request.PathParameter("user-id"), s.Engine.Now())
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, lo.Ternary(records == nil, []*logics.RecommendationRecord{}, records))
}

func (s *Server) explain(request *restful.Request, response *restful.Response) {
	rc, err := parseContext(request)
	if err != nil {
		Error(response, err)
		return
	}
	explanation, err := s.Engine.Recommender.Explain(request.Request.Context(),
		request.PathParameter("user-id"), request.PathParameter("restaurant-id"), rc)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, explanation)
}

func (s *Server) recordImpression(request *restful.Request, response *restful.Response) {
	var body PositionRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	record, changed, err := s.Engine.Outcomes.RecordImpression(request.Request.Context(), request.PathParameter("recommendation-id"), body.Position)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, OutcomeResult{Changed: changed, Recommendation: record})
}

func (s *Server) recordClick(request *restful.Request, response *restful.Response) {
	var body PositionRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	record, changed, err := s.Engine.Outcomes.RecordClick(request.Request.Context(), request.PathParameter("recommendation-id"), body.Position)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, OutcomeResult{Changed: changed, Recommendation: record})
}

func (s *Server) recordConversion(request *restful.Request, response *restful.Response) {
	var body ConversionRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	record, changed, err := s.Engine.Outcomes.RecordConversion(request.Request.Context(), request.PathParameter("recommendation-id"), body.Type)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, OutcomeResult{Changed: changed, Recommendation: record})
}

func (s *Server) recordOutcomeFeedback(request *restful.Request, response *restful.Response) {
	var body OutcomeFeedbackRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	record, err := s.Engine.Outcomes.RecordOutcomeFeedback(request.Request.Context(), request.PathParameter("recommendation-id"), body.Rating, body.Comment)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, record)
}

func (s *Server) insertFeedback(request *restful.Request, response *restful.Response) {
	var feedback logics.FeedbackRequest
	if err := request.ReadEntity(&feedback); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.Engine.Feedback(request.Request.Context(), feedback); err != nil {
		Error(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *Server) insertReview(request *restful.Request, response *restful.Response) {
	var review data.Review
	if err := request.ReadEntity(&review); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.Engine.RecordReview(request.Request.Context(), review); err != nil {
		Error(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *Server) applyGameResult(request *restful.Request, response *restful.Response) {
	var body GameResultRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	vector, err := s.Engine.ApplyGameResult(request.Request.Context(), body.UserId, body.GameResult)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, vector)
}

func (s *Server) getPreferences(request *restful.Request, response *restful.Response) {
	preference, err := s.Engine.GetPreferences(request.Request.Context(), request.PathParameter("user-id"))
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, preference)
}

func (s *Server) putPreferences(request *restful.Request, response *restful.Response) {
	var preference logics.UserPreference
	if err := request.ReadEntity(&preference); err != nil {
		BadRequest(response, err)
		return
	}
	if err := s.Engine.PutPreferences(request.Request.Context(), request.PathParameter("user-id"), &preference); err != nil {
		Error(response, err)
		return
	}
	Ok(response, Success{RowAffected: 1})
}

func (s *Server) getTasteVector(request *restful.Request, response *restful.Response) {
	vector, err := s.Engine.GetTasteVector(request.Request.Context(), request.PathParameter("user-id"))
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, vector)
}

func (s *Server) getSimilarUsers(request *restful.Request, response *restful.Response) {
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		Error(response, err)
		return
	}
	if n < 0 || n > s.Config.Server.MaxN {
		BadRequest(response, errors.NotValidf("limit %d", n))
		return
	}
	neighbors, err := s.Engine.Similarity.TopSimilar(request.Request.Context(), request.PathParameter("user-id"), n, s.Engine.Now())
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, neighbors)
}

func (s *Server) getSimilarity(request *restful.Request, response *restful.Response) {
	entry, _, err := s.Engine.Similarity.Get(request.Request.Context(),
		request.PathParameter("user-a"), request.PathParameter("user-b"), s.Engine.Now())
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, entry)
}

func (s *Server) recordExchange(request *restful.Request, response *restful.Response) {
	var body ExchangeRequest
	if err := request.ReadEntity(&body); err != nil {
		BadRequest(response, err)
		return
	}
	a, b := request.PathParameter("user-a"), request.PathParameter("user-b")
	from, to := a, b
	if body.From == b {
		from, to = b, a
	} else if body.From != "" && body.From != a {
		BadRequest(response, errors.NotValidf("sender %s", body.From))
		return
	}
	entry, err := s.Engine.Similarity.RecordExchange(request.Request.Context(), from, to, body.Accepted, s.Engine.Now())
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, entry)
}

func (s *Server) getAlgorithms(request *restful.Request, response *restful.Response) {
	records, err := s.Engine.Performances(request.Request.Context())
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, lo.Map(records, func(p *logics.AlgorithmPerformance, _ int) AlgorithmScore {
		return AlgorithmScore{AlgorithmPerformance: p, Score: p.CalculatePerformanceScore()}
	}))
}

func (s *Server) getBestAlgorithm(request *restful.Request, response *restful.Response) {
	diversity, err := ParseBool(request, "diversity")
	if err != nil {
		Error(response, err)
		return
	}
	speed, err := ParseBool(request, "speed")
	if err != nil {
		Error(response, err)
		return
	}
	algorithm, err := s.Engine.BestAlgorithm(request.Request.Context(), logics.SelectionContext{
		NeedDiversity: diversity,
		NeedSpeed:     speed,
		Segment:       request.QueryParameter("segment"),
	})
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, BestAlgorithm{Algorithm: algorithm})
}

func (s *Server) addABTest(request *restful.Request, response *restful.Response) {
	algorithm := request.PathParameter("algorithm")
	if _, ok := s.Config.Recommend.Algorithms[algorithm]; !ok {
		PageNotFound(response, errors.NotFoundf("algorithm %s", algorithm))
		return
	}
	var test logics.ABTest
	if err := request.ReadEntity(&test); err != nil {
		BadRequest(response, err)
		return
	}
	created, err := s.Engine.AddABTest(request.Request.Context(), algorithm, test)
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, created)
}

func (s *Server) analyzeABTest(request *restful.Request, response *restful.Response) {
	result, err := s.Engine.AnalyzeABTest(request.Request.Context(), request.PathParameter("algorithm"), request.PathParameter("test-id"))
	if err != nil {
		Error(response, err)
		return
	}
	Ok(response, result)
}

func (s *Server) checkLive(_ *restful.Request, response *restful.Response) {
	Ok(response, HealthStatus{Ready: s.ready.Load()})
}

func (s *Server) checkReady(_ *restful.Request, response *restful.Response) {
	status := HealthStatus{Ready: s.ready.Load()}
	if err := s.Engine.Data().Ping(); err != nil {
		status.Ready = false
		status.DataStoreErr = err.Error()
	}
	if err := s.Engine.Store.Cache().Ping(); err != nil {
		status.Ready = false
		status.CacheStoreErr = err.Error()
	}
	if !status.Ready {
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, status)
}

// Error writes err with the status code of its kind.
func Error(response *restful.Response, err error) {
	switch {
	case errors.Is(err, errors.NotValid):
		BadRequest(response, err)
	case errors.Is(err, errors.NotFound):
		PageNotFound(response, err)
	case errors.Is(err, errors.AlreadyExists):
		Conflict(response, err)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(response, http.StatusGatewayTimeout, err)
	default:
		InternalServerError(response, err)
	}
}

func writeError(response *restful.Response, status int, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err = response.WriteError(status, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

func BadRequest(response *restful.Response, err error) {
	log.ResponseLogger(response).Warn("bad request", zap.Error(err))
	writeError(response, http.StatusBadRequest, err)
}

func PageNotFound(response *restful.Response, err error) {
	writeError(response, http.StatusNotFound, err)
}

func Conflict(response *restful.Response, err error) {
	writeError(response, http.StatusConflict, err)
}

func InternalServerError(response *restful.Response, err error) {
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	writeError(response, http.StatusInternalServerError, err)
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content any) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}
