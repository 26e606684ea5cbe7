package server

import (
	"net/http"
	"time"

	"ollamagate/internal/core"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
)

const (
	endpointGenerate     = "/ai/ollama/generate"
	endpointTags         = "/ai/ollama/tags"
	endpointModels       = "/ai/ollama/models"
	endpointAvailability = "/ai/ollama/availability"
)

// ollamaGenerate forwards the request body verbatim to the daemon.
func (s *Server) ollamaGenerate(c *gin.Context) {
	startTime := time.Now()

	body, err := c.GetRawData()
	if err != nil || !sonic.Valid(body) {
		recordRequestResultWithMetrics(s.metricsService, false, startTime, "", endpointGenerate)
		respondWithError(c, http.StatusBadRequest, core.MsgInvalidRequestBody)
		return
	}
	model := modelFromBody(body)

	result, err := s.gateway.ForwardGenerate(c.Request.Context(), body)
	if err != nil {
		recordRequestResultWithMetrics(s.metricsService, false, startTime, model, endpointGenerate)
		if status, rejected := upstreamStatus(err); rejected {
			respondWithError(c, status, core.MsgGenerateFailed)
			return
		}
		s.logger.Error("[%s] Error calling Ollama generate: %v", requestID(c), err)
		respondWithError(c, http.StatusServiceUnavailable, core.MsgCannotConnect)
		return
	}

	recordRequestResultWithMetrics(s.metricsService, true, startTime, model, endpointGenerate)
	c.Data(result.Status, core.ContentTypeJSON, result.Body)
}

// ollamaTags relays the daemon's tag listing unchanged.
func (s *Server) ollamaTags(c *gin.Context) {
	startTime := time.Now()

	tags, err := s.gateway.ListTags(c.Request.Context())
	if err != nil {
		recordRequestResultWithMetrics(s.metricsService, false, startTime, "", endpointTags)
		if status, rejected := upstreamStatus(err); rejected {
			respondWithError(c, status, core.MsgFetchTagsFailed)
			return
		}
		s.logger.Error("[%s] Error fetching Ollama models: %v", requestID(c), err)
		respondWithError(c, http.StatusServiceUnavailable, core.MsgCannotConnect)
		return
	}

	recordRequestResultWithMetrics(s.metricsService, true, startTime, "", endpointTags)
	c.Data(http.StatusOK, core.ContentTypeJSON, tags.Raw)
}

// ollamaModels returns the installed model names as a ModelListResult.
func (s *Server) ollamaModels(c *gin.Context) {
	startTime := time.Now()

	result := s.availability.FetchRunningModels(c.Request.Context())
	recordRequestResultWithMetrics(s.metricsService, result.Error == "", startTime, "", endpointModels)
	c.JSON(http.StatusOK, result)
}

type availabilityQuery struct {
	Model    string `form:"model"`
	Provider string `form:"provider"`
}

// ollamaAvailability reports whether the requested model can be used.
func (s *Server) ollamaAvailability(c *gin.Context) {
	startTime := time.Now()

	var query availabilityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	provider := core.ProviderOllama
	if query.Provider != "" {
		parsed, err := core.ParseProviderKind(query.Provider)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		provider = parsed
	}

	result := s.availability.CheckModelAvailability(c.Request.Context(), query.Model, provider)
	s.metricsService.RecordAvailabilityCheck(result)
	recordRequestResultWithMetrics(s.metricsService, result.IsRunning, startTime, query.Model, endpointAvailability)
	c.JSON(http.StatusOK, result)
}

// modelFromBody extracts the "model" field for stats; absent or non-string yields "".
func modelFromBody(body []byte) string {
	node, err := sonic.Get(body, "model")
	if err != nil {
		return ""
	}
	model, err := node.StrictString()
	if err != nil {
		return ""
	}
	return model
}
