package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"ollamagate/internal/core"
)

// MetricsConfig configuration for MetricsService
type MetricsConfig struct {
	SaveInterval time.Duration
	HistorySize  int
	Storage      core.StorageInterface
	Logger       core.Logger
}

// MetricsService keeps request statistics for /api/stats, persists them
// through the configured storage and exports Prometheus collectors.
type MetricsService struct {
	totalRequests      atomic.Int64
	successfulRequests atomic.Int64
	failedRequests     atomic.Int64
	totalResponseTime  atomic.Int64

	historyMu       sync.RWMutex
	requestHistory  []core.RequestRecord
	lastRequestTime time.Time
	lastSaveTime    time.Time
	maxHistorySize  int
	minSaveInterval time.Duration

	bufferMu      sync.Mutex
	historyBuffer []core.RequestRecord
	flushTicker   *time.Ticker

	recentMu       sync.Mutex
	recentRequests []time.Time

	storage core.StorageInterface
	logger  core.Logger
	prom    *promCollectors

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewMetricsService creates a new MetricsService
func NewMetricsService(config MetricsConfig) *MetricsService {
	if config.HistorySize <= 0 {
		config.HistorySize = core.HistoryBufferSize
	}
	if config.Logger == nil {
		config.Logger = &core.NopLogger{}
	}

	ms := &MetricsService{
		maxHistorySize:  config.HistorySize,
		minSaveInterval: config.SaveInterval,
		historyBuffer:   make([]core.RequestRecord, 0, core.HistoryBatchSize),
		storage:         config.Storage,
		logger:          config.Logger,
		prom:            newPromCollectors(),
		done:            make(chan struct{}),
		flushTicker:     time.NewTicker(core.HistoryFlushInterval),
	}

	go ms.flushLoop()
	return ms
}

func (ms *MetricsService) flushLoop() {
	for {
		select {
		case <-ms.flushTicker.C:
			ms.flushBuffer()
		case <-ms.done:
			return
		}
	}
}

func (ms *MetricsService) flushBuffer() {
	ms.bufferMu.Lock()
	if len(ms.historyBuffer) == 0 {
		ms.bufferMu.Unlock()
		return
	}
	batch := ms.historyBuffer
	ms.historyBuffer = make([]core.RequestRecord, 0, core.HistoryBatchSize)
	ms.bufferMu.Unlock()

	ms.historyMu.Lock()
	ms.requestHistory = append(ms.requestHistory, batch...)
	if len(ms.requestHistory) > ms.maxHistorySize {
		ms.requestHistory = ms.requestHistory[len(ms.requestHistory)-ms.maxHistorySize:]
	}
	ms.historyMu.Unlock()
}

// RecordRequest records the result of one proxied request.
func (ms *MetricsService) RecordRequest(success bool, responseTime int64, model string, endpoint string) {
	now := time.Now()

	ms.historyMu.Lock()
	ms.lastRequestTime = now
	ms.historyMu.Unlock()

	ms.totalRequests.Add(1)
	ms.totalResponseTime.Add(responseTime)
	if success {
		ms.successfulRequests.Add(1)
	} else {
		ms.failedRequests.Add(1)
	}

	ms.recentMu.Lock()
	ms.recentRequests = append(ms.recentRequests, now)
	ms.pruneRecentLocked(now)
	ms.recentMu.Unlock()

	ms.bufferMu.Lock()
	ms.historyBuffer = append(ms.historyBuffer, core.RequestRecord{
		Timestamp:    now,
		Success:      success,
		ResponseTime: responseTime,
		Model:        model,
		Endpoint:     endpoint,
	})
	shouldFlush := len(ms.historyBuffer) >= core.HistoryBatchSize
	ms.bufferMu.Unlock()

	if shouldFlush {
		ms.flushBuffer()
	}

	ms.SaveStatsDebounced()
}

// RecordUpstreamCall implements core.MetricsCollector.
func (ms *MetricsService) RecordUpstreamCall(operation string, outcome string, duration time.Duration) {
	ms.prom.upstreamCalls.WithLabelValues(operation, outcome).Inc()
	ms.prom.upstreamDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPResponse records one served HTTP response.
func (ms *MetricsService) RecordHTTPResponse(route, method string, status int, duration time.Duration) {
	ms.prom.httpRequests.WithLabelValues(route, method, statusClass(status)).Inc()
	ms.prom.httpDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordAvailabilityCheck records the reason of one availability check.
func (ms *MetricsService) RecordAvailabilityCheck(result core.AvailabilityResult) {
	reason := string(result.Reason)
	if result.IsRunning {
		reason = "ready"
	}
	ms.prom.availabilityChecks.WithLabelValues(reason).Inc()
}

func (ms *MetricsService) pruneRecentLocked(now time.Time) {
	cutoff := now.Add(-1 * time.Minute)
	startIdx := 0
	for startIdx < len(ms.recentRequests) && ms.recentRequests[startIdx].Before(cutoff) {
		startIdx++
	}
	if startIdx > 0 {
		ms.recentRequests = append([]time.Time(nil), ms.recentRequests[startIdx:]...)
	}
}

// GetQPS returns the request rate over the last minute.
func (ms *MetricsService) GetQPS() float64 {
	ms.recentMu.Lock()
	defer ms.recentMu.Unlock()

	ms.pruneRecentLocked(time.Now())
	if len(ms.recentRequests) == 0 {
		return 0
	}
	return math.Round(float64(len(ms.recentRequests))/60.0*1000) / 1000
}

// GetRequestStats returns current stats snapshot
func (ms *MetricsService) GetRequestStats() core.RequestStats {
	ms.flushBuffer()
	ms.historyMu.RLock()
	defer ms.historyMu.RUnlock()

	historyCopy := make([]core.RequestRecord, len(ms.requestHistory))
	copy(historyCopy, ms.requestHistory)

	return core.RequestStats{
		TotalRequests:      ms.totalRequests.Load(),
		SuccessfulRequests: ms.successfulRequests.Load(),
		FailedRequests:     ms.failedRequests.Load(),
		TotalResponseTime:  ms.totalResponseTime.Load(),
		LastRequestTime:    ms.lastRequestTime,
		RequestHistory:     historyCopy,
	}
}

// GetPeriodStats computes period statistics for multiple hour windows in a single pass.
func GetPeriodStats(history []core.RequestRecord, hourPeriods ...int) map[int]core.PeriodStats {
	if len(hourPeriods) == 0 {
		return nil
	}

	now := time.Now()
	cutoffs := make([]time.Time, len(hourPeriods))
	requests := make([]int64, len(hourPeriods))
	successful := make([]int64, len(hourPeriods))
	responseTime := make([]int64, len(hourPeriods))

	for i, hours := range hourPeriods {
		cutoffs[i] = now.Add(-time.Duration(hours) * time.Hour)
	}

	for _, record := range history {
		for i, cutoff := range cutoffs {
			if record.Timestamp.After(cutoff) {
				requests[i]++
				responseTime[i] += record.ResponseTime
				if record.Success {
					successful[i]++
				}
			}
		}
	}

	result := make(map[int]core.PeriodStats, len(hourPeriods))
	for i, hours := range hourPeriods {
		stats := core.PeriodStats{
			Requests: requests[i],
			QPS:      float64(requests[i]) / (float64(hours) * 3600.0),
		}
		if requests[i] > 0 {
			stats.SuccessRate = float64(successful[i]) / float64(requests[i]) * 100
			stats.AvgResponseTime = responseTime[i] / requests[i]
		}
		result[hours] = stats
	}
	return result
}

// LoadStats loads stats from storage
func (ms *MetricsService) LoadStats() error {
	if ms.storage == nil {
		return nil
	}
	stats, err := ms.storage.LoadStats()
	if err != nil {
		return err
	}

	ms.totalRequests.Store(stats.TotalRequests)
	ms.successfulRequests.Store(stats.SuccessfulRequests)
	ms.failedRequests.Store(stats.FailedRequests)
	ms.totalResponseTime.Store(stats.TotalResponseTime)

	ms.historyMu.Lock()
	ms.lastRequestTime = stats.LastRequestTime
	ms.requestHistory = stats.RequestHistory
	if len(ms.requestHistory) > ms.maxHistorySize {
		ms.requestHistory = ms.requestHistory[len(ms.requestHistory)-ms.maxHistorySize:]
	}
	ms.historyMu.Unlock()

	return nil
}

// SaveStatsDebounced saves stats at most once per minSaveInterval.
func (ms *MetricsService) SaveStatsDebounced() {
	now := time.Now()
	ms.historyMu.Lock()
	if now.Sub(ms.lastSaveTime) < ms.minSaveInterval {
		ms.historyMu.Unlock()
		return
	}
	ms.lastSaveTime = now
	ms.historyMu.Unlock()

	if ms.storage == nil {
		return
	}

	stats := ms.GetRequestStats()
	if err := ms.storage.SaveStats(&stats); err != nil {
		ms.logger.Warn("Failed to save stats: %v", err)
	}
}

// Close flushes and persists the final stats. Safe to call more than once.
func (ms *MetricsService) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.flushTicker.Stop()
		ms.flushBuffer()

		if ms.storage != nil {
			stats := ms.GetRequestStats()
			ms.closeErr = ms.storage.SaveStats(&stats)
		}
	})
	return ms.closeErr
}

// RecordSuccessWithMetrics records successful request
func RecordSuccessWithMetrics(metrics *MetricsService, startTime time.Time, model, endpoint string) {
	metrics.RecordRequest(true, time.Since(startTime).Milliseconds(), model, endpoint)
}

// RecordFailureWithMetrics records failed request
func RecordFailureWithMetrics(metrics *MetricsService, startTime time.Time, model, endpoint string) {
	metrics.RecordRequest(false, time.Since(startTime).Milliseconds(), model, endpoint)
}
