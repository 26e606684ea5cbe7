package core

import "time"

// Daemon defaults
const (
	DefaultOllamaBaseURL   = "http://127.0.0.1:11434"
	OllamaGeneratePath     = "/api/generate"
	OllamaTagsPath         = "/api/tags"
	DefaultGenerateTimeout = 10 * time.Second
	DefaultTagsTimeout     = 5 * time.Second
)

// Gateway operation names, used as metric labels
const (
	OperationGenerate = "generate"
	OperationTags     = "tags"
)

// Gateway call outcomes, used as metric labels
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "upstream_rejected"
	OutcomeUnreachable = "unreachable"
	OutcomeMalformed   = "malformed_response"
)

// HTTP client config constants
const (
	HTTPMaxIdleConns          = 100
	HTTPMaxIdleConnsPerHost   = 10
	HTTPIdleConnTimeout       = 90 * time.Second
	HTTPExpectContinueTimeout = 1 * time.Second
)

// Response body size limits
const (
	MaxResponseBodySize = 10 * 1024 * 1024
	MaxRequestBodySize  = 10 << 20
)

// Stats and monitoring constants
const (
	StatsFilePath        = "stats.json"
	StatsRedisKey        = "ollamagate:stats"
	MinSaveInterval      = 5 * time.Second
	HistoryBufferSize    = 1000
	HistoryBatchSize     = 100
	HistoryFlushInterval = 100 * time.Millisecond
)

// Default config constants
const (
	DefaultPort      = "7860"
	DefaultGinMode   = "release"
	DefaultRateLimit = 120
	CORSMaxAge       = "86400"
)

// Content type and header constants
const (
	ContentTypeJSON   = "application/json"
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// Logging config constants
const (
	MaxDebugFilePathLength = 260
)

// File permission constants
const (
	FilePermissionReadWrite = 0644
)

// Time format constants
const (
	TimeFormatDateTime = "2006-01-02 15:04:05"
)
