package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"ollamagate/internal/config"
	"ollamagate/internal/core"
	"ollamagate/internal/storage"

	"github.com/bytedance/sonic"
)

func newTestServer(t *testing.T, ollamaURL string, st core.StorageInterface) *Server {
	t.Helper()

	if st == nil {
		st = storage.NewFileStorage(filepath.Join(t.TempDir(), "stats.json"))
	}
	cfg := config.DefaultServerConfig()
	cfg.Port = "0"
	cfg.GinMode = "test"
	cfg.OllamaBaseURL = ollamaURL
	cfg.GenerateTimeout = 300 * time.Millisecond
	cfg.TagsTimeout = 200 * time.Millisecond
	cfg.RateLimit = 1000
	cfg.Storage = st
	cfg.Logger = &core.NopLogger{}

	server, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("创建测试 Server 失败: %v", err)
	}
	t.Cleanup(func() {
		_ = server.Close()
		_ = st.Close()
	})
	return server
}

// fakeOllama serves /api/tags and /api/generate with configurable responses.
type fakeOllama struct {
	mu             sync.Mutex
	tagsStatus     int
	tagsBody       string
	generateStatus int
	generateBody   string
	lastGenerate   []byte
	tagsCalls      int
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case core.OllamaTagsPath:
		f.tagsCalls++
		w.WriteHeader(f.tagsStatus)
		_, _ = io.WriteString(w, f.tagsBody)
	case core.OllamaGeneratePath:
		f.lastGenerate, _ = io.ReadAll(r.Body)
		w.WriteHeader(f.generateStatus)
		_, _ = io.WriteString(w, f.generateBody)
	default:
		http.NotFound(w, r)
	}
}

func newFakeOllama(t *testing.T) (*fakeOllama, string) {
	t.Helper()
	f := &fakeOllama{
		tagsStatus:     http.StatusOK,
		tagsBody:       `{"models":[{"name":"llama3","size":1},{"name":"mistral"}]}`,
		generateStatus: http.StatusOK,
		generateBody:   `{"model":"llama3","response":"hello","done":true}`,
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func deadOllamaURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func doRequest(server *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(core.HeaderContentType, core.ContentTypeJSON)
	}
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := sonic.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("响应不是合法 JSON: %v (%s)", err, w.Body.String())
	}
}

func assertErrorBody(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantMsg string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("期望状态码 %d，实际 %d (%s)", wantStatus, w.Code, w.Body.String())
	}
	var body map[string]string
	decodeBody(t, w, &body)
	if body["error"] != wantMsg {
		t.Fatalf("期望错误 %q，实际 %q", wantMsg, body["error"])
	}
}

func TestServerRoutes_Health(t *testing.T) {
	_, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/health 应返回 200，实际 %d", w.Code)
	}
	if w.Header().Get(core.HeaderRequestID) == "" {
		t.Error("响应应包含 X-Request-ID")
	}
}

func TestGenerate_ForwardsVerbatim(t *testing.T) {
	fake, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	payload := []byte(`{"model":"llama3","prompt":"hi","stream":false}`)
	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", payload)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d (%s)", w.Code, w.Body.String())
	}
	if w.Body.String() != fake.generateBody {
		t.Errorf("响应体应原样透传，实际 %s", w.Body.String())
	}
	if !bytes.Equal(fake.lastGenerate, payload) {
		t.Errorf("请求体应原样转发，实际 %s", fake.lastGenerate)
	}
}

func TestGenerate_UpstreamError(t *testing.T) {
	fake, url := newFakeOllama(t)
	fake.generateStatus = http.StatusInternalServerError
	fake.generateBody = `{"error":"out of memory"}`
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":"llama3"}`))
	assertErrorBody(t, w, http.StatusInternalServerError, core.MsgGenerateFailed)
}

func TestGenerate_UpstreamNotFoundKeepsStatus(t *testing.T) {
	fake, url := newFakeOllama(t)
	fake.generateStatus = http.StatusNotFound
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":"missing"}`))
	assertErrorBody(t, w, http.StatusNotFound, core.MsgGenerateFailed)
}

func TestGenerate_NetworkFailure(t *testing.T) {
	server := newTestServer(t, deadOllamaURL(t), nil)

	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":"llama3"}`))
	assertErrorBody(t, w, http.StatusServiceUnavailable, core.MsgCannotConnect)
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	server := newTestServer(t, slow.URL, nil)

	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":"llama3"}`))
	assertErrorBody(t, w, http.StatusServiceUnavailable, core.MsgCannotConnect)
}

func TestGenerate_InvalidBody(t *testing.T) {
	_, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":`))
	assertErrorBody(t, w, http.StatusBadRequest, core.MsgInvalidRequestBody)
}

func TestTags_RelaysDaemonBody(t *testing.T) {
	fake, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if w.Body.String() != fake.tagsBody {
		t.Errorf("响应体应原样透传，实际 %s", w.Body.String())
	}
}

func TestTags_RelaysUnusualFieldTypes(t *testing.T) {
	fake, url := newFakeOllama(t)
	fake.tagsBody = `{"models":[{"name":"llama3","size":"4.7 GB","details":"q4","modified_at":1700000000}]}`
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d (%s)", w.Code, w.Body.String())
	}
	if w.Body.String() != fake.tagsBody {
		t.Errorf("响应体应原样透传，实际 %s", w.Body.String())
	}
}

func TestTags_UpstreamError(t *testing.T) {
	fake, url := newFakeOllama(t)
	fake.tagsStatus = http.StatusBadGateway
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)
	assertErrorBody(t, w, http.StatusBadGateway, core.MsgFetchTagsFailed)
}

func TestTags_NetworkFailure(t *testing.T) {
	server := newTestServer(t, deadOllamaURL(t), nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)
	assertErrorBody(t, w, http.StatusServiceUnavailable, core.MsgCannotConnect)
}

func TestModels_ListsNamesInOrder(t *testing.T) {
	fake, url := newFakeOllama(t)
	fake.tagsBody = `{"models":[{"name":"zephyr"},{"name":"alpha"},{"name":"llama3"}]}`
	server := newTestServer(t, url, nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/models", nil)
	var result core.ModelListResult
	decodeBody(t, w, &result)
	if w.Code != http.StatusOK || result.Error != "" {
		t.Fatalf("期望成功，实际 %d %+v", w.Code, result)
	}
	if strings.Join(result.Models, ",") != "zephyr,alpha,llama3" {
		t.Errorf("模型顺序应保持不变，实际 %v", result.Models)
	}
}

func TestModels_DaemonDown(t *testing.T) {
	server := newTestServer(t, deadOllamaURL(t), nil)

	w := doRequest(server, http.MethodGet, "/ai/ollama/models", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"models":[]`) {
		t.Errorf("失败时 models 应为空数组，实际 %s", w.Body.String())
	}
	var result core.ModelListResult
	decodeBody(t, w, &result)
	if result.Error != core.MsgListModelsFailed {
		t.Errorf("错误信息不符，实际 %q", result.Error)
	}
}

func TestAvailability(t *testing.T) {
	fake, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	tests := []struct {
		name        string
		query       string
		wantStatus  int
		wantRunning bool
		wantError   string
	}{
		{"已安装", "?model=llama3", http.StatusOK, true, ""},
		{"显式指定 ollama", "?model=llama3&provider=ollama", http.StatusOK, true, ""},
		{"未安装", "?model=phi3", http.StatusOK, false, "phi3 is not installed"},
		{"未选择模型", "", http.StatusOK, false, core.MsgNoModelSelected},
		{"其他 provider", "?model=gpt-4o&provider=openai", http.StatusOK, true, ""},
		{"未知 provider", "?model=x&provider=unknown", http.StatusBadRequest, false, core.MsgUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, http.MethodGet, "/ai/ollama/availability"+tt.query, nil)
			if w.Code != tt.wantStatus {
				t.Fatalf("期望状态码 %d，实际 %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if !strings.Contains(w.Body.String(), tt.wantError) {
					t.Errorf("错误信息应包含 %q，实际 %s", tt.wantError, w.Body.String())
				}
				return
			}
			var result core.AvailabilityResult
			decodeBody(t, w, &result)
			if result.IsRunning != tt.wantRunning {
				t.Errorf("isRunning 期望 %v，实际 %v", tt.wantRunning, result.IsRunning)
			}
			if !strings.Contains(result.Error, tt.wantError) {
				t.Errorf("错误信息应包含 %q，实际 %q", tt.wantError, result.Error)
			}
		})
	}

	fake.mu.Lock()
	calls := fake.tagsCalls
	fake.mu.Unlock()
	if calls != 3 {
		t.Errorf("只有 ollama 且选择了模型时才应查询守护进程，实际调用 %d 次", calls)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)

	w := doRequest(server, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics 应返回 200，实际 %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `ollamagate_upstream_calls_total{operation="tags",outcome="success"} 1`) {
		t.Errorf("/metrics 应包含上游调用计数")
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	doRequest(server, http.MethodGet, "/ai/ollama/tags", nil)
	doRequest(server, http.MethodPost, "/ai/ollama/generate", []byte(`{"model":"llama3"}`))

	w := doRequest(server, http.MethodGet, "/api/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/api/stats 应返回 200，实际 %d", w.Code)
	}
	var body struct {
		TotalRequests int64  `json:"totalRequests"`
		OllamaBaseURL string `json:"ollamaBaseUrl"`
	}
	decodeBody(t, w, &body)
	if body.TotalRequests != 2 {
		t.Errorf("期望 2 个请求，实际 %d", body.TotalRequests)
	}
	if body.OllamaBaseURL != url {
		t.Errorf("期望地址 %s，实际 %s", url, body.OllamaBaseURL)
	}
}

type spyStorage struct {
	mu       sync.Mutex
	saveCall int
	lastStat core.RequestStats
}

func (s *spyStorage) SaveStats(stats *core.RequestStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.saveCall++
	if stats != nil {
		s.lastStat = *stats
		s.lastStat.RequestHistory = append([]core.RequestRecord(nil), stats.RequestHistory...)
	}
	return nil
}

func (s *spyStorage) LoadStats() (*core.RequestStats, error) {
	return &core.RequestStats{}, nil
}

func (s *spyStorage) Close() error {
	return nil
}

func (s *spyStorage) snapshot() (int, core.RequestStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statsCopy := s.lastStat
	statsCopy.RequestHistory = append([]core.RequestRecord(nil), s.lastStat.RequestHistory...)
	return s.saveCall, statsCopy
}

func TestServerClose_PersistsBufferedMetrics(t *testing.T) {
	_, url := newFakeOllama(t)
	st := &spyStorage{}
	server := newTestServer(t, url, st)

	server.metricsService.RecordRequest(true, 10, "llama3", endpointGenerate)
	server.metricsService.RecordRequest(false, 20, "llama3", endpointGenerate)

	beforeSaves, beforeStats := st.snapshot()
	if beforeStats.TotalRequests != 1 {
		t.Fatalf("关闭前应只持久化首条记录，实际 total=%d", beforeStats.TotalRequests)
	}

	if err := server.Close(); err != nil {
		t.Fatalf("关闭 Server 失败: %v", err)
	}

	afterSaves, afterStats := st.snapshot()
	if afterSaves <= beforeSaves {
		t.Fatalf("关闭后应触发最终持久化，save 次数 %d -> %d", beforeSaves, afterSaves)
	}
	if afterStats.TotalRequests != 2 {
		t.Fatalf("关闭后应持久化全部请求，实际 total=%d", afterStats.TotalRequests)
	}
	if len(afterStats.RequestHistory) != 2 {
		t.Fatalf("关闭后应持久化完整历史，实际 history=%d", len(afterStats.RequestHistory))
	}
}

func TestServerClose_Idempotent(t *testing.T) {
	_, url := newFakeOllama(t)
	server := newTestServer(t, url, nil)

	if err := server.Close(); err != nil {
		t.Fatalf("第一次关闭失败: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("第二次关闭失败: %v", err)
	}
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	cfg := config.DefaultServerConfig()
	if _, err := NewServer(cfg); err == nil {
		t.Error("缺少 Logger 时应返回错误")
	}
	cfg.Logger = &core.NopLogger{}
	if _, err := NewServer(cfg); err == nil {
		t.Error("缺少 Storage 时应返回错误")
	}
	cfg.Storage = storage.NewFileStorage(filepath.Join(t.TempDir(), "stats.json"))
	cfg.OllamaBaseURL = "not a url"
	if _, err := NewServer(cfg); err == nil {
		t.Error("无效的 Ollama 地址应返回错误")
	}
}

func TestMain(m *testing.M) {
	os.Exit(m.Run())
}
