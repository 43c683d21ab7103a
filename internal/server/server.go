package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/internal/aggregator"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/annotation"
	"rsi-sentry/internal/database"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/scheduler"
	"rsi-sentry/internal/storage"
)

// Deps 服务依赖的组件
type Deps struct {
	Aggregator *aggregator.Aggregator
	Analyzer   *analyzer.AnalysisEngine
	Scheduler  *scheduler.Scheduler
	Queue      *notifier.Queue
	Layer      *annotation.Layer
	Journal    database.AlertJournal
	Settings   *storage.SettingsStore
	Hub        *Hub
}

// Server 看板的HTTP/WebSocket接口
type Server struct {
	deps       Deps
	mux        *http.ServeMux
	httpServer *http.Server
}

// New 创建服务并注册路由
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	s.mux.HandleFunc("GET /api/toasts", s.handleListToasts)
	s.mux.HandleFunc("DELETE /api/toasts/{id}", s.handleDismissToast)
	s.mux.HandleFunc("GET /api/alerts", s.handleRecentAlerts)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings/timeframe", s.handleSetTimeframe)
	s.mux.HandleFunc("PUT /api/settings/symbols", s.handleSetSymbols)
	s.mux.HandleFunc("PUT /api/settings/alerts", s.handleSetAlerts)
	s.mux.HandleFunc("PUT /api/settings/favorites", s.handleSetFavorites)
	s.mux.HandleFunc("GET /api/annotations/{symbol}", s.handleGetAnnotations)
	s.mux.HandleFunc("DELETE /api/annotations/{symbol}", s.handleClearAnnotations)
	s.mux.HandleFunc("POST /api/annotations/{symbol}/events", s.handlePointerEvent)
	if s.deps.Hub != nil {
		s.mux.Handle("GET /ws", s.deps.Hub)
	}
}

// Handler 路由，测试时直接挂到 httptest
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start 在后台监听，监听失败只记录日志
func (s *Server) Start() {
	go func() {
		zap.L().Info("🌐 HTTP服务启动", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("❌ HTTP服务异常退出", zap.Error(err))
		}
	}()
}

// Shutdown 断开WebSocket并等待请求处理完
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("写入响应失败", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
