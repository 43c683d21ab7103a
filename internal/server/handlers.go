package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"rsi-sentry/internal/annotation"
	"rsi-sentry/internal/scheduler"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

// healthChecker 可以探测连接状态的预警记录
type healthChecker interface {
	Health() error
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status, journal := "ok", "memory"
	if hc, ok := s.deps.Journal.(healthChecker); ok {
		journal = "ok"
		if err := hc.Health(); err != nil {
			zap.L().Warn("⚠️ 数据库健康检查失败", zap.Error(err))
			status, journal = "degraded", err.Error()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"journal":  journal,
		"cycles":   s.deps.Scheduler.Cycles(),
		"toasts":   s.deps.Queue.Len(),
		"clients":  s.clients(),
		"inFlight": s.deps.Aggregator.InFlight(),
	})
}

func (s *Server) clients() int {
	if s.deps.Hub == nil {
		return 0
	}
	return s.deps.Hub.Clients()
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Aggregator.Snapshot()
	writeJSON(w, http.StatusOK, NewSnapshotView(snap, s.deps.Analyzer.Statuses()))
}

func (s *Server) handleListToasts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Queue.List())
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	// 未知或已过期的ID同样返回204
	s.deps.Queue.Dismiss(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Journal == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	events, err := s.deps.Journal.RecentAlerts(symbol, limit)
	if err != nil {
		zap.L().Error("❌ 查询预警记录失败", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type settingsResponse struct {
	scheduler.State
	Favorites []string `json:"favorites"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	resp := settingsResponse{State: s.deps.Scheduler.State(), Favorites: []string{}}
	if s.deps.Settings != nil {
		if fav := s.deps.Settings.Load(r.Context(), storage.Settings{}).Favorites; fav != nil {
			resp.Favorites = fav
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetTimeframe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Timeframe string `json:"timeframe"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tf, err := types.ParseTimeframe(req.Timeframe)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Scheduler.SetTimeframe(r.Context(), tf); err != nil {
		s.settingsSaveFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.State())
}

func (s *Server) handleSetSymbols(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbols []string `json:"symbols"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.deps.Scheduler.SetSymbols(r.Context(), req.Symbols); err != nil {
		if errors.Is(err, scheduler.ErrNoSymbols) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.settingsSaveFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.State())
}

func (s *Server) handleSetAlerts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("enabled is required"))
		return
	}
	if err := s.deps.Scheduler.SetAlertsEnabled(r.Context(), *req.Enabled); err != nil {
		s.settingsSaveFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Scheduler.State())
}

func (s *Server) handleSetFavorites(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Favorites []string `json:"favorites"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	favorites := scheduler.NormalizeSymbols(req.Favorites)
	if s.deps.Settings != nil {
		if err := s.deps.Settings.SaveFavorites(r.Context(), favorites); err != nil {
			s.settingsSaveFailed(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"favorites": favorites})
}

// settingsSaveFailed 内存中的设置已生效，只是没有持久化
func (s *Server) settingsSaveFailed(w http.ResponseWriter, err error) {
	zap.L().Error("❌ 保存设置失败", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err)
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
}

type annotationsResponse struct {
	Symbol      string                `json:"symbol"`
	Annotations []annotation.Record   `json:"annotations"`
	Rendered    []annotation.Rendered `json:"rendered,omitempty"`
}

func (s *Server) handleGetAnnotations(w http.ResponseWriter, r *http.Request) {
	symbol := symbolParam(r)
	items, err := s.deps.Layer.Annotations(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	resp := annotationsResponse{Symbol: symbol, Annotations: make([]annotation.Record, len(items))}
	for i, a := range items {
		resp.Annotations[i] = annotation.ToRecord(a)
	}

	q := r.URL.Query()
	if q.Has("width") || q.Has("height") {
		vp, err := parseViewport(q.Get("width"), q.Get("height"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp.Rendered = annotation.Render(items, vp)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseViewport(width, height string) (annotation.Viewport, error) {
	wv, err1 := strconv.ParseFloat(width, 64)
	hv, err2 := strconv.ParseFloat(height, 64)
	vp := annotation.Viewport{Width: wv, Height: hv}
	if err1 != nil || err2 != nil || !vp.Valid() {
		return annotation.Viewport{}, annotation.ErrEmptyViewport
	}
	return vp, nil
}

func (s *Server) handleClearAnnotations(w http.ResponseWriter, r *http.Request) {
	s.deps.Layer.SetActiveSymbol(symbolParam(r))
	if err := s.deps.Layer.Clear(r.Context()); err != nil {
		zap.L().Error("❌ 清空标注失败", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pointerEvent 图表上的一次指针事件。
// viewport 有效时 x/y 为像素坐标，否则视为已归一化的坐标。
type pointerEvent struct {
	Type     string              `json:"type"` // down, move, up, leave；为空时只修改工具和颜色
	X        float64             `json:"x"`
	Y        float64             `json:"y"`
	Viewport annotation.Viewport `json:"viewport"`
	Tool     string              `json:"tool,omitempty"`
	Color    string              `json:"color,omitempty"`
}

type pointerResponse struct {
	Symbol    string             `json:"symbol"`
	State     string             `json:"state"`
	Tool      annotation.Tool    `json:"tool"`
	Color     string             `json:"color"`
	Committed *annotation.Record `json:"committed"`
	Preview   *annotation.Record `json:"preview"`
}

func (ev pointerEvent) point() (annotation.Point, error) {
	if ev.Viewport.Valid() {
		return annotation.Normalize(ev.X, ev.Y, ev.Viewport)
	}
	return annotation.Normalize(ev.X, ev.Y, annotation.Viewport{Width: 1, Height: 1})
}

func (s *Server) handlePointerEvent(w http.ResponseWriter, r *http.Request) {
	var ev pointerEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	layer := s.deps.Layer
	layer.SetActiveSymbol(symbolParam(r))

	if ev.Tool != "" {
		tool, err := annotation.ParseTool(ev.Tool)
		if err == nil {
			err = layer.SetTool(tool)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	if ev.Color != "" {
		if err := layer.SetColor(ev.Color); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	p, err := ev.point()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var committed annotation.Annotation
	switch ev.Type {
	case "":
	case "down":
		err = layer.PointerDown(p)
	case "move":
		layer.PointerMove(p)
	case "up":
		committed, err = layer.PointerUp(r.Context(), p)
		if err != nil {
			if committed == nil {
				// 读取已有标注失败，本次没有提交
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			// 已提交到内存，只是持久化失败
			zap.L().Error("❌ 保存标注失败", zap.Error(err))
			err = nil
		}
	case "leave":
		layer.PointerLeave()
	default:
		err = fmt.Errorf("unknown pointer event %q", ev.Type)
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := pointerResponse{
		Symbol: layer.ActiveSymbol(),
		State:  layer.State().String(),
		Tool:   layer.Tool(),
		Color:  layer.Color(),
	}
	if committed != nil {
		rec := annotation.ToRecord(committed)
		resp.Committed = &rec
	}
	if preview := layer.Preview(); preview != nil {
		rec := annotation.ToRecord(preview)
		resp.Preview = &rec
	}
	writeJSON(w, http.StatusOK, resp)
}
