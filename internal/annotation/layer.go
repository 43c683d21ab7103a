package annotation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"rsi-sentry/internal/storage"
)

const (
	// DefaultMinStrokePoints 画笔最少采样点，单击产生的一个点会被丢弃
	DefaultMinStrokePoints = 2
	// DefaultColor 默认颜色
	DefaultColor = "#ff9800"

	keyPrefix = "annotations:"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ErrInvalidColor 颜色格式不是 #rrggbb
var ErrInvalidColor = errors.New("invalid annotation color")

// ErrNoActiveSymbol 没有选中交易对时不能绘制
var ErrNoActiveSymbol = errors.New("no active symbol")

// Options Layer 配置
type Options struct {
	Store           storage.Store
	MinStrokePoints int
}

// Layer 每个交易对一组标注，同一时间只有一个交易对处于绘制状态
type Layer struct {
	mu        sync.Mutex
	store     storage.Store
	minPoints int
	sets      map[string][]Annotation
	loaded    map[string]bool
	active    string
	tool      Tool
	color     string
	gesture   gesture
	newID     func() string
}

// NewLayer 创建标注层
func NewLayer(opts Options) *Layer {
	minPoints := opts.MinStrokePoints
	if minPoints <= 0 {
		minPoints = DefaultMinStrokePoints
	}
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &Layer{
		store:     store,
		minPoints: minPoints,
		sets:      make(map[string][]Annotation),
		loaded:    make(map[string]bool),
		tool:      ToolBrush,
		color:     DefaultColor,
		newID:     uuid.NewString,
	}
}

// SetActiveSymbol 切换绘制的交易对，进行中的手势被取消，已有数据保留
func (l *Layer) SetActiveSymbol(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if symbol != l.active {
		l.gesture.reset()
	}
	l.active = symbol
}

// ActiveSymbol 当前交易对
func (l *Layer) ActiveSymbol() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// SetTool 切换工具，进行中的手势被取消
func (l *Layer) SetTool(tool Tool) error {
	if _, err := ParseTool(string(tool)); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if tool != l.tool {
		l.gesture.reset()
	}
	l.tool = tool
	return nil
}

// Tool 当前工具
func (l *Layer) Tool() Tool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tool
}

// SetColor 只影响之后提交的标注
func (l *Layer) SetColor(color string) error {
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = color
	return nil
}

// Color 当前颜色
func (l *Layer) Color() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

// State 当前手势状态
func (l *Layer) State() GestureState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gesture.state
}

// PointerDown 开始一次手势。已在绘制中时忽略。
func (l *Layer) PointerDown(p Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == "" {
		return ErrNoActiveSymbol
	}
	l.gesture.begin(l.tool, l.color, p)
	return nil
}

// PointerMove 画笔追加采样点，趋势线更新预览终点
func (l *Layer) PointerMove(p Point) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gesture.move(p)
}

// PointerUp 结束手势并提交。返回提交的标注，被丢弃或没有手势时返回 nil。
func (l *Layer) PointerUp(ctx context.Context, p Point) (Annotation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	points, ok := l.gesture.release(p)
	if !ok {
		return nil, nil
	}
	defer l.gesture.reset()

	var a Annotation
	switch l.gesture.tool {
	case ToolTrendline:
		a = NewTrendline(l.newID(), l.gesture.color, points[0], points[1])
	default:
		if len(points) < l.minPoints {
			zap.L().Debug("笔迹采样点不足，丢弃",
				zap.String("symbol", l.active),
				zap.Int("points", len(points)))
			return nil, nil
		}
		a = NewStroke(l.newID(), l.gesture.color, points)
	}

	existing, err := l.setLocked(ctx, l.active)
	if err != nil {
		return nil, err
	}
	items := append(existing, a)
	l.sets[l.active] = items
	if err := l.saveLocked(ctx, l.active, items); err != nil {
		return a, err
	}
	return a, nil
}

// PointerLeave 指针离开图表，取消进行中的手势
func (l *Layer) PointerLeave() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gesture.state == StateDrawing {
		l.gesture.reset()
	}
}

// Preview 绘制中的临时图形，空闲时返回 nil
func (l *Layer) Preview() Annotation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gesture.preview()
}

// Annotations 返回某个交易对已提交的标注，按提交顺序
func (l *Layer) Annotations(ctx context.Context, symbol string) ([]Annotation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	items, err := l.setLocked(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return append([]Annotation(nil), items...), nil
}

// Clear 清空当前交易对的标注，其他交易对不受影响
func (l *Layer) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == "" {
		return nil
	}
	delete(l.sets, l.active)
	l.loaded[l.active] = true
	if err := l.store.Delete(ctx, keyPrefix+l.active); err != nil {
		return fmt.Errorf("clear annotations %s: %w", l.active, err)
	}
	return nil
}

// setLocked 懒加载交易对的标注。存储中的数据损坏时按空集合处理；
// 读取失败时不标记为已加载，下次调用重新读取，避免用空集合覆盖已保存的数据。
func (l *Layer) setLocked(ctx context.Context, symbol string) ([]Annotation, error) {
	if l.loaded[symbol] {
		return l.sets[symbol], nil
	}

	raw, err := l.store.Get(ctx, keyPrefix+symbol)
	if errors.Is(err, storage.ErrNotFound) {
		l.loaded[symbol] = true
		return nil, nil
	}
	if err != nil {
		zap.L().Warn("⚠️ 读取标注失败", zap.String("symbol", symbol), zap.Error(err))
		return nil, fmt.Errorf("load annotations %s: %w", symbol, err)
	}
	l.loaded[symbol] = true

	items, err := UnmarshalAnnotations(raw)
	if err != nil {
		zap.L().Warn("⚠️ 标注数据已损坏，按空处理", zap.String("symbol", symbol), zap.Error(err))
		return nil, nil
	}
	if len(items) > 0 {
		l.sets[symbol] = items
	}
	return items, nil
}

func (l *Layer) saveLocked(ctx context.Context, symbol string, items []Annotation) error {
	raw, err := MarshalAnnotations(items)
	if err != nil {
		return fmt.Errorf("marshal annotations %s: %w", symbol, err)
	}
	if err := l.store.Set(ctx, keyPrefix+symbol, raw); err != nil {
		return fmt.Errorf("save annotations %s: %w", symbol, err)
	}
	return nil
}
