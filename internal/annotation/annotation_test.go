package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rsi-sentry/internal/storage"
)

func TestNormalizeAndProject(t *testing.T) {
	vp := Viewport{Width: 800, Height: 400}

	p, err := Normalize(200, 100, vp)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, p.X, 1e-9)
	assert.InDelta(t, 0.25, p.Y, 1e-9)

	// 超出边界截断
	p, err = Normalize(-10, 900, vp)
	require.NoError(t, err)
	assert.Equal(t, Point{X: 0, Y: 1}, p)

	_, err = Normalize(1, 1, Viewport{})
	assert.ErrorIs(t, err, ErrEmptyViewport)

	px := Project(Point{X: 0.5, Y: 0.5}, Viewport{Width: 1000, Height: 300})
	assert.Equal(t, PixelPoint{X: 500, Y: 150}, px)
}

func TestProjectionDoesNotMutateStoredPoints(t *testing.T) {
	s := NewStroke("id", DefaultColor, []Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}})
	small := s.Project(Viewport{Width: 100, Height: 100})
	large := s.Project(Viewport{Width: 2000, Height: 1000})

	assert.Equal(t, PixelPoint{X: 10, Y: 20}, small[0])
	assert.Equal(t, PixelPoint{X: 200, Y: 200}, large[0])
	assert.Equal(t, []Point{{X: 0.1, Y: 0.2}, {X: 0.3, Y: 0.4}}, s.Points())
}

func TestParseTool(t *testing.T) {
	tool, err := ParseTool("trendline")
	require.NoError(t, err)
	assert.Equal(t, ToolTrendline, tool)

	_, err = ParseTool("eraser")
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func newTestLayer(store storage.Store) *Layer {
	l := NewLayer(Options{Store: store})
	l.SetActiveSymbol("BTCUSDT")
	return l
}

func TestBrushStroke(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(nil)

	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	assert.Equal(t, StateDrawing, l.State())
	l.PointerMove(Point{X: 0.2, Y: 0.2})
	l.PointerMove(Point{X: 0.3, Y: 0.3})

	preview := l.Preview()
	require.NotNil(t, preview)
	assert.Len(t, preview.Points(), 3)

	a, err := l.PointerUp(ctx, Point{X: 0.3, Y: 0.3})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, KindStroke, a.Kind())
	assert.Len(t, a.Points(), 3)
	assert.NotEmpty(t, a.ID())
	assert.Equal(t, StateIdle, l.State())
	assert.Nil(t, l.Preview())

	assert.Len(t, mustAnnotations(t, l, "BTCUSDT"), 1)
}

func TestSingleClickStrokeDiscarded(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(nil)

	require.NoError(t, l.PointerDown(Point{X: 0.5, Y: 0.5}))
	a, err := l.PointerUp(ctx, Point{X: 0.5, Y: 0.5})
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, mustAnnotations(t, l, "BTCUSDT"))
	assert.Equal(t, StateIdle, l.State())
}

func TestMinStrokePointsConfigurable(t *testing.T) {
	ctx := context.Background()
	l := NewLayer(Options{MinStrokePoints: 4})
	l.SetActiveSymbol("ETHUSDT")

	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	l.PointerMove(Point{X: 0.2, Y: 0.2})
	l.PointerMove(Point{X: 0.3, Y: 0.3})
	a, err := l.PointerUp(ctx, Point{})
	require.NoError(t, err)
	assert.Nil(t, a)

	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	for i := 0; i < 3; i++ {
		l.PointerMove(Point{X: 0.2, Y: 0.2})
	}
	a, err = l.PointerUp(ctx, Point{})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestTrendline(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(nil)
	require.NoError(t, l.SetTool(ToolTrendline))
	require.NoError(t, l.SetColor("#2196f3"))

	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.9}))
	l.PointerMove(Point{X: 0.4, Y: 0.6})
	l.PointerMove(Point{X: 0.6, Y: 0.4})

	preview, ok := l.Preview().(*Trendline)
	require.True(t, ok)
	assert.Equal(t, Point{X: 0.1, Y: 0.9}, preview.Start())
	assert.Equal(t, Point{X: 0.6, Y: 0.4}, preview.End())

	a, err := l.PointerUp(ctx, Point{X: 0.8, Y: 0.2})
	require.NoError(t, err)
	line, ok := a.(*Trendline)
	require.True(t, ok)
	assert.Equal(t, Point{X: 0.1, Y: 0.9}, line.Start())
	assert.Equal(t, Point{X: 0.8, Y: 0.2}, line.End())
	assert.Equal(t, "#2196f3", line.Color())
}

func TestPointerLeaveCancels(t *testing.T) {
	ctx := context.Background()
	l := newTestLayer(nil)

	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	l.PointerMove(Point{X: 0.2, Y: 0.2})
	l.PointerLeave()
	assert.Equal(t, StateIdle, l.State())

	a, err := l.PointerUp(ctx, Point{X: 0.3, Y: 0.3})
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Empty(t, mustAnnotations(t, l, "BTCUSDT"))
}

func TestSwitchSymbolCancelsGestureKeepsData(t *testing.T) {
	l := newTestLayer(nil)

	drawStroke(t, l)
	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	l.PointerMove(Point{X: 0.2, Y: 0.2})

	l.SetActiveSymbol("ETHUSDT")
	assert.Equal(t, StateIdle, l.State())
	assert.Len(t, mustAnnotations(t, l, "BTCUSDT"), 1)
	assert.Empty(t, mustAnnotations(t, l, "ETHUSDT"))
}

func TestColorAffectsOnlyLaterCommits(t *testing.T) {
	l := newTestLayer(nil)

	first := drawStroke(t, l)
	require.NoError(t, l.SetColor("#00ff00"))
	second := drawStroke(t, l)

	items := mustAnnotations(t, l, "BTCUSDT")
	require.Len(t, items, 2)
	assert.Equal(t, DefaultColor, first.Color())
	assert.Equal(t, DefaultColor, items[0].Color())
	assert.Equal(t, "#00ff00", second.Color())

	assert.ErrorIs(t, l.SetColor("green"), ErrInvalidColor)
}

func TestClearOnlyActiveSymbol(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLayer(store)

	drawStroke(t, l)
	l.SetActiveSymbol("ETHUSDT")
	drawStroke(t, l)

	require.NoError(t, l.Clear(ctx))
	assert.Empty(t, mustAnnotations(t, l, "ETHUSDT"))
	assert.Len(t, mustAnnotations(t, l, "BTCUSDT"), 1)

	_, err := store.Get(ctx, "annotations:ETHUSDT")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	l := newTestLayer(store)

	drawStroke(t, l)
	require.NoError(t, l.SetTool(ToolTrendline))
	require.NoError(t, l.PointerDown(Point{X: 0, Y: 1}))
	_, err := l.PointerUp(ctx, Point{X: 1, Y: 0})
	require.NoError(t, err)

	reloaded := NewLayer(Options{Store: store})
	items := mustAnnotations(t, reloaded, "BTCUSDT")
	require.Len(t, items, 2)
	assert.Equal(t, KindStroke, items[0].Kind())
	assert.Equal(t, KindTrendline, items[1].Kind())

	original := mustAnnotations(t, l, "BTCUSDT")
	assert.Equal(t, original[0].ID(), items[0].ID())
	assert.Equal(t, original[1].Points(), items[1].Points())
}

func TestMalformedStoredSetIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "annotations:BTCUSDT", []byte(`{not json`)))

	l := newTestLayer(store)
	assert.Empty(t, mustAnnotations(t, l, "BTCUSDT"))

	// 新提交覆盖损坏的数据
	drawStroke(t, l)
	raw, err := store.Get(ctx, "annotations:BTCUSDT")
	require.NoError(t, err)
	items, err := UnmarshalAnnotations(raw)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// flakyStore 前 failures 次 Get 返回错误
type flakyStore struct {
	*storage.MemoryStore
	failures int
}

func (fs *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if fs.failures > 0 {
		fs.failures--
		return nil, errors.New("i/o timeout")
	}
	return fs.MemoryStore.Get(ctx, key)
}

func TestReadFailureDoesNotOverwriteStoredSet(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	seed := newTestLayer(mem)
	drawStroke(t, seed)
	drawStroke(t, seed)

	store := &flakyStore{MemoryStore: mem, failures: 2}
	l := newTestLayer(store)

	_, err := l.Annotations(ctx, "BTCUSDT")
	require.Error(t, err)

	// 读取失败时不提交，已保存的数据保持不变
	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	l.PointerMove(Point{X: 0.4, Y: 0.4})
	a, err := l.PointerUp(ctx, Point{X: 0.4, Y: 0.4})
	require.Error(t, err)
	assert.Nil(t, a)
	assert.Equal(t, StateIdle, l.State())
	assert.Len(t, mustAnnotations(t, seed, "BTCUSDT"), 2)

	// 存储恢复后重新读取并追加
	assert.Len(t, mustAnnotations(t, l, "BTCUSDT"), 2)
	drawStroke(t, l)

	raw, err := mem.Get(ctx, "annotations:BTCUSDT")
	require.NoError(t, err)
	items, err := UnmarshalAnnotations(raw)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestDrawWithoutActiveSymbol(t *testing.T) {
	l := NewLayer(Options{})
	assert.ErrorIs(t, l.PointerDown(Point{}), ErrNoActiveSymbol)
}

func TestRender(t *testing.T) {
	items := []Annotation{
		NewTrendline("t1", DefaultColor, Point{X: 0, Y: 0}, Point{X: 1, Y: 1}),
	}
	out := Render(items, Viewport{Width: 10, Height: 20})
	require.Len(t, out, 1)
	assert.Equal(t, []PixelPoint{{X: 0, Y: 0}, {X: 10, Y: 20}}, out[0].Pixels)
	assert.Equal(t, KindTrendline, out[0].Kind)
}

func mustAnnotations(t *testing.T, l *Layer, symbol string) []Annotation {
	t.Helper()
	items, err := l.Annotations(context.Background(), symbol)
	require.NoError(t, err)
	return items
}

func drawStroke(t *testing.T, l *Layer) Annotation {
	t.Helper()
	require.NoError(t, l.SetTool(ToolBrush))
	require.NoError(t, l.PointerDown(Point{X: 0.1, Y: 0.1}))
	l.PointerMove(Point{X: 0.2, Y: 0.3})
	a, err := l.PointerUp(context.Background(), Point{X: 0.2, Y: 0.3})
	require.NoError(t, err)
	require.NotNil(t, a)
	return a
}
