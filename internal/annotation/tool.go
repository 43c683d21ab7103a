package annotation

import (
	"errors"
	"fmt"
)

// ErrUnknownTool 不支持的绘图工具
var ErrUnknownTool = errors.New("unknown annotation tool")

// Tool 绘图工具
type Tool string

const (
	ToolBrush     Tool = "brush"
	ToolTrendline Tool = "trendline"
)

// ParseTool 解析工具名
func ParseTool(s string) (Tool, error) {
	switch t := Tool(s); t {
	case ToolBrush, ToolTrendline:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
}

// GestureState 指针手势状态
type GestureState int

const (
	StateIdle GestureState = iota
	StateDrawing
	StateCommitting
)

func (s GestureState) String() string {
	switch s {
	case StateDrawing:
		return "drawing"
	case StateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// gesture 一次按下到松开之间的手势
// 画笔在 down 和每次 move 时采样；趋势线 down 定起点，move 只更新预览终点
type gesture struct {
	state  GestureState
	tool   Tool
	color  string
	points []Point
}

func (g *gesture) begin(tool Tool, color string, p Point) bool {
	if g.state != StateIdle {
		return false
	}
	g.state = StateDrawing
	g.tool = tool
	g.color = color
	g.points = []Point{p}
	if tool == ToolTrendline {
		g.points = append(g.points, p)
	}
	return true
}

func (g *gesture) move(p Point) bool {
	if g.state != StateDrawing {
		return false
	}
	switch g.tool {
	case ToolBrush:
		g.points = append(g.points, p)
	case ToolTrendline:
		g.points[1] = p
	}
	return true
}

// release 进入提交状态，返回当前采样点
func (g *gesture) release(p Point) ([]Point, bool) {
	if g.state != StateDrawing {
		return nil, false
	}
	if g.tool == ToolTrendline {
		g.points[1] = p
	}
	g.state = StateCommitting
	return g.points, true
}

func (g *gesture) reset() {
	g.state = StateIdle
	g.points = nil
}

// preview 正在绘制中的临时图形，不会被保存
func (g *gesture) preview() Annotation {
	if g.state != StateDrawing {
		return nil
	}
	switch g.tool {
	case ToolTrendline:
		return NewTrendline("", g.color, g.points[0], g.points[1])
	default:
		return NewStroke("", g.color, g.points)
	}
}
