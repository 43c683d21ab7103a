package annotation

import (
	"errors"
	"math"
)

// ErrEmptyViewport 视口宽高必须为正
var ErrEmptyViewport = errors.New("viewport must have positive width and height")

// Point 归一化坐标，X、Y 都在 [0,1]，与设备像素无关
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PixelPoint 像素坐标
type PixelPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport 图表容器的像素尺寸
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid 宽高是否为正
func (vp Viewport) Valid() bool {
	return vp.Width > 0 && vp.Height > 0
}

// Normalize 把像素坐标换算成归一化坐标，超出容器的部分截断到边缘
func Normalize(px, py float64, vp Viewport) (Point, error) {
	if !vp.Valid() {
		return Point{}, ErrEmptyViewport
	}
	return Point{X: clamp01(px / vp.Width), Y: clamp01(py / vp.Height)}, nil
}

// Project 归一化坐标投影到像素坐标，不修改原始点
func Project(p Point, vp Viewport) PixelPoint {
	return PixelPoint{X: p.X * vp.Width, Y: p.Y * vp.Height}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
