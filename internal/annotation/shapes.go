package annotation

import (
	"encoding/json"
	"fmt"
)

// Kind 标注类型
type Kind string

const (
	KindStroke    Kind = "stroke"
	KindTrendline Kind = "trendline"
)

// Annotation 已提交的标注，提交后不可修改
type Annotation interface {
	ID() string
	Kind() Kind
	Color() string
	Points() []Point
	Project(vp Viewport) []PixelPoint
}

// Stroke 画笔笔迹
type Stroke struct {
	id     string
	color  string
	points []Point
}

// NewStroke 创建笔迹，points 会被复制
func NewStroke(id, color string, points []Point) *Stroke {
	return &Stroke{id: id, color: color, points: append([]Point(nil), points...)}
}

func (s *Stroke) ID() string      { return s.id }
func (s *Stroke) Kind() Kind      { return KindStroke }
func (s *Stroke) Color() string   { return s.color }
func (s *Stroke) Points() []Point { return append([]Point(nil), s.points...) }

func (s *Stroke) Project(vp Viewport) []PixelPoint {
	out := make([]PixelPoint, len(s.points))
	for i, p := range s.points {
		out[i] = Project(p, vp)
	}
	return out
}

// Trendline 两点确定的趋势线
type Trendline struct {
	id    string
	color string
	start Point
	end   Point
}

// NewTrendline 创建趋势线
func NewTrendline(id, color string, start, end Point) *Trendline {
	return &Trendline{id: id, color: color, start: start, end: end}
}

func (t *Trendline) ID() string      { return t.id }
func (t *Trendline) Kind() Kind      { return KindTrendline }
func (t *Trendline) Color() string   { return t.color }
func (t *Trendline) Points() []Point { return []Point{t.start, t.end} }
func (t *Trendline) Start() Point    { return t.start }
func (t *Trendline) End() Point      { return t.end }

func (t *Trendline) Project(vp Viewport) []PixelPoint {
	return []PixelPoint{Project(t.start, vp), Project(t.end, vp)}
}

// Record 持久化与接口输出使用的统一结构
type Record struct {
	ID     string  `json:"id"`
	Kind   Kind    `json:"kind"`
	Color  string  `json:"color"`
	Points []Point `json:"points"`
}

// ToRecord 转换成可序列化的结构
func ToRecord(a Annotation) Record {
	return Record{ID: a.ID(), Kind: a.Kind(), Color: a.Color(), Points: a.Points()}
}

func fromRecord(r Record) (Annotation, error) {
	switch r.Kind {
	case KindStroke:
		return NewStroke(r.ID, r.Color, r.Points), nil
	case KindTrendline:
		if len(r.Points) != 2 {
			return nil, fmt.Errorf("trendline %s: expected 2 points, got %d", r.ID, len(r.Points))
		}
		return NewTrendline(r.ID, r.Color, r.Points[0], r.Points[1]), nil
	default:
		return nil, fmt.Errorf("annotation %s: unknown kind %q", r.ID, r.Kind)
	}
}

// MarshalAnnotations 序列化一组标注
func MarshalAnnotations(items []Annotation) ([]byte, error) {
	records := make([]Record, len(items))
	for i, a := range items {
		records[i] = ToRecord(a)
	}
	return json.Marshal(records)
}

// UnmarshalAnnotations 反序列化一组标注
func UnmarshalAnnotations(raw []byte) ([]Annotation, error) {
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	items := make([]Annotation, 0, len(records))
	for _, r := range records {
		a, err := fromRecord(r)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

// Rendered 投影到像素空间后的标注
type Rendered struct {
	ID     string       `json:"id"`
	Kind   Kind         `json:"kind"`
	Color  string       `json:"color"`
	Pixels []PixelPoint `json:"pixels"`
}

// Render 把一组标注投影到给定视口
func Render(items []Annotation, vp Viewport) []Rendered {
	out := make([]Rendered, len(items))
	for i, a := range items {
		out[i] = Rendered{ID: a.ID(), Kind: a.Kind(), Color: a.Color(), Pixels: a.Project(vp)}
	}
	return out
}
