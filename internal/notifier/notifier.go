package notifier

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// RemoveReason 通知被移除的原因
type RemoveReason string

const (
	ReasonExpired   RemoveReason = "expired"
	ReasonDismissed RemoveReason = "dismissed"
)

// Sink 通知队列事件的接收者
type Sink interface {
	ToastPushed(toast types.Toast)
	ToastRemoved(toast types.Toast, reason RemoveReason)
}

// ConsoleSink 控制台输出
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink 创建控制台输出，out 为空时写到标准输出
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out}
}

func (cs *ConsoleSink) ToastPushed(toast types.Toast) {
	zap.L().Info("🚨 RSI预警",
		zap.String("id", toast.ID),
		zap.String("symbol", toast.Symbol),
		zap.String("timeframe", toast.Timeframe.String()),
		zap.String("kind", string(toast.Kind)),
		zap.Float64("rsi", toast.RSIValue))

	cs.mu.Lock()
	defer cs.mu.Unlock()
	fmt.Fprint(cs.out, FormatToastBox(toast))
}

func (cs *ConsoleSink) ToastRemoved(types.Toast, RemoveReason) {}

// FormatToastBox 生成带边框的预警文本
func FormatToastBox(toast types.Toast) string {
	border := "╔" + strings.Repeat("═", 60) + "╗"
	bottomBorder := "╚" + strings.Repeat("═", 60) + "╝"

	arrow, title, hint := "📈", "RSI超买", "💡 动能过热，注意回调风险"
	if toast.Kind == types.StatusOversold {
		arrow, title, hint = "📉", "RSI超卖", "💡 动能衰竭，关注反弹机会"
	}

	var b strings.Builder
	b.WriteString("\n" + border + "\n")
	fmt.Fprintf(&b, "║ %s 🚨 %s %-46s ║\n", arrow, title, "")
	fmt.Fprintf(&b, "║ 交易对: %-47s ║\n", toast.Symbol)
	fmt.Fprintf(&b, "║ 周期: %-49s ║\n", toast.Timeframe)
	fmt.Fprintf(&b, "║ RSI: %-50.2f ║\n", toast.RSIValue)
	fmt.Fprintf(&b, "║ 预警时间: %-44s ║\n", toast.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "║ %s%-30s ║\n", hint, "")
	b.WriteString(bottomBorder + "\n")
	return b.String()
}

// MultiSink 把事件分发给多个接收者
type MultiSink []Sink

func (ms MultiSink) ToastPushed(toast types.Toast) {
	for _, s := range ms {
		s.ToastPushed(toast)
	}
}

func (ms MultiSink) ToastRemoved(toast types.Toast, reason RemoveReason) {
	for _, s := range ms {
		s.ToastRemoved(toast, reason)
	}
}
