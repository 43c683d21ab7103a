package notifier

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// DingTalkSink 钉钉机器人推送，只关心入队事件
type DingTalkSink struct {
	webhookURL string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// DingTalkMessage 钉钉消息
type DingTalkMessage struct {
	MsgType  string            `json:"msgtype"`
	Markdown *DingTalkMarkdown `json:"markdown,omitempty"`
}

// DingTalkMarkdown Markdown消息体
type DingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// DingTalkResponse 钉钉响应
type DingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalkSink 创建钉钉推送，webhookURL 为空时返回 nil
func NewDingTalkSink(cfg types.DingTalkConfig) *DingTalkSink {
	if cfg.WebhookURL == "" {
		zap.L().Info("🔧 未配置钉钉Webhook URL，跳过钉钉推送")
		return nil
	}
	if cfg.Secret == "" {
		zap.L().Warn("⚠️ 钉钉通知已配置，但未设置secret（建议配置加签验证）")
	}
	return &DingTalkSink{
		webhookURL: cfg.WebhookURL,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

func (ds *DingTalkSink) ToastPushed(toast types.Toast) {
	go func() {
		if err := ds.Send(toast); err != nil {
			zap.L().Error("❌ 钉钉发送失败", zap.String("symbol", toast.Symbol), zap.Error(err))
		}
	}()
}

func (ds *DingTalkSink) ToastRemoved(types.Toast, RemoveReason) {}

// Send 同步发送一条预警
func (ds *DingTalkSink) Send(toast types.Toast) error {
	signedURL := ds.buildSignedURL()
	message := &DingTalkMessage{
		MsgType: "markdown",
		Markdown: &DingTalkMarkdown{
			Title: fmt.Sprintf("RSI预警 - %s", toast.Symbol),
			Text:  buildMarkdownContent(toast),
		},
	}

	jsonData, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	resp, err := ds.httpClient.Post(signedURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	var dingResp DingTalkResponse
	if err := json.NewDecoder(resp.Body).Decode(&dingResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if dingResp.ErrCode != 0 {
		return fmt.Errorf("dingtalk api error [%d]: %s", dingResp.ErrCode, dingResp.ErrMsg)
	}
	return nil
}

// sign 按文档要求对 timestamp + "\n" + secret 做 HMAC-SHA256
func (ds *DingTalkSink) sign(timestamp int64) string {
	stringToSign := fmt.Sprintf("%d\n%s", timestamp, ds.secret)
	h := hmac.New(sha256.New, []byte(ds.secret))
	h.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (ds *DingTalkSink) buildSignedURL() string {
	if ds.secret == "" {
		return ds.webhookURL
	}
	timestamp := ds.now().UnixMilli()

	separator := "&"
	if !strings.Contains(ds.webhookURL, "?") {
		separator = "?"
	}
	return fmt.Sprintf("%s%stimestamp=%d&sign=%s",
		ds.webhookURL, separator, timestamp, url.QueryEscape(ds.sign(timestamp)))
}

func buildMarkdownContent(toast types.Toast) string {
	title, hint := "📈 RSI超买", "动能过热，注意回调风险"
	if toast.Kind == types.StatusOversold {
		title, hint = "📉 RSI超卖", "动能衰竭，关注反弹机会"
	}
	return fmt.Sprintf("### %s\n\n- **交易对**: %s\n- **周期**: %s\n- **RSI**: %.2f\n- **预警时间**: %s\n\n> %s",
		title, toast.Symbol, toast.Timeframe, toast.RSIValue,
		toast.CreatedAt.Format("2006-01-02 15:04:05"), hint)
}
