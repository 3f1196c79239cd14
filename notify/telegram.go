package notify

import (
	"fmt"
	"strings"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tradeidea/decision"
	"tradeidea/logger"
	"tradeidea/trader"
)

// Notifier 广播生成的交易想法。发送失败只记录日志，不影响请求。
type Notifier interface {
	NotifySignal(t decision.ProposedTrade, sizing trader.SizingDisplay)
	Close()
}

// Nop 未配置 Telegram 时使用
type Nop struct{}

func (Nop) NotifySignal(decision.ProposedTrade, trader.SizingDisplay) {}
func (Nop) Close()                                                    {}

// sender 抽出 BotAPI.Send，便于测试
type sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// Telegram 通过单个后台 goroutine 顺序发送，队列满时丢弃
type Telegram struct {
	bot    sender
	chatID int64

	queue chan string
	wg    sync.WaitGroup
	once  sync.Once
}

// NewTelegram 连接 Bot API（会调用 getMe 校验 token）
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.Infof("✓ Telegram bot @%s 已连接", b.Self.UserName)
	return newTelegram(b, chatID, 32), nil
}

func newTelegram(s sender, chatID int64, buffer int) *Telegram {
	t := &Telegram{bot: s, chatID: chatID, queue: make(chan string, buffer)}
	t.wg.Add(1)
	go t.run()
	return t
}

func (t *Telegram) run() {
	defer t.wg.Done()
	for text := range t.queue {
		if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
			logger.Warnf("⚠️  Telegram 发送失败: %v", err)
		}
	}
}

// NotifySignal 入队，不阻塞
func (t *Telegram) NotifySignal(tr decision.ProposedTrade, sizing trader.SizingDisplay) {
	select {
	case t.queue <- FormatSignal(tr, sizing):
	default:
		logger.Warnf("⚠️  Telegram 队列已满，丢弃 %s 信号", tr.Symbol)
	}
}

// Close 停止接收并等待队列发送完毕
func (t *Telegram) Close() {
	t.once.Do(func() {
		close(t.queue)
		t.wg.Wait()
	})
}

// FormatSignal 生成纯文本消息
func FormatSignal(tr decision.ProposedTrade, sizing trader.SizingDisplay) string {
	var sb strings.Builder
	icon := "🟢"
	if tr.Direction == trader.Sell {
		icon = "🔴"
	}
	sb.WriteString(fmt.Sprintf("%s %s %s (%s, %s)\n", icon, strings.ToUpper(string(tr.Direction)), tr.Symbol, tr.OrderType, tr.TimeFrame))
	sb.WriteString(fmt.Sprintf("Entry: %g\nStop: %g\nTP1: %g\nTP2: %g\n", tr.EntryPrice, tr.StopLoss, tr.TakeProfit1, tr.TakeProfit2))
	sb.WriteString(fmt.Sprintf("Size: %.2f lots (%.2f units), risk %.2f\n", sizing.Lots, sizing.Units, sizing.RiskAmount))
	if tr.Source == decision.SourceFallback {
		sb.WriteString("⚠️ Synthetic idea (AI unavailable)\n")
	}
	if tr.Comment != "" {
		sb.WriteString(tr.Comment)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
