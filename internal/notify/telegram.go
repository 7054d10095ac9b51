// Package notify 钱包跑完后的 Telegram 汇总通知。
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/betbot/gopack/internal/domain"
	"github.com/betbot/gopack/pkg/logger"
)

// Sender 发送一条已格式化的 MarkdownV2 消息
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Telegram 基于 Bot API 的 Sender
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram endpoint 为空时使用官方地址（格式同 tgbotapi.APIEndpoint）
func NewTelegram(token string, chatID int64, endpoint string) (*Telegram, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 15 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	bot.Debug = false
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Send 关闭链接预览发送
func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Progress 汇总所需的数据来源
type Progress interface {
	TasksInfo(ctx context.Context, key string) (completed, pending []domain.TaskName, err error)
	CompletedWalletsCount(ctx context.Context) (int, error)
	TotalWalletsCount(ctx context.Context) (int, error)
}

// Notifier sender 为 nil 时不发送
type Notifier struct {
	sender   Sender
	progress Progress
	log      *logrus.Entry
}

// New 创建通知器
func New(sender Sender, progress Progress) *Notifier {
	return &Notifier{sender: sender, progress: progress, log: logger.WithField("component", "notify")}
}

// Enabled 是否会真正发送
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil
}

// WalletDone 发送钱包任务汇总；失败只返回错误，不影响后续钱包
func (n *Notifier) WalletDone(ctx context.Context, key string) error {
	if !n.Enabled() {
		return nil
	}
	completed, pending, err := n.progress.TasksInfo(ctx, key)
	if err != nil {
		return err
	}
	done, err := n.progress.CompletedWalletsCount(ctx)
	if err != nil {
		return err
	}
	total, err := n.progress.TotalWalletsCount(ctx)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, Summary(completed, pending, done, total)); err != nil {
		return err
	}
	n.log.Debugf("summary sent for %s", domain.MaskKey(key))
	return nil
}

// Summary 钱包任务汇总文本（MarkdownV2）
func Summary(completed, pending []domain.TaskName, doneWallets, totalWallets int) string {
	completedList := taskList(completed, "No tasks completed.")
	pendingList := taskList(pending, "All tasks completed.")

	var b strings.Builder
	b.WriteString("💼 *Wallet completed its work:*\n")
	b.WriteString("📋 *Task Summary:*\n")
	fmt.Fprintf(&b, "✅ *Completed Tasks:* %d\n", len(completed))
	fmt.Fprintf(&b, "❌ *Uncompleted Tasks:* %d\n\n", len(pending))
	b.WriteString("🔍 *Details:*\n\n")
	fmt.Fprintf(&b, "*Completed Tasks:*\n%s\n\n", completedList)
	fmt.Fprintf(&b, "*Uncompleted Tasks:*\n%s\n\n", pendingList)
	b.WriteString("📊 *Overall Progress:*\n")
	fmt.Fprintf(&b, "*Completed Wallets:* %d/%d", doneWallets, totalWallets)
	return b.String()
}

func taskList(tasks []domain.TaskName, empty string) string {
	if len(tasks) == 0 {
		return EscapeMarkdownV2(empty)
	}
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = "- " + string(t)
	}
	return EscapeMarkdownV2(strings.Join(lines, "\n"))
}

const markdownV2Specials = "_-*[]()~`>#+=|{}.!\\"

// EscapeMarkdownV2 转义 MarkdownV2 保留字符
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2Specials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
