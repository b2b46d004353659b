// Package notify delivers user-facing notifications. Delivery is best effort:
// a failing channel is logged and never fails the operation that triggered it.
package notify

import (
	"context"
	"sync"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
	"github.com/bitfantasy/nimo-rfq/internal/shared/feishu"
	"go.uber.org/zap"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var severityRank = map[Severity]int{
	SeverityInfo:    0,
	SeveritySuccess: 1,
	SeverityWarning: 2,
	SeverityError:   3,
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// Notifier shows a message to operators.
type Notifier interface {
	Notify(ctx context.Context, message string, severity Severity)
}

// Multi fans a notification out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, message string, severity Severity) {
	for _, n := range m {
		n.Notify(ctx, message, severity)
	}
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, Severity) {}

// LogNotifier writes notifications to the application log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, message string, severity Severity) {
	fields := []zap.Field{zap.String("severity", string(severity))}
	switch severity {
	case SeverityError:
		n.logger.Error(message, fields...)
	case SeverityWarning:
		n.logger.Warn(message, fields...)
	default:
		n.logger.Info(message, fields...)
	}
}

// Toast is the payload of a toast event.
type Toast struct {
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Publisher is the part of the SSE hub the notifier needs.
type Publisher interface {
	Publish(eventType string, payload any)
}

// HubNotifier pushes toasts to connected admin consoles.
type HubNotifier struct {
	pub Publisher
}

func NewHubNotifier(pub Publisher) *HubNotifier {
	return &HubNotifier{pub: pub}
}

func (n *HubNotifier) Notify(_ context.Context, message string, severity Severity) {
	n.pub.Publish(sse.EventToast, Toast{Message: message, Severity: severity})
}

// CardSender sends a Feishu interactive card to a group chat.
type CardSender interface {
	SendCard(ctx context.Context, chatID string, card feishu.InteractiveCard) error
}

// FeishuNotifier forwards warnings and errors to a Feishu group. Cards are
// sent in the background; Notify never waits for Feishu.
type FeishuNotifier struct {
	sender CardSender
	chatID string
	min    Severity
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewFeishuNotifier(sender CardSender, chatID string, logger *zap.Logger) *FeishuNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeishuNotifier{sender: sender, chatID: chatID, min: SeverityWarning, logger: logger}
}

func (n *FeishuNotifier) Notify(ctx context.Context, message string, severity Severity) {
	if n.chatID == "" || !severity.AtLeast(n.min) {
		return
	}
	template := feishu.TemplateOrange
	title := "询价单提醒"
	if severity == SeverityError {
		template = feishu.TemplateRed
		title = "询价单异常"
	}
	card := feishu.NewAlertCard(title, template, message, nil)
	bgctx := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.sender.SendCard(bgctx, n.chatID, card); err != nil {
			n.logger.Warn("feishu notify failed", zap.String("chat_id", n.chatID), zap.Error(err))
		}
	}()
}

// Wait blocks until cards already handed to Notify have been sent.
func (n *FeishuNotifier) Wait() {
	n.wg.Wait()
}
