package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
	"github.com/bitfantasy/nimo-rfq/internal/shared/feishu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	messages []string
}

func (r *recorder) Notify(_ context.Context, message string, _ Severity) {
	r.messages = append(r.messages, message)
}

type fakeSender struct {
	mu    sync.Mutex
	cards []feishu.InteractiveCard
	err   error
	// block, when set, holds every send until closed.
	block chan struct{}
}

func (f *fakeSender) SendCard(_ context.Context, _ string, card feishu.InteractiveCard) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, card)
	return f.err
}

func (f *fakeSender) sent() []feishu.InteractiveCard {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feishu.InteractiveCard(nil), f.cards...)
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	Multi{a, Nop{}, b}.Notify(context.Background(), "hello", SeverityInfo)
	assert.Equal(t, []string{"hello"}, a.messages)
	assert.Equal(t, []string{"hello"}, b.messages)
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))
	n.Notify(context.Background(), "saved", SeveritySuccess)
	n.Notify(context.Background(), "failed", SeverityError)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[1].Level)
}

func TestHubNotifier(t *testing.T) {
	hub := sse.NewHub(nil)
	client, unsubscribe := hub.Subscribe("u1")
	defer unsubscribe()

	NewHubNotifier(hub).Notify(context.Background(), "2 of 3 quotes updated", SeverityWarning)

	ev := <-client.Events
	assert.Equal(t, sse.EventToast, ev.EventType)
	assert.JSONEq(t, `{"message":"2 of 3 quotes updated","severity":"warning"}`, ev.Data)
}

func TestFeishuNotifier(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &fakeSender{}
	n := NewFeishuNotifier(sender, "oc_chat", zap.New(core))

	n.Notify(context.Background(), "ok", SeveritySuccess)
	n.Wait()
	assert.Empty(t, sender.sent())

	n.Notify(context.Background(), "boom", SeverityError)
	n.Wait()
	require.Len(t, sender.sent(), 1)
	assert.Equal(t, feishu.TemplateRed, sender.sent()[0].Header.Template)

	sender.err = errors.New("feishu down")
	n.Notify(context.Background(), "slow", SeverityWarning)
	n.Wait()
	assert.Len(t, sender.sent(), 2)
	assert.Equal(t, 1, logs.FilterMessage("feishu notify failed").Len())

	empty := NewFeishuNotifier(sender, "", nil)
	empty.Notify(context.Background(), "x", SeverityError)
	empty.Wait()
	assert.Len(t, sender.sent(), 2)
}

func TestFeishuNotifier_DoesNotBlockCaller(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	n := NewFeishuNotifier(sender, "oc_chat", nil)

	ctx, cancel := context.WithCancel(context.Background())
	n.Notify(ctx, "write failed", SeverityError)
	cancel()
	assert.Empty(t, sender.sent(), "Notify returned before the card was sent")

	close(sender.block)
	n.Wait()
	assert.Len(t, sender.sent(), 1)
}
