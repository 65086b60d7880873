package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/converso/gateway/internal/channel"
)

type fakeConfigSource struct {
	configs map[string]channel.Config
}

func (s *fakeConfigSource) GetForTenant(ctx context.Context, tenantID, id string) (channel.Config, error) {
	cfg, ok := s.configs[id]
	if !ok || cfg.TenantID != tenantID {
		return channel.Config{}, channel.ErrChannelNotFound
	}
	return cfg, nil
}

type fakeMessageSink struct {
	created  []channel.Message
	assigned map[string]string
}

func (s *fakeMessageSink) Create(ctx context.Context, msg channel.Message) (channel.Message, error) {
	msg.ID = "msg-1"
	s.created = append(s.created, msg)
	return msg, nil
}

func (s *fakeMessageSink) AssignConversation(ctx context.Context, id, conversationID string) error {
	if s.assigned == nil {
		s.assigned = map[string]string{}
	}
	s.assigned[id] = conversationID
	return nil
}

type fakeThreader struct {
	conversationID string
	err            error
}

func (f *fakeThreader) ThreadOutbound(ctx context.Context, cfg channel.Config, msg channel.Message) (string, error) {
	return f.conversationID, f.err
}

func newDispatchFixture(adapter channel.Adapter, cfg channel.Config) (*Dispatcher, *fakeMessageSink) {
	registry := channel.NewRegistry()
	if adapter != nil {
		registry.MustRegister(adapter)
	}
	source := &fakeConfigSource{configs: map[string]channel.Config{}}
	if cfg.ID != "" {
		source.configs[cfg.ID] = cfg
	}
	sink := &fakeMessageSink{}
	return NewDispatcher(nil, registry, source, sink, &fakeThreader{conversationID: "conv-1"}), sink
}

func draft() channel.Draft {
	return channel.Draft{
		Recipient: channel.Party{ID: "cust-1"},
		Content:   channel.Content{Type: channel.ContentText, Data: map[string]any{"text": "hi"}},
	}
}

func TestDispatchUnknownChannelIsSilentNoop(t *testing.T) {
	t.Parallel()

	dispatcher, sink := newDispatchFixture(nil, channel.Config{})
	msg, err := dispatcher.Dispatch(context.Background(), "t-1", "missing", draft())
	if err != nil || msg != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", msg, err)
	}
	if len(sink.created) != 0 {
		t.Fatalf("wrote %d messages for unknown channel", len(sink.created))
	}
}

func TestDispatchDisabledChannelIsSilentNoop(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: channel.TypeSlack}
	cfg := channel.Config{ID: "ch-1", TenantID: "t-1", Type: channel.TypeSlack, Enabled: false}
	dispatcher, sink := newDispatchFixture(adapter, cfg)

	msg, err := dispatcher.Dispatch(context.Background(), "t-1", "ch-1", draft())
	if err != nil || msg != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", msg, err)
	}
	if adapter.sendCalls != 0 || len(sink.created) != 0 {
		t.Fatal("disabled channel must not send or write")
	}
}

func TestDispatchCrossTenantReadsAsMissing(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{channelType: channel.TypeSlack}
	cfg := channel.Config{ID: "ch-1", TenantID: "t-1", Type: channel.TypeSlack, Enabled: true}
	dispatcher, sink := newDispatchFixture(adapter, cfg)

	msg, err := dispatcher.Dispatch(context.Background(), "t-2", "ch-1", draft())
	if err != nil || msg != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", msg, err)
	}
	if len(sink.created) != 0 {
		t.Fatal("cross-tenant dispatch must not write")
	}
}

func TestDispatchSuccessPersistsSentMessage(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		channelType: channel.TypeSlack,
		sendReceipt: channel.SendReceipt{ExternalID: "1754042400.000100"},
	}
	cfg := channel.Config{ID: "ch-1", TenantID: "t-1", Type: channel.TypeSlack, Enabled: true}
	dispatcher, sink := newDispatchFixture(adapter, cfg)

	msg, err := dispatcher.Dispatch(context.Background(), "t-1", "ch-1", draft())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if msg == nil || msg.Status != channel.StatusSent {
		t.Fatalf("message = %+v", msg)
	}
	if msg.ExternalID != "1754042400.000100" {
		t.Fatalf("external id = %q", msg.ExternalID)
	}
	if len(sink.created) != 1 {
		t.Fatalf("persisted %d times, want 1", len(sink.created))
	}
	if msg.ConversationID != "conv-1" {
		t.Fatalf("conversation id = %q", msg.ConversationID)
	}
	if sink.assigned["msg-1"] != "conv-1" {
		t.Fatalf("assigned = %v", sink.assigned)
	}
}

func TestDispatchFailurePersistsFailedMessageExactlyOnce(t *testing.T) {
	t.Parallel()

	adapter := &fakeAdapter{
		channelType: channel.TypeSlack,
		sendErr:     channel.NewNetworkError(errors.New("connection refused"), "request failed"),
	}
	cfg := channel.Config{ID: "ch-1", TenantID: "t-1", Type: channel.TypeSlack, Enabled: true}
	dispatcher, sink := newDispatchFixture(adapter, cfg)

	msg, err := dispatcher.Dispatch(context.Background(), "t-1", "ch-1", draft())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if msg == nil || msg.Status != channel.StatusFailed {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Error == "" {
		t.Fatal("expected error recorded on message")
	}
	if len(sink.created) != 1 {
		t.Fatalf("persisted %d times, want exactly 1", len(sink.created))
	}
	// Failed sends never join a conversation.
	if len(sink.assigned) != 0 {
		t.Fatalf("assigned = %v", sink.assigned)
	}
}
