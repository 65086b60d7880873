package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/converso/gateway/internal/channel"
)

// memoryStore mimics the single-active-conversation constraint the
// database enforces with its partial unique index.
type memoryStore struct {
	mu     sync.Mutex
	nextID int
	rows   map[string]*Conversation
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]*Conversation{}}
}

func (s *memoryStore) FindOrCreate(ctx context.Context, agentID, tenantID, customerID, channelName string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.Status == StatusActive && row.AgentID == agentID &&
			row.CustomerID == customerID && row.Channel == channelName {
			return *row, nil
		}
	}
	s.nextID++
	conv := &Conversation{
		ID:         fmt.Sprintf("conv-%d", s.nextID),
		AgentID:    agentID,
		TenantID:   tenantID,
		CustomerID: customerID,
		Channel:    channelName,
		Status:     StatusActive,
	}
	s.rows[conv.ID] = conv
	return *conv, nil
}

func (s *memoryStore) UpdateStatus(ctx context.Context, id string, status Status) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	row.Status = status
	return *row, nil
}

func (s *memoryStore) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, row := range s.rows {
		if row.Status == StatusActive {
			count++
		}
	}
	return count
}

func channelConfig() channel.Config {
	return channel.Config{ID: "ch-1", TenantID: "t-1", Type: channel.TypeWhatsApp}
}

func inboundFrom(sender string) channel.Message {
	return channel.Message{
		Direction: channel.DirectionInbound,
		Sender:    channel.Party{ID: sender},
		Content:   channel.Content{Type: channel.ContentText, Data: map[string]any{"text": "hi"}},
	}
}

func TestThreadInboundReusesActiveConversation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	first, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread first: %v", err)
	}
	second, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("conversations differ: %s vs %s", first.ID, second.ID)
	}
	if store.activeCount() != 1 {
		t.Fatalf("active conversations = %d", store.activeCount())
	}
}

func TestThreadInboundSeparatesCustomers(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	a, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-a"))
	if err != nil {
		t.Fatalf("thread a: %v", err)
	}
	b, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-b"))
	if err != nil {
		t.Fatalf("thread b: %v", err)
	}
	if a.ID == b.ID {
		t.Fatal("distinct customers share a conversation")
	}
}

func TestThreadInboundRequiresSender(t *testing.T) {
	t.Parallel()

	threader := NewThreader(nil, newMemoryStore())
	if _, err := threader.ThreadInbound(context.Background(), channelConfig(), channel.Message{}); err == nil {
		t.Fatal("expected error for missing sender id")
	}
}

func TestConcurrentThreadingConvergesOnOneConversation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	const workers = 32
	ids := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			conv, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
			if err != nil {
				t.Errorf("thread: %v", err)
				return
			}
			ids[slot] = conv.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("conversation ids diverge: %v", ids)
		}
	}
	if store.activeCount() != 1 {
		t.Fatalf("active conversations = %d, want 1", store.activeCount())
	}
}

func TestCloseAllowsNewActiveConversation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	first, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	closed, err := threader.Close(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("status = %s", closed.Status)
	}

	second, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread after close: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("closed conversation was reused")
	}
}

func TestEscalateMarksConversation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	conv, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread: %v", err)
	}
	escalated, err := threader.Escalate(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	if escalated.Status != StatusEscalated {
		t.Fatalf("status = %s", escalated.Status)
	}
}

func TestThreadOutboundKeysByRecipient(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	threader := NewThreader(nil, store)

	inboundConv, err := threader.ThreadInbound(context.Background(), channelConfig(), inboundFrom("cust-1"))
	if err != nil {
		t.Fatalf("thread inbound: %v", err)
	}
	outbound := channel.Message{
		Direction: channel.DirectionOutbound,
		Recipient: channel.Party{ID: "cust-1"},
	}
	conversationID, err := threader.ThreadOutbound(context.Background(), channelConfig(), outbound)
	if err != nil {
		t.Fatalf("thread outbound: %v", err)
	}
	if conversationID != inboundConv.ID {
		t.Fatalf("outbound joined %s, want %s", conversationID, inboundConv.ID)
	}
}
