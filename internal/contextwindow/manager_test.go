package contextwindow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

type memorySummaryStore struct {
	mu       sync.Mutex
	inserted []*models.Message
}

func (s *memorySummaryStore) HasMessage(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.inserted {
		if m.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (s *memorySummaryStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, msg)
	return nil
}

func makeHistory(n, charsEach int) []*models.Message {
	history := make([]*models.Message, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range history {
		history[i] = &models.Message{
			ID:        fmt.Sprintf("msg-%03d", i),
			ThreadID:  "thread-1",
			Type:      models.MessageTypeUser,
			Content:   strings.Repeat("a", charsEach),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return history
}

func TestApplyUnderCapReturnsUnchanged(t *testing.T) {
	m := NewManager(1000, nil, nil)
	history := makeHistory(10, 40) // 10 tokens each, 100 total

	out, err := m.Apply(context.Background(), "thread-1", history)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 10 {
		t.Fatalf("returned %d messages, want 10", len(out))
	}
	for i := range history {
		if out[i] != history[i] {
			t.Fatalf("message %d was replaced", i)
		}
	}
}

func TestApplyOverCapCompactsOldest(t *testing.T) {
	m := NewManager(50, nil, nil) // 50 tokens; each message is 10 tokens
	history := makeHistory(10, 40)

	out, err := m.Apply(context.Background(), "thread-1", history)
	if err != nil {
		t.Fatal(err)
	}

	if out[0].Type != models.MessageTypeSummary {
		t.Fatalf("first message type = %s, want summary", out[0].Type)
	}
	// Five recent messages fit under 50 tokens; five were compacted.
	if len(out) != 6 {
		t.Fatalf("returned %d messages, want 6", len(out))
	}
	if !strings.Contains(out[0].Content, "5 messages") {
		t.Errorf("summary does not mention compacted count: %q", out[0].Content)
	}
	if !strings.Contains(out[0].Content, summaryEndMarker) {
		t.Errorf("summary missing end marker")
	}

	// Recent buffer is a chronological suffix of the original.
	for i, msg := range out[1:] {
		if msg.ID != history[5+i].ID {
			t.Errorf("recent[%d] = %s, want %s", i, msg.ID, history[5+i].ID)
		}
	}

	// Summary keeps the earliest compacted timestamp.
	if !out[0].CreatedAt.Equal(history[0].CreatedAt) {
		t.Errorf("summary timestamp = %v, want %v", out[0].CreatedAt, history[0].CreatedAt)
	}
}

func TestApplySummaryPersistedOnce(t *testing.T) {
	store := &memorySummaryStore{}
	m := NewManager(50, store, nil)
	history := makeHistory(10, 40)

	for i := 0; i < 2; i++ {
		if _, err := m.Apply(context.Background(), "thread-1", history); err != nil {
			t.Fatal(err)
		}
	}

	if len(store.inserted) != 1 {
		t.Fatalf("summary persisted %d times, want 1", len(store.inserted))
	}
}

func TestDeriveSummaryIDStable(t *testing.T) {
	history := makeHistory(5, 10)
	a := deriveSummaryID("thread-1", history)
	b := deriveSummaryID("thread-1", history)
	if a != b {
		t.Errorf("derived ids differ: %s vs %s", a, b)
	}
	c := deriveSummaryID("thread-2", history)
	if a == c {
		t.Errorf("derived id ignores thread id")
	}
}

func TestApplySummaryTruncatedToRemainingBudget(t *testing.T) {
	// Cap of 12 tokens: only the newest 40-char message fits (10 tokens),
	// leaving 2 tokens (8 chars) for the summary of the other nine.
	m := NewManager(12, nil, nil)
	history := makeHistory(10, 40)

	out, err := m.Apply(context.Background(), "thread-1", history)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Type != models.MessageTypeSummary {
		t.Fatalf("first message is not a summary")
	}
	if got := len(out[0].Content); got > 2*CharsPerToken+len(summaryEndMarker)+1 {
		t.Errorf("summary length %d exceeds remaining budget", got)
	}
}

func TestEstimateTokensCeiling(t *testing.T) {
	tests := []struct {
		content string
		want    int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
	}
	for _, tt := range tests {
		got := EstimateTokens(&models.Message{Content: tt.content})
		if got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.content, got, tt.want)
		}
	}
}
