// Package contextwindow enforces a token budget over a thread's message
// history. When the budget is exceeded, older messages are compacted into
// one synthetic summary message so the context handed to the model stays
// within the window without corrupting ordering.
package contextwindow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hemeda3/nubian-ai-agent-framework-sub001/pkg/models"
)

const (
	// CharsPerToken is the approximate character-to-token ratio. A cheap
	// fixed approximation, not a real tokenizer.
	CharsPerToken = 4

	// DefaultTokenCap is the default hard cap on context tokens.
	DefaultTokenCap = 120000

	// DefaultLineLimit bounds each compacted message's line in the summary.
	DefaultLineLimit = 300

	summaryHeader    = "Conversation summary: earlier messages were compacted to fit the context window."
	summaryEndMarker = "[end of summary]"
)

// SummaryStore persists summary messages. Insertion is guarded by a
// stable derived id so re-running summarization for the same thread state
// never duplicates entries.
type SummaryStore interface {
	HasMessage(ctx context.Context, id string) (bool, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
}

// Manager applies context window management to thread histories.
type Manager struct {
	// TokenCap is the hard cap on estimated context tokens.
	TokenCap int

	// LineLimit hard-truncates each compacted message's summary line.
	LineLimit int

	// Store receives persisted summary messages. Optional; when nil the
	// summary is only returned in the context, not persisted.
	Store SummaryStore

	// Logger receives degraded-case diagnostics.
	Logger *slog.Logger
}

// NewManager creates a context window manager with the given token cap.
// A non-positive cap selects DefaultTokenCap.
func NewManager(tokenCap int, store SummaryStore, logger *slog.Logger) *Manager {
	if tokenCap <= 0 {
		tokenCap = DefaultTokenCap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		TokenCap:  tokenCap,
		LineLimit: DefaultLineLimit,
		Store:     store,
		Logger:    logger,
	}
}

// EstimateTokens estimates a message's token cost: character count divided
// by CharsPerToken, rounded up.
func EstimateTokens(msg *models.Message) int {
	if msg == nil {
		return 0
	}
	chars := len(msg.Text())
	return (chars + CharsPerToken - 1) / CharsPerToken
}

// EstimateHistoryTokens estimates total tokens across a history.
func EstimateHistoryTokens(history []*models.Message) int {
	total := 0
	for _, msg := range history {
		total += EstimateTokens(msg)
	}
	return total
}

// Apply enforces the token budget over a chronologically ordered history.
//
// The history is walked newest to oldest, accumulating messages into a
// recent buffer while the running total stays under the cap; accumulation
// stops at the first message that would exceed it. If everything fit the
// history is returned unchanged. Otherwise the older messages are
// compacted into one summary message and the result is
// [summary] + recent, in chronological order.
func (m *Manager) Apply(ctx context.Context, threadID string, history []*models.Message) ([]*models.Message, error) {
	if len(history) == 0 {
		return history, nil
	}

	tokenCap := m.TokenCap
	if tokenCap <= 0 {
		tokenCap = DefaultTokenCap
	}

	cut := len(history)
	budget := 0
	for i := len(history) - 1; i >= 0; i-- {
		cost := EstimateTokens(history[i])
		if budget+cost > tokenCap {
			break
		}
		budget += cost
		cut = i
	}

	if cut == 0 {
		return history, nil
	}

	compacted := history[:cut]
	recent := history[cut:]

	summary := m.buildSummary(threadID, compacted, tokenCap-budget)

	if m.Store != nil {
		exists, err := m.Store.HasMessage(ctx, summary.ID)
		if err != nil {
			m.Logger.Warn("summary idempotency check failed", "thread_id", threadID, "error", err)
		} else if !exists {
			if err := m.Store.InsertMessage(ctx, summary); err != nil {
				m.Logger.Warn("summary persistence failed", "thread_id", threadID, "error", err)
			}
		}
	}

	out := make([]*models.Message, 0, len(recent)+1)
	out = append(out, summary)
	out = append(out, recent...)
	return out, nil
}

// buildSummary compacts messages into one synthetic summary message. The
// summary keeps the earliest compacted timestamp so chronological
// placement is preserved, and its id is derived from the compacted range
// so the same thread state always yields the same summary id.
func (m *Manager) buildSummary(threadID string, compacted []*models.Message, remainingBudget int) *models.Message {
	lineLimit := m.LineLimit
	if lineLimit <= 0 {
		lineLimit = DefaultLineLimit
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d messages)\n", summaryHeader, len(compacted))
	for _, msg := range compacted {
		text := strings.ReplaceAll(msg.Text(), "\n", " ")
		if len(text) > lineLimit {
			text = text[:lineLimit] + "..."
		}
		fmt.Fprintf(&b, "[%s] %s\n", msg.Type, text)
	}
	b.WriteString(summaryEndMarker)

	content := b.String()
	maxChars := remainingBudget * CharsPerToken
	if maxChars > 0 && len(content) > maxChars {
		// The summary itself overflows what budget remains. Truncate to
		// fit and surface the degradation instead of failing the run.
		if maxChars > len(summaryEndMarker)+1 {
			content = content[:maxChars-len(summaryEndMarker)-1] + "\n" + summaryEndMarker
		} else {
			content = content[:maxChars]
		}
		m.Logger.Warn("summary truncated to fit remaining budget",
			"thread_id", threadID,
			"compacted", len(compacted),
			"remaining_tokens", remainingBudget,
		)
	}

	return &models.Message{
		ID:           deriveSummaryID(threadID, compacted),
		ThreadID:     threadID,
		Type:         models.MessageTypeSummary,
		Content:      content,
		IsLLMMessage: true,
		Metadata: map[string]any{
			"compacted_count": len(compacted),
		},
		CreatedAt: compacted[0].CreatedAt,
	}
}

// deriveSummaryID produces a stable id for the compacted range.
func deriveSummaryID(threadID string, compacted []*models.Message) string {
	h := sha256.New()
	h.Write([]byte(threadID))
	if len(compacted) > 0 {
		h.Write([]byte(compacted[0].ID))
		h.Write([]byte(compacted[len(compacted)-1].ID))
	}
	fmt.Fprintf(h, "%d", len(compacted))
	return "summary-" + hex.EncodeToString(h.Sum(nil))[:24]
}
