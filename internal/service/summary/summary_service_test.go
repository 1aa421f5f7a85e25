package summary

import (
	"context"
	"testing"
	"time"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
	"kenchat/internal/service/usage"
	"kenchat/internal/testutil"
)

func testConfig() config.SummaryConfig {
	return config.SummaryConfig{
		MaxTokensBeforeSummarization: 2000,
		PreserveRecentMessages:       4,
		MaxSummaryTokens:             500,
		Model:                        "gpt-4o-mini",
		Prompt:                       "Summarize the conversation.",
		LockTimeout:                  5 * time.Minute,
	}
}

func makeMessages(n int, tokensEach int) []db.Message {
	msgs := make([]db.Message, n)
	for i := range msgs {
		role := db.RoleUser
		if i%2 == 1 {
			role = db.RoleAssistant
		}
		msgs[i] = db.Message{
			ID:             string(rune('a'+i)) + "-msg",
			ConversationID: "conv-1",
			Role:           role,
			Content:        "message content",
			TokenCount:     tokensEach,
		}
	}
	return msgs
}

func TestShouldSummarize(t *testing.T) {
	tests := []struct {
		name   string
		tokens int
		want   bool
	}{
		{"below threshold", 1500, false},
		{"at threshold", 2000, false},
		{"above threshold", 2001, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB := &testutil.MockDatabase{
				UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
					return tt.tokens, nil
				},
			}
			svc := NewService(mockDB, &testutil.MockProvider{}, usage.NewService(mockDB, config.CostConfig{}), testConfig())

			got, err := svc.ShouldSummarize("conv-1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldSummarize(%d tokens) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}
}

// Summarization folds all but the most recent N unsummarized messages into
// one summary, marks exactly those messages, and records the spend.
func TestSummarizeConversation(t *testing.T) {
	messages := makeMessages(10, 300)

	var (
		createdStart, createdEnd string
		markedIDs                []string
		recorded                 *db.UsageLog
	)
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		GetUnsummarizedMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return messages, nil
		},
		GetActiveSummaryFunc: func(conversationID string) (*db.Summary, error) {
			return nil, nil
		},
		CreateSummaryFunc: func(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*db.Summary, error) {
			createdStart, createdEnd = startMessageID, endMessageID
			return &db.Summary{
				ID: "sum-1", ConversationID: conversationID, Content: content,
				StartMessageID: startMessageID, EndMessageID: endMessageID,
				TokenCount: tokenCount, Cost: cost, IsActive: true,
			}, nil
		},
		MarkMessagesSummarizedFunc: func(conversationID string, messageIDs []string) error {
			markedIDs = messageIDs
			return nil
		},
		RecordUsageFunc: func(entry db.UsageLog) (*db.UsageLog, error) {
			recorded = &entry
			return &entry, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			if input[0].Role != db.RoleSystem {
				t.Errorf("first input message role = %s, want system", input[0].Role)
			}
			if opts.MaxTokens != 500 {
				t.Errorf("MaxTokens = %d, want 500", opts.MaxTokens)
			}
			return &ai.Response{
				Model:        "gpt-4o-mini",
				Content:      "A concise summary.",
				FinishReason: "stop",
				Usage:        ai.Usage{PromptTokens: 1800, CompletionTokens: 120, TotalTokens: 1920},
				Cost:         0.0004,
			}, nil
		},
	}
	svc := NewService(mockDB, provider, usage.NewService(mockDB, config.CostConfig{}), testConfig())

	result, err := svc.SummarizeConversation(context.Background(), "conv-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.MessagesFolded != 6 {
		t.Errorf("MessagesFolded = %d, want 6 (10 messages, preserve 4)", result.MessagesFolded)
	}
	if createdStart != messages[0].ID || createdEnd != messages[5].ID {
		t.Errorf("summary covers [%s..%s], want [%s..%s]", createdStart, createdEnd, messages[0].ID, messages[5].ID)
	}
	if len(markedIDs) != 6 || markedIDs[0] != messages[0].ID || markedIDs[5] != messages[5].ID {
		t.Errorf("marked %d messages: %v", len(markedIDs), markedIDs)
	}
	if result.TokensBefore != 1800 || result.TokensAfter != 120 {
		t.Errorf("tokens before/after = %d/%d, want 1800/120", result.TokensBefore, result.TokensAfter)
	}
	if recorded == nil {
		t.Fatal("expected a usage ledger entry")
	}
	if recorded.Action != db.ActionSummaryCreated || recorded.Cost != 0.0004 {
		t.Errorf("usage entry = %+v", recorded)
	}
}

// A previous summary is folded into the next summarization run as context
// and its token count added to the replaced total.
func TestSummarizeConversation_FoldsPreviousSummary(t *testing.T) {
	messages := makeMessages(8, 250)

	var gotInput []ai.Message
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		GetUnsummarizedMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return messages, nil
		},
		GetActiveSummaryFunc: func(conversationID string) (*db.Summary, error) {
			return &db.Summary{ID: "sum-0", Content: "Earlier summary.", TokenCount: 150, IsActive: true}, nil
		},
		CreateSummaryFunc: func(conversationID, content, startMessageID, endMessageID string, tokenCount int, cost float64) (*db.Summary, error) {
			return &db.Summary{ID: "sum-1", Content: content, TokenCount: tokenCount}, nil
		},
		MarkMessagesSummarizedFunc: func(conversationID string, messageIDs []string) error {
			return nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			gotInput = input
			return &ai.Response{
				Content: "Updated summary.",
				Usage:   ai.Usage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100},
			}, nil
		},
	}
	svc := NewService(mockDB, provider, usage.NewService(mockDB, config.CostConfig{}), testConfig())

	result, err := svc.SummarizeConversation(context.Background(), "conv-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// system prompt + previous summary + 4 folded messages
	if len(gotInput) != 6 {
		t.Fatalf("input length = %d, want 6", len(gotInput))
	}
	if gotInput[1].Role != db.RoleAssistant || gotInput[1].Content != "Previous summary:\nEarlier summary." {
		t.Errorf("previous summary not folded in: %+v", gotInput[1])
	}
	if result.TokensBefore != 150+4*250 {
		t.Errorf("TokensBefore = %d, want %d", result.TokensBefore, 150+4*250)
	}
}

// Losing the summarization lock race returns a conflict without calling the
// model or writing anything.
func TestSummarizeConversation_LockContention(t *testing.T) {
	providerCalls := 0
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		TryBeginSummarizationFunc: func(conversationID string, staleAfter time.Duration) (bool, error) {
			return false, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			providerCalls++
			return &ai.Response{Content: "should not happen"}, nil
		},
	}
	svc := NewService(mockDB, provider, usage.NewService(mockDB, config.CostConfig{}), testConfig())

	_, err := svc.SummarizeConversation(context.Background(), "conv-1", "user-1")
	if !apperrors.IsKind(err, apperrors.KindConflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if providerCalls != 0 {
		t.Errorf("model called %d times while locked, want 0", providerCalls)
	}
}

func TestSummarizeConversation_ReleasesLockOnFailure(t *testing.T) {
	released := false
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		GetUnsummarizedMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return makeMessages(10, 300), nil
		},
		EndSummarizationFunc: func(conversationID string) error {
			released = true
			return nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			return nil, apperrors.AIService("upstream unavailable", nil)
		},
	}
	svc := NewService(mockDB, provider, usage.NewService(mockDB, config.CostConfig{}), testConfig())

	_, err := svc.SummarizeConversation(context.Background(), "conv-1", "user-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !released {
		t.Error("summarization lock was not released after failure")
	}
}

func TestSummarizeConversation_OwnershipAndShortConversations(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "owner"}, nil
		},
		GetUnsummarizedMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return makeMessages(3, 100), nil
		},
	}
	svc := NewService(mockDB, &testutil.MockProvider{}, usage.NewService(mockDB, config.CostConfig{}), testConfig())

	_, err := svc.SummarizeConversation(context.Background(), "conv-1", "intruder")
	if !apperrors.IsKind(err, apperrors.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}

	_, err = svc.SummarizeConversation(context.Background(), "conv-1", "owner")
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Errorf("expected validation error for too few messages, got %v", err)
	}
}
