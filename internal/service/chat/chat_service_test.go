package chat

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"kenchat/internal/apperrors"
	"kenchat/internal/config"
	"kenchat/internal/repository/db"
	"kenchat/internal/service/ai"
	"kenchat/internal/service/summary"
	"kenchat/internal/service/usage"
	"kenchat/internal/testutil"
)

func newTestService(mockDB *testutil.MockDatabase, provider *testutil.MockProvider) *Service {
	usageService := usage.NewService(mockDB, config.CostConfig{})
	summarizer := summary.NewService(mockDB, provider, usageService, config.SummaryConfig{
		MaxTokensBeforeSummarization: 100000,
		PreserveRecentMessages:       4,
	})
	return NewService(mockDB, provider, usageService, summarizer)
}

func chatResponse(content string) *ai.Response {
	return &ai.Response{
		ID:           "gen-1",
		Model:        "gpt-4o-mini",
		Content:      content,
		FinishReason: "stop",
		Usage:        ai.Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		Cost:         0.0001,
	}
}

func TestGetConversationContext_WithSummary(t *testing.T) {
	after := []db.Message{
		{ID: "m-7", Role: db.RoleUser, Content: "recent question", TokenCount: 10},
		{ID: "m-8", Role: db.RoleAssistant, Content: "recent answer", TokenCount: 12},
	}
	mockDB := &testutil.MockDatabase{
		GetActiveSummaryFunc: func(conversationID string) (*db.Summary, error) {
			return &db.Summary{ID: "sum-1", Content: "Earlier discussion.", EndMessageID: "m-6", TokenCount: 500, IsActive: true}, nil
		},
		GetMessagesAfterFunc: func(conversationID, afterMessageID string) ([]db.Message, error) {
			if afterMessageID != "m-6" {
				t.Errorf("queried after %s, want m-6", afterMessageID)
			}
			return after, nil
		},
	}
	svc := newTestService(mockDB, &testutil.MockProvider{})

	ctx, err := svc.GetConversationContext("conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Summary == nil || ctx.Summary.ID != "sum-1" {
		t.Errorf("missing summary in context: %+v", ctx.Summary)
	}
	if len(ctx.Messages) != 2 || ctx.Messages[0].ID != "m-7" {
		t.Errorf("context messages = %+v", ctx.Messages)
	}
	if ctx.TotalTokens != 522 {
		t.Errorf("total tokens = %d, want 522", ctx.TotalTokens)
	}
}

func TestGetConversationContext_WithoutSummary(t *testing.T) {
	all := []db.Message{
		{ID: "m-1", Role: db.RoleUser, Content: "first"},
		{ID: "m-2", Role: db.RoleAssistant, Content: "second"},
	}
	mockDB := &testutil.MockDatabase{
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return all, nil
		},
	}
	svc := newTestService(mockDB, &testutil.MockProvider{})

	ctx, err := svc.GetConversationContext("conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx.Summary != nil {
		t.Errorf("unexpected summary: %+v", ctx.Summary)
	}
	if len(ctx.Messages) != 2 {
		t.Errorf("context messages = %+v", ctx.Messages)
	}
}

// Assembling the context twice without intervening writes yields identical
// results.
func TestGetConversationContext_Idempotent(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetActiveSummaryFunc: func(conversationID string) (*db.Summary, error) {
			return &db.Summary{ID: "sum-1", Content: "Older turns.", EndMessageID: "m-4", IsActive: true}, nil
		},
		GetMessagesAfterFunc: func(conversationID, afterMessageID string) ([]db.Message, error) {
			return []db.Message{
				{ID: "m-5", Role: db.RoleUser, Content: "a"},
				{ID: "m-6", Role: db.RoleAssistant, Content: "b"},
			}, nil
		},
	}
	svc := newTestService(mockDB, &testutil.MockProvider{})

	first, err := svc.GetConversationContext("conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.GetConversationContext("conv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("context assembly is not stable:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestSendMessage_NewConversation(t *testing.T) {
	var createdTitle string
	var savedRoles []string
	var recordedActions []string

	mockDB := &testutil.MockDatabase{
		CreateConversationFunc: func(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
			createdTitle = title
			return &db.Conversation{ID: "conv-1", UserID: userID, Title: title, Intent: intent}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			savedRoles = append(savedRoles, role)
			return &db.Message{ID: role + "-msg", ConversationID: conversationID, Role: role, Content: content, TokenCount: tokenCount, Cost: cost}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return []db.Message{{ID: "user-msg", Role: db.RoleUser, Content: "Hello there"}}, nil
		},
		RecordUsageFunc: func(entry db.UsageLog) (*db.UsageLog, error) {
			recordedActions = append(recordedActions, entry.Action)
			return &entry, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			return chatResponse("Hi!"), nil
		},
	}
	svc := newTestService(mockDB, provider)

	resp, err := svc.SendMessage(context.Background(), SendMessageRequest{
		Message: "Hello there",
		UserID:  "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if createdTitle != "Hello there" {
		t.Errorf("conversation title = %q", createdTitle)
	}
	if resp.AssistantMessage == nil || resp.AssistantMessage.Content != "Hi!" {
		t.Errorf("assistant message = %+v", resp.AssistantMessage)
	}
	if resp.Cost != 0.0001 {
		t.Errorf("cost = %v", resp.Cost)
	}
	wantRoles := []string{db.RoleUser, db.RoleAssistant}
	if !reflect.DeepEqual(savedRoles, wantRoles) {
		t.Errorf("saved roles = %v, want %v", savedRoles, wantRoles)
	}
	wantActions := []string{db.ActionMessageSent, db.ActionMessageReceived}
	if !reflect.DeepEqual(recordedActions, wantActions) {
		t.Errorf("ledger actions = %v, want %v", recordedActions, wantActions)
	}
}

func TestSendMessage_AssistantSaveFailurePropagates(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		CreateConversationFunc: func(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
			return &db.Conversation{ID: "conv-1", UserID: userID, Title: title}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			if role == db.RoleAssistant {
				return nil, errors.New("write failed")
			}
			return &db.Message{ID: role + "-msg", ConversationID: conversationID, Role: role, Content: content}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return []db.Message{{ID: "user-msg", Role: db.RoleUser, Content: "Hello"}}, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			return chatResponse("the answer"), nil
		},
	}
	svc := newTestService(mockDB, provider)

	resp, err := svc.SendMessage(context.Background(), SendMessageRequest{Message: "Hello", UserID: "user-1"})
	if err == nil {
		t.Fatalf("expected error when assistant message cannot be saved, got response %+v", resp)
	}
	if resp != nil {
		t.Errorf("response = %+v, want nil", resp)
	}
}

func TestSendMessage_TruncatesLongTitle(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "0123456789"
	}

	var createdTitle string
	mockDB := &testutil.MockDatabase{
		CreateConversationFunc: func(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
			createdTitle = title
			return &db.Conversation{ID: "conv-1", UserID: userID, Title: title}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			return &db.Message{ID: "m", Role: role}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return nil, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			return chatResponse("ok"), nil
		},
	}
	svc := newTestService(mockDB, provider)

	_, err := svc.SendMessage(context.Background(), SendMessageRequest{Message: long, UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len([]rune(createdTitle)) != 100 {
		t.Errorf("title length = %d runes, want 100", len([]rune(createdTitle)))
	}
}

func TestSendMessage_OwnershipRejected(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "owner"}, nil
		},
	}
	svc := newTestService(mockDB, &testutil.MockProvider{})

	_, err := svc.SendMessage(context.Background(), SendMessageRequest{
		Message:        "hi",
		ConversationID: "conv-1",
		UserID:         "intruder",
	})
	if !apperrors.IsKind(err, apperrors.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestSendMessage_InvalidModel(t *testing.T) {
	dbCalls := 0
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			dbCalls++
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
	}
	provider := &testutil.MockProvider{
		ValidateModelFunc: func(model string) error {
			return apperrors.AIInvalidModel("model not available: %s", model)
		},
	}
	svc := newTestService(mockDB, provider)

	_, err := svc.SendMessage(context.Background(), SendMessageRequest{
		Message:        "hi",
		ConversationID: "conv-1",
		Model:          "gpt-nonexistent",
		UserID:         "user-1",
	})
	if !apperrors.IsKind(err, apperrors.KindAIInvalidModel) {
		t.Fatalf("expected invalid model error, got %v", err)
	}
	if dbCalls != 0 {
		t.Errorf("validation should fail before any database access, got %d calls", dbCalls)
	}
}

func TestSendMessage_AppliesPersona(t *testing.T) {
	personaID := "persona-1"
	usageBumped := false
	var gotInput []ai.Message

	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1", PersonaID: &personaID, CustomInstructions: "Answer briefly."}, nil
		},
		GetPersonaFunc: func(id string) (*db.Persona, error) {
			return &db.Persona{ID: id, UserID: "user-1", Name: "Pirate", SystemPrompt: "Talk like a pirate."}, nil
		},
		IncrementPersonaUsageFunc: func(id string) error {
			usageBumped = true
			return nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			return &db.Message{ID: "m", Role: role, Content: content}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return []db.Message{{ID: "m", Role: db.RoleUser, Content: "hi"}}, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (*ai.Response, error) {
			gotInput = input
			return chatResponse("Arr!"), nil
		},
	}
	svc := newTestService(mockDB, provider)

	_, err := svc.SendMessage(context.Background(), SendMessageRequest{
		Message:        "hi",
		ConversationID: "conv-1",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !usageBumped {
		t.Error("persona usage counter was not incremented")
	}
	if len(gotInput) == 0 || gotInput[0].Role != db.RoleSystem {
		t.Fatalf("expected a system message first, got %+v", gotInput)
	}
	if gotInput[0].Content != "Talk like a pirate.\n\nAnswer briefly." {
		t.Errorf("system prompt = %q", gotInput[0].Content)
	}
}

func TestSendMessageStream_EventOrder(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			return &db.Message{ID: role + "-msg", Role: role, Content: content}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return []db.Message{{ID: "user-msg", Role: db.RoleUser, Content: "hi"}}, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseStreamFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (<-chan ai.StreamChunk, error) {
			out := make(chan ai.StreamChunk, 3)
			out <- ai.StreamChunk{Content: "Hel"}
			out <- ai.StreamChunk{Content: "lo"}
			out <- ai.StreamChunk{Final: chatResponse("Hello")}
			close(out)
			return out, nil
		},
	}
	svc := newTestService(mockDB, provider)

	events, err := svc.SendMessageStream(context.Background(), SendMessageRequest{
		Message:        "hi",
		ConversationID: "conv-1",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var types []string
	var lastAccumulated string
	for event := range events {
		types = append(types, event.Type)
		if event.Type == EventContentChunk {
			lastAccumulated = event.Accumulated
		}
	}

	want := []string{EventStatus, EventUserMessage, EventContentChunk, EventContentChunk, EventAssistantMessage, EventComplete}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("event order = %v, want %v", types, want)
	}
	if lastAccumulated != "Hello" {
		t.Errorf("accumulated = %q, want Hello", lastAccumulated)
	}
}

func TestSendMessageStream_ErrorEvent(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			return &db.Message{ID: "m", Role: role}, nil
		},
		GetMessagesFunc: func(conversationID string) ([]db.Message, error) {
			return nil, nil
		},
		UnsummarizedTokenCountFunc: func(conversationID string) (int, error) {
			return 10, nil
		},
	}
	provider := &testutil.MockProvider{
		GenerateResponseStreamFunc: func(ctx context.Context, input []ai.Message, model string, opts ai.Options) (<-chan ai.StreamChunk, error) {
			out := make(chan ai.StreamChunk, 2)
			out <- ai.StreamChunk{Content: "partial"}
			out <- ai.StreamChunk{Err: apperrors.AIService("stream cut short", nil)}
			close(out)
			return out, nil
		},
	}
	svc := newTestService(mockDB, provider)

	events, err := svc.SendMessageStream(context.Background(), SendMessageRequest{
		Message:        "hi",
		ConversationID: "conv-1",
		UserID:         "user-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var last StreamEvent
	for event := range events {
		last = event
	}
	if last.Type != EventError || last.Error == "" {
		t.Errorf("last event = %+v, want error event", last)
	}
}
