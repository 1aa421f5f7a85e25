package conversation

import (
	"testing"

	"kenchat/internal/apperrors"
	"kenchat/internal/repository/db"
	"kenchat/internal/testutil"
)

func TestCreate_WithPersona(t *testing.T) {
	var gotPersonaID *string
	mockDB := &testutil.MockDatabase{
		GetPersonaFunc: func(id string) (*db.Persona, error) {
			return &db.Persona{ID: id, UserID: "user-1"}, nil
		},
		CreateConversationFunc: func(userID, title, intent, customInstructions string, personaID *string) (*db.Conversation, error) {
			gotPersonaID = personaID
			return &db.Conversation{ID: "conv-1", UserID: userID, Title: title, PersonaID: personaID}, nil
		},
	}
	svc := NewService(mockDB)

	conv, err := svc.Create(CreateRequest{UserID: "user-1", Title: "Trip planning", PersonaID: "persona-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID != "conv-1" {
		t.Errorf("conversation = %+v", conv)
	}
	if gotPersonaID == nil || *gotPersonaID != "persona-1" {
		t.Errorf("persona id passed to store = %v", gotPersonaID)
	}
}

func TestCreate_RejectsForeignPersona(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetPersonaFunc: func(id string) (*db.Persona, error) {
			return &db.Persona{ID: id, UserID: "someone-else"}, nil
		},
	}
	svc := NewService(mockDB)

	_, err := svc.Create(CreateRequest{UserID: "user-1", Title: "x", PersonaID: "persona-1"})
	if !apperrors.IsKind(err, apperrors.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestGet_Ownership(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "owner"}, nil
		},
	}
	svc := NewService(mockDB)

	if _, err := svc.Get("conv-1", "owner"); err != nil {
		t.Errorf("owner access failed: %v", err)
	}
	if _, err := svc.Get("conv-1", "intruder"); !apperrors.IsKind(err, apperrors.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return nil, apperrors.NotFound("no such row")
		},
	}
	svc := NewService(mockDB)

	_, err := svc.Get("missing", "user-1")
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestAddMessage(t *testing.T) {
	var gotRole, gotContent string
	var gotTokens int
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "owner"}, nil
		},
		AddMessageFunc: func(conversationID, role, content string, tokenCount int, model string, cost float64) (*db.Message, error) {
			gotRole, gotContent, gotTokens = role, content, tokenCount
			return &db.Message{ID: "msg-1", Role: role, Content: content, TokenCount: tokenCount}, nil
		},
	}
	svc := NewService(mockDB)

	msg, err := svc.AddMessage("conv-1", "owner", db.RoleSystem, "Stay concise.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "msg-1" || gotRole != db.RoleSystem || gotContent != "Stay concise." {
		t.Errorf("stored message = %+v (role %q, content %q)", msg, gotRole, gotContent)
	}
	if gotTokens != len("Stay concise.")/4 {
		t.Errorf("token count = %d", gotTokens)
	}
}

func TestAddMessage_RejectsUnknownRole(t *testing.T) {
	svc := NewService(&testutil.MockDatabase{})

	_, err := svc.AddMessage("conv-1", "owner", "moderator", "hi")
	if !apperrors.IsKind(err, apperrors.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestSetArchived(t *testing.T) {
	var gotUpdate db.ConversationUpdate
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		UpdateConversationFunc: func(id string, update db.ConversationUpdate) (*db.Conversation, error) {
			gotUpdate = update
			return &db.Conversation{ID: id, UserID: "user-1", IsArchived: *update.IsArchived}, nil
		},
	}
	svc := NewService(mockDB)

	conv, err := svc.SetArchived("conv-1", "user-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conv.IsArchived {
		t.Error("conversation not archived")
	}
	if gotUpdate.IsArchived == nil || !*gotUpdate.IsArchived {
		t.Errorf("update = %+v", gotUpdate)
	}
	if gotUpdate.Title != nil || gotUpdate.Intent != nil {
		t.Errorf("archive update touched unrelated fields: %+v", gotUpdate)
	}
}

func TestDelete_Ownership(t *testing.T) {
	deleted := false
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "owner"}, nil
		},
		DeleteConversationFunc: func(id string) error {
			deleted = true
			return nil
		},
	}
	svc := NewService(mockDB)

	if err := svc.Delete("conv-1", "intruder"); !apperrors.IsKind(err, apperrors.KindAuthorization) {
		t.Errorf("expected authorization error, got %v", err)
	}
	if deleted {
		t.Error("delete reached the store despite failed ownership check")
	}

	if err := svc.Delete("conv-1", "owner"); err != nil {
		t.Errorf("owner delete failed: %v", err)
	}
	if !deleted {
		t.Error("delete did not reach the store")
	}
}

func TestUpdate_ValidatesPersona(t *testing.T) {
	personaID := "persona-9"
	mockDB := &testutil.MockDatabase{
		GetConversationFunc: func(id string) (*db.Conversation, error) {
			return &db.Conversation{ID: id, UserID: "user-1"}, nil
		},
		GetPersonaFunc: func(id string) (*db.Persona, error) {
			return nil, apperrors.NotFound("no such persona")
		},
	}
	svc := NewService(mockDB)

	_, err := svc.Update("conv-1", "user-1", db.ConversationUpdate{PersonaID: &personaID})
	if !apperrors.IsKind(err, apperrors.KindNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
}
