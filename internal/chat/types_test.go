package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateMessage(t *testing.T) {
	file := &Attachment{Name: "a.pdf", URL: "https://files.example.com/a.pdf", Size: 10}
	tests := []struct {
		name    string
		msg     Message
		wantErr bool
	}{
		{"text ok", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TextMessage, Content: "hi"}, false},
		{"file ok", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: FileMessage, File: file}, false},
		{"missing id", Message{ConversationID: "c1", SenderID: "u1", Type: TextMessage, Content: "hi"}, true},
		{"missing sender", Message{ID: "m1", ConversationID: "c1", Type: TextMessage, Content: "hi"}, true},
		{"unknown type", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: "voice", Content: "hi"}, true},
		{"text without body", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TextMessage}, true},
		{"text with file", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TextMessage, Content: "hi", File: file}, true},
		{"file without attachment", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: FileMessage}, true},
		{"file with content", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: FileMessage, Content: "x", File: file}, true},
		{"file with bad url", Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: FileMessage, File: &Attachment{Name: "a", URL: "nope"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(&tt.msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidMessage) {
				t.Errorf("error %v does not wrap ErrInvalidMessage", err)
			}
		})
	}
}

func TestValidateConversation(t *testing.T) {
	if err := ValidateConversation(&Conversation{ID: "c1", Kind: Group, Name: "team"}); err != nil {
		t.Errorf("group with name: %v", err)
	}
	if err := ValidateConversation(&Conversation{ID: "c1", Kind: Direct, Name: "team"}); err == nil {
		t.Error("direct conversation with name should fail")
	}
	if err := ValidateConversation(&Conversation{ID: "c1", Kind: "channel"}); err == nil {
		t.Error("unknown kind should fail")
	}
	bad := &Conversation{ID: "c1", Kind: Direct, LatestMessage: &Message{ID: "m1"}}
	if err := ValidateConversation(bad); err == nil {
		t.Error("invalid latest message should fail")
	}
}

func TestPreview(t *testing.T) {
	m := Message{Type: TextMessage, Content: strings.Repeat("é", 150), CreatedAt: time.Now()}
	if got := []rune(m.Preview()); len(got) != 100 {
		t.Errorf("preview runes = %d, want 100", len(got))
	}
	f := Message{Type: FileMessage, File: &Attachment{Name: "report.pdf"}}
	if got := f.Preview(); got != "[file] report.pdf" {
		t.Errorf("preview = %q", got)
	}
}

func TestHasParticipant(t *testing.T) {
	c := Conversation{Participants: []string{"u1", "u2"}}
	if !c.HasParticipant("u2") || c.HasParticipant("u3") {
		t.Error("HasParticipant mismatch")
	}
}
