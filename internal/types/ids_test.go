package types

import "testing"

func TestIDConstructors(t *testing.T) {
	if NewConversationID() == "" {
		t.Error("expected non-empty conversation ID")
	}
	if NewGroupID() == "" {
		t.Error("expected non-empty group ID")
	}
	if NewReportID() == "" {
		t.Error("expected non-empty report ID")
	}

	if NewConversationID() == NewConversationID() {
		t.Error("conversation IDs should be unique")
	}
}
