// internal/types/ids.go
package types

import "github.com/google/uuid"

type ConversationID string
type GroupID string
type ReportID string

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewGroupID() GroupID {
	return GroupID(uuid.New().String())
}

func NewReportID() ReportID {
	return ReportID(uuid.New().String())
}
