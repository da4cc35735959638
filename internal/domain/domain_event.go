package domain

import "time"

// EventType usage event type
// EventType 使用事件类型
type EventType string

const (
	EventNoteViewed  EventType = "NoteViewed"
	EventNoteCreated EventType = "NoteCreated"
	EventNoteEdited  EventType = "NoteEdited"
	EventNoteDeleted EventType = "NoteDeleted"
)

// EventTypes returns every known event type
// EventTypes 返回所有事件类型
func EventTypes() []EventType {
	return []EventType{EventNoteViewed, EventNoteCreated, EventNoteEdited, EventNoteDeleted}
}

// Valid reports whether t is a known event type
func (t EventType) Valid() bool {
	for _, v := range EventTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// Event usage telemetry record, delivery is best effort
// Event 使用遥测记录，投递为尽力而为
type Event struct {
	EventType EventType `json:"eventType"`
	NoteID    string    `json:"noteId"`
	Timestamp time.Time `json:"timeStamp"`
	Username  string    `json:"username"`
}

// NewEvent 创建事件，时间戳为当前 UTC 时间
func NewEvent(t EventType, username, noteID string) *Event {
	return &Event{
		EventType: t,
		NoteID:    noteID,
		Timestamp: time.Now().UTC(),
		Username:  username,
	}
}
