package models

// Message is a locally cached conversation message. Messages are append-only
// from the client's point of view; there is no update or delete path.
type Message struct {
	ID             string `db:"id" json:"id"`
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	SenderID       string `db:"sender_id" json:"sender_id"`
	Body           string `db:"body" json:"body"`
	SentAt         int64  `db:"sent_at" json:"sent_at"`
}

// TableName returns the table name for Message.
func (Message) TableName() string {
	return "messages"
}
