package domain

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a session's conversational memory.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
