package model

type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
)

// ChatMessage is one turn of a chat transcript.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
