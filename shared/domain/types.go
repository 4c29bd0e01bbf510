package domain

type (
	Email     = string
	BoardId   = string
	BoardName = string

	StickerId = string
	CommentId = string
	TimerId   = string

	// SessionId identifies one realtime connection. An identity may hold several.
	SessionId = string
)
