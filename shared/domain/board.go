package domain

import (
	"time"
)

type Board struct {
	Id        BoardId   `json:"id"`
	Name      BoardName `json:"name"`
	Owner     Email     `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sticker is a note in one of the board columns.
// Nil Votes/Comments mean "not part of this payload"; an empty slice means none exist.
type Sticker struct {
	Id          StickerId `json:"id"`
	BoardId     BoardId   `json:"boardId"`
	Column      string    `json:"column"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml,omitempty"`
	Author      Email     `json:"author"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Votes       []Vote    `json:"votes"`
	Comments    []Comment `json:"comments"`
}

type Vote struct {
	StickerId StickerId `json:"stickerId"`
	Email     Email     `json:"email"`
}

type Comment struct {
	Id          CommentId `json:"id"`
	StickerId   StickerId `json:"stickerId"`
	BoardId     BoardId   `json:"boardId"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"contentHtml,omitempty"`
	Author      Email     `json:"author"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// to iterate thru layers: handler -> service -> storage
type StickerCreationData struct {
	BoardId BoardId
	Column  string
	Content string
	Author  Email
}

type StickerUpdateData struct {
	Id      StickerId
	BoardId BoardId
	Column  *string
	Content *string
	Editor  Email
}

type CommentCreationData struct {
	BoardId   BoardId
	StickerId StickerId
	Content   string
	Author    Email
}

// BoardSnapshot is the authoritative state of a board as stored in the database.
// Clients re-fetch it after a reconnect instead of trusting accumulated events.
type BoardSnapshot struct {
	Board    Board       `json:"board"`
	Stickers []Sticker   `json:"stickers"`
	Members  []Member    `json:"members"`
	Timer    *TimerState `json:"timer,omitempty"`
}
