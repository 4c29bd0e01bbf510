package api

// Request DTOs

type CreateStickerRequest struct {
	Column  string `json:"column" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// UpdateStickerRequest changes only the fields that are present.
type UpdateStickerRequest struct {
	Column  *string `json:"column,omitempty"`
	Content *string `json:"content,omitempty"`
}

type CommentRequest struct {
	Content string `json:"content" validate:"required"`
}
