package service

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/itchan-dev/retroboard/shared/domain"
	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
	"github.com/itchan-dev/retroboard/shared/events"
)

const (
	maxBoardNameLen = 100
	maxColumnLen    = 64
	maxContentLen   = 4000
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Publisher sends a domain event to every participant of a board.
type Publisher interface {
	Publish(ctx context.Context, boardId domain.BoardId, t events.Type, payload any, origin domain.SessionId) error
}

type RoleStorage interface {
	Role(ctx context.Context, boardId domain.BoardId, email domain.Email) (domain.Role, error)
}

type TextRenderer interface {
	Render(src string) string
}

// requireMember returns the caller's role, or ErrForbidden for non-members.
func requireMember(ctx context.Context, storage RoleStorage, boardId domain.BoardId, email domain.Email) (domain.Role, error) {
	if email == "" {
		return domain.RoleNone, internal_errors.ErrUnauthorized
	}
	role, err := storage.Role(ctx, boardId, email)
	if err != nil {
		return domain.RoleNone, err
	}
	if !role.IsMember() {
		return domain.RoleNone, internal_errors.ErrForbidden
	}
	return role, nil
}

// publish never fails the mutation: the change is already stored and the
// next snapshot fetch brings lagging clients up to date.
func publish(ctx context.Context, pub Publisher, log *slog.Logger, boardId domain.BoardId, t events.Type, payload any) {
	if err := pub.Publish(ctx, boardId, t, payload, ""); err != nil {
		log.Warn("failed to publish event", "board_id", boardId, "type", t, "error", err)
	}
}

func validateText(field, text string, maxLen int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", internal_errors.BadRequest(field + " is empty")
	}
	if utf8.RuneCountInString(text) > maxLen {
		return "", internal_errors.BadRequest(field + " is too long")
	}
	return text, nil
}
