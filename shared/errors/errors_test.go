package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{ErrUnauthorized, "unauthorized", http.StatusUnauthorized},
		{ErrForbidden, "forbidden", http.StatusForbidden},
		{fmt.Errorf("join: %w", ErrForbidden), "forbidden", http.StatusForbidden},
		{BadRequest("bad"), "bad_request", http.StatusBadRequest},
		{NotFound("sticker not found"), "not_found", http.StatusNotFound},
		{errors.New("boom"), "internal", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.code, Code(tt.err))
			assert.Equal(t, tt.status, StatusCode(tt.err))
		})
	}
}
