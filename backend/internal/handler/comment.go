package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/itchan-dev/retroboard/shared/api"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/utils"
)

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body api.CommentRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	comment, err := h.comment.Add(r.Context(), domain.CommentCreationData{
		BoardId:   chi.URLParam(r, "board"),
		StickerId: chi.URLParam(r, "sticker"),
		Content:   body.Content,
		Author:    user.Email,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, comment)
}

func (h *Handler) UpdateComment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body api.CommentRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	comment, err := h.comment.Update(r.Context(),
		chi.URLParam(r, "board"), chi.URLParam(r, "sticker"), chi.URLParam(r, "comment"),
		user.Email, body.Content,
	)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, comment)
}

func (h *Handler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	err := h.comment.Delete(r.Context(),
		chi.URLParam(r, "board"), chi.URLParam(r, "sticker"), chi.URLParam(r, "comment"),
		user.Email,
	)
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
