package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/itchan-dev/retroboard/shared/api"
	"github.com/itchan-dev/retroboard/shared/domain"
	"github.com/itchan-dev/retroboard/shared/utils"
)

func (h *Handler) CreateSticker(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body api.CreateStickerRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	sticker, err := h.sticker.Create(r.Context(), domain.StickerCreationData{
		BoardId: chi.URLParam(r, "board"),
		Column:  body.Column,
		Content: body.Content,
		Author:  user.Email,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, sticker)
}

func (h *Handler) UpdateSticker(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var body api.UpdateStickerRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}

	sticker, err := h.sticker.Update(r.Context(), domain.StickerUpdateData{
		Id:      chi.URLParam(r, "sticker"),
		BoardId: chi.URLParam(r, "board"),
		Column:  body.Column,
		Content: body.Content,
		Editor:  user.Email,
	})
	if err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, sticker)
}

func (h *Handler) DeleteSticker(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.sticker.Delete(r.Context(), chi.URLParam(r, "board"), chi.URLParam(r, "sticker"), user.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddVote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.vote.Add(r.Context(), chi.URLParam(r, "board"), chi.URLParam(r, "sticker"), user.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveVote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.vote.Remove(r.Context(), chi.URLParam(r, "board"), chi.URLParam(r, "sticker"), user.Email); err != nil {
		utils.WriteErrorAndStatusCode(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
