package handlers

import (
	"net/http"

	"aistudio/internal/domain"
)

type stylesResponse struct {
	Items   []domain.StyleOption `json:"items"`
	Default string               `json:"default"`
}

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, stylesResponse{Items: domain.Styles, Default: domain.DefaultStyle().ID})
}
