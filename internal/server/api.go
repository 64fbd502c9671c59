package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"smartchef/internal/generator"
	"smartchef/internal/mealplan"
	"smartchef/internal/metrics"
	"smartchef/internal/recipe"

	"github.com/go-chi/chi/v5"
)

const (
	identityWait = 15 * time.Second
	maxBodyBytes = 1 << 20
)

type errorResponse struct {
	Error string `json:"error"`
}

type sessionResponse struct {
	UserID    string `json:"userId"`
	DisplayID string `json:"displayId"`
	Provider  string `json:"provider"`
	Synthetic bool   `json:"synthetic"`
	State     string `json:"state"`
}

type generateResponse struct {
	Recipes  []recipe.Decorated `json:"recipes"`
	Fallback bool               `json:"fallback"`
	Notice   string             `json:"notice,omitempty"`
}

type planResponse struct {
	Plan mealplan.Plan `json:"plan"`
	Mode mealplan.Mode `json:"mode"`
}

type dietaryResponse struct {
	Options            []string `json:"options"`
	MinCookingMinutes  int      `json:"minCookingTime"`
	MaxCookingMinutes  int      `json:"maxCookingTime"`
	DefaultCookingTime int      `json:"defaultCookingTime"`
}

type healthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Sessions int               `json:"sessions"`
	System   metrics.SysHealth `json:"system"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Version:  s.cfg.AppVersion,
		Sessions: s.app.SessionCount(),
		System:   metrics.GetSysHealth(filepath.Dir(s.cfg.DatabasePath)),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, runtimeConfig(s.cfg))
}

func (s *Server) handleDietaryOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dietaryResponse{
		Options:            recipe.DietaryOptions(),
		MinCookingMinutes:  recipe.MinCookingMinutes,
		MaxCookingMinutes:  recipe.MaxCookingMinutes,
		DefaultCookingTime: recipe.DefaultCookingMinutes,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session := s.app.Session(sessionKey(r.Context()))

	ctx, cancel := context.WithTimeout(r.Context(), identityWait)
	defer cancel()
	id, ok := session.Identity(ctx)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "Signing in, please retry")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    id.ID,
		DisplayID: id.DisplayID(),
		Provider:  id.Provider,
		Synthetic: id.Synthetic,
		State:     session.State().String(),
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generator.Request
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.app.GenerateRecipes(r.Context(), req)
	if errors.Is(err, generator.ErrEmptyIngredients) {
		writeError(w, http.StatusBadRequest, generator.EmptyIngredientsMessage)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("recipe generation failed")
		writeError(w, http.StatusInternalServerError, "Failed to generate recipes")
		return
	}

	out := generateResponse{Fallback: res.Fallback, Notice: res.Notice}
	for _, rec := range res.Recipes {
		out.Recipes = append(out.Recipes, recipe.Decorate(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	session := s.app.Session(sessionKey(r.Context()))
	writeJSON(w, http.StatusOK, planResponse{Plan: session.Plan(), Mode: session.Mode()})
}

func slotFromRequest(r *http.Request) (recipe.SlotKey, error) {
	return recipe.NewSlotKey(chi.URLParam(r, "day"), chi.URLParam(r, "mealTime"))
}

func (s *Server) handleSaveSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := slotFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rec recipe.Recipe
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipe")
		return
	}
	if err := s.validate.Struct(rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recipe: "+err.Error())
		return
	}

	session := s.app.Session(sessionKey(r.Context()))
	if err := session.Save(slot, rec); err != nil {
		s.log.WithError(err).WithField("slot", slot.String()).Error("failed to save recipe")
		writeError(w, http.StatusInternalServerError, mealplan.SaveFailedMessage)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: session.Plan(), Mode: session.Mode()})
}

func (s *Server) handleRemoveSlot(w http.ResponseWriter, r *http.Request) {
	slot, err := slotFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := s.app.Session(sessionKey(r.Context()))
	if err := session.Remove(slot); err != nil {
		s.log.WithError(err).WithField("slot", slot.String()).Error("failed to remove recipe")
		writeError(w, http.StatusInternalServerError, mealplan.RemoveFailedMessage)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Plan: session.Plan(), Mode: session.Mode()})
}
