// Package handlers provides HTTP handlers for portfolio pages and the portfolio JSON API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/stocktracker/internal/domain"
	"github.com/aristath/stocktracker/internal/modules/portfolio"
)

// PortfolioService is the portfolio behaviour the handlers depend on
type PortfolioService interface {
	GetUser(ctx context.Context, username string) (*domain.User, error)
	AddStock(ctx context.Context, username, rawSymbol string) (*portfolio.AddResult, error)
	RemoveStock(ctx context.Context, username, rawSymbol string) (int64, error)
}

// UserCreator creates users
type UserCreator interface {
	CreateUser(ctx context.Context, username string) (bool, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	service PortfolioService
	users   UserCreator
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service PortfolioService, users UserCreator, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		users:   users,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleProfile renders a user's portfolio
func (h *Handler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	user, err := h.service.GetUser(r.Context(), username)
	if errors.Is(err, domain.ErrUserNotFound) {
		h.writeText(w, http.StatusNotFound, "User Not Found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("Get User Error")
		h.writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.render(w, "index", viewData{Username: user.Username, Stocks: user.Portfolio})
}

// HandleAddStockForm renders the add-stock form
func (h *Handler) HandleAddStockForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "addstock", viewData{Username: chi.URLParam(r, "username")})
}

// HandleAddStock adds the submitted symbol and redirects back to the profile
func (h *Handler) HandleAddStock(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	symbol, ok := h.formSymbol(w, r)
	if !ok {
		return
	}

	result, err := h.service.AddStock(r.Context(), username, symbol)
	if errors.Is(err, domain.ErrUserNotFound) {
		h.writeText(w, http.StatusNotFound, "User Not Found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Str("symbol", symbol).Msg("Add Stock Error")
		h.writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	h.log.Debug().Str("username", username).Str("symbol", result.Symbol).Str("source", string(result.Source)).Msg("Stock added")
	redirectToProfile(w, r, username)
}

// HandleDeleteForm renders the remove-stock form
func (h *Handler) HandleDeleteForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, "delete", viewData{Username: chi.URLParam(r, "username")})
}

// HandleDelete removes the submitted symbol and redirects back to the profile
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	symbol, ok := h.formSymbol(w, r)
	if !ok {
		return
	}

	if _, err := h.service.RemoveStock(r.Context(), username, symbol); err != nil {
		h.log.Error().Err(err).Str("username", username).Str("symbol", symbol).Msg("Delete Stock Error")
		h.writeText(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	redirectToProfile(w, r, username)
}

// HandleGetPortfolio returns a user's portfolio as JSON
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, user)
}

// HandleGetSummary returns per-ratio statistics for a user's portfolio
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookupUser(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, portfolio.Summarize(user))
}

// HandleCreateUser creates a user from a JSON body {"username": "..."}
func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		h.writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	created, err := h.users.CreateUser(r.Context(), username)
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("Failed to create user")
		h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, map[string]interface{}{
		"username": username,
		"created":  created,
	})
}

func (h *Handler) lookupUser(w http.ResponseWriter, r *http.Request) (*domain.User, bool) {
	username := chi.URLParam(r, "username")

	user, err := h.service.GetUser(r.Context(), username)
	if errors.Is(err, domain.ErrUserNotFound) {
		h.writeError(w, http.StatusNotFound, "User Not Found")
		return nil, false
	}
	if err != nil {
		h.log.Error().Err(err).Str("username", username).Msg("Get User Error")
		h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return nil, false
	}
	return user, true
}

// formSymbol reads the "name" form field. A missing or blank value is answered with 400.
func (h *Handler) formSymbol(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		h.writeText(w, http.StatusBadRequest, "Bad Request")
		return "", false
	}

	symbol := domain.NormalizeSymbol(r.PostForm.Get("name"))
	if symbol == "" {
		h.writeText(w, http.StatusBadRequest, "Bad Request")
		return "", false
	}
	return symbol, true
}

func redirectToProfile(w http.ResponseWriter, r *http.Request, username string) {
	http.Redirect(w, r, "/profile/"+url.PathEscape(username), http.StatusFound)
}

func (h *Handler) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
