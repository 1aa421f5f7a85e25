package handlers

import (
	"encoding/json"
	"net/http"

	"kenchat/internal/app"
	"kenchat/internal/repository/db"
	personaService "kenchat/internal/service/persona"
)

type PersonaRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

type PersonaInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SystemPrompt string `json:"system_prompt"`
	IsDefault    bool   `json:"is_default"`
	UsageCount   int    `json:"usage_count"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type PersonasResponse struct {
	Personas []PersonaInfo `json:"personas"`
}

// PersonaHandlers serves persona CRUD endpoints
type PersonaHandlers struct {
	config   *app.Config
	personas *personaService.Service
}

// NewPersonaHandlers creates a new PersonaHandlers
func NewPersonaHandlers(config *app.Config, personas *personaService.Service) *PersonaHandlers {
	return &PersonaHandlers{config: config, personas: personas}
}

// CreateHandler creates a new persona
func (h *PersonaHandlers) CreateHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	var req PersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	persona, err := h.personas.Create(personaService.CreateRequest{
		UserID:       user.ID,
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		IsDefault:    req.IsDefault,
	})
	if err != nil {
		sendServiceError(w, "Error creating persona", err)
		return
	}
	sendJSON(w, http.StatusCreated, toPersonaInfo(persona))
}

// ListHandler returns all of the user's personas
func (h *PersonaHandlers) ListHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	personas, err := h.personas.List(user.ID)
	if err != nil {
		sendServiceError(w, "Error retrieving personas", err)
		return
	}

	infos := make([]PersonaInfo, 0, len(personas))
	for i := range personas {
		infos = append(infos, toPersonaInfo(&personas[i]))
	}
	sendJSON(w, http.StatusOK, PersonasResponse{Personas: infos})
}

// GetHandler returns one persona
func (h *PersonaHandlers) GetHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	persona, err := h.personas.Get(r.PathValue("id"), user.ID)
	if err != nil {
		sendServiceError(w, "Error retrieving persona", err)
		return
	}
	sendJSON(w, http.StatusOK, toPersonaInfo(persona))
}

// UpdateHandler modifies a persona
func (h *PersonaHandlers) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	var req PersonaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	persona, err := h.personas.Update(r.PathValue("id"), user.ID, req.Name, req.Description, req.SystemPrompt)
	if err != nil {
		sendServiceError(w, "Error updating persona", err)
		return
	}
	sendJSON(w, http.StatusOK, toPersonaInfo(persona))
}

// DeleteHandler removes a persona
func (h *PersonaHandlers) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	if err := h.personas.Delete(r.PathValue("id"), user.ID); err != nil {
		sendServiceError(w, "Error deleting persona", err)
		return
	}
	sendJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Persona deleted"})
}

// SetDefaultHandler marks a persona as the user's default
func (h *PersonaHandlers) SetDefaultHandler(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r, h.config.DB)
	if err != nil {
		sendError(w, http.StatusNotFound, "User not found", err)
		return
	}

	if err := h.personas.SetDefault(r.PathValue("id"), user.ID); err != nil {
		sendServiceError(w, "Error setting default persona", err)
		return
	}
	sendJSON(w, http.StatusOK, DeleteResponse{Success: true, Message: "Default persona updated"})
}

func toPersonaInfo(p *db.Persona) PersonaInfo {
	return PersonaInfo{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		SystemPrompt: p.SystemPrompt,
		IsDefault:    p.IsDefault,
		UsageCount:   p.UsageCount,
		CreatedAt:    p.CreatedAt.Format(timeLayout),
		UpdatedAt:    p.UpdatedAt.Format(timeLayout),
	}
}
