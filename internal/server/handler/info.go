package handler

import (
	"net/http"
)

// InfoHandler serves the welcome message and project metadata.
type InfoHandler struct {
	Name        string
	Version     string
	Description string
}

// NewInfoHandler creates an InfoHandler for the given project identity.
func NewInfoHandler(name, version, description string) *InfoHandler {
	return &InfoHandler{Name: name, Version: version, Description: description}
}

// Root responds with the welcome message.
// GET /
func (h *InfoHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to " + h.Name + "!",
	})
}

// Info responds with the project name, version and description.
// GET /api/v1/info
func (h *InfoHandler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":        h.Name,
		"version":     h.Version,
		"description": h.Description,
	})
}
