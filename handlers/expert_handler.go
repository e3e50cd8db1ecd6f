package handlers

import (
	"net/http"

	"github.com/upb/chat-gateway/services/prompt"
	"github.com/upb/chat-gateway/utils"
)

// ExpertResponse describes one catalog entry
type ExpertResponse struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	SystemPrompt string `json:"system_prompt"`
	Default      bool   `json:"default"`
}

// ExpertHandler lists the expert catalog
type ExpertHandler struct {
	catalog *prompt.Catalog
}

// NewExpertHandler creates a new ExpertHandler
func NewExpertHandler(catalog *prompt.Catalog) *ExpertHandler {
	return &ExpertHandler{catalog: catalog}
}

// HandleList handles GET /api/v1/experts
func (h *ExpertHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	def := h.catalog.Default().Key
	experts := h.catalog.Experts()

	out := make([]ExpertResponse, 0, len(experts))
	for _, e := range experts {
		out = append(out, ExpertResponse{
			Key:          e.Key,
			Label:        e.Label,
			SystemPrompt: e.System,
			Default:      e.Key == def,
		})
	}
	_ = utils.WriteOK(w, out)
}
