package health

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type Extractor interface {
	ToolAvailable() bool
	ToolPath() string
	ActiveBatch() string
}

type Clients interface {
	ClientCount() int
}

type Handler struct {
	extractor Extractor
	clients   Clients
}

type Response struct {
	Status        string `json:"status"`
	ToolPath      string `json:"tool_path"`
	ToolAvailable bool   `json:"tool_available"`
	ActiveBatch   string `json:"active_batch,omitempty"`
	Clients       int    `json:"websocket_clients"`
}

func NewHandler(extractor Extractor, clients Clients) *Handler {
	return &Handler{extractor: extractor, clients: clients}
}

// Health reports "degraded" while the unpacking tool cannot be found.
func (h *Handler) Health(c echo.Context) error {
	response := Response{
		Status:        "healthy",
		ToolPath:      h.extractor.ToolPath(),
		ToolAvailable: h.extractor.ToolAvailable(),
		ActiveBatch:   h.extractor.ActiveBatch(),
		Clients:       h.clients.ClientCount(),
	}
	if !response.ToolAvailable {
		response.Status = "degraded"
	}
	return c.JSON(http.StatusOK, response)
}
