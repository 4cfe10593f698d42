package batch

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/evildarkarchon/unpackrr/internal/bsarch"
	"github.com/evildarkarchon/unpackrr/internal/common"
	"github.com/evildarkarchon/unpackrr/internal/extract"
	"github.com/evildarkarchon/unpackrr/internal/scan"
	"github.com/evildarkarchon/unpackrr/internal/validation"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Scan(c echo.Context) error {
	var req ScanRequest
	if err := c.Bind(&req); err != nil {
		return common.SendBadRequest(c, "Invalid request format")
	}

	response, err := h.service.Scan(c.Request().Context(), req.Root)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, response)
}

func (h *Handler) GetInventory(c echo.Context) error {
	key, err := scan.ParseSortKey(c.QueryParam("sort"))
	if err != nil {
		return common.SendBadRequest(c, err.Error())
	}

	descending := true
	if raw := c.QueryParam("desc"); raw != "" {
		descending, err = strconv.ParseBool(raw)
		if err != nil {
			return common.SendBadRequest(c, "Invalid desc value")
		}
	}

	limit := SizeLimit{Threshold: c.QueryParam("threshold")}
	if raw := c.QueryParam("auto_threshold"); raw != "" {
		limit.Auto, err = strconv.ParseBool(raw)
		if err != nil {
			return common.SendBadRequest(c, "Invalid auto_threshold value")
		}
	}

	response, err := h.service.Inventory(key, descending, limit)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, response)
}

func (h *Handler) RemoveEntry(c echo.Context) error {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return common.SendBadRequest(c, "Index must be an integer")
	}

	entry, err := h.service.RemoveEntry(index)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, entry)
}

func (h *Handler) FilterBad(c echo.Context) error {
	removed, err := h.service.FilterBad()
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, map[string]int{"removed": removed})
}

func (h *Handler) ListArchive(c echo.Context) error {
	var req ListRequest
	if err := c.Bind(&req); err != nil {
		return common.SendBadRequest(c, "Invalid request format")
	}

	response, err := h.service.ListArchive(c.Request().Context(), req.Path)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, response)
}

func (h *Handler) StartBatch(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return common.SendBadRequest(c, "Invalid request format")
	}

	batchID, err := h.service.StartBatch(req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendAccepted(c, StartResponse{BatchID: batchID})
}

func (h *Handler) StartCheck(c echo.Context) error {
	var req CheckRequest
	if err := c.Bind(&req); err != nil {
		return common.SendBadRequest(c, "Invalid request format")
	}

	batchID, err := h.service.StartCheck(c.Request().Context(), req)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendAccepted(c, StartResponse{BatchID: batchID})
}

func (h *Handler) ListBatches(c echo.Context) error {
	return common.SendSuccess(c, h.service.Batches())
}

func (h *Handler) GetBatchStatus(c echo.Context) error {
	batchID, ok := batchIDParam(c)
	if !ok {
		return common.SendBadRequest(c, "Invalid batch ID format")
	}

	status, err := h.service.Get(batchID)
	if err != nil {
		return sendServiceError(c, err)
	}
	return common.SendSuccess(c, status)
}

func (h *Handler) StreamBatch(c echo.Context) error {
	batchID, ok := batchIDParam(c)
	if !ok {
		return common.SendBadRequest(c, "Invalid batch ID format")
	}
	if _, err := h.service.Get(batchID); err != nil {
		return sendServiceError(c, err)
	}

	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
	c.Response().Header().Del("Content-Length")

	c.Response().WriteHeader(http.StatusOK)

	if flusher, ok := c.Response().Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return h.service.Stream(c.Request().Context(), batchID, c.Response())
}

func (h *Handler) PauseBatch(c echo.Context) error {
	return h.control(c, extract.Pause)
}

func (h *Handler) ResumeBatch(c echo.Context) error {
	return h.control(c, extract.Resume)
}

func (h *Handler) CancelBatch(c echo.Context) error {
	return h.control(c, extract.Cancel)
}

func (h *Handler) control(c echo.Context, control extract.Control) error {
	batchID, ok := batchIDParam(c)
	if !ok {
		return common.SendBadRequest(c, "Invalid batch ID format")
	}

	if err := h.service.Control(batchID, control); err != nil {
		return sendServiceError(c, err)
	}
	return common.SendAccepted(c, map[string]string{
		"batchId": batchID,
		"control": control.String(),
	})
}

func batchIDParam(c echo.Context) (string, bool) {
	batchID := c.Param("batchId")
	return batchID, validation.ValidateBatchID(batchID) == nil
}

func sendServiceError(c echo.Context, err error) error {
	var notFound *scan.PathNotFoundError
	switch {
	case errors.Is(err, ErrBatchNotFound):
		return common.SendNotFound(c, err.Error())
	case errors.Is(err, ErrBatchActive),
		errors.Is(err, ErrScanInProgress),
		errors.Is(err, ErrBatchFinished),
		errors.Is(err, ErrControlQueueFull):
		return common.SendConflict(c, err.Error())
	case errors.Is(err, ErrNoInventory),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrUnknownEntry),
		errors.Is(err, ErrNothingToExtract),
		errors.Is(err, ErrNothingToCheck),
		errors.Is(err, ErrInvalidRequest),
		errors.Is(err, validation.ErrPathTraversal),
		errors.Is(err, validation.ErrNotAnArchive),
		errors.Is(err, validation.ErrEmptyPath),
		errors.Is(err, scan.ErrNotADirectory):
		return common.SendBadRequest(c, err.Error())
	case errors.As(err, &notFound):
		return common.SendNotFound(c, err.Error())
	case errors.Is(err, bsarch.ErrToolNotFound):
		return common.SendError(c, http.StatusServiceUnavailable, err.Error())
	default:
		return common.SendInternalError(c, err.Error())
	}
}
