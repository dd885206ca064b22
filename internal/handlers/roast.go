package handlers

import (
	"fmt"
	"io"
	"net/http"

	"roast_monitor/internal/transport"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK           = "ok"
	statusConnected    = "connected"
	statusDisconnected = "disconnected"
	statusStarted      = "started"
	statusDropped      = "dropped"
	statusResumed      = "resumed"
	statusReset        = "reset"
	statusImported     = "imported"

	errInternal        = "internal error"
	errInvalidBodyPref = "invalid body: "
	errMissingFile     = "multipart field 'file' is required"
	errFileTooLarge    = "file exceeds upload limit"

	maxImportBytes = 10 << 20
)

// ConnectRequest is an exported model for Swagger docs of the connect payload.
type ConnectRequest struct {
	// Transport kind. Allowed: serial, websocket, ble, simulator
	Kind string `json:"kind" example:"serial"`
	// Serial port name or WebSocket URL
	Address string `json:"address,omitempty" example:"/dev/ttyUSB0"`
	// Serial baud rate; defaults to 115200
	Baud int `json:"baud,omitempty" example:"115200"`
}

// Respond with a status and include the current session snapshot.
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Roast.State()
	c.JSON(http.StatusOK, resp)
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get session state
// @Tags         roast
// @Produce      json
// @Success      200  {object}  models.Snapshot
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/roast/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Roast.State())
}

// @Summary      Connect device
// @Tags         roast
// @Accept       json
// @Produce      json
// @Param        body  body      ConnectRequest  true  "Transport selection"
// @Success      200   {object}  map[string]interface{}  "status, device, state"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/roast/connect [post]
// @Security     BearerAuth
func (h *Handler) connectDevice(c *gin.Context) {
	var req transport.Params
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	label, err := h.services.Roast.Connect(c.Request.Context(), req)
	if err != nil {
		h.respondDomainError(c, "roast_connect_failed", err, "kind", req.Kind, "address", req.Address)
		return
	}
	h.respondWithStatusAndState(c, statusConnected, gin.H{"device": label})
}

// @Summary      Disconnect device
// @Description  Roast data is kept; the session returns to idle.
// @Tags         roast
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/v1/roast/disconnect [post]
// @Security     BearerAuth
func (h *Handler) disconnectDevice(c *gin.Context) {
	if err := h.services.Roast.Disconnect(c.Request.Context()); err != nil {
		h.respondDomainError(c, "roast_disconnect_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusDisconnected, gin.H{})
}

// @Summary      Start roast
// @Tags         roast
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/roast/start [post]
// @Security     BearerAuth
func (h *Handler) startRoast(c *gin.Context) {
	if err := h.services.Roast.StartRoast(c.Request.Context()); err != nil {
		h.respondDomainError(c, "roast_start_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStarted, gin.H{})
}

// @Summary      Drop beans
// @Description  Finishes the roast; undo stays available for the grace period.
// @Tags         roast
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, event, state"
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/roast/stop [post]
// @Security     BearerAuth
func (h *Handler) stopRoast(c *gin.Context) {
	ev, err := h.services.Roast.StopRoast(c.Request.Context())
	if err != nil {
		h.respondDomainError(c, "roast_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusDropped, gin.H{"event": ev})
}

// @Summary      Undo drop
// @Tags         roast
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/roast/undo [post]
// @Security     BearerAuth
func (h *Handler) undoDrop(c *gin.Context) {
	if err := h.services.Roast.UndoDrop(c.Request.Context()); err != nil {
		h.respondDomainError(c, "roast_undo_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusResumed, gin.H{})
}

// @Summary      Reset session
// @Tags         roast
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/roast/reset [post]
// @Security     BearerAuth
func (h *Handler) resetSession(c *gin.Context) {
	if err := h.services.Roast.Reset(c.Request.Context()); err != nil {
		h.respondDomainError(c, "roast_reset_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusReset, gin.H{})
}

// @Summary      Toggle milestone
// @Description  Marks the milestone at the current roast time, or removes it if already marked. "drop" stops the roast.
// @Tags         roast
// @Produce      json
// @Param        label  path      string  true  "Milestone label or tag"  example(fc-start)
// @Success      200    {object}  map[string]interface{}  "label, added, state"
// @Failure      400    {object}  map[string]string
// @Failure      409    {object}  map[string]string
// @Router       /api/v1/roast/events/{label} [post]
// @Security     BearerAuth
func (h *Handler) toggleEvent(c *gin.Context) {
	label := c.Param("label")
	added, err := h.services.Roast.ToggleEvent(c.Request.Context(), label)
	if err != nil {
		h.respondDomainError(c, "roast_toggle_event_failed", err, "label", label)
		return
	}
	status := "removed"
	if added {
		status = "added"
	}
	h.respondWithStatusAndState(c, status, gin.H{"label": label, "added": added})
}

// @Summary      Import roast file
// @Description  Accepts .csv, .json and .alog files. The session is replaced only if parsing succeeds.
// @Tags         roast
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Roast file"
// @Success      200   {object}  map[string]interface{}  "status, import, state"
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      422   {object}  map[string]string
// @Router       /api/v1/roast/import [post]
// @Security     BearerAuth
func (h *Handler) importRoast(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errMissingFile})
		return
	}
	if fh.Size > maxImportBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errFileTooLarge})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errInternal, "roast_import_open_failed", err)
		return
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxImportBytes))
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errInternal, "roast_import_read_failed", err)
		return
	}

	sum, err := h.services.Roast.Import(c.Request.Context(), fh.Filename, data)
	if err != nil {
		h.respondDomainError(c, "roast_import_failed", err, "filename", fh.Filename)
		return
	}
	h.respondWithStatusAndState(c, statusImported, gin.H{"import": sum})
}

// @Summary      Export roast
// @Tags         roast
// @Produce      octet-stream
// @Param        format  query  string  false  "Export format"  Enums(csv,xlsx,json)
// @Success      200
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/roast/export [get]
// @Security     BearerAuth
func (h *Handler) exportRoast(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	f, err := h.services.Roast.Export(c.Request.Context(), format)
	if err != nil {
		h.respondDomainError(c, "roast_export_failed", err, "format", format)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="roast%s"`, f.Extension))
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

// @Summary      Analyze roast curve
// @Tags         roast
// @Produce      json
// @Success      200  {object}  ror.Analysis
// @Router       /api/v1/roast/analysis [get]
// @Security     BearerAuth
func (h *Handler) getAnalysis(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Roast.Analysis())
}
