package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// StatusHandler handles ephemeral status post HTTP requests
type StatusHandler struct {
	service        service.StatusService
	maxUploadBytes int64
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(service service.StatusService, maxUploadMB int) *StatusHandler {
	return &StatusHandler{service: service, maxUploadBytes: int64(maxUploadMB) << 20}
}

// Create handles POST /statuses
// @Summary Post a text or media status
// @Tags statuses
// @Accept multipart/form-data
// @Produce json
// @Param content formData string false "text"
// @Param media formData file false "image or video"
// @Success 201 {object} common.APIResponse{data=domain.StatusPost}
// @Router /statuses [post]
func (h *StatusHandler) Create(c *gin.Context) {
	ginutil.LimitBody(c, h.maxUploadBytes)
	if err := ginutil.ParseMultipart(c); err != nil {
		mediaError(c, err)
		return
	}

	media, closeMedia, err := readMedia(c, "media")
	if err != nil {
		mediaError(c, err)
		return
	}
	defer closeMedia()

	status, err := h.service.Create(c.Request.Context(), middleware.GetUserID(c), &service.CreateStatusInput{
		Media:   media,
		Content: c.PostForm("content"),
	})
	if err != nil {
		common.HandleError(c, err, "Failed to create status")
		return
	}

	common.CreatedResponse(c, "Status created successfully", status)
}

// List handles GET /statuses
// @Summary Unexpired statuses, newest first
// @Tags statuses
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.StatusPost}
// @Router /statuses [get]
func (h *StatusHandler) List(c *gin.Context) {
	statuses, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		common.HandleError(c, err, "Failed to load statuses")
		return
	}

	common.SuccessResponse(c, "Statuses retrieved successfully", statuses)
}

// View handles PUT /statuses/:statusId/view
// @Summary Record the caller as a viewer
// @Tags statuses
// @Produce json
// @Param statusId path string true "status id"
// @Success 200 {object} common.APIResponse{data=domain.StatusPost}
// @Router /statuses/{statusId}/view [put]
func (h *StatusHandler) View(c *gin.Context) {
	statusID, ok := ginutil.Param(c, "statusId")
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Status id is required", nil)
		return
	}

	status, err := h.service.View(c.Request.Context(), statusID, middleware.GetUserID(c))
	if err != nil {
		common.HandleError(c, err, "Failed to view status")
		return
	}

	common.SuccessResponse(c, "Status viewed successfully", status)
}

// Delete handles DELETE /statuses/:statusId
// @Summary Delete one of the caller's statuses
// @Tags statuses
// @Produce json
// @Param statusId path string true "status id"
// @Success 200 {object} common.APIResponse{data=domain.StatusPost}
// @Router /statuses/{statusId} [delete]
func (h *StatusHandler) Delete(c *gin.Context) {
	statusID, ok := ginutil.Param(c, "statusId")
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Status id is required", nil)
		return
	}

	status, err := h.service.Delete(c.Request.Context(), statusID, middleware.GetUserID(c))
	if err != nil {
		common.HandleError(c, err, "Failed to delete status")
		return
	}

	common.SuccessResponse(c, "Status deleted successfully", status)
}
