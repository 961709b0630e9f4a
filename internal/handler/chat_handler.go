package handler

import (
	"errors"
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// ChatHandler handles conversation and message HTTP requests
type ChatHandler struct {
	service        service.ChatService
	maxUploadBytes int64
}

// NewChatHandler creates a new ChatHandler; maxUploadMB caps multipart bodies
func NewChatHandler(service service.ChatService, maxUploadMB int) *ChatHandler {
	return &ChatHandler{service: service, maxUploadBytes: int64(maxUploadMB) << 20}
}

// ListConversations handles GET /conversations
// @Summary List the caller's conversations
// @Tags chat
// @Produce json
// @Success 200 {object} common.APIResponse{data=[]domain.ConversationView}
// @Router /conversations [get]
func (h *ChatHandler) ListConversations(c *gin.Context) {
	userID := middleware.GetUserID(c)

	convs, err := h.service.ListConversations(c.Request.Context(), userID)
	if err != nil {
		common.HandleError(c, err, "Failed to load conversations")
		return
	}

	common.SuccessResponse(c, "Conversations retrieved successfully", convs)
}

// GetMessages handles GET /conversations/:conversationId/messages
// @Summary Conversation history; marks incoming messages read
// @Tags chat
// @Produce json
// @Param conversationId path string true "conversation id"
// @Success 200 {object} common.APIResponse{data=[]domain.Message}
// @Router /conversations/{conversationId}/messages [get]
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, ok := ginutil.Param(c, "conversationId")
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Conversation id is required", nil)
		return
	}

	msgs, err := h.service.GetMessages(c.Request.Context(), middleware.GetUserID(c), conversationID)
	if err != nil {
		common.HandleError(c, err, "Failed to load messages")
		return
	}

	common.SuccessResponse(c, "Messages retrieved successfully", msgs)
}

// SendMessage handles POST /messages
// @Summary Send a text or media message
// @Tags chat
// @Accept multipart/form-data
// @Produce json
// @Param receiverId formData string true "receiver id"
// @Param content formData string false "text or caption"
// @Param media formData file false "image or video"
// @Success 201 {object} common.APIResponse{data=domain.Message}
// @Router /messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	ginutil.LimitBody(c, h.maxUploadBytes)
	if err := ginutil.ParseMultipart(c); err != nil {
		mediaError(c, err)
		return
	}

	in := &service.SendMessageInput{
		ReceiverID: c.PostForm("receiverId"),
		Content:    c.PostForm("content"),
	}
	if in.ReceiverID == "" {
		common.ErrorResponse(c, http.StatusBadRequest, "Receiver id is required", nil)
		return
	}

	media, closeMedia, err := readMedia(c, "media")
	if err != nil {
		mediaError(c, err)
		return
	}
	defer closeMedia()
	in.Media = media

	msg, err := h.service.SendMessage(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		common.HandleError(c, err, "Failed to send message")
		return
	}

	common.CreatedResponse(c, "Message sent successfully", msg)
}

// MarkRead handles PUT /messages/read
// @Summary Mark messages addressed to the caller as read
// @Tags chat
// @Accept json
// @Produce json
// @Param request body domain.ReadRequest true "message ids"
// @Success 200 {object} common.APIResponse{data=[]domain.Message}
// @Router /messages/read [put]
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req domain.ReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Message ids are required", err)
		return
	}

	msgs, err := h.service.MarkRead(c.Request.Context(), middleware.GetUserID(c), req.MessageIDs)
	if err != nil {
		common.HandleError(c, err, "Failed to mark messages as read")
		return
	}

	common.SuccessResponse(c, "Messages marked as read", msgs)
}

// DeleteMessage handles DELETE /messages/:messageId
// @Summary Delete one of the caller's messages
// @Tags chat
// @Produce json
// @Param messageId path string true "message id"
// @Success 200 {object} common.APIResponse
// @Router /messages/{messageId} [delete]
func (h *ChatHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := ginutil.Param(c, "messageId")
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "Message id is required", nil)
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), middleware.GetUserID(c), messageID); err != nil {
		common.HandleError(c, err, "Failed to delete message")
		return
	}

	common.SuccessResponse(c, "Message deleted successfully", gin.H{"messageId": messageID})
}

// readMedia opens the optional multipart file under key. The returned closer is always safe to call.
func readMedia(c *gin.Context, key string) (*domain.MediaFile, func(), error) {
	noop := func() {}

	fh, err := ginutil.OptionalFormFile(c, key)
	if err != nil || fh == nil {
		return nil, noop, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, noop, err
	}
	middleware.ObserveUpload(fh.Size)

	return &domain.MediaFile{
		Body:        f,
		Name:        fh.Filename,
		ContentType: ginutil.FileContentType(fh, f),
		Size:        fh.Size,
	}, func() { _ = f.Close() }, nil
}

func mediaError(c *gin.Context, err error) {
	if errors.Is(err, ginutil.ErrFileTooLarge) {
		common.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Media file is too large", err)
		return
	}
	common.ErrorResponse(c, http.StatusBadRequest, "Invalid multipart form", err)
}
