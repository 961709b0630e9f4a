package handler

import (
	"net/http"

	"github.com/damoang/angple-chat/internal/common"
	"github.com/damoang/angple-chat/internal/domain"
	"github.com/damoang/angple-chat/internal/middleware"
	"github.com/damoang/angple-chat/internal/service"
	"github.com/damoang/angple-chat/pkg/ginutil"
	"github.com/gin-gonic/gin"
)

// UserHandler handles profile and presence HTTP requests
type UserHandler struct {
	service service.UserService
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// GetStatus handles GET /users/:userId/status
// @Summary Online flag and last-seen time of a user
// @Tags users
// @Produce json
// @Param userId path string true "user id"
// @Success 200 {object} common.APIResponse{data=domain.PresenceStatus}
// @Router /users/{userId}/status [get]
func (h *UserHandler) GetStatus(c *gin.Context) {
	userID, ok := ginutil.Param(c, "userId")
	if !ok {
		common.ErrorResponse(c, http.StatusBadRequest, "User id is required", nil)
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), userID)
	if err != nil {
		common.HandleError(c, err, "Failed to load user status")
		return
	}

	common.SuccessResponse(c, "User status retrieved successfully", status)
}

// UpdateProfile handles PUT /users/me
// @Summary Create or update the caller's profile
// @Tags users
// @Accept json
// @Produce json
// @Param request body domain.UpdateProfileRequest true "profile"
// @Success 200 {object} common.APIResponse{data=domain.User}
// @Router /users/me [put]
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req domain.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ErrorResponse(c, http.StatusBadRequest, "Invalid profile", err)
		return
	}

	user, err := h.service.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		common.HandleError(c, err, "Failed to update profile")
		return
	}

	common.SuccessResponse(c, "Profile updated successfully", user)
}
