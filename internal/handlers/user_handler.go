package handlers

import (
	"net/http"

	"chat-hub/internal/models"
	"chat-hub/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

type UserResponse struct {
	ID       string            `json:"id"`
	Username string            `json:"username"`
	Avatar   string            `json:"avatar"`
	Status   models.UserStatus `json:"status"`
	Online   bool              `json:"online"`
}

// UserHandler serves user listings annotated with live presence.
type UserHandler struct {
	db       *gorm.DB
	presence *realtime.Presence
}

func NewUserHandler(db *gorm.DB, presence *realtime.Presence) *UserHandler {
	return &UserHandler{db: db, presence: presence}
}

// GetAllUsers returns all users (protected)
// GET /api/users
func (h *UserHandler) GetAllUsers(c *gin.Context) {
	var users []models.User
	if err := h.db.WithContext(c.Request.Context()).Order("username").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	// Map to safe response payload
	resp := lo.Map(users, func(u models.User, _ int) UserResponse {
		return UserResponse{
			ID:       u.ID,
			Username: u.Username,
			Avatar:   u.Avatar,
			Status:   u.Status,
			Online:   h.presence.IsOnline(u.ID),
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"users": resp,
		"count": len(resp),
	})
}

// GetOnlineUsers returns the ids of every user with a live connection.
// GET /api/users/online
func (h *UserHandler) GetOnlineUsers(c *gin.Context) {
	online := h.presence.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"users": online,
		"count": len(online),
	})
}
