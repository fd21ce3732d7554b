package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chat-hub/internal/auth"
	"chat-hub/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" binding:"required,min=2,max=50"`
	Password string `json:"password" binding:"required,min=6,max=72"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// AuthHandler issues tokens for the WebSocket and REST surfaces.
type AuthHandler struct {
	db     *gorm.DB
	tokens *auth.Tokens
	log    *slog.Logger
}

func NewAuthHandler(db *gorm.DB, tokens *auth.Tokens, log *slog.Logger) *AuthHandler {
	return &AuthHandler{db: db, tokens: tokens, log: log}
}

// Login verifies the password of an existing user, or registers the username
// on first use.
// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Username and password are required.",
		})
		return
	}
	req.Username = strings.TrimSpace(req.Username)

	var user models.User
	err := h.db.WithContext(c.Request.Context()).Where("username = ?", req.Username).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		user = models.User{
			ID:       uuid.NewString(),
			Username: req.Username,
			Password: string(hash),
			Status:   models.StatusOffline,
		}
		if err := h.db.WithContext(c.Request.Context()).Create(&user).Error; err != nil {
			h.log.Error("create user", "username", req.Username, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		h.log.Info("user registered", "user_id", user.ID, "username", user.Username)

	case err != nil:
		h.log.Error("lookup user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return

	default:
		if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
			return
		}
	}

	token, err := h.tokens.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate token",
		})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		Message:  "Login successful",
	})
}
