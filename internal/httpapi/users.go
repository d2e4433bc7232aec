package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ADovhal/TeIpsum-Store-sub001/internal/accounts"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/platform/observability"
	"github.com/ADovhal/TeIpsum-Store-sub001/internal/saga"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeletionCoordinator is the saga surface the user endpoints need.
type DeletionCoordinator interface {
	Lookup(userID string) saga.InfoResult
	RequestInfo(ctx context.Context, userID, email, requestedBy string) (saga.InfoResult, error)
	ConfirmDeletion(ctx context.Context, userID, requestedBy string) (saga.InfoResult, error)
}

// UserHandler serves profiles and the account deletion flow.
type UserHandler struct {
	profiles    accounts.Store
	coordinator DeletionCoordinator
	logger      observability.Logger
}

func NewUserHandler(profiles accounts.Store, coordinator DeletionCoordinator, logger observability.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, coordinator: coordinator, logger: logger}
}

func (h *UserHandler) Register(r gin.IRouter) {
	r.POST("/users", h.CreateUser)
	r.GET("/users/:id", h.GetUser)
	r.GET("/users/:id/deletion-info", h.GetDeletionInfo)
	r.POST("/users/:id/deletion-info", h.RefreshDeletionInfo)
	r.DELETE("/users/:id", h.DeleteUser)
}

type createUserRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Email  string `json:"email" binding:"required,email"`
	Name   string `json:"name"`
}

func (h *UserHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}

	p := accounts.Profile{UserID: req.UserID, Email: req.Email, Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := h.profiles.Create(c.Request.Context(), p); err != nil {
		if errors.Is(err, accounts.ErrExists) {
			errorJSON(c, http.StatusConflict, "user already exists")
			return
		}
		h.logger.Error("❌ Failed to create profile", zap.Error(err), zap.String("user_id", req.UserID))
		errorJSON(c, http.StatusInternalServerError, "failed to create user")
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	p, ok := h.profile(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// GetDeletionInfo answers from the cache only and never waits on another service.
func (h *UserHandler) GetDeletionInfo(c *gin.Context) {
	if _, ok := h.profile(c); !ok {
		return
	}
	c.JSON(http.StatusOK, h.coordinator.Lookup(c.Param("id")))
}

// RefreshDeletionInfo asks the order service again and waits a bounded time for the answer.
func (h *UserHandler) RefreshDeletionInfo(c *gin.Context) {
	p, ok := h.profile(c)
	if !ok {
		return
	}

	res, err := h.coordinator.RequestInfo(c.Request.Context(), p.UserID, p.Email, p.UserID)
	if err != nil {
		h.logger.Warn("Order info request failed", zap.Error(err), zap.String("user_id", p.UserID))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order information unavailable, please retry", "info": res})
		return
	}
	if res.Status == saga.StatusTimedOut {
		c.JSON(http.StatusAccepted, gin.H{"message": "order information not available yet, please retry", "info": res})
		return
	}
	c.JSON(http.StatusOK, res)
}

// DeleteUser starts the deletion once the order summary is known.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	res, err := h.coordinator.ConfirmDeletion(c.Request.Context(), userID, userID)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"message": "deletion started", "info": res})
	case errors.Is(err, saga.ErrUserNotFound):
		errorJSON(c, http.StatusNotFound, "user not found")
	case errors.Is(err, saga.ErrInfoUnknown):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "info": res})
	default:
		h.logger.Error("❌ Failed to start deletion", zap.Error(err), zap.String("user_id", userID))
		errorJSON(c, http.StatusInternalServerError, "failed to delete user, please retry")
	}
}

func (h *UserHandler) profile(c *gin.Context) (accounts.Profile, bool) {
	userID := c.Param("id")
	p, found, err := h.profiles.Get(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("❌ Failed to load profile", zap.Error(err), zap.String("user_id", userID))
		errorJSON(c, http.StatusInternalServerError, "failed to load user")
		return accounts.Profile{}, false
	}
	if !found {
		errorJSON(c, http.StatusNotFound, "user not found")
		return accounts.Profile{}, false
	}
	return p, true
}
