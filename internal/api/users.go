// users.go implements account registration and the current-user endpoint.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/apierrors"
	"github.com/hookrelay/hookrelay/internal/auth"
	"github.com/hookrelay/hookrelay/internal/db/models"
	"github.com/hookrelay/hookrelay/internal/db/repositories"
	"github.com/hookrelay/hookrelay/internal/middleware"
)

const (
	msgInvalidRequest = "Invalid request."
	msgUsernameTaken  = "Username already taken."
)

// UserHandlers handles account endpoints
type UserHandlers struct {
	users      UserStore
	bcryptCost int
}

// NewUserHandlers creates a new UserHandlers instance. A bcryptCost of zero selects
// auth.BcryptCost.
func NewUserHandlers(users UserStore, bcryptCost int) *UserHandlers {
	return &UserHandlers{users: users, bcryptCost: bcryptCost}
}

type registerRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// RegisterHandler creates an account
// POST /auth/register
func (h *UserHandlers) RegisterHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBind(&req); err != nil || req.Username == "" || req.Password == "" {
			respondError(c, apierrors.BadRequest(msgInvalidRequest))
			return
		}

		existing, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
		if err != nil {
			respondError(c, apierrors.Internal("Failed to register user.", err))
			return
		}
		if existing != nil {
			respondError(c, apierrors.BadRequest(msgUsernameTaken))
			return
		}

		hash, err := auth.HashPassword(req.Password, h.bcryptCost)
		if err != nil {
			respondError(c, apierrors.Internal("Failed to register user.", err))
			return
		}

		user := &models.User{Username: req.Username, PasswordHash: hash}
		if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
			// Lost a race with a concurrent registration of the same name
			if errors.Is(err, repositories.ErrUsernameTaken) {
				respondError(c, apierrors.BadRequest(msgUsernameTaken))
				return
			}
			respondError(c, apierrors.Internal("Failed to register user.", err))
			return
		}

		slog.Info("user registered", "user_id", user.ID)
		c.JSON(http.StatusCreated, user.Profile())
	}
}

// CurrentUserHandler returns the authenticated user's profile
// GET /auth/user
func (h *UserHandlers) CurrentUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.users.GetUserByID(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, apierrors.Internal("Failed to load user.", err))
			return
		}
		if user == nil {
			respondError(c, apierrors.NotFound("User not found."))
			return
		}

		c.JSON(http.StatusOK, user.Profile())
	}
}
