package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"marketplace-svc/auth"
	"marketplace-svc/idgen"
	"marketplace-svc/middleware"
	"marketplace-svc/models"
	"marketplace-svc/store"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
)

type AuthHandler struct {
	users  store.UserStore
	issuer *auth.Issuer
	ids    *idgen.Generator
	logger *zap.Logger
}

func NewAuthHandler(users store.UserStore, issuer *auth.Issuer, ids *idgen.Generator, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, issuer: issuer, ids: ids, logger: logger}
}

func (h *AuthHandler) Signup(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	user := &models.User{
		ID:           h.ids.Next(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Phone:        req.Phone,
		Address:      req.Address,
		City:         req.City,
		Country:      req.Country,
		Website:      req.Website,
		Bio:          req.Bio,
		UserType:     req.UserType,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered", "code": "conflict"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	token, err := h.issuer.Issue(user.ID, string(user.UserType), user.Email)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("User registered",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("user_id", user.ID),
		zap.String("user_type", string(user.UserType)),
	)
	c.JSON(http.StatusCreated, models.AuthResponse{
		Message: "User registered successfully",
		User:    *user,
		Token:   token,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.users.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "unauthorized"})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials", "code": "unauthorized"})
		return
	}

	token, err := h.issuer.Issue(user.ID, string(user.UserType), user.Email)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("User logged in",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("user_id", user.ID),
	)
	c.JSON(http.StatusOK, models.AuthResponse{
		Message: "Login successful",
		User:    *user,
		Token:   token,
	})
}

func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := callerID(c)
	if !ok {
		return
	}

	req, ok := bindProfileUpdate(c)
	if !ok {
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	apply := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	apply(&user.FirstName, req.FirstName)
	apply(&user.LastName, req.LastName)
	apply(&user.Phone, req.Phone)
	apply(&user.Address, req.Address)
	apply(&user.City, req.City)
	apply(&user.Country, req.Country)
	apply(&user.Website, req.Website)
	apply(&user.Bio, req.Bio)

	if err := h.users.UpdateUser(ctx, user); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Profile updated",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("user_id", user.ID),
	)
	c.JSON(http.StatusOK, user)
}

// bindProfileUpdate decodes an UpdateProfileRequest, rejecting any key that
// is not an editable profile field (email, password, user type, ...).
func bindProfileUpdate(c *gin.Context) (models.UpdateProfileRequest, bool) {
	var req models.UpdateProfileRequest
	raw, err := c.GetRawData()
	if err != nil {
		respondBadRequest(c, err)
		return req, false
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid updates", "code": "invalid_request"})
			return req, false
		}
		respondBadRequest(c, err)
		return req, false
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		respondBadRequest(c, err)
		return req, false
	}
	return req, true
}

func (h *AuthHandler) DeleteProfile(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := callerID(c)
	if !ok {
		return
	}

	if err := h.users.DeleteUser(ctx, userID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Account deleted",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("user_id", userID),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Account deleted successfully"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect", "code": "unauthorized"})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := h.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.Info("Password changed",
		zap.String("trace_id", middleware.GetTraceID(ctx)),
		zap.Int64("user_id", userID),
	)
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

// GetUserByEmail is the public profile lookup behind GET /api/user?email=.
func (h *AuthHandler) GetUserByEmail(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email is required", "code": "invalid_request"})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found", "code": "not_found"})
			return
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// callerID reads the authenticated user id set by middleware.JWTAuth. It
// writes the 401 itself when the claims are unusable.
func callerID(c *gin.Context) (int64, bool) {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required", "code": "unauthorized"})
		return 0, false
	}
	id, err := claims.UserID()
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "unauthorized"})
		return 0, false
	}
	return id, true
}
