package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/queue-token-service/internal/config"
	"github.com/iliyamo/queue-token-service/internal/model"
	"github.com/iliyamo/queue-token-service/internal/repository"
	"github.com/iliyamo/queue-token-service/internal/utils"
)

// UserStore is the subset of the user repository the auth endpoints need.
type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// RefreshStore persists hashed refresh tokens.
type RefreshStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string) (uint64, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg           config.Config
	Users         UserStore
	RefreshTokens RefreshStore
}

func NewAuthHandler(cfg config.Config, u UserStore, r RefreshStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, RefreshTokens: r}
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func (r *credentialsReq) normalize() bool {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	return r.Email != "" && r.Password != ""
}

// roleFor picks the role a new account gets.  Self-registration never
// grants elevated roles unless the address is configured for one.
func (h *AuthHandler) roleFor(email string) string {
	switch {
	case h.Cfg.AdminEmails[email]:
		return model.RoleAdmin
	case h.Cfg.StaffEmails[email]:
		return model.RoleStaff
	}
	return model.RoleUser
}

// Register creates a user and returns a token pair immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if !req.normalize() {
		return badRequest(c, "email/password required")
	}
	if len(req.Password) < 8 {
		return badRequest(c, "password must be at least 8 characters")
	}
	if len(req.Password) > 72 {
		return badRequest(c, "password must be at most 72 bytes")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	role := h.roleFor(req.Email)
	uid, err := h.Users.Create(ctx, req.Email, req.Password, role, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email_exists", "message": "email already exists"})
		}
		return writeError(c, err)
	}
	resp, err := h.issue(ctx, userPart{ID: uid, Email: req.Email, Role: role})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if !req.normalize() {
		return badRequest(c, "email/password required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invalidCredentials(c)
		}
		return writeError(c, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return invalidCredentials(c)
	}
	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	uid, err := h.RefreshTokens.Validate(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid refresh token"})
		}
		return writeError(c, err)
	}
	if err := h.RefreshTokens.Revoke(ctx, hash); err != nil {
		return writeError(c, err)
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid refresh token"})
		}
		return writeError(c, err)
	}
	if !u.IsActive {
		return invalidCredentials(c)
	}
	resp, err := h.issue(ctx, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes every refresh token of the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.RefreshTokens.RevokeAllForUser(ctx, uid); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return unauthorized(c)
		}
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, userPart{ID: u.ID, Email: u.Email, Role: u.Role})
}

func (h *AuthHandler) issue(ctx context.Context, u userPart) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, time.Duration(h.Cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour)
	if err != nil {
		return authResp{}, err
	}
	if err := h.RefreshTokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func invalidCredentials(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid credentials"})
}
