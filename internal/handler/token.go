package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/service"
)

// AuthHandler exchanges credentials for bearer tokens.
type AuthHandler struct {
	Users *service.UserService
}

func NewAuthHandler(users *service.UserService) *AuthHandler {
	return &AuthHandler{Users: users}
}

type loginReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	Refresh string `json:"refresh" validate:"required"`
}

// Token handles POST /token/ and returns {access, refresh}.
func (h *AuthHandler) Token(c echo.Context) error {
	var req loginReq
	if err := bindBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	pair, err := h.Users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh handles POST /token/refresh/ and returns a new access token. The
// refresh token stays valid until it expires or is revoked.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := bindBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	access, err := h.Users.Refresh(ctx, req.Refresh)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"access": access})
}
