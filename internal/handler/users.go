package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

// UserHandler serves /users/. Sign-up is open; everything else is limited to
// the account itself or an administrator.
type UserHandler struct {
	Users    *service.UserService
	PageSize int
}

func NewUserHandler(users *service.UserService, pageSize int) *UserHandler {
	return &UserHandler{Users: users, PageSize: pageSize}
}

// List handles GET /users/. Anonymous callers get an empty page, users see
// themselves and administrators see everyone.
func (h *UserHandler) List(c echo.Context) error {
	q := filtersOf(c)
	f := repository.UserFilter{
		Email:    q.str("email"),
		IsAdmin:  q.boolParam("is_admin"),
		IsActive: q.boolParam("is_active"),
	}
	if err := q.err(); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p := principal(c)
	return listPage(c, h.PageSize, func(pg repository.Page) ([]model.User, int, error) {
		f.Page = pg
		return h.Users.List(ctx, p, f)
	})
}

func (h *UserHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.Get(ctx, principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Create signs a new user up.
func (h *UserHandler) Create(c echo.Context) error {
	var patch service.UserPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.SignUp(ctx, principal(c), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *UserHandler) Update(c echo.Context) error        { return h.update(c, false) }
func (h *UserHandler) PartialUpdate(c echo.Context) error { return h.update(c, true) }

func (h *UserHandler) update(c echo.Context, partial bool) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	var patch service.UserPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	u, err := h.Users.Update(ctx, principal(c), id, patch, partial)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// Delete deactivates the account; the row is kept.
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Users.Deactivate(ctx, principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
