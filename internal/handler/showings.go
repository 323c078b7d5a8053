package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

// ShowingHandler serves /showings/. Writes go through the scheduler, which
// rejects overlapping placements.
type ShowingHandler struct {
	Showings *service.ShowingService
	PageSize int
}

func NewShowingHandler(showings *service.ShowingService, pageSize int) *ShowingHandler {
	return &ShowingHandler{Showings: showings, PageSize: pageSize}
}

// List handles GET /showings/?hall=&movie=&start_time=&price=.
func (h *ShowingHandler) List(c echo.Context) error {
	q := filtersOf(c)
	f := repository.ShowingFilter{
		HallID:    q.uintParam("hall"),
		MovieID:   q.uintParam("movie"),
		StartTime: q.timeParam("start_time"),
		Price:     q.decimalParam("price"),
	}
	if err := q.err(); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	return listPage(c, h.PageSize, func(pg repository.Page) ([]model.Showing, int, error) {
		f.Page = pg
		return h.Showings.List(ctx, f)
	})
}

func (h *ShowingHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	showing, err := h.Showings.Get(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, showing)
}

func (h *ShowingHandler) Create(c echo.Context) error {
	var patch service.ShowingPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	showing, err := h.Showings.Create(ctx, principal(c), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, showing)
}

func (h *ShowingHandler) Update(c echo.Context) error        { return h.update(c, false) }
func (h *ShowingHandler) PartialUpdate(c echo.Context) error { return h.update(c, true) }

func (h *ShowingHandler) update(c echo.Context, partial bool) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	var patch service.ShowingPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	showing, err := h.Showings.Update(ctx, principal(c), id, patch, partial)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, showing)
}

func (h *ShowingHandler) Delete(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Showings.Delete(ctx, principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
