package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

// MovieHandler serves /movies/. It shares the inventory service with halls.
type MovieHandler struct {
	Inventory *service.InventoryService
	PageSize  int
}

func NewMovieHandler(inv *service.InventoryService, pageSize int) *MovieHandler {
	return &MovieHandler{Inventory: inv, PageSize: pageSize}
}

// List handles GET /movies/?title=&premiere_year=&duration_minutes=.
func (h *MovieHandler) List(c echo.Context) error {
	q := filtersOf(c)
	f := repository.MovieFilter{
		Title:           q.str("title"),
		PremiereYear:    q.intParam("premiere_year"),
		DurationMinutes: q.intParam("duration_minutes"),
	}
	if err := q.err(); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	return listPage(c, h.PageSize, func(pg repository.Page) ([]model.Movie, int, error) {
		f.Page = pg
		return h.Inventory.ListMovies(ctx, f)
	})
}

func (h *MovieHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	movie, err := h.Inventory.GetMovie(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, movie)
}

func (h *MovieHandler) Create(c echo.Context) error {
	var patch service.MoviePatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	movie, err := h.Inventory.CreateMovie(ctx, principal(c), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, movie)
}

// Update handles PUT; PartialUpdate handles PATCH.
func (h *MovieHandler) Update(c echo.Context) error        { return h.update(c, false) }
func (h *MovieHandler) PartialUpdate(c echo.Context) error { return h.update(c, true) }

func (h *MovieHandler) update(c echo.Context, partial bool) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	var patch service.MoviePatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	movie, err := h.Inventory.UpdateMovie(ctx, principal(c), id, patch, partial)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, movie)
}

func (h *MovieHandler) Delete(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Inventory.DeleteMovie(ctx, principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
