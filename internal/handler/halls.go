package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

// hallView adds the derived seat_count to the stored hall.
type hallView struct {
	model.Hall
	SeatCount int `json:"seat_count"`
}

func viewHall(h model.Hall) hallView {
	return hallView{Hall: h, SeatCount: h.SeatCount()}
}

// HallHandler serves /halls/.
type HallHandler struct {
	Inventory *service.InventoryService
	PageSize  int
}

func NewHallHandler(inv *service.InventoryService, pageSize int) *HallHandler {
	return &HallHandler{Inventory: inv, PageSize: pageSize}
}

// List handles GET /halls/?name=.
func (h *HallHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	name := c.QueryParam("name")
	return listPage(c, h.PageSize, func(pg repository.Page) ([]hallView, int, error) {
		halls, total, err := h.Inventory.ListHalls(ctx, repository.HallFilter{Name: name, Page: pg})
		if err != nil {
			return nil, 0, err
		}
		views := make([]hallView, 0, len(halls))
		for _, hall := range halls {
			views = append(views, viewHall(hall))
		}
		return views, total, nil
	})
}

func (h *HallHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	hall, err := h.Inventory.GetHall(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewHall(*hall))
}

func (h *HallHandler) Create(c echo.Context) error {
	var patch service.HallPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	hall, err := h.Inventory.CreateHall(ctx, principal(c), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, viewHall(*hall))
}

// Update handles PUT; PartialUpdate handles PATCH.
func (h *HallHandler) Update(c echo.Context) error        { return h.update(c, false) }
func (h *HallHandler) PartialUpdate(c echo.Context) error { return h.update(c, true) }

func (h *HallHandler) update(c echo.Context, partial bool) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	var patch service.HallPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	hall, err := h.Inventory.UpdateHall(ctx, principal(c), id, patch, partial)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewHall(*hall))
}

func (h *HallHandler) Delete(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Inventory.DeleteHall(ctx, principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
