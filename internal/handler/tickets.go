package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/moiseenkov/cinema/internal/model"
	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

// ticketView adds the derived paid flag and, after a pay request, the token
// the confirmation will record as the receipt.
type ticketView struct {
	model.Ticket
	Paid         bool   `json:"paid"`
	PaymentToken string `json:"payment_token,omitempty"`
}

func viewTicket(t model.Ticket) ticketView {
	return ticketView{Ticket: t, Paid: t.Paid()}
}

// TicketHandler serves /tickets/ and /tickets/:id/pay/. Every route requires
// an authenticated caller; the services scope what that caller can see.
type TicketHandler struct {
	Tickets  *service.TicketService
	Payments *service.PaymentService
	PageSize int
}

func NewTicketHandler(tickets *service.TicketService, payments *service.PaymentService, pageSize int) *TicketHandler {
	return &TicketHandler{Tickets: tickets, Payments: payments, PageSize: pageSize}
}

// List handles GET /tickets/?showing=&row_number=&seat_number=&created_at=&holder=.
// The holder filter is ignored for non-admins.
func (h *TicketHandler) List(c echo.Context) error {
	q := filtersOf(c)
	f := repository.TicketFilter{
		ShowingID:  q.uintParam("showing"),
		RowNumber:  q.intParam("row_number"),
		SeatNumber: q.intParam("seat_number"),
		CreatedAt:  q.timeParam("created_at"),
		HolderID:   q.uintParam("holder"),
	}
	if err := q.err(); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	p := principal(c)
	return listPage(c, h.PageSize, func(pg repository.Page) ([]ticketView, int, error) {
		f.Page = pg
		tickets, total, err := h.Tickets.List(ctx, p, f)
		if err != nil {
			return nil, 0, err
		}
		views := make([]ticketView, 0, len(tickets))
		for _, t := range tickets {
			views = append(views, viewTicket(t))
		}
		return views, total, nil
	})
}

func (h *TicketHandler) Get(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tickets.Get(ctx, principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewTicket(*t))
}

// Create books a seat. created_at and receipt in the body are ignored.
func (h *TicketHandler) Create(c echo.Context) error {
	var patch service.TicketPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tickets.Book(ctx, principal(c), patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, viewTicket(*t))
}

func (h *TicketHandler) Update(c echo.Context) error        { return h.update(c, false) }
func (h *TicketHandler) PartialUpdate(c echo.Context) error { return h.update(c, true) }

// update answers 200 with the stored ticket even when it is paid and the
// change was discarded.
func (h *TicketHandler) update(c echo.Context, partial bool) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	var patch service.TicketPatch
	if err := bindBody(c, &patch); err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, err := h.Tickets.Update(ctx, principal(c), id, patch, partial)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, viewTicket(*t))
}

func (h *TicketHandler) Delete(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := h.Tickets.Delete(ctx, principal(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Pay handles PUT and PATCH /tickets/:id/pay/. It returns as soon as the
// confirmation job is queued; the ticket in the response is still unpaid.
func (h *TicketHandler) Pay(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return notFound(c)
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	t, token, err := h.Payments.Pay(ctx, principal(c), id)
	if err != nil {
		return respondError(c, err)
	}
	v := viewTicket(*t)
	v.PaymentToken = token
	return c.JSON(http.StatusOK, v)
}
