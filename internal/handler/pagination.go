package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/moiseenkov/cinema/internal/repository"
	"github.com/moiseenkov/cinema/internal/service"
)

const maxPageSize = 100

var errInvalidPage = &echo.HTTPError{Code: http.StatusNotFound, Message: "Invalid page."}

type pageRequest struct {
	number int
	size   int
}

func (p pageRequest) window() repository.Page {
	return repository.Page{Limit: p.size, Offset: (p.number - 1) * p.size}
}

// parsePage reads ?page and ?page_size. A bad page number is a 404, a bad
// page size falls back to the default.
func parsePage(c echo.Context, defaultSize int) (pageRequest, error) {
	p := pageRequest{number: 1, size: defaultSize}
	if raw := c.QueryParam("page"); raw != "" && raw != "last" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, errInvalidPage
		}
		p.number = n
	}
	if raw := c.QueryParam("page_size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			p.size = n
		}
	}
	if p.size > maxPageSize {
		p.size = maxPageSize
	}
	if p.size < 1 {
		p.size = 1
	}
	return p, nil
}

type pageLinks struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

type listResponse[T any] struct {
	Links      pageLinks `json:"links"`
	Count      int       `json:"count"`
	TotalPages int       `json:"total_pages"`
	PageSize   int       `json:"page_size"`
	Results    []T       `json:"results"`
}

// listPage runs fetch for the requested window and writes the envelope.
// ?page=last resolves to the final page after counting.
func listPage[T any](c echo.Context, defaultSize int, fetch func(repository.Page) ([]T, int, error)) error {
	pg, err := parsePage(c, defaultSize)
	if err != nil {
		return detail(c, http.StatusNotFound, "Invalid page.")
	}
	last := c.QueryParam("page") == "last"

	items, total, err := fetch(pg.window())
	if err != nil {
		return respondError(c, err)
	}
	pages := (total + pg.size - 1) / pg.size
	if pages == 0 {
		pages = 1
	}
	if last && pg.number != pages {
		pg.number = pages
		if items, _, err = fetch(pg.window()); err != nil {
			return respondError(c, err)
		}
	}
	if pg.number > pages {
		return detail(c, http.StatusNotFound, "Invalid page.")
	}
	if items == nil {
		items = []T{}
	}

	resp := listResponse[T]{
		Count:      total,
		TotalPages: pages,
		PageSize:   pg.size,
		Results:    items,
	}
	if pg.number < pages {
		resp.Links.Next = pageURL(c, pg.number+1)
	}
	if pg.number > 1 {
		resp.Links.Previous = pageURL(c, pg.number-1)
	}
	return c.JSON(http.StatusOK, resp)
}

func pageURL(c echo.Context, n int) *string {
	r := c.Request()
	u := url.URL{Scheme: c.Scheme(), Host: r.Host, Path: r.URL.Path}
	q := r.URL.Query()
	if n == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(n))
	}
	u.RawQuery = q.Encode()
	s := u.String()
	return &s
}

// Query filters. A value that does not parse is a validation error on that
// parameter.

type queryFilters struct {
	c    echo.Context
	errs service.ValidationError
}

func filtersOf(c echo.Context) *queryFilters { return &queryFilters{c: c} }

func (q *queryFilters) uintParam(name string) *uint64 {
	raw := q.c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		q.errs.Add(name, "Enter a whole number.")
		return nil
	}
	return &v
}

func (q *queryFilters) intParam(name string) *int {
	raw := q.c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		q.errs.Add(name, "Enter a whole number.")
		return nil
	}
	return &v
}

func (q *queryFilters) boolParam(name string) *bool {
	raw := q.c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		q.errs.Add(name, "Enter a valid boolean.")
		return nil
	}
	return &v
}

func (q *queryFilters) decimalParam(name string) *decimal.Decimal {
	raw := q.c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		q.errs.Add(name, "Enter a number.")
		return nil
	}
	return &v
}

// timeParam accepts RFC 3339 timestamps.
func (q *queryFilters) timeParam(name string) *time.Time {
	raw := q.c.QueryParam(name)
	if raw == "" {
		return nil
	}
	v, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		q.errs.Add(name, "Enter a valid date/time.")
		return nil
	}
	return &v
}

func (q *queryFilters) str(name string) string { return q.c.QueryParam(name) }

func (q *queryFilters) err() error { return q.errs.Err() }
