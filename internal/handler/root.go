package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

var collections = []string{"users", "halls", "movies", "showings", "tickets"}

// Root lists the collection URLs.
func Root(c echo.Context) error {
	base := c.Scheme() + "://" + c.Request().Host + "/"
	links := make(map[string]string, len(collections))
	for _, name := range collections {
		links[name] = base + name + "/"
	}
	return c.JSON(http.StatusOK, links)
}
