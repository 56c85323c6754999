package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/krxlab/ipo-advisor/internal/store"
)

// HistoryHandler serves the consultation history CRUD endpoints.
type HistoryHandler struct {
	Store *store.Store
}

// CreateAdviceRequest is the history create body. Messages and docs are
// JSON-encoded strings, mirroring the persisted record shape.
type CreateAdviceRequest struct {
	Topic    string `json:"topic"`
	Messages string `json:"messages"`
	Docs     string `json:"docs,omitempty"`
}

func (h *HistoryHandler) Register(g *echo.Group) {
	g.GET("/history", h.list)
	g.GET("/history/", h.list)
	g.POST("/history", h.create)
	g.POST("/history/", h.create)
	g.GET("/history/:id", h.get)
	g.DELETE("/history/:id", h.delete)
}

func (h *HistoryHandler) list(c echo.Context) error {
	skip, _ := strconv.Atoi(c.QueryParam("skip"))
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	items, err := h.Store.List(c.Request().Context(), skip, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []store.AdviceItem{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *HistoryHandler) create(c echo.Context) error {
	var req CreateAdviceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Topic) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "topic required")
	}
	if strings.TrimSpace(req.Messages) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "messages required")
	}
	item, err := h.Store.Create(c.Request().Context(), req.Topic, req.Messages, req.Docs)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *HistoryHandler) get(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	item, err := h.Store.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "advice item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *HistoryHandler) delete(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.Store.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "advice item not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": id})
}
