package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/paincake00/geopromo/internal/entity"
)

// queryLimit разбирает ?limit=; 0 означает значение по умолчанию.
func queryLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(c, http.StatusBadRequest, codeInvalidParameter, "invalid limit")
		return 0, false
	}
	return limit, true
}

func (h *Handler) zoneEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events, err := h.Events.ByZone(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

func (h *Handler) deviceEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events, err := h.Events.ByDevice(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

func (h *Handler) recentEvents(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}
	events, err := h.Events.Recent(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"window": h.Events.RecentWindow().String(),
		"events": nonNil(events),
	})
}

// zoneEventsWindow: /events/zones/:id/window?kind=ENTER&from=...&to=... (RFC 3339, to не включается).
func (h *Handler) zoneEventsWindow(c *gin.Context) {
	kind := entity.EventKind(c.Query("kind"))
	from, err := parseTime(c, "from")
	if err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidParameter, err.Error())
		return
	}
	to, err := parseTime(c, "to")
	if err != nil {
		writeError(c, http.StatusBadRequest, codeInvalidParameter, err.Error())
		return
	}

	events, err := h.Events.ByZoneKindWindow(c.Request.Context(), c.Param("id"), kind, from, to)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, nonNil(events))
}

func parseTime(c *gin.Context, name string) (time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s", name)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: expected RFC 3339", name)
	}
	return t.UTC(), nil
}

func nonNil(events []entity.Event) []entity.Event {
	if events == nil {
		return []entity.Event{}
	}
	return events
}
