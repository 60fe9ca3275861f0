package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// eventStats количество событий по зонам и типам за окно (?window=30m, по умолчанию StatsWindow).
func (h *Handler) eventStats(c *gin.Context) {
	window := h.StatsWindow
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(c, http.StatusBadRequest, codeInvalidParameter, "invalid window")
			return
		}
		window = d
	}

	counts, err := h.Stats.EventCounts(c.Request.Context(), window)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"window": window.String(), "counts": counts})
}

func (h *Handler) companyStats(c *gin.Context) {
	stats, err := h.Stats.Company(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// zoneRules правила зоны в порядке применения.
func (h *Handler) zoneRules(c *gin.Context) {
	rules, err := h.Rules.ApplicableRules(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// invalidateZones сбрасывает кеш зон компании после изменения зон во внешней системе.
func (h *Handler) invalidateZones(c *gin.Context) {
	companyID := c.Param("id")
	if err := h.Zones.Invalidate(c.Request.Context(), companyID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "invalidated", "company_id": companyID})
}
