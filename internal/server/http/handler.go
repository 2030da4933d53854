package http

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"nameday/internal/logging"
	"nameday/internal/nameday"
)

const (
	apiName        = "Swedish Nameday API"
	apiVersion     = "1.0.0"
	apiDescription = "API for Swedish namedays (namnsdagar)"

	apiKeyHeader = "X-API-Key"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type dateResponse struct {
	Date  string   `json:"date"`
	Names []string `json:"names"`
	Count int      `json:"count"`
}

type nameResponse struct {
	Name  string              `json:"name"`
	Dates []nameday.NameMatch `json:"dates"`
	Count int                 `json:"count"`
}

type monthResponse struct {
	Month    int              `json:"month"`
	Namedays nameday.Calendar `json:"namedays"`
	Count    int              `json:"count"`
}

type allResponse struct {
	Namedays   nameday.Calendar `json:"namedays"`
	TotalDates int              `json:"total_dates"`
	TotalNames int              `json:"total_names"`
}

type refreshResponse struct {
	Status     string `json:"status"`
	TotalDates int    `json:"total_dates"`
	TotalNames int    `json:"total_names"`
}

// Handler serves the calendar endpoints.
type Handler struct {
	service CalendarService
	apiKey  string
	metrics *Metrics
	logger  logging.Logger
}

// NewHandler creates the endpoint handlers.
func NewHandler(service CalendarService, apiKey string, metrics *Metrics, logger logging.Logger) *Handler {
	return &Handler{
		service: service,
		apiKey:  apiKey,
		metrics: metrics,
		logger:  logging.OrNop(logger),
	}
}

// HandleRoot describes the API.
func (h *Handler) HandleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        apiName,
		"version":     apiVersion,
		"description": apiDescription,
		"endpoints": gin.H{
			"today": "/api/today",
			"date":  "/api/date/{month}/{day}",
			"name":  "/api/name/{name}",
			"month": "/api/month/{month}",
			"all":   "/api/all",
		},
	})
}

// HandleHealth reports readiness; it answers as soon as the server accepts
// requests, even with an empty calendar.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"dates":  h.service.Calendar().TotalDates(),
	})
}

func (h *Handler) HandleToday(c *gin.Context) {
	key, names := h.service.Today()
	c.JSON(http.StatusOK, dateResponse{Date: key, Names: names, Count: len(names)})
}

func (h *Handler) HandleDate(c *gin.Context) {
	month, ok := intParam(c, "month")
	if !ok {
		return
	}
	day, ok := intParam(c, "day")
	if !ok {
		return
	}
	key, names, err := h.service.Date(month, day)
	if err != nil {
		respondValidation(c, err)
		return
	}
	c.JSON(http.StatusOK, dateResponse{Date: key, Names: names, Count: len(names)})
}

func (h *Handler) HandleName(c *gin.Context) {
	name := c.Param("name")
	matches := h.service.Name(name)
	if len(matches) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{
			Detail: fmt.Sprintf("Name '%s' not found in nameday calendar", name),
		})
		return
	}
	c.JSON(http.StatusOK, nameResponse{Name: name, Dates: matches, Count: len(matches)})
}

func (h *Handler) HandleMonth(c *gin.Context) {
	month, ok := intParam(c, "month")
	if !ok {
		return
	}
	entries, err := h.service.Month(month)
	if err != nil {
		respondValidation(c, err)
		return
	}
	c.JSON(http.StatusOK, monthResponse{Month: month, Namedays: entries, Count: len(entries)})
}

func (h *Handler) HandleAll(c *gin.Context) {
	cal := h.service.Calendar()
	c.JSON(http.StatusOK, allResponse{
		Namedays:   cal,
		TotalDates: cal.TotalDates(),
		TotalNames: cal.TotalNames(),
	})
}

// HandleRefresh refetches the calendar from Wikipedia. It requires the
// configured API key in the X-API-Key header.
func (h *Handler) HandleRefresh(c *gin.Context) {
	if h.apiKey == "" {
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "API key not configured on server"})
		return
	}
	given := c.GetHeader(apiKeyHeader)
	if subtle.ConstantTimeCompare([]byte(given), []byte(h.apiKey)) != 1 {
		c.JSON(http.StatusUnauthorized, errorResponse{Detail: "Invalid API key"})
		return
	}

	log := logging.FromContext(c.Request.Context(), h.logger)
	cal, err := h.service.Refresh(c.Request.Context())
	if err != nil {
		h.metrics.RecordRefresh("failure")
		log.Error("Refresh failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Detail: "Failed to fetch data from Wikipedia"})
		return
	}
	h.metrics.RecordRefresh("success")
	c.JSON(http.StatusOK, refreshResponse{
		Status:     "success",
		TotalDates: cal.TotalDates(),
		TotalNames: cal.TotalNames(),
	})
}

// intParam parses a path parameter. Non-integers are rejected with 422, as
// a type mismatch rather than an out-of-range value.
func intParam(c *gin.Context, name string) (int, bool) {
	value, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{
			Detail: fmt.Sprintf("%s must be an integer", name),
		})
		return 0, false
	}
	return value, true
}

func respondValidation(c *gin.Context, err error) {
	detail := "Invalid date"
	switch {
	case errors.Is(err, nameday.ErrInvalidMonth):
		detail = "Month must be between 1 and 12"
	case errors.Is(err, nameday.ErrInvalidDay):
		detail = "Day must be between 1 and 31"
	}
	c.JSON(http.StatusBadRequest, errorResponse{Detail: detail})
}
