// Package httpapi exposes the dispatcher over JSON/HTTP next to the binary
// TCP protocol.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuannm99/novaquery/internal/dispatch"
	"github.com/tuannm99/novaquery/internal/logger"
	"github.com/tuannm99/novaquery/server/novasqlwire"
	"github.com/tuannm99/novaquery/sqlrequest"
)

type Service interface {
	Handle(ctx context.Context, req *sqlrequest.Request) (*dispatch.Page, error)
	CloseCursor(ctx context.Context, id string) error
}

type QueryRequest struct {
	Query    string `json:"query"`
	TimeZone string `json:"time_zone"`
	Cursor   string `json:"cursor"`
}

type QueryResponse struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	Cursor  string     `json:"cursor,omitempty"`
}

type CloseRequest struct {
	Cursor string `json:"cursor" binding:"required"`
}

type ErrorResponse struct {
	Error     string   `json:"error"`
	ErrorCode string   `json:"error_code"`
	Failures  []string `json:"failures,omitempty"`
}

type Handler struct {
	Service Service
	Logger  logger.Logger
}

func NewHandler(svc Service, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Handler{Service: svc, Logger: log}
}

// NewRouter builds a gin engine with the SQL, health and metrics routes.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	h.RegisterRoutes(router)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	sql := router.Group("/_sql")
	{
		sql.POST("", h.Query)
		sql.POST("/close", h.Close)
	}
}

// Query builds an envelope from the JSON body. An empty time_zone means
// UTC; a non-empty cursor makes it a continuation.
func (h *Handler) Query(c *gin.Context) {
	var body QueryRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, &sqlrequest.DecodeError{Field: "body", Err: err})
		return
	}

	tz := sqlrequest.DefaultTimeZone
	if body.TimeZone != "" {
		loc, err := sqlrequest.ParseTimeZone(body.TimeZone)
		if err != nil {
			h.HandleError(c, &sqlrequest.DecodeError{Field: "time_zone", Err: err})
			return
		}
		tz = loc
	}

	req := sqlrequest.New(body.Query, tz, nil)
	if body.Cursor != "" {
		req.SetSessionID(body.Cursor)
	}

	page, err := h.Service.Handle(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, QueryResponse{
		Columns: page.Columns,
		Rows:    page.Rows,
		Cursor:  page.Cursor,
	})
}

func (h *Handler) Close(c *gin.Context) {
	var body CloseRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.HandleError(c, &sqlrequest.DecodeError{Field: "body", Err: err})
		return
	}
	if err := h.Service.CloseCursor(c.Request.Context(), body.Cursor); err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"succeeded": true})
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	info := novasqlwire.ErrorInfoFrom(err)
	status := statusFor(info.Code)

	if status >= http.StatusInternalServerError {
		h.Logger.Errorw("request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.Logger.Debugw("request rejected", "error", err, "path", c.Request.URL.Path)
	}

	c.JSON(status, ErrorResponse{
		Error:     info.Message,
		ErrorCode: info.Code,
		Failures:  info.Failures,
	})
}

func statusFor(code string) int {
	switch code {
	case novasqlwire.CodeValidation, novasqlwire.CodeDecode:
		return http.StatusBadRequest
	case novasqlwire.CodeCursorNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
