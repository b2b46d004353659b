package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-rfq/internal/middleware"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/service"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/sse"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/viewstate"
	"github.com/gin-gonic/gin"
)

// 权限
const (
	PermRead   = "rfq:read"
	PermWrite  = "rfq:write"
	PermDelete = "rfq:delete"
)

// Handlers RFQ处理器集合
type Handlers struct {
	Quote      *QuoteHandler
	Attachment *AttachmentHandler
	Sample     *SampleHandler
	SSE        *SSEHandler
}

// NewHandlers 创建RFQ处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub, store *viewstate.Store) *Handlers {
	return &Handlers{
		Quote:      NewQuoteHandler(svc.Negotiation),
		Attachment: NewAttachmentHandler(svc.Attachment, svc.Negotiation),
		Sample:     NewSampleHandler(svc.Sample),
		SSE:        NewSSEHandler(hub, store),
	}
}

// RegisterRoutes mounts the RFQ API on an authenticated group.
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	read := middleware.RequirePermission(PermRead)
	write := middleware.RequirePermission(PermWrite)
	del := middleware.RequirePermission(PermDelete)

	quotes := api.Group("/quotes")
	{
		quotes.GET("", read, h.Quote.List)
		quotes.POST("", write, h.Quote.Create)
		quotes.POST("/bulk/:action", write, h.Quote.Bulk)
		quotes.DELETE("/trash", del, h.Quote.EmptyTrash)

		quotes.GET("/:id", read, h.Quote.Get)
		quotes.DELETE("/:id", del, h.Quote.Delete)
		quotes.GET("/:id/history", read, h.Quote.History)
		quotes.GET("/:id/activity", read, h.Quote.Activity)
		quotes.GET("/:id/links", read, h.Quote.Links)
		quotes.GET("/:id/line-items/:itemId/history", read, h.Quote.LineItemHistory)
		quotes.GET("/:id/line-items/:itemId/agreed-price", read, h.Quote.AgreedPrice)

		quotes.POST("/:id/response", write, h.Quote.SubmitResponse)
		quotes.POST("/:id/decline", write, h.Quote.Decline)
		quotes.POST("/:id/trash", write, h.Quote.Trash)
		quotes.POST("/:id/restore", write, h.Quote.Restore)
		quotes.POST("/:id/accept", write, h.Quote.Accept)
		quotes.POST("/:id/hide", write, h.Quote.Hide)
		quotes.POST("/:id/unhide", write, h.Quote.Unhide)
		quotes.POST("/:id/line-items/:itemId/approval", write, h.Quote.ToggleApproval)
		quotes.POST("/:id/messages", write, h.Quote.SendMessage)

		quotes.POST("/:id/attachments", write, h.Attachment.Upload)

		quotes.POST("/:id/sample", write, h.Sample.Request)
		quotes.PUT("/:id/sample/status", write, h.Sample.UpdateStatus)
	}
	api.DELETE("/uploads/:key", write, h.Attachment.Cancel)
	api.GET("/sse/events", read, h.SSE.Stream)
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// respondError maps service errors onto the response envelope.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entity.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, entity.ErrPermissionDenied):
		Forbidden(c, viewstate.Describe(err))
	case errors.Is(err, entity.ErrNotFound):
		NotFound(c, viewstate.Describe(err))
	case errors.Is(err, entity.ErrInvalidTransition), errors.Is(err, entity.ErrHistoryRewrite),
		errors.Is(err, entity.ErrStaleWrite):
		Conflict(c, err.Error())
	case entity.IsCancelled(err):
		// Superseded by a newer request from the same operator.
		Error(c, 49900, "请求已被取代")
	default:
		InternalError(c, viewstate.Describe(err))
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserID)
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func paramInt(c *gin.Context, name string) (int, bool) {
	v, err := strconv.Atoi(c.Param(name))
	if err != nil {
		BadRequest(c, "无效的参数: "+name)
		return 0, false
	}
	return v, true
}
