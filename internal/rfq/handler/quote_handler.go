package handler

import (
	"context"
	"strings"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/engine"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/repository"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/service"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/syncclient"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type QuoteHandler struct {
	svc *service.NegotiationService
}

func NewQuoteHandler(svc *service.NegotiationService) *QuoteHandler {
	return &QuoteHandler{svc: svc}
}

// List GET /quotes?status=a,b&client_id=&factory_id=&search=&include_hidden=&sort=&desc=
func (h *QuoteHandler) List(c *gin.Context) {
	filter := repository.QuoteFilter{
		ClientID:      c.Query("client_id"),
		FactoryID:     c.Query("factory_id"),
		Search:        c.Query("search"),
		IncludeHidden: c.Query("include_hidden") == "true",
	}
	if s := c.Query("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st := entity.Status(strings.TrimSpace(part))
			if !st.Valid() {
				BadRequest(c, "未知状态: "+string(st))
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	sort := repository.QuoteSort{Field: c.Query("sort"), Desc: c.Query("desc") == "true"}

	quotes, err := h.svc.List(sessionContext(c), filter, sort)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, ListResponse{Items: quotes})
}

// Create POST /quotes
func (h *QuoteHandler) Create(c *gin.Context) {
	var input service.CreateQuoteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.CreateQuote(c.Request.Context(), input, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Created(c, q)
}

// Get GET /quotes/:id
func (h *QuoteHandler) Get(c *gin.Context) {
	q, err := h.svc.Get(sessionContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// History GET /quotes/:id/history
func (h *QuoteHandler) History(c *gin.Context) {
	rows, err := h.svc.Timeline(c.Request.Context(), c.Param("id"), nil)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"rows": rows})
}

// LineItemHistory GET /quotes/:id/line-items/:itemId/history
func (h *QuoteHandler) LineItemHistory(c *gin.Context) {
	item, ok := paramInt(c, "itemId")
	if !ok {
		return
	}
	rows, err := h.svc.Timeline(c.Request.Context(), c.Param("id"), &item)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"rows": rows})
}

// AgreedPrice GET /quotes/:id/line-items/:itemId/agreed-price
func (h *QuoteHandler) AgreedPrice(c *gin.Context) {
	item, ok := paramInt(c, "itemId")
	if !ok {
		return
	}
	ap, err := h.svc.AgreedPrice(c.Request.Context(), c.Param("id"), item)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, ap)
}

// Links GET /quotes/:id/links
func (h *QuoteHandler) Links(c *gin.Context) {
	links, err := h.svc.Links(sessionContext(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"links": links})
}

// Activity GET /quotes/:id/activity
func (h *QuoteHandler) Activity(c *gin.Context) {
	page, pageSize := GetPagination(c)
	logs, total, err := h.svc.Activity(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: logs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		},
	})
}

// SubmitResponseRequest 工厂报价请求
type SubmitResponseRequest struct {
	Price             *decimal.Decimal          `json:"price"`
	LeadTime          string                    `json:"lead_time"`
	Notes             string                    `json:"notes"`
	Message           string                    `json:"message"`
	LineItemResponses []entity.LineItemResponse `json:"line_item_responses" binding:"required"`
}

// SubmitResponse POST /quotes/:id/response
func (h *QuoteHandler) SubmitResponse(c *gin.Context) {
	var req SubmitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.SubmitResponse(c.Request.Context(), c.Param("id"), engine.ResponseInput{
		Price:             req.Price,
		LeadTime:          req.LeadTime,
		Notes:             req.Notes,
		Message:           req.Message,
		LineItemResponses: req.LineItemResponses,
	}, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// Decline POST /quotes/:id/decline
func (h *QuoteHandler) Decline(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.Decline(c.Request.Context(), c.Param("id"), req.Reason, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// Trash POST /quotes/:id/trash
func (h *QuoteHandler) Trash(c *gin.Context) {
	h.simple(c, h.svc.Trash)
}

// Restore POST /quotes/:id/restore
func (h *QuoteHandler) Restore(c *gin.Context) {
	h.simple(c, h.svc.Restore)
}

// Accept POST /quotes/:id/accept
func (h *QuoteHandler) Accept(c *gin.Context) {
	h.simple(c, h.svc.Accept)
}

// Hide POST /quotes/:id/hide
func (h *QuoteHandler) Hide(c *gin.Context) {
	q, err := h.svc.SetHidden(c.Request.Context(), c.Param("id"), true, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// Unhide POST /quotes/:id/unhide
func (h *QuoteHandler) Unhide(c *gin.Context) {
	q, err := h.svc.SetHidden(c.Request.Context(), c.Param("id"), false, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// ToggleApprovalRequest 行项确认请求；开启确认时 confirmed 必须为 true
type ToggleApprovalRequest struct {
	Party     entity.Party `json:"party" binding:"required"`
	Confirmed bool         `json:"confirmed"`
}

// ToggleApproval POST /quotes/:id/line-items/:itemId/approval
func (h *QuoteHandler) ToggleApproval(c *gin.Context) {
	item, ok := paramInt(c, "itemId")
	if !ok {
		return
	}
	var req ToggleApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	if req.Party != entity.PartyAdmin && req.Party != entity.PartyClient {
		BadRequest(c, "party 必须为 admin 或 client")
		return
	}
	q, err := h.svc.ToggleApproval(c.Request.Context(), c.Param("id"), item, req.Party, req.Confirmed, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// SendMessage POST /quotes/:id/messages
func (h *QuoteHandler) SendMessage(c *gin.Context) {
	var input service.MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.SendMessage(c.Request.Context(), c.Param("id"), input, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// Delete DELETE /quotes/:id
func (h *QuoteHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	Success(c, nil)
}

// EmptyTrash DELETE /quotes/trash
func (h *QuoteHandler) EmptyTrash(c *gin.Context) {
	n, err := h.svc.EmptyTrash(c.Request.Context(), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, gin.H{"deleted": n})
}

// Bulk POST /quotes/bulk/:action  body: {"ids": [...]}
func (h *QuoteHandler) Bulk(c *gin.Context) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	res, err := h.svc.Bulk(c.Request.Context(), service.BulkAction(c.Param("action")), req.IDs, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, res)
}

func (h *QuoteHandler) simple(c *gin.Context, op func(ctx context.Context, id, operatorID string) (*entity.Quote, error)) {
	q, err := op(c.Request.Context(), c.Param("id"), GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// sessionContext scopes request superseding to the calling operator.
func sessionContext(c *gin.Context) context.Context {
	return syncclient.WithSession(c.Request.Context(), GetUserID(c))
}
