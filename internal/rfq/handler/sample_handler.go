package handler

import (
	"github.com/bitfantasy/nimo-rfq/internal/rfq/service"
	"github.com/gin-gonic/gin"
)

type SampleHandler struct {
	svc *service.SampleService
}

func NewSampleHandler(svc *service.SampleService) *SampleHandler {
	return &SampleHandler{svc: svc}
}

// Request POST /quotes/:id/sample
func (h *SampleHandler) Request(c *gin.Context) {
	var req service.RequestSampleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.RequestSample(c.Request.Context(), c.Param("id"), req, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}

// UpdateStatus PUT /quotes/:id/sample/status
func (h *SampleHandler) UpdateStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	q, err := h.svc.UpdateSampleStatus(c.Request.Context(), c.Param("id"), req.Status, GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	Success(c, q)
}
