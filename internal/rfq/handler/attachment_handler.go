package handler

import (
	"github.com/bitfantasy/nimo-rfq/internal/rfq/service"
	"github.com/gin-gonic/gin"
)

// 单个附件上限 50MB
const maxAttachmentSize = 50 << 20

type AttachmentHandler struct {
	svc         *service.AttachmentService
	negotiation *service.NegotiationService
}

func NewAttachmentHandler(svc *service.AttachmentService, negotiation *service.NegotiationService) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, negotiation: negotiation}
}

// Upload POST /quotes/:id/attachments (multipart: file, key; ?attach=true adds it to the quote files)
func (h *AttachmentHandler) Upload(c *gin.Context) {
	quoteID := c.Param("id")
	fileHeader, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "请选择文件")
		return
	}
	if fileHeader.Size > maxAttachmentSize {
		BadRequest(c, "文件大小不能超过50MB")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "读取文件失败")
		return
	}
	defer file.Close()

	att, err := h.svc.Upload(c.Request.Context(), service.UploadInput{
		QuoteID:     quoteID,
		Key:         c.PostForm("key"),
		FileName:    fileHeader.Filename,
		Size:        fileHeader.Size,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("attach") == "true" {
		if _, err := h.negotiation.AttachFiles(c.Request.Context(), quoteID, []string{att.Path}, GetUserID(c)); err != nil {
			respondError(c, err)
			return
		}
	}
	Created(c, att)
}

// Cancel DELETE /uploads/:key
func (h *AttachmentHandler) Cancel(c *gin.Context) {
	if !h.svc.Cancel(c.Param("key")) {
		NotFound(c, "上传任务不存在")
		return
	}
	Success(c, gin.H{"cancelled": true})
}
