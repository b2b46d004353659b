package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/gin-gonic/gin"
)

func TestRespondError_StatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", entity.ErrNoPricedLineItem, http.StatusBadRequest},
		{"permission", fmt.Errorf("更新询价单失败: %w", entity.ErrPermissionDenied), http.StatusForbidden},
		{"not found", entity.ErrNotFound, http.StatusNotFound},
		{"stale write", fmt.Errorf("%w: 版本 1，当前 2", entity.ErrStaleWrite), http.StatusConflict},
		{"history rewrite", entity.ErrHistoryRewrite, http.StatusConflict},
		{"cancelled", context.Canceled, 499},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tt.err)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}
