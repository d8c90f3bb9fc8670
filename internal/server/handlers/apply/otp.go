package apply

import (
	"github.com/gin-gonic/gin"

	"etcapply/pkg/ginx"
)

// ConfirmRequest 短信验证码
type ConfirmRequest struct {
	Code string `json:"code" binding:"required,numeric,min=4,max=8"`
}

// Confirm 提交验证码，后台执行步骤 8~14
// POST /api/v1/applications/:id/otp
func (h *ApplyHandler) Confirm(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req ConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	if err := h.manager.ConfirmOTP(c.Request.Context(), s.ID, req.Code); err != nil {
		h.fail(c, err)
		return
	}
	ginx.Accepted(c, s.View())
}

// Cancel 取消申请
// POST /api/v1/applications/:id/cancel
func (h *ApplyHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := h.manager.Cancel(c.Request.Context(), s.ID); err != nil {
		h.fail(c, err)
		return
	}
	ginx.Success(c, s.View())
}
