package apply

import (
	"github.com/gin-gonic/gin"

	"etcapply/pkg/ginx"
)

// CodeStatus 验证码弹窗查询结果
type CodeStatus struct {
	SMSPrimed bool   `json:"sms_primed"`
	Status    string `json:"status"`
}

// Get 会话视图：状态、进度、日志（新的在前）
// GET /api/v1/applications/:id
func (h *ApplyHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	ginx.Success(c, s.View())
}

// GetCode 短信是否已下发（步骤 7 在第一段里完成）
// GET /api/v1/applications/:id/otp
func (h *ApplyHandler) GetCode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	view := s.View()
	ginx.Success(c, CodeStatus{SMSPrimed: view.SMSPrimed, Status: string(view.Status)})
}
