package apply

import (
	"github.com/gin-gonic/gin"

	"etcapply/pkg/ginx"
)

// StockInRequest 设备入库
type StockInRequest struct {
	CarNum string `json:"car_num" binding:"required"`
	ObuNo  string `json:"obu_no" binding:"omitempty,numeric,len=20"`
	EtcSn  string `json:"etc_sn" binding:"omitempty,numeric"`
}

// StockIn 单独入库一对 OBU / ETC 卡
// POST /api/v1/stock-in
func (h *ApplyHandler) StockIn(c *gin.Context) {
	var req StockInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ginx.BadRequestWithValidation(c, err)
		return
	}

	res, err := h.manager.StockIn(c.Request.Context(), req.CarNum, req.ObuNo, req.EtcSn)
	if err != nil {
		h.fail(c, err)
		return
	}
	ginx.Success(c, res)
}
