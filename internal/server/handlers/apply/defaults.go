package apply

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"etcapply/internal/params"
	"etcapply/pkg/ginx"
)

// 上传文件大小上限
const maxUploadSize = 4 << 20

// FourElementsResponse 四要素解析结果
type FourElementsResponse struct {
	FileName string         `json:"file_name"`
	Complete bool           `json:"complete"`
	Elements interface{}    `json:"four_elements"`
	Fields   params.Request `json:"fields"` // 对应的申请参数键
}

// Defaults 默认申请参数（固定值 + 随机测试数据）
// GET /api/v1/defaults
func (h *ApplyHandler) Defaults(c *gin.Context) {
	ginx.Success(c, h.manager.Defaults())
}

// ParseFourElements 解析上传的四要素文件
// POST /api/v1/four-elements (multipart: file)
func (h *ApplyHandler) ParseFourElements(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		ginx.BadRequest(c, "file is required")
		return
	}
	if fh.Size > maxUploadSize {
		ginx.Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		ginx.InternalError(c, err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		ginx.InternalError(c, err.Error())
		return
	}

	fe, err := h.manager.ParseFourElements(fh.Filename, data)
	if err != nil {
		h.fail(c, err)
		return
	}

	ginx.Success(c, FourElementsResponse{
		FileName: fh.Filename,
		Complete: fe.Complete(),
		Elements: fe,
		Fields:   params.ApplyFourElements(params.Request{}, fe),
	})
}
