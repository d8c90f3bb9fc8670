package apply

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"etcapply/internal/params"
	"etcapply/pkg/ginx"
)

const maxFormMemory = 1 << 20

// Create 提交申请表单：合并默认值并校验，通过后后台执行步骤 1~7
// POST /api/v1/applications (form 或 JSON 对象，键为后台字段名)
func (h *ApplyHandler) Create(c *gin.Context) {
	req, err := bindRequest(c)
	if err != nil {
		ginx.BadRequest(c, err.Error())
		return
	}

	s, err := h.manager.Apply(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ginx.Accepted(c, s.View())
}

// bindRequest 表单和 JSON 都按「键 → 字符串」读取，值去掉首尾空白
func bindRequest(c *gin.Context) (params.Request, error) {
	req := params.Request{}

	if c.ContentType() == binding.MIMEJSON {
		var fields map[string]string
		if err := c.ShouldBindJSON(&fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			req[k] = strings.TrimSpace(v)
		}
		return req, nil
	}

	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, err
	}
	for k, vs := range c.Request.PostForm {
		if len(vs) > 0 {
			req[k] = strings.TrimSpace(vs[0])
		}
	}
	return req, nil
}
