package apply

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"etcapply/internal/worker"
	"etcapply/pkg/ginx"
	"etcapply/pkg/logger"
)

// 默认 SSE 心跳间隔
const defaultHeartbeat = 15 * time.Second

// ApplyHandler 申请流程 HTTP 处理器
type ApplyHandler struct {
	manager   *worker.Manager
	logger    logger.Logger
	heartbeat time.Duration
}

// NewApplyHandler 创建处理器实例
func NewApplyHandler(manager *worker.Manager, log logger.Logger) *ApplyHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ApplyHandler{
		manager:   manager,
		logger:    log,
		heartbeat: defaultHeartbeat,
	}
}

// session 按路径参数查找会话，找不到时已写好 404
func (h *ApplyHandler) session(c *gin.Context) (*worker.Session, bool) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

func (h *ApplyHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, worker.ErrSessionNotFound) {
		ginx.NotFound(c, err.Error())
		return
	}
	ginx.FromError(c, err)
}
