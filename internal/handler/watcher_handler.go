package handler

import (
	"errors"
	"net/http"
	"time"

	"nni-keeper/internal/service"
	"nni-keeper/internal/status"

	"github.com/gin-gonic/gin"
)

type WatcherHandler struct {
	supervisor *service.Supervisor
}

func NewWatcherHandler(supervisor *service.Supervisor) *WatcherHandler {
	return &WatcherHandler{supervisor: supervisor}
}

// StartWatchRequest 未填写的字段使用配置默认值
type StartWatchRequest struct {
	RunID          string `json:"run_id" binding:"required"`
	ExperimentName string `json:"experiment_name" binding:"required"`
	Experimenter   string `json:"experimenter"`
	Version        string `json:"version"`
	// 轮询间隔（秒）
	PollInterval       int    `json:"poll_interval"`
	StopOnComplete     *bool  `json:"stop_on_complete"`
	TopCnt             int    `json:"top_cnt"`
	EvaluationCriteria string `json:"evaluation_criteria"`
}

// StartWatch 启动后台监控，立即返回
func (h *WatcherHandler) StartWatch(c *gin.Context) {
	var req StartWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.PollInterval < 0 || req.TopCnt < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "poll_interval and top_cnt must not be negative"})
		return
	}

	err := h.supervisor.Start(service.WatchRequest{
		RunID:          req.RunID,
		ExperimentName: req.ExperimentName,
		Experimenter:   req.Experimenter,
		Version:        req.Version,
		PollInterval:   time.Duration(req.PollInterval) * time.Second,
		StopOnComplete: req.StopOnComplete,
		TopCnt:         req.TopCnt,
		Metric:         req.EvaluationCriteria,
	})
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrAlreadyWatching):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, service.ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "watch started",
		"run_id":  req.RunID,
	})
}

func (h *WatcherHandler) ListWatchers(c *gin.Context) {
	list, err := h.supervisor.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  list,
		"total": len(list),
	})
}

func (h *WatcherHandler) GetWatcher(c *gin.Context) {
	st, err := h.supervisor.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, status.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "watcher not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

// StopWatcher 发出取消信号，watcher 在下一次等待时退出
func (h *WatcherHandler) StopWatcher(c *gin.Context) {
	runID := c.Param("id")
	if err := h.supervisor.Stop(runID); err != nil {
		if errors.Is(err, service.ErrNotWatching) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "stop requested",
		"run_id":  runID,
	})
}
