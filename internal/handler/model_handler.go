package handler

import (
	"errors"
	"net/http"

	"nni-keeper/internal/artifact"
	"nni-keeper/internal/model"
	"nni-keeper/internal/repository"
	"nni-keeper/internal/service"

	"github.com/gin-gonic/gin"
)

type ModelHandler struct {
	store    *repository.Store
	promoter *service.Promoter
	metric   string
}

// NewModelHandler metric 为手动晋升未指定指标时的默认值
func NewModelHandler(store *repository.Store, promoter *service.Promoter, metric string) *ModelHandler {
	return &ModelHandler{store: store, promoter: promoter, metric: metric}
}

type AddTrialRequest struct {
	ExperimentName string  `json:"experiment_name" binding:"required"`
	ModelName      string  `json:"model_name" binding:"required"`
	ModelFile      string  `json:"model_file" binding:"required"`
	TrainMAE       float64 `json:"train_mae"`
	ValMAE         float64 `json:"val_mae"`
	TrainMSE       float64 `json:"train_mse"`
	ValMSE         float64 `json:"val_mse"`
}

// AddTrial trial 上报候选模型
func (h *ModelHandler) AddTrial(c *gin.Context) {
	var req AddTrialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	trial := model.TrialModel{
		ExperimentName: req.ExperimentName,
		ModelName:      req.ModelName,
		ModelFile:      req.ModelFile,
		Metrics: model.Metrics{
			TrainMAE: req.TrainMAE,
			ValMAE:   req.ValMAE,
			TrainMSE: req.TrainMSE,
			ValMSE:   req.ValMSE,
		},
	}
	if err := h.store.AddTrial(c.Request.Context(), &trial); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, trial)
}

// GetModel 查询生产模型元数据，include_file=true 时附带模型文件
func (h *ModelHandler) GetModel(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	meta, err := h.store.GetProduction(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "model not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("include_file") != "true" {
		c.JSON(http.StatusOK, meta)
		return
	}

	core, err := h.store.GetProductionFile(ctx, name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metadata":   meta,
		"model_file": core.ModelFile,
	})
}

type PromoteRequest struct {
	Experimenter       string `json:"experimenter"`
	Version            string `json:"version"`
	EvaluationCriteria string `json:"evaluation_criteria"`
}

// Promote 手动晋升，用于消失或被停止的实验
func (h *ModelHandler) Promote(c *gin.Context) {
	var req PromoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.EvaluationCriteria == "" {
		req.EvaluationCriteria = h.metric
	}

	res, err := h.promoter.Promote(c.Request.Context(), service.PromoteRequest{
		ExperimentName: c.Param("name"),
		Experimenter:   req.Experimenter,
		Version:        req.Version,
		Metric:         req.EvaluationCriteria,
	})
	switch {
	case errors.Is(err, repository.ErrUnknownMetric):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, artifact.ErrCorruptArtifact):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "result": res})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, res)
}
