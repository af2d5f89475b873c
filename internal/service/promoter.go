package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"nni-keeper/internal/artifact"
	"nni-keeper/internal/config"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/metrics"
	"nni-keeper/internal/model"
	"nni-keeper/internal/repository"
)

// Repository 服务层用到的存储操作
type Repository interface {
	RefreshStaging(ctx context.Context, experimentName, metric string, topCnt int) (int, error)
	BestStaged(ctx context.Context, experimentName, metric string) (*model.TempModel, error)
	Promote(ctx context.Context, p repository.Promotion) (model.PromotionOutcome, error)
	Purge(ctx context.Context, experimentName string) error
}

type PromoteRequest struct {
	ExperimentName string `json:"experiment_name"`
	Experimenter   string `json:"experimenter"`
	Version        string `json:"version"`
	Metric         string `json:"metric"`
}

type PromoteResult struct {
	Outcome   model.PromotionOutcome `json:"outcome"`
	ModelName string                 `json:"model_name,omitempty"`
	Metric    string                 `json:"metric"`
	Value     float64                `json:"value,omitempty"`
}

// Promoter 把实验的最佳暂存候选与生产模型比较后写入
type Promoter struct {
	repo  Repository
	retry config.RetryConfig
	log   *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPromoter(repo Repository, retry config.RetryConfig, log *logging.Logger) *Promoter {
	return &Promoter{
		repo:  repo,
		retry: retry,
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// lockModel 同一进程内按模型名串行，跨进程依赖数据库行锁
func (p *Promoter) lockModel(name string) func() {
	p.mu.Lock()
	l, ok := p.locks[name]
	if !ok {
		l = &sync.Mutex{}
		p.locks[name] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Promote 无论比较结果如何，结束时都会清理该实验的暂存与候选记录
func (p *Promoter) Promote(ctx context.Context, req PromoteRequest) (*PromoteResult, error) {
	if req.ExperimentName == "" {
		return nil, fmt.Errorf("experiment name is required")
	}
	if !model.ValidMetric(req.Metric) {
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownMetric, req.Metric)
	}

	start := time.Now()
	log := p.log.WithExperiment(req.ExperimentName)

	res, err := p.promote(ctx, req, log)
	metrics.Promotions.WithLabelValues(string(res.Outcome)).Inc()
	metrics.PromotionDuration.Observe(time.Since(start).Seconds())

	// 取消只影响比较写入，清理仍要执行
	purgeCtx := context.WithoutCancel(ctx)
	purgeErr := withRetry(purgeCtx, p.retry, "purge", log, func(ctx context.Context) error {
		return p.repo.Purge(ctx, req.ExperimentName)
	})
	if purgeErr != nil {
		log.WithError(purgeErr).Error("purge staging failed")
		err = errors.Join(err, purgeErr)
	}

	log.WithDuration(time.Since(start)).Info("promotion finished",
		"outcome", res.Outcome, "model", res.ModelName, "metric", res.Metric, "value", res.Value)
	return res, err
}

func (p *Promoter) promote(ctx context.Context, req PromoteRequest, log *logging.Logger) (*PromoteResult, error) {
	res := &PromoteResult{Outcome: model.OutcomeFailed, Metric: req.Metric}

	var best *model.TempModel
	err := withRetry(ctx, p.retry, "best_staged", log, func(ctx context.Context) error {
		var err error
		best, err = p.repo.BestStaged(ctx, req.ExperimentName, req.Metric)
		return err
	})
	if err != nil {
		log.WithError(err).Error("read staged candidates failed")
		return res, err
	}
	if best == nil {
		log.Warn("no staged candidate to promote")
		res.Outcome = model.OutcomeNoStaged
		return res, nil
	}

	res.ModelName = best.ModelName
	res.Value, _ = best.Metrics.Get(req.Metric)

	file, err := artifact.Canonicalize(best.ModelFile)
	if err != nil {
		log.WithError(err).Error("staged artifact is corrupt", "model", best.ModelName, "trial_id", best.TrialID)
		return res, err
	}

	unlock := p.lockModel(best.ModelName)
	defer unlock()

	err = withRetry(ctx, p.retry, "promote", log, func(ctx context.Context) error {
		outcome, err := p.repo.Promote(ctx, repository.Promotion{
			ExperimentName: req.ExperimentName,
			ModelName:      best.ModelName,
			Experimenter:   req.Experimenter,
			Version:        req.Version,
			Metric:         req.Metric,
			ModelFile:      file,
			Metrics:        best.Metrics,
		})
		if err != nil {
			return err
		}
		res.Outcome = outcome
		return nil
	})
	if err != nil {
		res.Outcome = model.OutcomeFailed
		log.WithError(err).Error("write production model failed", "model", best.ModelName)
		return res, err
	}
	return res, nil
}
