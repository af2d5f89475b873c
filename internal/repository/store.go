// Package repository 模型存储层
//
// 封装候选池、暂存表和生产模型表的读写。
// 指标列名只接受 model.MetricNames 中的白名单，外部传入的实验名/模型名一律走参数绑定。
package repository

import (
	"context"
	"errors"
	"fmt"

	"nni-keeper/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnknownMetric = errors.New("unknown evaluation metric")
	ErrInvalidTopCnt = errors.New("top count must be at least 1")
	ErrNotFound      = errors.New("record not found")
	// 比较后写入时发现生产指标已被其他实验改写
	ErrConflict = errors.New("production model changed concurrently")
)

// Store 基于 gorm 的存储实现
type Store struct {
	db *gorm.DB
}

// NewStore 创建存储实例
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func metricOrder(metric string) clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: metric}}
}

// AddTrial 写入一条候选
func (s *Store) AddTrial(ctx context.Context, trial *model.TrialModel) error {
	if err := s.db.WithContext(ctx).Create(trial).Error; err != nil {
		return fmt.Errorf("写入候选失败: %w", err)
	}
	return nil
}

// RefreshStaging 重算实验的 top-K 暂存记录
// 整体在一个事务内完成：删除旧暂存，按指标升序（同值按候选 ID）复制前 K 条候选
func (s *Store) RefreshStaging(ctx context.Context, experimentName, metric string, topCnt int) (int, error) {
	if !model.ValidMetric(metric) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if topCnt < 1 {
		return 0, ErrInvalidTopCnt
	}

	staged := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var best []model.TrialModel
		if err := tx.Where("experiment_name = ?", experimentName).
			Order(metricOrder(metric)).
			Order("id").
			Limit(topCnt).
			Find(&best).Error; err != nil {
			return err
		}

		if err := tx.Where("experiment_name = ?", experimentName).
			Delete(&model.TempModel{}).Error; err != nil {
			return err
		}

		if len(best) == 0 {
			return nil
		}

		rows := make([]model.TempModel, 0, len(best))
		for _, t := range best {
			rows = append(rows, model.StageFrom(t))
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		staged = len(rows)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("更新暂存模型失败: %w", err)
	}
	return staged, nil
}

// ListStaged 按指标升序返回实验的暂存记录
func (s *Store) ListStaged(ctx context.Context, experimentName, metric string) ([]model.TempModel, error) {
	if !model.ValidMetric(metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	var rows []model.TempModel
	if err := s.db.WithContext(ctx).
		Where("experiment_name = ?", experimentName).
		Order(metricOrder(metric)).
		Order("trial_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("查询暂存模型失败: %w", err)
	}
	return rows, nil
}

// BestStaged 取指标最小的暂存记录，没有暂存时返回 nil, nil
func (s *Store) BestStaged(ctx context.Context, experimentName, metric string) (*model.TempModel, error) {
	if !model.ValidMetric(metric) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	var best model.TempModel
	err := s.db.WithContext(ctx).
		Where("experiment_name = ?", experimentName).
		Order(metricOrder(metric)).
		Order("trial_id").
		Take(&best).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询最优暂存模型失败: %w", err)
	}
	return &best, nil
}

// Purge 删除实验的全部暂存记录与候选
func (s *Store) Purge(ctx context.Context, experimentName string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("experiment_name = ?", experimentName).
			Delete(&model.TempModel{}).Error; err != nil {
			return err
		}
		return tx.Where("experiment_name = ?", experimentName).
			Delete(&model.TrialModel{}).Error
	})
	if err != nil {
		return fmt.Errorf("清理实验暂存数据失败: %w", err)
	}
	return nil
}

// GetProduction 读取生产模型元数据
func (s *Store) GetProduction(ctx context.Context, modelName string) (*model.ModelMetadata, error) {
	var meta model.ModelMetadata
	err := s.db.WithContext(ctx).Where("model_name = ?", modelName).Take(&meta).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询生产模型失败: %w", err)
	}
	return &meta, nil
}

// GetProductionFile 读取生产模型文件
func (s *Store) GetProductionFile(ctx context.Context, modelName string) (*model.ModelCore, error) {
	var core model.ModelCore
	err := s.db.WithContext(ctx).Where("model_name = ?", modelName).Take(&core).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询生产模型文件失败: %w", err)
	}
	return &core, nil
}
