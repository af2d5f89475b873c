package repository

import (
	"context"
	"errors"
	"fmt"

	"nni-keeper/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Promotion 一次晋升请求，ModelFile 已是规范编码
type Promotion struct {
	ExperimentName string
	ModelName      string
	Experimenter   string
	Version        string
	Metric         string
	ModelFile      string
	Metrics        model.Metrics
}

// Promote 比较候选与生产模型并在一个事务内写入
//
// 读取元数据行时加行锁（sqlite 忽略 FOR UPDATE，依赖单写连接），
// 替换路径再以 "指标仍大于候选" 作为更新条件，影响行数为 0 视为并发冲突，返回 ErrConflict。
func (s *Store) Promote(ctx context.Context, p Promotion) (model.PromotionOutcome, error) {
	if !model.ValidMetric(p.Metric) {
		return model.OutcomeFailed, fmt.Errorf("%w: %q", ErrUnknownMetric, p.Metric)
	}
	candidate, _ := p.Metrics.Get(p.Metric)

	outcome := model.OutcomeKept
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.ModelMetadata
		err := lockForUpdate(tx).
			Where("model_name = ?", p.ModelName).
			Take(&current).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := upsertCore(tx, p.ModelName, p.ModelFile); err != nil {
				return err
			}
			meta := model.ModelMetadata{
				ExperimentName: p.ExperimentName,
				ModelName:      p.ModelName,
				Experimenter:   p.Experimenter,
				Version:        p.Version,
				Metrics:        p.Metrics,
			}
			if err := tx.Create(&meta).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return ErrConflict
				}
				return err
			}
			outcome = model.OutcomeInserted
			return nil

		case err != nil:
			return err
		}

		stored, _ := current.Metrics.Get(p.Metric)
		if !(candidate < stored) {
			outcome = model.OutcomeKept
			return nil
		}

		res := tx.Model(&model.ModelMetadata{}).
			Where("model_name = ?", p.ModelName).
			Where(clause.Gt{Column: clause.Column{Name: p.Metric}, Value: candidate}).
			Updates(p.Metrics.Columns())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		if err := upsertCore(tx, p.ModelName, p.ModelFile); err != nil {
			return err
		}
		outcome = model.OutcomeReplaced
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return model.OutcomeFailed, err
		}
		return model.OutcomeFailed, fmt.Errorf("晋升生产模型失败: %w", err)
	}
	return outcome, nil
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func upsertCore(tx *gorm.DB, modelName, modelFile string) error {
	core := model.ModelCore{ModelName: modelName, ModelFile: modelFile}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"model_file", "updated_at"}),
	}).Create(&core).Error
}
