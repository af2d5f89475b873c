package model

import "time"

// TrialModel trial 产出的候选模型（候选池）
// 由训练脚本写入，实验结束后连同暂存表一起清理
type TrialModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	ExperimentName string `gorm:"size:100;not null;index" json:"experiment_name"`
	ModelName      string `gorm:"size:100;not null" json:"model_name"`
	// base64 编码的 pickle 模型
	ModelFile string `gorm:"not null" json:"-"`

	Metrics `gorm:"embedded"`
}

func (TrialModel) TableName() string {
	return "trial_models"
}

// TempModel 暂存表：每个实验名下按指标排名保留的 top-K 候选
type TempModel struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// 来源候选 ID
	TrialID        uint   `gorm:"index" json:"trial_id"`
	ExperimentName string `gorm:"size:100;not null;index" json:"experiment_name"`
	ModelName      string `gorm:"size:100;not null" json:"model_name"`
	ModelFile      string `gorm:"not null" json:"-"`

	Metrics `gorm:"embedded"`
}

func (TempModel) TableName() string {
	return "temp_model_data"
}

// StageFrom 复制候选为暂存记录
func StageFrom(t TrialModel) TempModel {
	return TempModel{
		TrialID:        t.ID,
		ExperimentName: t.ExperimentName,
		ModelName:      t.ModelName,
		ModelFile:      t.ModelFile,
		Metrics:        t.Metrics,
	}
}
