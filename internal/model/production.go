package model

import "time"

// ModelCore 生产模型文件，每个模型名只有一行
type ModelCore struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ModelName string `gorm:"size:100;not null;uniqueIndex" json:"model_name"`
	ModelFile string `gorm:"not null" json:"-"`
}

func (ModelCore) TableName() string {
	return "model_core"
}

// ModelMetadata 生产模型元数据
// experimenter/version 归首次创建该模型的实验所有，替换时只刷新指标
type ModelMetadata struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExperimentName string `gorm:"size:100;not null;index" json:"experiment_name"`
	ModelName      string `gorm:"size:100;not null;uniqueIndex" json:"model_name"`
	Experimenter   string `gorm:"size:100" json:"experimenter"`
	Version        string `gorm:"size:50" json:"version"`

	Metrics `gorm:"embedded"`
}

func (ModelMetadata) TableName() string {
	return "model_metadata"
}
