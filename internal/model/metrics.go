package model

// 评估指标列名白名单，排序/比较时只允许使用这些列
const (
	MetricTrainMAE = "train_mae"
	MetricValMAE   = "val_mae"
	MetricTrainMSE = "train_mse"
	MetricValMSE   = "val_mse"
)

var MetricNames = []string{MetricTrainMAE, MetricValMAE, MetricTrainMSE, MetricValMSE}

// ValidMetric 判断指标名是否在白名单中
func ValidMetric(name string) bool {
	for _, m := range MetricNames {
		if m == name {
			return true
		}
	}
	return false
}

// Metrics 每个 trial 上报的误差指标，数值越小越好
type Metrics struct {
	TrainMAE float64 `gorm:"column:train_mae" json:"train_mae"`
	ValMAE   float64 `gorm:"column:val_mae" json:"val_mae"`
	TrainMSE float64 `gorm:"column:train_mse" json:"train_mse"`
	ValMSE   float64 `gorm:"column:val_mse" json:"val_mse"`
}

// Get 按列名取指标值
func (m Metrics) Get(name string) (float64, bool) {
	switch name {
	case MetricTrainMAE:
		return m.TrainMAE, true
	case MetricValMAE:
		return m.ValMAE, true
	case MetricTrainMSE:
		return m.TrainMSE, true
	case MetricValMSE:
		return m.ValMSE, true
	}
	return 0, false
}

// Columns 用于 Updates 的列 -> 值映射
func (m Metrics) Columns() map[string]interface{} {
	return map[string]interface{}{
		MetricTrainMAE: m.TrainMAE,
		MetricValMAE:   m.ValMAE,
		MetricTrainMSE: m.TrainMSE,
		MetricValMSE:   m.ValMSE,
	}
}
