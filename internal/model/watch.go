package model

import "time"

// WatchState watcher 轮询循环的状态
type WatchState string

const (
	StateRunning  WatchState = "RUNNING"
	StateDone     WatchState = "DONE"
	StateVanished WatchState = "VANISHED"
	StateStopped  WatchState = "STOPPED"
)

// Terminal 循环是否已结束
func (s WatchState) Terminal() bool {
	return s == StateDone || s == StateVanished || s == StateStopped
}

// PromotionOutcome 一次晋升的结果
type PromotionOutcome string

const (
	OutcomeInserted PromotionOutcome = "inserted"
	OutcomeReplaced PromotionOutcome = "replaced"
	OutcomeKept     PromotionOutcome = "kept"
	OutcomeNoStaged PromotionOutcome = "no_staged"
	OutcomeFailed   PromotionOutcome = "failed"
)

// WatchStatus 可查询的 watcher 运行状态（不入库，保存在状态存储中）
type WatchStatus struct {
	RunID          string     `json:"run_id"`
	ExperimentName string     `json:"experiment_name"`
	Experimenter   string     `json:"experimenter"`
	Version        string     `json:"version"`
	Metric         string     `json:"metric"`
	TopCnt         int        `json:"top_cnt"`
	State          WatchState `json:"state"`
	Ticks          int        `json:"ticks"`
	// 最近一次轮询得到的状态行
	LastObservation string           `json:"last_observation,omitempty"`
	Staged          int              `json:"staged"`
	Outcome         PromotionOutcome `json:"outcome,omitempty"`
	Error           string           `json:"error,omitempty"`
	StartedAt       time.Time        `json:"started_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}
