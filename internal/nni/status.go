// Package nni NNI 实验编排工具（nnictl）的查询与停止
package nni

import "strings"

// Status 单次轮询得到的实验状态
type Status string

const (
	// StatusActive 实验仍在列表中且未结束
	StatusActive Status = "Active"
	// StatusDone 实验状态行中出现结束标记
	StatusDone Status = "Done"
	// StatusAbsent 列表非空但找不到该实验
	StatusAbsent Status = "Absent"
	// StatusUnknown 列表为空或查询失败，视为暂时状态
	StatusUnknown Status = "Unknown"
)

// Observation 解析后的轮询结果
type Observation struct {
	Status  Status
	Matches []string
	Listing string
}

// Parse 从 `nnictl experiment list` 的输出中找出 runID 的状态行
// 一个实验可能占多行，任一匹配行带结束标记即视为结束
func Parse(listing, runID string, markers []string) Observation {
	obs := Observation{Listing: listing}
	if strings.TrimSpace(listing) == "" || runID == "" {
		obs.Status = StatusUnknown
		return obs
	}

	for _, line := range strings.Split(listing, "\n") {
		if strings.Contains(line, runID) {
			obs.Matches = append(obs.Matches, line)
		}
	}

	switch {
	case len(obs.Matches) == 0:
		obs.Status = StatusAbsent
	case containsMarker(obs.Matches, markers):
		obs.Status = StatusDone
	default:
		obs.Status = StatusActive
	}
	return obs
}

func containsMarker(lines, markers []string) bool {
	for _, line := range lines {
		for _, m := range markers {
			if m != "" && strings.Contains(line, m) {
				return true
			}
		}
	}
	return false
}

// StopSucceeded nnictl stop 没有结构化返回，只能按文本判断
func StopSucceeded(output string) bool {
	return strings.Contains(strings.ToLower(output), "success")
}
