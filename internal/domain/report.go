package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusConverted = "converted"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Flow   string `json:"flow"`
	OutDir string `json:"out_dir"`
	Scale  int    `json:"scale,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Converted int `json:"converted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// ItemResult 是单个条目的结局：converted / skipped / failed(error_code, error_msg)。
// 只在一次运行内存在，不做持久化（report.json 除外）。
type ItemResult struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Output string `json:"output"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	// Fetched 表示本次运行实际发起了下载（raw 已存在时为 false）。
	Fetched bool `json:"fetched"`
	// CleanedUp 表示 raw 中间文件已被删除。
	CleanedUp bool `json:"cleaned_up"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) items 按 name 稳定排序；name=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Name
		b := r.Items[j].Name
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusConverted:
			s.Converted++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// FailedItems 返回所有失败条目（保持 Items 中的顺序）。
func (r RunReport) FailedItems() []ItemResult {
	out := make([]ItemResult, 0, r.Summary.Failed)
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			out = append(out, it)
		}
	}
	return out
}

// OK 表示整批没有失败条目（CLI 据此决定退出码）。
func (r RunReport) OK() bool { return r.Summary.Failed == 0 }

// MarshalJSON 保证 items 为空时输出 [] 而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
