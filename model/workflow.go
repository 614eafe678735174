package model

import (
	"fmt"
	"sort"
	"time"
)

// Workflow 静态的流水线定义，从 yaml 文件加载
type Workflow struct {
	Version   string            `yaml:"version,omitempty" json:"version"`
	Name      string            `yaml:"name" json:"name"`
	On        Triggers          `yaml:"on,omitempty" json:"on"`
	Jobs      map[string]Job    `yaml:"jobs" json:"jobs"`
	Parameter map[string]string `yaml:"parameter,omitempty" json:"parameter"`
}

// Triggers 触发器集合，push 和 workflow_dispatch 至少配置一个才能被触发
type Triggers struct {
	Push             *PushTrigger   `yaml:"push,omitempty" json:"push"`
	WorkflowDispatch *ManualTrigger `yaml:"workflow_dispatch,omitempty" json:"workflowDispatch"`
}

type PushTrigger struct {
	// Branches 分支过滤，为空表示所有分支
	Branches []string `yaml:"branches,omitempty" json:"branches"`
}

type ManualTrigger struct{}

// Job 一个 workflow 中的执行单元，steps 按声明顺序执行
type Job struct {
	Name   string   `yaml:"-" json:"name"`
	RunsOn string   `yaml:"runs-on,omitempty" json:"runsOn"`
	Needs  []string `yaml:"needs,omitempty" json:"needs"`
	Steps  []Step   `yaml:"steps" json:"steps"`
}

const (
	EVENT_KIND_PUSH   = "push"
	EVENT_KIND_MANUAL = "manual"
)

// Event 外部事件，由嵌入方（webhook 接收器、cli）构造
type Event struct {
	Kind   string `json:"kind"`
	Branch string `json:"branch,omitempty"`
}

// JobSort 解析 needs 依赖，返回按执行顺序排序的 JobDetail 列表。
// 同一批就绪的 job 按名字排序，保证每次排序结果一致。
// 依赖不存在或成环时报错。
func (w *Workflow) JobSort() ([]JobDetail, error) {
	details := make([]JobDetail, 0, len(w.Jobs))
	done := make(map[string]bool)

	names := make([]string, 0, len(w.Jobs))
	for name := range w.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for len(done) < len(w.Jobs) {
		progress := false
		for _, name := range names {
			if done[name] {
				continue
			}
			job := w.Jobs[name]
			ready := true
			for _, need := range job.Needs {
				if _, ok := w.Jobs[need]; !ok {
					return nil, fmt.Errorf("job %s needs unknown job %s", name, need)
				}
				if !done[need] {
					ready = false
					break
				}
			}
			if ready {
				job.Name = name
				details = append(details, JobDetail{
					Name:   name,
					Job:    job,
					Status: STATUS_NOTRUN,
				})
				done[name] = true
				progress = true
			}
		}
		if !progress {
			return nil, fmt.Errorf("job needs cycle detected in workflow %s", w.Name)
		}
	}
	return details, nil
}

// WorkflowVo 列表视图，带上最近一次 run 的概要
type WorkflowVo struct {
	Name        string    `json:"name"`
	CreateTime  time.Time `json:"createTime"`
	RunId       int       `json:"runId"`
	Status      Status    `json:"status"`
	TriggerMode string    `json:"triggerMode"`
	StartTime   time.Time `json:"startTime"`
	Duration    int64     `json:"duration"`
	Error       string    `json:"error"`
}

type WorkflowPage struct {
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int          `json:"total"`
	Data     []WorkflowVo `json:"data"`
}

// WorkflowVoTimeDecrement 按创建时间倒序
type WorkflowVoTimeDecrement []WorkflowVo

func (w WorkflowVoTimeDecrement) Len() int      { return len(w) }
func (w WorkflowVoTimeDecrement) Swap(i, j int) { w[i], w[j] = w[j], w[i] }
func (w WorkflowVoTimeDecrement) Less(i, j int) bool {
	return w[i].CreateTime.After(w[j].CreateTime)
}
