package model

import (
	"time"

	"github.com/ferrite-ci/ferrite-engine/output"
)

// RunDetail 一次 workflow 的执行记录，序列化为 yaml 保存
type RunDetail struct {
	Id int `yaml:"id" json:"id"`
	Workflow
	Status      Status      `yaml:"status" json:"status"`
	TriggerMode string      `yaml:"triggerMode,omitempty" json:"triggerMode"`
	Branch      string      `yaml:"branch,omitempty" json:"branch"`
	JobDetails  []JobDetail `yaml:"jobDetails,omitempty" json:"jobDetails"`
	Error       string      `yaml:"error,omitempty" json:"error"`
	StartTime   time.Time   `yaml:"startTime,omitempty" json:"startTime"`
	Duration    int64       `yaml:"duration,omitempty" json:"duration"`

	ActionResult `yaml:"actionResult,omitempty" json:"actionResult"`

	Output *output.Output `yaml:"-" json:"-"`
}

// JobDetail 一次 run 中单个 job 的执行情况，step 状态记在 Job.Steps 里
type JobDetail struct {
	Name      string    `yaml:"name" json:"name"`
	Job       Job       `yaml:"job" json:"job"`
	Status    Status    `yaml:"status" json:"status"`
	StartTime time.Time `yaml:"startTime,omitempty" json:"startTime"`
	Duration  int64     `yaml:"duration,omitempty" json:"duration"`
}

// FailedStep 返回第一个失败的 step 名称，没有失败返回空字符串
func (r *RunDetail) FailedStep() string {
	for _, jd := range r.JobDetails {
		for _, step := range jd.Job.Steps {
			if step.Status == STATUS_FAIL {
				return step.Name
			}
		}
	}
	return ""
}

// RunDetailDecrement 按 run id 倒序
type RunDetailDecrement []RunDetail

func (r RunDetailDecrement) Len() int           { return len(r) }
func (r RunDetailDecrement) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r RunDetailDecrement) Less(i, j int) bool { return r[i].Id > r[j].Id }

type RunPage struct {
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Total    int         `json:"total"`
	Data     []RunDetail `json:"data"`
}

// RunLog 整个 run 的日志
type RunLog struct {
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Content   string        `json:"content"`
	LastLine  int           `json:"lastLine"`
}

// JobLog 单个 job 的日志，End 表示该 job 已经到终态，轮询方可以停了
type JobLog struct {
	Name      string        `json:"name"`
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
	Content   string        `json:"content"`
	LastLine  int           `json:"lastLine"`
	End       bool          `json:"end"`
}
