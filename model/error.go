package model

import "fmt"

// SendRunError 向节点发送 run 失败，记录是哪个节点出的错，方便摘除它
type SendRunError struct {
	ErrorNode    string
	WorkflowName string
	RunId        int
	Err          error
}

func (e *SendRunError) Error() string {
	return fmt.Sprintf("send run %s(%d) error: %s", e.WorkflowName, e.RunId, e.Err)
}

// StepError step 执行失败，带上失败的 step 名字作为 run 的终态原因
type StepError struct {
	JobName  string
	StepName string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s/%s failed: %s", e.JobName, e.StepName, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
