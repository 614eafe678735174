package engine

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ferrite-ci/ferrite-engine/config"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/trigger"
	"github.com/ferrite-ci/ferrite-engine/utils"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
)

type Engine interface {
	CreateWorkflow(name string, yaml string) error
	SaveWorkflowParams(name string, params map[string]string) error
	DeleteWorkflow(name string) error
	UpdateWorkflow(name, newName, yamlString string) error
	GetWorkflow(name string) (*model.Workflow, error)
	GetWorkflows(keyword string, page, size int) (*model.WorkflowPage, error)
	GetCodeInfo(name string, runId int) (string, error)

	// DispatchEvent 把外部事件（push）派发给所有触发器命中的 workflow，每个命中各创建一次 run
	DispatchEvent(event model.Event) ([]*model.RunDetail, error)
	// ExecuteWorkflow 手动触发，workflow 必须声明 workflow_dispatch
	ExecuteWorkflow(name string, branch string) (*model.RunDetail, error)
	// ReExecuteRun 重新执行一次已有的 run
	ReExecuteRun(name string, id int) error
	CancelRun(name string, id int) error

	GetRun(name string, id int) (*model.RunDetail, error)
	GetRuns(name string, page, size int) (*model.RunPage, error)
	DeleteRun(name string, id int) error
	GetRunLog(name string, id int) (*model.RunLog, error)
	GetRunJobLog(name string, id int, jobName string, start int) (*model.JobLog, error)
	GetRunStepLog(name string, id int, jobName string, stepName string) (*output.Step, error)

	RegisterStatusChangeHook(hook func(message model.StatusChangeMessage))
	// GetCurrentRunStatus 获取当前 run 的状态，不能获取历史 run 的状态
	GetCurrentRunStatus(name string, id int) (model.Status, error)
	IsValidWorker(w string) bool
	GetWorkRootPath() string
}

type Role int

const (
	RoleMaster Role = iota
	RoleWorker
)

type engine struct {
	role   Role
	master *masterEngine
	worker *workerEngine
}

// NewMasterEngine master 节点，自带一个本地 worker，单机也能跑
func NewMasterEngine(listenPort int) (Engine, error) {
	logger.Init().ToStdoutAndFile().SetLevel(readLogLevelFromEnv())
	e := &engine{}
	e.role = RoleMaster

	var err error
	e.master, err = newMasterEngine(fmt.Sprintf("0.0.0.0:%d", listenPort))
	if err != nil {
		return nil, err
	}

	// 本地 worker 的 inbox 监听在 master 端口 +1
	e.worker, err = newWorkerEngine(fmt.Sprintf("127.0.0.1:%d", listenPort), listenPort+1)
	if err != nil {
		return nil, err
	}

	return e, nil
}

// NewEngineFromConfig 按配置决定角色：配置了 master 地址就是 worker，否则是 master
func NewEngineFromConfig(cfg config.Config) (Engine, error) {
	if cfg.LogLevel != "" {
		os.Setenv("FERRITE_LOG_LEVEL", cfg.LogLevel)
	}
	if cfg.WorkRoot != "" {
		os.Setenv("FERRITE_WORK_ROOT", cfg.WorkRoot)
	}
	if cfg.NodeName != "" {
		os.Setenv("FERRITE_NODE_NAME", cfg.NodeName)
	}
	_, portStr, err := net.SplitHostPort(cfg.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid listen address %s: %v", cfg.ListenAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid listen port %s: %v", portStr, err)
	}
	if cfg.MasterAddress != "" {
		return NewWorkerEngine(cfg.MasterAddress, port)
	}
	return NewMasterEngine(port)
}

func NewWorkerEngine(masterAddress string, listenPort int) (Engine, error) {
	logger.Init().ToStdoutAndFile().SetLevel(readLogLevelFromEnv())
	e := &engine{}
	e.role = RoleWorker
	var err error
	e.worker, err = newWorkerEngine(masterAddress, listenPort)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (e *engine) CreateWorkflow(name string, yaml string) error {
	return flow.Save(name, yaml)
}

func (e *engine) SaveWorkflowParams(name string, params map[string]string) error {
	return flow.SaveParams(name, params)
}

func (e *engine) DeleteWorkflow(name string) error {
	return flow.Delete(name)
}

func (e *engine) UpdateWorkflow(name, newName, yamlString string) error {
	return flow.Update(name, newName, yamlString)
}

func (e *engine) GetWorkflow(name string) (*model.Workflow, error) {
	return flow.GetObject(name)
}

func (e *engine) GetWorkflows(keyword string, page, size int) (*model.WorkflowPage, error) {
	return flow.List(keyword, page, size)
}

func (e *engine) GetCodeInfo(name string, runId int) (string, error) {
	runDetail, err := flow.GetRunDetail(name, runId)
	if err != nil {
		return "", err
	}
	return runDetail.CodeInfo, nil
}

// DispatchEvent 对每个 workflow 做触发器匹配，命中就建 run 并派发执行
func (e *engine) DispatchEvent(event model.Event) ([]*model.RunDetail, error) {
	if e.role != RoleMaster {
		return nil, fmt.Errorf("only master can dispatch event")
	}

	page, err := flow.List("", 1, 10000)
	if err != nil {
		return nil, err
	}

	runs := make([]*model.RunDetail, 0)
	for _, vo := range page.Data {
		wf, err := flow.GetObject(vo.Name)
		if err != nil {
			logger.Errorf("load workflow %s error: %v", vo.Name, err)
			continue
		}
		if !trigger.Matches(wf.On, event) {
			continue
		}
		detail, err := flow.CreateRunDetail(wf.Name, trigger.Mode(event), event.Branch)
		if err != nil {
			logger.Errorf("create run for workflow %s error: %v", wf.Name, err)
			continue
		}
		if err := e.master.dispatchRun(wf.Name, detail.Id); err != nil {
			logger.Errorf("dispatch run %s(%d) error: %v", wf.Name, detail.Id, err)
			continue
		}
		runs = append(runs, detail)
	}
	return runs, nil
}

func (e *engine) ExecuteWorkflow(name string, branch string) (*model.RunDetail, error) {
	if e.role != RoleMaster {
		return nil, fmt.Errorf("only master can execute workflow")
	}
	wf, err := flow.GetObject(name)
	if err != nil {
		return nil, err
	}
	event := model.Event{Kind: model.EVENT_KIND_MANUAL, Branch: branch}
	if !trigger.Matches(wf.On, event) {
		return nil, fmt.Errorf("workflow %s does not declare workflow_dispatch trigger", name)
	}
	detail, err := flow.CreateRunDetail(name, trigger.Mode(event), branch)
	if err != nil {
		return nil, err
	}
	return detail, e.master.dispatchRun(name, detail.Id)
}

func (e *engine) ReExecuteRun(name string, id int) error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can execute workflow")
	}
	return e.master.dispatchRun(name, id)
}

func (e *engine) CancelRun(name string, id int) error {
	if e.role != RoleMaster {
		return fmt.Errorf("only master can cancel run")
	}
	return e.master.cancelRun(name, id)
}

func (e *engine) GetRun(name string, id int) (*model.RunDetail, error) {
	return flow.GetRunDetail(name, id)
}

func (e *engine) GetRuns(name string, page, size int) (*model.RunPage, error) {
	return flow.RunList(name, page, size)
}

func (e *engine) DeleteRun(name string, id int) error {
	return flow.DeleteRunDetail(name, id)
}

func (e *engine) GetRunLog(name string, id int) (*model.RunLog, error) {
	return flow.GetRunLog(name, id)
}

func (e *engine) GetRunJobLog(name string, id int, jobName string, start int) (*model.JobLog, error) {
	return flow.GetRunJobLog(name, id, jobName, start)
}

func (e *engine) GetRunStepLog(name string, id int, jobName string, stepName string) (*output.Step, error) {
	return flow.GetRunStepLog(name, id, jobName, stepName)
}

func (e *engine) RegisterStatusChangeHook(hook func(message model.StatusChangeMessage)) {
	if e.role != RoleMaster {
		return
	}
	logger.Infof("register status change hook")
	e.master.registerStatusChangeHook(hook)
}

// GetCurrentRunStatus 获取当前 run 的状态，不能获取历史 run 的状态
func (e *engine) GetCurrentRunStatus(name string, id int) (model.Status, error) {
	if e.role == RoleWorker {
		return e.worker.GetRunStatus(name, id)
	}
	if status, err := e.worker.GetRunStatus(name, id); err == nil {
		return status, nil
	}
	return e.master.getRunStatus(name, id)
}

// 校验是不是有效的 worker
func (e *engine) IsValidWorker(w string) bool {
	if e.role == RoleWorker {
		return false
	}
	return e.master.isValidWorker(w)
}

func (e *engine) GetWorkRootPath() string {
	return utils.DefaultConfigDir()
}

func readLogLevelFromEnv() string {
	levelStr := os.Getenv("FERRITE_LOG_LEVEL")
	if levelStr == "" {
		return "info"
	}
	return levelStr
}
