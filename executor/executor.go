package executor

import (
	"context"
	"fmt"
	"os"
	"path"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/ferrite-ci/ferrite-engine/action"
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/secret"
	"github.com/ferrite-ci/ferrite-engine/utils"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
)

type IExecutor interface {
	// Execute 执行一次 workflow run
	Execute(id int, wf *model.Workflow) error
	Cancel(name string, id int) error
}

type Executor struct {
	cancelMap    map[string]func() // key: workflowName/runID, value: cancelFunc
	StatusChan   chan model.StatusChangeMessage
	Secrets      secret.Resolver
	stepTimerMap sync.Map // key: workflowName/runID, value: stepTimer
}

func NewExecutor(statusChan chan model.StatusChangeMessage) *Executor {
	return &Executor{
		cancelMap:  make(map[string]func()),
		StatusChan: statusChan,
		Secrets:    secret.NewEnvResolver(),
	}
}

// Execute 执行任务：job 按依赖排序后串行执行，任何 step 失败则整个 run 失败，
// 后面的 step 和 job 都不再执行
func (e *Executor) Execute(id int, wf *model.Workflow) error {

	// 1. 解析依赖，确定 job 执行顺序
	jobDetails, err := wf.JobSort()
	runWrapper := &model.RunDetail{
		Id:         id,
		Workflow:   *wf,
		Status:     model.STATUS_NOTRUN,
		JobDetails: jobDetails,
		ActionResult: model.ActionResult{
			ScanReports: make([]model.ScanReport, 0),
		},
	}
	// run 是 master 创建好的，从落盘记录里取触发方式和分支
	if saved, loadErr := flow.GetRunDetail(wf.Name, id); loadErr == nil {
		runWrapper.TriggerMode = saved.TriggerMode
		runWrapper.Branch = saved.Branch
	}

	// 分支太多，不确定会从哪个分支 return，所以使用 defer，保证一定会将最终结果发送到 StatusChan
	defer func() {
		e.StatusChan <- model.NewStatusChangeMsg(runWrapper.Name, runWrapper.Id, runWrapper.Status)
		logger.Infof("send status change message to chan, workflow: %s, run id: %d, status: %d", runWrapper.Name, runWrapper.Id, runWrapper.Status)
		// step 定时器也需要删除，避免出现意料之外的报错
		e.stepTimerMap.Delete(utils.FormatRunToString(runWrapper.Name, runWrapper.Id))
	}()

	if err != nil {
		runWrapper.Status = model.STATUS_FAIL
		runWrapper.Error = err.Error()
		flow.SaveRunDetail(wf.Name, runWrapper)
		return err
	}
	go e.handleTimerListener()

	// 2. 初始化执行器上下文，run 的工作目录每次都重建，不继承上一次的内容
	env := os.Environ()
	env = append(env, "PIPELINE_NAME="+wf.Name)
	env = append(env, "PIPELINE_ID="+strconv.Itoa(id))

	workRoot := utils.DefaultWorkRoot()
	workdir := path.Join(workRoot, wf.Name)

	// 同一个 workflow 的 workdir 独占，避免并发 run 互相踩
	lock, err := utils.Lock("workdir/" + wf.Name)
	if err != nil {
		runWrapper.Status = model.STATUS_FAIL
		runWrapper.Error = err.Error()
		flow.SaveRunDetail(wf.Name, runWrapper)
		return err
	}
	defer utils.Unlock(lock)

	os.RemoveAll(workdir)
	if err = os.MkdirAll(workdir, os.ModePerm); err != nil {
		runWrapper.Status = model.STATUS_FAIL
		runWrapper.Error = err.Error()
		flow.SaveRunDetail(wf.Name, runWrapper)
		return err
	}
	defer os.RemoveAll(workdir)

	engineContext := make(map[string]any)
	engineContext["workRoot"] = workRoot
	engineContext["workdir"] = workdir
	engineContext["name"] = wf.Name
	engineContext["id"] = fmt.Sprintf("%d", id)
	engineContext["env"] = env
	engineContext["branch"] = runWrapper.Branch
	engineContext["secrets"] = e.Secrets

	if wf.Parameter == nil {
		wf.Parameter = make(map[string]string)
	}
	engineContext["parameter"] = wf.Parameter

	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), "stack", engineContext))
	defer cancel()

	// 将取消 hook 记录到内存中，用于中断程序
	runKey := utils.FormatRunToString(wf.Name, id)
	e.cancelMap[runKey] = cancel

	// 清理堆栈
	var stack utils.Stack[action.ActionHandler]

	runWrapper.Status = model.STATUS_RUNNING
	runWrapper.StartTime = time.Now()

	executeAction := func(ah action.ActionHandler, run *model.RunDetail) (err error) {
		// 发生宕机时折算成 step 失败，不能让 run 挂掉
		defer recoverActionPanic(&err)
		if runWrapper.Status != model.STATUS_RUNNING {
			return nil
		}
		if ah == nil {
			logger.Errorf("action handler is nil, workflow: %s, run id: %d", run.Name, run.Id)
			return fmt.Errorf("unknown action")
		}
		err = ah.Pre()
		if err != nil {
			run.Status = model.STATUS_FAIL
			logger.Errorf("action pre hook error, workflow: %s, run id: %d, error: %s", run.Name, run.Id, err.Error())
			return err
		}
		logger.Tracef("action pre hook success, workflow: %s, run id: %d", run.Name, run.Id)
		stack.Push(ah)
		actionResult, err := ah.Hook()
		if actionResult != nil && len(actionResult.ScanReports) > 0 {
			runWrapper.ScanReports = append(runWrapper.ScanReports, actionResult.ScanReports...)
		}
		if actionResult != nil && actionResult.CodeInfo != "" {
			runWrapper.CodeInfo = actionResult.CodeInfo
		}
		if err != nil {
			run.Status = model.STATUS_FAIL
			return err
		}
		return err
	}

	runWrapper.Output = output.New(wf.Name, runWrapper.Id)
	runWrapper.Output.WriteLine(fmt.Sprintf("trigger: %s", runWrapper.TriggerMode))

	var runDone = make(chan struct{})
	defer close(runDone)

	// 定时保存运行状态，以更新 step 的运行时间
	go func(runW *model.RunDetail) {
		for {
			select {
			case <-runDone:
				return
			default:
				for i := range runW.JobDetails {
					for j := range runW.JobDetails[i].Job.Steps {
						if runW.JobDetails[i].Job.Steps[j].Status == model.STATUS_RUNNING {
							runW.JobDetails[i].Job.Steps[j].Duration = time.Since(runW.JobDetails[i].Job.Steps[j].StartTime).Milliseconds()
						}
					}
				}
				flow.SaveRunDetail(runW.Name, runW)
				time.Sleep(time.Second * 2)
			}
		}
	}(runWrapper)

	for index, jobWrapper := range runWrapper.JobDetails {
		logger.Infof("job start: %s", jobWrapper.Name)
		jobWrapper.Status = model.STATUS_RUNNING
		jobWrapper.StartTime = time.Now()
		runWrapper.JobDetails[index] = jobWrapper
		runWrapper.Output.NewJob(jobWrapper.Name)
		flow.SaveRunDetail(runWrapper.Name, runWrapper)

		for stepIndex, step := range jobWrapper.Job.Steps {
			jobWrapper.Job.Steps[stepIndex].StartTime = time.Now()
			jobWrapper.Job.Steps[stepIndex].Status = model.STATUS_RUNNING
			flow.SaveRunDetail(runWrapper.Name, runWrapper)
			// 如果 step 超时，则调用 cancel，在这里存储该 run 的计时器
			// 每次新 step 时，都会重新设置该计时器，所以不需要存储到底是哪个 step
			e.stepTimerMap.Store(runKey, newStepTimer())

			runWrapper.Output.NewStep(step.Name)

			// step 声明的 secret 先解析，缺失直接算 step 失败，不会带着空值去执行
			err = e.injectStepSecrets(step, engineContext, runWrapper.Output)
			if err == nil {
				ah := action.NewAction(step, ctx, runWrapper.Output)
				if ah == nil {
					err = fmt.Errorf("unsupported step uses: %s", step.Uses)
					runWrapper.Status = model.STATUS_FAIL
					runWrapper.Output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
				} else {
					err = executeAction(ah, runWrapper)
				}
			} else {
				runWrapper.Status = model.STATUS_FAIL
				runWrapper.Output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
			}
			delete(engineContext, "stepSecrets")

			jobWrapper.Job.Steps[stepIndex].Duration = time.Since(jobWrapper.Job.Steps[stepIndex].StartTime).Milliseconds()
			if err != nil {
				jobWrapper.Job.Steps[stepIndex].Status = model.STATUS_FAIL
				err = &model.StepError{JobName: jobWrapper.Name, StepName: step.Name, Err: err}
				break
			}
			jobWrapper.Job.Steps[stepIndex].Status = model.STATUS_SUCCESS
			flow.SaveRunDetail(runWrapper.Name, runWrapper)
		}

		for !stack.IsEmpty() {
			ah, _ := stack.Pop()
			_ = ah.Post()
		}

		if err != nil {
			jobWrapper.Status = model.STATUS_FAIL
		} else {
			jobWrapper.Status = model.STATUS_SUCCESS
		}
		jobWrapper.Duration = time.Since(jobWrapper.StartTime).Milliseconds()
		runWrapper.JobDetails[index] = jobWrapper
		flow.SaveRunDetail(runWrapper.Name, runWrapper)
		logger.Infof("job finish: %s, status: %s", jobWrapper.Name, jobWrapper.Status)
		if err != nil {
			cancel()
			break
		}
	}
	runWrapper.Output.Done()

	delete(e.cancelMap, runKey)
	if err == nil {
		runWrapper.Status = model.STATUS_SUCCESS
	} else {
		runWrapper.Status = model.STATUS_FAIL
		runWrapper.Error = err.Error()
	}

	runWrapper.Duration = time.Since(runWrapper.StartTime).Milliseconds()
	flow.SaveRunDetail(runWrapper.Name, runWrapper)

	return err
}

// injectStepSecrets 解析 step 声明的 secrets，注入 step 级环境并注册脱敏
func (e *Executor) injectStepSecrets(step model.Step, engineContext map[string]any, out *output.Output) error {
	if len(step.Secrets) == 0 {
		return nil
	}
	secretEnv := make([]string, 0, len(step.Secrets))
	for _, name := range step.Secrets {
		value, err := e.Secrets.Resolve(name)
		if err != nil {
			return err
		}
		out.SetMaskValues(value)
		secretEnv = append(secretEnv, name+"="+value)
	}
	engineContext["stepSecrets"] = secretEnv
	return nil
}

// recoverActionPanic 把 action 里的任何 panic 折算成 step 失败
func recoverActionPanic(errp *error) {
	switch rErr := recover().(type) {
	case nil:
	case runtime.Error: // 运行时错误
		logger.Errorf("runtime error: %s", rErr)
		*errp = fmt.Errorf("runtime error: %s", rErr)
	default:
		logger.Errorf("action panic: %v", rErr)
		*errp = fmt.Errorf("action panic: %v", rErr)
	}
}

// Cancel 取消
func (e *Executor) Cancel(name string, id int) error {
	runKey := utils.FormatRunToString(name, id)
	cancel, ok := e.cancelMap[runKey]
	if ok {
		cancel()
		delete(e.cancelMap, runKey)
	} else {
		logger.Errorf("run cancel function not found: %s/%d", name, id)
	}
	e.StatusChan <- model.NewStatusChangeMsg(name, id, model.STATUS_STOP)
	return nil
}

func (e *Executor) GetRunStatus(name string, id int) (model.Status, error) {
	_, ok := e.cancelMap[utils.FormatRunToString(name, id)]
	if ok {
		return model.STATUS_RUNNING, nil
	}
	return model.STATUS_NOTRUN, fmt.Errorf("run not found")
}

// 定时监听，以在任务超时时将其取消
func (e *Executor) handleTimerListener() {
	for {
		e.stepTimerMap.Range(func(key, value any) bool {
			timer := value.(*stepTimer)
			if timer.isTimeout() {
				name, id, err := utils.GetRunNameAndIDFromFormatString(key.(string))
				if err != nil {
					logger.Errorf("get run name and id from format string error: %v, key: %s", err, key.(string))
					return true
				}
				err = e.Cancel(name, id)
				if err != nil {
					logger.Errorf("cancel run error: %v, key: %s", err, key.(string))
				}
				e.stepTimerMap.Delete(key)
			}
			return true
		})
		time.Sleep(time.Minute)
	}
}

type stepTimer struct {
	startTime time.Time
}

func newStepTimer() *stepTimer {
	return &stepTimer{
		startTime: time.Now(),
	}
}

// 如果单个步骤超时了，就取消，超时时间暂定为 30 分钟
func (t *stepTimer) isTimeout() bool {
	return time.Since(t.startTime) > time.Minute*consts.STEP_TIMEOUT_MINUTE
}
