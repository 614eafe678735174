package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ferrite-ci/ferrite-engine/api"
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/executor"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/queue"
	"github.com/ferrite-ci/ferrite-engine/utils"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
)

type workerEngine struct {
	name, address string
	masterAddress string
	listenAddress string
	executeClient *executor.ExecutorClient
	apiClient     *api.Client
	apiServer     *api.Server
	recvChan      chan *api.Message
	execQueue     queue.IQueue
	statusChan    chan model.StatusChangeMessage
	doneRunList   sync.Map
}

func newWorkerEngine(masterAddress string, listenPort int) (*workerEngine, error) {
	e := &workerEngine{}
	e.name, _ = utils.GetMyHostname()
	if strings.HasPrefix(masterAddress, "127.0.0.1") {
		e.address = "127.0.0.1"
	} else {
		e.address, _ = utils.GetMyIP()
	}
	e.masterAddress = masterAddress
	// 注册给 master 的地址，master 往这里投递执行消息
	e.listenAddress = fmt.Sprintf("%s:%d", e.address, listenPort)

	e.recvChan = make(chan *api.Message, 100)
	e.execQueue = queue.NewQueue()
	e.statusChan = make(chan model.StatusChangeMessage, 100)
	e.apiClient = api.NewClient()
	e.executeClient = executor.NewExecutorClient(e.execQueue, e.statusChan)

	e.apiServer = api.NewServer(fmt.Sprintf("0.0.0.0:%d", listenPort), e.recvChan)
	e.apiServer.Start()

	e.handleMessage()
	if err := e.register(); err != nil {
		return nil, err
	}
	e.keepAlive()

	e.executeClient.Main()
	e.handleStatusChange()

	return e, nil
}

// 处理 master 投递过来的消息，这里只关心任务执行相关的
func (e *workerEngine) handleMessage() {
	logger.Debug("worker engine start handle message")
	go func() {
		for {
			msg := <-e.recvChan
			switch msg.Type {
			case api.MessageType_EXECUTE:
				// 消息体不完整直接丢弃，不能让整个 worker 挂掉
				if msg.ExecReq == nil {
					logger.Warnf("worker engine drop execute message without exec request: %v", msg)
					continue
				}
				logger.Tracef("worker engine receive execute message: %v", msg)
				e.execQueue.Push(model.NewStartQueueMsg(msg.ExecReq.Name, msg.ExecReq.WorkflowFile, msg.ExecReq.RunId))
				e.sendLog(msg.ExecReq.Name, msg.ExecReq.RunId)
			case api.MessageType_CANCEL:
				if msg.ExecReq == nil {
					logger.Warnf("worker engine drop cancel message without exec request: %v", msg)
					continue
				}
				logger.Tracef("worker engine receive cancel message: %v", msg)
				e.execQueue.Push(model.NewStopQueueMsg(msg.ExecReq.Name, msg.ExecReq.RunId))
			default:
				logger.Warnf("worker engine receive unexpected message: %v", msg)
			}
		}
	}()
}

// 向 master 注册自己
func (e *workerEngine) register() error {
	msg := &api.Message{
		Type:    api.MessageType_REGISTER,
		Name:    e.name,
		Address: e.listenAddress,
	}
	var err error
	for i := 0; i < 5; i++ {
		err = e.apiClient.Send(context.Background(), e.masterAddress, msg)
		if err == nil {
			logger.Trace("worker engine register success")
			return nil
		}
		logger.Warnf("worker engine register failed, retry: %v", err)
		time.Sleep(time.Second)
	}
	return fmt.Errorf("register to master %s failed: %v", e.masterAddress, err)
}

// 向 master 定时发送心跳
func (e *workerEngine) keepAlive() {
	go func() {
		for {
			time.Sleep(time.Second * consts.NODE_PING_INTERVAL)
			err := e.apiClient.Send(context.Background(), e.masterAddress, &api.Message{
				Type:    api.MessageType_PING,
				Name:    e.name,
				Address: e.listenAddress,
			})
			if err != nil {
				logger.Errorf("worker engine ping error: %v", err)
			}
		}
	}()
}

// run 结束后把终态回传给 master
func (e *workerEngine) handleStatusChange() {
	go func() {
		for {
			msg := <-e.statusChan
			if msg.Status.Terminal() {
				e.doneRunList.Store(utils.FormatRunToString(msg.WorkflowName, msg.RunId), struct{}{})
			}
			err := e.apiClient.Send(context.Background(), e.masterAddress, &api.Message{
				Type:    api.MessageType_STATUS,
				Name:    e.name,
				Address: e.listenAddress,
				Status:  int(msg.Status),
				ExecReq: &api.ExecuteReq{
					Name:  msg.WorkflowName,
					RunId: msg.RunId,
				},
			})
			if err != nil {
				logger.Errorf("worker engine send status error: %v", err)
			}
		}
	}()
}

// 回传日志，0.5s 一次，run 结束后再补一次，免得日志不完整
func (e *workerEngine) sendLog(name string, runId int) {
	go func() {
		for {
			e.sendLogOnce(name, runId)

			doneRunKey := utils.FormatRunToString(name, runId)
			if _, ok := e.doneRunList.Load(doneRunKey); ok {
				e.doneRunList.Delete(doneRunKey)
				e.sendLogOnce(name, runId)
				return
			}
			time.Sleep(time.Millisecond * 500)
		}
	}()
}

func (e *workerEngine) sendLogOnce(name string, runId int) {
	logString, err := flow.GetRunLogString(name, runId)
	if err != nil {
		return
	}
	err = e.apiClient.Send(context.Background(), e.masterAddress, &api.Message{
		Type:    api.MessageType_LOG,
		Name:    e.name,
		Address: e.listenAddress,
		Log:     logString,
		ExecReq: &api.ExecuteReq{
			Name:  name,
			RunId: runId,
		},
	})
	if err != nil {
		logger.Errorf("worker engine send log error: %v", err)
	}
}

func (e *workerEngine) GetRunStatus(name string, id int) (model.Status, error) {
	return e.executeClient.Executor().GetRunStatus(name, id)
}
