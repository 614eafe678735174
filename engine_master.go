package engine

import (
	"fmt"
	"time"

	"github.com/ferrite-ci/ferrite-engine/api"
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/dispatcher"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/utils"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
)

type masterEngine struct {
	dispatch         *dispatcher.HttpDispatcher
	recvChan         chan *api.Message
	apiServer        *api.Server
	statusChangeHook func(model.StatusChangeMessage)
}

func newMasterEngine(listenAddress string) (*masterEngine, error) {
	e := &masterEngine{}
	e.recvChan = make(chan *api.Message, 100)
	e.dispatch = dispatcher.NewHttpDispatcher()

	e.apiServer = api.NewServer(listenAddress, e.recvChan)
	e.apiServer.Start()

	e.handleMessage()
	e.healthcheck()
	return e, nil
}

// master 处理 worker 发来的消息
func (e *masterEngine) handleMessage() {
	go func() {
		logger.Debugf("master engine start listen message")
		for {
			msg, ok := <-e.recvChan
			if !ok {
				logger.Error("master engine message channel closed")
				return
			}
			logger.Tracef("master engine recv message: %v", msg)
			switch msg.Type {
			case api.MessageType_REGISTER:
				err := e.dispatch.Register(&model.Node{
					Name:    msg.Name,
					Address: msg.Address,
				})
				if err != nil {
					logger.Debugf("register node: %v", err)
				} else {
					logger.Debugf("register node success: %s@%s", msg.Name, msg.Address)
				}

			case api.MessageType_UNREGISTER:
				err := e.dispatch.UnRegister(&model.Node{
					Name:    msg.Name,
					Address: msg.Address,
				})
				if err != nil {
					logger.Errorf("unregister node error: %v", err)
				}

			case api.MessageType_PING:
				err := e.dispatch.Ping(&model.Node{
					Name:    msg.Name,
					Address: msg.Address,
				})
				if err != nil {
					logger.Errorf("node ping error: %v", err)
				}

			case api.MessageType_STATUS:
				e.handleStatusMessage(msg)

			case api.MessageType_LOG:
				if msg.ExecReq != nil {
					if err := flow.SaveRunLogString(msg.ExecReq.Name, msg.ExecReq.RunId, msg.Log); err != nil {
						logger.Errorf("save run log error: %v", err)
					}
				}

			default:
				logger.Warnf("master engine recv unknown message: %v", msg)
			}
		}
	}()
}

// 状态回传：同步落盘并通知嵌入方注册的 hook
func (e *masterEngine) handleStatusMessage(msg *api.Message) {
	if msg.ExecReq == nil {
		return
	}
	status := model.Status(msg.Status)
	detail, err := flow.GetRunDetail(msg.ExecReq.Name, msg.ExecReq.RunId)
	if err == nil && detail.Status != status {
		detail.Status = status
		if err := flow.SaveRunDetail(msg.ExecReq.Name, detail); err != nil {
			logger.Errorf("save run detail error: %v", err)
		}
	}
	if e.statusChangeHook != nil {
		e.statusChangeHook(model.NewStatusChangeMsg(msg.ExecReq.Name, msg.ExecReq.RunId, status))
	}
}

// 定时摘除心跳超时的节点
func (e *masterEngine) healthcheck() {
	go func() {
		for {
			time.Sleep(time.Second * consts.NODE_PING_INTERVAL)
			e.dispatch.HealthcheckNode()
		}
	}()
}

// dispatchRun 选一个节点把 run 发出去，节点暂时不可用时等一会再试
func (e *masterEngine) dispatchRun(name string, runId int) error {
	yamlString, err := flow.Get(name)
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < 20; i++ {
		node, err := e.dispatch.DispatchNode()
		if err != nil {
			lastErr = err
			time.Sleep(time.Millisecond * 500)
			continue
		}
		err = e.dispatch.SendRun(name, yamlString, runId, node)
		if err == nil {
			logger.Tracef("send run %s(%d) to node %s@%s", name, runId, node.Name, node.Address)
			return nil
		}
		lastErr = err
		// 发不过去的节点摘掉，换下一个
		logger.Warnf("send run to node %s@%s failed: %v", node.Name, node.Address, err)
		e.dispatch.UnRegisterWithKey(utils.GetNodeKey(node.Name, node.Address))
	}
	return fmt.Errorf("dispatch run %s(%d) failed: %v", name, runId, lastErr)
}

func (e *masterEngine) cancelRun(name string, runId int) error {
	return e.dispatch.CancelRun(name, runId)
}

func (e *masterEngine) registerStatusChangeHook(hook func(message model.StatusChangeMessage)) {
	e.statusChangeHook = hook
}

func (e *masterEngine) getRunStatus(name string, runId int) (model.Status, error) {
	detail, err := flow.GetRunDetail(name, runId)
	if err != nil {
		return model.STATUS_NOTRUN, err
	}
	return detail.Status, nil
}

func (e *masterEngine) isValidWorker(w string) bool {
	return e.dispatch.IsValidNode(w)
}
