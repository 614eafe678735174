package executor

import (
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/queue"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
)

// ExecutorClient 消费执行队列，驱动 Executor 跑 run。
// master 本地执行和 worker 远程执行共用这一个消费者。
type ExecutorClient struct {
	executor   *Executor
	queue      queue.IQueue
	statusChan chan model.StatusChangeMessage
}

func NewExecutorClient(q queue.IQueue, statusChan chan model.StatusChangeMessage) *ExecutorClient {
	return &ExecutorClient{
		executor:   NewExecutor(statusChan),
		queue:      q,
		statusChan: statusChan,
	}
}

func (c *ExecutorClient) Executor() *Executor {
	return c.executor
}

// Main 监听队列，持续处理执行与取消消息
func (c *ExecutorClient) Main() {
	go func() {
		for {
			queueMessage, ok := <-c.queue.Listener()
			if !ok {
				logger.Error("executor client channel closed")
				return
			}
			logger.Infof("executor client receive message: %v", queueMessage)

			switch queueMessage.Command {
			case model.Command_Start:
				// 不同 workflow 可以并行，同一个 workflow 靠 workdir 锁串行
				go c.execute(queueMessage)
			case model.Command_Stop:
				go func(msg model.QueueMessage) {
					if err := c.executor.Cancel(msg.WorkflowName, msg.RunId); err != nil {
						logger.Errorf("cancel run error: %v", err)
					}
				}(queueMessage)
			}
		}
	}()
}

func (c *ExecutorClient) execute(msg model.QueueMessage) {
	// 消息里带了 workflow 定义就先落盘，worker 节点靠这个拿到文件
	if msg.WorkflowFile != "" {
		if err := flow.Save(msg.WorkflowName, msg.WorkflowFile); err != nil {
			logger.Errorf("save workflow error: %v", err)
			c.statusChan <- model.NewStatusChangeMsg(msg.WorkflowName, msg.RunId, model.STATUS_FAIL)
			return
		}
	}
	wf, err := flow.GetObject(msg.WorkflowName)
	if err != nil {
		logger.Errorf("workflow %s not found: %v", msg.WorkflowName, err)
		c.statusChan <- model.NewStatusChangeMsg(msg.WorkflowName, msg.RunId, model.STATUS_FAIL)
		return
	}
	if err := c.executor.Execute(msg.RunId, wf); err != nil {
		logger.Errorf("run %s(%d) failed: %v", msg.WorkflowName, msg.RunId, err)
	}
}
