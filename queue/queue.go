package queue

import (
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
)

type IQueue interface {
	Push(msg model.QueueMessage)
	Listener() chan model.QueueMessage
}

// Queue 内存执行队列，master 往里投递，executor client 消费
type Queue struct {
	channel chan model.QueueMessage
}

func NewQueue() *Queue {
	return &Queue{
		channel: make(chan model.QueueMessage, 100),
	}
}

func (q *Queue) Push(msg model.QueueMessage) {
	logger.Debugf("queue push: %s(%d), command: %d", msg.WorkflowName, msg.RunId, msg.Command)
	q.channel <- msg
}

func (q *Queue) Listener() chan model.QueueMessage {
	return q.channel
}
