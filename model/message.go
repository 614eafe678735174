package model

type Command int

const (
	Command_Start Command = iota
	Command_Stop
)

// QueueMessage worker 执行队列里的消息
type QueueMessage struct {
	WorkflowName string
	WorkflowFile string
	RunId        int
	Command      Command
	Node         *Node
}

func NewStartQueueMsg(name, file string, runId int) QueueMessage {
	return QueueMessage{
		WorkflowName: name,
		WorkflowFile: file,
		RunId:        runId,
		Command:      Command_Start,
	}
}

func NewStopQueueMsg(name string, runId int) QueueMessage {
	return QueueMessage{
		WorkflowName: name,
		RunId:        runId,
		Command:      Command_Stop,
	}
}

// StatusChangeMessage run 状态变化的通知消息
type StatusChangeMessage struct {
	WorkflowName string
	RunId        int
	Status       Status
}

func NewStatusChangeMsg(name string, runId int, status Status) StatusChangeMessage {
	return StatusChangeMessage{
		name,
		runId,
		status,
	}
}

// Node 一个 worker 节点
type Node struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}
