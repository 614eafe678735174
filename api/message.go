package api

// MessageType 节点间消息类型
type MessageType int

const (
	MessageType_REGISTER MessageType = iota + 1
	MessageType_UNREGISTER
	MessageType_PING
	MessageType_EXECUTE
	MessageType_CANCEL
	MessageType_STATUS
	MessageType_LOG
)

// Message master 和 worker 之间传递的消息，走 HTTP inbox，
// POST 的响应就是送达确认
type Message struct {
	Type    MessageType `json:"type"`
	Name    string      `json:"name"`
	Address string      `json:"address"`
	ExecReq *ExecuteReq `json:"execReq,omitempty"`
	Status  int         `json:"status,omitempty"`
	Log     string      `json:"log,omitempty"`
}

// ExecuteReq 执行（或取消）一次 run 的请求
type ExecuteReq struct {
	Name         string `json:"name"`
	WorkflowFile string `json:"workflowFile,omitempty"`
	RunId        int    `json:"runId"`
}
