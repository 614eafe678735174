package model

type Status int

const (
	STATUS_NOTRUN Status = iota
	STATUS_RUNNING
	STATUS_FAIL
	STATUS_SUCCESS
	STATUS_STOP
)

// Terminal 判断状态是否为终态，终态之后不会再变化
func (s Status) Terminal() bool {
	return s == STATUS_SUCCESS || s == STATUS_FAIL || s == STATUS_STOP
}

func (s Status) String() string {
	switch s {
	case STATUS_NOTRUN:
		return "notrun"
	case STATUS_RUNNING:
		return "running"
	case STATUS_FAIL:
		return "fail"
	case STATUS_SUCCESS:
		return "success"
	case STATUS_STOP:
		return "stop"
	default:
		return "unknown"
	}
}
