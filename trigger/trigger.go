package trigger

import (
	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/model"
)

// Matches 判断事件是否命中 workflow 配置的触发器。
// manual 事件需要配置了 workflow_dispatch，push 事件需要配置了 push 且分支命中过滤器，
// 过滤器为空表示所有分支都命中。不产生任何副作用。
func Matches(triggers model.Triggers, event model.Event) bool {
	switch event.Kind {
	case model.EVENT_KIND_MANUAL:
		return triggers.WorkflowDispatch != nil
	case model.EVENT_KIND_PUSH:
		if triggers.Push == nil {
			return false
		}
		if len(triggers.Push.Branches) == 0 {
			return true
		}
		for _, branch := range triggers.Push.Branches {
			if branch == event.Branch {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Mode 返回事件对应的触发方式，记录在 run detail 中
func Mode(event model.Event) string {
	if event.Kind == model.EVENT_KIND_PUSH {
		return consts.TRIGGER_MODE_PUSH
	}
	return consts.TRIGGER_MODE_MANUAL
}
