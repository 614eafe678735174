package action

import (
	"context"

	"github.com/ferrite-ci/ferrite-engine/ctx"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
)

const STACK = ctx.STACK

// ActionHandler 一个 step 的执行器。
// Pre 做参数解析和前置检查，Hook 真正执行，Post 在整个 job 结束时倒序调用做清理。
type ActionHandler interface {
	Pre() error
	Hook() (*model.ActionResult, error)
	Post() error
}

// NewAction 根据 step 的 uses 字段解析出 ActionHandler，
// uses 为空或 shell 时按命令脚本执行
func NewAction(step model.Step, c context.Context, output *output.Output) ActionHandler {
	switch step.Uses {
	case "", "shell":
		return NewShellAction(step, c, output)
	case "checkout", "git-checkout":
		return NewCheckoutAction(step, c, output)
	case "setup-toolchain":
		return NewToolchainAction(step, c, output)
	case "snyk-scan":
		return NewSnykScanAction(step, c, output)
	default:
		return nil
	}
}
