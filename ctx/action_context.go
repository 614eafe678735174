package ctx

import (
	"context"
	"fmt"

	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/secret"
)

const STACK = "stack"

type ActionContext struct {
	step   model.Step
	ctx    context.Context
	output *output.Output
}

func NewActionContext(step model.Step, ctx context.Context, output *output.Output) ActionContext {
	return ActionContext{
		step:   step,
		ctx:    ctx,
		output: output,
	}
}

func (a *ActionContext) GetStack() map[string]interface{} {
	return a.ctx.Value(STACK).(map[string]interface{})
}

func (a *ActionContext) GetStackValue(key string) any {
	return a.GetStack()[key]
}

func (a *ActionContext) GetWorkdir() string {
	return a.GetStack()["workdir"].(string)
}

func (a *ActionContext) GetRunId() string {
	return a.GetStack()["id"].(string)
}

// GetEnv 返回 job 当前的环境变量，前面 step 导出的变量也在里面
func (a *ActionContext) GetEnv() []string {
	return a.GetStack()["env"].([]string)
}

// SetEnv 更新 job 环境变量，对后续 step 可见
func (a *ActionContext) SetEnv(env []string) {
	a.GetStack()["env"] = env
}

func (a *ActionContext) WriteLine(content string) {
	if a.output != nil {
		a.output.WriteLine(content)
	}
}

func (a *ActionContext) GetStepWith(key string) string {
	return a.step.With[key]
}

func (a *ActionContext) GetParameters() map[string]string {
	return a.GetStackValue("parameter").(map[string]string)
}

// ResolveSecret 解析 step 引用的 secret，值只会进内存，不落盘
func (a *ActionContext) ResolveSecret(name string) (string, error) {
	resolver, ok := a.GetStackValue("secrets").(secret.Resolver)
	if !ok {
		return "", fmt.Errorf("secret %s is not set", name)
	}
	value, err := resolver.Resolve(name)
	if err != nil {
		return "", err
	}
	if a.output != nil {
		a.output.SetMaskValues(value)
	}
	return value, nil
}
