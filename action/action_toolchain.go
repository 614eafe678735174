package action

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/utils"
)

// ToolchainAction 把语言运行时固定到指定版本。
// 找不到能提供这个版本的运行时就算失败，整个 run 终止。
// 找到后把它所在目录放到 job 环境 PATH 最前面，后续 step 直接用。
type ToolchainAction struct {
	toolchain string
	version   string
	ctx       context.Context
	output    *output.Output
}

func NewToolchainAction(step model.Step, c context.Context, output *output.Output) *ToolchainAction {
	return &ToolchainAction{
		toolchain: step.With["toolchain"],
		version:   step.With["version"],
		ctx:       c,
		output:    output,
	}
}

func (a *ToolchainAction) Pre() error {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	params, ok := stack["parameter"].(map[string]string)
	if ok {
		a.toolchain = utils.ReplaceWithParam(a.toolchain, params)
		a.version = utils.ReplaceWithParam(a.version, params)
	}
	if a.toolchain == "" {
		return errors.New("toolchain is empty")
	}
	if a.version == "" {
		return errors.New("toolchain version is empty, version must be pinned")
	}
	return nil
}

func (a *ToolchainAction) Hook() (*model.ActionResult, error) {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	env, _ := stack["env"].([]string)
	workdir, _ := stack["workdir"].(string)

	// 先找带版本号的可执行文件（python3.9 这种），找不到再退回裸名字校验版本
	binPath, err := a.lookup(env, workdir, a.toolchain+a.version)
	if err != nil {
		binPath, err = a.lookup(env, workdir, a.toolchain)
		if err != nil {
			return nil, fmt.Errorf("toolchain %s %s not available: %w", a.toolchain, a.version, err)
		}
	}

	versionOut, err := a.versionOf(env, workdir, binPath)
	if err != nil {
		return nil, fmt.Errorf("toolchain %s %s not available: %w", a.toolchain, a.version, err)
	}
	if !containsVersion(versionOut, a.version) {
		return nil, fmt.Errorf("toolchain %s reports %q, pinned version is %s", a.toolchain, strings.TrimSpace(versionOut), a.version)
	}

	a.output.WriteLine(fmt.Sprintf("using %s: %s", binPath, strings.TrimSpace(versionOut)))
	logger.Infof("toolchain %s %s resolved to %s", a.toolchain, a.version, binPath)

	// PATH 前置，保证后面 step 拿到的就是这个版本
	stack["env"] = prependPath(env, filepath.Dir(binPath))
	return nil, nil
}

func (a *ToolchainAction) Post() error {
	return nil
}

func (a *ToolchainAction) lookup(env []string, workdir, name string) (string, error) {
	cmd := utils.NewCommand(a.ctx, "bash", "-c", "command -v "+name)
	cmd.Dir = workdir
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}

func (a *ToolchainAction) versionOf(env []string, workdir, binPath string) (string, error) {
	cmd := utils.NewCommand(a.ctx, binPath, "--version")
	cmd.Dir = workdir
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// containsVersion 在版本输出里找 pin 的精确命中，
// 命中位置前后都不能再接数字，3.1 不能命中 3.19 或 13.1
func containsVersion(out, pin string) bool {
	if pin == "" {
		return false
	}
	for start := 0; start+len(pin) <= len(out); {
		i := strings.Index(out[start:], pin)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(pin)
		beforeOk := i == 0 || !isDigit(out[i-1])
		afterOk := end == len(out) || !isDigit(out[end])
		if beforeOk && afterOk {
			return true
		}
		start = i + 1
	}
	return false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func prependPath(env []string, dir string) []string {
	for i := range env {
		if strings.HasPrefix(env[i], "PATH=") {
			env[i] = "PATH=" + dir + ":" + strings.TrimPrefix(env[i], "PATH=")
			return env
		}
	}
	return append(env, "PATH="+dir)
}
