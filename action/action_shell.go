package action

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/utils"
)

// ShellAction 执行 step 的 run 脚本。
// 脚本在 job 的 workdir 里跑，环境变量来自 stack，
// 写入 $PIPELINE_ENV 文件的 KEY=VALUE 会在脚本成功后合并进 job 环境，
// 这样前面 step 激活的环境（比如 virtualenv）对后面 step 仍然有效。
type ShellAction struct {
	name       string
	command    string
	scriptFile string
	ctx        context.Context
	output     *output.Output
}

func NewShellAction(step model.Step, c context.Context, output *output.Output) *ShellAction {
	name := step.Name
	if name == "" {
		name = "shell"
	}
	return &ShellAction{
		name:    name,
		command: step.Run,
		ctx:     c,
		output:  output,
	}
}

func (a *ShellAction) Pre() error {
	if strings.TrimSpace(a.command) == "" {
		return errors.New("run script is empty")
	}
	stack := a.ctx.Value(STACK).(map[string]interface{})
	params, ok := stack["parameter"].(map[string]string)
	if ok {
		a.command = utils.ReplaceWithParam(a.command, params)
	}
	return nil
}

func (a *ShellAction) Hook() (*model.ActionResult, error) {
	stack := a.ctx.Value(STACK).(map[string]interface{})

	workdir, ok := stack["workdir"].(string)
	if !ok {
		return nil, errors.New("workdir is empty")
	}
	env, _ := stack["env"].([]string)
	// 拷贝一份，step 级别注入的 secret 不能漏进 job 环境
	env = append([]string{}, env...)
	if secretEnv, ok := stack["stepSecrets"].([]string); ok {
		env = append(env, secretEnv...)
	}

	scriptFile, err := a.writeScript(workdir)
	if err != nil {
		return nil, err
	}
	a.scriptFile = scriptFile

	envFile := filepath.Join(workdir, consts.EXPORT_ENV_FILE_NAME)
	env = append(env, "PIPELINE_ENV="+envFile)

	cmd := utils.NewCommand(a.ctx, "bash", "-e", scriptFile)
	cmd.Dir = workdir
	cmd.Env = env

	for _, line := range strings.Split(a.command, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a.output.WriteCommandLine(line)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		a.output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
		return nil, err
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		a.output.WriteLine(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		a.output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
		logger.Errorf("step %s failed: %s", a.name, err)
		return nil, err
	}

	// 脚本成功后把导出的环境变量合并回 job 环境
	a.foldExportedEnv(stack, envFile)

	return nil, nil
}

func (a *ShellAction) Post() error {
	if a.scriptFile != "" {
		_ = os.Remove(a.scriptFile)
	}
	return nil
}

// 把脚本写到 workdir 里的临时文件，避免超长命令行
func (a *ShellAction) writeScript(workdir string) (string, error) {
	if err := os.MkdirAll(workdir, os.ModePerm); err != nil {
		return "", err
	}
	scriptFile := filepath.Join(workdir, fmt.Sprintf(".pipeline_step_%s.sh", utils.RandSeq(8)))
	if err := os.WriteFile(scriptFile, []byte(a.command), 0755); err != nil {
		return "", err
	}
	return scriptFile, nil
}

func (a *ShellAction) foldExportedEnv(stack map[string]interface{}, envFile string) {
	content, err := os.ReadFile(envFile)
	if err != nil {
		return
	}
	env, _ := stack["env"].([]string)
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "export ")
		if line == "" || !strings.Contains(line, "=") {
			continue
		}
		logger.Tracef("step %s exported env: %s", a.name, strings.SplitN(line, "=", 2)[0])
		env = mergeEnv(env, line)
	}
	stack["env"] = env
	// 清空，下一个 step 从头导出
	_ = os.Truncate(envFile, 0)
}

// mergeEnv 追加或覆盖同名变量
func mergeEnv(env []string, kv string) []string {
	key := strings.SplitN(kv, "=", 2)[0] + "="
	for i := range env {
		if strings.HasPrefix(env[i], key) {
			env[i] = kv
			return env
		}
	}
	return append(env, kv)
}
