package action

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/utils"
)

// CheckoutAction 拉取代码。
// 总是保证完整的提交历史：浅克隆会被 unshallow，
// 后面的 step（测试、扫描）依赖历史数据存在。
type CheckoutAction struct {
	repoUrl string
	branch  string
	workdir string
	ctx     context.Context
	output  *output.Output
}

func NewCheckoutAction(step model.Step, c context.Context, output *output.Output) *CheckoutAction {
	return &CheckoutAction{
		repoUrl: step.With["url"],
		branch:  step.With["branch"],
		ctx:     c,
		output:  output,
	}
}

func (a *CheckoutAction) Pre() error {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	params, ok := stack["parameter"].(map[string]string)
	if ok {
		a.repoUrl = utils.ReplaceWithParam(a.repoUrl, params)
		a.branch = utils.ReplaceWithParam(a.branch, params)
	}
	if a.repoUrl == "" {
		return errors.New("checkout url is empty")
	}
	if a.branch == "" {
		if branch, ok := stack["branch"].(string); ok && branch != "" {
			a.branch = branch
		} else {
			a.branch = "master"
		}
	}
	workdir, ok := stack["workdir"].(string)
	if !ok {
		return errors.New("workdir is empty")
	}
	a.workdir = workdir
	return nil
}

func (a *CheckoutAction) Hook() (*model.ActionResult, error) {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	env, _ := stack["env"].([]string)

	if err := os.MkdirAll(a.workdir, os.ModePerm); err != nil {
		return nil, err
	}

	if !isGitDir(a.workdir) {
		if err := a.execGit(env, "", "clone", a.repoUrl, a.workdir); err != nil {
			return nil, err
		}
	} else {
		if err := a.execGit(env, a.workdir, "fetch", "origin"); err != nil {
			return nil, err
		}
	}

	// 显式要求完整历史，浅克隆的话补全
	if isFileExist(filepath.Join(a.workdir, ".git", "shallow")) {
		if err := a.execGit(env, a.workdir, "fetch", "--unshallow"); err != nil {
			return nil, err
		}
	}

	branches, err := a.gitOutput(env, a.workdir, "branch", "-a")
	if err != nil {
		return nil, err
	}
	if !containsBranch(branches, a.branch) {
		return nil, fmt.Errorf("branch %s not found", a.branch)
	}
	if err := a.execGit(env, a.workdir, "checkout", a.branch); err != nil {
		return nil, err
	}

	rev, err := a.gitOutput(env, a.workdir, "rev-parse", "HEAD")
	if err != nil {
		return nil, err
	}
	rev = strings.TrimSpace(rev)
	a.output.WriteLine("checked out " + a.branch + " at " + rev)

	return &model.ActionResult{CodeInfo: rev}, nil
}

func (a *CheckoutAction) Post() error {
	return nil
}

func (a *CheckoutAction) execGit(env []string, dir string, args ...string) error {
	a.output.WriteCommandLine("git " + strings.Join(args, " "))
	cmd := utils.NewCommand(a.ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		a.output.WriteLine(string(out))
	}
	if err != nil {
		logger.Errorf("git %s failed: %s", strings.Join(args, " "), err)
		return err
	}
	return nil
}

func (a *CheckoutAction) gitOutput(env []string, dir string, args ...string) (string, error) {
	cmd := utils.NewCommand(a.ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err != nil {
		a.output.WriteLine(string(out))
		return "", err
	}
	return string(out), nil
}

// containsBranch 判断 git branch -a 的输出里有没有目标分支
func containsBranch(branchOutput, branch string) bool {
	for _, line := range strings.Split(branchOutput, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name := strings.Fields(line)[0]
		if name == branch {
			return true
		}
		if strings.HasPrefix(name, "remotes/origin/") && strings.TrimPrefix(name, "remotes/origin/") == branch {
			return true
		}
	}
	return false
}

func isGitDir(dir string) bool {
	return isFileExist(filepath.Join(dir, ".git"))
}

func isFileExist(path string) bool {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}
