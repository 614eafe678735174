package action

import (
	"context"
	"os"
	"testing"

	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/stretchr/testify/assert"
)

func testStackContext(t *testing.T) (context.Context, map[string]interface{}, *output.Output) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	stack := make(map[string]interface{})
	stack["workdir"] = t.TempDir()
	stack["env"] = os.Environ()
	stack["parameter"] = map[string]string{}
	o := output.New("test", 1)
	t.Cleanup(o.Done)
	return context.WithValue(context.Background(), STACK, stack), stack, o
}

func TestShellActionSuccess(t *testing.T) {
	c, _, o := testStackContext(t)
	step := model.Step{
		Name: "say hello",
		Run:  "echo hello",
	}
	a := NewShellAction(step, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.NoError(t, err)
	assert.NoError(t, a.Post())
}

func TestShellActionNonZeroExit(t *testing.T) {
	c, _, o := testStackContext(t)
	step := model.Step{
		Name: "fail",
		Run:  "exit 3",
	}
	a := NewShellAction(step, c, o)

	assert.NoError(t, a.Pre())
	_, err := a.Hook()
	assert.Error(t, err)
}

func TestShellActionEmptyScript(t *testing.T) {
	c, _, o := testStackContext(t)
	a := NewShellAction(model.Step{Name: "empty"}, c, o)
	assert.Error(t, a.Pre())
}

func TestShellActionExportedEnvPersists(t *testing.T) {
	c, stack, o := testStackContext(t)

	first := NewShellAction(model.Step{
		Name: "export",
		Run:  `echo "VIRTUAL_ENV=/tmp/venv" >> $PIPELINE_ENV`,
	}, c, o)
	assert.NoError(t, first.Pre())
	_, err := first.Hook()
	assert.NoError(t, err)

	env := stack["env"].([]string)
	assert.Contains(t, env, "VIRTUAL_ENV=/tmp/venv")

	// 后续 step 能看到前面导出的变量
	second := NewShellAction(model.Step{
		Name: "check",
		Run:  `test "$VIRTUAL_ENV" = "/tmp/venv"`,
	}, c, o)
	assert.NoError(t, second.Pre())
	_, err = second.Hook()
	assert.NoError(t, err)
}

func TestShellActionParamReplace(t *testing.T) {
	c, stack, o := testStackContext(t)
	stack["parameter"] = map[string]string{"dir": "."}

	a := NewShellAction(model.Step{
		Name: "ls",
		Run:  "ls ${{ param.dir }}",
	}, c, o)
	assert.NoError(t, a.Pre())
	assert.Equal(t, "ls .", a.command)
}

func TestMergeEnv(t *testing.T) {
	env := []string{"PATH=/usr/bin", "FOO=1"}
	env = mergeEnv(env, "FOO=2")
	assert.Equal(t, []string{"PATH=/usr/bin", "FOO=2"}, env)
	env = mergeEnv(env, "BAR=3")
	assert.Contains(t, env, "BAR=3")
}
