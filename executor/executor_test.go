package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/secret"
	flow "github.com/ferrite-ci/ferrite-engine/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExecutor(t *testing.T) *Executor {
	t.Setenv("HOME", t.TempDir())
	return NewExecutor(make(chan model.StatusChangeMessage, 16))
}

func markerWorkflow(name string, marker string, runs ...string) *model.Workflow {
	steps := make([]model.Step, 0, len(runs))
	for i, run := range runs {
		steps = append(steps, model.Step{
			Name: "step-" + string(rune('a'+i)),
			Run:  run,
		})
	}
	return &model.Workflow{
		Version: "1",
		Name:    name,
		Jobs: map[string]model.Job{
			"main": {Steps: steps},
		},
		Parameter: map[string]string{"marker": marker},
	}
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	e := testExecutor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	wf := markerWorkflow("hello-ci", marker,
		"echo one >> ${{ param.marker }}",
		"echo two >> ${{ param.marker }}",
		"echo three >> ${{ param.marker }}",
	)

	err := e.Execute(1, wf)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))

	msg := <-e.StatusChan
	assert.Equal(t, "hello-ci", msg.WorkflowName)
	assert.Equal(t, model.STATUS_SUCCESS, msg.Status)

	detail, err := flow.GetRunDetail("hello-ci", 1)
	require.NoError(t, err)
	assert.Equal(t, model.STATUS_SUCCESS, detail.Status)
	for _, step := range detail.JobDetails[0].Job.Steps {
		assert.Equal(t, model.STATUS_SUCCESS, step.Status)
	}
}

func TestExecuteFailFast(t *testing.T) {
	e := testExecutor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	wf := markerWorkflow("broken-ci", marker,
		"echo one >> ${{ param.marker }}",
		"exit 1",
		"echo three >> ${{ param.marker }}",
	)

	err := e.Execute(1, wf)
	require.Error(t, err)

	// 第二个 step 失败后，第三个不再执行
	data, readErr := os.ReadFile(marker)
	require.NoError(t, readErr)
	assert.Equal(t, "one\n", string(data))

	msg := <-e.StatusChan
	assert.Equal(t, model.STATUS_FAIL, msg.Status)

	detail, err := flow.GetRunDetail("broken-ci", 1)
	require.NoError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.Status)
	assert.Equal(t, "step-b", detail.FailedStep())
	assert.NotEmpty(t, detail.Error)

	steps := detail.JobDetails[0].Job.Steps
	assert.Equal(t, model.STATUS_SUCCESS, steps[0].Status)
	assert.Equal(t, model.STATUS_FAIL, steps[1].Status)
	assert.Equal(t, model.STATUS_NOTRUN, steps[2].Status)
}

func TestExecuteJobDependencyOrder(t *testing.T) {
	e := testExecutor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	wf := &model.Workflow{
		Version: "1",
		Name:    "multi-job",
		Jobs: map[string]model.Job{
			"test": {
				Needs: []string{"build"},
				Steps: []model.Step{{Name: "run-test", Run: "echo test >> ${{ param.marker }}"}},
			},
			"build": {
				Steps: []model.Step{{Name: "run-build", Run: "echo build >> ${{ param.marker }}"}},
			},
		},
		Parameter: map[string]string{"marker": marker},
	}

	err := e.Execute(1, wf)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "build\ntest\n", string(data))
}

func TestExecuteFailedJobSkipsRest(t *testing.T) {
	e := testExecutor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	wf := &model.Workflow{
		Version: "1",
		Name:    "multi-job-fail",
		Jobs: map[string]model.Job{
			"build": {
				Steps: []model.Step{{Name: "run-build", Run: "exit 3"}},
			},
			"test": {
				Needs: []string{"build"},
				Steps: []model.Step{{Name: "run-test", Run: "echo test >> ${{ param.marker }}"}},
			},
		},
		Parameter: map[string]string{"marker": marker},
	}

	err := e.Execute(1, wf)
	require.Error(t, err)

	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))

	detail, err := flow.GetRunDetail("multi-job-fail", 1)
	require.NoError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.JobDetails[0].Status)
	assert.Equal(t, model.STATUS_NOTRUN, detail.JobDetails[1].Status)
}

func TestExecuteMissingSecretFailsStep(t *testing.T) {
	e := testExecutor(t)
	// 置空等同于未设置
	t.Setenv("SNYK_TOKEN", "")
	marker := filepath.Join(t.TempDir(), "marker")

	wf := &model.Workflow{
		Version: "1",
		Name:    "secret-missing",
		Jobs: map[string]model.Job{
			"main": {
				Steps: []model.Step{
					{
						Name:    "needs-token",
						Run:     "echo ran >> ${{ param.marker }}",
						Secrets: []string{"SNYK_TOKEN"},
					},
				},
			},
		},
		Parameter: map[string]string{"marker": marker},
	}

	err := e.Execute(1, wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNYK_TOKEN")

	// secret 缺失时 step 根本不会执行
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr))

	detail, err := flow.GetRunDetail("secret-missing", 1)
	require.NoError(t, err)
	assert.Equal(t, model.STATUS_FAIL, detail.Status)
	assert.Equal(t, "needs-token", detail.FailedStep())
}

func TestExecuteSecretScopedToStep(t *testing.T) {
	e := testExecutor(t)
	e.Secrets = &secret.StaticResolver{Values: map[string]string{"DEPLOY_KEY": "s3cret-value"}}
	marker := filepath.Join(t.TempDir(), "marker")

	wf := &model.Workflow{
		Version: "1",
		Name:    "secret-scope",
		Jobs: map[string]model.Job{
			"main": {
				Steps: []model.Step{
					{
						Name:    "with-secret",
						Run:     "printf %s \"$DEPLOY_KEY\" > ${{ param.marker }}",
						Secrets: []string{"DEPLOY_KEY"},
					},
					{
						Name: "without-secret",
						Run:  "test -z \"$DEPLOY_KEY\"",
					},
				},
			},
		},
		Parameter: map[string]string{"marker": marker},
	}

	err := e.Execute(1, wf)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", string(data))

	// 日志里 secret 值要被脱敏
	logContent, err := flow.GetRunLogString("secret-scope", 1)
	require.NoError(t, err)
	assert.NotContains(t, logContent, "s3cret-value")
}

func TestExecuteEnvPersistsAcrossSteps(t *testing.T) {
	e := testExecutor(t)
	marker := filepath.Join(t.TempDir(), "marker")

	wf := markerWorkflow("env-carry", marker,
		"echo \"export MY_TOOL_HOME=/opt/tool\" >> $PIPELINE_ENV",
		"echo \"$MY_TOOL_HOME\" >> ${{ param.marker }}",
	)

	err := e.Execute(1, wf)
	require.NoError(t, err)

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "/opt/tool\n", string(data))
}

func TestExecuteUnknownActionFails(t *testing.T) {
	e := testExecutor(t)

	wf := &model.Workflow{
		Version: "1",
		Name:    "unknown-uses",
		Jobs: map[string]model.Job{
			"main": {
				Steps: []model.Step{{Name: "mystery", Uses: "no-such-action"}},
			},
		},
	}

	err := e.Execute(1, wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-action")
}

func TestCancelRunningRun(t *testing.T) {
	e := testExecutor(t)

	wf := &model.Workflow{
		Version: "1",
		Name:    "long-run",
		Jobs: map[string]model.Job{
			"main": {
				Steps: []model.Step{{Name: "sleepy", Run: "sleep 60"}},
			},
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- e.Execute(1, wf)
	}()

	// 等 run 真正跑起来
	require.Eventually(t, func() bool {
		status, _ := e.GetRunStatus("long-run", 1)
		return status == model.STATUS_RUNNING
	}, 10*time.Second, 100*time.Millisecond)

	require.NoError(t, e.Cancel("long-run", 1))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "killed") || strings.Contains(err.Error(), "signal"))
	case <-time.After(30 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestRecoverActionPanic(t *testing.T) {
	runtimePanic := func() (err error) {
		defer recoverActionPanic(&err)
		var s []int
		_ = s[1]
		return nil
	}
	err := runtimePanic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime error")

	// 非 runtime.Error 的 panic 也要算失败
	stringPanic := func() (err error) {
		defer recoverActionPanic(&err)
		panic("boom")
	}
	err = stringPanic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	noPanic := func() (err error) {
		defer recoverActionPanic(&err)
		return nil
	}
	assert.NoError(t, noPanic())
}
