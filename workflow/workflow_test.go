package workflow

import (
	"testing"

	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/ferrite-ci/ferrite-engine/model"
	"gopkg.in/yaml.v2"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	ass "gotest.tools/v3/assert"
)

func testWorkflow() model.Workflow {
	step1 := model.Step{
		Name: "checkout",
		Uses: "checkout",
		With: map[string]string{
			"url": "https://example.com/coco/agent.git",
		},
	}
	step2 := model.Step{
		Name: "unit tests",
		Run:  "pytest tests/unit",
	}
	return model.Workflow{
		Version: "1",
		Name:    "ci",
		On: model.Triggers{
			Push:             &model.PushTrigger{Branches: []string{"master"}},
			WorkflowDispatch: &model.ManualTrigger{},
		},
		Jobs: map[string]model.Job{
			"build": {
				RunsOn: "ubuntu-latest",
				Steps:  []model.Step{step1, step2},
			},
		},
	}
}

func Test_Save(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wf := testWorkflow()
	data, _ := yaml.Marshal(wf)
	err := Save("ci", string(data))
	ass.NilError(t, err)

	got, err := Get("ci")
	ass.NilError(t, err)
	assert.Contains(t, got, "pytest tests/unit")
}

func Test_GetObject(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	yamlString := `
name: ci
on:
  push:
    branches:
      - master
  workflow_dispatch: {}
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - name: unit tests
        run: pytest tests/unit
`
	err := Save("ci", yamlString)
	ass.NilError(t, err)

	wf, err := GetObject("ci")
	ass.NilError(t, err)
	assert.Equal(t, "ci", wf.Name)
	assert.NotNil(t, wf.On.Push)
	assert.Equal(t, []string{"master"}, wf.On.Push.Branches)
	assert.NotNil(t, wf.On.WorkflowDispatch)
	assert.Len(t, wf.Jobs["build"].Steps, 1)
}

func Test_CreateRunDetail(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wf := testWorkflow()
	data, _ := yaml.Marshal(wf)
	ass.NilError(t, Save("ci", string(data)))

	run, err := CreateRunDetail("ci", consts.TRIGGER_MODE_PUSH, "master")
	ass.NilError(t, err)
	assert.Equal(t, 1, run.Id)
	assert.Equal(t, model.STATUS_NOTRUN, run.Status)
	assert.Equal(t, "push", run.TriggerMode)
	assert.Len(t, run.JobDetails, 1)

	// id 自增
	run2, err := CreateRunDetail("ci", consts.TRIGGER_MODE_MANUAL, "")
	ass.NilError(t, err)
	assert.Equal(t, 2, run2.Id)

	got, err := GetRunDetail("ci", 1)
	ass.NilError(t, err)
	spew.Dump(got.Id)
	assert.Equal(t, run.Id, got.Id)
}

func Test_RunList(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	wf := testWorkflow()
	data, _ := yaml.Marshal(wf)
	ass.NilError(t, Save("ci", string(data)))

	for i := 0; i < 3; i++ {
		_, err := CreateRunDetail("ci", consts.TRIGGER_MODE_MANUAL, "")
		ass.NilError(t, err)
	}

	page, err := RunList("ci", 1, 10)
	ass.NilError(t, err)
	assert.Equal(t, 3, page.Total)
	// 倒序
	assert.Equal(t, 3, page.Data[0].Id)
}

func Test_SaveRunLogString(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	err := SaveRunLogString("ci", 1, "[Run] Started on 2023-05-01 10:00:00\n")
	ass.NilError(t, err)
	content, err := GetRunLogString("ci", 1)
	ass.NilError(t, err)
	assert.Contains(t, content, "[Run] Started")
}
