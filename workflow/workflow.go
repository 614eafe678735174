package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/utils"
	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"
)

// Save 保存 workflow yaml 文件
func Save(name string, yamlString string) error {
	return saveStringToFile(getWorkflowFilePath(name), yamlString)
}

// SaveParams 更新 workflow 的参数表
func SaveParams(name string, params map[string]string) error {
	wf, err := GetObject(name)
	if err != nil {
		return err
	}
	wf.Parameter = params
	content, err := yaml.Marshal(wf)
	if err != nil {
		return err
	}
	return Save(wf.Name, string(content))
}

// Get get workflow yaml string
func Get(name string) (string, error) {
	return readStringFromFile(getWorkflowFilePath(name))
}

// Update update workflow yaml file
func Update(oldName string, newName string, yamlString string) error {
	err := renameFile(getWorkflowFilePath(oldName), getWorkflowFilePath(newName))
	if err != nil {
		return err
	}
	return Save(newName, yamlString)
}

// Delete delete workflow yaml file
func Delete(name string) error {
	return deleteFile(getWorkflowFilePath(name))
}

// GetObject 获取 workflow 对象
func GetObject(name string) (*model.Workflow, error) {
	var workflowData model.Workflow
	workflowFilePath := getWorkflowFilePath(name)
	fileContent, err := os.ReadFile(workflowFilePath)
	if err != nil {
		logger.Error("get workflow read file failed", err.Error())
		return nil, err
	}
	err = yaml.Unmarshal(fileContent, &workflowData)
	if err != nil {
		logger.Error("get workflow, deserialization workflow file failed", err.Error())
		return nil, err
	}
	return &workflowData, nil
}

// SaveRunDetail save run detail
func SaveRunDetail(name string, run *model.RunDetail) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		logger.Errorf("serializes yaml failed: %s", err)
		return err
	}
	saveStringToFile(getRunFilePath(name, run.Id), string(data))
	return nil
}

// UpdateRunDetail update run detail yaml file
func UpdateRunDetail(name string, run *model.RunDetail) error {
	return SaveRunDetail(name, run)
}

// GetRunDetail get run detail
func GetRunDetail(name string, id int) (*model.RunDetail, error) {
	var runDetail model.RunDetail
	runDetailString, err := readStringFromFile(getRunFilePath(name, id))
	if err != nil {
		return nil, err
	}

	// deserialization run detail yml file
	err = yaml.Unmarshal([]byte(runDetailString), &runDetail)
	if err != nil {
		logger.Errorf("get run, deserialization run detail file failed: %s", err.Error())
		return nil, err
	}

	runningJob := -1
	for index, jd := range runDetail.JobDetails {
		if jd.Status == model.STATUS_RUNNING {
			runningJob = index
		}
	}

	if runningJob >= 0 && runningJob < len(runDetail.JobDetails) {
		runDetail.JobDetails[runningJob].Duration = time.Since(runDetail.JobDetails[runningJob].StartTime).Milliseconds()
	}
	return &runDetail, nil
}

// List workflow list
func List(keyword string, page, pageSize int) (*model.WorkflowPage, error) {
	var workflowPage model.WorkflowPage
	var workflows []model.WorkflowVo
	// workflows folder path
	workflowsDir := getWorkflowFilePath("")
	if !isFileExist(workflowsDir) {
		return nil, fmt.Errorf("workflows folder not exist: %s", workflowsDir)
	}

	// 遍历 workflows 文件夹
	files, err := os.ReadDir(workflowsDir)
	if err != nil {
		logger.Errorf("failed to read workflows folder: %s", err.Error())
		return nil, err
	}
	for _, file := range files {
		var ymlPath string
		if keyword != "" {
			if strings.Contains(file.Name(), keyword) {
				ymlPath = getWorkflowFilePath(file.Name())
			} else {
				continue
			}
		} else {
			ymlPath = getWorkflowFilePath(file.Name())
		}
		if !isFileExist(ymlPath) {
			logger.Warnf("workflow file not exist: %s", ymlPath)
			continue
		}
		fileContent, err := os.ReadFile(ymlPath)
		if err != nil {
			logger.Error("get workflow read file failed", err.Error())
			continue
		}
		var workflowData model.Workflow
		var workflowVo model.WorkflowVo
		err = yaml.Unmarshal(fileContent, &workflowData)
		if err != nil {
			logger.Error("get workflow, deserialization workflow file failed", err.Error())
			continue
		}
		copier.Copy(&workflowVo, &workflowData)
		updateWorkflowInfo(&workflowVo)
		if info, err := os.Stat(ymlPath); err == nil {
			workflowVo.CreateTime = info.ModTime()
		}
		workflows = append(workflows, workflowVo)
	}
	sort.Sort(model.WorkflowVoTimeDecrement(workflows))
	pageNum, size, start, end := utils.SlicePage(page, pageSize, len(workflows))
	workflowPage.Page = pageNum
	workflowPage.PageSize = size
	workflowPage.Total = len(workflows)
	workflowPage.Data = workflows[start:end]
	return &workflowPage, nil
}

// RunList run list of one workflow
func RunList(name string, page, pageSize int) (*model.RunPage, error) {
	var runPage model.RunPage
	var runs []model.RunDetail
	// get the folder path of runs
	runDir := getRunFileDir(name)
	if !isFileExist(runDir) {
		logger.Error("runs folder does not exist")
		return nil, fmt.Errorf("runs folder does not exist")
	}
	files, err := os.ReadDir(runDir)
	if err != nil {
		logger.Error("failed to read runs folder", err.Error())
		return nil, err
	}
	for _, file := range files {
		ymlPath := filepath.Join(runDir, file.Name())
		if !isFileExist(ymlPath) {
			logger.Error("run detail file not exist")
			continue
		}
		fileContent, err := os.ReadFile(ymlPath)
		if err != nil {
			logger.Error("get run detail read file failed", err.Error())
			continue
		}
		var runDetailData model.RunDetail
		err = yaml.Unmarshal(fileContent, &runDetailData)
		if err != nil {
			logger.Error("get run detail, deserialization run file failed", err.Error())
			continue
		}
		runs = append(runs, runDetailData)
	}
	sort.Sort(model.RunDetailDecrement(runs))
	pageNum, size, start, end := utils.SlicePage(page, pageSize, len(runs))
	runPage.Page = pageNum
	runPage.PageSize = size
	runPage.Total = len(runs)
	runPage.Data = runs[start:end]
	return &runPage, nil
}

// DeleteRunDetail delete run detail
func DeleteRunDetail(name string, runId int) error {
	runFilePath := getRunFilePath(name, runId)
	if !isFileExist(runFilePath) {
		logger.Error("delete run detail failed, run detail file not exist")
		return fmt.Errorf("delete run detail failed, run detail file not exist")
	}
	return deleteFile(runFilePath)
}

// CreateRunDetail 为一次执行分配自增 id，生成初始 run detail 并落盘
func CreateRunDetail(name string, triggerMode string, branch string) (*model.RunDetail, error) {
	workflowData, err := GetObject(name)
	if err != nil {
		return nil, err
	}
	var runDetail model.RunDetail
	var ids []int
	runFileDir := getRunFileDir(name)
	err = createDirIfNotExist(runFileDir)
	if err != nil {
		logger.Error("create run detail file dir failed", err.Error())
		return nil, err
	}
	// read file
	files, err := os.ReadDir(runFileDir)
	if err != nil {
		logger.Error("read file failed", err.Error())
		return nil, err
	}
	for _, file := range files {
		index := strings.Index(file.Name(), ".")
		id, err := strconv.Atoi(file.Name()[0:index])
		if err != nil {
			logger.Error("string to int failed", err.Error())
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		runDetail.Id = ids[0] + 1
	} else {
		runDetail.Id = 1
	}
	jobDetails, err := workflowData.JobSort()
	if err != nil {
		return nil, err
	}
	runDetail.Workflow = *workflowData
	runDetail.Status = model.STATUS_NOTRUN
	runDetail.StartTime = time.Now()
	runDetail.JobDetails = jobDetails
	runDetail.TriggerMode = triggerMode
	runDetail.Branch = branch
	// create and save run detail
	return &runDetail, SaveRunDetail(name, &runDetail)
}

// GetRunLog 获取 run 日志
func GetRunLog(name string, runId int) (*model.RunLog, error) {
	logPath := getRunLogPath(name, runId)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		logger.Errorf("parse log file failed, %v", err)
		return nil, err
	}
	runLog := &model.RunLog{
		StartTime: fileLog.StartTime,
		Duration:  fileLog.Duration,
		Content:   strings.Join(fileLog.Lines, "\r"),
		LastLine:  len(fileLog.Lines),
	}
	return runLog, nil
}

// GetRunLogString 获取 run 日志字符串
func GetRunLogString(name string, runId int) (string, error) {
	logPath := getRunLogPath(name, runId)
	return readStringFromFile(logPath)
}

// SaveRunLogString 保存 run 日志字符串
func SaveRunLogString(name string, runId int, content string) error {
	logPath := getRunLogPath(name, runId)
	return saveStringToFile(logPath, content)
}

// GetRunJobLog 获取 run 中某个 job 的日志
func GetRunJobLog(name string, runId int, jobName string, start int) (*model.JobLog, error) {
	logPath := getRunLogPath(name, runId)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		logger.Errorf("parse log file failed, %v", err)
		return nil, err
	}

	detail, err := GetRunDetail(name, runId)
	if err != nil {
		return nil, err
	}

	var jobDetail model.JobDetail

	for _, jd := range detail.JobDetails {
		if jd.Name == jobName {
			jobDetail = jd
		}
	}

	for _, jobOutput := range fileLog.Jobs {
		if jobOutput.Name == jobName {
			var content string
			if start >= 0 && start <= len(jobOutput.Lines) {
				content = strings.Join(jobOutput.Lines[start:], "\r")
			}

			return &model.JobLog{
				Name:      jobName,
				StartTime: jobOutput.StartTime,
				Duration:  jobOutput.Duration,
				Content:   content,
				LastLine:  len(jobOutput.Lines),
				End:       jobDetail.Status == model.STATUS_SUCCESS || jobDetail.Status == model.STATUS_FAIL,
			}, nil
		}
	}
	return nil, fmt.Errorf("job %s not found", jobName)
}

// GetRunStepLog 获取 run 中某个 step 的日志
func GetRunStepLog(name string, runId int, jobName string, stepName string) (*output.Step, error) {
	logPath := getRunLogPath(name, runId)
	fileLog, err := output.ParseLogFile(logPath)
	if err != nil {
		logger.Errorf("parse log file failed, %v", err)
		return nil, err
	}
	for index := range fileLog.Jobs {
		if fileLog.Jobs[index].Name == jobName {
			steps := output.ParseJobSteps(&fileLog.Jobs[index])
			for _, step := range steps {
				if step.Name == stepName {
					return step, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("step %s not found", stepName)
}

// 就地更新 workflow 概要
func updateWorkflowInfo(workflowData *model.WorkflowVo) error {
	// get the folder path of runs
	runDir := getRunFileDir(workflowData.Name)
	if !isFileExist(runDir) {
		return fmt.Errorf("runs folder does not exist")
	}
	files, err := os.ReadDir(runDir)
	if err != nil {
		logger.Error("failed to read runs folder", err.Error())
		return err
	}
	var ids []int
	for _, file := range files {
		index := strings.Index(file.Name(), ".")
		id, err := strconv.Atoi(file.Name()[0:index])
		if err != nil {
			logger.Error("string to int failed", err.Error())
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(ids)))
		runDetail, err := GetRunDetail(workflowData.Name, ids[0])
		if err != nil {
			logger.Errorf("get run detail failed, %s", err)
			return err
		}
		workflowData.Duration = runDetail.Duration
		workflowData.Status = runDetail.Status
		workflowData.TriggerMode = runDetail.TriggerMode
		workflowData.StartTime = runDetail.StartTime
		workflowData.RunId = runDetail.Id
		workflowData.Error = runDetail.Error
	}
	return nil
}
