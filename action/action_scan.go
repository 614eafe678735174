package action

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ferrite-ci/ferrite-engine/ctx"
	"github.com/ferrite-ci/ferrite-engine/logger"
	"github.com/ferrite-ci/ferrite-engine/model"
	"github.com/ferrite-ci/ferrite-engine/output"
	"github.com/ferrite-ci/ferrite-engine/utils"
	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

const defaultSnykApi = "https://api.snyk.io/v1"

var severityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"critical": 4,
}

// SnykScanAction 第三方依赖漏洞扫描。
// 凭证从 secret 解析，解析不到直接失败，不会发任何请求。
// 达到阈值的漏洞会让 step 失败。
type SnykScanAction struct {
	manifest  string
	threshold string
	apiBase   string
	orgId     string
	token     string
	actionCtx ctx.ActionContext
	ctx       context.Context
	output    *output.Output
}

func NewSnykScanAction(step model.Step, c context.Context, output *output.Output) *SnykScanAction {
	threshold := step.With["severity-threshold"]
	if threshold == "" {
		threshold = "high"
	}
	apiBase := step.With["api"]
	if apiBase == "" {
		apiBase = defaultSnykApi
	}
	return &SnykScanAction{
		manifest:  step.With["manifest"],
		threshold: threshold,
		apiBase:   apiBase,
		orgId:     step.With["org"],
		actionCtx: ctx.NewActionContext(step, c, output),
		ctx:       c,
		output:    output,
	}
}

func (a *SnykScanAction) Pre() error {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	params, ok := stack["parameter"].(map[string]string)
	if ok {
		a.manifest = utils.ReplaceWithParam(a.manifest, params)
		a.orgId = utils.ReplaceWithParam(a.orgId, params)
	}
	if a.manifest == "" {
		return errors.New("scan manifest is empty")
	}
	if _, ok := severityRank[a.threshold]; !ok {
		return fmt.Errorf("unknown severity threshold: %s", a.threshold)
	}

	// 缺少凭证时 step 立即失败，不用空值兜底
	token, err := a.actionCtx.ResolveSecret("SNYK_TOKEN")
	if err != nil {
		a.output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
		return err
	}
	a.token = token
	return nil
}

func (a *SnykScanAction) Hook() (*model.ActionResult, error) {
	stack := a.ctx.Value(STACK).(map[string]interface{})
	workdir, ok := stack["workdir"].(string)
	if !ok {
		return nil, errors.New("workdir is empty")
	}

	manifestPath := filepath.Join(workdir, a.manifest)
	manifestContent, err := os.ReadFile(manifestPath)
	if err != nil {
		a.output.WriteLine(fmt.Sprintf("[ERROR]: manifest not found: %s", a.manifest))
		return nil, err
	}

	logger.Infof("start dependency scan, manifest: %s", a.manifest)
	a.output.WriteLine("scanning dependencies from " + a.manifest)

	res, err := a.snykTest(string(manifestContent))
	if err != nil {
		a.output.WriteLine(fmt.Sprintf("[ERROR]: %s", err.Error()))
		return nil, err
	}
	if res.StatusCode() == 401 {
		return nil, errors.New("scan provider rejected the credential")
	}
	if res.StatusCode() != 200 {
		return nil, fmt.Errorf("scan provider returned status %d", res.StatusCode())
	}

	report := a.parseReport(res.Body())
	overview, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}
	report.ResultOverview = string(overview)

	actionResult := &model.ActionResult{
		ScanReports: []model.ScanReport{report},
	}

	a.output.WriteLine(fmt.Sprintf("found %d vulnerabilities (critical=%d high=%d medium=%d low=%d)",
		report.Total, report.Critical, report.High, report.Medium, report.Low))

	if over := a.countAtOrOver(report); over > 0 {
		return actionResult, fmt.Errorf("%d vulnerabilities at or above severity %s", over, a.threshold)
	}
	a.output.WriteLine("no vulnerabilities at or above severity " + a.threshold)
	return actionResult, nil
}

func (a *SnykScanAction) Post() error {
	return nil
}

func (a *SnykScanAction) snykTest(manifestContent string) (*resty.Response, error) {
	request := utils.NewHttp().NewRequest().
		SetHeader("Authorization", "token "+a.token).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]any{
			"encoding": "plain",
			"files": map[string]any{
				"target": map[string]string{
					"contents": manifestContent,
				},
			},
		})
	if a.orgId != "" {
		request.SetQueryParam("org", a.orgId)
	}
	return request.Post(a.apiBase + "/test/pip")
}

func (a *SnykScanAction) parseReport(body []byte) model.ScanReport {
	report := model.ScanReport{
		Tool:     "snyk",
		Manifest: a.manifest,
	}
	issues := gjson.GetBytes(body, "issues.vulnerabilities")
	issues.ForEach(func(_, issue gjson.Result) bool {
		switch strings.ToLower(issue.Get("severity").String()) {
		case "critical":
			report.Critical++
		case "high":
			report.High++
		case "medium":
			report.Medium++
		case "low":
			report.Low++
		}
		return true
	})
	report.Total = report.Critical + report.High + report.Medium + report.Low
	return report
}

func (a *SnykScanAction) countAtOrOver(report model.ScanReport) int64 {
	rank := severityRank[a.threshold]
	var over int64
	if rank <= severityRank["low"] {
		over += report.Low
	}
	if rank <= severityRank["medium"] {
		over += report.Medium
	}
	if rank <= severityRank["high"] {
		over += report.High
	}
	if rank <= severityRank["critical"] {
		over += report.Critical
	}
	return over
}
