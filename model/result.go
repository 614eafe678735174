package model

// ScanReport 依赖漏洞扫描的结果概要
type ScanReport struct {
	Tool           string `json:"tool"`
	Manifest       string `json:"manifest"`
	Total          int64  `json:"total"`
	Critical       int64  `json:"critical"`
	High           int64  `json:"high"`
	Medium         int64  `json:"medium"`
	Low            int64  `json:"low"`
	ResultOverview string `json:"resultOverview"`
}

// ActionResult action 执行后带回的结构化结果，追加到 run detail 上
type ActionResult struct {
	CodeInfo    string       `json:"codeInfo"`
	ScanReports []ScanReport `json:"scanReports"`
}
