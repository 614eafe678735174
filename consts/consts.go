package consts

const (
	// PIPELINE_DIR_NAME 引擎配置根目录，位于用户 home 目录下
	PIPELINE_DIR_NAME = ".ferrite"

	WORKFLOW_DIR_NAME = "workflows"
	RUN_DIR_NAME      = "runs"
	RUN_LOG_DIR_NAME  = "logs"

	// STEP_TIMEOUT_MINUTE 单个 step 的超时时间，超过就取消整个 run
	STEP_TIMEOUT_MINUTE = 30

	// EXPORT_ENV_FILE_NAME step 导出环境变量的文件名，下一个 step 开始前会合并进 job 环境
	EXPORT_ENV_FILE_NAME = ".pipeline_env"

	// LOG_DIR_NAME 引擎自身日志目录
	LOG_DIR_NAME = "engine-logs"

	NODE_PING_TIMEOUT_SECOND = 90
	NODE_PING_INTERVAL       = 30
)

// TriggerMode 记录一次 run 是怎么被触发的
const (
	TRIGGER_MODE_MANUAL = "manual"
	TRIGGER_MODE_PUSH   = "push"
)
