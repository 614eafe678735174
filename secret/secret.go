package secret

import (
	"fmt"
	"os"
	"strings"
)

// Resolver 在运行时解析 secret，定义文件里永远只存名字不存值
type Resolver interface {
	Resolve(name string) (string, error)
}

// EnvResolver 从进程环境变量解析 secret
type EnvResolver struct{}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

// Resolve 取 secret 的值，未设置或为空都算解析失败，
// 引用它的 step 直接失败，不会用空串兜底
func (r *EnvResolver) Resolve(name string) (string, error) {
	value, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("secret %s is not set", name)
	}
	return value, nil
}

// StaticResolver 固定映射，测试用
type StaticResolver struct {
	Values map[string]string
}

func (r *StaticResolver) Resolve(name string) (string, error) {
	value, ok := r.Values[name]
	if !ok || value == "" {
		return "", fmt.Errorf("secret %s is not set", name)
	}
	return value, nil
}

// Mask 把文本里出现的 secret 值替换为 ***，用在日志输出前
func Mask(line string, values []string) string {
	for _, v := range values {
		if v == "" {
			continue
		}
		line = strings.ReplaceAll(line, v, "***")
	}
	return line
}
