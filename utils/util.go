package utils

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/ferrite-ci/ferrite-engine/consts"
	"github.com/go-resty/resty/v2"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

func RandSeq(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}

type Cmd struct {
	ctx context.Context
	*exec.Cmd
}

// NewCommand is like exec.CommandContext but ensures that subprocesses
// are killed when the context times out, not just the top level process.
func NewCommand(ctx context.Context, command string, args ...string) *Cmd {
	return &Cmd{ctx, exec.Command(command, args...)}
}

func (c *Cmd) Start() error {
	// Force-enable setpgid bit so that we can kill child processes when the
	// context times out or is canceled.
	if c.Cmd.SysProcAttr == nil {
		c.Cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	c.Cmd.SysProcAttr.Setpgid = true
	err := c.Cmd.Start()
	if err != nil {
		return err
	}
	go func() {
		<-c.ctx.Done()
		p := c.Cmd.Process
		if p == nil {
			return
		}
		// Kill by negative PID to kill the process group, which includes
		// the top-level process we spawned as well as any subprocesses
		// it spawned.
		_ = syscall.Kill(-p.Pid, syscall.SIGKILL)
	}()
	return nil
}

func (c *Cmd) Run() error {
	if err := c.Start(); err != nil {
		return err
	}
	return c.Wait()
}

func DefaultConfigDir() string {
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		log.Println("get user home dir failed", err.Error())
		return consts.PIPELINE_DIR_NAME + "."
	}
	dir := filepath.Join(userHomeDir, consts.PIPELINE_DIR_NAME)
	return dir
}

// DefaultWorkRoot 所有 run 的工作目录根，可用 FERRITE_WORK_ROOT 覆盖
func DefaultWorkRoot() string {
	if root := os.Getenv("FERRITE_WORK_ROOT"); root != "" {
		return root
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Println("get user home dir failed", err.Error())
		return "workdir"
	}
	return filepath.Join(homeDir, "workdir")
}

// NewHttp 返回一个新的 resty client
func NewHttp() *resty.Client {
	return resty.New()
}

// ReplaceWithParam 将 ${{ param.x }} 替换为参数表中的值
func ReplaceWithParam(str string, params map[string]string) string {
	for key, value := range params {
		str = strings.ReplaceAll(str, fmt.Sprintf("${{ param.%s }}", key), value)
		str = strings.ReplaceAll(str, fmt.Sprintf("${{param.%s}}", key), value)
	}
	return str
}

// SlicePage paging   return:page,pageSize,start,end
func SlicePage(page, pageSize, nums int) (int, int, int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize < 0 {
		pageSize = 10
	}
	if pageSize > nums {
		return page, pageSize, 0, nums
	}
	// total page
	pageCount := int(math.Ceil(float64(nums) / float64(pageSize)))
	if page > pageCount {
		return page, pageSize, 0, 0
	}
	sliceStart := (page - 1) * pageSize
	sliceEnd := sliceStart + pageSize

	if sliceEnd > nums {
		sliceEnd = nums
	}
	return page, pageSize, sliceStart, sliceEnd
}

func GetMyIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "unknown", err
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String(), nil
			}
		}
	}
	return "unknown", fmt.Errorf("can not get ip")
}

func GetMyHostname() (string, error) {
	if name := os.Getenv("FERRITE_NODE_NAME"); name != "" {
		return name, nil
	}
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown", err
	}
	return hostname, nil
}

func GetNodeKey(name, address string) string {
	return fmt.Sprintf("%s@%s", name, address)
}

// FormatRunToString 格式化为字符串
// return: name(id)
func FormatRunToString(name string, id int) string {
	return fmt.Sprintf("%s(%d)", name, id)
}

func GetRunNameAndIDFromFormatString(str string) (string, int, error) {
	// name(id)
	splitString := strings.Split(str, "(")
	if len(splitString) != 2 {
		return "", 0, fmt.Errorf("format error")
	}
	name := splitString[0]
	id, err := strconv.Atoi(strings.TrimRight(splitString[1], ")"))
	if err != nil {
		return "", 0, err
	}
	return name, id, nil
}
