package nni

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Client 编排工具接口
type Client interface {
	// List 返回当前活动实验列表（多行文本）
	List(ctx context.Context) (string, error)
	// Stop 停止指定实验，返回命令输出
	Stop(ctx context.Context, runID string) (string, error)
}

// CLI 通过执行 nnictl 命令实现 Client
type CLI struct {
	binary  string
	timeout time.Duration
}

// NewCLI 创建命令行客户端，timeout <= 0 表示不限时
func NewCLI(binary string, timeout time.Duration) *CLI {
	if binary == "" {
		binary = "nnictl"
	}
	return &CLI{binary: binary, timeout: timeout}
}

func (c *CLI) List(ctx context.Context) (string, error) {
	return c.run(ctx, "experiment", "list")
}

func (c *CLI) Stop(ctx context.Context, runID string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("nnictl stop: empty run id")
	}
	return c.run(ctx, "stop", runID)
}

// run 返回合并后的 stdout/stderr，去掉末尾换行
func (c *CLI) run(ctx context.Context, args ...string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	out, err := exec.CommandContext(ctx, c.binary, args...).CombinedOutput()
	text := strings.TrimRight(string(out), "\r\n")
	if err != nil {
		return text, fmt.Errorf("%s %s: %w", c.binary, strings.Join(args, " "), err)
	}
	return text, nil
}
