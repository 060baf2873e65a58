// Command papyrus 在命令行上驱动 Bridge：推送源文件、资源与字体，编译并输出 PDF 或 SVG。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ByLCY/papyrus-bridge/bridge"
	"github.com/ByLCY/papyrus-bridge/world"
)

// CLI 定义命令行接口。
var CLI struct {
	LogLevel string `name:"log-level" help:"日志级别（debug、info、warn、error）" default:"warn" enum:"debug,info,warn,error"`

	Render RenderCmd `cmd:"" help:"编译文档并输出 PDF 或 SVG"`
	Fonts  FontsCmd  `cmd:"" help:"列出字体文件中的全部 face"`
}

// Globals 是各子命令共享的运行环境。
type Globals struct {
	Ctx context.Context
	Log *zap.Logger
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name("papyrus"),
		kong.Description("Papyrus 文档编译器"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	log, err := newLogger(CLI.LogLevel)
	kctx.FatalIfErrorf(err)
	defer log.Sync()
	bridge.SetLogger(log)
	world.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = kctx.Run(&Globals{Ctx: ctx, Log: log})
	kctx.FatalIfErrorf(err)
}

// newLogger 在 debug 级别使用开发配置，其余级别使用生产配置；日志一律写到标准错误。
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("无效的日志级别 %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
