// Package main 提供 PXP 节点命令行程序
//
// 节点在已启用的传输上监听，连接种子节点，并持续经已有会话发现新的对端，
// 直到达到目标会话数。应用数据通道以回显方式处理。
//
// 使用方法:
//
//	pxp-node -network demo -tcp 4001
//	pxp-node -network demo -tcp 4002 -seed tcp=127.0.0.1:4001
//	pxp-node -config node.json
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pxp "github.com/dep2p/go-pxp"
	"github.com/dep2p/go-pxp/config"
	"github.com/dep2p/go-pxp/pkg/lib/log"
	"github.com/dep2p/go-pxp/pkg/types"
)

var logger = log.Logger("cmd/pxp-node")

// seedFlags 可重复的 -seed transport=address 参数
type seedFlags []config.Seed

func (s *seedFlags) String() string {
	parts := make([]string, 0, len(*s))
	for _, seed := range *s {
		parts = append(parts, seed.Transport+"="+seed.Address)
	}
	return strings.Join(parts, ",")
}

func (s *seedFlags) Set(v string) error {
	transport, addr, ok := strings.Cut(v, "=")
	if !ok || transport == "" || addr == "" {
		return fmt.Errorf("seed must be transport=address, got %q", v)
	}
	*s = append(*s, config.Seed{Transport: transport, Address: addr})
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var seeds seedFlags
	configPath := flag.String("config", "", "JSON 配置文件路径")
	network := flag.String("network", "", "网络 ID，覆盖配置文件")
	tcpPort := flag.Int("tcp", -1, "TCP 监听端口，覆盖配置文件")
	logLevel := flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	flag.Var(&seeds, "seed", "种子节点 transport=address，可重复")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *network != "" {
		cfg.NetworkID = *network
	}
	if *tcpPort >= 0 {
		cfg.Transport.TCP.Enable = true
		cfg.Transport.TCP.Port = *tcpPort
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	cfg.Seeds = append(cfg.Seeds, seeds...)

	log.Setup(os.Stderr, cfg.Log.Level, cfg.Log.JSON)

	node, err := pxp.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sub, err := node.Swarm().Bus().Subscribe(new(types.EvtConnect))
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() { _ = sub.Close() }()
	go serveConnects(sub.Out())

	if err := node.Start(ctx); err != nil {
		return err
	}

	for name, addr := range node.ListenAddrs() {
		fmt.Printf("监听 %s: %s\n", name, addr)
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           node.MetricsHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("指标服务退出", "err", err)
			}
		}()
	}

	<-ctx.Done()
	fmt.Println("正在关闭节点...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return node.Stop(shutdownCtx)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.NewConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// 命令行参数在验证前覆盖文件中的值
	return config.Parse(data)
}

// serveConnects 回显每个应用数据通道
func serveConnects(events <-chan any) {
	for ev := range events {
		evt, ok := ev.(types.EvtConnect)
		if !ok {
			continue
		}
		peerID := "endpoint"
		if evt.Peer != nil {
			peerID = evt.Peer.ID()
		}
		logger.Info("新的数据通道", "network", evt.Network, "peer", peerID)
		go func(stream io.ReadWriteCloser) {
			defer stream.Close()
			_, _ = io.Copy(stream, stream)
		}(evt.Stream)
	}
}
