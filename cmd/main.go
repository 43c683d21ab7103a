package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/pkg/config"
	"rsi-sentry/pkg/logger"
	"rsi-sentry/pkg/types"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "rsi-sentry",
		Short:         "RSI overbought/oversold monitor for crypto pairs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径，默认查找 ./configs/config.yaml")

	rootCmd.AddCommand(runCmd(), rsiCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

// setup 加载配置并初始化全局日志
func setup() (*types.Config, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	sync, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	return cfg, sync, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "启动监控服务和看板接口",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := setup()
			if err != nil {
				return err
			}
			defer sync()

			app := NewApp(cfg)
			if err := app.Start(); err != nil {
				return err
			}
			app.WaitForShutdown()
			app.Stop()
			return nil
		},
	}
}

func rsiCmd() *cobra.Command {
	var (
		timeframe string
		points    int
	)
	cmd := &cobra.Command{
		Use:   "rsi <symbol>",
		Short: "拉取一次K线并打印最近的RSI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sync, err := setup()
			if err != nil {
				return err
			}
			defer sync()

			tf := types.Timeframe(cfg.Timeframe)
			if timeframe != "" {
				if tf, err = types.ParseTimeframe(timeframe); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Fetch.Timeout+5*time.Second)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			candles, err := fetcher.NewKlineFetcher(cfg.Fetch).FetchCandles(ctx, symbol, tf, cfg.Fetch.Limit)
			if err != nil {
				return err
			}
			series := indicators.ComputeRSI(candles, cfg.RSI.Period)
			if len(series) == 0 {
				zap.L().Warn("⚠️ K线数量不足，无法计算RSI", zap.Int("candles", len(candles)))
				return nil
			}
			return printRSI(cmd, symbol, tf, series, points)
		},
	}
	cmd.Flags().StringVarP(&timeframe, "timeframe", "t", "", "K线周期，默认使用配置中的周期")
	cmd.Flags().IntVarP(&points, "points", "n", 10, "打印最近多少个点")
	return cmd
}

func printRSI(cmd *cobra.Command, symbol string, tf types.Timeframe, series []types.RsiPoint, points int) error {
	if points > 0 && len(series) > points {
		series = series[len(series)-points:]
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📊 %s %s RSI\n", symbol, tf)
	for _, p := range series {
		fmt.Fprintf(out, "%s  %6.2f  %s\n", p.Timestamp.Local().Format("2006-01-02 15:04"), p.Value, zoneLabel(p.Value))
	}
	return nil
}

func zoneLabel(value float64) string {
	switch analyzer.Classify(value) {
	case types.StatusOverbought:
		return "超买"
	case types.StatusOversold:
		return "超卖"
	default:
		return ""
	}
}
