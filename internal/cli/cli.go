// Package cli 提供基于 cobra 的命令行入口
//
//	medsched solve    --case f.json [--k --l --seed --time --threads --engine --out]
//	medsched validate --case f.json
//	medsched diagnose --case f.json --schedule result.json
//	medsched serve    [--config configs/medsched.yaml]
//	medsched example
//	medsched token    --subject name
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/paiban/medsched/internal/config"
	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
)

// 构建信息（通过 ldflags 注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type rootOptions struct {
	configFile string
	logLevel   string
}

// BuildCLI 构建根命令
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "medsched",
		Short: "medsched: 医护排班求解服务",
		Long: `medsched 为医护人员排班：
- 两阶段约束优化（先保硬约束，再优化软目标）
- 从解池中挑选彼此差异足够大的多个方案
- HTTP/websocket 服务与命令行两种使用方式`,
		Version:       fmt.Sprintf("%s (%s, %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "配置文件路径（YAML）")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "日志级别，覆盖配置")

	rootCmd.AddCommand(buildSolveCommand(opts))
	rootCmd.AddCommand(buildValidateCommand(opts))
	rootCmd.AddCommand(buildDiagnoseCommand(opts))
	rootCmd.AddCommand(buildServeCommand(opts))
	rootCmd.AddCommand(buildExampleCommand())
	rootCmd.AddCommand(buildTokenCommand(opts))

	return rootCmd
}

// loadConfig 加载配置并初始化日志；命令行工具的日志写到 stderr
func (o *rootOptions) loadConfig(toStderr bool) (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if toStderr && cfg.Log.Output != "file" {
		cfg.Log.Output = "stderr"
	}
	logger.Init(cfg.Log)
	return cfg, nil
}

// writeJSON 写缩进 JSON 到 path，path 为空或 "-" 时写到 w
func writeJSON(w io.Writer, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	data = append(data, '\n')
	if path == "" || path == "-" {
		_, err = w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("写入 %s 失败: %w", path, err)
	}
	return nil
}

func buildExampleCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "example",
		Short: "输出示例案例 JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd.OutOrStdout(), out, model.SampleCase())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "输出文件，默认标准输出")
	return cmd
}
