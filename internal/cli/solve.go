package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/solver"
	"github.com/paiban/medsched/pkg/validator"
)

type solveOptions struct {
	casePath   string
	out        string
	engine     string
	k          int
	l          int
	seed       int64
	seconds    float64
	threads    int
	noFallback bool
}

func buildSolveCommand(root *rootOptions) *cobra.Command {
	so := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "求解一个案例文件并输出多个差异化排班方案",
		Example: `  medsched solve --case ward.json
  medsched solve --case ward.json --k 5 --l 4 --time 60 --out result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, root, so)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&so.casePath, "case", "f", "", "案例 JSON 文件")
	f.StringVarP(&so.out, "out", "o", "", "结果输出文件，默认标准输出")
	f.StringVar(&so.engine, "engine", "", "求解引擎：cpsat 或 greedy，默认取配置")
	f.IntVar(&so.k, "k", 0, "输出方案数，覆盖案例中的 run.k")
	f.IntVar(&so.l, "l", 0, "方案两两至少相差的分配数，覆盖 run.L")
	f.Int64Var(&so.seed, "seed", 0, "随机种子，覆盖 run.seed")
	f.Float64Var(&so.seconds, "time", 0, "总求解时间（秒），覆盖 run.time")
	f.IntVar(&so.threads, "threads", 0, "搜索线程数，覆盖 num_threads")
	f.BoolVar(&so.noFallback, "no-fallback", false, "引擎不可用时直接失败")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

// applyOverrides 命令行参数覆盖案例中的运行参数，只处理显式给出的参数
func (so *solveOptions) applyOverrides(cmd *cobra.Command, c *model.Case) {
	f := cmd.Flags()
	if f.Changed("k") {
		k := so.k
		c.Run.K = &k
	}
	if f.Changed("l") {
		l := so.l
		c.Run.L = &l
	}
	if f.Changed("seed") {
		seed := so.seed
		c.Run.Seed = &seed
	}
	if f.Changed("time") {
		sec := so.seconds
		c.Run.Time = &sec
	}
}

func runSolve(cmd *cobra.Command, root *rootOptions, so *solveOptions) error {
	cfg, err := root.loadConfig(true)
	if err != nil {
		return err
	}

	c, err := model.LoadCaseFile(so.casePath)
	if err != nil {
		return err
	}
	so.applyOverrides(cmd, c)

	v, err := validator.New(cfg.Solver.Lang)
	if err != nil {
		return err
	}
	if err := v.ValidateCase(c); err != nil {
		return err
	}

	engine := cfg.Solver.Engine
	if so.engine != "" {
		engine = so.engine
	}
	if engine != "cpsat" && engine != solver.EngineGreedy {
		return fmt.Errorf("未知引擎 %q，可选 cpsat 或 greedy", engine)
	}
	workers := cfg.Solver.Workers
	if so.threads > 0 {
		workers = so.threads
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.WithComponent("cli")
	start := time.Now()
	res, err := solver.Run(ctx, c, solver.Options{
		EngineName:      engine,
		DisableFallback: cfg.Solver.DisableFallback || so.noFallback,
		MinPhaseTime:    cfg.Solver.MinPhaseTime,
		Workers:         workers,
		Progress: func(stage solver.Stage, percent int, message string) {
			log.Info().Str("stage", string(stage)).Int("percent", percent).Msg(message)
		},
	})
	if err != nil {
		return err
	}
	if res == nil {
		return errors.New("求解未返回结果")
	}

	if err := writeJSON(cmd.OutOrStdout(), so.out, res); err != nil {
		return err
	}

	event := log.Info().
		Str("status", res.Status).
		Int("solutions", len(res.Solutions)).
		Dur("elapsed", time.Since(start))
	if st := res.Statistics; st != nil {
		event = event.Str("engine", st.Engine).Bool("degraded", st.Degraded).Bool("fallback", st.Fallback)
	}
	event.Msg("求解完成")
	return nil
}

func buildValidateCommand(root *rootOptions) *cobra.Command {
	var casePath, out string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "校验案例文件并输出概况，不求解",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(true)
			if err != nil {
				return err
			}
			c, err := model.LoadCaseFile(casePath)
			if err != nil {
				return err
			}
			v, err := validator.New(cfg.Solver.Lang)
			if err != nil {
				return err
			}
			report := v.Check(c)
			if err := writeJSON(cmd.OutOrStdout(), out, report); err != nil {
				return err
			}
			if !report.Valid {
				return fmt.Errorf("案例校验未通过：%d 处错误", len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&casePath, "case", "f", "", "案例 JSON 文件")
	cmd.Flags().StringVarP(&out, "out", "o", "", "报告输出文件，默认标准输出")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}
