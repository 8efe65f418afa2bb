package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/solver"
	"github.com/paiban/medsched/pkg/validator"
)

// ScheduleDiagnosis 一份排班的审计结果
type ScheduleDiagnosis struct {
	Label            string               `json:"label"`
	Assigned         int                  `json:"assigned"`
	Unfilled         int                  `json:"unfilled"`
	UnknownShifts    []string             `json:"unknown_shifts,omitempty"`
	UnknownProviders []string             `json:"unknown_providers,omitempty"`
	Errors           int                  `json:"errors"`
	Conflicts        []validator.Conflict `json:"conflicts"`
}

// labeledSchedule 从文件中读出的一份排班
type labeledSchedule struct {
	label       string
	assignments []solver.AssignmentView
}

func buildDiagnoseCommand(root *rootOptions) *cobra.Command {
	var casePath, schedulePath, out string
	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "按案例的硬性规则审计已有排班",
		Long: `读取案例与排班文件，逐份检查休息时间、连续天数、休假、类型、总数等硬性规则。
排班文件可以是 solve 的输出、单个方案，或 {shift_id: provider} 映射。
存在 error 级冲突时以非零状态退出。`,
		Example: `  medsched diagnose --case ward.json --schedule result.json`,
		Args:    cobra.NoArgs,
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
			if err := v.ValidateCase(c); err != nil {
				return err
			}
			inst, _, err := model.Prepare(c)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(schedulePath)
			if err != nil {
				return fmt.Errorf("读取排班文件失败: %w", err)
			}
			schedules, err := parseSchedules(data)
			if err != nil {
				return err
			}

			reports := make([]ScheduleDiagnosis, 0, len(schedules))
			errorCount := 0
			for _, sch := range schedules {
				r := diagnoseSchedule(inst, sch)
				errorCount += r.Errors
				reports = append(reports, r)
				logger.WithComponent("cli").Info().
					Str("schedule", r.Label).
					Int("conflicts", len(r.Conflicts)).
					Int("errors", r.Errors).
					Msg("排班审计完成")
			}
			if err := writeJSON(cmd.OutOrStdout(), out, reports); err != nil {
				return err
			}
			if errorCount > 0 {
				return fmt.Errorf("发现 %d 处硬性冲突", errorCount)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&casePath, "case", "f", "", "案例 JSON 文件")
	cmd.Flags().StringVarP(&schedulePath, "schedule", "s", "", "排班 JSON 文件")
	cmd.Flags().StringVarP(&out, "out", "o", "", "报告输出文件，默认标准输出")
	_ = cmd.MarkFlagRequired("case")
	_ = cmd.MarkFlagRequired("schedule")
	return cmd
}

// parseSchedules 识别排班文件格式：求解结果、单个方案、分配列表或班次到人员的映射
func parseSchedules(data []byte) ([]labeledSchedule, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("排班文件为空")
	}

	if data[0] == '[' {
		var list []solver.AssignmentView
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("解析分配列表失败: %w", err)
		}
		return []labeledSchedule{{label: "assignments", assignments: list}}, nil
	}

	var doc struct {
		Solutions   []solver.Schedule       `json:"solutions"`
		Assignments []solver.AssignmentView `json:"assignments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析排班文件失败: %w", err)
	}
	switch {
	case len(doc.Solutions) > 0:
		out := make([]labeledSchedule, len(doc.Solutions))
		for i, sch := range doc.Solutions {
			out[i] = labeledSchedule{label: fmt.Sprintf("solution_%d", sch.Rank), assignments: sch.Assignments}
		}
		return out, nil
	case doc.Assignments != nil:
		return []labeledSchedule{{label: "schedule", assignments: doc.Assignments}}, nil
	}

	var byShift map[string]string
	if err := json.Unmarshal(data, &byShift); err != nil {
		return nil, fmt.Errorf("无法识别的排班格式: %w", err)
	}
	ids := make([]string, 0, len(byShift))
	for id := range byShift {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]solver.AssignmentView, len(ids))
	for i, id := range ids {
		list[i] = solver.AssignmentView{ShiftID: id, Provider: byShift[id]}
	}
	return []labeledSchedule{{label: "mapping", assignments: list}}, nil
}

// diagnoseSchedule 把按名字的分配映射为索引后跑冲突检测；未出现的班次视为空缺
func diagnoseSchedule(inst *model.Instance, sch labeledSchedule) ScheduleDiagnosis {
	r := ScheduleDiagnosis{Label: sch.label}
	providers := make(map[string]int, inst.NumProviders())
	for p, prov := range inst.Providers {
		providers[prov.Name] = p
	}

	assign := make([]int, inst.NumShifts())
	for s := range assign {
		assign[s] = -1
	}
	for _, a := range sch.assignments {
		s, ok := inst.ShiftIndex(a.ShiftID)
		if !ok {
			r.UnknownShifts = append(r.UnknownShifts, a.ShiftID)
			continue
		}
		if a.Provider == "" {
			continue
		}
		p, ok := providers[a.Provider]
		if !ok {
			r.UnknownProviders = append(r.UnknownProviders, a.Provider)
			continue
		}
		assign[s] = p
	}

	for _, p := range assign {
		if p >= 0 {
			r.Assigned++
		} else {
			r.Unfilled++
		}
	}
	r.Conflicts = validator.NewConflictDetector(inst).DetectAll(assign)
	if r.Conflicts == nil {
		r.Conflicts = []validator.Conflict{}
	}
	for _, c := range r.Conflicts {
		if c.Severity == "error" {
			r.Errors++
		}
	}
	return r
}
