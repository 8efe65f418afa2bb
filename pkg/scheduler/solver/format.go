package solver

import (
	"time"

	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/builder"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
	"github.com/paiban/medsched/pkg/scheduler/diversity"
	"github.com/paiban/medsched/pkg/stats"
	"github.com/paiban/medsched/pkg/validator"
)

// Result 求解结果
type Result struct {
	Status     string      `json:"status"`
	Solutions  []*Schedule `json:"solutions"`
	Statistics *Statistics `json:"statistics"`
	Warnings   []string    `json:"warnings,omitempty"`
}

// Schedule 一份被选中的排班
type Schedule struct {
	Rank        int                  `json:"rank"`
	Objective   int64                `json:"objective"`
	Assignments []AssignmentView     `json:"assignments"`
	Unfilled    []string             `json:"unfilled"`
	Hard        int64                `json:"hard_penalty"`
	Soft        int64                `json:"soft_penalty"`
	HardSlacks  map[string]int64     `json:"hard_slacks"`
	SoftCounts  map[string]int64     `json:"soft_counts"`
	Workload    []stats.ProviderStat `json:"workload"`
	StdDev      float64              `json:"workload_std_dev"`
	Gini        float64              `json:"workload_gini"`
	Coverage    float64              `json:"coverage_rate"`
	Grid        *stats.Grid          `json:"grid"`
	Conflicts   []validator.Conflict `json:"conflicts,omitempty"`
}

// AssignmentView 一条分配
type AssignmentView struct {
	ShiftID      string `json:"shift_id"`
	Date         string `json:"date"`
	Type         string `json:"type"`
	Start        string `json:"start"`
	End          string `json:"end"`
	Provider     string `json:"provider"`
	ProviderType string `json:"provider_type"`
}

// Statistics 求解统计
type Statistics struct {
	Status             string                    `json:"status"`
	Engine             string                    `json:"engine"`
	Phase1             PhaseReport               `json:"phase1"`
	Phase2             PhaseReport               `json:"phase2"`
	Pool               PoolStats                 `json:"pool"`
	SolutionsCollected int                       `json:"solutions_collected"`
	SolutionsSelected  int                       `json:"solutions_selected"`
	RequestedK         int                       `json:"requested_k"`
	RequestedL         int                       `json:"requested_l"`
	AchievedL          int                       `json:"achieved_l"`
	FinalL             int                       `json:"final_l"`
	Elapsed            time.Duration             `json:"elapsed"`
	TimeSplit          [2]time.Duration          `json:"time_split"`
	FrozenSlacks       int                       `json:"frozen_slacks"`
	Degraded           bool                      `json:"degraded"`
	Fallback           bool                      `json:"fallback"`
	ReducedCoverage    bool                      `json:"reduced_coverage"`
	Model              builder.Stats             `json:"model"`
	EffectiveConstants []model.EffectiveConstant `json:"effective_constants,omitempty"`
}

// Format 把选中的解整理为结果；排名按选中顺序从 1 开始
func Format(inst *model.Instance, out *Outcome, sel diversity.Selection) *Result {
	entries := out.Pool.Entries()
	mgr := builtin.NewManager(inst)
	fairness := stats.NewFairnessAnalyzer()
	coverage := stats.NewCoverageAnalyzer()
	detector := validator.NewConflictDetector(inst)

	res := &Result{Status: out.Phase2.Status}
	if res.Status == "" {
		res.Status = out.Phase1.Status
	}
	for rank, idx := range sel.Indices {
		e := entries[idx]
		sc := constraint.NewContext(inst)
		sc.SetAssignment(e.Assign)
		eval := mgr.Evaluate(sc)
		fm := fairness.Analyze(inst, e.Assign)

		sch := &Schedule{
			Rank:       rank + 1,
			Objective:  e.Objective,
			Hard:       eval.Hard,
			Soft:       eval.Soft,
			HardSlacks: make(map[string]int64),
			SoftCounts: make(map[string]int64),
			Workload:   fm.ProviderStats,
			StdDev:     fm.WorkloadStdDev,
			Gini:       fm.WorkloadGini,
			Coverage:   coverage.Analyze(inst, e.Assign).OverallCoverage,
			Grid:       stats.BuildGrid(inst, e.Assign),
			Conflicts:  detector.DetectAll(e.Assign),
		}
		for _, f := range eval.Families {
			if f.Category == constraint.CategoryHard {
				sch.HardSlacks[string(f.Type)] = f.Amount
			} else {
				sch.SoftCounts[string(f.Type)] = f.Amount
			}
		}
		for s, p := range e.Assign {
			sh := inst.Shifts[s]
			if p == constraint.Unassigned {
				sch.Unfilled = append(sch.Unfilled, sh.ID)
				continue
			}
			prov := inst.Providers[p]
			sch.Assignments = append(sch.Assignments, AssignmentView{
				ShiftID:      sh.ID,
				Date:         sh.Date,
				Type:         sh.Type,
				Start:        sh.Start,
				End:          sh.End,
				Provider:     prov.Name,
				ProviderType: prov.Type,
			})
		}
		res.Solutions = append(res.Solutions, sch)
	}

	st := &Statistics{
		Status:             res.Status,
		Engine:             out.Engine,
		Phase1:             out.Phase1,
		Phase2:             out.Phase2,
		Pool:               out.Pool.Stats(),
		SolutionsCollected: len(entries),
		SolutionsSelected:  len(sel.Indices),
		RequestedK:         inst.Run.K,
		RequestedL:         inst.Run.L,
		AchievedL:          sel.AchievedThreshold,
		FinalL:             sel.FinalThreshold,
		Elapsed:            out.Elapsed,
		TimeSplit:          out.TimeSplit,
		FrozenSlacks:       out.FrozenSlacks,
		Degraded:           out.Degraded,
		Fallback:           out.Fallback,
		ReducedCoverage:    out.Fallback,
	}
	if out.Built != nil {
		st.Model = out.Built.Stats
	}
	if inst.Constants != nil {
		st.EffectiveConstants = inst.Constants.Effective()
	}
	res.Statistics = st
	return res
}
