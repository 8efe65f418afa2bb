package builtin

import (
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// NewManager 按实例权重注册全部约束族
// 类型区间与周末区间仅在对应硬权重大于 0 时启用，与建模口径一致
func NewManager(inst *model.Instance) *constraint.Manager {
	w := inst.Weights
	m := constraint.NewManager()

	m.Register(NewUnfilledConstraint(w.Unfilled))
	m.Register(NewShiftLessConstraint(w.ShiftLess))
	m.Register(NewShiftMoreConstraint(w.ShiftMore))
	m.Register(NewCantWorkConstraint(w.CantWork))
	m.Register(NewConsecutiveConstraint(w.Consec))
	m.Register(NewHardOnConstraint(w.CantWork))
	if w.TypeRange > 0 {
		m.Register(NewTypeRangeConstraint(w.TypeRange))
	}
	if w.WeekendRange > 0 {
		m.Register(NewWeekendRangeConstraint(w.WeekendRange))
	}

	m.Register(NewClusterConstraint(w.Cluster))
	m.Register(NewClusterSizeConstraint(w.ClusterSize))
	m.Register(NewFairnessConstraint(w.Unfair))
	m.Register(NewWeekendSplitConstraint(w.WeekendSplit))
	m.Register(NewSoftOnConstraint(w.SoftOn))
	m.Register(NewRequestedOffConstraint(w.SoftOff))

	return m
}
