// Package cpsat 提供整数约束模型与求解引擎接口
//
// 模型支持布尔/有界整数变量、带强制文字的线性约束、AtMostOne、
// 乘积/绝对值/最大值等式以及线性目标。求解由 Engine 实现完成。
package cpsat

import (
	"fmt"
	"sort"
)

// Var 可出现在表达式中的变量
type Var interface {
	index() int
}

// IntVar 有界整数变量
type IntVar struct {
	idx int
}

func (v IntVar) index() int { return v.idx }

// Index 变量在模型中的序号
func (v IntVar) Index() int { return v.idx }

// BoolVar 0/1 变量
type BoolVar struct {
	IntVar
}

// Lit 变量为真的文字
func (b BoolVar) Lit() Literal { return Literal{v: b.idx} }

// Not 变量为假的文字
func (b BoolVar) Not() Literal { return Literal{v: b.idx, neg: true} }

// Literal 布尔文字
type Literal struct {
	v   int
	neg bool
}

// Not 取反
func (l Literal) Not() Literal { return Literal{v: l.v, neg: !l.neg} }

// Var 文字对应的变量
func (l Literal) Var() BoolVar { return BoolVar{IntVar{idx: l.v}} }

// Negated 是否为取反文字
func (l Literal) Negated() bool { return l.neg }

type varDef struct {
	lb, ub int64
	name   string
	isBool bool
}

// LinearExpr 线性表达式 Σ coef·var + offset
type LinearExpr struct {
	vars   []int
	coefs  []int64
	offset int64
}

// NewLinearExpr 创建空表达式
func NewLinearExpr() *LinearExpr {
	return &LinearExpr{}
}

// Sum 变量之和
func Sum[T Var](vs ...T) *LinearExpr {
	e := NewLinearExpr()
	for _, v := range vs {
		e.AddTerm(v, 1)
	}
	return e
}

// Add 加上变量
func (e *LinearExpr) Add(v Var) *LinearExpr {
	return e.AddTerm(v, 1)
}

// AddTerm 加上 coef·v
func (e *LinearExpr) AddTerm(v Var, coef int64) *LinearExpr {
	if coef == 0 {
		return e
	}
	e.vars = append(e.vars, v.index())
	e.coefs = append(e.coefs, coef)
	return e
}

// AddLiteral 加上 coef·lit，取反文字展开为 coef·(1-v)
func (e *LinearExpr) AddLiteral(l Literal, coef int64) *LinearExpr {
	if l.neg {
		e.offset += coef
		e.vars = append(e.vars, l.v)
		e.coefs = append(e.coefs, -coef)
		return e
	}
	e.vars = append(e.vars, l.v)
	e.coefs = append(e.coefs, coef)
	return e
}

// AddExpr 加上 coef·other
func (e *LinearExpr) AddExpr(other *LinearExpr, coef int64) *LinearExpr {
	if other == nil || coef == 0 {
		return e
	}
	for i, v := range other.vars {
		e.vars = append(e.vars, v)
		e.coefs = append(e.coefs, other.coefs[i]*coef)
	}
	e.offset += other.offset * coef
	return e
}

// AddConstant 加上常数
func (e *LinearExpr) AddConstant(k int64) *LinearExpr {
	e.offset += k
	return e
}

// Offset 常数项
func (e *LinearExpr) Offset() int64 { return e.offset }

// Len 项数
func (e *LinearExpr) Len() int { return len(e.vars) }

// Clone 深拷贝
func (e *LinearExpr) Clone() *LinearExpr {
	return &LinearExpr{
		vars:   append([]int(nil), e.vars...),
		coefs:  append([]int64(nil), e.coefs...),
		offset: e.offset,
	}
}

// Evaluate 按变量取值计算表达式
func (e *LinearExpr) Evaluate(value func(v Var) int64) int64 {
	sum := e.offset
	for i, v := range e.vars {
		sum += e.coefs[i] * value(IntVar{idx: v})
	}
	return sum
}

func (e *LinearExpr) evaluate(values []int64) int64 {
	sum := e.offset
	for i, v := range e.vars {
		sum = satAdd(sum, satMul(e.coefs[i], values[v]))
	}
	return sum
}

// merged 合并同一变量的系数，去掉零系数
func (e *LinearExpr) merged() ([]int, []int64) {
	acc := make(map[int]int64, len(e.vars))
	order := make([]int, 0, len(e.vars))
	for i, v := range e.vars {
		if _, ok := acc[v]; !ok {
			order = append(order, v)
		}
		acc[v] += e.coefs[i]
	}
	vars := make([]int, 0, len(order))
	coefs := make([]int64, 0, len(order))
	for _, v := range order {
		if c := acc[v]; c != 0 {
			vars = append(vars, v)
			coefs = append(coefs, c)
		}
	}
	return vars, coefs
}

type constraintKind uint8

const (
	kindLinear constraintKind = iota
	kindAtMostOne
	kindProduct
	kindAbs
	kindMax
)

// Constraint 模型中的约束
type Constraint struct {
	kind    constraintKind
	name    string
	vars    []int
	coefs   []int64
	lo, hi  int64
	lits    []Literal
	target  int
	enforce []Literal
}

// OnlyEnforceIf 仅当所有文字为真时约束生效（仅线性约束支持）
func (c *Constraint) OnlyEnforceIf(lits ...Literal) *Constraint {
	c.enforce = append(c.enforce, lits...)
	return c
}

// WithName 设置约束名
func (c *Constraint) WithName(name string) *Constraint {
	c.name = name
	return c
}

// Model 约束模型
type Model struct {
	name      string
	vars      []varDef
	cons      []*Constraint
	objective *LinearExpr
	maximize  bool
	hints     map[int]int64
	decision  []int
	constants map[int64]IntVar
}

// NewModel 创建模型
func NewModel(name string) *Model {
	return &Model{
		name:      name,
		hints:     make(map[int]int64),
		constants: make(map[int64]IntVar),
	}
}

// Name 模型名
func (m *Model) Name() string { return m.name }

// NewIntVar 创建 [lb, ub] 整数变量
func (m *Model) NewIntVar(lb, ub int64, name string) IntVar {
	m.vars = append(m.vars, varDef{lb: lb, ub: ub, name: name})
	return IntVar{idx: len(m.vars) - 1}
}

// NewBoolVar 创建布尔变量
func (m *Model) NewBoolVar(name string) BoolVar {
	m.vars = append(m.vars, varDef{lb: 0, ub: 1, name: name, isBool: true})
	return BoolVar{IntVar{idx: len(m.vars) - 1}}
}

// NewConstant 常量变量，相同取值复用
func (m *Model) NewConstant(v int64) IntVar {
	if c, ok := m.constants[v]; ok {
		return c
	}
	c := m.NewIntVar(v, v, fmt.Sprintf("const_%d", v))
	m.constants[v] = c
	return c
}

// TrueLiteral 恒真文字
func (m *Model) TrueLiteral() Literal {
	return Literal{v: m.NewConstant(1).idx}
}

// AddLinearConstraint lo ≤ expr ≤ hi
func (m *Model) AddLinearConstraint(expr *LinearExpr, lo, hi int64) *Constraint {
	vars, coefs := expr.merged()
	c := &Constraint{
		kind:  kindLinear,
		vars:  vars,
		coefs: coefs,
		lo:    satSub(lo, expr.offset),
		hi:    satSub(hi, expr.offset),
	}
	if lo <= minBound {
		c.lo = minBound
	}
	if hi >= maxBound {
		c.hi = maxBound
	}
	m.cons = append(m.cons, c)
	return c
}

// AddEquality expr == value
func (m *Model) AddEquality(expr *LinearExpr, value int64) *Constraint {
	return m.AddLinearConstraint(expr, value, value)
}

// AddLessOrEqual expr ≤ value
func (m *Model) AddLessOrEqual(expr *LinearExpr, value int64) *Constraint {
	return m.AddLinearConstraint(expr, minBound, value)
}

// AddGreaterOrEqual expr ≥ value
func (m *Model) AddGreaterOrEqual(expr *LinearExpr, value int64) *Constraint {
	return m.AddLinearConstraint(expr, value, maxBound)
}

// AddAtMostOne 至多一个文字为真
func (m *Model) AddAtMostOne(lits ...Literal) *Constraint {
	c := &Constraint{kind: kindAtMostOne, lits: append([]Literal(nil), lits...)}
	m.cons = append(m.cons, c)
	return c
}

// AddMultiplicationEquality target == a·b
func (m *Model) AddMultiplicationEquality(target, a, b Var) *Constraint {
	c := &Constraint{kind: kindProduct, target: target.index(), vars: []int{a.index(), b.index()}}
	m.cons = append(m.cons, c)
	return c
}

// AddAbsEquality target == |v|
func (m *Model) AddAbsEquality(target, v Var) *Constraint {
	c := &Constraint{kind: kindAbs, target: target.index(), vars: []int{v.index()}}
	m.cons = append(m.cons, c)
	return c
}

// AddMaxEquality target == max(vs)
func (m *Model) AddMaxEquality(target Var, vs ...Var) *Constraint {
	idx := make([]int, len(vs))
	for i, v := range vs {
		idx[i] = v.index()
	}
	c := &Constraint{kind: kindMax, target: target.index(), vars: idx}
	m.cons = append(m.cons, c)
	return c
}

// Minimize 设置最小化目标
func (m *Model) Minimize(expr *LinearExpr) {
	m.objective = expr.Clone()
	m.maximize = false
}

// Maximize 设置最大化目标
func (m *Model) Maximize(expr *LinearExpr) {
	m.objective = expr.Clone()
	m.maximize = true
}

// Objective 当前目标表达式
func (m *Model) Objective() *LinearExpr {
	return m.objective
}

// AddHint 提示变量取值，搜索时优先尝试
func (m *Model) AddHint(v Var, value int64) {
	m.hints[v.index()] = value
}

// ClearHints 清空提示
func (m *Model) ClearHints() {
	m.hints = make(map[int]int64)
}

// AddDecisionStrategy 指定优先分支的变量顺序
func (m *Model) AddDecisionStrategy(vs ...Var) {
	for _, v := range vs {
		m.decision = append(m.decision, v.index())
	}
}

// NumVariables 变量数
func (m *Model) NumVariables() int { return len(m.vars) }

// NumConstraints 约束数
func (m *Model) NumConstraints() int { return len(m.cons) }

// VarName 变量名
func (m *Model) VarName(v Var) string { return m.vars[v.index()].name }

// Bounds 变量定义域
func (m *Model) Bounds(v Var) (int64, int64) {
	d := m.vars[v.index()]
	return d.lb, d.ub
}

// Validate 检查模型结构，返回第一个问题
func (m *Model) Validate() error {
	n := len(m.vars)
	for i, d := range m.vars {
		if d.lb > d.ub {
			return fmt.Errorf("变量 %s 定义域为空 [%d, %d]", d.name, d.lb, d.ub)
		}
		if d.lb < minBound || d.ub > maxBound {
			return fmt.Errorf("变量 %s 定义域超出范围", m.vars[i].name)
		}
	}
	check := func(idx int, what string) error {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%s 引用了不存在的变量 #%d", what, idx)
		}
		return nil
	}
	checkLit := func(l Literal, what string) error {
		if err := check(l.v, what); err != nil {
			return err
		}
		if d := m.vars[l.v]; d.lb < 0 || d.ub > 1 {
			return fmt.Errorf("%s 的文字 %s 不是布尔变量", what, d.name)
		}
		return nil
	}
	for ci, c := range m.cons {
		what := c.name
		if what == "" {
			what = fmt.Sprintf("约束#%d", ci)
		}
		for _, v := range c.vars {
			if err := check(v, what); err != nil {
				return err
			}
		}
		for _, l := range c.lits {
			if err := checkLit(l, what); err != nil {
				return err
			}
		}
		for _, l := range c.enforce {
			if err := checkLit(l, what); err != nil {
				return err
			}
		}
		switch c.kind {
		case kindLinear:
			if c.lo > c.hi {
				return fmt.Errorf("%s 上下界矛盾", what)
			}
		case kindProduct, kindAbs, kindMax:
			if err := check(c.target, what); err != nil {
				return err
			}
			if len(c.vars) == 0 {
				return fmt.Errorf("%s 缺少参数变量", what)
			}
			if len(c.enforce) > 0 {
				return fmt.Errorf("%s 不支持强制文字", what)
			}
		}
	}
	if m.objective != nil {
		for _, v := range m.objective.vars {
			if err := check(v, "目标函数"); err != nil {
				return err
			}
		}
	}
	for v := range m.hints {
		if err := check(v, "提示"); err != nil {
			return err
		}
	}
	for _, v := range m.decision {
		if err := check(v, "分支策略"); err != nil {
			return err
		}
	}
	return nil
}

// sortedHints 提示的确定性遍历顺序
func (m *Model) sortedHints() []int {
	keys := make([]int, 0, len(m.hints))
	for k := range m.hints {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
