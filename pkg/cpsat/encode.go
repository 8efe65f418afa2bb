package cpsat

import (
	"math/bits"

	"github.com/crillab/gophersat/solver"
)

// trueVar gophersat 中恒为真的变量
const trueVar = 1

// pbSum gophersat 变量上的线性和 Σ coef·x + off
type pbSum struct {
	coef  map[int]int64
	order []int
	off   int64
}

func newPBSum() *pbSum {
	return &pbSum{coef: make(map[int]int64)}
}

// addLit 加上 w·lit，负文字按 w·(1-x) 展开
func (s *pbSum) addLit(lit int, w int64) {
	if w == 0 {
		return
	}
	switch lit {
	case trueVar:
		s.off = satAdd(s.off, w)
		return
	case -trueVar:
		return
	}
	if lit < 0 {
		s.off = satAdd(s.off, w)
		lit, w = -lit, -w
	}
	if _, ok := s.coef[lit]; !ok {
		s.order = append(s.order, lit)
	}
	s.coef[lit] = satAdd(s.coef[lit], w)
}

func (s *pbSum) addConst(k int64) {
	s.off = satAdd(s.off, k)
}

func (s *pbSum) negated() *pbSum {
	n := &pbSum{coef: make(map[int]int64, len(s.coef)), order: append([]int(nil), s.order...), off: -s.off}
	for v, c := range s.coef {
		n.coef[v] = -c
	}
	return n
}

// normalize 改写为 Σ w·lit + off，所有权重为正
func (s *pbSum) normalize() (lits []int, ws []int64, off int64) {
	off = s.off
	for _, v := range s.order {
		c := s.coef[v]
		switch {
		case c > 0:
			lits = append(lits, v)
			ws = append(ws, c)
		case c < 0:
			off = satAdd(off, c)
			lits = append(lits, -v)
			ws = append(ws, -c)
		}
	}
	return lits, ws, off
}

// encoding 模型的伪布尔编码
//
// 整数变量 v 取值 lb + Σ 2^i·bit_i；布尔变量恰好一个位。
// 乘积用与门辅助位展开，绝对值与最大值引入选择位。
type encoding struct {
	m          *Model
	nvars      int
	bits       [][]int
	cons       []solver.PBConstr
	ands       map[[2]int]int
	infeasible bool

	hasObj   bool
	sign     int64
	objLits  []int
	objW     []int64
	objOff   int64
	objTotal int64

	key []int
}

func encode(m *Model) *encoding {
	e := &encoding{
		m:     m,
		nvars: trueVar,
		bits:  make([][]int, len(m.vars)),
		ands:  make(map[[2]int]int),
		sign:  1,
	}
	e.cons = append(e.cons, solver.PropClause(trueVar))

	for v, d := range m.vars {
		span := uint64(d.ub - d.lb)
		width := bits.Len64(span)
		e.bits[v] = make([]int, width)
		for i := range e.bits[v] {
			e.bits[v][i] = e.newVar()
		}
		if width > 0 && span != 1<<width-1 {
			s := newPBSum()
			e.addVar(s, v, 1)
			e.atLeast(s.negated(), -d.ub, nil)
		}
	}

	for _, c := range m.cons {
		enforce, active := e.enforcement(c.enforce)
		if !active {
			continue
		}
		switch c.kind {
		case kindLinear:
			e.linear(c, enforce)
		case kindAtMostOne:
			s := newPBSum()
			for _, l := range c.lits {
				s.addLit(-e.lit(l), 1)
			}
			e.atLeast(s, int64(len(c.lits)-1), enforce)
		case kindProduct:
			e.product(c)
		case kindAbs:
			e.abs(c)
		case kindMax:
			e.max(c)
		}
	}

	if m.objective != nil {
		e.hasObj = true
		if m.maximize {
			e.sign = -1
		}
		vars, coefs := m.objective.merged()
		s := newPBSum()
		s.addConst(e.sign * m.objective.offset)
		for i, v := range vars {
			e.addVar(s, v, e.sign*coefs[i])
		}
		e.objLits, e.objW, e.objOff = s.normalize()
		for _, w := range e.objW {
			e.objTotal = satAdd(e.objTotal, w)
		}
	}

	e.key = e.keyBits()
	if e.nvars > trueVar {
		// 让求解器的模型覆盖到最后一个变量
		e.cons = append(e.cons, solver.PropClause(trueVar, e.nvars))
	}
	return e
}

func (e *encoding) newVar() int {
	e.nvars++
	return e.nvars
}

// addVar 加上 coef·v 的位展开
func (e *encoding) addVar(s *pbSum, v int, coef int64) {
	s.addConst(satMul(coef, e.m.vars[v].lb))
	for i, x := range e.bits[v] {
		s.addLit(x, satMul(coef, int64(1)<<i))
	}
}

// lit 模型文字对应的 gophersat 文字，常量变量映射到 ±trueVar
func (e *encoding) lit(l Literal) int {
	g := trueVar
	if bs := e.bits[l.v]; len(bs) > 0 {
		g = bs[0]
	} else if e.m.vars[l.v].lb == 0 {
		g = -trueVar
	}
	if l.neg {
		g = -g
	}
	return g
}

// enforcement 去掉恒真的强制文字；有恒假文字时约束不生效
func (e *encoding) enforcement(ls []Literal) ([]int, bool) {
	var out []int
	for _, l := range ls {
		switch g := e.lit(l); g {
		case trueVar:
		case -trueVar:
			return nil, false
		default:
			out = append(out, g)
		}
	}
	return out, true
}

// atLeast 添加 s ≥ k；enforce 非空时仅在全部文字为真时生效
func (e *encoding) atLeast(s *pbSum, k int64, enforce []int) {
	lits, ws, off := s.normalize()
	rhs := satSub(k, off)
	if rhs <= 0 {
		return
	}
	var total int64
	for _, w := range ws {
		total = satAdd(total, w)
	}
	if total < rhs {
		if len(enforce) == 0 {
			e.infeasible = true
			return
		}
		clause := make([]int, len(enforce))
		for i, l := range enforce {
			clause[i] = -l
		}
		e.cons = append(e.cons, solver.PropClause(clause...))
		return
	}
	if len(enforce) > 0 {
		for _, l := range enforce {
			s.addLit(-l, rhs)
		}
		e.atLeast(s, k, nil)
		return
	}
	e.cons = append(e.cons, gtEq(lits, ws, rhs))
}

func (e *encoding) equal(s *pbSum, k int64, enforce []int) {
	neg := s.negated()
	e.atLeast(s, k, enforce)
	e.atLeast(neg, -k, enforce)
}

func gtEq(lits []int, ws []int64, rhs int64) solver.PBConstr {
	iw := make([]int, len(ws))
	for i, w := range ws {
		iw[i] = int(min(w, rhs))
	}
	return solver.GtEq(lits, iw, int(rhs))
}

func (e *encoding) linear(c *Constraint, enforce []int) {
	if c.lo > minBound {
		s := newPBSum()
		for i, v := range c.vars {
			e.addVar(s, v, c.coefs[i])
		}
		e.atLeast(s, c.lo, enforce)
	}
	if c.hi < maxBound {
		s := newPBSum()
		for i, v := range c.vars {
			e.addVar(s, v, -c.coefs[i])
		}
		e.atLeast(s, -c.hi, enforce)
	}
}

// and 与门辅助位 p ⇔ x ∧ y，相同输入复用
func (e *encoding) and(x, y int) int {
	if x == y {
		return x
	}
	if x > y {
		x, y = y, x
	}
	k := [2]int{x, y}
	if p, ok := e.ands[k]; ok {
		return p
	}
	p := e.newVar()
	e.ands[k] = p
	e.cons = append(e.cons,
		solver.PropClause(-p, x),
		solver.PropClause(-p, y),
		solver.PropClause(p, -x, -y),
	)
	return p
}

// product target = a·b 展开为 (la+A)(lb+B)，A·B 逐位相乘
func (e *encoding) product(c *Constraint) {
	a := c.vars[0]
	b := a
	if len(c.vars) > 1 {
		b = c.vars[1]
	}
	la, lb := e.m.vars[a].lb, e.m.vars[b].lb

	s := newPBSum()
	e.addVar(s, c.target, 1)
	s.addConst(-satMul(la, lb))
	for j, y := range e.bits[b] {
		s.addLit(y, -satMul(la, int64(1)<<j))
	}
	for i, x := range e.bits[a] {
		s.addLit(x, -satMul(lb, int64(1)<<i))
	}
	for i, x := range e.bits[a] {
		for j, y := range e.bits[b] {
			s.addLit(e.and(x, y), -satMul(int64(1)<<i, int64(1)<<j))
		}
	}
	e.equal(s, 0, nil)
}

func (e *encoding) abs(c *Constraint) {
	v, t := c.vars[0], c.target
	diff := func(sign int64) *pbSum {
		s := newPBSum()
		e.addVar(s, t, 1)
		e.addVar(s, v, -sign)
		return s
	}
	d := e.m.vars[v]
	switch {
	case d.lb >= 0:
		e.equal(diff(1), 0, nil)
	case d.ub <= 0:
		e.equal(diff(-1), 0, nil)
	default:
		neg := e.newVar()
		s := newPBSum()
		e.addVar(s, v, -1)
		e.atLeast(s, 1, []int{neg})
		s = newPBSum()
		e.addVar(s, v, 1)
		e.atLeast(s, 0, []int{-neg})
		e.equal(diff(-1), 0, []int{neg})
		e.equal(diff(1), 0, []int{-neg})
	}
}

// max target ≥ 每个 v，且至少一个选择位使 target ≤ v
func (e *encoding) max(c *Constraint) {
	t := c.target
	sel := make([]int, len(c.vars))
	for i, v := range c.vars {
		s := newPBSum()
		e.addVar(s, t, 1)
		e.addVar(s, v, -1)
		e.atLeast(s, 0, nil)

		sel[i] = e.newVar()
		s = newPBSum()
		e.addVar(s, v, 1)
		e.addVar(s, t, -1)
		e.atLeast(s, 0, []int{sel[i]})
	}
	e.cons = append(e.cons, solver.PropClause(sel...))
}

// atMost 最小化方向上目标 ≤ limit 的约束；ok 为 false 表示不可能满足
func (e *encoding) atMost(limit int64) (cs []solver.PBConstr, ok bool) {
	if !e.hasObj {
		return nil, true
	}
	slack := satSub(limit, e.objOff)
	if slack < 0 {
		return nil, false
	}
	rhs := satSub(e.objTotal, slack)
	if rhs <= 0 {
		return nil, true
	}
	neg := make([]int, len(e.objLits))
	for i, l := range e.objLits {
		neg[i] = -l
	}
	return []solver.PBConstr{gtEq(neg, e.objW, rhs)}, true
}

// hintUnits 把提示变量固定到提示值（超出定义域时截断）
func (e *encoding) hintUnits() []solver.PBConstr {
	var out []solver.PBConstr
	for _, v := range e.m.sortedHints() {
		d := e.m.vars[v]
		val := min(max(e.m.hints[v], d.lb), d.ub) - d.lb
		for i, x := range e.bits[v] {
			if val>>i&1 == 1 {
				out = append(out, solver.PropClause(x))
			} else {
				out = append(out, solver.PropClause(-x))
			}
		}
	}
	return out
}

// keyBits 区分解的位：优先分支变量，否则全部布尔变量，再否则全部变量
func (e *encoding) keyBits() []int {
	vars := e.m.decision
	if len(vars) == 0 {
		for v, d := range e.m.vars {
			if d.isBool {
				vars = append(vars, v)
			}
		}
	}
	if len(vars) == 0 {
		for v := range e.m.vars {
			vars = append(vars, v)
		}
	}
	seen := make(map[int]bool, len(vars))
	var key []int
	for _, v := range vars {
		if seen[v] {
			continue
		}
		seen[v] = true
		key = append(key, e.bits[v]...)
	}
	return key
}

func bitOf(model []bool, id int) bool {
	return id-1 < len(model) && model[id-1]
}

func (e *encoding) decode(model []bool) []int64 {
	values := make([]int64, len(e.m.vars))
	for v, d := range e.m.vars {
		x := d.lb
		for i, id := range e.bits[v] {
			if bitOf(model, id) {
				x += int64(1) << i
			}
		}
		values[v] = x
	}
	return values
}

// objective 最小化方向上的目标值
func (e *encoding) objective(values []int64) int64 {
	if !e.hasObj {
		return 0
	}
	return e.sign * e.m.objective.evaluate(values)
}

func (e *encoding) solutionKey(model []bool) string {
	buf := make([]byte, len(e.key))
	for i, id := range e.key {
		buf[i] = '0'
		if bitOf(model, id) {
			buf[i] = '1'
		}
	}
	return string(buf)
}

// block 排除与 model 在区分位上相同的解；没有区分位时 ok 为 false
func (e *encoding) block(model []bool) (solver.PBConstr, bool) {
	if len(e.key) == 0 {
		return solver.PBConstr{}, false
	}
	lits := make([]int, len(e.key))
	for i, id := range e.key {
		lits[i] = id
		if bitOf(model, id) {
			lits[i] = -id
		}
	}
	return solver.PropClause(lits...), true
}
