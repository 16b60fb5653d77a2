package cable

import (
	"cable/types"
	"fmt"
	"math"
	"slices"
)

// SetNcomp 修改分支 b 的舱室数。
// 分支内各舱室的参数、状态与半径覆盖值必须一致，新舱室沿用这些值，其余分支保持不变。
// 存在刺激、钳位、记录或连在该分支上的突触时拒绝修改，出错时不做任何修改。
func (c *Cell) SetNcomp(b, n int) error {
	old, err := c.top.BranchComps(b)
	if err != nil {
		return err
	}
	if len(c.stimuli) > 0 || len(c.clamps) > 0 || len(c.recordings) > 0 {
		return fmt.Errorf("分支 %d: 存在刺激、钳位或记录时不能修改舱室数: %w", b, types.ErrConfiguration)
	}
	start, oldN := old[0], len(old)
	end := start + oldN
	for _, syn := range c.synapses {
		if (syn.Pre >= start && syn.Pre < end) || (syn.Post >= start && syn.Post < end) {
			return fmt.Errorf("分支 %d: 存在突触连接时不能修改舱室数: %w", b, types.ErrConfiguration)
		}
	}
	if name := c.heterogeneous(start, end); name != "" {
		return fmt.Errorf("分支 %d: 各舱室的 %s 不一致: %w", b, name, types.ErrConfiguration)
	}
	if err := c.top.SetNcomp(b, n); err != nil {
		return err
	}

	c.capacitance = splice(c.capacitance, start, end, n)
	c.axial = splice(c.axial, start, end, n)
	c.voltage = splice(c.voltage, start, end, n)
	c.radius = splice(c.radius, start, end, n)
	for _, s := range c.channels {
		s.params = spliceRows(s.params, start, end, n)
		s.states = spliceRows(s.states, start, end, n)
	}
	if r := c.radius[start]; !math.IsNaN(r) {
		for g := start; g < start+n; g++ {
			c.top.Comps[g].Radius = r
		}
	}
	shift := n - oldN
	for i := range c.synapses {
		if c.synapses[i].Pre >= end {
			c.synapses[i].Pre += shift
		}
		if c.synapses[i].Post >= end {
			c.synapses[i].Post += shift
		}
	}
	c.logger.Debug("修改舱室数", "branch", b, "from", oldN, "to", n, "comps", c.NumComps())
	return nil
}

// heterogeneous 返回 [lo, hi) 内取值不一致的第一个参数名，一致时为空
func (c *Cell) heterogeneous(lo, hi int) string {
	for _, p := range []struct {
		name string
		arr  []float64
	}{
		{types.ParamCapacitance, c.capacitance},
		{types.ParamAxialResistivity, c.axial},
		{types.StateVoltage, c.voltage},
		{types.ParamRadius, c.radius},
	} {
		if !uniform(p.arr[lo:hi]) {
			return p.name
		}
	}
	for _, s := range c.channels {
		for g := lo + 1; g < hi; g++ {
			if s.present(g) != s.present(lo) {
				return s.ch.Name()
			}
		}
		if !s.present(lo) {
			continue
		}
		for k, v := range s.ch.Params() {
			if !uniformColumn(s.params[lo:hi], k) {
				return v.Name
			}
		}
		for k, v := range s.ch.States() {
			if !uniformColumn(s.states[lo:hi], k) {
				return v.Name
			}
		}
	}
	return ""
}

// same NaN 与 NaN 视为相同
func same(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func uniform(vals []float64) bool {
	for _, v := range vals[1:] {
		if !same(v, vals[0]) {
			return false
		}
	}
	return true
}

func uniformColumn(rows [][]float64, k int) bool {
	for _, row := range rows[1:] {
		if !same(row[k], rows[0][k]) {
			return false
		}
	}
	return true
}

// splice 用 n 份首舱室的值替换 [lo, hi)
func splice(arr []float64, lo, hi, n int) []float64 {
	rep := slices.Repeat([]float64{arr[lo]}, n)
	return slices.Replace(arr, lo, hi, rep...)
}

// spliceRows nil 行表示未插入
func spliceRows(rows [][]float64, lo, hi, n int) [][]float64 {
	rep := make([][]float64, n)
	for i := range rep {
		if rows[lo] != nil {
			rep[i] = slices.Clone(rows[lo])
		}
	}
	return slices.Replace(rows, lo, hi, rep...)
}
