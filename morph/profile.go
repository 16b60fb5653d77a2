package morph

import (
	"cable/types"
	"fmt"
	"math"
	"sort"
)

// Profile 分支半径沿归一化位置的分段线性剖面
type Profile struct {
	Cuts   []float64 // 采样点的归一化位置，首为 0 末为 1
	Radius []float64 // 采样点半径
}

// NewProfile 由分支采样点构造半径剖面
func NewProfile(b RawBranch) *Profile {
	n := len(b.Samples)
	if n == 1 {
		r := b.Samples[0].Radius
		return &Profile{Cuts: []float64{0, 1}, Radius: []float64{r, r}}
	}
	p := &Profile{Cuts: make([]float64, n), Radius: make([]float64, n)}
	total := 0.0
	for i, s := range b.Samples {
		p.Radius[i] = s.Radius
		if i > 0 {
			// 零长度段按极小长度计，避免位置重合
			total += max(b.SegLengths[i-1], types.LengthEpsilon)
			p.Cuts[i] = total
		}
	}
	for i := range p.Cuts {
		p.Cuts[i] /= total
	}
	p.Cuts[n-1] = 1
	return p
}

func clamp01(x float64) float64 { return math.Min(math.Max(x, 0), 1) }

// interval 返回 loc 所在的采样区间 [i, i+1]
func (p *Profile) interval(loc float64) int {
	i := sort.SearchFloat64s(p.Cuts, loc) - 1
	return min(max(i, 0), len(p.Cuts)-2)
}

// At 归一化位置 loc 处的半径
func (p *Profile) At(loc float64) float64 {
	loc = clamp01(loc)
	i := p.interval(loc)
	a, b := p.Cuts[i], p.Cuts[i+1]
	if b <= a {
		return p.Radius[i+1]
	}
	w := (loc - a) / (b - a)
	return p.Radius[i]*(1-w) + p.Radius[i+1]*w
}

// MeanSquare [lo, hi] 区间上 r² 的平均值(精确积分)
func (p *Profile) MeanSquare(lo, hi float64) (float64, error) {
	lo, hi = clamp01(lo), clamp01(hi)
	if hi < lo {
		return 0, fmt.Errorf("区间 [%g, %g] 无效: %w", lo, hi, types.ErrConfiguration)
	}
	if hi-lo < types.LengthEpsilon {
		r := p.At(lo)
		return r * r, nil
	}
	sum := 0.0
	for i := 0; i+1 < len(p.Cuts); i++ {
		a, b := max(p.Cuts[i], lo), min(p.Cuts[i+1], hi)
		if b <= a {
			continue
		}
		ra, rb := p.At(a), p.At(b)
		// 线性半径平方的积分
		sum += (b - a) * (ra*ra + ra*rb + rb*rb) / 3
	}
	return sum / (hi - lo), nil
}
