package morph

import (
	"cable/types"
	"fmt"
	"math"
)

// Segment 分支上的一个等长舱室
type Segment struct {
	Index  int     // 分支内序号，0 靠近分支起点
	Lo, Hi float64 // 归一化位置区间
	Length float64 // 长度(um)
	Radius float64 // 等效半径(um)，保持体积
}

// Discretize 把分支等分为 ncomp 个舱室，半径取区间内 r² 平均值的平方根
func Discretize(b RawBranch, ncomp int, minRadius float64) ([]Segment, error) {
	if ncomp < 1 {
		return nil, fmt.Errorf("舱室数量必须不小于 1，得到 %d: %w", ncomp, types.ErrConfiguration)
	}
	if b.Length <= 0 {
		return nil, fmt.Errorf("分支长度必须为正，得到 %g: %w", b.Length, types.ErrConfiguration)
	}
	if minRadius <= 0 {
		minRadius = types.MinRadius
	}
	prof := NewProfile(b)
	segs := make([]Segment, ncomp)
	step := 1 / float64(ncomp)
	for i := range segs {
		lo, hi := float64(i)*step, float64(i+1)*step
		if i == ncomp-1 {
			hi = 1
		}
		ms, err := prof.MeanSquare(lo, hi)
		if err != nil {
			return nil, err
		}
		segs[i] = Segment{
			Index:  i,
			Lo:     lo,
			Hi:     hi,
			Length: b.Length / float64(ncomp),
			Radius: math.Max(math.Sqrt(ms), minRadius),
		}
	}
	return segs, nil
}

// Centers 每个舱室中心的归一化位置
func Centers(ncomp int) []float64 {
	c := make([]float64, ncomp)
	for i := range c {
		c[i] = (float64(i) + 0.5) / float64(ncomp)
	}
	return c
}
