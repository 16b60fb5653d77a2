// Package morph 将点树切分为原始分支，并把分支离散为等长舱室。
package morph

import (
	"cable/load"
	"cable/types"
	"cmp"
	"fmt"
	"log/slog"
	"slices"
)

// Kind 分支类别
type Kind int

const (
	KindCable    Kind = iota // 普通多点分支
	KindSphere               // 单点胞体，按球体处理，长度 2r
	KindJunction             // 单点连接分支，名义长度
)

// String 类别名称
func (k Kind) String() string {
	switch k {
	case KindCable:
		return "cable"
	case KindSphere:
		return "sphere"
	case KindJunction:
		return "junction"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// SortKey 分支排序方式
type SortKey int

const (
	SortFirstSample SortKey = iota // 按首个采样点在追踪中的顺序(稳定)
	SortNone                       // 保留深度优先遍历顺序
	SortType                       // 按组织类型分组(稳定)
	SortLength                     // 按路径长度升序(稳定)
)

var sortNames = map[SortKey]string{
	SortFirstSample: "first-sample",
	SortNone:        "none",
	SortType:        "type",
	SortLength:      "length",
}

// String 排序方式名称
func (s SortKey) String() string {
	if name, ok := sortNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SortKey(%d)", int(s))
}

// ParseSortKey 通过名称获取排序方式
func ParseSortKey(name string) (SortKey, error) {
	for k, n := range sortNames {
		if n == name {
			return k, nil
		}
	}
	return SortFirstSample, fmt.Errorf("未知排序方式 %q: %w", name, types.ErrConfiguration)
}

// Sample 分支上的一个采样点
type Sample struct {
	Point   int // 追踪点下标
	ID      int // 追踪记录标识
	Type    types.TissueType
	X, Y, Z float64
	Radius  float64
}

// RawBranch 原始分支
type RawBranch struct {
	Samples    []Sample         // 采样点，首点与父分支末点相同
	SegLengths []float64        // 相邻采样点的路径长度，len(Samples)-1
	Length     float64          // 分支路径总长(um)
	Type       types.TissueType // 组织类型
	Parent     int              // 父分支下标，types.Root 表示根分支
	Kind       Kind             // 分支类别
}

// Options 切分配置
type Options struct {
	MaxBranchLen  float64      // 最大分支长度(um)，<=0 不切分
	Sort          SortKey      // 排序方式
	SphericalSoma bool         // 单点胞体按球体处理
	Logger        *slog.Logger // 日志，nil 使用默认
}

// DefaultOptions 默认切分配置
func DefaultOptions() Options {
	return Options{Sort: SortFirstSample, SphericalSoma: true}
}

// opening 待遍历的新分支
type opening struct {
	first  int // 首个采样点(与父分支共享)
	next   int // 第二个采样点
	parent int // 父分支下标
	typ    types.TissueType
}

// partitioner 深度优先切分状态
type partitioner struct {
	tr       *load.Trace
	opt      Options
	logger   *slog.Logger
	branches []RawBranch
	stack    []opening
}

// Partition 深度优先遍历点树并切分分支:
// 子点数量不为 1、组织类型变化、或超出最大长度时开启新分支
func Partition(tr *load.Trace, opt Options) ([]RawBranch, error) {
	if tr == nil || tr.Len() == 0 {
		return nil, fmt.Errorf("空追踪数据: %w", types.ErrMalformedTrace)
	}
	if tr.Root < 0 || tr.Root >= tr.Len() {
		return nil, fmt.Errorf("根点下标 %d 越界: %w", tr.Root, types.ErrMalformedTrace)
	}
	if opt.MaxBranchLen < 0 {
		return nil, fmt.Errorf("最大分支长度不能为负 %g: %w", opt.MaxBranchLen, types.ErrConfiguration)
	}
	p := &partitioner{tr: tr, opt: opt, logger: opt.Logger}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	root := tr.Root
	kids := tr.Children[root]
	if len(kids) == 1 && !p.isSphere(root) {
		p.push(opening{first: root, next: kids[0], parent: types.Root, typ: tr.Points[kids[0]].Type})
	} else {
		b := p.degenerate(root)
		p.pushChildren(root, b)
	}
	for len(p.stack) > 0 {
		o := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		p.walk(o)
	}
	return SortBranches(p.branches, opt.Sort)
}

// isSphere 根点是否为单点胞体
func (p *partitioner) isSphere(i int) bool {
	pt := p.tr.Points[i]
	if !p.opt.SphericalSoma || !pt.Type.IsSoma() {
		return false
	}
	for _, k := range p.tr.Children[i] {
		if p.tr.Points[k].Type.IsSoma() {
			return false
		}
	}
	return true
}

// degenerate 根点单独成为一个单采样点分支
func (p *partitioner) degenerate(root int) int {
	pt := p.tr.Points[root]
	b := RawBranch{
		Samples: []Sample{p.sample(root)},
		Type:    pt.Type,
		Parent:  types.Root,
		Kind:    KindJunction,
		Length:  types.JunctionLength,
	}
	switch {
	case p.isSphere(root):
		b.Kind = KindSphere
		if pt.Radius > 0 {
			b.Length = 2 * pt.Radius
		}
		p.logger.Info("单点胞体按球体处理", "id", pt.ID, "radius", pt.Radius)
	case len(p.tr.Children[root]) > 1:
		b.Type = types.TypeCustom
	}
	p.branches = append(p.branches, b)
	return len(p.branches) - 1
}

func (p *partitioner) push(o opening) { p.stack = append(p.stack, o) }

// pushChildren 按输入顺序登记子分支(逆序入栈)
func (p *partitioner) pushChildren(from, parent int) {
	kids := p.tr.Children[from]
	for i := len(kids) - 1; i >= 0; i-- {
		k := kids[i]
		p.push(opening{first: from, next: k, parent: parent, typ: p.tr.Points[k].Type})
	}
}

func (p *partitioner) sample(i int) Sample {
	pt := p.tr.Points[i]
	return Sample{Point: i, ID: pt.ID, Type: pt.Type, X: pt.X, Y: pt.Y, Z: pt.Z, Radius: pt.Radius}
}

// walk 沿单子点链延伸一个分支，直到分叉、类型变化或长度超限
func (p *partitioner) walk(o opening) {
	tr := p.tr
	first := p.sample(o.first)
	seg := tr.Dist(o.first, o.next)
	if o.parent >= 0 {
		parent := p.branches[o.parent]
		// 从单点胞体出发的分支忽略胞体中心到首点的距离
		if parent.Kind == KindSphere {
			seg = 0
		}
		// 组织类型变化时首点半径取第二个点的半径
		if parent.Type != o.typ {
			first.Radius = tr.Points[o.next].Radius
		}
	}
	b := RawBranch{
		Samples:    []Sample{first, p.sample(o.next)},
		SegLengths: []float64{seg},
		Length:     seg,
		Type:       o.typ,
		Parent:     o.parent,
		Kind:       KindCable,
	}
	cur := o.next
	var split *opening
	for {
		kids := tr.Children[cur]
		if len(kids) != 1 || tr.Points[kids[0]].Type != o.typ {
			break
		}
		k := kids[0]
		seg := tr.Dist(cur, k)
		if p.opt.MaxBranchLen > 0 && b.Length+seg > p.opt.MaxBranchLen {
			split = &opening{first: cur, next: k, typ: o.typ}
			break
		}
		b.Samples = append(b.Samples, p.sample(k))
		b.SegLengths = append(b.SegLengths, seg)
		b.Length += seg
		cur = k
	}
	if b.Length == 0 {
		p.logger.Warn("分支路径长度为零，已截断", "first_id", b.Samples[0].ID, "length", types.ZeroLengthClamp)
		b.Length = types.ZeroLengthClamp
	}
	p.branches = append(p.branches, b)
	idx := len(p.branches) - 1
	if split != nil {
		split.parent = idx
		p.push(*split)
		return
	}
	p.pushChildren(cur, idx)
}

// SortBranches 稳定排序分支并重映射父分支下标
func SortBranches(branches []RawBranch, key SortKey) ([]RawBranch, error) {
	order := make([]int, len(branches))
	for i := range order {
		order[i] = i
	}
	var less func(a, b int) int
	switch key {
	case SortNone:
		return branches, nil
	case SortFirstSample:
		less = func(a, b int) int { return cmp.Compare(branches[a].Samples[0].Point, branches[b].Samples[0].Point) }
	case SortType:
		less = func(a, b int) int { return cmp.Compare(branches[a].Type, branches[b].Type) }
	case SortLength:
		less = func(a, b int) int { return cmp.Compare(branches[a].Length, branches[b].Length) }
	default:
		return nil, fmt.Errorf("未知排序方式 %d: %w", int(key), types.ErrConfiguration)
	}
	slices.SortStableFunc(order, less)
	newIndex := make([]int, len(branches))
	for n, old := range order {
		newIndex[old] = n
	}
	sorted := make([]RawBranch, len(branches))
	for n, old := range order {
		b := branches[old]
		if b.Parent >= 0 {
			b.Parent = newIndex[b.Parent]
		}
		sorted[n] = b
	}
	return sorted, nil
}
