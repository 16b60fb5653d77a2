// Package cable 把追踪得到的神经元形态离散为舱室树，并在其上插入机制、施加刺激并求解电压。
package cable

import (
	"cable/load"
	"cable/morph"
	"cable/types"
	"fmt"
	"io"
	"log/slog"
)

// Options 形态离散配置
type Options struct {
	Trace     load.Options  // 追踪清洗
	Partition morph.Options // 分支切分
	Ncomp     int           // 每个分支的舱室数
	MinRadius float64       // 半径下限(um)，<=0 使用 types.MinRadius
	Logger    *slog.Logger  // 日志，nil 使用默认
}

// DefaultOptions 默认配置
func DefaultOptions() Options {
	return Options{
		Trace:     load.DefaultOptions(),
		Partition: morph.DefaultOptions(),
		Ncomp:     types.DefaultNcomp,
	}
}

func (opt *Options) logger() *slog.Logger {
	if opt.Logger != nil {
		return opt.Logger
	}
	return slog.Default()
}

// Morphology 离散结果
type Morphology struct {
	Trace    *load.Trace
	Branches []morph.RawBranch
	Parents  []int              // 父分支
	Lengths  []float64          // 分支路径长度(um)
	Types    []types.TissueType // 分支组织类型
	Profiles []*morph.Profile   // 分支半径剖面
}

// NumBranches 分支数
func (m *Morphology) NumBranches() int { return len(m.Branches) }

// Samples 分支 b 的采样点
func (m *Morphology) Samples(b int) []morph.Sample { return m.Branches[b].Samples }

// Discretize 清洗追踪记录并切分为分支
func Discretize(records []load.Record, opt Options) (*Morphology, error) {
	opt.Trace.Logger = opt.logger()
	opt.Partition.Logger = opt.logger()
	tr, err := load.Clean(records, opt.Trace)
	if err != nil {
		return nil, err
	}
	branches, err := morph.Partition(tr, opt.Partition)
	if err != nil {
		return nil, err
	}
	m := &Morphology{Trace: tr, Branches: branches}
	for _, b := range branches {
		m.Parents = append(m.Parents, b.Parent)
		m.Lengths = append(m.Lengths, b.Length)
		m.Types = append(m.Types, b.Type)
		m.Profiles = append(m.Profiles, morph.NewProfile(b))
	}
	opt.logger().Debug("形态离散完成", "points", tr.Len(), "branches", len(branches),
		"merged", tr.Merged, "bridged", tr.Bridged, "dropped", tr.Dropped)
	return m, nil
}

// DiscretizeReader 读取 SWC 文本并离散
func DiscretizeReader(r io.Reader, opt Options) (*Morphology, error) {
	records, err := load.ParseSWC(r)
	if err != nil {
		return nil, err
	}
	return Discretize(records, opt)
}

// DiscretizeFile 读取 SWC 文件并离散
func DiscretizeFile(filename string, opt Options) (*Morphology, error) {
	records, err := load.LoadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return Discretize(records, opt)
}

// Summary 形态统计
type Summary struct {
	Branches int
	Length   float64            // 总路径长度(um)
	Count    map[string]int     // 每种组织类型的分支数
	Lengths  map[string]float64 // 每种组织类型的路径长度(um)
}

// Summary 按组织类型统计分支
func (m *Morphology) Summary() Summary {
	s := Summary{
		Branches: m.NumBranches(),
		Count:    map[string]int{},
		Lengths:  map[string]float64{},
	}
	for i, t := range m.Types {
		s.Length += m.Lengths[i]
		s.Count[t.String()]++
		s.Lengths[t.String()] += m.Lengths[i]
	}
	return s
}
