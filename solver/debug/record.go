// Package debug 导出仿真记录: JSON、echarts 网页与 gonum/plot 图片。
package debug

import (
	"cable/graph"
	"cable/solver"
	"cable/types"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Record 一次仿真的记录
type Record struct {
	RunID    string      `json:"run_id"`
	Dt       float64     `json:"dt"`
	Steps    int         `json:"steps"`
	Branches []Branch    `json:"branches"` // 分支连接信息
	Labels   []string    `json:"labels"`   // 记录名称
	Time     []float64   `json:"time"`     // 时间列
	Traces   [][]float64 `json:"traces"`   // 记录 -> 时刻 -> 值
}

// Branch 分支摘要
type Branch struct {
	Index  int     `json:"index"`
	Parent int     `json:"parent"`
	Type   string  `json:"type"`
	Length float64 `json:"length"`
	Ncomp  int     `json:"ncomp"`
}

// NewRecord 由拓扑与仿真结果创建记录
func NewRecord(top *graph.Topology, res *solver.Result) *Record {
	rec := &Record{
		RunID:  res.RunID.String(),
		Dt:     res.Dt,
		Steps:  res.Steps,
		Labels: res.Labels,
		Time:   res.Time,
		Traces: res.Traces,
	}
	for b, br := range top.Branches {
		rec.Branches = append(rec.Branches, Branch{
			Index:  b,
			Parent: br.Parent,
			Type:   br.Type.String(),
			Length: br.Length,
			Ncomp:  top.Ncomp[b],
		})
	}
	return rec
}

// Render 以 JSON 输出
func (rec *Record) Render(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// ReadRecord 读取 JSON 记录
func ReadRecord(r io.Reader) (*Record, error) {
	rec := &Record{}
	if err := json.NewDecoder(r).Decode(rec); err != nil {
		return nil, fmt.Errorf("解析记录失败: %w", err)
	}
	return rec, nil
}

// Renderer 记录输出格式
type Renderer interface {
	Render(w io.Writer) error
}

// ForPath 按文件扩展名选择输出格式
func ForPath(path string, rec *Record) (Renderer, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return rec, nil
	case ".html":
		return &Charts{Record: rec}, nil
	case ".png", ".svg", ".pdf":
		return &Plot{Record: rec, Format: ext[1:]}, nil
	default:
		return nil, fmt.Errorf("不支持的输出格式 %q: %w", ext, types.ErrConfiguration)
	}
}

// Export 把记录写入文件
func Export(path string, rec *Record) (err error) {
	r, err := ForPath(path, rec)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("无法创建文件 %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return r.Render(f)
}
