// Package config 读取 YAML 仿真配置并据此构建神经元与求解参数。
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cable/types"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config 一次仿真的完整配置
type Config struct {
	Morphology MorphologyConfig  `yaml:"morphology"`
	Cell       CellConfig        `yaml:"cell"`
	Synapses   []SynapseConfig   `yaml:"synapses" validate:"dive"`
	Stimuli    []StimulusConfig  `yaml:"stimuli" validate:"dive"`
	Clamps     []ClampConfig     `yaml:"clamps" validate:"dive"`
	Recordings []RecordingConfig `yaml:"recordings" validate:"dive"`
	Solver     SolverConfig      `yaml:"solver"`
	Output     OutputConfig      `yaml:"output"`
	Log        LogConfig         `yaml:"log"`
}

// MorphologyConfig 形态读取与离散
type MorphologyConfig struct {
	File          string      `yaml:"file" validate:"required"`
	RootPolicy    string      `yaml:"root_policy" validate:"oneof=first-soma first-record strict"`
	GapTolerance  float64     `yaml:"gap_tolerance" validate:"gte=0"`
	Bridge        bool        `yaml:"bridge"`
	RelevantTypes []string    `yaml:"relevant_types"`
	MaxBranchLen  float64     `yaml:"max_branch_len" validate:"gte=0"`
	Sort          string      `yaml:"sort" validate:"oneof=first-sample none type length"`
	SphericalSoma bool        `yaml:"spherical_soma"`
	Ncomp         int         `yaml:"ncomp" validate:"min=1"`
	BranchNcomp   map[int]int `yaml:"branch_ncomp" validate:"dive,min=1"`
	MinRadius     float64     `yaml:"min_radius" validate:"gte=0"`
}

// Selection 选中的分支，两者都为空表示全部舱室
type Selection struct {
	Groups   []string `yaml:"groups"`
	Branches []int    `yaml:"branches" validate:"dive,gte=0"`
}

// CellConfig 细胞参数与通道
type CellConfig struct {
	Capacitance      float64         `yaml:"capacitance" validate:"gt=0"`
	AxialResistivity float64         `yaml:"axial_resistivity" validate:"gt=0"`
	Voltage          float64         `yaml:"voltage"`
	Channels         []ChannelConfig `yaml:"channels" validate:"dive"`
	Params           []ParamConfig   `yaml:"params" validate:"dive"`
}

// ChannelConfig 插入一个通道
type ChannelConfig struct {
	Kind      string `yaml:"kind" validate:"required"`
	Name      string `yaml:"name"`
	Selection `yaml:",inline"`
	Params    map[string]float64 `yaml:"params"`
}

// ParamConfig 在选中的舱室上设置参数
type ParamConfig struct {
	Name      string  `yaml:"name" validate:"required"`
	Value     float64 `yaml:"value"`
	Selection `yaml:",inline"`
}

// Location 分支上的位置
type Location struct {
	Branch int     `yaml:"branch" validate:"gte=0"`
	Loc    float64 `yaml:"loc" validate:"gte=0,lte=1"`
}

// SynapseConfig 连接一个突触
type SynapseConfig struct {
	Kind   string             `yaml:"kind" validate:"required"`
	Name   string             `yaml:"name"`
	Pre    Location           `yaml:"pre"`
	Post   Location           `yaml:"post"`
	Params map[string]float64 `yaml:"params"`
}

// StimulusConfig 注入电流，每步一个值(nA)
type StimulusConfig struct {
	Location `yaml:",inline"`
	Current  []float64 `yaml:"current" validate:"min=1"`
}

// ClampConfig 钳位，每个记录时刻一个值，.nan 表示不钳位
type ClampConfig struct {
	Location `yaml:",inline"`
	Name     string    `yaml:"name" validate:"required"`
	Values   []float64 `yaml:"values" validate:"min=1"`
}

// RecordingConfig 记录电压或状态
type RecordingConfig struct {
	Location `yaml:",inline"`
	Name     string `yaml:"name" validate:"required"`
}

// SolverConfig 求解参数
type SolverConfig struct {
	Dt         float64 `yaml:"dt" validate:"gt=0"`
	TMax       float64 `yaml:"t_max" validate:"gte=0"`
	Method     string  `yaml:"method" validate:"oneof=backward-euler crank-nicolson forward-euler"`
	Backend    string  `yaml:"backend" validate:"oneof=tree dense sparse"`
	Workers    int     `yaml:"workers" validate:"gte=0"`
	InitStates bool    `yaml:"init_states"`
}

// OutputConfig 结果输出
type OutputConfig struct {
	Path  string `yaml:"path"`  // 按扩展名选择 json、html、png、svg 或 pdf
	Serve string `yaml:"serve"` // 非空时在该地址发布网页
}

// LogConfig 日志
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default 默认配置，缺失的字段保留默认值
func Default() Config {
	return Config{
		Morphology: MorphologyConfig{
			RootPolicy:    "first-soma",
			Bridge:        true,
			Sort:          "first-sample",
			SphericalSoma: true,
			Ncomp:         types.DefaultNcomp,
		},
		Cell: CellConfig{
			Capacitance:      types.DefaultCapacitance,
			AxialResistivity: types.DefaultAxialResistivity,
			Voltage:          types.DefaultVoltage,
		},
		Solver: SolverConfig{
			Dt:      types.DefaultTimeStep,
			TMax:    10,
			Method:  "backward-euler",
			Backend: "tree",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

var validate = validator.New()

// Parse 解析 YAML 文本，未知字段视为错误
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("配置解析失败: %w: %w", types.ErrConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load 读取配置文件，相对的形态文件路径按配置文件所在目录解析
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置 %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if !filepath.IsAbs(cfg.Morphology.File) {
		cfg.Morphology.File = filepath.Join(filepath.Dir(path), cfg.Morphology.File)
	}
	return cfg, nil
}

// Validate 按字段标签校验
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w: %w", types.ErrConfiguration, err)
	}
	for _, name := range c.Morphology.RelevantTypes {
		if _, err := types.ParseTissueType(name); err != nil {
			return err
		}
	}
	return nil
}
