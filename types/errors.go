package types

import "errors"

// 错误分类，调用方使用 errors.Is 判断
var (
	ErrMalformedTrace      = errors.New("形态追踪数据错误")
	ErrConfiguration       = errors.New("配置错误")
	ErrMalformedTopology   = errors.New("拓扑结构错误")
	ErrNumericalDivergence = errors.New("数值发散")
	ErrIndex               = errors.New("索引越界")
)
