package types

import "fmt"

// TissueType SWC 组织类型编码
type TissueType int

// 组织类型常量定义
const (
	TypeUndefined TissueType = iota // 未定义
	TypeSoma                        // 胞体
	TypeAxon                        // 轴突
	TypeBasal                       // 基底树突
	TypeApical                      // 顶端树突
	TypeCustom                      // 自定义，>=5 的编码都归入自定义
)

var tissueNames = map[TissueType]string{
	TypeUndefined: "undefined",
	TypeSoma:      "soma",
	TypeAxon:      "axon",
	TypeBasal:     "basal",
	TypeApical:    "apical",
	TypeCustom:    "custom",
}

// String 返回组织类型名称，也是自动分组使用的组名
func (t TissueType) String() string {
	if name, ok := tissueNames[t]; ok {
		return name
	}
	if t > TypeCustom {
		return fmt.Sprintf("custom%d", int(t))
	}
	return fmt.Sprintf("type%d", int(t))
}

// IsSoma 是否为胞体
func (t TissueType) IsSoma() bool { return t == TypeSoma }

// ParseTissueType 通过名称获取类型
func ParseTissueType(name string) (TissueType, error) {
	for t, n := range tissueNames {
		if n == name {
			return t, nil
		}
	}
	var code int
	if _, err := fmt.Sscanf(name, "custom%d", &code); err == nil && code > int(TypeCustom) {
		return TissueType(code), nil
	}
	return TypeUndefined, fmt.Errorf("未知组织类型: %q: %w", name, ErrConfiguration)
}
