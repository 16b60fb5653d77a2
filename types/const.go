package types

// Root 标记根分支或根点的父索引
const Root = -1

// 形态学默认常量定义
const (
	JunctionLength  = 0.1  // 多分支根点生成的连接分支长度(um)
	ZeroLengthClamp = 1.0  // 路径长度为零的分支截断长度(um)
	MinRadius       = 1e-8 // 半径下限，避免零截面
	LengthEpsilon   = 1e-8 // 弧长除法保护
)

// 默认参数常量定义
var (
	DefaultNcomp            = 1      // 每个分支的默认舱室数
	DefaultRadius           = 1.0    // 默认半径(um)
	DefaultLength           = 10.0   // 默认舱室长度(um)
	DefaultAxialResistivity = 5000.0 // 默认轴向电阻率(ohm cm)
	DefaultCapacitance      = 1.0    // 默认膜电容(uF/cm2)
	DefaultVoltage          = -70.0  // 默认初始电压(mV)
	DefaultTimeStep         = 0.025  // 默认时间步长(ms)
	LinearizeDelta          = 1e-3   // 电流线性化的电压扰动(mV)
)

// 参数名称
const (
	ParamRadius           = "radius"
	ParamLength           = "length"
	ParamAxialResistivity = "axial_resistivity"
	ParamCapacitance      = "capacitance"
	StateVoltage          = "v"
)
