// Package load 读取 SWC 形态追踪数据并清洗为单根点树。
package load

import (
	"bufio"
	"cable/types"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Record SWC 原始记录: id type x y z radius parent
type Record struct {
	ID     int              // 记录标识
	Type   types.TissueType // 组织类型
	X      float64          // 坐标(um)
	Y      float64          // 坐标(um)
	Z      float64          // 坐标(um)
	Radius float64          // 半径(um)
	Parent int              // 父记录标识，-1 表示根
}

// LoadFile 读取 SWC 文件
func LoadFile(filename string) ([]Record, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseSWC(file)
}

// ParseSWC 解析 SWC 文本，跳过空行和 # 注释
func ParseSWC(r io.Reader) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 7 {
			return nil, fmt.Errorf("第 %d 行: 需要 7 列，得到 %d: %w", line, len(fields), types.ErrMalformedTrace)
		}
		rec, err := parseFields(fields)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %v: %w", line, err, types.ErrMalformedTrace)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("没有任何追踪记录: %w", types.ErrMalformedTrace)
	}
	return records, nil
}

// parseFields 解析一行的七个字段
func parseFields(fields []string) (rec Record, err error) {
	// 部分软件导出的整数列带小数点，统一按浮点读取
	ints := [3]int{}
	for k, col := range [3]int{0, 1, 6} {
		v, err := strconv.ParseFloat(fields[col], 64)
		if err != nil {
			return rec, fmt.Errorf("第 %d 列无效 %q", col+1, fields[col])
		}
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return rec, fmt.Errorf("第 %d 列不是整数 %q", col+1, fields[col])
		}
		ints[k] = int(v)
	}
	floats := [4]float64{}
	for k := range floats {
		v, err := strconv.ParseFloat(fields[k+2], 64)
		if err != nil {
			return rec, fmt.Errorf("第 %d 列无效 %q", k+3, fields[k+2])
		}
		floats[k] = v
	}
	if floats[3] < 0 {
		return rec, fmt.Errorf("半径为负 %g", floats[3])
	}
	return Record{
		ID:     ints[0],
		Type:   types.TissueType(ints[1]),
		X:      floats[0],
		Y:      floats[1],
		Z:      floats[2],
		Radius: floats[3],
		Parent: ints[2],
	}, nil
}

// String 导出为 SWC 行格式
func (rec Record) String() string {
	return fmt.Sprintf("%d %d %.6g %.6g %.6g %.6g %d", rec.ID, int(rec.Type), rec.X, rec.Y, rec.Z, rec.Radius, rec.Parent)
}
