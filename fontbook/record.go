package fontbook

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Style 是字形的倾斜风格。
type Style int

const (
	StyleNormal Style = iota
	StyleItalic
	StyleOblique
)

func (s Style) String() string {
	switch s {
	case StyleItalic:
		return "italic"
	case StyleOblique:
		return "oblique"
	default:
		return "normal"
	}
}

// ParseStyle 解析 "normal"/"italic"/"oblique"，无法识别时返回 StyleNormal。
func ParseStyle(s string) Style {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "italic":
		return StyleItalic
	case "oblique":
		return StyleOblique
	default:
		return StyleNormal
	}
}

// Weight 是 OpenType 字重（100–1000）。
type Weight int

const (
	WeightThin       Weight = 100
	WeightExtraLight Weight = 200
	WeightLight      Weight = 300
	WeightNormal     Weight = 400
	WeightMedium     Weight = 500
	WeightSemiBold   Weight = 600
	WeightBold       Weight = 700
	WeightExtraBold  Weight = 800
	WeightBlack      Weight = 900
)

var weightNames = map[string]Weight{
	"thin":       WeightThin,
	"extralight": WeightExtraLight,
	"light":      WeightLight,
	"normal":     WeightNormal,
	"regular":    WeightNormal,
	"medium":     WeightMedium,
	"semibold":   WeightSemiBold,
	"demibold":   WeightSemiBold,
	"bold":       WeightBold,
	"extrabold":  WeightExtraBold,
	"black":      WeightBlack,
}

// ParseWeight 接受数值（"700"）或名称（"bold"），无法识别时返回 WeightNormal。
func ParseWeight(s string) Weight {
	s = strings.ToLower(strings.TrimSpace(s))
	if w, ok := weightNames[strings.ReplaceAll(s, "-", "")]; ok {
		return w
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err == nil && n > 0 && n <= 1000 {
		return Weight(n)
	}
	return WeightNormal
}

// Record 是字体书中的一个字形（face）。记录一经加入即不可变。
type Record struct {
	Family string
	Style  Style
	Weight Weight
	// Data 是整个字体容器的字节，Index 为该 face 在容器中的序号（TTC 可能含多个）。
	Data  []byte
	Index int
	Hash  [32]byte
}

// Key 唯一标识一个 face：相同内容、相同序号的字体 Key 相同。
func (r Record) Key() string {
	return fmt.Sprintf("%s#%d", hex.EncodeToString(r.Hash[:8]), r.Index)
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %d", r.Family, r.Style, r.Weight)
}
