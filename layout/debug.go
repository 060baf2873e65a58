package layout

import (
	"encoding/json"
	"io"
)

// WriteJSON 将布局结果以缩进 JSON 写出，便于调试或可视化。
// 字体数据与解码后的图片不会输出。
func WriteJSON(w io.Writer, doc *Document) error {
	if doc == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
