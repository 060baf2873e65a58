package bridge

import "github.com/ByLCY/papyrus-bridge/layout"

// DocID 是编译结果的不透明句柄，0 表示无效。
type DocID uint32

// docTable 保存当前实例的编译结果。句柄从 1 开始分配且从不复用，
// 失效的旧句柄因此不会指向后来的文档。调用方负责加锁。
//
// entries[i] 对应句柄 base+i+1；开头连续失效的槽位会被裁掉并计入 base。
type docTable struct {
	base    uint32
	entries []docEntry
	live    int
}

type docEntry struct {
	doc   *layout.Document
	valid bool
}

func (t *docTable) insert(doc *layout.Document) DocID {
	t.entries = append(t.entries, docEntry{doc: doc, valid: true})
	t.live++
	return DocID(t.base + uint32(len(t.entries)))
}

func (t *docTable) slot(id DocID) (int, bool) {
	if uint32(id) <= t.base || uint32(id)-t.base > uint32(len(t.entries)) {
		return 0, false
	}
	return int(uint32(id) - t.base - 1), true
}

func (t *docTable) get(id DocID) (*layout.Document, bool) {
	i, ok := t.slot(id)
	if !ok {
		return nil, false
	}
	e := t.entries[i]
	return e.doc, e.valid
}

func (t *docTable) drop(id DocID) bool {
	i, ok := t.slot(id)
	if !ok || !t.entries[i].valid {
		return false
	}
	t.entries[i] = docEntry{}
	t.live--
	t.compact()
	return true
}

// invalidate 使全部句柄失效并释放文档，返回释放的数量。
func (t *docTable) invalidate() int {
	n := t.live
	t.base += uint32(len(t.entries))
	t.entries = nil
	t.live = 0
	return n
}

// compact 裁掉开头已失效的槽位。
func (t *docTable) compact() {
	n := 0
	for n < len(t.entries) && !t.entries[n].valid {
		n++
	}
	if n == 0 {
		return
	}
	t.base += uint32(n)
	t.entries = append([]docEntry(nil), t.entries[n:]...)
}
