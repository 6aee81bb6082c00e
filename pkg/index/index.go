package index

import (
	"sort"
	"sync"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

// Index 内存向量索引。块按文档分组，读写互斥以文档为粒度：
// 重建某文档的块集合时只阻塞对该文档的检索，其他文档的读不受影响。
type Index struct {
	mu   sync.RWMutex // 保护 docs 这张表本身
	docs map[string]*documentSet
}

type documentSet struct {
	mu     sync.RWMutex
	chunks []model.Chunk // 按 ordinal 升序
}

// New 创建空索引
func New() *Index {
	return &Index{docs: make(map[string]*documentSet)}
}

func (ix *Index) docSet(documentID string, create bool) *documentSet {
	ix.mu.RLock()
	ds, ok := ix.docs[documentID]
	ix.mu.RUnlock()
	if ok || !create {
		return ds
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ds, ok = ix.docs[documentID]; ok {
		return ds
	}
	ds = &documentSet{}
	ix.docs[documentID] = ds
	return ds
}

// Put 替换一个文档的全部块。写入期间该文档的检索会阻塞等待。
func (ix *Index) Put(documentID string, chunks []model.Chunk) {
	ds := ix.docSet(documentID, true)

	cp := make([]model.Chunk, len(chunks))
	copy(cp, chunks)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Ordinal < cp[j].Ordinal })

	ds.mu.Lock()
	ds.chunks = cp
	ds.mu.Unlock()
}

// Delete 删除文档及其全部块
func (ix *Index) Delete(documentID string) {
	ix.mu.Lock()
	ds, ok := ix.docs[documentID]
	if ok {
		delete(ix.docs, documentID)
	}
	ix.mu.Unlock()

	if ok {
		// 等待在途读者退出后再丢弃
		ds.mu.Lock()
		ds.chunks = nil
		ds.mu.Unlock()
	}
}

// Snapshot 取出 scope 内的块副本。documentID 为空表示全库。
// scope 内没有块时返回空切片，这是合法状态而非错误。
func (ix *Index) Snapshot(documentID string) []model.Chunk {
	if documentID != "" {
		ds := ix.docSet(documentID, false)
		if ds == nil {
			return nil
		}
		ds.mu.RLock()
		defer ds.mu.RUnlock()
		out := make([]model.Chunk, len(ds.chunks))
		copy(out, ds.chunks)
		return out
	}

	ix.mu.RLock()
	ids := make([]string, 0, len(ix.docs))
	for id := range ix.docs {
		ids = append(ids, id)
	}
	ix.mu.RUnlock()
	// 文档序固定，保证全库快照的顺序可复现
	sort.Strings(ids)

	var out []model.Chunk
	for _, id := range ids {
		ds := ix.docSet(id, false)
		if ds == nil {
			continue
		}
		ds.mu.RLock()
		out = append(out, ds.chunks...)
		ds.mu.RUnlock()
	}
	return out
}

// Count 当前块总数
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, ds := range ix.docs {
		ds.mu.RLock()
		n += len(ds.chunks)
		ds.mu.RUnlock()
	}
	return n
}
