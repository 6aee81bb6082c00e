package index

import (
	"sync"
	"testing"

	"github.com/iWorld-y/fin_insight/pkg/model"
)

func TestIndex_PutReplacesAndSorts(t *testing.T) {
	ix := New()
	ix.Put("doc1", []model.Chunk{
		{ID: "c2", DocumentID: "doc1", Ordinal: 2},
		{ID: "c0", DocumentID: "doc1", Ordinal: 0},
	})

	chunks := ix.Snapshot("doc1")
	if len(chunks) != 2 || chunks[0].ID != "c0" || chunks[1].ID != "c2" {
		t.Fatalf("Snapshot() = %v, want c0, c2 sorted by ordinal", chunks)
	}

	// 再次 Put 整体替换
	ix.Put("doc1", []model.Chunk{{ID: "c9", DocumentID: "doc1", Ordinal: 9}})
	chunks = ix.Snapshot("doc1")
	if len(chunks) != 1 || chunks[0].ID != "c9" {
		t.Errorf("Snapshot() after replace = %v, want only c9", chunks)
	}
}

func TestIndex_Delete(t *testing.T) {
	ix := New()
	ix.Put("doc1", []model.Chunk{{ID: "c0", DocumentID: "doc1"}})
	ix.Delete("doc1")

	if got := ix.Snapshot("doc1"); len(got) != 0 {
		t.Errorf("Snapshot() after delete = %v, want empty", got)
	}
	if ix.Count() != 0 {
		t.Errorf("Count() = %d, want 0", ix.Count())
	}
}

func TestIndex_CorpusSnapshotDeterministic(t *testing.T) {
	ix := New()
	ix.Put("docB", []model.Chunk{{ID: "b0", DocumentID: "docB", Ordinal: 0}})
	ix.Put("docA", []model.Chunk{{ID: "a0", DocumentID: "docA", Ordinal: 0}})

	all := ix.Snapshot("")
	if len(all) != 2 || all[0].DocumentID != "docA" || all[1].DocumentID != "docB" {
		t.Errorf("corpus snapshot order = %v, want docA then docB", all)
	}
}

func TestIndex_ConcurrentReadWrite(t *testing.T) {
	ix := New()
	ix.Put("doc1", []model.Chunk{{ID: "c0", DocumentID: "doc1"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if n%2 == 0 {
					ix.Put("doc1", []model.Chunk{{ID: "c0", DocumentID: "doc1"}})
				} else {
					_ = ix.Snapshot("doc1")
					_ = ix.Snapshot("")
				}
			}
		}(i)
	}
	wg.Wait()

	if got := len(ix.Snapshot("doc1")); got != 1 {
		t.Errorf("Snapshot() = %d chunks, want 1", got)
	}
}
