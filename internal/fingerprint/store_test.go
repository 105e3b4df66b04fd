package fingerprint

import (
	"fmt"
	"sync"
	"testing"

	"github.com/starford/munin/internal/snapshot"
)

func TestStore_GetMissing(t *testing.T) {
	s := NewStore()
	if _, ok := s.Get(Key{Class: ClassDocument, EntityID: "d1"}); ok {
		t.Error("unseen key should report absent")
	}
}

func TestStore_CompareAndSet(t *testing.T) {
	s := NewStore()
	k := Key{Class: ClassDocument, EntityID: "d1"}

	if !s.CompareAndSet(k, "aaa") {
		t.Error("first sighting should report changed")
	}
	if s.CompareAndSet(k, "aaa") {
		t.Error("identical fingerprint should report unchanged")
	}
	if !s.CompareAndSet(k, "bbb") {
		t.Error("different fingerprint should report changed")
	}
	if fp, _ := s.Get(k); fp != "bbb" {
		t.Errorf("stored fingerprint = %q, want %q", fp, "bbb")
	}
}

func TestStore_ScopedKeysIndependent(t *testing.T) {
	s := NewStore()
	// Same entity id under two documents must not collide.
	s.Set(Key{Class: ClassTranscript, ScopeID: "doc-1", EntityID: "t-1"}, "aaa")
	if _, ok := s.Get(Key{Class: ClassTranscript, ScopeID: "doc-2", EntityID: "t-1"}); ok {
		t.Error("scoped keys should be independent per document")
	}
	// Same id under two classes must not collide either.
	if _, ok := s.Get(Key{Class: ClassTemplate, ScopeID: "doc-1", EntityID: "t-1"}); ok {
		t.Error("keys should be independent per entity class")
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				k := Key{Class: ClassDocument, EntityID: fmt.Sprintf("d-%d-%d", n, j)}
				s.CompareAndSet(k, "fp")
				s.Get(k)
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 800 {
		t.Errorf("len = %d, want 800", s.Len())
	}
}

func TestDetector_HasChanged(t *testing.T) {
	det := NewDetector(NewStore())
	k := Key{Class: ClassDocument, EntityID: "d1"}
	doc := snapshot.Document{ID: "d1", Title: "a"}

	changed, err := det.HasChanged(k, doc.Title)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Error("first check should report changed")
	}
	changed, err = det.HasChanged(k, doc.Title)
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("second identical check should report unchanged")
	}
}
