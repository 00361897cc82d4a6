package memory

import (
	"strings"
	"testing"
)

func TestMemoryAdapter_Limits(t *testing.T) {
	m := NewMemoryAdapter("")

	t.Run("Title length limit", func(t *testing.T) {
		longName := strings.Repeat("a", maxDemoTitleLength+1)
		_, err := m.AddFile("", longName, []byte("content"))
		if err == nil || !strings.Contains(err.Error(), "name too long") {
			t.Errorf("Expected error about name length, got: %v", err)
		}
	})

	t.Run("Content size limit", func(t *testing.T) {
		largeContent := make([]byte, maxDemoContentSize+1)
		_, err := m.AddFile("", "test.jpg", largeContent)
		if err == nil || !strings.Contains(err.Error(), "content too large") {
			t.Errorf("Expected error about content size, got: %v", err)
		}
	})

	t.Run("Item count limit", func(t *testing.T) {
		m2 := NewMemoryAdapter("")
		m2.MaxItems = 5
		for i := 0; i < m2.MaxItems; i++ {
			if _, err := m2.AddFile("", "a.jpg", []byte("ok")); err != nil {
				t.Fatalf("Failed to create item %d: %v", i, err)
			}
		}
		_, err := m2.AddFile("", "overflow.jpg", []byte("ok"))
		if err == nil || !strings.Contains(err.Error(), "item limit reached") {
			t.Errorf("Expected error about item limit, got: %v", err)
		}
	})
}
