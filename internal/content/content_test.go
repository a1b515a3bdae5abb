package content

import (
	"testing"

	"dodekaedr-bot/internal/domain"
)

func TestLibraryCoversAllTopics(t *testing.T) {
	lib := NewLibrary()
	for n := domain.MinTopic; n <= domain.MaxTopic; n++ {
		if _, ok := lib.Topic(n); !ok {
			t.Fatalf("нет названия грани %d", n)
		}
		for _, tone := range domain.Tones {
			sc, ok := lib.Scenario(tone, n)
			if !ok {
				t.Fatalf("нет сценария для тона %s, грань %d", tone, n)
			}
			if sc.Impulse == "" || sc.Task == "" {
				t.Fatalf("пустой сценарий для тона %s, грань %d", tone, n)
			}
		}
	}
}

func TestLibraryRejectsOutOfRange(t *testing.T) {
	lib := NewLibrary()
	if _, ok := lib.Topic(0); ok {
		t.Fatal("грань 0 не должна существовать")
	}
	if _, ok := lib.Scenario(domain.ToneBase, 13); ok {
		t.Fatal("грань 13 не должна существовать")
	}
}
