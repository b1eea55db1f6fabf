package memory

import (
	"testing"

	"quizparty-service/internal/app"
)

func TestRoomStoreLifecycle(t *testing.T) {
	store := NewRoomStore()
	room := app.NewRoom("ABCDE", nil, 5, "c1", "Amina")

	if !store.PutIfAbsent("ABCDE", room) {
		t.Fatalf("expected claim of a fresh code to succeed")
	}
	if _, ok := store.Get("ABCDE"); !ok {
		t.Fatalf("expected room present")
	}

	other := app.NewRoom("ABCDE", nil, 5, "c2", "Bilal")
	if store.PutIfAbsent("ABCDE", other) {
		t.Fatalf("expected second claim of the same code to fail")
	}

	store.Delete("ABCDE")
	if _, ok := store.Get("ABCDE"); ok {
		t.Fatalf("expected room removed")
	}
}
