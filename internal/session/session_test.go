package session

import (
	"context"
	"io"
	"testing"

	"github.com/chaintara/shopchat-linebot-go/internal/logger"
	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db, logger.NewWithWriter("error", io.Discard))
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name     string
		existing map[string]any
		incoming map[string]any
		want     map[string]any
	}{
		{
			name:     "new keys are added",
			existing: map[string]any{"color": "red"},
			incoming: map[string]any{"size": "L"},
			want:     map[string]any{"color": "red", "size": "L"},
		},
		{
			name:     "non-empty incoming overwrites",
			existing: map[string]any{"color": "red"},
			incoming: map[string]any{"color": "blue"},
			want:     map[string]any{"color": "blue"},
		},
		{
			name:     "empty string does not erase",
			existing: map[string]any{"color": "red"},
			incoming: map[string]any{"color": ""},
			want:     map[string]any{"color": "red"},
		},
		{
			name:     "nil does not erase",
			existing: map[string]any{"color": "red"},
			incoming: map[string]any{"color": nil},
			want:     map[string]any{"color": "red"},
		},
		{
			name:     "zero number is a valid value",
			existing: map[string]any{"qty": 3},
			incoming: map[string]any{"qty": 0},
			want:     map[string]any{"qty": 0},
		},
		{
			name:     "false is a valid value",
			existing: map[string]any{"gift": true},
			incoming: map[string]any{"gift": false},
			want:     map[string]any{"gift": false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.existing, tt.incoming)
			if len(got) != len(tt.want) {
				t.Fatalf("Merge() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Merge()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	existing := map[string]any{"color": "red"}
	incoming := map[string]any{"color": "blue"}

	_ = Merge(existing, incoming)

	if existing["color"] != "red" {
		t.Error("Merge mutated the existing map")
	}
}

func TestRescueFromText(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		slots map[string]any
		want  map[string]any
	}{
		{
			name:  "labeled thai product code",
			text:  "สนใจรหัส ab-123 ค่ะ",
			slots: map[string]any{},
			want:  map[string]any{SlotProductCode: "AB-123"},
		},
		{
			name:  "labeled english code with colon",
			text:  "code: XY-99 please",
			slots: map[string]any{},
			want:  map[string]any{SlotProductCode: "XY-99"},
		},
		{
			name:  "bare product code shape",
			text:  "RX-7040 ยังมีไหม",
			slots: map[string]any{},
			want:  map[string]any{SlotProductCode: "RX-7040"},
		},
		{
			name:  "amount with thai baht",
			text:  "โอนไปแล้ว 1,500 บาท",
			slots: map[string]any{},
			want:  map[string]any{SlotAmount: "1500"},
		},
		{
			name:  "phone number",
			text:  "เบอร์ 0812345678 ครับ",
			slots: map[string]any{},
			want:  map[string]any{SlotPhone: "0812345678"},
		},
		{
			name:  "existing slot is kept",
			text:  "รหัส ZZ-999",
			slots: map[string]any{SlotProductCode: "AA-111"},
			want:  map[string]any{SlotProductCode: "AA-111"},
		},
		{
			name:  "no extractable data",
			text:  "สวัสดีค่ะ",
			slots: map[string]any{},
			want:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RescueFromText(tt.text, tt.slots)
			if len(got) != len(tt.want) {
				t.Fatalf("RescueFromText() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("RescueFromText()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(sess.Slots) != 0 {
		t.Fatalf("fresh session should have no slots, got %v", sess.Slots)
	}

	store.MergeSlots(ctx, sess, map[string]any{"color": "red"})
	store.MergeSlots(ctx, sess, map[string]any{"color": "", "size": "L"})

	loaded, err := store.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.Slots["color"] != "red" {
		t.Errorf("color = %v, want red", loaded.Slots["color"])
	}
	if loaded.Slots["size"] != "L" {
		t.Errorf("size = %v, want L", loaded.Slots["size"])
	}

	if err := store.Clear(ctx, "U1", "C1"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	cleared, err := store.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Get() after clear error = %v", err)
	}
	if len(cleared.Slots) != 0 {
		t.Errorf("cleared session should have no slots, got %v", cleared.Slots)
	}
	// Clear blanks the row in place. A deleted row would come back as a
	// fresh session with a zero update time.
	if cleared.UpdatedAt.IsZero() {
		t.Error("cleared session should keep its row, got a fresh one")
	}
}

func TestRemoveSlots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess, err := store.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	store.MergeSlots(ctx, sess, map[string]any{
		"product_name": "เคสกันกระแทก", "product_price": 390, "color": "red",
	})

	store.RemoveSlots(ctx, sess, "product_name", "product_price")

	loaded, err := store.Get(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := loaded.Slots["product_name"]; ok {
		t.Error("product_name should be removed")
	}
	if _, ok := loaded.Slots["product_price"]; ok {
		t.Error("product_price should be removed")
	}
	if loaded.Slots["color"] != "red" {
		t.Errorf("color = %v, want red", loaded.Slots["color"])
	}
}
