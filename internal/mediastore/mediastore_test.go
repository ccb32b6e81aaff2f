package mediastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chaintara/shopchat-linebot-go/internal/storage"
)

func TestConfigEnabled(t *testing.T) {
	full := Config{
		Endpoint:    "https://account.r2.cloudflarestorage.com",
		AccessKeyID: "key",
		SecretKey:   "secret",
		Bucket:      "media",
	}
	if !full.Enabled() {
		t.Error("complete config should be enabled")
	}

	partial := full
	partial.SecretKey = ""
	if partial.Enabled() {
		t.Error("config missing a field should be disabled")
	}

	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
}

func TestNewDisabledReturnsNil(t *testing.T) {
	store, err := New(context.Background(), Config{}, nil, nil)
	if err != nil {
		t.Fatalf("disabled store should not error: %v", err)
	}
	if store != nil {
		t.Fatal("expected nil store for empty config")
	}
	if store.Enabled() {
		t.Error("nil store should report disabled")
	}
}

func TestNilStoreIsNoOp(t *testing.T) {
	var store *Store
	ctx := context.Background()

	key, err := store.SaveMedia(ctx, "U1", nil, "image/jpeg")
	if err != nil || key != "" {
		t.Errorf("nil SaveMedia = %q, %v, want empty no-op", key, err)
	}

	key, err = store.ExportConversations(ctx, time.Now())
	if err != nil || key != "" {
		t.Errorf("nil ExportConversations = %q, %v, want empty no-op", key, err)
	}

	if _, err := store.Fetch(ctx, "media/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("nil Fetch error = %v, want ErrNotFound", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seed := []*storage.Message{
		{UserID: "U1", ChatID: "C1", Role: storage.RoleUser, Content: "สวัสดีค่ะ", BufferState: storage.BufferFlushed, CreatedAt: created},
		{UserID: "U1", ChatID: "C1", Role: storage.RoleAssistant, Content: "สวัสดีค่ะ สนใจสินค้าตัวไหนคะ", BufferState: storage.BufferFlushed, CreatedAt: created.Add(time.Second)},
		{UserID: "U2", ChatID: "C2", Role: storage.RoleUser, Content: "RX-7040 ราคาเท่าไหร่", BufferState: storage.BufferFlushed, CreatedAt: created.Add(2 * time.Second)},
	}
	for _, m := range seed {
		if _, err := db.InsertMessage(ctx, m); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	messages, err := db.MessagesSince(ctx, created)
	if err != nil {
		t.Fatalf("MessagesSince failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(messages))
	}

	payload, err := encodeExport(messages)
	if err != nil {
		t.Fatalf("encodeExport failed: %v", err)
	}

	records, err := decodeExport(payload)
	if err != nil {
		t.Fatalf("decodeExport failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	if records[0].Content != "สวัสดีค่ะ" || records[0].Role != storage.RoleUser {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[2].UserID != "U2" {
		t.Errorf("expected third record from U2, got %+v", records[2])
	}
	if records[1].CreatedAt != "2026-03-01T09:00:01Z" {
		t.Errorf("unexpected timestamp %q", records[1].CreatedAt)
	}
}

func TestEncodeExportEmpty(t *testing.T) {
	payload, err := encodeExport(nil)
	if err != nil {
		t.Fatalf("encodeExport failed: %v", err)
	}

	records, err := decodeExport(payload)
	if err != nil {
		t.Fatalf("decodeExport failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"image/jpeg", ".jpg"},
		{"image/png", ".png"},
		{"image/webp", ".webp"},
		{"video/mp4", ".mp4"},
		{"application/octet-stream", ".bin"},
		{"", ".bin"},
	}
	for _, tt := range tests {
		if got := extensionFor(tt.contentType); got != tt.want {
			t.Errorf("extensionFor(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}
