package storage

import (
	"context"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndQueryMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	var lastID int64
	for i, content := range []string{"first", "second", "third"} {
		id, err := db.InsertMessage(ctx, &Message{
			UserID:      "U1",
			ChatID:      "C1",
			Role:        RoleUser,
			Content:     content,
			BufferState: BufferPending,
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		lastID = id
	}

	recent, err := db.RecentUserMessages(ctx, "U1", "C1", 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d messages, want 2", len(recent))
	}
	if recent[0].Content != "third" {
		t.Errorf("newest first expected, got %q", recent[0].Content)
	}

	// Bounded variant excludes the row at the bound and everything
	// newer.
	bounded, err := db.RecentUserMessagesBefore(ctx, "U1", "C1", 2, lastID)
	if err != nil {
		t.Fatalf("bounded query failed: %v", err)
	}
	if len(bounded) != 2 || bounded[0].Content != "second" {
		t.Errorf("bounded lookup = %+v, want second then first", bounded)
	}
}

func TestPendingFlushCycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var ids []int64
	for _, content := range []string{"a", "b"} {
		id, err := db.InsertMessage(ctx, &Message{
			UserID: "U1", ChatID: "C1", Role: RoleUser,
			Content: content, BufferState: BufferPending,
		})
		if err != nil {
			t.Fatalf("insert failed: %v", err)
		}
		ids = append(ids, id)
	}

	pending, err := db.PendingMessages(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("pending query failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Content != "a" {
		t.Errorf("oldest first expected, got %q", pending[0].Content)
	}

	if err := db.MarkFlushed(ctx, ids); err != nil {
		t.Fatalf("mark flushed failed: %v", err)
	}
	pending, err = db.PendingMessages(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("pending query failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("got %d pending after flush, want 0", len(pending))
	}
}

func TestConversationsWithPending(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := time.Now().Add(-time.Minute)
	_, _ = db.InsertMessage(ctx, &Message{
		UserID: "U1", ChatID: "C1", Role: RoleUser,
		Content: "stale", BufferState: BufferPending, CreatedAt: old,
	})
	_, _ = db.InsertMessage(ctx, &Message{
		UserID: "U2", ChatID: "C2", Role: RoleUser,
		Content: "fresh", BufferState: BufferPending,
	})

	convs, err := db.ConversationsWithPending(ctx, time.Now().Add(-10*time.Second))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(convs) != 1 || convs[0].UserID != "U1" {
		t.Errorf("expected only stale conversation, got %+v", convs)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s, err := db.GetSession(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("get empty session failed: %v", err)
	}
	if len(s.Slots) != 0 {
		t.Errorf("fresh session should have no slots")
	}

	s.Slots["product_code"] = "AB-X100"
	s.Slots["amount"] = float64(1500)
	s.CheckoutStep = "ask_payment"
	s.LastViewedProduct = "AB-X100"
	if err := db.PutSession(ctx, s); err != nil {
		t.Fatalf("put session failed: %v", err)
	}

	loaded, err := db.GetSession(ctx, "U1", "C1")
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if loaded.Slots["product_code"] != "AB-X100" {
		t.Errorf("slot lost: %v", loaded.Slots)
	}
	if loaded.CheckoutStep != "ask_payment" {
		t.Errorf("checkout step = %q", loaded.CheckoutStep)
	}
	if loaded.LastViewedProduct != "AB-X100" {
		t.Errorf("last viewed product = %q", loaded.LastViewedProduct)
	}
}

func TestHandoffExpiry(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	state := &HandoffState{
		ChatID:      "C1",
		Paused:      true,
		PausedAt:    time.Now().Add(-2 * time.Hour),
		LastAdminAt: time.Now().Add(-2 * time.Hour),
	}
	if err := db.PutHandoffState(ctx, state); err != nil {
		t.Fatalf("put handoff failed: %v", err)
	}

	n, err := db.ExpirePausedHandoffs(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("expire failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d rows, want 1", n)
	}

	loaded, err := db.GetHandoffState(ctx, "C1")
	if err != nil {
		t.Fatalf("get handoff failed: %v", err)
	}
	if loaded.Paused {
		t.Error("state should be resumed after expiry")
	}
}

func TestOrderRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	order := &Order{
		ID: "ORD-test1", UserID: "U1", ChatID: "C1",
		ProductCode: "AB-X100", ProductName: "กระเป๋ารุ่น X100",
		Price: 4500, PaymentMethod: "installment", DeliveryMethod: "ems",
		DeliveryFee: 150, Status: OrderStatusPendingReview,
		Installments: []Installment{
			{Period: 1, Amount: 1635, DueAt: time.Now()},
			{Period: 2, Amount: 1500, DueAt: time.Now().AddDate(0, 0, 30)},
			{Period: 3, Amount: 1500, DueAt: time.Now().AddDate(0, 0, 60)},
		},
	}
	if err := db.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	loaded, err := db.GetOrder(ctx, "ORD-test1")
	if err != nil {
		t.Fatalf("get order failed: %v", err)
	}
	if len(loaded.Installments) != 3 {
		t.Errorf("got %d installments, want 3", len(loaded.Installments))
	}

	count, err := db.CountRecentPendingOrders(ctx, "U1", 7*24*time.Hour)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("pending count = %d, want 1", count)
	}
}

func TestKBEntryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &KBEntry{
		Answer:      "ส่ง EMS ค่ะ 2-3 วันถึง",
		RequireAll:  []string{"ส่ง"},
		RequireAny:  []string{"กี่วัน", "นาน"},
		ExcludeAny:  []string{"ยกเลิก"},
		MinQueryLen: 4,
		Advanced:    true,
		Active:      true,
	}
	if err := db.UpsertKBEntry(ctx, entry); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if entry.ID == 0 {
		t.Fatal("insert should assign an ID")
	}

	entries, err := db.ListKBEntries(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].RequireAny[1] != "นาน" {
		t.Errorf("rule lists lost: %+v", entries[0])
	}
}

func TestProductSearchAndPrices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.UpsertProducts(ctx, []*Product{
		{Code: "AB-X100", Name: "กระเป๋ารุ่น X100", Price: 4500, InStock: true},
		{Code: "AB-X200", Name: "กระเป๋ารุ่น X200", Price: 6900, InStock: false},
	})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	p, err := db.GetProductByCode(ctx, "ab-x100")
	if err != nil {
		t.Fatalf("get by code failed: %v", err)
	}
	if p == nil || p.Price != 4500 {
		t.Errorf("case-insensitive lookup failed: %+v", p)
	}

	missing, err := db.GetProductByCode(ctx, "ZZ-999")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Error("unknown code should return nil product")
	}

	results, err := db.SearchProducts(ctx, "กระเป๋า", 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("search should exclude out-of-stock items, got %d", len(results))
	}

	prices, err := db.ListProductPrices(ctx)
	if err != nil {
		t.Fatalf("prices failed: %v", err)
	}
	if len(prices) != 2 {
		t.Errorf("got %d prices, want 2", len(prices))
	}
}
