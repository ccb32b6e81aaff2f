package ctxutil

import (
	"context"
	"testing"
)

func TestUserIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if got := GetUserID(ctx); got != "" {
		t.Errorf("GetUserID on empty context = %q, want empty", got)
	}

	ctx = WithUserID(ctx, "U1234567890")
	if got := GetUserID(ctx); got != "U1234567890" {
		t.Errorf("GetUserID = %q, want U1234567890", got)
	}
}

func TestChatIDRoundTrip(t *testing.T) {
	ctx := WithChatID(context.Background(), "C99")
	if got := GetChatID(ctx); got != "C99" {
		t.Errorf("GetChatID = %q, want C99", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if _, ok := GetRequestID(ctx); ok {
		t.Error("GetRequestID on empty context should report not found")
	}

	ctx = WithRequestID(ctx, "req-1")
	got, ok := GetRequestID(ctx)
	if !ok || got != "req-1" {
		t.Errorf("GetRequestID = %q, %v, want req-1, true", got, ok)
	}
}

func TestPreserveTracing(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	parent = WithUserID(parent, "U1")
	parent = WithChatID(parent, "C1")
	parent = WithRequestID(parent, "R1")
	parent = WithEventID(parent, "E1")
	parent = WithMessageID(parent, "M1")

	detached := PreserveTracing(parent)
	cancel()

	if err := detached.Err(); err != nil {
		t.Fatalf("detached context should not inherit cancellation, got %v", err)
	}
	if GetUserID(detached) != "U1" {
		t.Error("userID not preserved")
	}
	if GetChatID(detached) != "C1" {
		t.Error("chatID not preserved")
	}
	if rid, ok := GetRequestID(detached); !ok || rid != "R1" {
		t.Error("requestID not preserved")
	}
	if GetEventID(detached) != "E1" {
		t.Error("eventID not preserved")
	}
	if GetMessageID(detached) != "M1" {
		t.Error("messageID not preserved")
	}
}
