package model

import (
	"errors"
	"testing"
)

func TestNewNotification_RejectsCompletelyEmpty(t *testing.T) {
	_, err := NewNotification("chat", "", "", "", nil, 0)
	if !errors.Is(err, ErrEmptyNotification) {
		t.Fatalf("Expected ErrEmptyNotification, got %v", err)
	}
}

func TestNewNotification_SingleFieldIsEnough(t *testing.T) {
	cases := []struct {
		name                     string
		title, subtitle, content string
	}{
		{"title only", "Hi", "", ""},
		{"subtitle only", "", "sub", ""},
		{"content only", "", "", "body"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, err := NewNotification("chat", tc.title, tc.subtitle, tc.content, nil, 0)
			if err != nil {
				t.Fatalf("Expected success, got %v", err)
			}
			if n.ID == "" {
				t.Error("Expected generated ID")
			}
			if n.Priority != DefaultPriority {
				t.Errorf("Expected default priority %d, got %d", DefaultPriority, n.Priority)
			}
		})
	}
}

func TestNewNotification_KeepsExplicitPriority(t *testing.T) {
	n, err := NewNotification("chat", "Hi", "", "", nil, 1)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if n.Priority != 1 {
		t.Errorf("Expected priority 1, got %d", n.Priority)
	}
}

func TestCloneFor_DistinctIDAndAccount(t *testing.T) {
	n, err := NewNotification("chat", "Hi", "", "", Meta{"k": "v"}, 0)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	clone := n.CloneFor(42)
	if clone.AccountID != 42 {
		t.Errorf("Expected account 42, got %d", clone.AccountID)
	}
	if clone.ID == n.ID {
		t.Error("Expected clone to get its own ID")
	}
	if clone.Title != n.Title || clone.Meta["k"] != "v" {
		t.Error("Expected clone to share body fields")
	}
}

func TestDecodePacket(t *testing.T) {
	pkt, err := DecodePacket([]byte(`{"type":"chat_read","data":{"x":1},"endpoint":"chat"}`))
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if pkt.Type != "chat_read" || pkt.Endpoint != "chat" {
		t.Errorf("Unexpected packet: %+v", pkt)
	}

	if _, err := DecodePacket([]byte(`{"data":{}}`)); !errors.Is(err, ErrPacketTypeRequired) {
		t.Errorf("Expected ErrPacketTypeRequired, got %v", err)
	}

	if _, err := DecodePacket([]byte(`not json`)); err == nil {
		t.Error("Expected error for malformed frame")
	}
}
