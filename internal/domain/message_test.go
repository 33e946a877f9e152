package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestVisibleTo(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()
	third := uuid.New()

	broadcast := &Message{Type: MessageTypeContent}
	if !broadcast.VisibleTo(third) {
		t.Fatal("broadcast message must be visible to everyone")
	}

	directed := &Message{SenderID: &sender, RecipientID: &recipient, Type: MessageTypeReaction}
	if !directed.VisibleTo(sender) || !directed.VisibleTo(recipient) {
		t.Fatal("directed message must be visible to both parties")
	}
	if directed.VisibleTo(third) {
		t.Fatal("directed message must be hidden from third parties")
	}

	orphan := &Message{RecipientID: &recipient, Type: MessageTypeReaction}
	if orphan.VisibleTo(third) {
		t.Fatal("directed message without a sender is still hidden from outsiders")
	}
}

func TestCountsTowardUnread(t *testing.T) {
	me := uuid.New()
	other := uuid.New()
	joined := time.Now()
	inWindow := joined.Add(time.Minute)

	tests := []struct {
		name   string
		msg    Message
		leftAt *time.Time
		want   bool
	}{
		{
			name: "foreign message in window",
			msg:  Message{SenderID: &other, Type: MessageTypeContent, CreatedAt: inWindow},
			want: true,
		},
		{
			name: "before joining",
			msg:  Message{SenderID: &other, Type: MessageTypeContent, CreatedAt: joined.Add(-time.Minute)},
			want: false,
		},
		{
			name:   "after leaving",
			msg:    Message{SenderID: &other, Type: MessageTypeContent, CreatedAt: inWindow.Add(time.Hour)},
			leftAt: ptrTime(inWindow),
			want:   false,
		},
		{
			name: "own message",
			msg:  Message{SenderID: &me, Type: MessageTypeContent, CreatedAt: inWindow},
			want: false,
		},
		{
			name: "own reaction notice counts",
			msg:  Message{SenderID: &me, RecipientID: &other, Type: MessageTypeReaction, CreatedAt: inWindow},
			want: true,
		},
		{
			name: "directed at someone else",
			msg:  Message{SenderID: &other, RecipientID: &other, Type: MessageTypeReaction, CreatedAt: inWindow},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.CountsTowardUnread(me, joined, tt.leftAt); got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
