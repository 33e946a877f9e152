package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
)

func TestPresenceConnectTransitionsOnFirstConnection(t *testing.T) {
	alice := &domain.User{ID: uuid.New(), Username: "alice"}
	presenceRepo := newFakePresenceRepo()
	svc := NewPresenceService(presenceRepo, newFakeUserRepo(alice), testLogger())

	status, changed, err := svc.Connect(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !changed || !status.IsOnline {
		t.Fatalf("first connection must flip the user online")
	}
	if !alice.IsOnline {
		t.Fatalf("durable row must be updated")
	}
	if len(presenceRepo.published) != 1 {
		t.Fatalf("expected exactly one published status, got %d", len(presenceRepo.published))
	}

	// вторая вкладка не меняет видимого состояния
	_, changed, err = svc.Connect(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Connect second tab: %v", err)
	}
	if changed {
		t.Fatalf("second connection must not re-announce online")
	}
	if len(presenceRepo.published) != 1 {
		t.Fatalf("no extra publish expected, got %d", len(presenceRepo.published))
	}
}

func TestPresenceDisconnectOnlyOnLastConnection(t *testing.T) {
	alice := &domain.User{ID: uuid.New(), Username: "alice"}
	presenceRepo := newFakePresenceRepo()
	svc := NewPresenceService(presenceRepo, newFakeUserRepo(alice), testLogger())

	svc.Connect(context.Background(), alice.ID)
	svc.Connect(context.Background(), alice.ID)

	// закрытие одной из двух вкладок оставляет пользователя online
	status, changed, err := svc.Disconnect(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if changed || !status.IsOnline {
		t.Fatalf("user with remaining connections stays online")
	}

	status, changed, err = svc.Disconnect(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Disconnect last: %v", err)
	}
	if !changed || status.IsOnline {
		t.Fatalf("last disconnect must flip the user offline")
	}
	if status.LastSeen == nil {
		t.Fatalf("offline status carries last_seen")
	}
	if alice.IsOnline || alice.LastSeen == nil {
		t.Fatalf("durable row must record the offline transition")
	}

	// публикаций ровно две: online при первом подключении и offline при последнем
	if len(presenceRepo.published) != 2 {
		t.Fatalf("expected 2 published statuses, got %d", len(presenceRepo.published))
	}
	if presenceRepo.published[1].IsOnline {
		t.Fatalf("second publish must be the offline transition")
	}
}

func TestPresenceStatusAnswersFromDurableRow(t *testing.T) {
	alice := &domain.User{ID: uuid.New(), Username: "alice", IsOnline: true}
	svc := NewPresenceService(newFakePresenceRepo(), newFakeUserRepo(alice), testLogger())

	status, err := svc.Status(context.Background(), alice.ID)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.UserID != alice.ID || !status.IsOnline {
		t.Fatalf("status must mirror the user row, got %+v", status)
	}

	// неизвестный пользователь - ошибка, а не пустой статус
	if _, err := svc.Status(context.Background(), uuid.New()); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}
