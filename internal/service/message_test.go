package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"social_messaging/internal/domain"
	apperrors "social_messaging/pkg/errors"
)

func newMessageService(messageRepo *fakeMessageRepo, roomRepo *fakeRoomRepo) MessageService {
	return NewMessageService(messageRepo, roomRepo, testConfig(), testLogger())
}

func TestSendValidatesInput(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	roomID := uuid.New()
	sender := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	svc := newMessageService(newFakeMessageRepo(), roomRepo)

	if _, _, err := svc.Send(context.Background(), sender, roomID, "", "", nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for empty content, got %v", err)
	}
	long := strings.Repeat("x", 5000)
	if _, _, err := svc.Send(context.Background(), sender, roomID, long, "", nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for oversized content, got %v", err)
	}
	if _, _, err := svc.Send(context.Background(), sender, roomID, "hi", "BOGUS", nil); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for unknown type, got %v", err)
	}
}

func TestSendRequiresActiveMembership(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	roomID := uuid.New()
	banned := uuid.New()
	stranger := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, banned, domain.MemberTypeBanned)
	svc := newMessageService(newFakeMessageRepo(), roomRepo)

	if _, _, err := svc.Send(context.Background(), banned, roomID, "hi", "", nil); !errors.Is(err, apperrors.ErrMemberBanned) {
		t.Fatalf("expected ErrMemberBanned, got %v", err)
	}
	if _, _, err := svc.Send(context.Background(), stranger, roomID, "hi", "", nil); !errors.Is(err, apperrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestSendDefaultsToContentType(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	roomID := uuid.New()
	sender := uuid.New()
	other := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	roomRepo.addMember(roomID, other, domain.MemberTypeMember)
	svc := newMessageService(messageRepo, roomRepo)

	msg, members, err := svc.Send(context.Background(), sender, roomID, "hello", "", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Type != domain.MessageTypeContent {
		t.Fatalf("expected CONTENT default, got %s", msg.Type)
	}
	if len(members) != 2 {
		t.Fatalf("expected both active members as fan-out targets, got %d", len(members))
	}
	if len(messageRepo.lastTargets) != 1 || len(messageRepo.lastTargets[0]) != 2 {
		t.Fatalf("expected last-message pointers for both members")
	}
}

func TestSendCoercesSelfNotesToSaved(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	roomID := uuid.New()
	owner := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindSelfNotes, MaxMembers: 1})
	roomRepo.addMember(roomID, owner, domain.MemberTypeOwner)
	svc := newMessageService(newFakeMessageRepo(), roomRepo)

	msg, _, err := svc.Send(context.Background(), owner, roomID, "note to self", domain.MessageTypeContent, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.Type != domain.MessageTypeSaved {
		t.Fatalf("expected SAVED in self notes, got %s", msg.Type)
	}
}

func TestSendDirectedTargetsOnlyParties(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	roomID := uuid.New()
	sender := uuid.New()
	recipient := uuid.New()
	third := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	for _, id := range []uuid.UUID{sender, recipient, third} {
		roomRepo.addMember(roomID, id, domain.MemberTypeMember)
	}
	svc := newMessageService(messageRepo, roomRepo)

	msg, members, err := svc.Send(context.Background(), sender, roomID, "only for you", "", &recipient)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.RecipientID == nil || *msg.RecipientID != recipient {
		t.Fatalf("expected recipient persisted on the message")
	}
	if len(members) != 2 {
		t.Fatalf("expected only sender and recipient as targets, got %d", len(members))
	}
	for _, id := range members {
		if id == third {
			t.Fatalf("third party must not be a pointer target")
		}
	}

	// третий участник сообщения не видит
	page, _, err := svc.GetPage(context.Background(), third, roomID, nil, 10)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("expected directed message hidden from third party, got %d", len(page))
	}
}

func TestSendDirectedToSelfFallsBackToBroadcast(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	roomID := uuid.New()
	sender := uuid.New()
	other := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	roomRepo.addMember(roomID, other, domain.MemberTypeMember)
	svc := newMessageService(newFakeMessageRepo(), roomRepo)

	msg, members, err := svc.Send(context.Background(), sender, roomID, "hi", "", &sender)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if msg.RecipientID != nil {
		t.Fatalf("expected recipient dropped when it equals the sender")
	}
	if len(members) != 2 {
		t.Fatalf("expected normal fan-out, got %d targets", len(members))
	}
}

func TestSendDirectedRejectsInactiveRecipient(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	roomID := uuid.New()
	sender := uuid.New()
	gone := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	roomRepo.addMember(roomID, gone, domain.MemberTypeOld)
	svc := newMessageService(newFakeMessageRepo(), roomRepo)

	if _, _, err := svc.Send(context.Background(), sender, roomID, "hi", "", &gone); !errors.Is(err, apperrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember for inactive recipient, got %v", err)
	}
}

func TestDeleteOnlyBySender(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	roomID := uuid.New()
	sender := uuid.New()
	other := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	roomRepo.addMember(roomID, other, domain.MemberTypeMember)
	svc := newMessageService(messageRepo, roomRepo)

	msg, _, err := svc.Send(context.Background(), sender, roomID, "hello", "", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := svc.Delete(context.Background(), other, msg.ID, roomID); !errors.Is(err, apperrors.ErrNotSender) {
		t.Fatalf("expected ErrNotSender, got %v", err)
	}

	members, err := svc.Delete(context.Background(), sender, msg.ID, roomID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected both members notified of deletion, got %d", len(members))
	}
	if _, err := messageRepo.GetByID(context.Background(), msg.ID); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Fatalf("expected message to be gone, got %v", err)
	}

	// повторное удаление уже несуществующего
	if _, err := svc.Delete(context.Background(), sender, msg.ID, roomID); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound on double delete, got %v", err)
	}
}

func TestDeleteRejectsRoomMismatch(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	roomID := uuid.New()
	sender := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	roomRepo.addMember(roomID, sender, domain.MemberTypeMember)
	svc := newMessageService(messageRepo, roomRepo)

	msg, _, err := svc.Send(context.Background(), sender, roomID, "hello", "", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := svc.Delete(context.Background(), sender, msg.ID, uuid.New()); !errors.Is(err, apperrors.ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for wrong room, got %v", err)
	}
}

func TestGetPageHidesDirectedNoticesFromThirdParties(t *testing.T) {
	roomRepo := newFakeRoomRepo()
	messageRepo := newFakeMessageRepo()
	roomID := uuid.New()
	author := uuid.New()
	reactor := uuid.New()
	third := uuid.New()
	roomRepo.addRoom(&domain.Room{ID: roomID, Kind: domain.RoomKindGroup})
	for _, id := range []uuid.UUID{author, reactor, third} {
		roomRepo.addMember(roomID, id, domain.MemberTypeMember)
	}
	svc := newMessageService(messageRepo, roomRepo)

	_ = messageRepo.Create(context.Background(), &domain.Message{
		ID:          uuid.New(),
		RoomID:      &roomID,
		SenderID:    &reactor,
		RecipientID: &author,
		Type:        domain.MessageTypeReaction,
		Content:     "👍",
	}, nil)

	for userID, want := range map[uuid.UUID]int{author: 1, reactor: 1, third: 0} {
		page, _, err := svc.GetPage(context.Background(), userID, roomID, nil, 10)
		if err != nil {
			t.Fatalf("GetPage: %v", err)
		}
		if len(page) != want {
			t.Fatalf("expected %d visible messages for user, got %d", want, len(page))
		}
	}
}
