package handlers

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/models"
)

func TestTruncateMessageShortContentUnchanged(t *testing.T) {
	if got := truncateMessage("안녕하세요", 50); got != "안녕하세요" {
		t.Fatalf("expected content unchanged, got %q", got)
	}
}

func TestTruncateMessageLongContentEllipsized(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "가"
	}
	got := truncateMessage(long, 50)
	if len([]rune(got)) != 53 {
		t.Fatalf("expected 50 runes plus ellipsis, got %d runes", len([]rune(got)))
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("expected trailing ellipsis, got %q", got)
	}
}

func TestTruncateMessageCountsRunesNotBytes(t *testing.T) {
	// 10 Hangul runes are 30 bytes; a byte cut would mangle them.
	got := truncateMessage("가나다라마바사아자차", 10)
	if got != "가나다라마바사아자차" {
		t.Fatalf("expected content unchanged at exactly max runes, got %q", got)
	}
}

func TestChatRoomHasParticipant(t *testing.T) {
	userID := primitive.NewObjectID()
	centerID := primitive.NewObjectID()
	room := models.ChatRoom{UserID: userID, CenterID: centerID}

	if !room.HasParticipant(userID) {
		t.Fatal("expected user to be a participant")
	}
	if !room.HasParticipant(centerID) {
		t.Fatal("expected center to be a participant")
	}
	if room.HasParticipant(primitive.NewObjectID()) {
		t.Fatal("expected stranger not to be a participant")
	}
}
