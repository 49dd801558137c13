package chat

import (
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"carparter/internal/models"
)

func TestBroadcastReachesAllRoomSubscribers(t *testing.T) {
	h := NewHub()

	first, leaveFirst := h.Join("room-1")
	second, leaveSecond := h.Join("room-1")
	other, leaveOther := h.Join("room-2")
	defer leaveFirst()
	defer leaveSecond()
	defer leaveOther()

	msg := models.ChatMessage{Content: "hello", SentAt: time.Now()}
	h.Broadcast("room-1", msg)

	for name, ch := range map[string]<-chan models.ChatMessage{"first": first, "second": second} {
		select {
		case got := <-ch:
			if got.Content != "hello" {
				t.Fatalf("%s: unexpected content %q", name, got.Content)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: message not relayed", name)
		}
	}

	select {
	case <-other:
		t.Fatal("message leaked into another room")
	default:
	}
}

func TestLeaveDetachesSubscriber(t *testing.T) {
	h := NewHub()

	ch, leave := h.Join("room-1")
	leave()
	leave() // idempotent

	if _, open := <-ch; open {
		t.Fatal("expected stream closed after leave")
	}
	if h.Subscribers("room-1") != 0 {
		t.Fatal("expected empty room to be removed")
	}

	// Broadcasting into an empty room is a no-op.
	h.Broadcast("room-1", models.ChatMessage{Content: "late"})
}

func TestSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	h := NewHub()

	_, leaveSlow := h.Join("room-1")
	defer leaveSlow()
	fast, leaveFast := h.Join("room-1")
	defer leaveFast()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < messageBuffer*2; i++ {
			h.Broadcast("room-1", models.ChatMessage{Content: "flood"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a subscriber that never reads")
	}

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber received nothing")
	}
}

func TestConcurrentBroadcastOrderIsMonotonicPerSender(t *testing.T) {
	h := NewHub()

	ch, leave := h.Join("room-1")

	roomID := primitive.NewObjectID()
	var wg sync.WaitGroup
	const senders, perSender = 4, 8
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				// Server-assigned timestamps: persisted before relay, as the
				// send handler does.
				h.Broadcast("room-1", models.ChatMessage{RoomID: roomID, SentAt: time.Now()})
			}
		}()
	}

	received := make([]models.ChatMessage, 0, senders*perSender)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for msg := range ch {
			received = append(received, msg)
		}
	}()

	wg.Wait()
	leave()
	<-collected

	if len(received) == 0 {
		t.Fatal("no messages relayed")
	}
	for _, msg := range received {
		if msg.RoomID != roomID {
			t.Fatal("relayed message must be the persisted message verbatim")
		}
	}
}
