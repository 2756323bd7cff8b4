package broadcast

import (
	"strings"
	"testing"
	"time"

	"github.com/ilingu/ilix-server/pkg/apperr"
	"github.com/ilingu/ilix-server/pkg/types"
)

func TestMessageWireFormat(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{
			name: "ping is a comment line",
			msg:  Ping,
			want: ": Ping\n\n",
		},
		{
			name: "connected acknowledgment",
			msg:  Connected,
			want: "event: connected\ndata: client connected\n\n",
		},
		{
			name: "logout carries no payload",
			msg:  Data(LogoutEvent()),
			want: "event: logout\ndata:\n\n",
		},
		{
			name: "transfer event carries json",
			msg: Data(TransferEvent(types.Transfer{
				ID:      "abc",
				From:    "sender",
				To:      "receiver",
				FilesID: []string{"f1"},
			})),
			want: `event: transfer` + "\n" + `data: {"_id":"abc","pool_hashed_key_phrase":"","from":"sender","to":"receiver","files_id":["f1"]}` + "\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sb strings.Builder
			if err := tt.msg.WriteTo(&sb); err != nil {
				t.Fatalf("WriteTo() error = %v", err)
			}
			if sb.String() != tt.want {
				t.Errorf("WriteTo() = %q, want %q", sb.String(), tt.want)
			}
		})
	}
}

func TestPoolEventWireFormat(t *testing.T) {
	msg := Data(PoolEvent(types.Pool{
		PoolName:        "ilovecat",
		DevicesID:       []string{"ilingu"},
		DevicesIDToName: map[string]string{"ilingu": "ilingu1"},
	}))

	var sb strings.Builder
	if err := msg.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	out := sb.String()
	if !strings.HasPrefix(out, "event: pool\ndata: {") {
		t.Errorf("unexpected record framing: %q", out)
	}
	if !strings.Contains(out, `"pool_name":"ilovecat"`) {
		t.Errorf("pool payload missing from record: %q", out)
	}
}

func TestClientID(t *testing.T) {
	a := ClientID("device", "hash")
	if a != ClientID("device", "hash") {
		t.Error("ClientID() is not deterministic")
	}
	if a == ClientID("device", "otherhash") {
		t.Error("same device in different pools must get distinct client ids")
	}
	if a == ClientID("otherdevice", "hash") {
		t.Error("different devices in the same pool must get distinct client ids")
	}
}

func TestSubscribeDeliversConnected(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("device", "hashedkp")

	select {
	case msg := <-sub.Ch():
		var sb strings.Builder
		if err := msg.WriteTo(&sb); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(sb.String(), "event: connected") {
			t.Errorf("first message = %q, want connected acknowledgment", sb.String())
		}
	default:
		t.Fatal("no message queued on a fresh subscription")
	}

	if got := b.SubscriberCount(); got != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", got)
	}
}

func TestBroadcastTargeting(t *testing.T) {
	b := NewBroadcaster()
	alice := b.Subscribe("alice", "pool-hash")
	bob := b.Subscribe("bob", "pool-hash")
	eve := b.Subscribe("eve", "other-pool-hash")

	// Drain the connected acknowledgments.
	<-alice.Ch()
	<-bob.Ch()
	<-eve.Ch()

	err := b.Broadcast([]string{"alice", "bob"}, "pool-hash", LogoutEvent())
	if err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	for _, sub := range []*Subscriber{alice, bob} {
		select {
		case <-sub.Ch():
		default:
			t.Error("targeted subscriber received nothing")
		}
	}
	select {
	case <-eve.Ch():
		t.Error("subscriber of another pool received the event")
	default:
	}
}

func TestBroadcastFullBuffer(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("slow", "pool-hash")

	// The connected message occupies one slot; fill the rest.
	for i := 0; i < clientBuffer-1; i++ {
		if !trySend(sub, Ping) {
			t.Fatalf("buffer full after %d sends, expected capacity %d", i+1, clientBuffer)
		}
	}

	err := b.Broadcast([]string{"slow"}, "pool-hash", LogoutEvent())
	if !apperr.HasCode(err, apperr.SseFailedToSend) {
		t.Errorf("Broadcast() to a saturated subscriber = %v, want SseFailedToSend", err)
	}
}

func TestRemoveStaleClients(t *testing.T) {
	b := NewBroadcaster()
	healthy := b.Subscribe("healthy", "pool-hash")
	stale := b.Subscribe("stale", "pool-hash")

	// A consumer that drains its channel survives the probe; one with a full
	// buffer does not.
	<-healthy.Ch()
	for trySend(stale, Ping) {
	}

	b.removeStaleClients()

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount() after probe = %d, want 1", got)
	}
	if err := b.Broadcast([]string{"healthy"}, "pool-hash", LogoutEvent()); err != nil {
		t.Errorf("surviving subscriber is no longer reachable: %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("device", "pool-hash")
	b.Unsubscribe(sub)

	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", got)
	}
	// Broadcast to the removed id is a no-op, not an error.
	if err := b.Broadcast([]string{"device"}, "pool-hash", LogoutEvent()); err != nil {
		t.Errorf("Broadcast() after unsubscribe = %v, want nil", err)
	}
}

func TestStartStop(t *testing.T) {
	b := NewBroadcaster()
	b.Start()
	time.Sleep(10 * time.Millisecond)
	b.Stop()
}
