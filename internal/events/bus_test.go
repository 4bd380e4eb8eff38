package events

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, s *Subscription) Change {
	t.Helper()
	select {
	case c := <-s.C:
		return c
	case <-time.After(time.Second):
		t.Fatalf("no change delivered")
	}
	return Change{}
}

func TestBus_FanOutToEverySubscriber(t *testing.T) {
	b := NewBus(4, "node-a")
	s1 := b.Subscribe(nil)
	s2 := b.Subscribe(nil)
	defer s1.Close()
	defer s2.Close()

	n := b.Publish(Change{Collection: CollectionAvatars, Kind: ChangeCreated, OwnerID: "u1", DocID: "avatar_1"})
	assert.Equal(t, 2, n)

	c1, c2 := recv(t, s1), recv(t, s2)
	assert.Equal(t, "avatar_1", c1.DocID)
	assert.Equal(t, "node-a", c1.Origin)
	assert.Equal(t, c1, c2)
}

func TestBus_FilterByOwner(t *testing.T) {
	b := NewBus(4, "node-a")
	mine := b.Subscribe(ForOwner("u1"))
	defer mine.Close()

	b.Publish(Change{Collection: CollectionAvatars, OwnerID: "u2", DocID: "other"})
	b.Publish(Change{Collection: CollectionUsers, OwnerID: "u1", DocID: "u1"})

	c := recv(t, mine)
	assert.Equal(t, CollectionUsers, c.Collection)
	select {
	case extra := <-mine.C:
		t.Fatalf("unexpected change %+v", extra)
	default:
	}
}

func TestBus_FullBufferCoalesces(t *testing.T) {
	b := NewBus(1, "node-a")
	s := b.Subscribe(nil)
	defer s.Close()

	b.Publish(Change{DocID: "1"})
	b.Publish(Change{DocID: "2"})
	assert.Equal(t, uint64(1), b.Dropped())
	assert.Equal(t, "1", recv(t, s).DocID)
}

func TestBus_CloseReleasesSubscriptions(t *testing.T) {
	b := NewBus(1, "node-a")
	s := b.Subscribe(nil)
	require.Equal(t, 1, b.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(t, 0, b.Subscribers())
	_, ok := <-s.C
	assert.False(t, ok)

	other := b.Subscribe(nil)
	b.Close()
	_, ok = <-other.C
	assert.False(t, ok)
	assert.Equal(t, 0, b.Publish(Change{DocID: "late"}))
}

func TestRedisRelay_InjectSkipsOwnOrigin(t *testing.T) {
	b := NewBus(4, "node-a")
	s := b.Subscribe(nil)
	defer s.Close()
	r := NewRedisRelay(nil, "remind:changes", b, zerolog.Nop())

	r.inject(`{"collection":"avatars","kind":"updated","owner_id":"u1","doc_id":"own","origin":"node-a"}`)
	r.inject(`not json`)
	r.inject(`{"collection":"avatars","kind":"updated","owner_id":"u1","doc_id":"remote","origin":"node-b"}`)

	c := recv(t, s)
	assert.Equal(t, "remote", c.DocID)
	assert.Equal(t, "node-b", c.Origin)
}

func TestBus_QueueKeepsEveryOwnerPastBuffer(t *testing.T) {
	b := NewBus(64, "node-a")
	q := b.SubscribeQueue(nil)
	defer q.Close()

	for i := 0; i < 100; i++ {
		b.Publish(Change{Collection: CollectionAvatars, OwnerID: fmt.Sprintf("u%d", i), DocID: "a"})
	}
	b.Publish(Change{Collection: CollectionAvatars, OwnerID: "u0", DocID: "latest"})

	got := q.Drain()
	require.Len(t, got, 100)
	assert.Equal(t, "u0", got[0].OwnerID)
	assert.Equal(t, "latest", got[0].DocID)
	assert.Equal(t, "u99", got[99].OwnerID)
	assert.Nil(t, q.Drain())
}

func TestBus_QueueClosedWithBus(t *testing.T) {
	b := NewBus(1, "node-a")
	q := b.SubscribeQueue(nil)
	b.Publish(Change{OwnerID: "u1"})
	b.Close()

	<-q.Ready
	_, ok := <-q.Ready
	assert.False(t, ok)
	assert.Len(t, q.Drain(), 1)
}

func TestRedisRelay_ForwardsEveryLocalOwner(t *testing.T) {
	b := NewBus(64, "node-a")
	r := NewRedisRelay(nil, "remind:changes", b, zerolog.Nop())
	var sent []Change
	r.send = func(_ context.Context, payload []byte) error {
		var c Change
		require.NoError(t, json.Unmarshal(payload, &c))
		sent = append(sent, c)
		return nil
	}
	local := r.subscribeLocal()
	defer local.Close()

	for i := 0; i < 100; i++ {
		b.Publish(Change{Collection: CollectionAvatars, OwnerID: fmt.Sprintf("u%d", i)})
	}
	b.Publish(Change{Collection: CollectionAvatars, OwnerID: "remote", Origin: "node-b"})
	r.flush(context.Background(), local)

	require.Len(t, sent, 100)
	owners := make(map[string]bool)
	for _, c := range sent {
		owners[c.OwnerID] = true
		assert.Equal(t, "node-a", c.Origin)
	}
	assert.Len(t, owners, 100)
	assert.False(t, owners["remote"])
}
