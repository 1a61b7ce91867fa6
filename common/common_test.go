package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSubscribeBroadcastUnsubscribe(t *testing.T) {
	var ev Event[string]
	var got []string
	first := ev.Subscribe(func(s string) { got = append(got, "a:"+s) })
	ev.Subscribe(func(s string) { got = append(got, "b:"+s) })
	assert.Equal(t, 2, ev.Len())

	ev.Broadcast("x")
	assert.Equal(t, []string{"a:x", "b:x"}, got)

	ev.Unsubscribe(first)
	ev.Unsubscribe(first)
	got = nil
	ev.Broadcast("y")
	assert.Equal(t, []string{"b:y"}, got)
	assert.Equal(t, 1, ev.Len())
}

func TestEventListenerMayUnsubscribeDuringBroadcast(t *testing.T) {
	var ev Event[int]
	var id SubscriptionID
	calls := 0
	id = ev.Subscribe(func(int) {
		calls++
		ev.Unsubscribe(id)
	})
	ev.Broadcast(1)
	ev.Broadcast(2)
	assert.Equal(t, 1, calls)
}

func TestCoalesce(t *testing.T) {
	assert.Equal(t, "b", Coalesce("", "b", "c"))
	assert.Equal(t, 0, Coalesce(0, 0))
}

func TestSortedKeysAndAppendUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
	assert.Equal(t, []string{"VS", "PS"}, AppendUnique([]string{"VS"}, "PS", "VS", "PS"))
}
