package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannm99/novaquery/sqlrequest"
)

func TestLRU_HitIgnoresTimeZone(t *testing.T) {
	c := New[string](4, time.Minute)
	c.Put(sqlrequest.NewQuery("SELECT 1"), "r1")

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	got, ok := c.Get(sqlrequest.New("SELECT 1", tokyo, nil))
	require.True(t, ok)
	assert.Equal(t, "r1", got)
}

func TestLRU_SessionIsPartOfIdentity(t *testing.T) {
	c := New[string](4, time.Minute)
	c.Put(sqlrequest.NewQuery("SELECT 1"), "r1")

	_, ok := c.Get(sqlrequest.NewContinuation("SELECT 1", time.UTC, "s1"))
	assert.False(t, ok)
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int](2, time.Minute)

	a := sqlrequest.NewQuery("a")
	b := sqlrequest.NewQuery("b")
	d := sqlrequest.NewQuery("d")

	c.Put(a, 1)
	c.Put(b, 2)

	// touch a so b becomes the victim
	_, ok := c.Get(a)
	require.True(t, ok)

	c.Put(d, 3)
	assert.Equal(t, 2, c.Len())

	_, ok = c.Get(b)
	assert.False(t, ok)
	_, ok = c.Get(a)
	assert.True(t, ok)
	_, ok = c.Get(d)
	assert.True(t, ok)
}

func TestLRU_PutReplaces(t *testing.T) {
	c := New[int](2, time.Minute)
	q := sqlrequest.NewQuery("q")

	c.Put(q, 1)
	c.Put(q, 2)

	got, ok := c.Get(q)
	require.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, 1, c.Len())
}

func TestLRU_StoredRequestIsDetached(t *testing.T) {
	c := New[int](2, time.Minute)
	q := sqlrequest.NewQuery("q")
	c.Put(q, 1)

	q.SetQuery("changed")

	_, ok := c.Get(sqlrequest.NewQuery("q"))
	assert.True(t, ok)
}

func TestLRU_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[int](2, time.Second)
	c.now = func() time.Time { return now }

	q := sqlrequest.NewQuery("q")
	c.Put(q, 1)

	now = now.Add(time.Second)
	_, ok := c.Get(q)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRU_Disabled(t *testing.T) {
	c := New[int](0, time.Minute)
	q := sqlrequest.NewQuery("q")
	c.Put(q, 1)

	_, ok := c.Get(q)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
