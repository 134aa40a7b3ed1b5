package flow

import "time"

func (s *UnitTestSuite) TestTTLCache() {
	now := time.Unix(1_700_000_000, 0)
	SetTimeNowFn(func() time.Time { return now })

	c := NewTTL[string, string](0)
	c.Set("key1", "value1", 200*time.Millisecond)
	v, ok := c.Get("key1")
	s.True(ok)
	s.Equal("value1", v)

	now = now.Add(250 * time.Millisecond)
	v, ok = c.Get("key1")
	s.False(ok)
	s.Equal("", v)
	s.Equal(0, c.Len())
}

func (s *UnitTestSuite) TestTTLCacheBounded() {
	now := time.Unix(1_700_000_000, 0)
	SetTimeNowFn(func() time.Time { return now })

	c := NewTTL[string, int](2)
	c.Set("a", 1, time.Second)
	c.Set("b", 2, time.Minute)
	now = now.Add(2 * time.Second)

	// "a" has expired and makes room.
	c.Set("c", 3, time.Minute)
	s.Equal(2, c.Len())
	_, ok := c.Get("b")
	s.True(ok)
	_, ok = c.Get("c")
	s.True(ok)

	// Nothing expired: one live entry is evicted.
	c.Set("d", 4, time.Minute)
	s.Equal(2, c.Len())
	v, ok := c.Get("d")
	s.True(ok)
	s.Equal(4, v)

	// Overwriting an existing key never evicts.
	c.Set("d", 5, time.Minute)
	s.Equal(2, c.Len())
}
