package flow

import (
	"context"
	"time"

	"zwop/internal/backends/memory"
	"zwop/internal/types"
)

func (s *UnitTestSuite) TestResolve() {
	ctx := context.Background()
	r := NewResolver(s.repo, 0)

	c, err := r.Resolve(ctx, "client1")
	s.Require().NoError(err)
	s.Equal(types.KindScoped, c.Kind())

	_, err = r.Resolve(ctx, "")
	s.ErrorIs(err, ErrMissingKey)

	_, err = r.Resolve(ctx, "nope")
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *UnitTestSuite) TestResolveCached() {
	ctx := context.Background()
	r := NewResolver(s.repo, time.Minute)

	c, err := r.Resolve(ctx, "admin1")
	s.Require().NoError(err)
	s.Equal(types.AdminClient{Key: "admin1", Admin: true}, c)
	_, ok := r.cache.Get("admin1")
	s.True(ok)

	c, err = r.Resolve(ctx, "admin1")
	s.Require().NoError(err)
	s.Equal(types.AdminClient{Key: "admin1", Admin: true}, c)

	// Misses are not cached.
	_, err = r.Resolve(ctx, "nope")
	s.ErrorIs(err, types.ErrNotFound)
	_, ok = r.cache.Get("nope")
	s.False(ok)
	s.Equal(1, r.cache.Len())
}

func (s *UnitTestSuite) TestRequireKinds() {
	sc := types.ScopedClient{Key: "client1", Stream: "S", ProposalNo: 1}
	ac := types.AdminClient{Key: "admin1", Admin: true}

	got, err := RequireScoped(sc)
	s.NoError(err)
	s.Equal(sc, got)
	_, err = RequireScoped(ac)
	s.ErrorIs(err, ErrForbidden)

	gotAdmin, err := RequireAdmin(ac)
	s.NoError(err)
	s.Equal(ac, gotAdmin)
	_, err = RequireAdmin(sc)
	s.ErrorIs(err, ErrForbidden)
}

func (s *UnitTestSuite) TestThrottle() {
	ctx := context.Background()
	limiter := memory.NewRateLimiter()
	c := types.ScopedClient{Key: "client1", Stream: "S"}

	s.NoError(Throttle(ctx, nil, c, 1))
	s.NoError(Throttle(ctx, limiter, c, 0))
	s.NoError(Throttle(ctx, limiter, c, 1))
	s.ErrorIs(Throttle(ctx, limiter, c, 1), ErrRateLimited)
}

func (s *UnitTestSuite) TestComputeKey() {
	// FNV-1a 64-bit reference values.
	s.Equal("ecbf29ce484222325", ComputeKey(""))
	s.Equal("eaf63dc4c8601ec8c", ComputeKey("a"))
	s.Equal(ComputeKey("client1"), ComputeKey("client1"))

	seen := make(map[string]string)
	for i := 0; i < 20000; i++ {
		key, err := GenerateKey()
		s.Require().NoError(err)
		h := ComputeKey(key)
		s.Require().Len(h, 17)
		s.Require().NotContains(seen, h, "scope of %s collides with %s", key, seen[h])
		seen[h] = key
	}
}

func (s *UnitTestSuite) TestThrottleScopesAreIndependent() {
	ctx := context.Background()
	limiter := memory.NewRateLimiter()
	a := types.ScopedClient{Key: "client1", Stream: "S"}
	b := types.ScopedClient{Key: "client2", Stream: "S"}

	s.NoError(Throttle(ctx, limiter, a, 1))
	s.ErrorIs(Throttle(ctx, limiter, a, 1), ErrRateLimited)
	s.NoError(Throttle(ctx, limiter, b, 1))
}

func (s *UnitTestSuite) TestMessageHelpers() {
	s.Equal("hello\n[](/user_uploads/1/ab/img.png)", AppendAttachment("hello", "/user_uploads/1/ab/img.png"))

	s.ErrorIs(CheckUpdate("", " "), ErrEmptyUpdate)
	s.NoError(CheckUpdate("new text", ""))
	s.NoError(CheckUpdate("", "new topic"))
}

func (s *UnitTestSuite) TestRegister() {
	ctx := context.Background()

	c, err := Register(ctx, s.repo, RegisterRequest{Stream: "New Stream", ProposalNo: 5})
	s.Require().NoError(err)
	s.Equal(types.KindScoped, c.Kind())
	s.NotEmpty(c.ClientKey())
	stored, err := s.repo.Get(ctx, c.ClientKey())
	s.Require().NoError(err)
	s.Equal(c, stored)

	c, err = Register(ctx, s.repo, RegisterRequest{Kind: types.KindAdmin, Key: "admin2"})
	s.Require().NoError(err)
	s.Equal(types.AdminClient{Key: "admin2", Admin: true}, c)

	_, err = Register(ctx, s.repo, RegisterRequest{Kind: types.KindAdmin, Key: "admin3", Stream: "x"})
	s.ErrorIs(err, types.ErrInvalidClient)

	_, err = Register(ctx, s.repo, RegisterRequest{Key: "client1", Stream: "x"})
	s.ErrorIs(err, types.ErrDuplicateKey)

	_, err = Register(ctx, s.repo, RegisterRequest{Kind: "root"})
	s.ErrorIs(err, types.ErrInvalidClient)
}

func (s *UnitTestSuite) TestGenerateKey() {
	a, err := GenerateKey()
	s.Require().NoError(err)
	b, err := GenerateKey()
	s.Require().NoError(err)
	s.NotEqual(a, b)
	s.Len(a, 43)
}

func (s *UnitTestSuite) TestBuildStoresNothing() {
	ctx := context.Background()

	c, err := RegisterRequest{Key: "client9", Stream: "S", ProposalNo: 9}.Build()
	s.Require().NoError(err)
	s.Equal(types.ScopedClient{Key: "client9", Stream: "S", ProposalNo: 9}, c)
	_, err = s.repo.Get(ctx, "client9")
	s.ErrorIs(err, types.ErrNotFound)

	_, err = RegisterRequest{Key: "has space", Stream: "S"}.Build()
	s.ErrorIs(err, types.ErrInvalidClient)

	s.Require().NoError(Store(ctx, s.repo, c))
	s.ErrorIs(Store(ctx, s.repo, c), types.ErrDuplicateKey)
}
