// Package repotest holds the behaviour every ClientRepository backend must share.
package repotest

import (
	"context"

	"zwop/internal/ports"
	"zwop/internal/types"

	"github.com/stretchr/testify/suite"
)

// ContractSuite runs against an empty repository returned by NewRepo.
type ContractSuite struct {
	suite.Suite

	NewRepo func() ports.ClientRepository
	repo    ports.ClientRepository
}

func (s *ContractSuite) SetupTest() {
	s.repo = s.NewRepo()
}

func (s *ContractSuite) TestEmptyList() {
	clients, err := s.repo.List(context.Background())
	s.NoError(err)
	s.NotNil(clients)
	s.Empty(clients)
}

func (s *ContractSuite) TestScenario() {
	ctx := context.Background()
	s.Require().NoError(s.repo.Put(ctx, types.ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 1}))
	s.Require().NoError(s.repo.Put(ctx, types.ScopedClient{Key: "client2", Stream: "Test Stream 2", ProposalNo: 2}))
	s.Require().NoError(s.repo.PutAdmin(ctx, types.AdminClient{Key: "admin1", Admin: true}))

	clients, err := s.repo.List(ctx)
	s.Require().NoError(err)
	s.Equal([]types.Client{
		types.ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 1},
		types.ScopedClient{Key: "client2", Stream: "Test Stream 2", ProposalNo: 2},
		types.AdminClient{Key: "admin1", Admin: true},
	}, clients)

	c, err := s.repo.Get(ctx, "client1")
	s.Require().NoError(err)
	s.Equal("Test Stream 1", c.(types.ScopedClient).Stream)

	c, err = s.repo.Get(ctx, "admin1")
	s.Require().NoError(err)
	s.True(c.(types.AdminClient).Admin)

	c, err = s.repo.Get(ctx, "nope")
	s.ErrorIs(err, types.ErrNotFound)
	s.Nil(c)

	err = s.repo.Put(ctx, types.ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 1})
	s.ErrorIs(err, types.ErrDuplicateKey)

	after, err := s.repo.List(ctx)
	s.Require().NoError(err)
	s.Equal(clients, after)
}

func (s *ContractSuite) TestRoundTripWithBot() {
	ctx := context.Background()
	client := types.ScopedClient{
		Key: "client-bot", Stream: "Bot Stream", ProposalNo: 900123,
		Bot: &types.BotConfig{
			Name: "proposal bot", Email: "bot@example.org", APIKey: "zulip-key",
			Site: "https://zulip.example.org/", ID: 42,
		},
	}
	s.Require().NoError(s.repo.Put(ctx, client))
	c, err := s.repo.Get(ctx, client.Key)
	s.Require().NoError(err)
	s.Equal(client, c)
}
