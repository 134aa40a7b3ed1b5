package flow

import (
	"context"
)

func (s *UnitTestSuite) TestEvalAny() {
	obj := map[string]any{
		"key1": "value1",
		"key2": map[string]any{
			"subkey1": "subvalue1",
			"subkey2": 42,
		},
		"key3": []any{"elem1", "elem2", "elem3"},
		"key4": nil,
	}

	v, err := EvalAny("key1", obj)
	s.NoError(err)
	s.Equal("value1", v.(string))

	v, err = EvalAny("key2.subkey2", obj)
	s.NoError(err)
	s.Equal(42, v.(int))

	v, err = EvalAny("nonexistent", obj)
	s.NoError(err)
	s.Nil(v)

	v, err = EvalAny("contains(key3, 'elem2')", obj)
	s.NoError(err)
	s.Equal(true, v.(bool))

	_, err = EvalAny("key3[", obj)
	s.Error(err)
}

func (s *UnitTestSuite) TestFilterClients() {
	clients, err := s.repo.List(context.Background())
	s.Require().NoError(err)

	v, err := FilterClients("", clients)
	s.NoError(err)
	s.Len(v, 3)

	v, err = FilterClients("[?kind=='admin'].key", clients)
	s.NoError(err)
	s.Equal([]any{"admin1"}, v)

	v, err = FilterClients("[?proposal_no > `1`].stream", clients)
	s.NoError(err)
	s.Equal([]any{"Test Stream 2"}, v)

	v, err = FilterClients("[].key", clients)
	s.NoError(err)
	s.Equal([]any{"client1", "client2", "admin1"}, v)
}
