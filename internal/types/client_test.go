package types

import (
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type TypesTestSuite struct {
	suite.Suite
}

func TestTypesTestSuite(t *testing.T) {
	suite.Run(t, new(TypesTestSuite))
}

func (s *TypesTestSuite) TestValidateScoped() {
	ok := ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 1}
	s.NoError(ok.Validate())

	for name, c := range map[string]ScopedClient{
		"empty key":       {Stream: "S"},
		"key with space":  {Key: "a b", Stream: "S"},
		"key with ctrl":   {Key: "a\x00b", Stream: "S"},
		"long key":        {Key: strings.Repeat("k", MaxKeyLength+1), Stream: "S"},
		"no stream":       {Key: "k"},
		"negative":        {Key: "k", Stream: "S", ProposalNo: -1},
		"bad bot email":   {Key: "k", Stream: "S", Bot: &BotConfig{Email: "nope", APIKey: "x", Site: "https://z.example.com"}},
		"bot without key": {Key: "k", Stream: "S", Bot: &BotConfig{Email: "b@example.com", Site: "https://z.example.com"}},
	} {
		s.ErrorIs(c.Validate(), ErrInvalidClient, name)
	}
}

func (s *TypesTestSuite) TestValidateAdmin() {
	s.NoError(AdminClient{Key: "admin1", Admin: true}.Validate())
	s.ErrorIs(AdminClient{Key: "admin1"}.Validate(), ErrInvalidClient)
	s.ErrorIs(AdminClient{Admin: true}.Validate(), ErrInvalidClient)
}

func (s *TypesTestSuite) TestValidationErrorOmitsKey() {
	err := ScopedClient{Key: "secret-key-value"}.Validate()
	s.Require().Error(err)
	s.NotContains(err.Error(), "secret-key-value")
}

func (s *TypesTestSuite) TestRecordRoundTrip() {
	for _, c := range []Client{
		ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 0},
		ScopedClient{Key: "client2", Stream: "Test Stream 2", ProposalNo: 2,
			Bot: &BotConfig{Name: "bot", Email: "bot@example.com", APIKey: "k", Site: "https://z.example.com", ID: 7}},
		AdminClient{Key: "admin1", Admin: true},
	} {
		b, err := MarshalClient(c)
		s.Require().NoError(err)
		s.Contains(string(b), `"kind":"`+string(c.Kind())+`"`)

		got, err := UnmarshalClient(b)
		s.Require().NoError(err)
		s.Equal(c, got)
	}
}

func (s *TypesTestSuite) TestUnmarshalIsStrict() {
	for name, raw := range map[string]string{
		"no kind":         `{"key":"k","stream":"S","proposal_no":1}`,
		"unknown kind":    `{"kind":"root","key":"k"}`,
		"admin as scoped": `{"kind":"scoped","key":"k","admin":true}`,
		"scoped as admin": `{"kind":"admin","key":"k","admin":true,"stream":"S"}`,
		"admin false":     `{"kind":"admin","key":"k","admin":false}`,
		"no proposal":     `{"kind":"scoped","key":"k","stream":"S"}`,
		"unknown field":   `{"kind":"admin","key":"k","admin":true,"root":true}`,
		"not json":        `kind: admin`,
	} {
		_, err := UnmarshalClient([]byte(raw))
		s.ErrorIs(err, ErrInvalidClient, name)
	}
}

func (s *TypesTestSuite) TestCloneClient() {
	orig := ScopedClient{Key: "k", Stream: "S", Bot: &BotConfig{Email: "a@example.com"}}
	cp := CloneClient(orig).(ScopedClient)
	cp.Bot.Email = "changed@example.com"
	s.Equal("a@example.com", orig.Bot.Email)
	s.Nil(CloneClient(nil))
}

func (s *TypesTestSuite) TestErr() {
	err := Err(ErrNotFound, nil, "")
	s.ErrorIs(err, ErrNotFound)
	s.NotErrorIs(err, ErrDuplicateKey)

	err = Err(ErrCorruptStore, ErrDuplicateKey, "record %d", 3)
	s.ErrorIs(err, ErrCorruptStore)
	s.ErrorIs(err, ErrDuplicateKey)
	s.Contains(err.Error(), "record 3")
}

func (s *TypesTestSuite) TestParsePropagateMode() {
	for _, m := range []PropagateMode{ChangeOne, ChangeAll, ChangeLater} {
		got, err := ParsePropagateMode(string(m))
		s.NoError(err)
		s.Equal(m, got)
	}
	_, err := ParsePropagateMode("change_some")
	s.Error(err)
	_, err = ParsePropagateMode("")
	s.Error(err)
}

func (s *TypesTestSuite) TestRedactedMasksBotKey() {
	bot := &BotConfig{Name: "b", Email: "b@example.com", APIKey: "secret2", Site: "https://z.example.com"}
	clients := []Client{
		ScopedClient{Key: "client1", Stream: "Test Stream 1", ProposalNo: 1},
		ScopedClient{Key: "client2", Stream: "Test Stream 2", ProposalNo: 2, Bot: bot},
		AdminClient{Key: "admin1", Admin: true},
	}

	recs := RedactedRecords(clients)
	s.Require().Len(recs, 3)
	s.Nil(recs[0].Bot)
	s.Equal(RedactedSecret, recs[1].Bot.APIKey)
	s.Equal("b@example.com", recs[1].Bot.Email)
	s.Equal("client2", recs[1].Key)
	s.Nil(recs[2].Bot)

	// The source client keeps its credentials.
	s.Equal("secret2", bot.APIKey)
	s.Equal("secret2", ToRecord(clients[1]).Bot.APIKey)

	b, err := json.Marshal(recs)
	s.Require().NoError(err)
	s.NotContains(string(b), "secret2")
}
