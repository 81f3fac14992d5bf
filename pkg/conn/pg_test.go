package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionDSN(t *testing.T) {
	testCases := []struct {
		desc string
		opt  Option
		want string
	}{
		{
			desc: "defaults",
			opt:  Option{Database: "markets"},
			want: "postgres://localhost:5432/markets?sslmode=disable",
		},
		{
			desc: "credentials and params",
			opt: Option{
				Host:     "db",
				Port:     6543,
				User:     "replay",
				Password: "secret",
				Database: "betfair",
				SSLMode:  "require",
				Params:   map[string]string{"application_name": "bookreplay", "": "skipped"},
			},
			want: "postgres://replay:secret@db:6543/betfair?application_name=bookreplay&sslmode=require",
		},
		{
			desc: "conn string wins",
			opt:  Option{Host: "ignored", ConnString: "postgres://x@y/z"},
			want: "postgres://x@y/z",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			dsn, err := tc.opt.dsn()
			require.NoError(t, err)
			assert.Equal(t, tc.want, dsn)
		})
	}
}

func TestOptionEmpty(t *testing.T) {
	assert.True(t, Option{}.Empty())
	assert.False(t, Option{Database: "x"}.Empty())
}
