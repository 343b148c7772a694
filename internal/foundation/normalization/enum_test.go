package normalization

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type backoff string

func TestEnumResolvesSpellings(t *testing.T) {
	e := NewEnum("backoff", map[string]backoff{
		"Fixed":       "fixed",
		"exponential": "exponential",
		"exp":         "exponential",
	}, "linear")

	require.Equal(t, backoff("fixed"), e.Or("  FIXED "))
	require.Equal(t, backoff("exponential"), e.Or("EXP"))
	require.Equal(t, backoff("linear"), e.Or("bogus"))

	_, ok := e.Lookup("bogus")
	require.False(t, ok)

	got, err := e.Parse("Exponential")
	require.NoError(t, err)
	require.Equal(t, backoff("exponential"), got)
}

func TestEnumParseListsAccepted(t *testing.T) {
	e := NewEnum("log format", map[string]string{"json": "json", "text": "text"}, "text")

	_, err := e.Parse("xml")
	require.EqualError(t, err, `unknown log format "xml" (accepted: json, text)`)

	accepted := e.Accepted()
	accepted[0] = "mutated"
	require.Equal(t, []string{"json", "text"}, e.Accepted())
}
