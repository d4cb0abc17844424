package analysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleAnalyze(t *testing.T) {
	a := Simple{}

	require.Equal(t, []string{"hello", "world"}, a.Analyze("Hello, World!"))
	require.Equal(t, []string{"go1", "24"}, a.Analyze("Go1.24"))
	require.Empty(t, a.Analyze("  ...  "))
	require.Empty(t, a.Analyze(""))
}

func TestKeywordAnalyze(t *testing.T) {
	a := Keyword{}

	require.Equal(t, []string{"hello, world!"}, a.Analyze("  Hello, World!  "))
	require.Empty(t, a.Analyze("   "))
}
