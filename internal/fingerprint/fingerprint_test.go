package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIgnoresFormattingAndOrder(t *testing.T) {
	a := map[string]any{
		"jobTitle":    "Backend  Engineer",
		"description": "Build\n\tservices   in Go.",
		"skills":      Set([]string{"go", "sql", "go"}),
	}
	b := map[string]any{
		"skills":      Set([]string{"sql", " go "}),
		"description": "  Build services in Go. ",
		"jobTitle":    "Backend Engineer",
	}

	fa, err := Of("job-summary", a)
	require.NoError(t, err)
	fb, err := Of("job-summary", b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestOfSeparatesNamespaces(t *testing.T) {
	in := map[string]string{"jobTitle": "Engineer"}

	f1, err := Of("job-summary", in)
	require.NoError(t, err)
	f2, err := Of("referral-message", in)
	require.NoError(t, err)

	assert.NotEqual(t, f1, f2)
}

func TestOfDistinguishesContent(t *testing.T) {
	f1, err := Of("ns", map[string]string{"description": "Go"})
	require.NoError(t, err)
	f2, err := Of("ns", map[string]string{"description": "Rust"})
	require.NoError(t, err)

	assert.NotEqual(t, f1, f2)
}

func TestCanonicalKeepsListOrder(t *testing.T) {
	out, err := Canonical(map[string]any{"n": []int{3, 1, 2}, "reasons": []string{"B", " A"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":[3,1,2],"reasons":["B","A"]}`, string(out))

	f1, err := Of("referral-message", map[string]any{"reasons": []string{"A", "B"}})
	require.NoError(t, err)
	f2, err := Of("referral-message", map[string]any{"reasons": []string{"B", "A"}})
	require.NoError(t, err)
	assert.NotEqual(t, f1, f2)
}

func TestSet(t *testing.T) {
	assert.Equal(t, []string{"go", "sql"}, Set([]string{" sql", "go", "", "go "}))
	assert.Equal(t, []string{}, Set(nil))
}

func TestCanonicalStructs(t *testing.T) {
	type input struct {
		Title  string   `json:"title"`
		Skills []string `json:"skills"`
	}

	out, err := Canonical(input{Title: " A  B ", Skills: []string{"z", "a"}})
	require.NoError(t, err)
	assert.Equal(t, `{"skills":["z","a"],"title":"A B"}`, string(out))
}

func TestCanonicalRejectsUnmarshalable(t *testing.T) {
	_, err := Canonical(map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}
