package dataset

import (
	"bytes"
	"errors"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadStrings(t *testing.T) {
	path := writeFile(t, `["What is your name?", "Where are you from?"]`)

	d, err := LoadStrings(path)
	require.NoError(t, err)

	assert.Equal(t, "data.json", d.Name())
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, "What is your name?", d.At(0))
	assert.Equal(t, []string{"What is your name?", "Where are you from?"}, d.Items())
}

func TestLoadStrings_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid json", `["unterminated`, "invalid JSON"},
		{"object", `{"questions": []}`, "array of strings"},
		{"number item", `["ok", 3]`, "array of strings"},
		{"null item", `[null]`, "array of strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadStrings(writeFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadStrings_Empty(t *testing.T) {
	_, err := LoadStrings(writeFile(t, `[]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmpty), "want ErrEmpty, got %v", err)
}

func TestLoadStrings_Missing(t *testing.T) {
	_, err := LoadStrings(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNew_CopiesInput(t *testing.T) {
	items := []string{"a", "b"}
	d, err := New("test", items)
	require.NoError(t, err)

	items[0] = "changed"
	assert.Equal(t, "a", d.At(0))

	out := d.Items()
	out[1] = "changed"
	assert.Equal(t, "b", d.At(1))
}

func TestPick_Uniform(t *testing.T) {
	items := []string{"q0", "q1", "q2", "q3", "q4"}
	d, err := New("test", items)
	require.NoError(t, err)

	const draws = 50000
	r := rand.New(rand.NewPCG(1, 1))
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		counts[d.Pick(r)]++
	}

	expected := float64(draws) / float64(len(items))
	for _, item := range items {
		dev := math.Abs(float64(counts[item])-expected) / expected
		if dev > 0.05 {
			t.Errorf("item %q drawn %d times, expected about %.0f", item, counts[item], expected)
		}
	}
}

func TestPick_SingleAndNilSource(t *testing.T) {
	d, err := New("one", []string{"only"})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		assert.Equal(t, "only", d.Pick(nil))
	}
}

func TestPick_Reproducible(t *testing.T) {
	d, err := New("test", []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	seq := func() []string {
		r := rand.New(rand.NewPCG(42, 1))
		out := make([]string, 20)
		for i := range out {
			out[i] = d.Pick(r)
		}
		return out
	}
	assert.Equal(t, seq(), seq())
}

func TestDefaultMentors(t *testing.T) {
	d := DefaultMentors()
	assert.Equal(t, 23, d.Len())
	assert.Equal(t, "610dad8c16e879e3c3c6f711", d.At(0))

	seen := make(map[string]bool)
	for _, id := range d.Items() {
		assert.Len(t, id, 24)
		assert.False(t, seen[id], "duplicate mentor %s", id)
		seen[id] = true
	}
}

func TestWriteStrings_RoundTrip(t *testing.T) {
	items := []string{"https://example.com/?a=1&b=2", "x<y"}

	var buf bytes.Buffer
	require.NoError(t, WriteStrings(&buf, items))
	assert.Contains(t, buf.String(), "a=1&b=2", "HTML escaping must be off")

	d, err := Parse("roundtrip", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, items, d.Items())
}
