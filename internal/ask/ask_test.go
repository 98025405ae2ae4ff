package ask

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mentorpal/askload/internal/dataset"
	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/config"
)

const baseURL = "https://api.mentorpal.org/classifier/questions/?referer=load-test"

// fakeVU answers every Get with a canned response and records checks.
type fakeVU struct {
	status int
	body   string
	err    error

	urls   []string
	names  []string
	checks map[string][]bool
	rng    *rand.Rand
	logger *zap.Logger
}

func newFakeVU(status int, body string) *fakeVU {
	return &fakeVU{
		status: status,
		body:   body,
		checks: make(map[string][]bool),
		rng:    rand.New(rand.NewPCG(1, 2)),
		logger: zap.NewNop(),
	}
}

func (f *fakeVU) Get(ctx context.Context, u, name string) (*load.Response, error) {
	f.urls = append(f.urls, u)
	f.names = append(f.names, name)
	return &load.Response{URL: u, StatusCode: f.status, Body: []byte(f.body), Error: f.err}, f.err
}

func (f *fakeVU) Check(name string, ok bool) bool {
	f.checks[name] = append(f.checks[name], ok)
	return ok
}

func (f *fakeVU) Rand() *rand.Rand    { return f.rng }
func (f *fakeVU) Logger() *zap.Logger { return f.logger }

func mustDataset(t *testing.T, items ...string) *dataset.Dataset {
	t.Helper()
	d, err := dataset.New("test", items)
	require.NoError(t, err)
	return d
}

func TestBuildURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		mentor   string
		question string
		want     string
	}{
		{
			"mentorpal base",
			baseURL,
			"610dad8c16e879e3c3c6f711",
			"What is your name?",
			baseURL + "&mentor=610dad8c16e879e3c3c6f711&query=What%20is%20your%20name%3F",
		},
		{
			"base without query",
			"http://localhost:8080/classifier/questions/",
			"m1",
			"hi",
			"http://localhost:8080/classifier/questions/?mentor=m1&query=hi",
		},
		{
			"reserved characters",
			"http://h/?a=1",
			"m1",
			"a&b=c#d+e",
			"http://h/?a=1&mentor=m1&query=a%26b%3Dc%23d%2Be",
		},
		{
			"apostrophe",
			"http://h/?a=1",
			"m1",
			"What's your name?",
			"http://h/?a=1&mentor=m1&query=What's%20your%20name%3F",
		},
		{
			"non-ascii",
			"http://h/?a=1",
			"m1",
			"¿qué?",
			"http://h/?a=1&mentor=m1&query=%C2%BFqu%C3%A9%3F",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildURL(tt.base, tt.mentor, tt.question); got != tt.want {
				t.Errorf("BuildURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"What's it (really)? *wow*!~", "What's%20it%20(really)%3F%20*wow*!~"},
		{"-_.", "-_."},
		{"50% off", "50%25%20off"},
		{"%2A", "%252A"},
		{"a;b,c/d:e@f$g", "a%3Bb%2Cc%2Fd%3Ae%40f%24g"},
	}
	for _, tt := range tests {
		if got := EscapeQuery(tt.in); got != tt.want {
			t.Errorf("EscapeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEscapeQuery_RoundTrip(t *testing.T) {
	questions := []string{
		"What is your name?",
		"Tell me about 1+1 & 2=2",
		"100% sure? #yes",
		"Who's (really) the *best*!",
		"naïve café 日本",
		"",
		"  spaces  ",
	}

	for _, q := range questions {
		escaped := EscapeQuery(q)
		assert.NotContains(t, escaped, "+", "escaped %q", q)
		assert.NotContains(t, escaped, " ", "escaped %q", q)

		got, err := url.QueryUnescape(escaped)
		require.NoError(t, err)
		assert.Equal(t, q, got)

		parsed, err := url.Parse(BuildURL(baseURL, "m", q))
		require.NoError(t, err)
		assert.Equal(t, q, parsed.Query().Get("query"))
		assert.Equal(t, "m", parsed.Query().Get("mentor"))
		assert.Equal(t, "load-test", parsed.Query().Get("referer"))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		resp        *load.Response
		statusOK    bool
		bodyChecked bool
		noErrors    bool
		wantErr     error
	}{
		{"answer", &load.Response{StatusCode: 200, Body: []byte(`{"answer_text":"Hi"}`)}, true, true, true, nil},
		{"errors field", &load.Response{StatusCode: 200, Body: []byte(`{"errors":["x"]}`)}, true, true, false, nil},
		{"null errors field", &load.Response{StatusCode: 200, Body: []byte(`{"errors":null}`)}, true, true, false, nil},
		{"nested errors", &load.Response{StatusCode: 200, Body: []byte(`{"data":{"errors":[]}}`)}, true, true, true, nil},
		{"server error", &load.Response{StatusCode: 500, Body: []byte("Internal Error")}, false, false, false, nil},
		{"created", &load.Response{StatusCode: 201, Body: []byte(`{}`)}, false, false, false, nil},
		{"transport", &load.Response{StatusCode: 0, Error: errors.New("refused")}, false, false, false, nil},
		{"nil", nil, false, false, false, nil},
		{"html body", &load.Response{StatusCode: 200, Body: []byte("<html></html>")}, true, false, false, ErrUnexpectedBody},
		{"array body", &load.Response{StatusCode: 200, Body: []byte(`[1,2]`)}, true, true, true, nil},
		{"empty array", &load.Response{StatusCode: 200, Body: []byte(`[]`)}, true, true, true, nil},
		{"array holding errors", &load.Response{StatusCode: 200, Body: []byte(`["errors"]`)}, true, true, true, nil},
		{"null body", &load.Response{StatusCode: 200, Body: []byte(`null`)}, true, false, false, ErrUnexpectedBody},
		{"string body", &load.Response{StatusCode: 200, Body: []byte(`"errors"`)}, true, false, false, ErrUnexpectedBody},
		{"number body", &load.Response{StatusCode: 200, Body: []byte(`42`)}, true, false, false, ErrUnexpectedBody},
		{"empty body", &load.Response{StatusCode: 200}, true, false, false, ErrUnexpectedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Validate(tt.resp)
			assert.Equal(t, tt.statusOK, out.StatusOK, "StatusOK")
			assert.Equal(t, tt.bodyChecked, out.BodyChecked, "BodyChecked")
			assert.Equal(t, tt.noErrors, out.NoErrors, "NoErrors")
			assert.Equal(t, tt.wantErr, out.Err)
		})
	}
}

func TestMentorQuestion_Iterate(t *testing.T) {
	t.Run("answer passes both checks", func(t *testing.T) {
		vu := newFakeVU(http.StatusOK, `{"answer_text":"Hi"}`)
		s := &MentorQuestion{
			APIURL:    baseURL,
			Questions: mustDataset(t, "What is your name?"),
			Mentors:   mustDataset(t, "610dad8c16e879e3c3c6f711"),
		}

		require.NoError(t, s.Iterate(context.Background(), vu))
		assert.Equal(t, []string{baseURL + "&mentor=610dad8c16e879e3c3c6f711&query=What%20is%20your%20name%3F"}, vu.urls)
		assert.Equal(t, []string{"ask"}, vu.names)
		assert.Equal(t, []bool{true}, vu.checks[CheckStatus])
		assert.Equal(t, []bool{true}, vu.checks[CheckNoErrors])
	})

	t.Run("errors field fails body check only", func(t *testing.T) {
		vu := newFakeVU(http.StatusOK, `{"errors":["x"]}`)
		s := &MentorQuestion{APIURL: baseURL, Questions: mustDataset(t, "q"), Mentors: mustDataset(t, "m"), RequestName: "custom"}

		require.NoError(t, s.Iterate(context.Background(), vu))
		assert.Equal(t, []string{"custom"}, vu.names)
		assert.Equal(t, []bool{true}, vu.checks[CheckStatus])
		assert.Equal(t, []bool{false}, vu.checks[CheckNoErrors])
	})

	t.Run("server error logs diagnostics", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		vu := newFakeVU(http.StatusInternalServerError, "Internal Error")
		vu.logger = zap.New(core)
		s := &MentorQuestion{APIURL: baseURL, Questions: mustDataset(t, "Who are you?"), Mentors: mustDataset(t, "m1")}

		require.NoError(t, s.Iterate(context.Background(), vu))
		assert.Equal(t, []bool{false}, vu.checks[CheckStatus])
		assert.NotContains(t, vu.checks, CheckNoErrors)

		entries := logs.FilterMessage("request failed").All()
		require.Len(t, entries, 1)
		fields := entries[0].ContextMap()
		assert.Equal(t, int64(500), fields["status"])
		assert.Equal(t, "Internal Error", fields["body"])
		assert.Equal(t, "m1", fields["mentor"])
		assert.Equal(t, "Who are you?", fields["question"])
		assert.Equal(t, baseURL+"&mentor=m1&query=Who%20are%20you%3F", fields["url"])
	})

	t.Run("non-json body is an iteration error", func(t *testing.T) {
		vu := newFakeVU(http.StatusOK, "<html>maintenance</html>")
		s := &MentorQuestion{APIURL: baseURL, Questions: mustDataset(t, "q"), Mentors: mustDataset(t, "m")}

		err := s.Iterate(context.Background(), vu)
		assert.ErrorIs(t, err, ErrUnexpectedBody)
		assert.Equal(t, []bool{true}, vu.checks[CheckStatus])
		assert.NotContains(t, vu.checks, CheckNoErrors)
	})
}

func TestMentorQuestion_UniformSelection(t *testing.T) {
	questions := mustDataset(t, "q0", "q1", "q2", "q3")
	mentors := mustDataset(t, "m0", "m1", "m2")
	vu := newFakeVU(http.StatusOK, `{}`)
	s := &MentorQuestion{APIURL: "http://h/", Questions: questions, Mentors: mentors}

	const n = 24000
	for i := 0; i < n; i++ {
		require.NoError(t, s.Iterate(context.Background(), vu))
	}

	qCount := make(map[string]int)
	mCount := make(map[string]int)
	for _, raw := range vu.urls {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		qCount[u.Query().Get("query")]++
		mCount[u.Query().Get("mentor")]++
	}

	within := func(got int, want float64) bool {
		return math.Abs(float64(got)-want)/want < 0.05
	}
	for _, q := range questions.Items() {
		assert.True(t, within(qCount[q], n/4.0), "question %s drawn %d times", q, qCount[q])
	}
	for _, m := range mentors.Items() {
		assert.True(t, within(mCount[m], n/3.0), "mentor %s drawn %d times", m, mCount[m])
	}
}

func TestDirectURL_Iterate(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	vu := newFakeVU(0, "")
	vu.err = errors.New("connection refused")
	vu.logger = zap.New(core)

	s := &DirectURL{URLs: mustDataset(t, "http://h/?mentor=m&query=q")}
	require.NoError(t, s.Iterate(context.Background(), vu), "transport errors are check failures, not iteration errors")

	assert.Equal(t, []string{"http://h/?mentor=m&query=q"}, vu.urls)
	assert.Equal(t, []bool{false}, vu.checks[CheckStatus])

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(0), fields["status"])
	assert.Equal(t, "connection refused", fields["error"])
	assert.Equal(t, "http://h/?mentor=m&query=q", fields["url"])
}

func TestExpandAndSampleURLs(t *testing.T) {
	questions := mustDataset(t, "a b", "c")
	mentors := mustDataset(t, "m1", "m2")

	all := ExpandURLs("http://h/", questions, mentors)
	assert.Equal(t, []string{
		"http://h/?mentor=m1&query=a%20b",
		"http://h/?mentor=m2&query=a%20b",
		"http://h/?mentor=m1&query=c",
		"http://h/?mentor=m2&query=c",
	}, all)

	sampled := SampleURLs("http://h/", questions, mentors, rand.New(rand.NewPCG(3, 3)))
	require.Len(t, sampled, 2)
	assert.Contains(t, all, sampled[0])
	assert.Contains(t, all, sampled[1])
}

func TestFromConfig(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	questions := write("questions.json", `["What is your name?"]`)
	mentorsFile := write("mentors.json", `["a", "b"]`)
	urls := write("urls.json", `["http://h/?mentor=a&query=x"]`)

	t.Run("mentor-question with default mentors", func(t *testing.T) {
		s, err := FromConfig(config.TargetConfig{Variant: config.VariantMentorQuestion, APIURL: baseURL, Questions: questions})
		require.NoError(t, err)
		mq, ok := s.(*MentorQuestion)
		require.True(t, ok)
		assert.Equal(t, 23, mq.Mentors.Len())
		assert.Equal(t, "mentor-question", s.Name())
	})

	t.Run("inline mentors", func(t *testing.T) {
		s, err := FromConfig(config.TargetConfig{APIURL: baseURL, Questions: questions, Mentors: []string{"x"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, s.(*MentorQuestion).Mentors.Items())
	})

	t.Run("mentors file", func(t *testing.T) {
		s, err := FromConfig(config.TargetConfig{APIURL: baseURL, Questions: questions, MentorsFile: mentorsFile})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, s.(*MentorQuestion).Mentors.Items())
	})

	t.Run("direct-url", func(t *testing.T) {
		s, err := FromConfig(config.TargetConfig{Variant: config.VariantDirectURL, URLs: urls})
		require.NoError(t, err)
		assert.Equal(t, "direct-url", s.Name())
		assert.Equal(t, 1, s.(*DirectURL).URLs.Len())
	})

	t.Run("missing questions", func(t *testing.T) {
		_, err := FromConfig(config.TargetConfig{APIURL: baseURL, Questions: filepath.Join(dir, "nope.json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load questions")
	})

	t.Run("empty urls", func(t *testing.T) {
		_, err := FromConfig(config.TargetConfig{Variant: config.VariantDirectURL, URLs: write("empty.json", `[]`)})
		assert.ErrorIs(t, err, dataset.ErrEmpty)
	})

	t.Run("unknown variant", func(t *testing.T) {
		_, err := FromConfig(config.TargetConfig{Variant: "graphql"})
		require.Error(t, err)
	})
}
