package ask

import (
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/mentorpal/askload/internal/dataset"
)

// componentEscaper turns url.QueryEscape output into encodeURIComponent
// output: spaces are %20 and !'()* stay literal.
var componentEscaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapeQuery percent-encodes s for use as a query parameter value, the
// way JavaScript's encodeURIComponent does.
func EscapeQuery(s string) string {
	return componentEscaper.Replace(url.QueryEscape(s))
}

// BuildURL appends the mentor and query parameters to base. The mentor id
// is appended as is; the question is escaped.
func BuildURL(base, mentor, question string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.Grow(len(base) + len(mentor) + len(question)*3 + 16)
	b.WriteString(base)
	b.WriteString(sep)
	b.WriteString("mentor=")
	b.WriteString(mentor)
	b.WriteString("&query=")
	b.WriteString(EscapeQuery(question))
	return b.String()
}

// ExpandURLs returns the URL for every question and mentor pair, questions
// outermost.
func ExpandURLs(base string, questions, mentors *dataset.Dataset) []string {
	urls := make([]string, 0, questions.Len()*mentors.Len())
	for i := 0; i < questions.Len(); i++ {
		for j := 0; j < mentors.Len(); j++ {
			urls = append(urls, BuildURL(base, mentors.At(j), questions.At(i)))
		}
	}
	return urls
}

// SampleURLs returns one URL per question, each paired with a random
// mentor.
func SampleURLs(base string, questions, mentors *dataset.Dataset, r *rand.Rand) []string {
	urls := make([]string, questions.Len())
	for i := range urls {
		urls[i] = BuildURL(base, mentors.Pick(r), questions.At(i))
	}
	return urls
}
