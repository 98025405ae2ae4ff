// Package ask implements the classifier question iteration: pick a mentor
// and question, request an answer, check the response.
package ask

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/dataset"
	"github.com/mentorpal/askload/internal/load"
	"github.com/mentorpal/askload/internal/load/config"
)

// MentorQuestion asks a random mentor a random question on every
// iteration.
type MentorQuestion struct {
	APIURL      string
	Questions   *dataset.Dataset
	Mentors     *dataset.Dataset
	RequestName string
}

// Name implements load.Script.
func (s *MentorQuestion) Name() string { return config.VariantMentorQuestion }

// Iterate implements load.Script.
func (s *MentorQuestion) Iterate(ctx context.Context, vu load.VU) error {
	question := s.Questions.Pick(vu.Rand())
	mentor := s.Mentors.Pick(vu.Rand())
	u := BuildURL(s.APIURL, mentor, question)

	resp, _ := vu.Get(ctx, u, requestName(s.RequestName))
	out := Validate(resp)
	if out.Failed() {
		logFailure(vu.Logger(), resp, u,
			zap.String("mentor", mentor),
			zap.String("question", question),
		)
	}
	return out.Report(vu)
}

// DirectURL requests a random ready-made URL on every iteration.
type DirectURL struct {
	URLs        *dataset.Dataset
	RequestName string
}

// Name implements load.Script.
func (s *DirectURL) Name() string { return config.VariantDirectURL }

// Iterate implements load.Script.
func (s *DirectURL) Iterate(ctx context.Context, vu load.VU) error {
	u := s.URLs.Pick(vu.Rand())

	resp, _ := vu.Get(ctx, u, requestName(s.RequestName))
	out := Validate(resp)
	if out.Failed() {
		logFailure(vu.Logger(), resp, u)
	}
	return out.Report(vu)
}

func requestName(name string) string {
	if name == "" {
		return config.DefaultRequestName
	}
	return name
}

func logFailure(logger *zap.Logger, resp *load.Response, u string, fields ...zap.Field) {
	fields = append(fields, zap.String("url", u))
	if resp != nil {
		fields = append(fields,
			zap.Int("status", resp.StatusCode),
			zap.String("body", resp.Text()),
		)
		if resp.Error != nil {
			fields = append(fields, zap.Error(resp.Error))
		}
	}
	logger.Warn("request failed", fields...)
}

// FromConfig loads the datasets target names and returns the script for
// its variant. Dataset paths are used as given.
func FromConfig(target config.TargetConfig) (load.Script, error) {
	switch target.Variant {
	case config.VariantDirectURL:
		urls, err := dataset.LoadStrings(target.URLs)
		if err != nil {
			return nil, fmt.Errorf("failed to load urls: %w", err)
		}
		return &DirectURL{URLs: urls, RequestName: target.RequestName}, nil

	case config.VariantMentorQuestion, "":
		questions, err := dataset.LoadStrings(target.Questions)
		if err != nil {
			return nil, fmt.Errorf("failed to load questions: %w", err)
		}
		mentors, err := LoadMentors(target)
		if err != nil {
			return nil, err
		}
		return &MentorQuestion{
			APIURL:      target.APIURL,
			Questions:   questions,
			Mentors:     mentors,
			RequestName: target.RequestName,
		}, nil

	default:
		return nil, fmt.Errorf("unknown target variant: %s", target.Variant)
	}
}

// LoadMentors returns the inline mentor list, the mentors file or the
// built-in list, in that order of preference.
func LoadMentors(target config.TargetConfig) (*dataset.Dataset, error) {
	switch {
	case len(target.Mentors) > 0:
		return dataset.New("mentors", target.Mentors)
	case target.MentorsFile != "":
		mentors, err := dataset.LoadStrings(target.MentorsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load mentors: %w", err)
		}
		return mentors, nil
	default:
		return dataset.DefaultMentors(), nil
	}
}
