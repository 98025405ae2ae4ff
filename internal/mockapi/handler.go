package mockapi

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Answer is the classifier's 200 response body.
type Answer struct {
	Query              string   `json:"query"`
	AnswerID           string   `json:"answer_id"`
	AnswerText         string   `json:"answer_text"`
	AnswerMarkdownText string   `json:"answer_markdown_text"`
	AnswerMedia        []string `json:"answer_media"`
	Confidence         float64  `json:"confidence"`
	FeedbackID         string   `json:"feedback_id"`
	AnswerMissing      bool     `json:"answer_missing"`
	QuestionID         string   `json:"question_id"`
	Errors             []string `json:"errors,omitempty"`
}

// Handler answers classifier questions.
type Handler struct {
	mentors         map[string]bool
	errorRate       float64
	errorsFieldRate float64
	latency         time.Duration

	served atomic.Int64
}

// NewHandler returns a handler for opts.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		errorRate:       opts.ErrorRate,
		errorsFieldRate: opts.ErrorsFieldRate,
		latency:         opts.Latency,
	}
	if len(opts.Mentors) > 0 {
		h.mentors = make(map[string]bool, len(opts.Mentors))
		for _, m := range opts.Mentors {
			h.mentors[m] = true
		}
	}
	return h
}

// Served returns the number of questions answered, errors included.
func (h *Handler) Served() int64 {
	return h.served.Load()
}

// Health handles GET /health and reports how many questions were served.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "served": h.Served()})
}

// Questions handles GET /classifier/questions/?mentor=&query=.
func (h *Handler) Questions(c *gin.Context) {
	mentor := c.Query("mentor")
	query := c.Query("query")
	if mentor == "" || query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "missing required param 'mentor' or 'query'"})
		return
	}
	if h.mentors != nil && !h.mentors[mentor] {
		c.JSON(http.StatusNotFound, gin.H{"message": fmt.Sprintf("mentor '%s' not found", mentor)})
		return
	}

	h.served.Add(1)
	if h.latency > 0 {
		select {
		case <-time.After(h.latency):
		case <-c.Request.Context().Done():
			return
		}
	}

	if roll(h.errorRate) {
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}

	answer := Answer{
		Query:              query,
		AnswerID:           uuid.NewString(),
		AnswerText:         fmt.Sprintf("Mentor %s answering: %s", mentor, query),
		AnswerMarkdownText: fmt.Sprintf("**%s**", query),
		AnswerMedia:        []string{},
		Confidence:         0.5 + rand.Float64()/2,
		FeedbackID:         uuid.NewString(),
	}
	if roll(h.errorsFieldRate) {
		answer.Errors = []string{"classifier unavailable"}
	}
	c.JSON(http.StatusOK, answer)
}

func roll(p float64) bool {
	switch {
	case p <= 0:
		return false
	case p >= 1:
		return true
	default:
		return rand.Float64() < p
	}
}
