package memstore

import (
	"context"
	"sync"

	"github.com/Lllllllleong/idpflow/internal/models"
)

// Detector is a scripted OCR backend. It returns the graph registered for the
// object key, or the default graph.
type Detector struct {
	mu           sync.Mutex
	graphs       map[string]models.BlockGraph
	defaultGraph models.BlockGraph
	err          error
	calls        int
}

// NewDetector returns a Detector answering every key with graph.
func NewDetector(graph models.BlockGraph) *Detector {
	return &Detector{graphs: make(map[string]models.BlockGraph), defaultGraph: graph}
}

// SetGraph scripts the answer for one object key.
func (d *Detector) SetGraph(objectKey string, graph models.BlockGraph) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.graphs[objectKey] = graph
}

// FailWith makes subsequent calls return err. A nil err clears it.
func (d *Detector) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// Calls is the number of AnalyzeDocument calls so far.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *Detector) AnalyzeDocument(ctx context.Context, bucket, objectKey, fileType string) (models.BlockGraph, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if err := ctx.Err(); err != nil {
		return models.BlockGraph{}, err
	}
	if d.err != nil {
		return models.BlockGraph{}, d.err
	}
	if g, ok := d.graphs[objectKey]; ok {
		return g, nil
	}
	return d.defaultGraph, nil
}

// Classifier is a scripted classification backend.
type Classifier struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	lastText string
}

// NewClassifier returns a Classifier that always answers with answer.
func NewClassifier(answer string) *Classifier {
	return &Classifier{answer: answer}
}

func (c *Classifier) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Classifier) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// LastText is the text sent on the most recent call.
func (c *Classifier) LastText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

func (c *Classifier) Classify(ctx context.Context, text string, labels []string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastText = text
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

// Summarizer is a scripted summarization backend.
type Summarizer struct {
	mu       sync.Mutex
	answer   string
	err      error
	calls    int
	lastText string
}

// NewSummarizer returns a Summarizer that always answers with answer.
func NewSummarizer(answer string) *Summarizer {
	return &Summarizer{answer: answer}
}

func (s *Summarizer) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Summarizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Summarizer) LastText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastText
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastText = text
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}
