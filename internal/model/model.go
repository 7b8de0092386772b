package model

import (
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	ProviderBing  = "bing"
	ProviderDeepL = "deepl"
	ProviderFake  = "fake"
)

// ProviderNames lists the translator names accepted at job creation.
var ProviderNames = []string{ProviderBing, ProviderDeepL, ProviderFake}

// Annotation is a labelled half-open span [Start, Stop) counted in code points.
type Annotation struct {
	Label  string `json:"label"`
	Start  int    `json:"start"`
	Stop   int    `json:"stop"`
	Origin *int   `json:"origin,omitempty"`
}

// TextUnit is one side (source or target) of a translation job.
type TextUnit struct {
	Text        string
	Language    string
	Annotations []Annotation
}

// Translator identifies a provider together with its transcoding flags.
type Translator struct {
	Name     string
	HTMLMode bool
	FakeMode bool
}

// String returns the canonical descriptor, for example "deepl html fake".
func (t Translator) String() string {
	var b strings.Builder
	b.WriteString(t.Name)
	if t.HTMLMode {
		b.WriteString(" html")
	}
	if t.FakeMode {
		b.WriteString(" fake")
	}
	return b.String()
}

// Sidecar holds what is needed to rebuild annotations from translated markup.
type Sidecar struct {
	// Elements maps a markup element id to the sorted annotation ids it carries.
	Elements map[string][]int
	// Labels maps an annotation id to its label.
	Labels map[int]string
}

func NewSidecar() *Sidecar {
	return &Sidecar{
		Elements: make(map[string][]int),
		Labels:   make(map[int]string),
	}
}

// Job is the mutable state of one text moving through the pipeline.
//
// The coordinator owns a Job. The batch manager and provider gateway only touch
// FromProvider, Error and ErrorMessage, through Resolve and Fail, and fire
// completion with Complete.
type Job struct {
	RequestID string
	Index     int

	Source     TextUnit
	Target     TextUnit
	Translator Translator

	// ToProvider is the text sent to the provider (markup when annotated).
	ToProvider string
	// FromProvider is the raw provider output.
	FromProvider string

	UseCache  bool
	FromCache bool
	Sidecar   *Sidecar

	Error        bool
	ErrorMessage string

	done chan struct{}
	once sync.Once
}

func NewJob(requestID string, index int) *Job {
	return &Job{RequestID: requestID, Index: index}
}

// Arm creates the completion signal. It is called once, right before enqueue.
func (j *Job) Arm() {
	if j.done == nil {
		j.done = make(chan struct{})
	}
}

// Armed reports whether the job was handed to a route queue.
func (j *Job) Armed() bool {
	return j.done != nil
}

// Done returns the completion channel, nil for jobs that were never armed.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Complete fires the completion signal. Extra calls are no-ops.
func (j *Job) Complete() {
	j.once.Do(func() {
		if j.done == nil {
			j.done = make(chan struct{})
		}
		close(j.done)
	})
}

// Completed reports whether Complete has already run.
func (j *Job) Completed() bool {
	if j.done == nil {
		return false
	}
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *Job) Resolve(translation string) {
	j.FromProvider = translation
}

func (j *Job) Fail(message string) {
	j.Error = true
	j.ErrorMessage = message
}

func (j *Job) HasAnnotations() bool {
	return len(j.Source.Annotations) > 0
}

// TextLength is the provider-facing length of the job, in code points.
func (j *Job) TextLength() int {
	return utf8.RuneCountInString(j.ToProvider)
}
