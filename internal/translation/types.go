package translation

import (
	"errors"
	"fmt"

	"horse.fit/translationtower/internal/model"
)

// AnnotationInput is a caller-supplied span in code points.
type AnnotationInput struct {
	Label string `json:"label"`
	Start int    `json:"start"`
	Stop  int    `json:"stop"`
}

// Input is one text of a translate request.
type Input struct {
	Text               string            `json:"text"`
	Translator         string            `json:"translator"`
	TranslatorHTMLMode bool              `json:"translator_html_mode,omitempty"`
	TranslatorFakeMode bool              `json:"translator_fake_mode,omitempty"`
	SourceLang         string            `json:"source_lang,omitempty"`
	TargetLang         string            `json:"target_lang"`
	Annotations        []AnnotationInput `json:"annotations,omitempty"`
	UseCache           *bool             `json:"use_cache,omitempty"`
}

// Result is one translated text.
type Result struct {
	Text              string             `json:"text"`
	Translation       string             `json:"translation"`
	SourceLang        string             `json:"source_lang"`
	TargetLang        string             `json:"target_lang"`
	SourceAnnotations []model.Annotation `json:"source_annotations,omitzero"`
	TargetAnnotations []model.Annotation `json:"target_annotations,omitzero"`
	Translator        string             `json:"translator"`
	FromCache         bool               `json:"from_cache"`
	Error             string             `json:"error,omitempty"`
}

type Request struct {
	Texts []Input `json:"texts"`
}

type Response struct {
	Translations []Result `json:"translations"`
}

// Results renders finished jobs. When any job carried annotations, every
// result gets both annotation arrays, empty ones included.
func Results(jobs []*model.Job) []Result {
	withAnnotations := false
	for _, job := range jobs {
		if job.Source.Annotations != nil {
			withAnnotations = true
			break
		}
	}

	results := make([]Result, len(jobs))
	for i, job := range jobs {
		result := Result{
			Text:        job.Source.Text,
			Translation: job.Target.Text,
			SourceLang:  job.Source.Language,
			TargetLang:  job.Target.Language,
			Translator:  job.Translator.Name,
			FromCache:   job.FromCache,
			Error:       job.ErrorMessage,
		}
		if withAnnotations {
			result.SourceAnnotations = nonNilAnnotations(job.Source.Annotations)
			result.TargetAnnotations = nonNilAnnotations(job.Target.Annotations)
		}
		results[i] = result
	}
	return results
}

func nonNilAnnotations(in []model.Annotation) []model.Annotation {
	if in == nil {
		return []model.Annotation{}
	}
	return in
}

// FirstError returns the message of the first failed job, or "".
func FirstError(jobs []*model.Job) string {
	for _, job := range jobs {
		if job.Error {
			return job.ErrorMessage
		}
	}
	return ""
}

// ValidationError rejects one input before anything is enqueued.
type ValidationError struct {
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("texts[%d].%s: %v", e.Index, e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InterruptedError reports a TranslateJobs wait cut short by its context.
type InterruptedError struct {
	RequestID string
	Pending   int
	Total     int
	Err       error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("translation request %s interrupted with %d of %d jobs pending: %v", e.RequestID, e.Pending, e.Total, e.Err)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

var (
	errUnknownTranslator = errors.New("unknown translator")
	errEmptyLabel        = errors.New("annotation label is required")
)
