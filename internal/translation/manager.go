package translation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"horse.fit/translationtower/internal/cache"
	"horse.fit/translationtower/internal/langdetect"
	"horse.fit/translationtower/internal/language"
	"horse.fit/translationtower/internal/markup"
	"horse.fit/translationtower/internal/model"
)

// Queue accepts armed jobs for batching.
type Queue interface {
	Enqueue(ctx context.Context, job *model.Job) error
}

// CacheReader looks up earlier provider results.
type CacheReader interface {
	Lookup(ctx context.Context, text, source, target string, tr model.Translator) (*cache.CachedTranslation, bool)
}

type Options struct {
	Languages *language.Table
	Queue     Queue
	Cache     CacheReader
	// CharsPerText caps one input text, by translator name.
	CharsPerText   map[string]int
	DetectLanguage bool
	Logger         zerolog.Logger
}

// Manager validates inputs into jobs, answers from the cache, and hands the
// rest to the batch queue.
type Manager struct {
	languages      *language.Table
	queue          Queue
	cache          CacheReader
	charsPerText   map[string]int
	detectLanguage bool
	logger         zerolog.Logger
	requestSeq     atomic.Int64
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Languages == nil {
		return nil, fmt.Errorf("language table is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("job queue is required")
	}
	return &Manager{
		languages:      opts.Languages,
		queue:          opts.Queue,
		cache:          opts.Cache,
		charsPerText:   opts.CharsPerText,
		detectLanguage: opts.DetectLanguage,
		logger:         opts.Logger.With().Str("component", "translation").Logger(),
	}, nil
}

// NewRequestID returns the next request id, starting at "1".
func (m *Manager) NewRequestID() string {
	return strconv.FormatInt(m.requestSeq.Add(1), 10)
}

// Languages lists the table entries a translator supports; "" lists all.
func (m *Manager) Languages(provider string) []language.Entry {
	return m.languages.Entries(strings.ToLower(strings.TrimSpace(provider)))
}

// CreateJobs validates every input and stops at the first invalid one.
func (m *Manager) CreateJobs(requestID string, inputs []Input) ([]*model.Job, error) {
	jobs := make([]*model.Job, 0, len(inputs))
	for i, input := range inputs {
		job, err := m.CreateJob(requestID, i, input)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CreateJob validates one input. Jobs carry canonical language codes.
func (m *Manager) CreateJob(requestID string, index int, input Input) (*model.Job, error) {
	invalid := func(field string, err error) (*model.Job, error) {
		return nil, &ValidationError{Index: index, Field: field, Err: err}
	}

	name := strings.ToLower(strings.TrimSpace(input.Translator))
	if !isKnownTranslator(name) {
		return invalid("translator", fmt.Errorf("%w %q (allowed: %s)", errUnknownTranslator, input.Translator, strings.Join(model.ProviderNames, ", ")))
	}

	sourceRaw := input.SourceLang
	if strings.TrimSpace(sourceRaw) == "" && m.detectLanguage {
		sourceRaw = langdetect.Detect(input.Text, func(code string) bool {
			_, err := m.languages.Resolve(code, name, false)
			return err == nil
		})
	}
	source, err := m.languages.Resolve(sourceRaw, name, false)
	if err != nil {
		return invalid("source_lang", err)
	}
	target, err := m.languages.Resolve(input.TargetLang, name, true)
	if err != nil {
		return invalid("target_lang", err)
	}

	length := utf8.RuneCountInString(input.Text)
	if limit, ok := m.charsPerText[name]; ok && limit > 0 && length > limit {
		return invalid("text", fmt.Errorf("text has %d characters, %s allows at most %d", length, name, limit))
	}

	var annotations []model.Annotation
	if input.Annotations != nil {
		if err := markup.CheckText(input.Text); err != nil {
			return invalid("text", err)
		}
		annotations = make([]model.Annotation, 0, len(input.Annotations))
		for i, a := range input.Annotations {
			field := fmt.Sprintf("annotations[%d]", i)
			if strings.TrimSpace(a.Label) == "" {
				return invalid(field, errEmptyLabel)
			}
			if !(0 <= a.Start && a.Start < a.Stop && a.Stop <= length) {
				return invalid(field, fmt.Errorf("invalid offsets [%d, %d) for text of %d characters", a.Start, a.Stop, length))
			}
			annotations = append(annotations, model.Annotation{Label: a.Label, Start: a.Start, Stop: a.Stop})
		}
	}

	job := model.NewJob(requestID, index)
	job.Source = model.TextUnit{Text: input.Text, Language: source, Annotations: annotations}
	job.Target = model.TextUnit{Language: target}
	job.Translator = model.Translator{
		Name:     name,
		HTMLMode: input.TranslatorHTMLMode,
		FakeMode: input.TranslatorFakeMode,
	}
	job.UseCache = input.UseCache == nil || *input.UseCache
	return job, nil
}

// TranslateJobs resolves every job from the cache or the batch queue and fills
// in its target. The slice is updated in place and returned.
func (m *Manager) TranslateJobs(ctx context.Context, jobs []*model.Job) ([]*model.Job, error) {
	if len(jobs) == 0 {
		return jobs, nil
	}
	requestID := jobs[0].RequestID
	logger := m.logger.With().Str("request_id", requestID).Logger()

	cached := 0
	for _, job := range jobs {
		job.ToProvider = job.Source.Text
		if job.HasAnnotations() {
			job.ToProvider, job.Sidecar = markup.Encode(job.Source.Text, job.Source.Annotations)
			job.Translator.HTMLMode = true
		}

		if job.UseCache && m.cache != nil {
			if hit, ok := m.cache.Lookup(ctx, job.ToProvider, job.Source.Language, job.Target.Language, job.Translator); ok {
				job.FromCache = true
				job.Resolve(hit.Translation)
				cached++
				continue
			}
		}

		job.Arm()
		if err := m.queue.Enqueue(ctx, job); err != nil {
			// Jobs already queued still run; this caller just stops waiting.
			job.Fail(err.Error())
			job.Complete()
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return jobs, m.interrupted(logger, requestID, jobs, err)
			}
			return jobs, fmt.Errorf("enqueue job %d: %w", job.Index, err)
		}
	}

	logger.Debug().Int("jobs", len(jobs)).Int("cached", cached).Msg("waiting for translations")
	for _, job := range jobs {
		if !job.Armed() {
			continue
		}
		select {
		case <-job.Done():
		case <-ctx.Done():
			return jobs, m.interrupted(logger, requestID, jobs, ctx.Err())
		}
	}

	for _, job := range jobs {
		m.finalize(logger, job)
	}
	return jobs, nil
}

func (m *Manager) finalize(logger zerolog.Logger, job *model.Job) {
	if job.Error {
		job.Target.Text = ""
		return
	}
	if !job.HasAnnotations() {
		job.Target.Text = job.FromProvider
		return
	}

	text, annotations, err := markup.Decode(job.FromProvider, job.Sidecar)
	if err != nil {
		logger.Warn().Err(err).Int("index", job.Index).Msg("decode translated markup")
		job.Fail(fmt.Sprintf("decode translated markup: %v", err))
		job.Target.Text = ""
		return
	}
	job.Target.Text = text
	job.Target.Annotations = annotations
}

func (m *Manager) interrupted(logger zerolog.Logger, requestID string, jobs []*model.Job, cause error) error {
	pending := 0
	for _, job := range jobs {
		if job.Armed() && !job.Completed() {
			pending++
		}
	}
	logger.Info().
		Int("pending", pending).
		Int("total", len(jobs)).
		Msgf("translation request interrupted at %.2f%%", float64(len(jobs)-pending)*100/float64(len(jobs)))
	return &InterruptedError{RequestID: requestID, Pending: pending, Total: len(jobs), Err: cause}
}

func isKnownTranslator(name string) bool {
	for _, known := range model.ProviderNames {
		if name == known {
			return true
		}
	}
	return false
}
