package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"horse.fit/translationtower/internal/model"
)

// ErrClosed is returned by Enqueue after Close and recorded on jobs the
// manager drops while shutting down.
var ErrClosed = errors.New("translation queue closed")

const (
	DefaultQueueSize   = 20
	DefaultIdleTimeout = time.Second
)

// Translator sends one batch to a provider.
type Translator interface {
	Translate(ctx context.Context, tr model.Translator, texts []string, source, target string, batchID int64) ([]string, error)
}

// CacheWriter receives successful translations of jobs that asked for caching.
type CacheWriter interface {
	Put(ctx context.Context, text, translation, source, target string, tr model.Translator)
}

// RouteKey identifies one queue: a translator descriptor and a language pair.
type RouteKey struct {
	Translator model.Translator
	Source     string
	Target     string
}

func (k RouteKey) String() string {
	return k.Translator.String() + "/" + k.Source + "/" + k.Target
}

// Limits bound one provider request.
type Limits struct {
	TextsPerRequest int
	CharsPerRequest int
}

type Options struct {
	Translator Translator
	Cache      CacheWriter
	// Limits and Concurrency are keyed by provider name.
	Limits      map[string]Limits
	Concurrency map[string]int
	QueueSize   int
	IdleTimeout time.Duration
	Logger      zerolog.Logger
}

// Manager owns the route queues, their assembly loops, and the per-provider
// permit pools.
type Manager struct {
	translator  Translator
	cache       CacheWriter
	limits      map[string]Limits
	permits     map[string]*semaphore.Weighted
	queueSize   int
	idleTimeout time.Duration
	logger      zerolog.Logger
	// jobSize measures a job against CharsPerRequest.
	jobSize func(*model.Job) int

	// ctx stops assembly loops; dispatchCtx stops in-flight provider calls.
	ctx            context.Context
	cancel         context.CancelFunc
	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc

	// sendMu orders Enqueue against Close so no job lands in a queue nobody drains.
	sendMu sync.RWMutex
	closed bool

	mu     sync.Mutex
	routes map[RouteKey]*route

	loops     sync.WaitGroup
	inflight  sync.WaitGroup
	closeOnce sync.Once
	batchSeq  atomic.Int64
}

type route struct {
	key      RouteKey
	provider string
	limits   Limits
	queue    chan *model.Job
	logger   zerolog.Logger
}

type pendingBatch struct {
	jobs   []*model.Job
	length int
}

func (b *pendingBatch) take() []*model.Job {
	jobs := b.jobs
	b.jobs = nil
	b.length = 0
	return jobs
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Translator == nil {
		return nil, fmt.Errorf("batch translator is required")
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	limits := make(map[string]Limits, len(opts.Limits))
	for name, l := range opts.Limits {
		if l.TextsPerRequest < 1 || l.CharsPerRequest < 1 {
			return nil, fmt.Errorf("limits for %q must be positive: %+v", name, l)
		}
		limits[name] = l
	}
	permits := make(map[string]*semaphore.Weighted, len(opts.Concurrency))
	for name, n := range opts.Concurrency {
		if n < 1 {
			return nil, fmt.Errorf("concurrency for %q must be >= 1", name)
		}
		permits[name] = semaphore.NewWeighted(int64(n))
	}

	ctx, cancel := context.WithCancel(context.Background())
	dispatchCtx, dispatchCancel := context.WithCancel(context.Background())
	return &Manager{
		translator:     opts.Translator,
		cache:          opts.Cache,
		limits:         limits,
		permits:        permits,
		queueSize:      queueSize,
		idleTimeout:    idle,
		jobSize:        (*model.Job).TextLength,
		logger:         opts.Logger.With().Str("component", "batch").Logger(),
		ctx:            ctx,
		cancel:         cancel,
		dispatchCtx:    dispatchCtx,
		dispatchCancel: dispatchCancel,
		routes:         make(map[RouteKey]*route),
	}, nil
}

// Enqueue puts an armed job on its route queue, creating the route on first
// use. It blocks while the queue is full.
func (m *Manager) Enqueue(ctx context.Context, job *model.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	m.sendMu.RLock()
	defer m.sendMu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	r, err := m.route(RouteKey{
		Translator: job.Translator,
		Source:     job.Source.Language,
		Target:     job.Target.Language,
	})
	if err != nil {
		return err
	}

	select {
	case r.queue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.ctx.Done():
		return ErrClosed
	}
}

func (m *Manager) route(key RouteKey) (*route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.routes[key]; ok {
		return r, nil
	}

	limits, ok := m.limits[key.Translator.Name]
	if !ok {
		return nil, fmt.Errorf("no request limits configured for translator %q", key.Translator.Name)
	}
	r := &route{
		key:      key,
		provider: key.Translator.Name,
		limits:   limits,
		queue:    make(chan *model.Job, m.queueSize),
		logger:   m.logger.With().Str("route", key.String()).Logger(),
	}
	m.routes[key] = r
	m.loops.Add(1)
	go m.runLoop(r)

	r.logger.Debug().Msg("route started")
	return r, nil
}

// Routes lists the active routes sorted by their string form.
func (m *Manager) Routes() []RouteKey {
	m.mu.Lock()
	keys := make([]RouteKey, 0, len(m.routes))
	for key := range m.routes {
		keys = append(keys, key)
	}
	m.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (m *Manager) runLoop(r *route) {
	defer m.loops.Done()

	var batch pendingBatch
	timer := time.NewTimer(m.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case <-m.ctx.Done():
			finish(batch.take(), ErrClosed.Error())
			return
		case job := <-r.queue:
			m.step(r, &batch, job)
			timer.Reset(m.idleTimeout)
		case <-timer.C:
			if len(batch.jobs) > 0 {
				m.step(r, &batch, nil)
			}
			timer.Reset(m.idleTimeout)
		}
	}
}

// step adds job to the pending batch, or flushes it when job is nil. A panic
// fails the pending batch and the incoming job; the loop keeps running.
func (m *Manager) step(r *route, batch *pendingBatch, job *model.Job) {
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		r.logger.Error().
			Interface("panic", rec).
			Bytes("stack", debug.Stack()).
			Msg("batch assembly failed")

		jobs := batch.take()
		if job != nil && !containsJob(jobs, job) && !job.Completed() {
			jobs = append(jobs, job)
		}
		finish(jobs, fmt.Sprintf("internal error: %v", rec))
	}()

	if job == nil {
		m.flush(r, batch.take())
		return
	}

	n := m.jobSize(job)
	if n > r.limits.CharsPerRequest {
		// Encoded markup can outgrow the limit the plain text passed; such a
		// job goes out as a batch of its own.
		r.logger.Warn().
			Str("request_id", job.RequestID).
			Int("index", job.Index).
			Int("chars", n).
			Int("limit", r.limits.CharsPerRequest).
			Msg("job exceeds request size limit, sending it alone")
		m.flush(r, batch.take())
		m.flush(r, []*model.Job{job})
		return
	}

	if len(batch.jobs) > 0 &&
		(len(batch.jobs)+1 > r.limits.TextsPerRequest || batch.length+n > r.limits.CharsPerRequest) {
		m.flush(r, batch.take())
	}
	batch.jobs = append(batch.jobs, job)
	batch.length += n
}

func (m *Manager) flush(r *route, jobs []*model.Job) {
	if len(jobs) == 0 {
		return
	}
	id := m.batchSeq.Add(1)
	m.inflight.Add(1)
	go m.dispatch(r, id, jobs)
}

func (m *Manager) dispatch(r *route, batchID int64, jobs []*model.Job) {
	defer m.inflight.Done()

	logger := r.logger.With().Int64("batch_id", batchID).Logger()
	failed := false
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Bytes("stack", debug.Stack()).Msg("batch dispatch failed")
			finish(jobs, fmt.Sprintf("internal error: %v", rec))
			return
		}
		if failed {
			return
		}
		for _, job := range jobs {
			job.Complete()
		}
	}()

	if sem := m.permits[r.provider]; sem != nil {
		if err := sem.Acquire(m.dispatchCtx, 1); err != nil {
			failed = true
			finish(jobs, ErrClosed.Error())
			return
		}
		defer sem.Release(1)
	}

	texts := make([]string, len(jobs))
	chars := 0
	perRequest := make(map[string]int)
	for i, job := range jobs {
		texts[i] = job.ToProvider
		chars += job.TextLength()
		perRequest[job.RequestID]++
	}
	requests := zerolog.Dict()
	for requestID, n := range perRequest {
		requests.Int(requestID, n)
	}
	logger.Info().
		Int("texts", len(texts)).
		Int("chars", chars).
		Dict("requests", requests).
		Msg("dispatching batch")

	started := time.Now()
	translations, err := m.translator.Translate(m.dispatchCtx, r.key.Translator, texts, r.key.Source, r.key.Target, batchID)
	if err == nil && len(translations) != len(jobs) {
		err = fmt.Errorf("expected %d translations, got %d", len(jobs), len(translations))
	}
	if err != nil {
		logger.Error().Err(err).Int("texts", len(texts)).Msg("batch failed")
		for _, job := range jobs {
			job.Fail(err.Error())
		}
		return
	}

	for i, job := range jobs {
		job.Resolve(translations[i])
		if job.UseCache && m.cache != nil {
			m.cache.Put(m.dispatchCtx, job.ToProvider, translations[i], r.key.Source, r.key.Target, r.key.Translator)
		}
	}
	logger.Info().
		Int("texts", len(texts)).
		Dur("took", time.Since(started)).
		Msg("batch translated")
}

// Close stops every assembly loop and fails jobs that were queued or waiting in
// an unflushed batch. In-flight batches are awaited until ctx ends, then their
// provider calls are cancelled.
func (m *Manager) Close(ctx context.Context) error {
	m.closeOnce.Do(func() {
		m.cancel()

		m.sendMu.Lock()
		m.closed = true
		m.sendMu.Unlock()

		m.loops.Wait()

		m.mu.Lock()
		routes := make([]*route, 0, len(m.routes))
		for _, r := range m.routes {
			routes = append(routes, r)
		}
		m.mu.Unlock()

		for _, r := range routes {
			drained := drain(r.queue)
			if len(drained) > 0 {
				r.logger.Warn().Int("jobs", len(drained)).Msg("failing queued jobs on shutdown")
			}
			finish(drained, ErrClosed.Error())
		}
	})

	done := make(chan struct{})
	go func() {
		m.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.dispatchCancel()
		return nil
	case <-ctx.Done():
		m.dispatchCancel()
		return fmt.Errorf("abandon in-flight batches: %w", ctx.Err())
	}
}

func drain(queue chan *model.Job) []*model.Job {
	var jobs []*model.Job
	for {
		select {
		case job := <-queue:
			jobs = append(jobs, job)
		default:
			return jobs
		}
	}
}

// finish fails and completes jobs.
func finish(jobs []*model.Job, message string) {
	for _, job := range jobs {
		job.Fail(message)
		job.Complete()
	}
}

func containsJob(jobs []*model.Job, job *model.Job) bool {
	for _, j := range jobs {
		if j == job {
			return true
		}
	}
	return false
}
