package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/forecast"
	applog "fintrack/internal/log"
	"fintrack/internal/sheets"
	"fintrack/internal/storage"
)

var (
	ErrInvalidRequest  = errors.New("invalid forecast request")
	ErrJobsDisabled    = errors.New("forecast jobs are not enabled")
	ErrHistoryDisabled = errors.New("forecast run history is not enabled")
)

// DefaultMonthsAmount is the display window used when a request omits it.
const DefaultMonthsAmount = 12

// RunStore persists forecast runs. *storage.SQLiteRepository implements it.
type RunStore interface {
	CreateForecastRun(ctx context.Context, run *storage.ForecastRun) error
	UpdateForecastRun(ctx context.Context, run *storage.ForecastRun) error
	GetForecastRun(ctx context.Context, id string) (*storage.ForecastRun, error)
	ListForecastRuns(ctx context.Context, userID string, limit int) ([]*storage.ForecastRun, error)
}

// JobPublisher hands forecast requests to a worker. *amqp.Client implements it.
type JobPublisher interface {
	PublishForecastRequest(ctx context.Context, msg *amqp.ForecastRequestMessage) error
}

// ForecastServiceConfig holds configuration for the forecast service
type ForecastServiceConfig struct {
	// MaxHorizon caps n_future (default: 24)
	MaxHorizon int

	// Timeout bounds a single forecast computation (default: 2m)
	Timeout time.Duration

	// Options are passed to every model
	Options forecast.Options

	// CacheSize is the number of memoised results; 0 disables caching (default: 128)
	CacheSize int

	// CacheTTL is how long a memoised result stays valid (default: 10m)
	CacheTTL time.Duration
}

func DefaultForecastServiceConfig() ForecastServiceConfig {
	return ForecastServiceConfig{
		MaxHorizon: 24,
		Timeout:    2 * time.Minute,
		Options:    forecast.DefaultOptions(),
		CacheSize:  128,
		CacheTTL:   10 * time.Minute,
	}
}

// Request is one forecast request as received from a caller.
type Request struct {
	UserID       string
	Model        string
	Horizon      int
	MonthsAmount int
}

// Response is a forecast ready for display: the predictions, the last
// MonthsAmount months of history and the month labels for both.
type Response struct {
	RunID        string               `json:"run_id,omitempty"`
	Model        forecast.ModelKind   `json:"model"`
	Predictions  forecast.Predictions `json:"predictions"`
	FutureMonths []string             `json:"future_months"`
	Months       []string             `json:"months"`
	Actuals      []float64            `json:"actuals"`
	ErrorMetric  *float64             `json:"error_metric"`
	Params       map[string]any       `json:"params,omitempty"`
	Cached       bool                 `json:"cached"`
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Key       forecast.ModelKind `json:"key"`
	MinMonths int                `json:"min_months"`
}

type modelFactory func(kind forecast.ModelKind, opts forecast.Options) (forecast.Model, error)

// ForecastService runs forecasts against a transaction source. Run history
// and asynchronous jobs are optional and depend on the backend.
type ForecastService struct {
	source sheets.TransactionSource
	runs   RunStore
	jobs   JobPublisher
	config ForecastServiceConfig
	cache  *cache.LRUCache[*forecast.Result]
	logger *applog.Logger

	newModel modelFactory
}

// NewForecastService wires the service. runs and jobs may be nil.
func NewForecastService(source sheets.TransactionSource, runs RunStore, jobs JobPublisher, config ForecastServiceConfig, logger *slog.Logger) *ForecastService {
	if config.MaxHorizon <= 0 {
		config.MaxHorizon = DefaultForecastServiceConfig().MaxHorizon
	}
	l := applog.FromSlog(logger, applog.ComponentForecast)
	if config.Options.Logger == nil {
		config.Options.Logger = logger
	}
	return &ForecastService{
		source:   source,
		runs:     runs,
		jobs:     jobs,
		config:   config,
		cache:    cache.NewLRUCache[*forecast.Result](config.CacheSize, config.CacheTTL),
		logger:   l,
		newModel: forecast.New,
	}
}

// Cache exposes the result cache so it can be registered for cleanup.
func (s *ForecastService) Cache() *cache.LRUCache[*forecast.Result] {
	return s.cache
}

// JobsEnabled reports whether Enqueue can be used.
func (s *ForecastService) JobsEnabled() bool {
	return s.jobs != nil && s.runs != nil
}

// Models lists the selectable models with their minimum history.
func (s *ForecastService) Models() []ModelInfo {
	return AvailableModels()
}

// AvailableModels is Models without a service, for callers that only list.
func AvailableModels() []ModelInfo {
	kinds := forecast.Kinds()
	out := make([]ModelInfo, len(kinds))
	for i, k := range kinds {
		out[i] = ModelInfo{Key: k, MinMonths: k.MinMonths()}
	}
	return out
}

type validRequest struct {
	userID       string
	kind         forecast.ModelKind
	horizon      int
	monthsAmount int
}

func (s *ForecastService) validate(req Request) (validRequest, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return validRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, core.ErrEmptyUser)
	}
	kind, err := forecast.ParseModelKind(req.Model)
	if err != nil {
		return validRequest{}, err
	}
	if req.Horizon < 1 {
		return validRequest{}, fmt.Errorf("%w: %w", ErrInvalidRequest, forecast.ErrInvalidHorizon)
	}
	if req.Horizon > s.config.MaxHorizon {
		return validRequest{}, fmt.Errorf("%w: horizon %d exceeds the maximum of %d", ErrInvalidRequest, req.Horizon, s.config.MaxHorizon)
	}
	months := req.MonthsAmount
	if months < 1 {
		months = DefaultMonthsAmount
	}
	return validRequest{userID: userID, kind: kind, horizon: req.Horizon, monthsAmount: months}, nil
}

// Forecast computes a forecast synchronously and records it as a run when
// history is enabled. Identical requests over an unchanged ledger are served
// from the cache and are not recorded again.
func (s *ForecastService) Forecast(ctx context.Context, req Request) (*Response, error) {
	vr, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.WithFields(applog.NewFields().WithForecast(vr.userID, string(vr.kind), vr.horizon))

	txs, err := s.source.ListTransactions(ctx, vr.userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	key := cacheKey(vr.userID, vr.kind, vr.horizon, txs)
	if res, ok := s.cache.Get(key); ok {
		logger.DebugContext(ctx, "Serving forecast from cache", applog.FieldCacheHit, true)
		resp := buildResponse(res, vr.monthsAmount)
		resp.Cached = true
		return resp, nil
	}

	var run *storage.ForecastRun
	if s.runs != nil {
		run = &storage.ForecastRun{
			UserID:       vr.userID,
			Model:        string(vr.kind),
			Horizon:      vr.horizon,
			MonthsAmount: vr.monthsAmount,
			Status:       storage.RunRunning,
		}
		if err := s.runs.CreateForecastRun(ctx, run); err != nil {
			return nil, fmt.Errorf("record forecast run: %w", err)
		}
	}

	res, err := s.compute(ctx, vr, txs)
	if run != nil {
		s.finishRun(ctx, run, res, err)
	}
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, res)

	resp := buildResponse(res, vr.monthsAmount)
	if run != nil {
		resp.RunID = run.ID
	}
	return resp, nil
}

func (s *ForecastService) compute(ctx context.Context, vr validRequest, txs []core.Transaction) (*forecast.Result, error) {
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	model, err := s.newModel(vr.kind, s.config.Options)
	if err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(applog.NewFields().WithForecast(vr.userID, string(vr.kind), vr.horizon))
	start := time.Now()
	res, err := forecast.Run(ctx, model, txs, vr.horizon)
	if err != nil {
		if forecast.IsUserFacing(err) {
			logger.InfoContext(ctx, "Forecast rejected", applog.FieldError, err.Error())
		} else {
			logger.LogError(ctx, "Forecast failed", err, applog.OpForecast, applog.ErrorTypeInternal)
		}
		return nil, err
	}
	logger.InfoContext(ctx, "Forecast completed",
		applog.FieldMonths, len(res.Months),
		applog.FieldErrorMetric, metricValue(res.ErrorMetric),
		"params", res.Params,
		"elapsed", time.Since(start))
	return res, nil
}

// finishRun stores the outcome. A storage failure here is logged and does not
// mask the forecast result.
func (s *ForecastService) finishRun(ctx context.Context, run *storage.ForecastRun, res *forecast.Result, runErr error) {
	if runErr != nil {
		run.Status = storage.RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = storage.RunCompleted
		run.Predictions = res.Predictions
		run.FutureMonths = res.FutureMonths
		run.ErrorMetric = res.ErrorMetric
		run.Params = res.Params
		run.Error = ""
	}
	// Record the outcome even if the request context was cancelled meanwhile.
	if err := s.runs.UpdateForecastRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.LogError(ctx, "Failed to update forecast run", err, applog.OpForecast, applog.ErrorTypeDatabase)
	}
}

// Enqueue records a pending run and publishes it for a worker.
func (s *ForecastService) Enqueue(ctx context.Context, req Request) (*storage.ForecastRun, error) {
	if !s.JobsEnabled() {
		return nil, ErrJobsDisabled
	}
	vr, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	run := &storage.ForecastRun{
		UserID:       vr.userID,
		Model:        string(vr.kind),
		Horizon:      vr.horizon,
		MonthsAmount: vr.monthsAmount,
		Status:       storage.RunPending,
	}
	if err := s.runs.CreateForecastRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record forecast run: %w", err)
	}

	msg := amqp.NewForecastRequestMessage(run.ID, vr.userID, string(vr.kind), vr.horizon, vr.monthsAmount)
	if err := s.jobs.PublishForecastRequest(ctx, msg); err != nil {
		run.Status = storage.RunFailed
		run.Error = "enqueue: " + err.Error()
		if uerr := s.runs.UpdateForecastRun(context.WithoutCancel(ctx), run); uerr != nil {
			s.logger.LogError(ctx, "Failed to mark run as failed", uerr, applog.OpEnqueue, applog.ErrorTypeDatabase)
		}
		return nil, fmt.Errorf("publish forecast request: %w", err)
	}

	s.logger.InfoContext(ctx, "Forecast job enqueued",
		applog.FieldRunID, run.ID,
		applog.FieldUserID, vr.userID,
		applog.FieldModel, vr.kind,
		applog.FieldHorizon, vr.horizon)
	return run, nil
}

// ProcessJob computes a queued run. Forecast failures are recorded on the run
// and reported as handled; only transaction or run store failures are
// returned so that the message can be retried.
func (s *ForecastService) ProcessJob(ctx context.Context, msg *amqp.ForecastRequestMessage) error {
	if s.runs == nil {
		return ErrHistoryDisabled
	}
	run, err := s.runs.GetForecastRun(ctx, msg.RunID)
	if err != nil {
		return fmt.Errorf("load forecast run %s: %w", msg.RunID, err)
	}
	logger := s.logger.With(applog.FieldRunID, run.ID)
	if run.Status.Terminal() {
		logger.InfoContext(ctx, "Skipping already finished run", "status", run.Status)
		return nil
	}

	run.Status = storage.RunRunning
	if err := s.runs.UpdateForecastRun(ctx, run); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}

	vr, err := s.validate(Request{UserID: run.UserID, Model: run.Model, Horizon: run.Horizon, MonthsAmount: run.MonthsAmount})
	if err != nil {
		s.finishRun(ctx, run, nil, err)
		return nil
	}

	txs, err := s.source.ListTransactions(ctx, vr.userID)
	if err != nil {
		return fmt.Errorf("list transactions: %w", err)
	}

	res, err := s.compute(ctx, vr, txs)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// Shutting down; leave the run for redelivery.
		return err
	}
	s.finishRun(ctx, run, res, err)
	if err == nil {
		s.cache.Set(cacheKey(vr.userID, vr.kind, vr.horizon, txs), res)
	}
	logger.InfoContext(ctx, "Forecast job processed", "status", run.Status)
	return nil
}

func (s *ForecastService) GetRun(ctx context.Context, id string) (*storage.ForecastRun, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.GetForecastRun(ctx, id)
}

func (s *ForecastService) ListRuns(ctx context.Context, userID string, limit int) ([]*storage.ForecastRun, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, core.ErrEmptyUser)
	}
	return s.runs.ListForecastRuns(ctx, userID, limit)
}

// Overview summarises one month of a user's expenses.
func (s *ForecastService) Overview(ctx context.Context, userID string, month core.MonthKey) (core.MonthOverview, error) {
	if strings.TrimSpace(userID) == "" {
		return core.MonthOverview{}, fmt.Errorf("%w: %w", ErrInvalidRequest, core.ErrEmptyUser)
	}
	txs, err := s.source.ListTransactions(ctx, userID)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list transactions: %w", err)
	}
	return forecast.Overview(txs, month), nil
}

// InvalidateUser drops every cached result of a user.
func (s *ForecastService) InvalidateUser(userID string) int {
	return s.cache.DeletePrefix(userID + "|")
}

func buildResponse(res *forecast.Result, monthsAmount int) *Response {
	months, actuals := res.Window(monthsAmount)
	labels := make([]string, len(months))
	for i, m := range months {
		labels[i] = m.Label()
	}
	return &Response{
		Model:        res.Model,
		Predictions:  append(forecast.Predictions(nil), res.Predictions...),
		FutureMonths: res.FutureLabels(),
		Months:       labels,
		Actuals:      append([]float64(nil), actuals...),
		ErrorMetric:  res.ErrorMetric,
		Params:       res.Params,
	}
}

// cacheKey identifies a request over a ledger snapshot. The user prefix lets
// InvalidateUser drop a user's entries.
func cacheKey(userID string, kind forecast.ModelKind, horizon int, txs []core.Transaction) string {
	lines := make([]string, len(txs))
	for i, tx := range txs {
		lines[i] = strings.Join([]string{
			tx.ID,
			tx.Date.Format("2006-01-02"),
			tx.Category,
			tx.Amount.String(),
			string(tx.Type),
		}, "\x1f")
	}
	sort.Strings(lines)
	h := sha256.New()
	for _, l := range lines {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return userID + "|" + string(kind) + "|" + strconv.Itoa(horizon) + "|" + hex.EncodeToString(h.Sum(nil))
}

func metricValue(m *float64) any {
	if m == nil {
		return nil
	}
	return *m
}

// CacheStats reports result cache usage.
func (s *ForecastService) CacheStats() cache.Stats {
	return s.cache.Stats()
}
