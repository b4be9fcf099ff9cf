// Package batch pages the legacy population into partitions and converts them concurrently.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Ramsey-B/fern/pkg/conversion"
	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	// DefaultPartitions is the number of partitions used when none is configured
	DefaultPartitions = 4

	// DefaultRefreshEvery is how many records a worker processes between credential refreshes
	DefaultRefreshEvery = 100
)

// ErrInvalidPartitions is returned when a page size cannot be computed
var ErrInvalidPartitions = errors.New("partition count must be positive")

// Source is the legacy record population, ordered by natural key
type Source interface {
	Count(ctx context.Context) (int, error)
	ListKeys(ctx context.Context, offset, limit int) ([]string, error)
	GetByKey(ctx context.Context, pen string) (*models.RawStudentRecord, error)
}

// Converter converts one record. It must not panic, but the executor recovers if it does.
type Converter interface {
	Convert(ctx context.Context, rec *models.RawStudentRecord, opts conversion.RunOptions) models.RecordOutcome
}

// TokenSource hands out the current service credential
type TokenSource interface {
	Token(ctx context.Context) (*credentials.Credential, error)
}

// Config holds executor settings
type Config struct {
	Partitions   int
	RefreshEvery int
}

// Partition is the slice of natural keys owned by one worker
type Partition struct {
	Index int
	Keys  []string
}

// Executor runs one worker per partition and merges their summaries
type Executor struct {
	source    Source
	converter Converter
	tokens    TokenSource
	logger    ectologger.Logger
	config    Config
}

// NewExecutor creates a new executor. tokens may be nil.
func NewExecutor(source Source, converter Converter, tokens TokenSource, logger ectologger.Logger, config Config) *Executor {
	if config.Partitions <= 0 {
		config.Partitions = DefaultPartitions
	}
	if config.RefreshEvery <= 0 {
		config.RefreshEvery = DefaultRefreshEvery
	}
	return &Executor{
		source:    source,
		converter: converter,
		tokens:    tokens,
		logger:    logger,
		config:    config,
	}
}

// PageSize splits total records into near-equal pages, one per partition
func PageSize(total, partitions int) (int, error) {
	if partitions <= 0 {
		return 0, ErrInvalidPartitions
	}
	if total < 0 {
		return 0, fmt.Errorf("record count must not be negative: %d", total)
	}
	if total == 0 {
		return 0, nil
	}
	return (total + partitions - 1) / partitions, nil
}

// Plan pages the population into partitions up front. A non-positive count
// uses the configured partition count.
func (e *Executor) Plan(ctx context.Context, count int) ([]Partition, int, error) {
	if count <= 0 {
		count = e.config.Partitions
	}
	total, err := e.source.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count legacy records: %w", err)
	}
	size, err := PageSize(total, count)
	if err != nil {
		return nil, total, err
	}
	if size == 0 {
		return nil, total, nil
	}

	partitions := make([]Partition, 0, count)
	for offset := 0; offset < total; offset += size {
		keys, err := e.source.ListKeys(ctx, offset, size)
		if err != nil {
			return nil, total, fmt.Errorf("failed to list keys at offset %d: %w", offset, err)
		}
		if len(keys) == 0 {
			break
		}
		partitions = append(partitions, Partition{Index: len(partitions), Keys: keys})
	}
	return partitions, total, nil
}

// Execute converts every planned partition and returns the merged summary.
// Only planning errors are returned; record failures land in the summary.
func (e *Executor) Execute(ctx context.Context, count int, opts conversion.RunOptions) (*models.ConversionSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "Executor.Execute", attribute.String("run_id", opts.RunID))
	defer span.End()

	partitions, total, err := e.Plan(ctx, count)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":     opts.RunID,
		"total":      total,
		"partitions": len(partitions),
	}).Info("starting conversion partitions")

	return e.Run(ctx, partitions, opts), nil
}

// Run converts the given partitions concurrently and merges the results once every worker has finished
func (e *Executor) Run(ctx context.Context, partitions []Partition, opts conversion.RunOptions) *models.ConversionSummary {
	summaries := make([]*models.ConversionSummary, len(partitions))

	var wg sync.WaitGroup
	for i, p := range partitions {
		wg.Add(1)
		go func(i int, p Partition) {
			defer wg.Done()
			summaries[i] = e.worker(ctx, p, opts)
		}(i, p)
	}
	wg.Wait()

	return models.MergeSummaries(summaries...)
}

func (e *Executor) worker(ctx context.Context, p Partition, opts conversion.RunOptions) *models.ConversionSummary {
	start := time.Now()
	summary := models.NewConversionSummary()
	logger := e.logger.WithContext(ctx).WithFields(map[string]any{"run_id": opts.RunID, "partition": p.Index})

	ctx, span := tracing.StartSpan(ctx, "Executor.worker", attribute.Int("partition", p.Index), attribute.Int("keys", len(p.Keys)))
	defer span.End()

	recCtx := ctx
	for i, key := range p.Keys {
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warnf("partition stopped after %d of %d records", i, len(p.Keys))
			break
		}
		if i%e.config.RefreshEvery == 0 {
			recCtx = e.refreshCredential(ctx, recCtx, logger)
		}

		summary.ReadCount++
		rec, err := e.source.GetByKey(recCtx, key)
		if err != nil {
			ce := conversion.Classify(conversion.StateValidate, key, err)
			summary.RecordError(ce.Entry())
			metrics.RecordError(string(ce.Kind))
			logger.WithError(err).WithField("pen", key).Warn("failed to read legacy record")
			continue
		}

		summary.Record(e.convert(recCtx, key, rec, opts))
	}

	metrics.PartitionDuration.Observe(time.Since(start).Seconds())
	logger.WithFields(map[string]any{
		"read":      summary.ReadCount,
		"processed": summary.ProcessedCount,
		"added":     summary.AddedCount,
		"updated":   summary.UpdatedCount,
		"errored":   summary.ErroredCount,
	}).Info("partition complete")
	return summary
}

// convert isolates a panicking record so the rest of the partition still runs
func (e *Executor) convert(ctx context.Context, key string, rec *models.RawStudentRecord, opts conversion.RunOptions) (outcome models.RecordOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = models.RecordOutcome{Key: key}
			outcome.AddError(models.ErrorKindUnexpected, fmt.Sprintf("unexpected failure: %v", r))
			metrics.RecordError(string(models.ErrorKindUnexpected))
			e.logger.WithContext(ctx).WithField("pen", key).Errorf("recovered from panic converting record: %v", r)
		}
	}()
	return e.converter.Convert(ctx, rec, opts)
}

// refreshCredential derives a record context carrying the current credential.
// A failed refresh keeps the previous record context.
func (e *Executor) refreshCredential(ctx, previous context.Context, logger ectologger.Logger) context.Context {
	if e.tokens == nil {
		return previous
	}
	cred, err := e.tokens.Token(ctx)
	if err != nil {
		logger.WithError(err).Warn("failed to refresh credential")
		return previous
	}
	return credentials.WithCredential(ctx, cred)
}
