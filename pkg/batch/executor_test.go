package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/conversion"
	"github.com/Ramsey-B/fern/pkg/conversion/conversiontest"
	"github.com/Ramsey-B/fern/pkg/credentials"
	"github.com/Ramsey-B/fern/pkg/models"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func records(n int) []models.RawStudentRecord {
	out := make([]models.RawStudentRecord, n)
	for i := range out {
		out[i] = models.RawStudentRecord{PEN: fmt.Sprintf("1%08d", i)}
	}
	return out
}

// fakeConverter marks every record added and lets tests inject behaviour per key
type fakeConverter struct {
	mu     sync.Mutex
	seen   []string
	tokens []string
	byKey  map[string]func() models.RecordOutcome
}

func (f *fakeConverter) Convert(ctx context.Context, rec *models.RawStudentRecord, _ conversion.RunOptions) models.RecordOutcome {
	f.mu.Lock()
	f.seen = append(f.seen, rec.PEN)
	if cred, ok := credentials.FromContext(ctx); ok {
		f.tokens = append(f.tokens, cred.Value)
	}
	fn := f.byKey[rec.PEN]
	f.mu.Unlock()

	if fn != nil {
		return fn()
	}
	return models.RecordOutcome{Key: rec.PEN, Added: true, Programs: []string{"2018-EN"}}
}

type fakeTokens struct {
	calls atomic.Int32
	fail  bool
}

func (f *fakeTokens) Token(_ context.Context) (*credentials.Credential, error) {
	n := f.calls.Add(1)
	if f.fail {
		return nil, conversiontest.ErrInjected
	}
	return &credentials.Credential{Value: fmt.Sprintf("t%d", n)}, nil
}

func TestPageSize(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		partitions int
		want       int
		wantErr    bool
	}{
		{name: "even split", total: 100, partitions: 4, want: 25},
		{name: "remainder rounds up", total: 10, partitions: 3, want: 4},
		{name: "fewer records than partitions", total: 2, partitions: 5, want: 1},
		{name: "empty population", total: 0, partitions: 3, want: 0},
		{name: "zero partitions", total: 10, partitions: 0, wantErr: true},
		{name: "negative total", total: -1, partitions: 2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PageSize(tt.total, tt.partitions)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_Plan(t *testing.T) {
	source := conversiontest.NewSource(records(10)...)
	e := NewExecutor(source, &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 3})

	partitions, total, err := e.Plan(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, 10, total)
	require.Len(t, partitions, 3)
	assert.Len(t, partitions[0].Keys, 4)
	assert.Len(t, partitions[1].Keys, 4)
	assert.Len(t, partitions[2].Keys, 2)

	seen := map[string]bool{}
	for i, p := range partitions {
		assert.Equal(t, i, p.Index)
		for _, k := range p.Keys {
			assert.False(t, seen[k], "key %s assigned twice", k)
			seen[k] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestExecutor_PlanOverridesPartitions(t *testing.T) {
	source := conversiontest.NewSource(records(10)...)
	e := NewExecutor(source, &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 3})

	partitions, _, err := e.Plan(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, partitions, 5)
}

func TestExecutor_Execute(t *testing.T) {
	source := conversiontest.NewSource(records(9)...)
	converter := &fakeConverter{}
	e := NewExecutor(source, converter, nil, getTestLogger(), Config{Partitions: 2})

	summary, err := e.Execute(context.Background(), 0, conversion.RunOptions{RunID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, int64(9), summary.ReadCount)
	assert.Equal(t, int64(9), summary.ProcessedCount)
	assert.Equal(t, int64(9), summary.AddedCount)
	assert.Equal(t, int64(9), summary.Programs["2018-EN"])
	assert.Len(t, converter.seen, 9)
	assert.True(t, summary.Consistent())
}

func TestExecutor_EmptyPopulation(t *testing.T) {
	e := NewExecutor(conversiontest.NewSource(), &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 2})

	summary, err := e.Execute(context.Background(), 0, conversion.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.ReadCount)
	assert.Empty(t, summary.Errors)
}

func TestExecutor_RecordFailuresDoNotAbortPartition(t *testing.T) {
	recs := records(6)
	source := conversiontest.NewSource(recs...)
	source.FailFor[recs[1].PEN] = conversiontest.ErrInjected

	converter := &fakeConverter{byKey: map[string]func() models.RecordOutcome{
		recs[2].PEN: func() models.RecordOutcome { panic("boom") },
		recs[3].PEN: func() models.RecordOutcome {
			o := models.RecordOutcome{Key: recs[3].PEN}
			o.AddError(models.ErrorKindValidation, "bad data")
			return o
		},
	}}
	e := NewExecutor(source, converter, nil, getTestLogger(), Config{Partitions: 1})

	summary, err := e.Execute(context.Background(), 0, conversion.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(6), summary.ReadCount)
	assert.Equal(t, int64(5), summary.ProcessedCount)
	assert.Equal(t, int64(3), summary.AddedCount)
	assert.Equal(t, int64(3), summary.ErroredCount)
	require.Len(t, summary.Errors, 3)

	kinds := map[string]models.ErrorKind{}
	for _, e := range summary.Errors {
		kinds[e.Key] = e.Kind
	}
	assert.Equal(t, models.ErrorKindUpstream, kinds[recs[1].PEN])
	assert.Equal(t, models.ErrorKindUnexpected, kinds[recs[2].PEN])
	assert.Equal(t, models.ErrorKindValidation, kinds[recs[3].PEN])
	assert.Contains(t, converter.seen, recs[5].PEN)
}

func TestExecutor_MissingRecordIsNotFound(t *testing.T) {
	source := conversiontest.NewSource(records(2)...)
	e := NewExecutor(source, &fakeConverter{}, nil, getTestLogger(), Config{Partitions: 1})
	partitions := []Partition{{Index: 0, Keys: []string{"999999999"}}}

	summary := e.Run(context.Background(), partitions, conversion.RunOptions{})

	require.Len(t, summary.Errors, 1)
	assert.Equal(t, models.ErrorKindNotFound, summary.Errors[0].Kind)
	assert.Equal(t, "999999999", summary.Errors[0].Key)
}

func TestExecutor_CredentialRefreshCadence(t *testing.T) {
	source := conversiontest.NewSource(records(5)...)
	converter := &fakeConverter{}
	tokens := &fakeTokens{}
	e := NewExecutor(source, converter, tokens, getTestLogger(), Config{Partitions: 1, RefreshEvery: 2})

	_, err := e.Execute(context.Background(), 0, conversion.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(3), tokens.calls.Load())
	assert.Equal(t, []string{"t1", "t1", "t2", "t2", "t3"}, converter.tokens)
}

func TestExecutor_CredentialRefreshFailureContinues(t *testing.T) {
	source := conversiontest.NewSource(records(3)...)
	converter := &fakeConverter{}
	e := NewExecutor(source, converter, &fakeTokens{fail: true}, getTestLogger(), Config{Partitions: 1, RefreshEvery: 1})

	summary, err := e.Execute(context.Background(), 0, conversion.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.ProcessedCount)
	assert.Empty(t, converter.tokens)
}

func TestExecutor_CancelledContextStopsPartitions(t *testing.T) {
	source := conversiontest.NewSource(records(4)...)
	converter := &fakeConverter{}
	e := NewExecutor(source, converter, nil, getTestLogger(), Config{Partitions: 2})
	partitions := []Partition{{Index: 0, Keys: []string{"100000000", "100000001"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary := e.Run(ctx, partitions, conversion.RunOptions{})

	assert.Equal(t, int64(0), summary.ReadCount)
	assert.Empty(t, converter.seen)
}

func TestExecutor_PartitionsMergeAtBarrier(t *testing.T) {
	recs := records(80)
	source := conversiontest.NewSource(recs...)
	byKey := map[string]func() models.RecordOutcome{}
	for i, r := range recs {
		key := r.PEN
		switch {
		case i%10 == 0:
			byKey[key] = func() models.RecordOutcome {
				return models.RecordOutcome{Key: key, Updated: true, Programs: []string{"1996-EN"}}
			}
		case i == 7 || i == 77:
			byKey[key] = func() models.RecordOutcome {
				o := models.RecordOutcome{Key: key}
				o.AddError(models.ErrorKindNotFound, "no identity")
				return o
			}
		}
	}
	e := NewExecutor(source, &fakeConverter{byKey: byKey}, nil, getTestLogger(), Config{Partitions: 2})

	summary, err := e.Execute(context.Background(), 0, conversion.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(80), summary.ReadCount)
	assert.Equal(t, int64(80), summary.ProcessedCount)
	assert.Equal(t, int64(70), summary.AddedCount)
	assert.Equal(t, int64(8), summary.UpdatedCount)
	assert.Equal(t, int64(2), summary.ErroredCount)
	assert.Equal(t, int64(70), summary.Programs["2018-EN"])
	assert.Equal(t, int64(8), summary.Programs["1996-EN"])
	assert.True(t, summary.Consistent())
}
