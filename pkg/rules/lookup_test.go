package rules

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeService struct {
	requirementCalls atomic.Int64
	specialCalls     atomic.Int64
	fail             atomic.Bool
}

func (f *fakeService) ProgramRequirements(_ context.Context, program string) ([]models.ProgramRequirement, error) {
	f.requirementCalls.Add(1)
	if f.fail.Load() {
		return nil, errors.New("rule service unavailable")
	}
	return []models.ProgramRequirement{
		{Program: program, RuleCode: "1", FoundationReq: "1", Label: "Language Arts 10"},
		{Program: program, RuleCode: "5", FoundationReq: "5", Label: "Mathematics 10"},
	}, nil
}

func (f *fakeService) SpecialCase(_ context.Context, label string) (*models.SpecialCase, error) {
	f.specialCalls.Add(1)
	if label == "AEG" {
		return &models.SpecialCase{Code: "AEG", Label: "AEG", Description: "Aegrotat"}, nil
	}
	return nil, nil
}

func (f *fakeService) School(_ context.Context, code string) (*models.School, error) {
	if code == "00000000" {
		return nil, nil
	}
	return &models.School{Code: code, Name: "Test Secondary", Category: "01"}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestLookup_RequirementFor(t *testing.T) {
	svc := &fakeService{}
	l := NewLookup(svc, testLogger(), DefaultCacheConfig())
	ctx := context.Background()

	req, err := l.RequirementFor(ctx, "2018-EN", "5")
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "Mathematics 10", req.Label)

	req, err = l.RequirementFor(ctx, "2018-EN", "99")
	require.NoError(t, err)
	assert.Nil(t, req)

	req, err = l.RequirementFor(ctx, "2018-EN", " ")
	require.NoError(t, err)
	assert.Nil(t, req)

	assert.Equal(t, int64(1), svc.requirementCalls.Load())
	stats := l.Stats()["program_requirements"]
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestLookup_CachesAbsentSpecialCase(t *testing.T) {
	svc := &fakeService{}
	l := NewLookup(svc, testLogger(), DefaultCacheConfig())
	ctx := context.Background()

	sc, err := l.SpecialCase(ctx, "XYZ")
	require.NoError(t, err)
	assert.Nil(t, sc)

	sc, err = l.SpecialCase(ctx, "XYZ")
	require.NoError(t, err)
	assert.Nil(t, sc)
	assert.Equal(t, int64(1), svc.specialCalls.Load())

	sc, err = l.SpecialCase(ctx, "AEG")
	require.NoError(t, err)
	assert.Equal(t, "Aegrotat", sc.Description)
}

func TestLookup_ErrorsAreNotCached(t *testing.T) {
	svc := &fakeService{}
	svc.fail.Store(true)
	l := NewLookup(svc, testLogger(), DefaultCacheConfig())
	ctx := context.Background()

	_, err := l.ProgramRequirements(ctx, "2018-EN")
	require.Error(t, err)

	svc.fail.Store(false)
	reqs, err := l.ProgramRequirements(ctx, "2018-EN")
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
	assert.Equal(t, int64(2), svc.requirementCalls.Load())
}

func TestLookup_ConcurrentReaders(t *testing.T) {
	svc := &fakeService{}
	l := NewLookup(svc, testLogger(), DefaultCacheConfig())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				reqs, err := l.ProgramRequirements(ctx, "2018-EN")
				assert.NoError(t, err)
				assert.Len(t, reqs, 2)
				_, err = l.School(ctx, "03939000")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// duplicate loads are allowed while the key is still uncached
	assert.LessOrEqual(t, svc.requirementCalls.Load(), int64(16))
	assert.GreaterOrEqual(t, svc.requirementCalls.Load(), int64(1))
}

func TestCache_ExpiryAndEviction(t *testing.T) {
	c := NewCache[int]("test", CacheConfig{MaxSize: 4, TTL: 20 * time.Millisecond})
	ctx := context.Background()
	loads := 0
	load := func(v int) Loader[int] {
		return func(context.Context) (int, error) {
			loads++
			return v, nil
		}
	}

	v, err := c.Get(ctx, "a", load(1))
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	v, _ = c.Get(ctx, "a", load(2))
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, loads)

	time.Sleep(30 * time.Millisecond)
	v, _ = c.Get(ctx, "a", load(3))
	assert.Equal(t, 3, v)

	for _, k := range []string{"b", "c", "d", "e"} {
		_, _ = c.Get(ctx, k, load(0))
	}
	assert.LessOrEqual(t, c.Stats().Size, 4)

	c.Clear()
	assert.Equal(t, 0, c.Stats().Size)
}

func TestTables(t *testing.T) {
	rule, ok := FrenchImmersionRuleFor("1986-EN")
	require.True(t, ok)
	assert.True(t, rule.Qualifies(11))
	assert.False(t, rule.Qualifies(12))

	rule, ok = FrenchImmersionRuleFor("2018-EN")
	require.True(t, ok)
	assert.True(t, rule.Qualifies(12))
	assert.False(t, rule.Qualifies(9))

	_, ok = FrenchImmersionRuleFor("2018-PF")
	assert.False(t, ok)

	req, ok := OptionalRequirement("CP")
	require.True(t, ok)
	assert.Equal(t, "954", req.Rule)
	_, ok = OptionalRequirement("FI")
	assert.False(t, ok)

	assert.True(t, IsOptionalAddOn("BD"))
	assert.False(t, IsOptionalAddOn("XC"))

	assert.Equal(t, "ARC", DestinationStatus("A", "I"))
	assert.Equal(t, "CUR", DestinationStatus("A", "A"))
	assert.Equal(t, "MER", DestinationStatus("M", "A"))
	assert.Equal(t, "DEC", DestinationStatus("D", ""))

	assert.Equal(t, []string{"S", "F"}, CertificateKinds("2018-PF", true, false))
	assert.Equal(t, []string{"SCF"}, CertificateKinds("SCCP", false, true))
	assert.Equal(t, []string{"E"}, CertificateKinds("2004-EN", false, false))
	assert.Nil(t, CertificateKinds("NOPROG", false, false))
}

func TestCache_ConcurrentHitsAreCounted(t *testing.T) {
	c := NewCache[int]("test", DefaultCacheConfig())
	var lookups atomic.Int64
	c.onHit = func(_ string, hit bool) {
		if hit {
			lookups.Add(1)
		}
	}
	ctx := context.Background()
	_, err := c.Get(ctx, "a", func(context.Context) (int, error) { return 1, nil })
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				v, err := c.Get(ctx, "a", func(context.Context) (int, error) { return 2, nil })
				assert.NoError(t, err)
				assert.Equal(t, 1, v)
			}
		}()
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, int64(800), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(800), lookups.Load())
}
