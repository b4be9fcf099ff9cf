package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStartup_DependencyOrder(t *testing.T) {
	var started, stopped []string
	dep := func(name string, requires ...string) Func {
		return Func{
			Name:     name,
			Requires: requires,
			StartFn:  func(context.Context) error { started = append(started, name); return nil },
			StopFn:   func(context.Context) error { stopped = append(stopped, name); return nil },
		}
	}

	s := NewStartup(getTestLogger(), 1)
	s.AddDependency(dep("api", "database", "redis"))
	s.AddDependency(dep("database"))
	s.AddDependency(dep("redis"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"database", "redis", "api"}, started)
	assert.Equal(t, StatusStarted, s.Status("api"))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"api", "redis", "database"}, stopped)
	assert.Equal(t, StatusStopped, s.Status("database"))
}

func TestStartup_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	s := NewStartup(getTestLogger(), 3).WithBackoffUnit(time.Millisecond)
	s.AddDependency(Func{Name: "database", StartFn: func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, attempts)
}

func TestStartup_GivesUp(t *testing.T) {
	s := NewStartup(getTestLogger(), 2).WithBackoffUnit(time.Millisecond)
	s.AddDependency(Func{Name: "kafka", StartFn: func(context.Context) error { return errors.New("no brokers") }})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "no brokers")
	assert.Equal(t, StatusFailed, s.Status("kafka"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := NewStartup(getTestLogger(), 1)
	s.AddDependency(Func{Name: "api", Requires: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown dependency 'missing'")

	s = NewStartup(getTestLogger(), 1)
	s.AddDependency(Func{Name: "a", Requires: []string{"b"}})
	s.AddDependency(Func{Name: "b", Requires: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "dependency cycle")
}
