package juju

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusYAML = `model:
  name: default
  type: caas
applications:
  mysql:
    charm: mysql-k8s
    units:
      mysql/1:
        workload-status:
          current: active
      mysql/0:
        workload-status:
          current: active
        subordinates:
          logging/0:
            workload-status:
              current: active
  app:
    charm: app
    units:
      app/0: {}
  logging:
    charm: logging
`

func TestParseStatus(t *testing.T) {
	ents, err := ParseStatus(statusYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "logging", "mysql"}, ents.Applications)
	assert.Equal(t, []string{"app/0", "logging/0", "mysql/0", "mysql/1"}, ents.Units)
}

func TestParseStatus_Empty(t *testing.T) {
	ents, err := ParseStatus("model:\n  name: default\napplications: {}\n")
	require.NoError(t, err)
	assert.Empty(t, ents.Applications)
	assert.Empty(t, ents.Units)
}

func TestParseStatus_Malformed(t *testing.T) {
	_, err := ParseStatus("applications: [mysql]")
	assert.Error(t, err)
	_, err = ParseStatus("applications:\n  mysql:\n    units: [a]\n")
	assert.Error(t, err)
	_, err = ParseStatus("{")
	assert.Error(t, err)
}

func TestArtifactName(t *testing.T) {
	assert.Equal(t, "application-mysql", ArtifactName(EntityApplication, "mysql"))
	assert.Equal(t, "unit-mysql-0", ArtifactName(EntityUnit, "mysql/0"))
}

type fakeStatusLogger struct {
	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	fail     map[string]bool
}

func (f *fakeStatusLogger) StatusLog(_ context.Context, _, _ string, kind EntityKind, name string, format Format) (string, error) {
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	// Later entities finish first to shake out ordering bugs.
	time.Sleep(time.Duration(10-len(name)%10) * time.Millisecond)
	f.inFlight.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, string(kind)+":"+name)
	f.mu.Unlock()

	if f.fail[name] {
		return "", errors.New("no status for " + name)
	}
	return fmt.Sprintf("%s %s %s", kind, name, format), nil
}

func TestFanOutStatusLogs_Attribution(t *testing.T) {
	f := &fakeStatusLogger{fail: map[string]bool{"mysql/1": true}}
	apps := []string{"app", "mysql"}
	units := []string{"app/0", "mysql/0", "mysql/1"}

	results, err := FanOutStatusLogs(context.Background(), f, "micro", "default", apps, units, FormatYAML, 2)
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Len(t, f.calls, 5)
	assert.LessOrEqual(t, f.peak.Load(), int32(2))

	wantKinds := []EntityKind{EntityApplication, EntityApplication, EntityUnit, EntityUnit, EntityUnit}
	wantNames := []string{"app", "mysql", "app/0", "mysql/0", "mysql/1"}
	for i, res := range results {
		assert.Equal(t, wantKinds[i], res.Kind)
		assert.Equal(t, wantNames[i], res.Name)
		if res.Name == "mysql/1" {
			assert.EqualError(t, res.Err, "no status for mysql/1")
			continue
		}
		require.NoError(t, res.Err)
		assert.Equal(t, fmt.Sprintf("%s %s yaml", res.Kind, res.Name), res.Output)
	}
}

func TestFanOutStatusLogs_Sequential(t *testing.T) {
	f := &fakeStatusLogger{}
	results, err := FanOutStatusLogs(context.Background(), f, "c", "m", []string{"a"}, []string{"a/0"}, FormatTabular, 1)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, []string{"application:a", "unit:a/0"}, f.calls)
}

func TestFanOutStatusLogs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeStatusLogger{}
	_, err := FanOutStatusLogs(ctx, f, "c", "m", []string{"a", "b"}, nil, FormatYAML, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
}
