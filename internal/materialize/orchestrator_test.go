package materialize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rawsql/internal/domain"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	now    time.Time
	sleeps int
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps++
	c.now = c.now.Add(d)
	return nil
}

// fakeService reports every URL pending for the first pendingPolls calls.
type fakeService struct {
	pendingPolls int // -1 means forever
	loadErrors   map[string]string
	loadErr      error
	tables       map[string]string
	tablesErr    error

	loadCalls   int
	loadedURLs  [][]string
	bindCalls   int
	bindPayload map[string]domain.TableRequest
	// readyAtBind records whether the last LoadURLs reported nothing pending
	// when CreateTables was called.
	readyAtBind bool
	lastPending int
}

func (s *fakeService) LoadURLs(_ context.Context, _ string, urls []string) (*domain.LoadReply, error) {
	s.loadCalls++
	s.loadedURLs = append(s.loadedURLs, urls)
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	reply := &domain.LoadReply{Errors: s.loadErrors}
	if s.pendingPolls < 0 || s.loadCalls <= s.pendingPolls {
		reply.Pending = urls
	}
	s.lastPending = len(reply.Pending)
	return reply, nil
}

func (s *fakeService) CreateTables(_ context.Context, _ string, payload map[string]domain.TableRequest) (*domain.TablesReply, error) {
	s.bindCalls++
	s.bindPayload = payload
	s.readyAtBind = s.loadCalls > 0 && s.lastPending == 0
	if s.tablesErr != nil {
		return nil, s.tablesErr
	}
	return &domain.TablesReply{
		Database: domain.DatabaseDescriptor{Host: "db.local", User: "u", Password: "p", Database: "raw"},
		Tables:   s.tables,
	}, nil
}

func twoRequests() map[string]domain.TableRequest {
	return map[string]domain.TableRequest{
		"unknown:dropbox/b.csv/r2": {Args: map[string]interface{}{}, Columns: []string{}},
		"unknown:dropbox/a.csv/r1": {Args: map[string]interface{}{}, Columns: []string{}},
	}
}

func TestOrchestrator_Materialize(t *testing.T) {
	svc := &fakeService{
		pendingPolls: 2,
		tables: map[string]string{
			"unknown:dropbox/a.csv/r1": "t_a",
			"unknown:dropbox/b.csv/r2": "t_b",
		},
	}
	clock := newFakeClock()
	o := NewOrchestrator(svc, Options{Timeout: 90 * time.Second, Interval: time.Second, Clock: clock})

	res, err := o.Materialize(context.Background(), "42", twoRequests())
	require.NoError(t, err)

	assert.Equal(t, 3, svc.loadCalls)
	assert.Equal(t, 2, clock.sleeps)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 2*time.Second, res.Elapsed)
	assert.Equal(t, "db.local", res.Database.Host)
	assert.Equal(t, "t_a", res.Tables["unknown:dropbox/a.csv/r1"])

	// The same, sorted URL set is re-submitted on every poll.
	for _, urls := range svc.loadedURLs {
		assert.Equal(t, []string{"unknown:dropbox/a.csv/r1", "unknown:dropbox/b.csv/r2"}, urls)
	}

	assert.Equal(t, 1, svc.bindCalls)
	assert.True(t, svc.readyAtBind, "tables must only be bound once nothing is pending")
	assert.Len(t, svc.bindPayload, 2)
}

func TestOrchestrator_TimeoutOnlyAfterBudget(t *testing.T) {
	svc := &fakeService{pendingPolls: -1}
	clock := newFakeClock()
	o := NewOrchestrator(svc, Options{Timeout: 90 * time.Second, Interval: 10 * time.Second, Clock: clock})

	_, err := o.Materialize(context.Background(), "42", twoRequests())
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindTimeout))
	assert.Equal(t, "Timed out while building the database", err.Error())

	// Polls at 0s..90s are within budget; the poll at 100s exceeds it.
	assert.Equal(t, 11, svc.loadCalls)
	assert.Equal(t, 100*time.Second, clock.now.Sub(newFakeClock().now))
	assert.Zero(t, svc.bindCalls)
}

func TestOrchestrator_ReadyExactlyAtBudget(t *testing.T) {
	// Pending for the polls at 0s..80s, ready at 90s: still inside the budget.
	svc := &fakeService{
		pendingPolls: 9,
		tables: map[string]string{
			"unknown:dropbox/a.csv/r1": "t_a",
			"unknown:dropbox/b.csv/r2": "t_b",
		},
	}
	o := NewOrchestrator(svc, Options{Timeout: 90 * time.Second, Interval: 10 * time.Second, Clock: newFakeClock()})

	res, err := o.Materialize(context.Background(), "42", twoRequests())
	require.NoError(t, err)
	assert.Equal(t, 10, res.Polls)
	assert.Equal(t, 90*time.Second, res.Elapsed)
}

func TestOrchestrator_Errors(t *testing.T) {
	tests := []struct {
		name     string
		svc      *fakeService
		wantKind domain.ErrorKind
		wantMsg  string
	}{
		{
			name: "aggregates_per_url_errors",
			svc: &fakeService{loadErrors: map[string]string{
				"unknown:dropbox/b.csv/r2": "bad header",
				"unknown:dropbox/a.csv/r1": "unreadable",
			}},
			wantKind: domain.KindMaterialization,
			wantMsg:  "Failed processing file(s): unknown:dropbox/a.csv/r1: unreadable unknown:dropbox/b.csv/r2: bad header",
		},
		{
			name:     "transport_error_on_load",
			svc:      &fakeService{loadErr: errors.New("connection refused")},
			wantKind: domain.KindProtocol,
			wantMsg:  "Error contacting materializer: connection refused",
		},
		{
			name:     "transport_error_on_bind",
			svc:      &fakeService{tablesErr: errors.New("status 500")},
			wantKind: domain.KindProtocol,
			wantMsg:  "Error contacting materializer",
		},
		{
			name:     "missing_table_in_bind_reply",
			svc:      &fakeService{tables: map[string]string{"unknown:dropbox/a.csv/r1": "t_a"}},
			wantKind: domain.KindMaterialization,
			wantMsg:  "unknown:dropbox/b.csv/r2: no table bound",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := NewOrchestrator(tc.svc, Options{Clock: newFakeClock()})
			_, err := o.Materialize(context.Background(), "42", twoRequests())
			require.Error(t, err)
			assert.Equal(t, tc.wantKind, domain.KindOf(err))
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestOrchestrator_PerURLErrorsStopBeforeBinding(t *testing.T) {
	svc := &fakeService{loadErrors: map[string]string{"unknown:dropbox/a.csv/r1": "boom"}}
	o := NewOrchestrator(svc, Options{Clock: newFakeClock()})

	_, err := o.Materialize(context.Background(), "42", twoRequests())
	require.Error(t, err)
	assert.Equal(t, 1, svc.loadCalls)
	assert.Zero(t, svc.bindCalls)
}

func TestOrchestrator_ContextCanceled(t *testing.T) {
	svc := &fakeService{pendingPolls: -1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(svc, Options{Clock: newFakeClock()})
	_, err := o.Materialize(ctx, "42", twoRequests())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_EmptyRequest(t *testing.T) {
	svc := &fakeService{}
	res, err := NewOrchestrator(svc, Options{}).Materialize(context.Background(), "42", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Tables)
	assert.Zero(t, svc.loadCalls)
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(&fakeService{}, Options{})
	assert.Equal(t, DefaultTimeout, o.timeout)
	assert.Equal(t, DefaultInterval, o.interval)
	assert.NotNil(t, o.clock)
	assert.NotNil(t, o.logger)
}
