package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRecipients struct {
	ids []int64
	err error
}

func (s staticRecipients) ListUserIDs(context.Context) ([]int64, error) { return s.ids, s.err }

type recipientsFunc func() ([]int64, error)

func (f recipientsFunc) ListUserIDs(context.Context) ([]int64, error) { return f() }

type recordingNotifier struct {
	mu     sync.Mutex
	sent   []int64
	failOn map[int64]bool
}

func (n *recordingNotifier) Notify(_ context.Context, id int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failOn[id] {
		return errors.New("bot was blocked by the user")
	}
	n.sent = append(n.sent, id)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func TestConfigNormalize(t *testing.T) {
	cfg := Config{}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, 48*time.Hour, cfg.Interval)
	assert.Equal(t, DefaultText, cfg.Text)

	assert.Error(t, (&Config{Interval: time.Second}).Normalize())
	assert.Error(t, (&Config{DayOfMonth: 32}).Normalize())
}

func TestTick_FailOpen(t *testing.T) {
	n := &recordingNotifier{failOn: map[int64]bool{2: true}}
	b := New(Config{Enabled: true, Interval: time.Hour, Text: "hi"}, staticRecipients{ids: []int64{1, 2, 3}}, n)
	var delivered []bool
	b.OnDelivery = func(ok bool) { delivered = append(delivered, ok) }

	res, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Recipients: 3, Sent: 2, Failed: 1}, res)
	assert.Equal(t, []int64{1, 3}, n.sent)
	assert.Equal(t, []bool{true, false, true}, delivered)
}

func TestTick_RecipientsError(t *testing.T) {
	b := New(Config{Enabled: true}, staticRecipients{err: errors.New("db down")}, &recordingNotifier{})
	_, err := b.Tick(context.Background())
	assert.Error(t, err)
}

func TestTick_DayOfMonthFilter(t *testing.T) {
	n := &recordingNotifier{}
	b := New(Config{Enabled: true, DayOfMonth: 15}, staticRecipients{ids: []int64{1}}, n)

	b.now = func() time.Time { return time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC) }
	res, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, n.count())

	b.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	res, err = b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestTick_DayOfMonthSendsOncePerDay(t *testing.T) {
	n := &recordingNotifier{}
	b := New(Config{Enabled: true, DayOfMonth: 15}, staticRecipients{ids: []int64{1, 2}}, n)

	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		at := day.Add(time.Duration(h) * time.Hour)
		b.now = func() time.Time { return at }
		_, err := b.Tick(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, n.count())

	b.now = func() time.Time { return time.Date(2024, 4, 15, 9, 0, 0, 0, time.UTC) }
	res, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 4, n.count())
}

func TestTick_DayOfMonthRetriesAfterRecipientsError(t *testing.T) {
	n := &recordingNotifier{}
	rec := &staticRecipients{err: errors.New("db down")}
	b := New(Config{Enabled: true, DayOfMonth: 15}, recipientsFunc(func() ([]int64, error) { return rec.ids, rec.err }), n)
	b.now = func() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) }

	_, err := b.Tick(context.Background())
	require.Error(t, err)

	rec.ids, rec.err = []int64{5}, nil
	res, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestTick_DayOfMonthDefaultIntervalHitsDay(t *testing.T) {
	n := &recordingNotifier{}
	b := New(Config{Enabled: true, DayOfMonth: 15}, staticRecipients{ids: []int64{1}}, n)
	require.Equal(t, 48*time.Hour, b.cfg.Interval)

	step := b.period()
	assert.Equal(t, time.Hour, step)

	at := time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC)
	for end := at.Add(48 * time.Hour); at.Before(end); at = at.Add(step) {
		now := at
		b.now = func() time.Time { return now }
		_, err := b.Tick(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, n.count())
}

func TestTick_DayOfMonthShortMonth(t *testing.T) {
	n := &recordingNotifier{}
	b := New(Config{Enabled: true, DayOfMonth: 31}, staticRecipients{ids: []int64{1}}, n)

	b.now = func() time.Time { return time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC) }
	res, err := b.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	b.now = func() time.Time { return time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC) }
	res, err = b.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

func TestPeriod(t *testing.T) {
	assert.Equal(t, 48*time.Hour, New(Config{}, nil, nil).period())
	assert.Equal(t, 10*time.Minute, New(Config{Interval: 10 * time.Minute, DayOfMonth: 1}, nil, nil).period())
	assert.Equal(t, time.Hour, New(Config{Interval: 72 * time.Hour, DayOfMonth: 1}, nil, nil).period())
}

func TestRun_BroadcastsImmediately(t *testing.T) {
	n := &recordingNotifier{}
	b := New(Config{Enabled: true, Interval: time.Hour}, staticRecipients{ids: []int64{7, 8}}, n)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return n.count() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_Disabled(t *testing.T) {
	n := &recordingNotifier{}
	New(Config{}, staticRecipients{ids: []int64{1}}, n).Run(context.Background())
	assert.Zero(t, n.count())
}
