package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academy/internal/model"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/store/storetest"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []model.Notification
	fail bool
}

func (s *recordingSink) Deliver(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.got = append(s.got, n)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *recordingSink) ids() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.got))
	for _, n := range s.got {
		out[n.ID] = true
	}
	return out
}

type brokenQueue struct{}

func (brokenQueue) Publish(context.Context, queue.Message) error { return errors.New("broker down") }
func (brokenQueue) Consume(context.Context) (<-chan queue.Message, error) {
	return nil, errors.New("broker down")
}

// stalledQueue never accepts a message until the caller gives up.
type stalledQueue struct{}

func (stalledQueue) Publish(ctx context.Context, _ queue.Message) error {
	<-ctx.Done()
	return ctx.Err()
}
func (stalledQueue) Consume(ctx context.Context) (<-chan queue.Message, error) {
	return make(chan queue.Message), nil
}

func scoreNotice() model.Notification {
	return model.Notification{
		RecipientEmail: "ana@example.com",
		Kind:           model.NotifyQuizScore,
		Title:          "Quiz graded",
		Message:        "You scored 8/10",
		Payload:        []byte(`{"score":8}`),
	}
}

func TestDispatchThenDeliver(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	q := queue.NewInMemory(8)
	d := notify.NewDispatcher(db, q, zerolog.Nop())

	res := d.Dispatch(context.Background(), scoreNotice())
	require.True(t, res.OK(), "dispatch: %v", res.Err)
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications WHERE delivered_at IS NULL`))

	sink := &recordingSink{}
	deliverer := notify.NewDeliverer(db, sink, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = deliverer.Run(ctx, q)
	}()

	assert.Eventually(t, func() bool { return sink.count() > 0 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	require.Equal(t, 1, sink.count())
	assert.Equal(t, "You scored 8/10", sink.got[0].Message)
	assert.Equal(t, model.NotifyQuizScore, sink.got[0].Kind)
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications WHERE delivered_at IS NOT NULL`))
}

func TestDispatchFailureIsReportedNotRaised(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	d := notify.NewDispatcher(db, brokenQueue{}, zerolog.Nop())

	res := d.Dispatch(context.Background(), scoreNotice())
	assert.False(t, res.OK(), "expected publish failure in result")
	assert.Equal(t, "notify."+model.NotifyQuizScore, res.Name)

	sink := &recordingSink{}
	sent, err := notify.NewDeliverer(db, sink, zerolog.Nop()).Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, sink.count())

	again, err := notify.NewDeliverer(db, sink, zerolog.Nop()).Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestDispatchOnFullQueueReturnsAtOnce(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	d := notify.NewDispatcher(db, queue.NewInMemory(1), zerolog.Nop())

	require.True(t, d.Dispatch(context.Background(), scoreNotice()).OK())

	start := time.Now()
	res := d.Dispatch(context.Background(), scoreNotice())
	assert.Less(t, time.Since(start), time.Second, "dispatch waited on a full queue")
	assert.False(t, res.OK())
	assert.ErrorIs(t, res.Err, queue.ErrFull)
	assert.Equal(t, 2, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications WHERE delivered_at IS NULL`))

	sink := &recordingSink{}
	sent, err := notify.NewDeliverer(db, sink, zerolog.Nop()).Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}

func TestDispatchGivesUpOnStalledBroker(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	d := notify.NewDispatcher(db, stalledQueue{}, zerolog.Nop()).WithPublishTimeout(20 * time.Millisecond)

	start := time.Now()
	res := d.Dispatch(context.Background(), scoreNotice())
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications`), "row must survive a failed publish")
}

func TestServeSweepsRowsThatMissedTheQueue(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	q := queue.NewInMemory(1)
	d := notify.NewDispatcher(db, q, zerolog.Nop())
	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), scoreNotice())
	}
	require.Equal(t, 3, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications`))

	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- notify.NewDeliverer(db, sink, zerolog.Nop()).Serve(ctx, q, time.Hour, 10) }()

	assert.Eventually(t, func() bool { return len(sink.ids()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return storetest.Count(t, db, `SELECT COUNT(*) FROM notifications WHERE delivered_at IS NULL`) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestDeliverKeepsFailedPending(t *testing.T) {
	t.Parallel()

	db := storetest.Open(t)
	res := notify.NewDispatcher(db, nil, zerolog.Nop()).Dispatch(context.Background(), scoreNotice())
	require.True(t, res.OK(), "dispatch: %v", res.Err)

	sent, err := notify.NewDeliverer(db, &recordingSink{fail: true}, zerolog.Nop()).Sweep(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, storetest.Count(t, db, `SELECT COUNT(*) FROM notifications WHERE delivered_at IS NULL`))
}

func TestWebhookSinkSigns(t *testing.T) {
	t.Parallel()

	var (
		gotSig, gotTS string
		gotBody       []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotTS = r.Header.Get("X-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := notify.NewWebhookSink(srv.URL, "s3cret")
	n := scoreNotice()
	n.ID = "n-1"
	require.NoError(t, sink.Deliver(context.Background(), n))
	assert.Equal(t, "sha256="+notify.Sign("s3cret", gotTS, gotBody), gotSig)

	var decoded model.Notification
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "n-1", decoded.ID)
	assert.Equal(t, "ana@example.com", decoded.RecipientEmail)
}

func TestWebhookSinkRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	assert.Error(t, notify.NewWebhookSink(srv.URL, "").Deliver(context.Background(), scoreNotice()))
}
