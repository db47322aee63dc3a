package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/vetbook/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type memInbox struct {
	seen    map[string]bool
	err     error
	forgets []string
	// forgetFails makes the first n Forget calls fail.
	forgetFails int
}

func (m *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

func (m *memInbox) Forget(_ context.Context, id string) error {
	if m.forgetFails > 0 {
		m.forgetFails--
		return errors.New("connection reset")
	}
	delete(m.seen, id)
	m.forgets = append(m.forgets, id)
	return nil
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeCompleter struct {
	ids []string
	err error
	// failFirst makes the first n calls fail with err.
	failFirst int
	onCall    func(calls int)
}

func (f *fakeCompleter) Complete(_ context.Context, id string) (bool, error) {
	f.ids = append(f.ids, id)
	if f.onCall != nil {
		f.onCall(len(f.ids))
	}
	if f.failFirst > 0 {
		if len(f.ids) <= f.failFirst {
			return false, f.err
		}
		return true, nil
	}
	return f.err == nil, f.err
}

func newTestConsumer(reader Reader, inbox Recorder, h Handler) *Consumer {
	c := New(discard, reader, inbox, h)
	c.backoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond
	return c
}

func message(offset int64, eventID, value string) kafka.Message {
	return kafka.Message{
		Topic:  TopicAppointmentCompleted,
		Offset: offset,
		Value:  []byte(value),
		Headers: []kafka.Header{
			{Key: kafkax.HeaderEventID, Value: []byte(eventID)},
			{Key: kafkax.HeaderEventType, Value: []byte(TopicAppointmentCompleted)},
		},
	}
}

func TestRunDeduplicatesAndCommits(t *testing.T) {
	id := uuid.NewString()
	value := `{"appointment_id":"` + id + `"}`
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		message(1, "evt-1", value),
		message(2, "evt-1", value),
		message(3, "evt-2", `{"appointment_id":"nope"}`),
	}}
	completer := &fakeCompleter{}

	c := New(discard, reader, &memInbox{seen: map[string]bool{}}, CompletionHandler(completer, discard))
	c.Run(ctx)

	require.Equal(t, []string{id}, completer.ids)
	require.Equal(t, []int64{1, 2, 3}, reader.committed)
	require.True(t, reader.closed)
}

func TestProcessForgetsOnHandlerError(t *testing.T) {
	inbox := &memInbox{seen: map[string]bool{}}
	completer := &fakeCompleter{err: errors.New("db down")}
	c := New(discard, &fakeReader{}, inbox, CompletionHandler(completer, discard))

	msg := message(7, "evt-9", `{"appointment_id":"`+uuid.NewString()+`"}`)
	require.Error(t, c.Process(context.Background(), msg))

	require.Equal(t, []string{"evt-9"}, inbox.forgets)
	require.False(t, inbox.seen["evt-9"])

	completer.err = nil
	require.NoError(t, c.Process(context.Background(), msg))
	require.Len(t, completer.ids, 2)
	require.True(t, inbox.seen["evt-9"])
}

func TestProcessSkipsHandlerWhenInboxFails(t *testing.T) {
	completer := &fakeCompleter{}
	c := New(discard, &fakeReader{}, &memInbox{err: errors.New("timeout")}, CompletionHandler(completer, discard))

	err := c.Process(context.Background(), message(1, "evt-1", `{"appointment_id":"`+uuid.NewString()+`"}`))
	require.Error(t, err)
	require.Empty(t, completer.ids)
}

func TestRunDoesNotCommitFailedCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		message(5, "evt-5", `{"appointment_id":"`+uuid.NewString()+`"}`),
	}}
	completer := &fakeCompleter{err: errors.New("db down"), onCall: func(calls int) {
		if calls == 3 {
			cancel()
		}
	}}
	inbox := &memInbox{seen: map[string]bool{}}

	newTestConsumer(reader, inbox, CompletionHandler(completer, discard)).Run(ctx)

	require.Len(t, completer.ids, 3, "the same message is retried in place")
	require.Empty(t, reader.committed)
	require.False(t, inbox.seen["evt-5"])
	require.True(t, reader.closed)
}

func TestRunCommitsAfterRetrySucceeds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := uuid.NewString()
	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		message(5, "evt-5", `{"appointment_id":"`+id+`"}`),
		message(6, "evt-6", `{"appointment_id":"`+id+`"}`),
	}}
	completer := &fakeCompleter{err: errors.New("db down"), failFirst: 2}
	inbox := &memInbox{seen: map[string]bool{}, forgetFails: 1}

	newTestConsumer(reader, inbox, CompletionHandler(completer, discard)).Run(ctx)

	require.Len(t, completer.ids, 4)
	require.Equal(t, []int64{5, 6}, reader.committed)
	require.Equal(t, []string{"evt-5", "evt-5"}, inbox.forgets)
	require.True(t, inbox.seen["evt-5"])
	require.True(t, inbox.seen["evt-6"])
}

func TestCompletionHandlerDropsMalformedPayloads(t *testing.T) {
	completer := &fakeCompleter{}
	h := CompletionHandler(completer, discard)

	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte("{")}))
	require.NoError(t, h(context.Background(), kafka.Message{Value: []byte(`{"appointment_id":""}`)}))
	require.Empty(t, completer.ids)
}
