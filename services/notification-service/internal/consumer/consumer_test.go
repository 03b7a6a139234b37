package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gildedshear/platform/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []string
	closed    bool
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case r.drained <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, kafkax.ExtractEventMeta(m).EventID)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type fakeInbox struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
}

func (f *fakeInbox) Record(_ context.Context, id, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

func (f *fakeInbox) Forget(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, id)
	f.forgotten = append(f.forgotten, id)
	return nil
}

func message(id string) kafka.Message {
	return kafkax.NewMessage(kafkax.EventMeta{EventID: id, EventType: "booking.appointment.created.v1"}, "appt", []byte(`{}`))
}

func TestRunDedupesAndRetriesFailedMessageInPlace(t *testing.T) {
	reader := &fakeReader{
		msgs:    []kafka.Message{message("evt-1"), message("evt-1"), message("evt-2"), message("evt-3")},
		drained: make(chan struct{}, 1),
	}
	inbox := &fakeInbox{seen: map[string]bool{}}
	var handled []string
	failures := 1
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), inbox, reader, func(_ context.Context, msg kafka.Message) error {
		id := kafkax.ExtractEventMeta(msg).EventID
		handled = append(handled, id)
		if id == "evt-2" && failures > 0 {
			failures--
			return errors.New("token store down")
		}
		return nil
	})
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	select {
	case <-reader.drained:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumer")
	}
	cancel()
	<-done

	if want := []string{"evt-1", "evt-2", "evt-2", "evt-3"}; !reflect.DeepEqual(handled, want) {
		t.Fatalf("expected handled %v, got %v", want, handled)
	}
	if want := []string{"evt-1", "evt-1", "evt-2", "evt-3"}; !reflect.DeepEqual(reader.committed, want) {
		t.Fatalf("expected committed %v, got %v", want, reader.committed)
	}
	if len(inbox.forgotten) != 1 || inbox.forgotten[0] != "evt-2" {
		t.Fatalf("expected evt-2 released once, got %v", inbox.forgotten)
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed")
	}
}

func TestRunStopsRetryingWhenCancelled(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{message("evt-9")}, drained: make(chan struct{}, 1)}
	inbox := &fakeInbox{seen: map[string]bool{}}
	attempts := make(chan struct{}, 16)
	c := NewWithReader(slog.New(slog.NewTextHandler(io.Discard, nil)), inbox, reader, func(context.Context, kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("token store down")
	})
	c.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for retry")
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
	if len(reader.committed) != 0 {
		t.Fatalf("failed message must not be committed, got %v", reader.committed)
	}
}
