package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestChannel(t *testing.T) {
	t.Run("delivers published messages in order", func(t *testing.T) {
		ch := NewChannel(10)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		for i, body := range []string{"one", "two", "three"} {
			err := ch.Publish(ctx, []byte(body), "parcel-1", map[string]string{"n": body})
			if err != nil {
				t.Fatalf("Publish %d: %v", i, err)
			}
		}

		var got []string
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = ch.Receive(ctx, func(ctx context.Context, msg Message) {
				got = append(got, string(msg.Data()))
				msg.Ack()
				if len(got) == 3 {
					cancel()
				}
			})
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("receive did not finish")
		}

		if len(got) != 3 || got[0] != "one" || got[2] != "three" {
			t.Errorf("got %v, want [one two three]", got)
		}
		if ch.Acked() != 3 {
			t.Errorf("Acked() = %d, want 3", ch.Acked())
		}
	})

	t.Run("settles each message once", func(t *testing.T) {
		ch := NewChannel(1)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := ch.Publish(ctx, []byte("x"), "", nil); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = ch.Receive(ctx, func(ctx context.Context, msg Message) {
				msg.Nack()
				msg.Ack() // ignored, already settled
				cancel()
			})
		}()
		<-done

		if ch.Nacked() != 1 || ch.Acked() != 0 {
			t.Errorf("Nacked/Acked = %d/%d, want 1/0", ch.Nacked(), ch.Acked())
		}
	})

	t.Run("publish after close fails", func(t *testing.T) {
		ch := NewChannel(1)
		if err := ch.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		err := ch.Publish(context.Background(), []byte("x"), "", nil)
		if !errors.Is(err, ErrClosed) {
			t.Errorf("error = %v, want ErrClosed", err)
		}
	})

	t.Run("receive drains then returns after close", func(t *testing.T) {
		ch := NewChannel(2)
		ctx := context.Background()
		_ = ch.Publish(ctx, []byte("x"), "", nil)
		_ = ch.Close()

		var seen int
		if err := ch.Receive(ctx, func(ctx context.Context, msg Message) {
			seen++
			msg.Ack()
		}); err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if seen != 1 {
			t.Errorf("seen = %d, want 1", seen)
		}
	})
}
