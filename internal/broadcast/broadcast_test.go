package broadcast

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/svartdal/telescoped/internal/spectrum"
)

func frame(seq int) *spectrum.Frame {
	return &spectrum.Frame{
		CenterFreq: float64(seq),
		Freqs:      []float64{1, 2},
		Power:      []float64{0, 0},
		Time:       time.Now(),
	}
}

func TestPublishDelivers(t *testing.T) {
	b := New("fake", 4)
	sub, err := b.Subscribe("viewer-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	b.Publish(frame(1))
	select {
	case f := <-sub.Frames():
		if f.CenterFreq != 1 {
			t.Fatalf("wrong frame: %v", f.CenterFreq)
		}
	case <-time.After(time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestSlowSubscriberNeverBlocksOthers(t *testing.T) {
	b := New("fake", 2)
	slow, _ := b.Subscribe("slow")
	fast, _ := b.Subscribe("fast")

	// The slow subscriber never drains. Publishing far more frames than
	// its queue depth must complete promptly and the fast subscriber
	// must still receive the newest frames.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(frame(i))
			// Drain fast so its queue never fills.
			select {
			case <-fast.Frames():
			default:
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The slow queue holds at most queueDepth frames, and the newest
	// published frame is among them (drop-oldest).
	var got []float64
	for {
		select {
		case f := <-slow.Frames():
			got = append(got, f.CenterFreq)
			continue
		default:
		}
		break
	}
	if len(got) > 2 {
		t.Fatalf("slow queue exceeded its bound: %d frames", len(got))
	}
	if len(got) == 0 || got[len(got)-1] != 99 {
		t.Fatalf("newest frame missing from slow queue: %v", got)
	}
}

func TestResubscribeReplacesPriorContext(t *testing.T) {
	b := New("fake", 4)
	first, _ := b.Subscribe("viewer-1")
	second, err := b.Subscribe("viewer-1")
	if err != nil {
		t.Fatalf("resubscribe failed: %v", err)
	}

	// Exactly one live subscriber per context.
	if n := b.SubscriberCount(); n != 1 {
		t.Fatalf("expected 1 subscriber after refresh, got %d", n)
	}

	// The prior stream is torn down, not leaked.
	if _, open := <-first.Frames(); open {
		t.Fatal("prior subscription channel should be closed")
	}

	b.Publish(frame(7))
	select {
	case f := <-second.Frames():
		if f.CenterFreq != 7 {
			t.Fatalf("wrong frame on new subscription: %v", f.CenterFreq)
		}
	case <-time.After(time.Second):
		t.Fatal("new subscription received nothing")
	}
}

func TestDistinctContextsCoexist(t *testing.T) {
	b := New("fake", 4)
	for i := 0; i < 5; i++ {
		if _, err := b.Subscribe(fmt.Sprintf("viewer-%d", i)); err != nil {
			t.Fatalf("subscribe %d failed: %v", i, err)
		}
	}
	if n := b.SubscriberCount(); n != 5 {
		t.Fatalf("expected 5 subscribers, got %d", n)
	}
}

func TestLateJoinerGetsCachedFrame(t *testing.T) {
	b := New("fake", 4)
	early, _ := b.Subscribe("early")
	b.Publish(frame(3))
	<-early.Frames()

	late, _ := b.Subscribe("late")
	select {
	case f := <-late.Frames():
		if f.CenterFreq != 3 {
			t.Fatalf("late joiner got %v, want cached frame 3", f.CenterFreq)
		}
	default:
		t.Fatal("late joiner should be preloaded with the cached frame")
	}
}

func TestCloseWakesSubscribers(t *testing.T) {
	b := New("fake", 4)
	sub, _ := b.Subscribe("viewer-1")

	cause := errors.New("receiver gone")
	b.Close(cause)

	select {
	case _, open := <-sub.Frames():
		if open {
			t.Fatal("expected closed channel, got a frame")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber left blocked after close")
	}

	if !errors.Is(b.Err(), cause) {
		t.Fatalf("close cause not recorded: %v", b.Err())
	}
	if _, err := b.Subscribe("viewer-2"); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close should fail with ErrClosed, got %v", err)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New("fake", 4)
	sub, _ := b.Subscribe("viewer-1")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
}
