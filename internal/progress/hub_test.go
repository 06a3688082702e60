package progress_test

import (
	"testing"
	"time"

	"github.com/relabel/relabel/internal/progress"
)

func TestPublishSubscribe(t *testing.T) {
	hub := progress.NewHub()
	ch, unsub := hub.Subscribe("job-1")
	defer unsub()

	hub.Publish("job-1", progress.Update{Phase: "scan", Done: 3, Total: 10})

	select {
	case u := <-ch:
		if u.Phase != "scan" || u.Done != 3 || u.Total != 10 {
			t.Errorf("got %+v, want scan/3/10", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update received")
	}
}

func TestPublishIsScopedToJob(t *testing.T) {
	hub := progress.NewHub()
	ch, unsub := hub.Subscribe("job-a")
	defer unsub()

	hub.Publish("job-b", progress.Update{Phase: "zip"})

	select {
	case u := <-ch:
		t.Errorf("received %+v for a different job", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := progress.NewHub()
	_, unsub := hub.Subscribe("job-1")
	defer unsub()

	// Never read: once the buffer fills, publishes must drop, not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("job-1", progress.Update{Phase: "zip", Done: i, Total: 100})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := progress.NewHub()
	ch, unsub := hub.Subscribe("job-1")
	unsub()

	hub.Publish("job-1", progress.Update{Phase: "zip", Done: 1, Total: 1})

	select {
	case u := <-ch:
		t.Errorf("received %+v after unsubscribe", u)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := progress.NewHub()
	ch1, unsub1 := hub.Subscribe("job-1")
	defer unsub1()
	ch2, unsub2 := hub.Subscribe("job-1")
	defer unsub2()

	hub.Publish("job-1", progress.Update{Phase: "checksum", Done: 5, Total: 5})

	for i, ch := range []<-chan progress.Update{ch1, ch2} {
		select {
		case u := <-ch:
			if u.Phase != "checksum" {
				t.Errorf("subscriber %d got %+v", i, u)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}
