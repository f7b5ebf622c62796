package events

import (
	"testing"
)

func TestBus(t *testing.T) {
	t.Run("Publish Unauthorized", func(t *testing.T) {
		bus := New()

		var got []Unauthorized
		unsubscribe, err := bus.OnUnauthorized(func(e Unauthorized) { got = append(got, e) })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		bus.PublishUnauthorized(Unauthorized{Method: "GET", Path: "/user/private"})

		if len(got) != 1 {
			t.Fatalf("expected 1 event, got %d", len(got))
		}
		if got[0].Path != "/user/private" {
			t.Errorf("expected path /user/private, got %s", got[0].Path)
		}

		unsubscribe()
		bus.PublishUnauthorized(Unauthorized{Method: "GET", Path: "/again"})

		if len(got) != 1 {
			t.Errorf("expected no delivery after unsubscribe, got %d events", len(got))
		}
		if bus.HasSubscribers(TopicUnauthorized) {
			t.Error("expected no subscribers after unsubscribe")
		}
	})

	t.Run("Session Changed", func(t *testing.T) {
		bus := New()

		var state string
		if _, err := bus.OnSessionChanged(func(e SessionChanged) { state = e.State }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		bus.PublishSessionChanged(SessionChanged{State: "authenticated", Username: "ada"})

		if state != "authenticated" {
			t.Errorf("expected authenticated, got %q", state)
		}
	})

	t.Run("Publish From Handler Is Queued", func(t *testing.T) {
		bus := New()

		var order []string
		if _, err := bus.OnUnauthorized(func(e Unauthorized) {
			order = append(order, "unauthorized:start")
			bus.PublishSessionChanged(SessionChanged{State: "unauthenticated"})
			order = append(order, "unauthorized:end")
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := bus.OnSessionChanged(func(e SessionChanged) {
			order = append(order, "changed:"+e.State)
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		bus.PublishUnauthorized(Unauthorized{Path: "/user/private"})

		want := []string{"unauthorized:start", "unauthorized:end", "changed:unauthenticated"}
		if len(order) != len(want) {
			t.Fatalf("expected %v, got %v", want, order)
		}
		for i := range want {
			if order[i] != want[i] {
				t.Errorf("expected %v, got %v", want, order)
				break
			}
		}
	})

	t.Run("Subscribe Rejects Non Function", func(t *testing.T) {
		bus := New()
		if err := bus.Subscribe(TopicCredentialsCleared, "not a func"); err == nil {
			t.Error("expected error subscribing a non-function")
		}
	})

	t.Run("Publish Without Subscribers", func(t *testing.T) {
		bus := New()
		bus.PublishCredentialsCleared(CredentialsCleared{Reason: "logout"})
	})
}
