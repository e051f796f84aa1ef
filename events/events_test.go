// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package events

import (
	"testing"
	"time"
)

func TestManager(t *testing.T) {
	var (
		e = NewManager()

		eventRegistered   = "registered"
		eventUnregistered = "unregistered"
	)

	// Register two listeners for the same event
	ch1 := make(chan interface{})
	ch2 := make(chan interface{})
	e.Register(eventRegistered, ch1)
	e.Register(eventRegistered, ch2)

	// Listeners are serviced by goroutines that aggregate the received
	// data for verification.
	received := make(chan interface{})
	go func() {
		received <- <-ch1
	}()
	go func() {
		received <- <-ch2
	}()

	// Emit an event that nobody listens for. This must not block and
	// must not be passed to the registered listeners.
	e.Emit(eventUnregistered, "ignored")

	// Emit an event that both listeners are registered for
	e.Emit(eventRegistered, "hello")

	for i := 0; i < 2; i++ {
		select {
		case data := <-received:
			s, ok := data.(string)
			if !ok || s != "hello" {
				t.Errorf("got event data %v, want hello", data)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}
