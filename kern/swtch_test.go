// Copyright 2026 The xv8 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package kern

import (
	"reflect"
	"testing"
)

func TestSwtchPingPong(t *testing.T) {
	main := newContext()
	other := newContext()

	// The channel handoffs order the appends, so trace needs no lock.
	var trace []string
	retired := make(chan struct{})
	go func() {
		defer close(retired)
		if _, ok := <-other.resume; !ok {
			return
		}
		for i := 0; i < 3; i++ {
			trace = append(trace, "other")
			swtch(other, main)
		}
		trace = append(trace, "fellthrough")
	}()

	for i := 0; i < 3; i++ {
		trace = append(trace, "main")
		swtch(main, other)
	}

	// The other context is parked in its last swtch. Closing its channel
	// must retire the goroutine (running deferred calls) without letting
	// it fall through the switch.
	close(other.resume)
	<-retired

	want := []string{"main", "other", "main", "other", "main", "other"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestSwtchReclaimBeforeFirstRun(t *testing.T) {
	ctx := newContext()
	retired := make(chan struct{})
	go func() {
		defer close(retired)
		if _, ok := <-ctx.resume; !ok {
			return
		}
		t.Error("context ran after reclaim")
	}()
	close(ctx.resume)
	<-retired
}
