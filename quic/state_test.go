package quic

import "testing"

func TestIsAtLeastAlmostReady(t *testing.T) {
	ready := []ConnState{StateClientAlmostReady, StateClientReady, StateServerAlmostReady, StateServerReady}
	for _, s := range ready {
		if !s.isAtLeastAlmostReady() {
			t.Errorf("%v should be at least almost ready", s)
		}
	}

	notReady := []ConnState{StateClientInit, StateClientInitSent, StateServerInit, StateServerHandshake, StateClosing, StateDraining}
	for _, s := range notReady {
		if s.isAtLeastAlmostReady() {
			t.Errorf("%v should not be at least almost ready", s)
		}
	}
}

func TestOnVersionNegotiation(t *testing.T) {
	if got, ok := StateClientInitSent.onVersionNegotiation(); !ok || got != StateClientInit {
		t.Errorf("onVersionNegotiation from ClientInitSent = (%v, %v), want (ClientInit, true)", got, ok)
	}
	if _, ok := StateClientReady.onVersionNegotiation(); ok {
		t.Error("onVersionNegotiation from ClientReady should not transition")
	}
}

func TestOnRetry(t *testing.T) {
	for _, s := range []ConnState{StateClientInitSent, StateClientInitResent} {
		if got, ok := s.onRetry(); !ok || got != StateClientInitResent {
			t.Errorf("onRetry from %v = (%v, %v), want (ClientInitResent, true)", s, got, ok)
		}
	}
	if _, ok := StateServerInit.onRetry(); ok {
		t.Error("onRetry from ServerInit should not transition")
	}
}

func TestOnServerHandshakeObserved(t *testing.T) {
	for _, s := range []ConnState{StateClientInitSent, StateClientInitResent} {
		if got, ok := s.onServerHandshakeObserved(); !ok || got != StateClientHandshakeStart {
			t.Errorf("onServerHandshakeObserved from %v = (%v, %v), want (ClientHandshakeStart, true)", s, got, ok)
		}
	}
}

func TestOnClientInitialObserved(t *testing.T) {
	if got, ok := StateServerInit.onClientInitialObserved(); !ok || got != StateServerHandshake {
		t.Errorf("onClientInitialObserved from ServerInit = (%v, %v), want (ServerHandshake, true)", got, ok)
	}
	if _, ok := StateServerHandshake.onClientInitialObserved(); ok {
		t.Error("onClientInitialObserved from ServerHandshake should not transition (already past ServerInit)")
	}
}

func TestOnHandshakeComplete(t *testing.T) {
	tests := []struct {
		from ConnState
		want ConnState
	}{
		{StateClientHandshakeStart, StateClientAlmostReady},
		{StateClientHandshakeProgress, StateClientAlmostReady},
		{StateServerHandshake, StateServerAlmostReady},
	}
	for _, tt := range tests {
		got, ok := tt.from.onHandshakeComplete()
		if !ok || got != tt.want {
			t.Errorf("onHandshakeComplete from %v = (%v, %v), want (%v, true)", tt.from, got, ok, tt.want)
		}
	}
	if _, ok := StateClientReady.onHandshakeComplete(); ok {
		t.Error("onHandshakeComplete from ClientReady should not transition")
	}
}

func TestOnStatelessReset(t *testing.T) {
	for _, s := range []ConnState{StateClientReady, StateServerHandshake, StateClosing} {
		if got := s.onStatelessReset(); got != StateDisconnected {
			t.Errorf("onStatelessReset from %v = %v, want Disconnected", s, got)
		}
	}
}

func TestOnConnectionCloseReceived(t *testing.T) {
	if got, ok := StateClosing.onConnectionCloseReceived(true); !ok || got != StateDisconnected {
		t.Errorf("client onConnectionCloseReceived = (%v, %v), want (Disconnected, true)", got, ok)
	}
	if got, ok := StateClosing.onConnectionCloseReceived(false); !ok || got != StateDraining {
		t.Errorf("server onConnectionCloseReceived = (%v, %v), want (Draining, true)", got, ok)
	}
	if _, ok := StateServerReady.onConnectionCloseReceived(false); ok {
		t.Error("onConnectionCloseReceived from ServerReady should not transition")
	}
}
