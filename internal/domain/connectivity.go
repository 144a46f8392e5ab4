package domain

// ConnectivityObserver reports network reachability transitions. It is an
// injected capability rather than ambient global state so reconnect behavior
// can be driven by a fake in tests. Implementations must invoke the callback
// once per transition, not once per probe.
type ConnectivityObserver interface {
	// Subscribe registers fn for online/offline transitions and returns an
	// unsubscribe function. fn receives true when connectivity returns.
	Subscribe(fn func(online bool)) (unsubscribe func())
	// Online reports the current reachability state.
	Online() bool
}
