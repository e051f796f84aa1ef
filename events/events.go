// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package events provides a manager for plumbing events between event
// producers and event listeners.
package events

import (
	"sync"
)

// Manager is an event bus. Event types are free form strings so that
// producing packages can define their own namespaces.
type Manager struct {
	sync.RWMutex
	listeners map[string][]chan interface{}
}

// NewManager returns a new Manager.
func NewManager() *Manager {
	return &Manager{
		listeners: make(map[string][]chan interface{}),
	}
}

// Register registers a listener channel for the event type. All listeners
// that have been registered for an event type receive every emitted event of
// that type.
func (m *Manager) Register(event string, listener chan interface{}) {
	m.Lock()
	defer m.Unlock()

	m.listeners[event] = append(m.listeners[event], listener)
}

// Emit sends the event data to every listener that is registered for the
// event type. Sends are synchronous. Each listener must be serviced by a
// long running goroutine that reads from its channel continuously, otherwise
// Emit will block.
func (m *Manager) Emit(event string, data interface{}) {
	m.RLock()
	defer m.RUnlock()

	for _, ch := range m.listeners[event] {
		ch <- data
	}
}
