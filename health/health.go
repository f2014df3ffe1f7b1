// Package health answers the probe paths of the host process from the live
// state of its schedulers and notifiers.
package health

import (
	"net/http"

	"probeserver/httpserver"
)

// Scheduler is any job scheduler that can report whether it is running.
type Scheduler interface {
	Running() bool
}

// Notifier is any pub/sub notifier that can report whether it is listening.
type Notifier interface {
	Listening() bool
}

// SchedulerSet yields a snapshot of the live schedulers.
type SchedulerSet interface {
	Instances() []Scheduler
}

// NotifierSet yields a snapshot of the live notifiers.
type NotifierSet interface {
	Instances() []Notifier
}

// Responder routes probe requests. It never caches: each request queries the
// sets again.
type Responder struct {
	schedulers SchedulerSet
	notifiers  NotifierSet
}

// NewResponder returns a Responder over the given sets. A nil set, including
// a nil *registry.Set, behaves as an empty one.
func NewResponder(schedulers SchedulerSet, notifiers NotifierSet) *Responder {
	return &Responder{schedulers: schedulers, notifiers: notifiers}
}

// Started reports whether at least one scheduler exists and all are running.
func (r *Responder) Started() bool {
	if r.schedulers == nil {
		return false
	}
	instances := r.schedulers.Instances()
	if len(instances) == 0 {
		return false
	}
	for _, s := range instances {
		if !s.Running() {
			return false
		}
	}
	return true
}

// Connected reports Started plus at least one notifier, all listening.
func (r *Responder) Connected() bool {
	if !r.Started() || r.notifiers == nil {
		return false
	}
	instances := r.notifiers.Instances()
	if len(instances) == 0 {
		return false
	}
	for _, n := range instances {
		if !n.Listening() {
			return false
		}
	}
	return true
}

// Call implements httpserver.Handler.
func (r *Responder) Call(req httpserver.Request) (httpserver.Response, error) {
	switch req.Path {
	case "/", "/status":
		return httpserver.Text(http.StatusOK, "OK"), nil
	case "/status/started":
		if r.Started() {
			return httpserver.Text(http.StatusOK, "Started"), nil
		}
		return httpserver.Text(http.StatusServiceUnavailable, "Not started"), nil
	case "/status/connected":
		if r.Connected() {
			return httpserver.Text(http.StatusOK, "Connected"), nil
		}
		return httpserver.Text(http.StatusServiceUnavailable, "Not connected"), nil
	default:
		return httpserver.Text(http.StatusNotFound, "Not found"), nil
	}
}
