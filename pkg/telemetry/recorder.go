package telemetry

import (
	"time"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

// storeRecorder feeds handle lifecycle callbacks for one store into
// metrics and events.
type storeRecorder struct {
	store   string
	metrics *Metrics
	events  *EventPublisher
	log     *Logger
}

// Recorder returns a triplestore.Recorder for handles on store.
func (t *Telemetry) Recorder(store string) triplestore.Recorder {
	return &storeRecorder{
		store:   store,
		metrics: t.Metrics,
		events:  t.Events,
		log:     t.Logger.NewComponentLogger("events"),
	}
}

func (r *storeRecorder) OpenAttempt(backend, mode string, err error) {
	r.metrics.OpenAttempt(backend, mode, err)
	if err != nil && mode == triplestore.ModeOpen {
		r.publish(r.events.PublishOpenFallback(r.store, backend, err.Error()))
	}
}

func (r *storeRecorder) HandleCreated(backend, mode string, elapsed time.Duration) {
	r.metrics.HandleCreated(backend, mode, elapsed)
	if mode == triplestore.ModeCreate {
		r.publish(r.events.PublishStoreCreated(r.store, backend))
	}
	r.publish(r.events.PublishHandleOpened(r.store, backend, mode, elapsed))
}

func (r *storeRecorder) CreateFailed(backend string, kind triplestore.FailureKind) {
	r.metrics.CreateFailed(backend, kind)
	r.publish(r.events.PublishCreateFailed(r.store, backend, string(kind)))
}

func (r *storeRecorder) HandleReleased(backend string) {
	r.metrics.HandleReleased(backend)
	r.publish(r.events.PublishHandleReleased(r.store, backend))
}

func (r *storeRecorder) publish(err error) {
	if err != nil {
		r.log.WithError(err).Warn("event not published")
	}
}
