package ports

import (
	"time"

	"github.com/ersonp/libris/internal/domain/entities"
)

// Recorder receives operational counters from the services.
type Recorder interface {
	LogRecorded(op entities.Operation)
	RevertFinished(op entities.Operation, outcome string)
	SnapshotTaken(reason string)
	RestoreFinished(d time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) LogRecorded(entities.Operation)            {}
func (NopRecorder) RevertFinished(entities.Operation, string) {}
func (NopRecorder) SnapshotTaken(string)                      {}
func (NopRecorder) RestoreFinished(time.Duration)             {}
