// Package journal records the outcome of every scan session that reaches a
// terminal state.
package journal

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/models"
)

var log = logrus.StandardLogger().WithField("package", "journal")

type Entry struct {
	SessionId       string          `json:"sessionId"`
	PersonId        string          `json:"personId,omitempty"`
	PersonName      string          `json:"personName,omitempty"`
	Category        models.Category `json:"category,omitempty"`
	InitialScanType string          `json:"initialScanType,omitempty"`
	Outcome         string          `json:"outcome"`
	Message         string          `json:"message"`
	Confidence      int             `json:"confidence"`
	Source          models.Source   `json:"source"`
	Banned          bool            `json:"banned"`
	Degraded        bool            `json:"degraded"`
	RecordedAt      time.Time       `json:"recordedAt"`
}

type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error {
	return nil
}

var _ Recorder = Nop{}
