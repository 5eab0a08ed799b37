package engine

import (
	"time"

	"github.com/denysvitali/odi-gate/pkg/approval"
	"github.com/denysvitali/odi-gate/pkg/timer"
)

type CaptureStatus string

const (
	StatusIdle       CaptureStatus = "idle"
	StatusScanning   CaptureStatus = "scanning"
	StatusRejected   CaptureStatus = "rejected"
	StatusSettling   CaptureStatus = "settling"
	StatusResolving  CaptureStatus = "resolving"
	StatusReviewing  CaptureStatus = "reviewing"
	StatusSubmitting CaptureStatus = "submitting"
)

// Rejection is the last scan refused by the validator. Low confidence
// rejections expire, the others stay until the next scan.
type Rejection struct {
	Reason     string    `json:"reason"`
	Confidence int       `json:"confidence,omitempty"`
	At         time.Time `json:"at"`
	Sticky     bool      `json:"-"`
}

// View is a consistent snapshot of the station state.
type View struct {
	Status        CaptureStatus     `json:"status"`
	Session       *approval.Session `json:"session,omitempty"`
	Actions       []approval.Action `json:"actions,omitempty"`
	Timer         *timer.VisitTimer `json:"timer,omitempty"`
	Rejection     *Rejection        `json:"rejection,omitempty"`
	Loading       bool              `json:"loading"`
	CanApprove    bool              `json:"canApprove"`
	CanDecline    bool              `json:"canDecline"`
	CameraActive  bool              `json:"cameraActive"`
	CameraDevice  *int              `json:"cameraDevice,omitempty"`
	MirrorPreview bool              `json:"mirrorPreview"`
}

func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	v := View{Status: e.status}

	if r := e.rejection; r != nil && (r.Sticky || now.Sub(r.At) < e.rejectAfter) {
		if e.status == StatusIdle || e.status == StatusScanning {
			v.Status = StatusRejected
		}
		rc := *r
		v.Rejection = &rc
	}

	switch e.status {
	case StatusSettling, StatusResolving, StatusSubmitting:
		v.Loading = true
	}

	if e.session != nil {
		v.Session = e.session.Clone()
		v.Actions = v.Session.Actions()
		reviewing := e.status == StatusReviewing
		v.CanApprove = reviewing && v.Session.CanApprove()
		v.CanDecline = reviewing && v.Session.CanDecline()
		if t, ok := timer.ForPerson(v.Session.Person, now); ok {
			v.Timer = &t
		}
	}

	if e.camera != nil {
		device := e.camera.device
		v.CameraActive = true
		v.CameraDevice = &device
		v.MirrorPreview = e.camera.scanner.MirrorPreview()
	}
	return v
}
