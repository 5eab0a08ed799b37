// Package approval holds the time-in/time-out state machine of a scan
// session. Initial states come from the backend classification; this
// package only enforces the transitions out of them.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-gate/pkg/models"
)

var (
	ErrNotPending     = errors.New("session is not awaiting a decision")
	ErrBanned         = errors.New("person is banned, the scan can only be declined")
	ErrApprovalFailed = errors.New("approval failed")
)

var log = logrus.StandardLogger().WithField("package", "approval")

// Approver is the write side of the facility backend.
type Approver interface {
	ApproveTimeIn(ctx context.Context, id string, category models.Category) (*models.ApprovalResult, error)
	ApproveTimeOut(ctx context.Context, id string, category models.Category) (*models.ApprovalResult, error)
}

// Refresher re-reads a person after a successful approval.
type Refresher interface {
	Refresh(ctx context.Context, current *models.PersonRecord, updated *models.PersonRecord) (*models.PersonRecord, error)
}

type Machine struct {
	approver  Approver
	refresher Refresher
	now       func() time.Time
}

func NewMachine(approver Approver, refresher Refresher) *Machine {
	return &Machine{approver: approver, refresher: refresher, now: time.Now}
}

func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Approve records the pending time-in or time-out on the backend. Any backend
// failure moves the session to the error state with the server message.
func (m *Machine) Approve(ctx context.Context, s *Session) error {
	if !s.ScanType.Pending() {
		return ErrNotPending
	}
	if s.Banned() {
		return ErrBanned
	}
	if s.Person == nil {
		return ErrNotPending
	}

	approve, next := m.approver.ApproveTimeIn, StateTimeInApproved
	if s.ScanType == StateTimeOutPending {
		approve, next = m.approver.ApproveTimeOut, StateTimeOutApproved
	}

	log.Debugf("session %s: approving %s for %s", s.Id, s.ScanType, s.Person.Id)
	res, err := approve(ctx, s.Person.Id, s.Person.Category)
	if err != nil {
		log.Errorf("session %s: approval of %s rejected: %v", s.Id, s.Person.Id, err)
		s.Failed(err.Error(), m.now())
		return fmt.Errorf("%w: %v", ErrApprovalFailed, err)
	}

	var updated *models.PersonRecord
	message := ""
	if res != nil {
		updated = res.UpdatedPerson
		message = res.Message
	}

	person, err := m.refresher.Refresh(ctx, s.Person, updated)
	if err != nil {
		log.Warnf("session %s: unable to refresh %s after approval: %v", s.Id, s.Person.Id, err)
		person = s.Person
	}

	s.Person = person
	s.ScanType = next
	s.Message = message
	if s.Message == "" {
		s.Message = DefaultMessage(next, person)
	}
	s.UpdatedAt = m.now()
	return nil
}

// Decline is a local transition; nothing is written to the backend.
func (m *Machine) Decline(s *Session) error {
	if !s.ScanType.Pending() {
		return ErrNotPending
	}
	s.ScanType = StateDeclined
	s.Message = DefaultMessage(StateDeclined, s.Person)
	s.UpdatedAt = m.now()
	return nil
}
