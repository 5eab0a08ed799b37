package models

import (
	"fmt"
	"io"
	"time"
)

// CaptureImage is an uploaded credential image, archived under the id of the
// session it produced.
type CaptureImage struct {
	Reader      io.ReadSeeker
	SessionId   string
	ContentType string
	CapturedAt  time.Time
}

func (c CaptureImage) Id() string {
	return fmt.Sprintf("captures/%s", c.SessionId)
}
