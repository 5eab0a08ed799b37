package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/metrics"
	"github.com/denysvitali/odi-gate/pkg/models"
)

// StartCamera acquires device and starts scanning. A camera already running
// on another device is released first; the device is owned by the engine
// until the scan is accepted or the camera is stopped.
func (e *Engine) StartCamera(device int) (View, error) {
	if e.openCamera == nil {
		return e.View(), ErrNoCamera
	}

	e.mu.Lock()
	if e.inFlightLocked() {
		e.mu.Unlock()
		return e.View(), ErrSessionBusy
	}
	prev := e.camera
	if prev != nil && prev.device == device {
		e.mu.Unlock()
		return e.View(), nil
	}
	e.camera = nil
	e.mu.Unlock()

	if prev != nil {
		log.Debugf("switching camera %d -> %d", prev.device, device)
		prev.stop()
	}

	cam, err := e.openCamera(device)
	if err != nil {
		return e.View(), fmt.Errorf("unable to open camera %d: %w", device, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &cameraRun{
		device:  device,
		camera:  cam,
		scanner: capture.NewLiveScanner(cam, e.decoder, e.liveOpts...),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.camera != nil || e.inFlightLocked() {
		e.mu.Unlock()
		cancel()
		if err := cam.Close(); err != nil {
			log.Warnf("unable to release camera %d: %v", device, err)
		}
		return e.View(), ErrSessionBusy
	}
	e.camera = run
	e.status = StatusScanning
	e.rejection = nil
	e.mu.Unlock()

	log.Infof("scanning with camera %d", device)
	go e.runCamera(ctx, run)
	return e.View(), nil
}

// StopCamera releases the camera and cancels a scan that is still settling
// or resolving. A session already under review is kept.
func (e *Engine) StopCamera() View {
	e.mu.Lock()
	run := e.camera
	e.camera = nil
	switch e.status {
	case StatusSettling, StatusResolving:
		e.discardLocked()
		e.status = StatusIdle
	case StatusScanning:
		e.status = StatusIdle
	}
	e.mu.Unlock()

	if run != nil {
		run.stop()
	}
	return e.View()
}

// Shutdown stops the camera and abandons the current session.
func (e *Engine) Shutdown() {
	e.StopCamera()
	e.Close()
}

func (e *Engine) runCamera(ctx context.Context, run *cameraRun) {
	defer close(run.done)

	var accepted *job
	_, err := run.scanner.Scan(ctx, func(p models.ScanPayload) bool {
		j, err := e.accept(p)
		if err != nil {
			return false
		}
		accepted = j
		return j != nil
	})
	if err != nil {
		e.releaseCamera(run, err)
		return
	}

	// The camera stays open while the scan settles so the operator sees
	// the frame that was captured.
	settleErr := e.settle(accepted)
	e.releaseCamera(run, nil)
	if settleErr == nil {
		e.resolve(accepted)
	}
}

func (e *Engine) releaseCamera(run *cameraRun, scanErr error) {
	if err := run.camera.Close(); err != nil {
		log.Warnf("unable to release camera %d: %v", run.device, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.camera == run {
		e.camera = nil
		if e.status == StatusScanning {
			e.status = StatusIdle
		}
	}
	if errors.Is(scanErr, capture.ErrDecodeExhausted) {
		log.Warnf("camera %d: %v", run.device, scanErr)
		e.metrics.ScanObserved(string(models.SourceCamera), metrics.ResultNoCode)
		e.rejection = &Rejection{Reason: scanErr.Error(), Sticky: true, At: e.now()}
	}
}
