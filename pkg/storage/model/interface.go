package model

import (
	"context"

	"github.com/denysvitali/odi-gate/pkg/models"
)

type Storer interface {
	Store(ctx context.Context, img models.CaptureImage) error
}

type Retriever interface {
	Retrieve(ctx context.Context, sessionId string) (*models.CaptureImage, error)
}

type RWStorage interface {
	Storer
	Retriever
}
