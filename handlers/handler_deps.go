package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/carlvellotti/meme-mage-sub001/internal/pipeline"
	"github.com/carlvellotti/meme-mage-sub001/internal/worker"
	"github.com/carlvellotti/meme-mage-sub001/models"

	"github.com/google/uuid"
)

// TemplateDirectory defines the read operations handlers expect from the
// database layer. This allows for decoupling and easier testing.
// The concrete implementation will be provided by the db package.
type TemplateDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Template, error)
	List(ctx context.Context) ([]models.Template, error)
}

// ApplicationHandler holds shared dependencies for handlers.
type ApplicationHandler struct {
	Logger           *logrus.Logger
	Templates        TemplateDirectory
	Orchestrator     *pipeline.Orchestrator
	Cropper          *pipeline.Cropper
	Dispatcher       *worker.Dispatcher
	OperationTimeout time.Duration
}

// NewApplicationHandler creates a new ApplicationHandler with the given dependencies.
func NewApplicationHandler(logger *logrus.Logger, templates TemplateDirectory, orchestrator *pipeline.Orchestrator, cropper *pipeline.Cropper, dispatcher *worker.Dispatcher, operationTimeout time.Duration) *ApplicationHandler {
	return &ApplicationHandler{
		Logger:           logger,
		Templates:        templates,
		Orchestrator:     orchestrator,
		Cropper:          cropper,
		Dispatcher:       dispatcher,
		OperationTimeout: operationTimeout,
	}
}
