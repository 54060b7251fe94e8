// Package db wraps the Supabase PostgREST access for template records.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	postgrest "github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"

	"github.com/carlvellotti/meme-mage-sub001/models"
)

// ErrTemplateNotFound is returned when no template row matches the requested ID.
var ErrTemplateNotFound = errors.New("template not found")

const templatesTable = "unprocessed_templates"

// TemplateStore provides CRUD access to the unprocessed_templates table.
type TemplateStore struct {
	client *supa.Client
	log    *logrus.Logger
}

// NewTemplateStore creates a TemplateStore backed by the given Supabase client.
func NewTemplateStore(client *supa.Client, log *logrus.Logger) *TemplateStore {
	return &TemplateStore{
		client: client,
		log:    log,
	}
}

// Create inserts a new template record and returns the stored row.
func (s *TemplateStore) Create(ctx context.Context, tpl *models.Template) (*models.Template, error) {
	// Execute() returns (body []byte, count int64, error). With the
	// "representation" preference the body carries the inserted row(s).
	body, _, err := s.client.From(templatesTable).
		Insert(tpl, false, "", "representation", "").
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to insert template record: %w", err)
	}

	var created []models.Template
	if err := json.Unmarshal(body, &created); err != nil || len(created) == 0 {
		s.log.Errorf("Error unmarshalling or empty response for template creation: %v, body: %s", err, string(body))
		return nil, fmt.Errorf("no record returned after template insert")
	}

	s.log.Infof("Created template record %s for source %s", created[0].ID, created[0].SourceURL)
	return &created[0], nil
}

// Get fetches a single template by ID.
func (s *TemplateStore) Get(ctx context.Context, id uuid.UUID) (*models.Template, error) {
	var tpl models.Template
	_, err := s.client.From(templatesTable).
		Select("*", "exact", false).
		Eq("id", id.String()).
		Single().
		ExecuteTo(&tpl)
	if err != nil {
		// PostgREST reports a missing row from Single() as PGRST116.
		if strings.Contains(err.Error(), "PGRST116") {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to fetch template %s: %w", id, err)
	}
	return &tpl, nil
}

// List returns all templates, newest first.
func (s *TemplateStore) List(ctx context.Context) ([]models.Template, error) {
	body, _, err := s.client.From(templatesTable).
		Select("*", "exact", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	var templates []models.Template
	if err := json.Unmarshal(body, &templates); err != nil {
		return nil, fmt.Errorf("failed to decode template list: %w", err)
	}
	if templates == nil {
		templates = []models.Template{}
	}
	return templates, nil
}

// Update applies a partial update to a template row. It returns
// ErrTemplateNotFound when no row matched the ID.
func (s *TemplateStore) Update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	_, count, err := s.client.From(templatesTable).
		Update(updates, "", "exact"). // Using "exact" to get a count of updated rows
		Eq("id", id.String()).
		Execute()
	if err != nil {
		s.log.Errorf("DB error updating template %s: %v", id, err)
		return fmt.Errorf("database update failed: %w", err)
	}
	if count == 0 {
		s.log.Warnf("No rows updated for template %s. Record might not exist.", id)
		return ErrTemplateNotFound
	}
	return nil
}
