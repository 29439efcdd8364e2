// internal/store/templates.go
package store

import (
	"context"
	"database/sql"
	"time"

	"certificate-service/internal/common/config"
	apperrors "certificate-service/internal/common/errors"
	"certificate-service/internal/common/logger"
	"certificate-service/internal/models"

	"github.com/redis/go-redis/v9"
)

const selectedTemplateCacheKey = "template:selected"

// TemplateStore persists the template registry and the single selected
// template setting. The selected template is read on every approval, so it
// sits behind a Redis cache with a short TTL. Writes invalidate the cache.
type TemplateStore struct {
	redis  *redis.Client
	cfg    config.TemplateConfig
	logger logger.Logger
}

func NewTemplateStore(rdb *redis.Client, cfg config.TemplateConfig, log logger.Logger) *TemplateStore {
	return &TemplateStore{redis: rdb, cfg: cfg, logger: log}
}

// GetSelected returns the file name of the currently selected template,
// falling back to the configured default when nothing has been selected.
func (s *TemplateStore) GetSelected(ctx context.Context, q Querier) (string, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, selectedTemplateCacheKey).Result()
		if err == nil && cached != "" {
			return cached, nil
		}
		if err != nil && err != redis.Nil {
			s.logger.Warn("template cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	query := `SELECT selected_template FROM template_settings WHERE name = $1`

	var selected string
	err := q.QueryRowContext(ctx, query, s.cfg.SettingsName).Scan(&selected)
	if err == sql.ErrNoRows {
		return s.defaultFileName(), nil
	}
	if err != nil {
		return "", apperrors.NewStorageError("get selected template", err)
	}
	if selected == "" {
		selected = s.defaultFileName()
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, selectedTemplateCacheKey, selected, s.cfg.GetCacheTTL()).Err(); err != nil {
			s.logger.Warn("template cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return selected, nil
}

// SetSelected stores the selected template file name and invalidates the
// cached value.
func (s *TemplateStore) SetSelected(ctx context.Context, q Querier, fileName string) error {
	query := `
		INSERT INTO template_settings (name, selected_template, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE
		SET selected_template = EXCLUDED.selected_template,
		    updated_at = EXCLUDED.updated_at`

	if _, err := q.ExecContext(ctx, query, s.cfg.SettingsName, fileName, time.Now().UTC()); err != nil {
		return apperrors.NewStorageError("set selected template", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, selectedTemplateCacheKey).Err(); err != nil {
			s.logger.Warn("template cache invalidation failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return nil
}

// ClearSelected removes the selection so approvals fall back to the
// default template. The cached value is invalidated.
func (s *TemplateStore) ClearSelected(ctx context.Context, q Querier) error {
	query := `DELETE FROM template_settings WHERE name = $1`

	if _, err := q.ExecContext(ctx, query, s.cfg.SettingsName); err != nil {
		return apperrors.NewStorageError("clear selected template", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, selectedTemplateCacheKey).Err(); err != nil {
			s.logger.Warn("template cache invalidation failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return nil
}

// ListTemplates returns every registered template, oldest first.
func (s *TemplateStore) ListTemplates(ctx context.Context, q Querier) ([]models.Template, error) {
	query := `
		SELECT id, file_name, display_name, created_at
		FROM templates
		ORDER BY created_at ASC, id ASC`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewStorageError("list templates", err)
	}
	defer rows.Close()

	templates := []models.Template{}
	for rows.Next() {
		var t models.Template
		if err := rows.Scan(&t.ID, &t.FileName, &t.DisplayName, &t.CreatedAt); err != nil {
			return nil, apperrors.NewStorageError("scan template row", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate template rows", err)
	}

	return templates, nil
}

func (s *TemplateStore) defaultFileName() string {
	name := s.cfg.DefaultPath
	if prefix := s.cfg.PathPrefix; prefix != "" && len(name) > len(prefix) && name[:len(prefix)] == prefix {
		name = name[len(prefix):]
	}
	return name
}
