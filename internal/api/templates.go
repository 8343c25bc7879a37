package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dukerupert/clinicdesk/internal/model"
)

func (c *Client) ListTemplates(ctx context.Context) ([]model.Template, error) {
	var templates []model.Template
	err := c.doJSON(ctx, http.MethodGet, "/templates", nil, &templates)
	return templates, err
}

func (c *Client) CreateTemplate(ctx context.Context, name, imageURL string) (model.Template, error) {
	var t model.Template
	err := c.doJSON(ctx, http.MethodPost, "/templates", model.Template{Name: name, ImageURL: imageURL}, &t)
	return t, err
}

func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/templates/"+url.PathEscape(id), nil, nil)
}
