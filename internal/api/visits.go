package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// CreateVisit registers a patient and returns the visit with its server
// assigned appointment number.
func (c *Client) CreateVisit(ctx context.Context, v model.NewVisit) (model.Visit, error) {
	var visit model.Visit
	err := c.doJSON(ctx, http.MethodPost, "/visits/create", v, &visit)
	return visit, err
}

// QueueStatus returns the current queue snapshot.
func (c *Client) QueueStatus(ctx context.Context) (model.QueueSnapshot, error) {
	var snap model.QueueSnapshot
	err := c.doJSON(ctx, http.MethodGet, "/visits/status", nil, &snap)
	return snap, err
}

func (c *Client) VisitDetails(ctx context.Context, id string) (model.Visit, error) {
	var visit model.Visit
	err := c.doJSON(ctx, http.MethodGet, "/visits/details/"+url.PathEscape(id), nil, &visit)
	return visit, err
}

func (c *Client) TodayVisits(ctx context.Context) ([]model.Visit, error) {
	var res struct {
		Data []model.Visit `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/visits/today", nil, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}
