package api

import (
	"context"
	"net/url"
	"strconv"

	"github.com/felixgeelhaar/hangar/internal/errors"
	"github.com/felixgeelhaar/hangar/internal/inventory"
)

func pageQuery(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": []string{strconv.Itoa(page)}}
}

// ListParts returns one page of the caller's team parts
func (c *Client) ListParts(ctx context.Context, page int) (*inventory.Page[inventory.Part], error) {
	var out inventory.Page[inventory.Part]
	if err := c.call(ctx, c.authed, EndpointListParts, 0, pageQuery(page), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePart produces req.Quantity parts
func (c *Client) CreatePart(ctx context.Context, req inventory.CreatePart) error {
	return c.call(ctx, c.authed, EndpointCreatePart, 0, nil, req, nil)
}

// DeletePart removes an unused part
func (c *Client) DeletePart(ctx context.Context, id int) error {
	if id < 1 {
		return errors.NewInvalidInputError("part id", "must be a positive number")
	}
	return c.call(ctx, c.authed, EndpointDeletePart, id, nil, nil, nil)
}

// PartScore returns used/unused counts per plane type for the caller's team
func (c *Client) PartScore(ctx context.Context) (*inventory.Score, error) {
	var out inventory.Score
	if err := c.call(ctx, c.authed, EndpointPartScore, 0, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPlanes returns one page of assembled planes
func (c *Client) ListPlanes(ctx context.Context, page int) (*inventory.Page[inventory.Plane], error) {
	var out inventory.Page[inventory.Plane]
	if err := c.call(ctx, c.authed, EndpointListPlanes, 0, pageQuery(page), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePlane assembles a plane from stock parts
func (c *Client) CreatePlane(ctx context.Context, req inventory.CreatePlane) error {
	return c.call(ctx, c.authed, EndpointCreatePlane, 0, nil, req, nil)
}
