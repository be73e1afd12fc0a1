package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"licensedesk/pkg/model"
)

// SlotClient drives the arbitration protocol from Go callers such as
// integration tests and operator tooling.
type SlotClient struct {
	httpClient *HttpClient
}

func NewSlotClient(httpClient *HttpClient) *SlotClient {
	return &SlotClient{httpClient: httpClient}
}

func (c *SlotClient) List(ctx context.Context, filter model.SlotFilter) ([]model.SlotView, error) {
	q := url.Values{}
	if filter.Location != "" {
		q.Set("location", filter.Location)
	}
	if filter.Authority != "" {
		q.Set("authority", filter.Authority)
	}
	if filter.DateFrom != "" {
		q.Set("date_from", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q.Set("date_to", filter.DateTo)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/api/v1/slots/" + url.PathEscape(string(filter.Kind))
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var views []model.SlotView
	if err := c.call(ctx, "GET", path, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *SlotClient) Get(ctx context.Context, kind model.SlotKind, id string) (*model.SlotView, error) {
	var view model.SlotView
	if err := c.call(ctx, "GET", slotPath(kind, id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Arbitrate returns an *APIError with code AUTH_REQUIRED when the client has
// no token; its details carry the pending_action_id to resume.
func (c *SlotClient) Arbitrate(ctx context.Context, kind model.SlotKind, id string) (*model.Arbitration, error) {
	var arb model.Arbitration
	if err := c.call(ctx, "POST", slotPath(kind, id)+"/arbitrate", nil, &arb); err != nil {
		return nil, err
	}
	return &arb, nil
}

func (c *SlotClient) Confirm(ctx context.Context, kind model.SlotKind, id, holdID string, req *model.ConfirmRequest) (*model.Booking, error) {
	var body any
	if req != nil {
		body = req
	}
	var booking model.Booking
	if err := c.call(ctx, "POST", holdPath(kind, id, holdID)+"/confirm", body, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (c *SlotClient) Release(ctx context.Context, kind model.SlotKind, id, holdID string) error {
	return c.call(ctx, "DELETE", holdPath(kind, id, holdID), nil, nil)
}

func (c *SlotClient) Resume(ctx context.Context, actionID string) (*model.Arbitration, error) {
	var arb model.Arbitration
	if err := c.call(ctx, "POST", "/api/v1/pending-actions/"+url.PathEscape(actionID)+"/resume", nil, &arb); err != nil {
		return nil, err
	}
	return &arb, nil
}

func (c *SlotClient) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.httpClient.request(ctx, method, path, body, nil)
	if err != nil {
		return err
	}
	if err := AsAPIError(resp); err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := resp.DecodeData(target); err != nil {
		return fmt.Errorf("could not decode %s %s: %w", method, path, err)
	}
	return nil
}

func slotPath(kind model.SlotKind, id string) string {
	return "/api/v1/slots/" + url.PathEscape(string(kind)) + "/id/" + url.PathEscape(id)
}

func holdPath(kind model.SlotKind, id, holdID string) string {
	return slotPath(kind, id) + "/holds/" + url.PathEscape(holdID)
}
