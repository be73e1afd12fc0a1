// Package checkout packages a held slot for the external checkout flow.
package checkout

import (
	"fmt"
	"net/url"
	"time"

	"licensedesk/internal/session"
	"licensedesk/pkg/model"
)

type Builder struct {
	baseURL    *url.URL
	storageKey string
}

func NewBuilder(baseURL, storageKey string) (*Builder, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("checkout: invalid base url %q", baseURL)
	}
	if storageKey == "" {
		return nil, fmt.Errorf("checkout: storage key is required")
	}
	return &Builder{baseURL: u, storageKey: storageKey}, nil
}

// Build returns a redirect with query parameters for appointment and call
// slots, and a storage payload for vouchers.
func (b *Builder) Build(slot *model.Slot, hold model.Hold, sess *session.Session) (model.Handoff, error) {
	date, start, end, err := normalizeTimes(slot)
	if err != nil {
		return model.Handoff{}, err
	}

	if slot.Kind == model.KindVoucher {
		payload := *slot
		payload.Date, payload.StartTime, payload.EndTime = date, start, end
		payload.Holds = nil
		return model.Handoff{
			Mode:       model.HandoffStorage,
			URL:        b.url(url.Values{"kind": {string(slot.Kind)}}),
			StorageKey: b.storageKey,
			Payload: &model.VoucherCheckout{
				Slot:    payload,
				HoldID:  hold.ID,
				Contact: contact(sess),
			},
		}, nil
	}

	q := url.Values{}
	q.Set("slot_id", slot.ID)
	q.Set("kind", string(slot.Kind))
	q.Set("hold_id", hold.ID)
	q.Set("price", slot.Price.String())
	q.Set("currency", currency(slot))
	q.Set("date", date)
	q.Set("start_time", start)
	q.Set("end_time", end)

	return model.Handoff{
		Mode: model.HandoffRedirect,
		URL:  b.url(q),
	}, nil
}

func (b *Builder) url(q url.Values) string {
	u := *b.baseURL
	merged := u.Query()
	for k, vs := range q {
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}

// normalizeTimes reformats the stored fields to YYYY-MM-DD and HH:MM,
// accepting HH:MM:SS for times.
func normalizeTimes(slot *model.Slot) (string, string, string, error) {
	d, err := time.Parse(model.DateLayout, slot.Date)
	if err != nil {
		return "", "", "", fmt.Errorf("checkout: invalid slot date %q: %w", slot.Date, err)
	}
	start, err := normalizeClock(slot.StartTime)
	if err != nil {
		return "", "", "", err
	}
	end, err := normalizeClock(slot.EndTime)
	if err != nil {
		return "", "", "", err
	}
	return d.Format(model.DateLayout), start, end, nil
}

func normalizeClock(value string) (string, error) {
	for _, layout := range []string{model.TimeLayout, "15:04:05", "3:04PM", "3:04 PM"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format(model.TimeLayout), nil
		}
	}
	return "", fmt.Errorf("checkout: invalid slot time %q", value)
}

func currency(slot *model.Slot) string {
	if slot.Currency != "" {
		return slot.Currency
	}
	return slot.Kind.DefaultCurrency()
}

func contact(sess *session.Session) model.Contact {
	if sess == nil {
		return model.Contact{}
	}
	return model.Contact{
		UserID: sess.UserID,
		Name:   sess.Name,
		Email:  sess.Email,
		Phone:  sess.Phone,
	}
}
