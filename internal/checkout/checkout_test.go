package checkout

import (
	"net/url"
	"testing"

	"licensedesk/internal/session"
	"licensedesk/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	b, err := NewBuilder("https://app.example.pk/checkout?src=slots", "pending_voucher_checkout")
	require.NoError(t, err)
	return b
}

func TestBuild_AppointmentRedirect(t *testing.T) {
	b := newBuilder(t)
	slot := &model.Slot{
		ID:        "665f1c2e8a1b2c3d4e5f6a7b",
		Kind:      model.KindAppointment,
		Date:      "2025-06-01",
		StartTime: "09:00:00",
		EndTime:   "11:00",
		Price:     model.MustPrice("4500.00"),
	}
	hold := model.Hold{ID: "h1"}

	h, err := b.Build(slot, hold, &session.Session{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, model.HandoffRedirect, h.Mode)
	assert.Nil(t, h.Payload)

	u, err := url.Parse(h.URL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "/checkout", u.Path)
	assert.Equal(t, "slots", q.Get("src"), "base query is preserved")
	assert.Equal(t, slot.ID, q.Get("slot_id"))
	assert.Equal(t, "h1", q.Get("hold_id"))
	assert.Equal(t, "4500", q.Get("price"))
	assert.Equal(t, "PKR", q.Get("currency"))
	assert.Equal(t, "2025-06-01", q.Get("date"))
	assert.Equal(t, "09:00", q.Get("start_time"))
	assert.Equal(t, "11:00", q.Get("end_time"))
}

func TestBuild_VoucherStorage(t *testing.T) {
	b := newBuilder(t)
	slot := &model.Slot{
		ID:        "665f1c2e8a1b2c3d4e5f6a7b",
		Kind:      model.KindVoucher,
		Date:      "2025-06-01",
		StartTime: "9:00 AM",
		EndTime:   "11:00",
		Authority: "NCLEX",
		Price:     model.MustPrice("200"),
		Currency:  model.CurrencyUSD,
		Holds:     []model.Hold{{ID: "h1"}},
	}
	sess := &session.Session{UserID: "u1", Name: "Ayesha", Email: "ayesha@example.pk", Phone: "+923001234567"}

	h, err := b.Build(slot, model.Hold{ID: "h1"}, sess)
	require.NoError(t, err)
	assert.Equal(t, model.HandoffStorage, h.Mode)
	assert.Equal(t, "pending_voucher_checkout", h.StorageKey)
	require.NotNil(t, h.Payload)
	assert.Equal(t, "h1", h.Payload.HoldID)
	assert.Equal(t, "09:00", h.Payload.Slot.StartTime)
	assert.Equal(t, "NCLEX", h.Payload.Slot.Authority)
	assert.Empty(t, h.Payload.Slot.Holds)
	assert.Equal(t, model.Contact{UserID: "u1", Name: "Ayesha", Email: "ayesha@example.pk", Phone: "+923001234567"}, h.Payload.Contact)
	assert.Len(t, slot.Holds, 1, "the source slot is not modified")
}

func TestBuild_InvalidTimes(t *testing.T) {
	b := newBuilder(t)
	_, err := b.Build(&model.Slot{Kind: model.KindCall, Date: "tomorrow", StartTime: "09:00", EndTime: "10:00"}, model.Hold{}, nil)
	assert.Error(t, err)
}

func TestNewBuilder_Validation(t *testing.T) {
	_, err := NewBuilder("/relative", "k")
	assert.Error(t, err)
	_, err = NewBuilder("https://x.pk", "")
	assert.Error(t, err)
}
