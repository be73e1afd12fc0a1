package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "licensedesk/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_UsesAppErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"slot taken", apperrors.SlotTaken("s1"), http.StatusConflict, apperrors.CodeSlotTaken},
		{"slot expired", apperrors.SlotExpired("s1"), http.StatusGone, apperrors.CodeSlotExpired},
		{"auth required", apperrors.AuthRequired("sign in"), http.StatusUnauthorized, apperrors.CodeAuthRequired},
		{"validation", apperrors.Validation("bad", nil), http.StatusUnprocessableEntity, apperrors.CodeValidation},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteError(rec, tt.err))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestWriteError_CarriesPurgeDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteError(rec, apperrors.SlotTaken("abc")))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "abc", body.Details["slot_id"])
	assert.Equal(t, true, body.Details["purge"])
}

func TestExtractLimitOffset(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=5&offset=10", nil)
	limit, offset, err := ExtractLimitOffset(req)
	require.NoError(t, err)
	assert.Equal(t, 5, limit)
	assert.Equal(t, int64(10), offset)

	req = httptest.NewRequest(http.MethodGet, "/x?limit=abc", nil)
	_, _, err = ExtractLimitOffset(req)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidInput))
}
