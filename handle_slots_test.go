package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziyixi/slotify/slot"
)

func createTestPhone(t *testing.T, router *gin.Engine, number string) string {
	t.Helper()
	w, body := doJSON(t, router, http.MethodPost, "/api/phones", gin.H{"phoneNumber": number})
	require.Equal(t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func createTestIP(t *testing.T, router *gin.Engine, addr string) string {
	t.Helper()
	w, body := doJSON(t, router, http.MethodPost, "/api/ips", gin.H{"ipAddress": addr, "port": "8080"})
	require.Equal(t, http.StatusCreated, w.Code)
	return body["id"].(string)
}

func TestHandleCreateSlot(t *testing.T) {
	today := time.Now().Format("2006-01-02")

	t.Run("admits a phone allocation", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"count":   2,
			"usedAt":  today,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, phoneID, body["phoneId"])
		assert.Equal(t, float64(2), body["count"])
	})

	t.Run("count defaults to one", func(t *testing.T) {
		router, _ := newTestRouter(t)
		ipID := createTestIP(t, router, "203.0.113.5")

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"ipId":   ipID,
			"usedAt": today,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, float64(1), body["count"])
	})

	t.Run("empty-string references read as absent", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		// The day-granular UI sends the unused reference as "".
		w, _ := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"ipId":    "",
			"count":   1,
			"usedAt":  today,
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("neither reference is a 400", func(t *testing.T) {
		router, _ := newTestRouter(t)

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"count":  1,
			"usedAt": today,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body["error"], "phoneId or ipId is required")
	})

	t.Run("both references is a 400", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")
		ipID := createTestIP(t, router, "203.0.113.5")

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"ipId":    ipID,
			"count":   1,
			"usedAt":  today,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body["error"], "only one of")
	})

	t.Run("count out of range is a 400", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		for _, count := range []int{0, 5, -1} {
			w, _ := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
				"phoneId": phoneID,
				"count":   count,
				"usedAt":  today,
			})
			assert.Equal(t, http.StatusBadRequest, w.Code, "count=%d", count)
		}
	})

	t.Run("missing usedAt is a 400", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		w, _ := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"count":   1,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unparseable usedAt is a 400", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"count":   1,
			"usedAt":  "junk",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body["error"], "invalid usedAt")
	})

	t.Run("accepts RFC 3339 timestamps", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		w, _ := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID,
			"count":   1,
			"usedAt":  time.Now().Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("unknown resource is a 404", func(t *testing.T) {
		router, _ := newTestRouter(t)

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": "ghost",
			"count":   1,
			"usedAt":  today,
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Resource not found", body["error"])
	})

	t.Run("over-limit allocation is blocked with diagnostics", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		w, _ := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID, "count": 4, "usedAt": today,
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w, body := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID, "count": 1, "usedAt": today,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, body["error"], "Allocation blocked")
		assert.Contains(t, body["error"], "Current: 4, Adding: 1, Limit: 4")
	})
}

func TestHandleSlotsReadAndDelete(t *testing.T) {
	today := time.Now().Format("2006-01-02")

	t.Run("list and get", func(t *testing.T) {
		router, _ := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		_, created := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID, "count": 2, "usedAt": today,
		})
		id := created["id"].(string)

		w, body := doJSON(t, router, http.MethodGet, "/api/slots/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, body["id"])

		req, _ := doJSON(t, router, http.MethodGet, "/api/slots", nil)
		assert.Equal(t, http.StatusOK, req.Code)
	})

	t.Run("delete frees capacity", func(t *testing.T) {
		router, storage := newTestRouter(t)
		phoneID := createTestPhone(t, router, "13800138000")

		_, created := doJSON(t, router, http.MethodPost, "/api/slots", gin.H{
			"phoneId": phoneID, "count": 4, "usedAt": today,
		})
		id := created["id"].(string)

		w, _ := doJSON(t, router, http.MethodDelete, "/api/slots/"+id, nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		usage, err := storage.PhoneUsage(phoneID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, usage)
	})

	t.Run("deleting a missing slot is a 404", func(t *testing.T) {
		router, _ := newTestRouter(t)
		w, body := doJSON(t, router, http.MethodDelete, "/api/slots/ghost", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Slot not found", body["error"])
	})
}

func TestNormalizeSlotRequest(t *testing.T) {
	t.Run("bare date parses to midnight", func(t *testing.T) {
		req, err := normalizeSlotRequest(`{"phoneId":"p1","count":2,"usedAt":"2025-06-20"}`)
		require.NoError(t, err)
		assert.Equal(t, slot.Request{
			PhoneID: "p1",
			Count:   2,
			UsedAt:  time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
		}, req)
	})

	t.Run("absent count defaults to one", func(t *testing.T) {
		req, err := normalizeSlotRequest(`{"ipId":"i1","usedAt":"2025-06-20"}`)
		require.NoError(t, err)
		assert.Equal(t, 1, req.Count)
	})

	t.Run("empty usedAt is missing", func(t *testing.T) {
		_, err := normalizeSlotRequest(`{"phoneId":"p1","usedAt":""}`)
		assert.ErrorIs(t, err, slot.ErrMissingUsedAt)
	})
}
