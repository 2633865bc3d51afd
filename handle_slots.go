package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"

	"github.com/ziyixi/slotify/slot"
)

func HandleListSlots(c *gin.Context) {
	slots, err := getStorage(c).ListSlots()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, slots)
}

func HandleGetSlot(c *gin.Context) {
	sl, err := getStorage(c).GetSlot(c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Slot not found", "")
		return
	}
	c.JSON(http.StatusOK, sl)
}

func HandleCreateSlot(c *gin.Context) {
	jsonRaw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to read request body: %v", err)})
		return
	}

	req, err := normalizeSlotRequest(string(jsonRaw))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sl, err := getStorage(c).AllocateSlot(req)
	if err != nil {
		respondStoreError(c, err, "Resource not found", "")
		return
	}
	c.JSON(http.StatusCreated, sl)
}

func HandleDeleteSlot(c *gin.Context) {
	if err := getStorage(c).DeleteSlot(c.Param("id")); err != nil {
		respondStoreError(c, err, "Slot not found", "")
		return
	}
	c.Status(http.StatusNoContent)
}

// normalizeSlotRequest is the one boundary stage that turns a loosely shaped
// JSON body into a well-typed allocation request: empty strings read as
// absent, count defaults to 1, and usedAt accepts the date formats the
// day-granular clients send. Everything past this point sees typed values.
func normalizeSlotRequest(body string) (slot.Request, error) {
	req := slot.Request{
		PhoneID: gjson.Get(body, "phoneId").String(),
		IPID:    gjson.Get(body, "ipId").String(),
		Count:   1,
	}

	if count := gjson.Get(body, "count"); count.Exists() {
		req.Count = int(count.Int())
	}

	usedAt := gjson.Get(body, "usedAt")
	if !usedAt.Exists() || usedAt.String() == "" {
		return slot.Request{}, slot.ErrMissingUsedAt
	}
	parsed, err := parseUsedAt(usedAt.String())
	if err != nil {
		return slot.Request{}, err
	}
	req.UsedAt = parsed

	return req, nil
}

func parseUsedAt(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid usedAt value %q, expected an RFC 3339 timestamp or YYYY-MM-DD", raw)
}
