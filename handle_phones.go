package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ziyixi/slotify/store"
)

type createPhoneRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Email       string `json:"email"`
	Remark      string `json:"remark"`
}

type updatePhoneRequest struct {
	PhoneNumber *string `json:"phoneNumber"`
	Email       *string `json:"email"`
	Remark      *string `json:"remark"`
}

func HandleListPhones(c *gin.Context) {
	phones, err := getStorage(c).ListPhones()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, phones)
}

func HandleGetPhone(c *gin.Context) {
	phone, err := getStorage(c).GetPhone(c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Phone not found", "")
		return
	}
	c.JSON(http.StatusOK, phone)
}

func HandleCreatePhone(c *gin.Context) {
	var req createPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Validation error: %v", err)})
		return
	}

	phone := &store.Phone{
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Remark:      req.Remark,
	}
	if err := getStorage(c).CreatePhone(phone); err != nil {
		respondStoreError(c, err, "Phone not found", "Phone number already exists")
		return
	}
	c.JSON(http.StatusCreated, phone)
}

func HandleUpdatePhone(c *gin.Context) {
	var req updatePhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Validation error: %v", err)})
		return
	}

	phone, err := getStorage(c).UpdatePhone(c.Param("id"), store.PhoneUpdate{
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Remark:      req.Remark,
	})
	if err != nil {
		respondStoreError(c, err, "Phone not found", "Phone number already exists")
		return
	}
	c.JSON(http.StatusOK, phone)
}

func HandleDeletePhone(c *gin.Context) {
	if err := getStorage(c).DeletePhone(c.Param("id")); err != nil {
		respondStoreError(c, err, "Phone not found", "")
		return
	}
	c.Status(http.StatusNoContent)
}

func HandlePhoneUsage(c *gin.Context) {
	asOf, err := parseAsOf(c.Query("asOf"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	usage, err := getStorage(c).PhoneUsage(c.Param("id"), asOf)
	if err != nil {
		respondStoreError(c, err, "Phone not found", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

// parseAsOf interprets the optional asOf query parameter, accepting a bare
// date or a full RFC 3339 timestamp. Empty means "now".
func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid asOf value %q, expected YYYY-MM-DD or RFC 3339", raw)
}
