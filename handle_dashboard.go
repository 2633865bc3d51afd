package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// resourceUsage is one row of the dashboard's per-resource gauges.
type resourceUsage struct {
	ID           string  `json:"id"`
	Key          string  `json:"key"`
	Usage        int     `json:"usage"`
	Remaining    int     `json:"remaining"`
	UsagePercent float64 `json:"usagePercent"`
	AtCapacity   bool    `json:"atCapacity"`
}

// HandleDashboardSummary aggregates the counts and per-resource window usage
// the dashboard renders. Usage is recomputed from the ledger on every call.
func HandleDashboardSummary(c *gin.Context) {
	storage := getStorage(c)
	policy := storage.Policy()
	now := time.Now()

	phones, err := storage.ListPhones()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ips, err := storage.ListIPs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	slots, err := storage.ListSlots()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	phoneUsage := make([]resourceUsage, 0, len(phones))
	for _, phone := range phones {
		usage, err := storage.PhoneUsage(phone.ID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		phoneUsage = append(phoneUsage, resourceUsage{
			ID:           phone.ID,
			Key:          phone.PhoneNumber,
			Usage:        usage,
			Remaining:    policy.Remaining(usage),
			UsagePercent: policy.UsagePercent(usage),
			AtCapacity:   policy.AtCapacity(usage),
		})
	}

	ipUsage := make([]resourceUsage, 0, len(ips))
	for _, ip := range ips {
		usage, err := storage.IPUsage(ip.ID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		ipUsage = append(ipUsage, resourceUsage{
			ID:           ip.ID,
			Key:          ip.IPAddress,
			Usage:        usage,
			Remaining:    policy.Remaining(usage),
			UsagePercent: policy.UsagePercent(usage),
			AtCapacity:   policy.AtCapacity(usage),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"phones":     len(phones),
		"ips":        len(ips),
		"slots":      len(slots),
		"phoneUsage": phoneUsage,
		"ipUsage":    ipUsage,
		"limit":      policy.Limit,
		"windowDays": policy.WindowDays,
	})
}
