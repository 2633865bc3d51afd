// Package utils provides shared helpers for the slotify application:
// middleware, authenticated HTTP probing, and common parsing helpers.
package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
)

// FetchWithBasicAuth makes an HTTP GET request with Basic Auth and returns the
// parsed JSON body plus the status code. The healthcheck mode uses it to probe
// a running instance.
func FetchWithBasicAuth(url, username, password string) (interface{}, int, error) {
	client := resty.New().SetTimeout(10 * time.Second)

	resp, err := client.R().
		SetBasicAuth(username, password).
		Get(url)
	if err != nil {
		return nil, 0, fmt.Errorf("error making HTTP request to %s: %w", url, err)
	}

	var result interface{}
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &result); err != nil {
			return nil, resp.StatusCode(), fmt.Errorf("error unmarshalling JSON: %w", err)
		}
	}
	return result, resp.StatusCode(), nil
}

// RateLimitMiddleware limits the number of requests per minute across the
// routes it is attached to. A limit of 0 or less disables it.
func RateLimitMiddleware(perMinute int) gin.HandlerFunc {
	var mu sync.Mutex
	requestsCount := 0
	resetTime := time.Now().Add(1 * time.Minute)

	return func(c *gin.Context) {
		if perMinute <= 0 {
			c.Next()
			return
		}

		mu.Lock()
		defer mu.Unlock()

		if time.Now().After(resetTime) {
			requestsCount = 0
			resetTime = time.Now().Add(1 * time.Minute)
		}

		if requestsCount >= perMinute {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Too many requests. Please wait for the next minute.",
			})
			c.Abort()
			return
		}

		requestsCount++
		c.Next()
	}
}
