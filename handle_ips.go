package main

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ziyixi/slotify/store"
)

type createIPRequest struct {
	IPAddress string `json:"ipAddress" binding:"required"`
	Port      string `json:"port" binding:"required"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Provider  string `json:"provider"`
	Remark    string `json:"remark"`
}

type updateIPRequest struct {
	IPAddress *string `json:"ipAddress"`
	Port      *string `json:"port"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	Provider  *string `json:"provider"`
	Remark    *string `json:"remark"`
}

func HandleListIPs(c *gin.Context) {
	ips, err := getStorage(c).ListIPs()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ips)
}

func HandleGetIP(c *gin.Context) {
	ip, err := getStorage(c).GetIP(c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "IP not found", "")
		return
	}
	c.JSON(http.StatusOK, ip)
}

func HandleCreateIP(c *gin.Context) {
	var req createIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Validation error: %v", err)})
		return
	}

	ip := &store.IP{
		IPAddress: req.IPAddress,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		Provider:  req.Provider,
		Remark:    req.Remark,
	}
	if err := getStorage(c).CreateIP(ip); err != nil {
		respondStoreError(c, err, "IP not found", "IP address already exists")
		return
	}
	c.JSON(http.StatusCreated, ip)
}

func HandleUpdateIP(c *gin.Context) {
	var req updateIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Validation error: %v", err)})
		return
	}

	ip, err := getStorage(c).UpdateIP(c.Param("id"), store.IPUpdate{
		IPAddress: req.IPAddress,
		Port:      req.Port,
		Username:  req.Username,
		Password:  req.Password,
		Provider:  req.Provider,
		Remark:    req.Remark,
	})
	if err != nil {
		respondStoreError(c, err, "IP not found", "IP address already exists")
		return
	}
	c.JSON(http.StatusOK, ip)
}

func HandleDeleteIP(c *gin.Context) {
	if err := getStorage(c).DeleteIP(c.Param("id")); err != nil {
		respondStoreError(c, err, "IP not found", "")
		return
	}
	c.Status(http.StatusNoContent)
}

func HandleIPUsage(c *gin.Context) {
	asOf, err := parseAsOf(c.Query("asOf"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	usage, err := getStorage(c).IPUsage(c.Param("id"), asOf)
	if err != nil {
		respondStoreError(c, err, "IP not found", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}
