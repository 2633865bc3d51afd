package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ziyixi/slotify/slot"
	"github.com/ziyixi/slotify/store"
	"github.com/ziyixi/slotify/utils"
)

// storageMiddleware makes the storage available to handlers through the gin
// context.
func storageMiddleware(storage *store.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(utils.KeyStorage, storage)
		c.Next()
	}
}

// basicAuthMiddleware gates the API behind a credential check against the
// users table, so password changes take effect without a restart.
func basicAuthMiddleware(storage *store.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="slotify"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if _, err := storage.Authenticate(username, password); err != nil {
			c.Header("WWW-Authenticate", `Basic realm="slotify"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.Set(utils.KeyUsername, username)
		c.Next()
	}
}

// getStorage pulls the storage handle handlers expect from the context.
func getStorage(c *gin.Context) *store.Storage {
	return c.MustGet(utils.KeyStorage).(*store.Storage)
}

// respondStoreError maps storage and policy errors onto HTTP statuses:
// validation and capacity rejections are 400, unknown ids 404, natural-key
// collisions 409, anything else a 500.
func respondStoreError(c *gin.Context, err error, notFoundMsg, conflictMsg string) {
	var limitErr *slot.LimitError

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
	case errors.Is(err, store.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": conflictMsg})
	case errors.As(err, &limitErr),
		errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrInvalidEmail),
		errors.Is(err, slot.ErrNoResource),
		errors.Is(err, slot.ErrAmbiguousResource),
		errors.Is(err, slot.ErrInvalidCount),
		errors.Is(err, slot.ErrMissingUsedAt):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
