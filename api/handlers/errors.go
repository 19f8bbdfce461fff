package handlers

import (
	"errors"
	"log"
	"net/http"

	"captiongram/services"

	"github.com/gin-gonic/gin"
)

var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{services.ErrNoImage, http.StatusBadRequest, "No image uploaded"},
	{services.ErrInvalidImage, http.StatusUnprocessableEntity, "Uploaded file is not a supported image"},
	{services.ErrForbidden, http.StatusForbidden, "You can only change captions of your own posts"},
	{services.ErrPostNotFound, http.StatusNotFound, "Post not found"},
	{services.ErrTimeout, http.StatusGatewayTimeout, "Upstream service timed out"},
	{services.ErrCaptionService, http.StatusBadGateway, "Caption generation failed"},
	{services.ErrStorageUpload, http.StatusBadGateway, "Image upload failed"},
	{services.ErrImageFetch, http.StatusBadGateway, "Could not read the stored image"},
	{services.ErrPersistence, http.StatusInternalServerError, "Could not save the post"},
}

// statusForError возвращает HTTP статус и текст для ошибки сценария
func statusForError(err error) (int, string) {
	var wfErr *services.WorkflowError
	if errors.As(err, &wfErr) {
		for _, e := range errorStatus {
			if errors.Is(wfErr.Kind, e.err) {
				return e.status, e.message
			}
		}
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "Internal server error"
}

func respondError(c *gin.Context, err error) {
	status, message := statusForError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"message": message, "error": services.ErrorKind(err)})
}

func currentUserID(c *gin.Context) (int64, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}
