package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type notePayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) handleMyNotes(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	list, err := h.notes.ListByOwner(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	note, err := h.notes.Create(c.Request.Context(), user.ID, request.Title, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	noteID, ok := parseID(c, "noteId")
	if !ok {
		return
	}

	note, err := h.notes.GetByID(c.Request.Context(), user.ID, noteID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	noteID, ok := parseID(c, "noteId")
	if !ok {
		return
	}

	var request notePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	note, err := h.notes.Update(c.Request.Context(), user.ID, noteID, request.Title, request.Content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	noteID, ok := parseID(c, "noteId")
	if !ok {
		return
	}

	if err := h.notes.Delete(c.Request.Context(), user.ID, noteID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted successfully"})
}

func (h *httpHandler) handleSearchNotes(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	list, err := h.notes.Search(c.Request.Context(), user.ID, c.Query("query"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleNotesCount(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	count, err := h.notes.Count(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// handleNotesByUserID lists any user's notes without authentication, returning
// 404 when the list is empty. This mirrors the upstream contract verbatim.
// TODO: this leaks any user's notes by id and contradicts the ownership model
// enforced everywhere else; remove or gate it once the frontend drops the call.
func (h *httpHandler) handleNotesByUserID(c *gin.Context) {
	userID, ok := parseID(c, "userId")
	if !ok {
		return
	}

	list, err := h.notes.ListByUserID(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(list) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no notes found for user"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func parseID(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(value), true
}
