package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// StaticHandler serves the built dashboard SPA. Unknown page paths get
// index.html so client-side routing works; unknown API paths get a JSON 404.
type StaticHandler struct {
	root string
}

func NewStaticHandler(root string) *StaticHandler {
	return &StaticHandler{root: root}
}

func (h *StaticHandler) Serve(c *gin.Context) {
	p := c.Request.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}

	file := filepath.Join(h.root, filepath.FromSlash(path.Clean("/"+p)))
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		c.File(file)
		return
	}

	index := filepath.Join(h.root, "index.html")
	if _, err := os.Stat(index); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.File(index)
}
