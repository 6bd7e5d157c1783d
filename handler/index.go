package handler

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
)

//go:embed web/index.html
var webFS embed.FS

var indexTemplate = template.Must(template.ParseFS(webFS, "web/index.html"))

type indexCamera struct {
	Name  string
	Title string
	URL   string
}

type indexPage struct {
	Title   string
	Heading string
	Cameras []indexCamera
}

// IndexHandler 首页，展示所有摄像头画面
type IndexHandler struct {
	page indexPage
}

func NewIndexHandler(cameras []string) *IndexHandler {
	page := indexPage{
		Title:   "UGCV",
		Heading: "Real Time Human Detection Tracking and Elimination",
	}
	for _, name := range cameras {
		page.Cameras = append(page.Cameras, indexCamera{Name: name, Title: name, URL: "/" + name})
	}
	return &IndexHandler{page: page}
}

func (h *IndexHandler) Index(c *gin.Context) {
	c.Render(http.StatusOK, render.HTML{
		Template: indexTemplate,
		Name:     "index.html",
		Data:     h.page,
	})
}
