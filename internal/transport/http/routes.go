package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// our logger (after RequestID)
	r.Use(RequestLogger)

	r.Get("/health", h.Health)

	r.Post("/upload", h.Upload)
	r.Get("/status/{id}", h.Status)
	r.Post("/convert/{id}", h.Convert)
	r.Get("/result/{id}", h.Result)
	r.Get("/pdf/{id}", h.GetPDF)

	r.Post("/download-chunk", h.DownloadChunk)
	r.Post("/download-chunked", h.DownloadChunked)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return r
}
