// Webhook surface: POST /events , GET /healthz
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"thing-sync/internal/core/events"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Processor handles one decoded event to its terminal outcome.
type Processor interface {
	Process(ctx context.Context, raw events.Raw) error
}

type Handler struct {
	proc Processor
	lg   zerolog.Logger
}

func New(proc Processor, lg zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	h := &Handler{proc: proc, lg: lg}

	// --- API Routes ---
	r.Post("/events", h.handleEvent)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// --- Swagger Docs Route ---
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", httpSwagger.WrapHandler)

	return r
}

// handleEvent ingests one device-lifecycle event.
// @Summary      Ingest a device-lifecycle event
// @Description  Classifies the event from its headers and JSON body and reconciles the thing registry. Redeliveries are safe.
// @Tags         events
// @Accept       json
// @Success      204  {string}  string "No Content"
// @Failure      400  {string}  string "Bad Request"
// @Failure      500  {string}  string "Internal Server Error"
// @Router       /events [post]
func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	raw := events.Raw{Headers: flatten(r.Header), Body: body}
	if err := h.proc.Process(r.Context(), raw); err != nil {
		var verr *events.ValidationError
		if errors.As(err, &verr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.lg.Error().Err(err).Msg("process event")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// flatten reduces HTTP headers to the classifier's normalized key space.
func flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return events.NormalizeHeaders(out)
}
