package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/fairyhunter13/pantry-pilot/internal/errors"
	httpopenapi "github.com/fairyhunter13/pantry-pilot/internal/http/openapi"
	"github.com/fairyhunter13/pantry-pilot/internal/mirror"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
	"github.com/fairyhunter13/pantry-pilot/internal/session"
)

// GenerationHeader carries the table generation row indexes were read from.
const GenerationHeader = "X-Mirror-Generation"

const maxBodyBytes = 1 << 20

type App struct {
	Session *session.Session
	Logger  *obs.Logger
	closing atomic.Bool
	started time.Time
}

type itemsResp struct {
	Generation string            `json:"generation"`
	Location   string            `json:"location"`
	Category   string            `json:"category"`
	Rows       []session.RowView `json:"rows"`
}

type optionsResp struct {
	session.Options
	Generation string `json:"generation"`
}

func NewApp(sess *session.Session, logg *obs.Logger) *App {
	if logg == nil {
		logg = obs.Nop()
	}
	return &App{Session: sess, Logger: logg, started: time.Now()}
}

// StartShutdown makes mutating endpoints refuse new work.
func (a *App) StartShutdown() { a.closing.Store(true) }

func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	WriteJSONError(r.Context(), a.Logger, w, err)
}

func (a *App) refuseWhileClosing(w http.ResponseWriter, r *http.Request) bool {
	if !a.closing.Load() {
		return false
	}
	a.fail(w, r, apperrors.New(apperrors.CodeShuttingDown, "shutting down"))
	return true
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	st := a.Session.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"loaded":     st.Loaded,
		"sync_state": st.State,
		"uptime_sec": time.Since(a.started).Seconds(),
	})
}

func (a *App) optionsHandler(w http.ResponseWriter, r *http.Request) {
	opts, err := a.Session.FilterOptions()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, optionsResp{Options: opts, Generation: a.Session.Generation()})
}

func (a *App) categoriesHandler(w http.ResponseWriter, r *http.Request) {
	location := pathParam(r, "location")
	cats, err := a.Session.CategoriesFor(location)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"location": location, "categories": cats})
}

// listItemsHandler lists one location/category pair. Without query
// parameters it falls back to the default selection.
func (a *App) listItemsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	location, category := strings.TrimSpace(q.Get("location")), strings.TrimSpace(q.Get("category"))
	if location == "" && category == "" {
		var err error
		if location, category, err = a.Session.DefaultSelection(); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	rows, err := a.Session.Rows(location, category)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemsResp{
		Generation: a.Session.Generation(),
		Location:   location,
		Category:   category,
		Rows:       rows,
	})
}

func (a *App) incrementHandler(w http.ResponseWriter, r *http.Request) {
	a.mutateAt(w, r, a.Session.RequestIncrement)
}

func (a *App) decrementHandler(w http.ResponseWriter, r *http.Request) {
	a.mutateAt(w, r, a.Session.RequestDecrement)
}

type indexMutation func(ctx context.Context, gen string, index int) (session.Outcome, error)

func (a *App) mutateAt(w http.ResponseWriter, r *http.Request, op indexMutation) {
	if a.refuseWhileClosing(w, r) {
		return
	}
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		a.fail(w, r, apperrors.New(apperrors.CodeValidation, "index must be an integer").
			WithDetails(map[string]any{"index": raw}))
		return
	}
	out, err := op(r.Context(), r.Header.Get(GenerationHeader), index)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) addItemHandler(w http.ResponseWriter, r *http.Request) {
	if a.refuseWhileClosing(w, r) {
		return
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSON(w, http.StatusUnsupportedMediaType, jsonError{
			Error:     "UNSUPPORTED_MEDIA_TYPE",
			Message:   "expected application/json",
			RequestID: RequestIDFromContext(r.Context()),
		})
		return
	}
	var in mirror.NewItem
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		a.fail(w, r, apperrors.Wrap(apperrors.CodeValidation, err, "invalid json body").
			WithDetails(map[string]any{"reason": err.Error()}))
		return
	}
	out, err := a.Session.RequestAdd(r.Context(), in)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/items/"+strconv.Itoa(out.Index))
	writeJSON(w, http.StatusCreated, out)
}

func (a *App) syncHandler(w http.ResponseWriter, r *http.Request) {
	res, err := a.Session.Sync(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result": res,
		"status": a.Session.Status(),
	})
}

func (a *App) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if a.refuseWhileClosing(w, r) {
		return
	}
	if err := a.Session.Reload(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Session.Status())
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(httpopenapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Pantry Pilot API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}

// pathParam returns a decoded chi URL parameter.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}
