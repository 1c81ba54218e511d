package link

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"shortlink/engine"
	h "shortlink/helpers"
	"shortlink/links"
	"shortlink/ratelimit"
)

// Link handler contains dependencies for link endpoints.
type Link struct {
	Engine    *engine.Engine
	Limiter   *ratelimit.Limiter
	Decisions ratelimit.StatsStore
	Identity  *Identifier
	Log       *zap.Logger
	BaseHost  string
}

func New(eng *engine.Engine, limiter *ratelimit.Limiter, decisions ratelimit.StatsStore, id *Identifier, log *zap.Logger, baseHost string) *Link {
	return &Link{
		Engine:    eng,
		Limiter:   limiter,
		Decisions: decisions,
		Identity:  id,
		Log:       log,
		BaseHost:  baseHost,
	}
}

type createResponse struct {
	Code     string `json:"code"`
	ShortURL string `json:"short_url"`
}

type dailyClicks struct {
	Day    string `json:"day"`
	Clicks int64  `json:"clicks"`
}

type statsResponse struct {
	Code      string        `json:"code"`
	URL       string        `json:"url"`
	Total     int64         `json:"total"`
	CreatedAt string        `json:"created_at"`
	Daily     []dailyClicks `json:"daily"`
}

// POST /api/v1/links
func (l *Link) Create(c echo.Context) error {
	var req struct {
		URL string `json:"url" validate:"required"`
	}
	if ok, err := h.BindAndValidate(c, &req); !ok {
		return err
	}

	client, err := l.Identity.Client(c)
	if err != nil {
		return h.JSONError(c, http.StatusUnauthorized, "invalid bearer token")
	}

	ctx := c.Request().Context()
	rec, err := l.Engine.Shorten(ctx, req.URL, client)
	l.recordDecision(client.Identity, !errors.Is(err, links.ErrRateLimited))
	l.rateHeaders(c, client.Identity)
	if errors.Is(err, links.ErrRateLimited) {
		retry := 1
		if l.Limiter != nil {
			retry = retryAfter(l.Limiter.Profile(client.Identity.Class))
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
	}
	if err != nil {
		return l.fail(c, err)
	}

	short := h.BuildShortURL(c, l.BaseHost, rec.Code)
	c.Response().Header().Set("Location", short)

	return c.JSON(http.StatusCreated, createResponse{Code: rec.Code, ShortURL: short})
}

// GET /:code  and HEAD
func (l *Link) Redirect(c echo.Context) error {
	code := c.Param("code")

	url, err := l.Engine.Resolve(c.Request().Context(), code, h.Fingerprint(c))
	if err != nil {
		return l.fail(c, err)
	}
	return c.Redirect(http.StatusFound, url)
}

// GET /api/v1/links/:code/stats
func (l *Link) Stats(c echo.Context) error {
	code := c.Param("code")

	st, err := l.Engine.Stats(c.Request().Context(), code)
	if err != nil {
		return l.fail(c, err)
	}

	resp := statsResponse{
		Code:      st.Record.Code,
		URL:       st.Record.OriginalURL,
		Total:     st.Record.ClickCount,
		CreatedAt: st.Record.CreatedAt.UTC().Format(time.RFC3339),
		Daily:     make([]dailyClicks, 0, len(st.Daily)),
	}
	for _, d := range st.Daily {
		resp.Daily = append(resp.Daily, dailyClicks{Day: d.Day.Format("2006-01-02"), Clicks: d.Clicks})
	}
	return c.JSON(http.StatusOK, resp)
}

func (l *Link) fail(c echo.Context, err error) error {
	code, msg := status(err)
	if code >= http.StatusInternalServerError {
		l.Log.Error("request failed", zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
	}
	if c.Request().Method == http.MethodHead {
		return c.NoContent(code)
	}
	return h.JSONError(c, code, msg)
}

func (l *Link) rateHeaders(c echo.Context, id ratelimit.Identity) {
	if l.Limiter == nil {
		return
	}
	c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Limiter.Profile(id.Class).Capacity))
	c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(l.Limiter.Remaining(id)))
}

// recordDecision reports to the stats store off the request path.
func (l *Link) recordDecision(id ratelimit.Identity, allowed bool) {
	if l.Decisions == nil {
		return
	}
	d := ratelimit.Decision{Identity: id, Allowed: allowed, At: time.Now()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.Decisions.Record(ctx, d); err != nil {
			l.Log.Debug("rate limit stats not recorded", zap.String("identity", d.Identity.Key), zap.Error(err))
		}
	}()
}
