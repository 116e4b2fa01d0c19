package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"checkin/internal/attendance"
	"checkin/internal/auth"
	"checkin/internal/export"
	"checkin/internal/feed"
	"checkin/internal/view"
)

// Settings are the presentation options of the API.
type Settings struct {
	HasGenderField bool
	PageSize       int
	RecentWindow   time.Duration
	LookupDebounce time.Duration
	MinPhoneLength int
	PublicURL      string
	ExportPrefix   string
}

// Handler serves the check-in form, display, dashboard and admin endpoints.
type Handler struct {
	mgr      *attendance.Manager
	bus      feed.Bus
	settings Settings
	lookups  *kioskLookups
	now      func() time.Time
}

// New creates a handler. bus may be nil, which disables the change stream.
func New(mgr *attendance.Manager, bus feed.Bus, settings Settings) *Handler {
	if settings.PageSize <= 0 {
		settings.PageSize = view.DefaultPageSize
	}
	if settings.RecentWindow <= 0 {
		settings.RecentWindow = view.RecentWindow
	}
	return &Handler{
		mgr:      mgr,
		bus:      bus,
		settings: settings,
		lookups:  newKioskLookups(mgr, settings.LookupDebounce, settings.MinPhoneLength),
		now:      time.Now,
	}
}

// Register mounts the routes. limiter guards the check-in submission and may be nil.
func (h *Handler) Register(r gin.IRouter, limiter gin.HandlerFunc) {
	v1 := r.Group("/v1")
	if limiter != nil {
		v1.POST("/checkins", limiter, h.Submit)
	} else {
		v1.POST("/checkins", h.Submit)
	}
	v1.GET("/checkins", h.List)
	v1.GET("/checkins/lookup", h.Lookup)
	v1.GET("/stats", h.Stats)
	v1.GET("/display", h.Display)
	v1.GET("/stream", h.Stream)
	v1.GET("/export.csv", h.ExportCSV)
	v1.GET("/export.xlsx", h.ExportXLSX)
	v1.GET("/qr.png", h.QRCode)
	v1.POST("/checkins/clear", h.ClearAll)

	admin := v1.Group("", auth.AdminKey(h.mgr))
	admin.DELETE("/checkins", h.DeleteMany)
}

// Close releases pending phone lookups.
func (h *Handler) Close() {
	h.lookups.closeAll()
}

// ---------- Check-in form ----------

type submitRequest struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	OtherNames string `json:"other_names"`
	Phone      string `json:"phone"`
	Gender     string `json:"gender"`
}

// Submit handles POST /v1/checkins.
func (h *Handler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	sub := attendance.Submission{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		OtherNames: req.OtherNames,
		Phone:      req.Phone,
	}
	if h.settings.HasGenderField {
		sub.Gender = attendance.Gender(req.Gender)
	}

	entry, res := h.mgr.Submit(c.Request.Context(), sub)
	switch res.Outcome {
	case attendance.OutcomeSuccess:
		c.JSON(http.StatusCreated, gin.H{"entry": entry, "message": "Your attendance has been recorded."})
	case attendance.OutcomeInvalid:
		body := gin.H{"error": res.Err.Error()}
		var verr *attendance.ValidationError
		if errors.As(res.Err, &verr) {
			body["fields"] = verr.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case attendance.OutcomeDuplicate:
		c.JSON(http.StatusConflict, gin.H{"error": "This phone number has already been registered for today."})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to record attendance"})
	}
}

// Lookup handles GET /v1/checkins/lookup?phone=. Lookups are debounced per kiosk
// (X-Kiosk-ID header, client IP otherwise); a superseded lookup answers 204.
func (h *Handler) Lookup(c *gin.Context) {
	kiosk := c.GetHeader("X-Kiosk-ID")
	if kiosk == "" {
		kiosk = c.ClientIP()
	}
	ctx := c.Request.Context()
	ch := h.lookups.get(kiosk, h.now()).Request(ctx, c.Query("phone"))

	var res attendance.LookupResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return
	}
	switch {
	case res.Stale:
		c.Status(http.StatusNoContent)
	case res.Err != nil:
		log.Printf("phone lookup failed: %v", res.Err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "lookup failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"phone": res.Phone, "registered": res.Entry != nil, "entry": res.Entry})
	}
}

// ---------- Table, dashboard and display ----------

func (h *Handler) pager(c *gin.Context) *view.Pager {
	size := h.settings.PageSize
	if v := c.Query("page_size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = min(parsed, 100)
		}
	}
	p := view.NewPager(size)
	// prev_q and prev_gender name the filter the client's page index belongs to. Without
	// them the page is taken to belong to the current filter.
	if v, ok := c.GetQuery("prev_q"); ok {
		p.SetSearch(v)
	} else {
		p.SetSearch(c.Query("q"))
	}
	if v, ok := c.GetQuery("prev_gender"); ok {
		p.SetGender(view.ParseGenderFilter(v))
	} else {
		p.SetGender(view.ParseGenderFilter(c.Query("gender")))
	}
	if v := c.Query("page"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			p.SetPage(parsed)
		}
	}
	p.SetSearch(c.Query("q"))
	p.SetGender(view.ParseGenderFilter(c.Query("gender")))
	return p
}

// List handles GET /v1/checkins?q=&gender=&page=&page_size=. A client that changed q or
// gender since its last request passes the old values as prev_q and prev_gender, and the
// page goes back to 1.
func (h *Handler) List(c *gin.Context) {
	p := h.pager(c)
	page := p.Apply(h.mgr.Entries())
	c.JSON(http.StatusOK, gin.H{
		"q":      p.Search(),
		"gender": p.Gender(),
		"page":   page,
	})
}

// Stats handles GET /v1/stats. Totals cover every entry; the feed and the filtered
// count follow the search and gender filter.
func (h *Handler) Stats(c *gin.Context) {
	entries := h.mgr.Entries()
	filtered := h.pager(c).Filter(entries)
	stats := view.ComputeStats(entries, h.now(), h.settings.RecentWindow)
	c.JSON(http.StatusOK, gin.H{
		"stats":     stats,
		"breakdown": view.GenderBreakdown(stats),
		"filtered":  len(filtered),
		"recent":    view.Recent(filtered, view.DashboardFeed),
	})
}

type displayItem struct {
	attendance.Entry
	Initials string `json:"initials"`
}

// Display handles GET /v1/display, the projector view.
func (h *Handler) Display(c *gin.Context) {
	entries := h.mgr.Entries()
	now := h.now()
	feedEntries := view.Recent(h.pager(c).Filter(entries), view.DisplayFeed)
	items := make([]displayItem, 0, len(feedEntries))
	for _, e := range feedEntries {
		items = append(items, displayItem{Entry: e, Initials: view.Initials(e.FirstName, e.LastName)})
	}
	stats := view.ComputeStats(entries, now, h.settings.RecentWindow)
	c.JSON(http.StatusOK, gin.H{
		"generated_at": now.UTC(),
		"stats":        stats,
		"breakdown":    view.GenderBreakdown(stats),
		"feed":         items,
	})
}

// Stream handles GET /v1/stream with server-sent change events.
func (h *Handler) Stream(c *gin.Context) {
	if h.bus == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "change stream not configured"})
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	changes, unsubscribe, err := h.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("stream subscribe failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "change stream unavailable"})
		return
	}
	defer unsubscribe()

	keepAlive := time.NewTicker(25 * time.Second)
	defer keepAlive.Stop()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case change, ok := <-changes:
			if !ok {
				return false
			}
			c.SSEvent("change", change)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", h.now().UTC().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// ---------- Export ----------

func (h *Handler) exportRows(c *gin.Context) ([]attendance.Entry, export.Schema) {
	rows := h.pager(c).Filter(h.mgr.Entries())
	if c.Query("full") == "1" {
		return rows, export.FullSchema()
	}
	return rows, export.BasicSchema(h.settings.HasGenderField)
}

// ExportCSV handles GET /v1/export.csv.
func (h *Handler) ExportCSV(c *gin.Context) {
	rows, schema := h.exportRows(c)
	name := export.Filename(h.settings.ExportPrefix, h.now(), "csv")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", export.CSV(rows, schema))
}

// ExportXLSX handles GET /v1/export.xlsx.
func (h *Handler) ExportXLSX(c *gin.Context) {
	rows, schema := h.exportRows(c)
	buf, err := export.XLSX(rows, schema)
	if err != nil {
		log.Printf("xlsx export failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	name := export.Filename(h.settings.ExportPrefix, h.now(), "xlsx")
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// QRCode handles GET /v1/qr.png?size=, a code pointing attendees at the check-in page.
func (h *Handler) QRCode(c *gin.Context) {
	size := 256
	if v := c.Query("size"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			size = min(max(parsed, 128), 1024)
		}
	}
	png, err := qrcode.Encode(h.settings.PublicURL, qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// ---------- Admin ----------

type deleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// DeleteMany handles DELETE /v1/checkins (admin key required).
func (h *Handler) DeleteMany(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"ids\": [...]}"})
		return
	}
	res := h.mgr.DeleteMany(c.Request.Context(), req.IDs)
	if !res.OK() {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to delete records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"requested": len(req.IDs), "remaining": h.mgr.Len()})
}

type clearRequest struct {
	AdminKey string `json:"admin_key"`
}

// ClearAll handles POST /v1/checkins/clear. The key travels in the body so a wrong key
// can be retried from the same dialog.
func (h *Handler) ClearAll(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	res := h.mgr.ClearAll(c.Request.Context(), req.AdminKey)
	switch res.Outcome {
	case attendance.OutcomeSuccess:
		c.JSON(http.StatusOK, gin.H{"cleared": true, "message": "All attendance records have been cleared."})
	case attendance.OutcomeForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": "Incorrect admin key. Please try again."})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to clear records"})
	}
}
