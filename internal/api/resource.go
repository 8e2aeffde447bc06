package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"

	"go.uber.org/zap"

	"github.com/inesonic/speedsentry-dbc-sub001/internal/db"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/resourcecache"
	"github.com/inesonic/speedsentry-dbc-sub001/internal/store"
)

type resourceHandler struct {
	store *store.Store
	cache *resourcecache.Cache
	log   *zap.Logger
}

type resourceAvailableRequest struct {
	CustomerID uint32 `json:"customer_id"`
	ValueType  uint8  `json:"value_type"`
}

type resourceAvailableResponse struct {
	Available bool `json:"available"`
}

func (h *resourceHandler) Available(w http.ResponseWriter, r *http.Request) {
	var req resourceAvailableRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	has, err := h.cache.HasResourceData(r.Context(), "api.resource.available", req.CustomerID, req.ValueType)
	if err != nil {
		h.log.Error("check resource availability failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	ok(w, resourceAvailableResponse{Available: has})
}

type resourceCreateRequest struct {
	CustomerID uint32  `json:"customer_id"`
	ValueType  uint8   `json:"value_type"`
	Timestamp  uint64  `json:"timestamp"`
	Value      float64 `json:"value"`
}

// Create records one resource sample (spec §3's (customer, value type,
// value, timestamp1/timestamp2) tuple) and marks the value type present in
// the Resource Cache's bitset.
func (h *resourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req resourceCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tag := "api.resource.create"
	res := db.Resource{
		CustomerID: req.CustomerID,
		ValueType:  req.ValueType,
		Timestamp1: uint32(req.Timestamp / 3600),
		Timestamp2: uint32(req.Timestamp % 3600),
		Value:      req.Value,
	}
	if err := h.store.Resources.Insert(r.Context(), tag, &res); err != nil {
		h.log.Error("insert resource failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	h.cache.RecordResource(r.Context(), tag, req.CustomerID, req.ValueType)
	ok(w, nil)
}

type resourceListRequest struct {
	CustomerID uint32 `json:"customer_id"`
	ValueType  uint8  `json:"value_type"`
	FromTs1    uint32 `json:"from"`
	ToTs1      uint32 `json:"to"`
}

type resourceSampleResponse struct {
	Timestamp uint64  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type resourceListResponse struct {
	Samples []resourceSampleResponse `json:"samples"`
}

func (h *resourceHandler) List(w http.ResponseWriter, r *http.Request) {
	var req resourceListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	list, err := h.store.Resources.ListSeries(r.Context(), "api.resource.list", req.CustomerID, req.ValueType, req.FromTs1, req.ToTs1)
	if err != nil {
		h.log.Error("list resource series failed", zap.Error(err))
		failed(w, "database error")
		return
	}
	samples := make([]resourceSampleResponse, len(list))
	for i, res := range list {
		samples[i] = resourceSampleResponse{
			Timestamp: uint64(res.Timestamp1)*3600 + uint64(res.Timestamp2),
			Value:     res.Value,
		}
	}
	ok(w, resourceListResponse{Samples: samples})
}

// Purge triggers the Resource Cache's age-based purge immediately, outside
// its own periodic tick.
func (h *resourceHandler) Purge(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.cache.Purge(r.Context(), "api.resource.purge")
	if err != nil {
		failed(w, err.Error())
		return
	}
	ok(w, struct {
		CustomersEvicted int `json:"customers_evicted"`
	}{CustomersEvicted: evicted})
}

const (
	plotWidth  = 640
	plotHeight = 240
	plotMargin = 20
)

// Plot renders a single value-type series as a PNG line chart (spec §6:
// "/resource/plot: binary response (PNG/JPEG)"). No charting library in the
// ecosystem pool this module draws from covers this need (see DESIGN.md);
// the series is small enough that a hand-drawn polyline set pixel by pixel
// on an image.RGBA is the simplest correct rendering.
func (h *resourceHandler) Plot(w http.ResponseWriter, r *http.Request) {
	var req resourceListRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	samples, err := h.store.Resources.ListSeries(r.Context(), "api.resource.plot", req.CustomerID, req.ValueType, req.FromTs1, req.ToTs1)
	if err != nil {
		h.log.Error("list resource series for plot failed", zap.Error(err))
		failed(w, "database error")
		return
	}

	img := renderPlot(samples)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		h.log.Error("encode plot png failed", zap.Error(err))
		failed(w, "rendering error")
		return
	}
	binary(w, "image/png", buf.Bytes())
}

func renderPlot(samples []db.Resource) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	background := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < plotHeight; y++ {
		for x := 0; x < plotWidth; x++ {
			img.Set(x, y, background)
		}
	}
	if len(samples) < 2 {
		return img
	}

	minV, maxV := samples[0].Value, samples[0].Value
	for _, s := range samples {
		if s.Value < minV {
			minV = s.Value
		}
		if s.Value > maxV {
			maxV = s.Value
		}
	}
	if maxV == minV {
		maxV = minV + 1
	}

	line := color.RGBA{R: 30, G: 110, B: 220, A: 255}
	plotW := plotWidth - 2*plotMargin
	plotH := plotHeight - 2*plotMargin

	px := func(i int) int {
		return plotMargin + i*plotW/(len(samples)-1)
	}
	py := func(v float64) int {
		norm := (v - minV) / (maxV - minV)
		return plotMargin + plotH - int(norm*float64(plotH))
	}

	prevX, prevY := px(0), py(samples[0].Value)
	for i := 1; i < len(samples); i++ {
		x, y := px(i), py(samples[i].Value)
		drawLine(img, prevX, prevY, x, y, line)
		prevX, prevY = x, y
	}
	return img
}

// drawLine plots a simple Bresenham line between two points.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
