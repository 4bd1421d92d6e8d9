package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"noisemap/internal/api/middleware"
	"noisemap/internal/services"
)

type RecordHandler struct {
	recordService *services.RecordService
}

func NewRecordHandler(recordService *services.RecordService) *RecordHandler {
	return &RecordHandler{recordService: recordService}
}

// maxBodyBytes bounds a record submission.
const maxBodyBytes = 64 << 10

// decodeStrict decodes the request body into v and rejects unknown fields, so
// a patch naming an immutable field such as "level" fails instead of being
// silently ignored.
//
// Go Learning Note — github.com/goccy/go-json:
// goccy/go-json is a drop-in replacement for encoding/json with the same API
// (Decoder, DisallowUnknownFields, Marshal) and considerably faster encoding.
func decodeStrict(c *gin.Context, v any) error {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", services.ErrInvalidRecord, err)
	}
	return nil
}

// Create handles POST /records
func (h *RecordHandler) Create(c *gin.Context) {
	var in services.CreateRecordInput
	if err := decodeStrict(c, &in); err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.recordService.CreateRecord(c.Request.Context(), middleware.GetUserID(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// Get handles GET /records/:id. Anonymous callers see public records only.
func (h *RecordHandler) Get(c *gin.Context) {
	rec, err := h.recordService.GetRecord(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Update handles PATCH /records/:id
func (h *RecordHandler) Update(c *gin.Context) {
	var in services.UpdateRecordInput
	if err := decodeStrict(c, &in); err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.recordService.UpdateRecord(c.Request.Context(), middleware.GetUserID(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Delete handles DELETE /records/:id
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.recordService.DeleteRecord(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListMine handles GET /records/mine?limit=
func (h *RecordHandler) ListMine(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := h.recordService.ListOwnerRecords(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// DeleteMine handles DELETE /records/mine
func (h *RecordHandler) DeleteMine(c *gin.Context) {
	deleted, err := h.recordService.DeleteOwnerRecords(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// Feed handles GET /feed?limit=
func (h *RecordHandler) Feed(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}

	records, err := h.recordService.ListPublicFeed(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// GeoJSON handles GET /feed/geojson?lat=&lng=&radius_km=&page_size=
func (h *RecordHandler) GeoJSON(c *gin.Context) {
	q, err := parseQuery(c)
	if err != nil {
		respondError(c, err)
		return
	}

	fc, err := h.recordService.ExportGeoJSON(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := json.Marshal(fc)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/geo+json", body)
}
