package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	geojson "github.com/paulmach/go.geojson"

	"noisemap/internal/config"
	"noisemap/internal/domain/entities"
	"noisemap/internal/geo"
	"noisemap/internal/logging"
	"noisemap/internal/metrics"
	"noisemap/internal/repository"
	"noisemap/pkg/utils"
)

var (
	ErrNotOwner      = errors.New("record belongs to another user")
	ErrInvalidRecord = errors.New("invalid record")
	ErrRecordBusy    = errors.New("record is being edited")
)

// counterTimeout bounds the best-effort counter update that follows a
// record write. The update runs detached from the request context.
const counterTimeout = 5 * time.Second

// editLockTTL bounds how long an owner edit may hold its record lock.
const editLockTTL = 10 * time.Second

// CreateRecordInput is a new measurement as submitted by a client.
//
// Go Learning Note — Pointer Fields for "Required":
// A plain float64 cannot tell "0" from "absent", and 0 dB or latitude 0 are
// legitimate values. Pointers make absence observable, and the validator's
// "required" tag rejects nil pointers only.
type CreateRecordInput struct {
	Kind      entities.Kind `json:"kind" validate:"required,oneof=manual automatic complaint photo"`
	Level     *float64      `json:"level" validate:"required,gte=0"`
	Latitude  *float64      `json:"lat" validate:"required"`
	Longitude *float64      `json:"lng" validate:"required"`
	Address   string        `json:"address" validate:"max=512"`
	Visible   *bool         `json:"visible"`

	ComplaintOrigin string `json:"complaint_origin" validate:"max=128"`
	ComplaintImpact string `json:"complaint_impact" validate:"max=128"`
	Sensation       string `json:"sensation" validate:"max=64"`
	Comment         string `json:"comment" validate:"max=1000"`
}

// UpdateRecordInput changes the descriptive fields of a record. Kind,
// level, position and timestamp are fixed at creation and have no field
// here. A nil field is left unchanged.
type UpdateRecordInput struct {
	Address         *string `json:"address" validate:"omitempty,max=512"`
	Visible         *bool   `json:"visible"`
	ComplaintOrigin *string `json:"complaint_origin" validate:"omitempty,max=128"`
	ComplaintImpact *string `json:"complaint_impact" validate:"omitempty,max=128"`
	Sensation       *string `json:"sensation" validate:"omitempty,max=64"`
	Comment         *string `json:"comment" validate:"omitempty,max=1000"`
}

// RecordService owns the record lifecycle: submission, owner edits,
// deletion and the public listings.
type RecordService struct {
	store    repository.RecordStore
	ledger   *CounterLedger
	locks    repository.LockManager
	config   *config.Config
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewRecordService wires the record lifecycle. ledger and locks may be nil,
// which disables the counters and the per-record edit lock respectively.
func NewRecordService(store repository.RecordStore, ledger *CounterLedger, locks repository.LockManager, cfg *config.Config) *RecordService {
	return &RecordService{
		store:    store,
		ledger:   ledger,
		locks:    locks,
		config:   cfg,
		validate: validator.New(),
		now:      time.Now,
		newID:    utils.GenerateID,
	}
}

func (s *RecordService) invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
}

// CreateRecord validates and stores a new record owned by ownerID, then
// increments the counters best-effort.
func (s *RecordService) CreateRecord(ctx context.Context, ownerID string, in CreateRecordInput) (*entities.NoiseRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, s.invalid(err)
	}

	spatialKey, err := geo.Encode(*in.Latitude, *in.Longitude, s.config.Geo.GeohashPrecision)
	if err != nil {
		return nil, err
	}

	visible := true
	if in.Visible != nil {
		visible = *in.Visible
	}
	if in.Kind == entities.KindComplaint && !visible {
		return nil, s.invalid(errors.New("complaints are always public"))
	}

	rec := &entities.NoiseRecord{
		ID:              s.newID(),
		OwnerID:         ownerID,
		Kind:            in.Kind,
		Level:           entities.LevelOf(*in.Level),
		Position:        &entities.Location{Latitude: *in.Latitude, Longitude: *in.Longitude},
		SpatialKey:      spatialKey,
		Address:         in.Address,
		Timestamp:       s.now(),
		Visible:         visible,
		ComplaintOrigin: in.ComplaintOrigin,
		ComplaintImpact: in.ComplaintImpact,
		Sensation:       in.Sensation,
		Comment:         in.Comment,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}

	s.settleCounters(ctx, "created", rec, s.ledger.RecordCreated)
	return rec, nil
}

// settleCounters applies a ledger update and swallows its failure: the
// record operation has already succeeded and stays successful.
func (s *RecordService) settleCounters(ctx context.Context, op string, rec *entities.NoiseRecord,
	apply func(context.Context, *entities.NoiseRecord) error) {
	if s.ledger == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), counterTimeout)
	defer cancel()

	if err := apply(ctx, rec); err != nil {
		metrics.RecordLedgerFailure(op)
		logging.Warn().
			Err(err).
			Str("operation", op).
			Str("record_id", rec.ID).
			Str("owner_id", rec.OwnerID).
			Str("kind", string(rec.Kind)).
			Msg("counter update failed, counters may drift")
	}
}

// GetRecord returns a record. Hidden records exist only for their owner.
func (s *RecordService) GetRecord(ctx context.Context, viewerID, id string) (*entities.NoiseRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rec.Visible && rec.OwnerID != viewerID {
		return nil, repository.ErrRecordNotFound
	}
	return rec, nil
}

// lockRecord takes the edit lock of record id, failing fast with
// ErrRecordBusy when another edit holds it.
func (s *RecordService) lockRecord(ctx context.Context, id string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	key := "record:" + id
	acquired, err := s.locks.AcquireLock(ctx, key, editLockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrRecordBusy
	}
	return func() {
		// Release even when the request context is already canceled.
		_ = s.locks.ReleaseLock(context.WithoutCancel(ctx), key)
	}, nil
}

// UpdateRecord applies in to a record owned by ownerID.
func (s *RecordService) UpdateRecord(ctx context.Context, ownerID, id string, in UpdateRecordInput) (*entities.NoiseRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, s.invalid(err)
	}

	unlock, err := s.lockRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotOwner
	}

	if in.Visible != nil {
		if rec.Kind == entities.KindComplaint && !*in.Visible {
			return nil, s.invalid(errors.New("complaints are always public"))
		}
		rec.Visible = *in.Visible
	}
	if in.Address != nil {
		rec.Address = *in.Address
	}
	if in.ComplaintOrigin != nil {
		rec.ComplaintOrigin = *in.ComplaintOrigin
	}
	if in.ComplaintImpact != nil {
		rec.ComplaintImpact = *in.ComplaintImpact
	}
	if in.Sensation != nil {
		rec.Sensation = *in.Sensation
	}
	if in.Comment != nil {
		rec.Comment = *in.Comment
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord removes a record owned by ownerID, then decrements the
// counters best-effort. The record is read first: once it is gone its kind
// and owner, which decide the counters, are unknown.
func (s *RecordService) DeleteRecord(ctx context.Context, ownerID, id string) error {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.OwnerID != ownerID {
		return ErrNotOwner
	}
	return s.deleteRecord(ctx, rec)
}

func (s *RecordService) deleteRecord(ctx context.Context, rec *entities.NoiseRecord) error {
	if err := s.store.Delete(ctx, rec.ID); err != nil {
		return err
	}
	s.settleCounters(ctx, "deleted", rec, s.ledger.RecordDeleted)
	return nil
}

// DeleteOwnerRecords deletes every record of ownerID, e.g. when the account
// is closed, and returns how many were deleted. Records that vanish
// concurrently are skipped.
func (s *RecordService) DeleteOwnerRecords(ctx context.Context, ownerID string) (int, error) {
	records, err := s.store.FetchRecords(ctx, repository.RecordFilter{OwnerID: ownerID})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		err := s.deleteRecord(ctx, rec)
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			continue
		case err != nil:
			return deleted, err
		}
		deleted++
	}

	logging.Info().Str("owner_id", ownerID).Int("deleted", deleted).Msg("owner records deleted")
	return deleted, nil
}

func (s *RecordService) limit(requested, def int) int {
	if requested <= 0 {
		return def
	}
	if max := s.config.Analytics.MaxPageSize; requested > max {
		return max
	}
	return requested
}

// ListPublicFeed returns the most recent visible records, complaints
// included.
func (s *RecordService) ListPublicFeed(ctx context.Context, limit int) ([]*entities.NoiseRecord, error) {
	return s.store.FetchRecords(ctx, repository.RecordFilter{
		VisibleOnly: true,
		Limit:       s.limit(limit, s.config.Analytics.FeedLimit),
	})
}

// ListOwnerRecords returns the owner's own records, hidden ones included.
func (s *RecordService) ListOwnerRecords(ctx context.Context, ownerID string, limit int) ([]*entities.NoiseRecord, error) {
	return s.store.FetchRecords(ctx, repository.RecordFilter{
		OwnerID: ownerID,
		Limit:   s.limit(limit, s.config.Analytics.FeedLimit),
	})
}

// ExportGeoJSON returns the most recent visible records as a GeoJSON
// FeatureCollection of points. Records without a usable position are left
// out.
func (s *RecordService) ExportGeoJSON(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	records, err := s.store.FetchRecords(ctx, repository.RecordFilter{
		VisibleOnly: true,
		Limit:       q.pageSize(s.config.Analytics.ExportPageSize, s.config.Analytics.MaxPageSize),
	})
	if err != nil {
		return nil, err
	}
	if q.Center != nil {
		records = geo.FilterWithinRadius(records, *q.Center, q.RadiusKm, nil)
	}

	fc := geojson.NewFeatureCollection()
	for _, rec := range records {
		if !rec.HasPosition() {
			continue
		}
		// GeoJSON positions are [longitude, latitude].
		f := geojson.NewPointFeature([]float64{rec.Position.Longitude, rec.Position.Latitude})
		f.ID = rec.ID
		f.SetProperty("kind", string(rec.Kind))
		if rec.HasLevel() {
			f.SetProperty("level", *rec.Level)
		}
		if rec.HasTimestamp() {
			f.SetProperty("timestamp", rec.Timestamp.UTC().Format(time.RFC3339))
		}
		f.SetProperty("spatial_key", rec.SpatialKey)
		if rec.Address != "" {
			f.SetProperty("address", rec.Address)
		}
		fc.AddFeature(f)
	}
	return fc, nil
}
