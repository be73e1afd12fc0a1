package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "licensedesk/internal/slots/errors"
	"licensedesk/pkg/config"
	mongotx "licensedesk/pkg/db/mongo"
	"licensedesk/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "slots"
)

// SlotRepository stores slots of every kind. Hold and commit operations are
// single conditional updates on the slot document, so concurrent callers
// cannot both take the last unit of capacity.
type SlotRepository interface {
	Create(ctx context.Context, slot *model.Slot) error
	FindByID(ctx context.Context, kind model.SlotKind, id string) (*model.Slot, error)
	// FindOpen returns available, unexpired slots with free capacity after
	// active holds, ordered by date then start time.
	FindOpen(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error)
	// AcquireHold appends hold if the slot is open, has free capacity after
	// active holds and the holder has no active hold on it.
	AcquireHold(ctx context.Context, kind model.SlotKind, id string, hold model.Hold, now time.Time) (*model.Slot, error)
	// CommitHold turns an active hold into a booked unit of capacity.
	CommitHold(ctx context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) (*model.Slot, error)
	ReleaseHold(ctx context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) error
	// ExpireDue closes available slots whose effective end has passed and
	// returns them.
	ExpireDue(ctx context.Context, now time.Time) ([]*model.Slot, error)
	// PruneHolds drops lapsed holds and returns the slots they were on.
	PruneHolds(ctx context.Context, now time.Time) ([]*model.Slot, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) Create(ctx context.Context, slot *model.Slot) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if slot.Holds == nil {
		slot.Holds = []model.Hold{}
	}
	result, err := r.collection.InsertOne(ctx, slot)
	if err != nil {
		return fmt.Errorf("failed to create slot: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		slot.ID = oid.Hex()
	}
	return nil
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, kind model.SlotKind, id string) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	var slot model.Slot
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "kind": kind}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, slotserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}

	return &slot, nil
}

func (r *mongoSlotRepository) FindOpen(ctx context.Context, filter model.SlotFilter, now time.Time) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	query := openFilter(now)
	query["kind"] = filter.Kind
	if filter.Location != "" {
		query["location"] = filter.Location
	}
	if filter.Authority != "" {
		query["authority"] = filter.Authority
	}
	if filter.DateFrom != "" || filter.DateTo != "" {
		dateRange := bson.M{}
		if filter.DateFrom != "" {
			dateRange["$gte"] = filter.DateFrom
		}
		if filter.DateTo != "" {
			dateRange["$lte"] = filter.DateTo
		}
		query["date"] = dateRange
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.Slot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}

	return slots, nil
}

func (r *mongoSlotRepository) AcquireHold(ctx context.Context, kind model.SlotKind, id string, hold model.Hold, now time.Time) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := openFilter(now)
	filter["_id"] = objectID
	filter["kind"] = kind
	filter["holds"] = bson.M{"$not": bson.M{"$elemMatch": bson.M{
		"holder_id":  hold.HolderID,
		"expires_at": bson.M{"$gt": now},
	}}}

	update := bson.A{
		bson.M{"$set": bson.M{
			"holds": bson.M{"$concatArrays": bson.A{
				activeHolds(now),
				bson.A{bson.M{"$literal": hold}},
			}},
			"version":    bson.M{"$add": bson.A{"$version", 1}},
			"updated_at": now,
		}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.Slot
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, slotserrors.ErrUnavailable
		}
		return nil, fmt.Errorf("failed to acquire hold: %w", err)
	}

	return &slot, nil
}

func (r *mongoSlotRepository) CommitHold(ctx context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) (*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":          objectID,
		"kind":         kind,
		"is_available": true,
		"ends_at":      bson.M{"$gt": now},
		"holds": bson.M{"$elemMatch": bson.M{
			"id":         holdID,
			"holder_id":  holderID,
			"expires_at": bson.M{"$gt": now},
		}},
		"$expr": bson.M{"$lt": bson.A{"$current_bookings", "$max_capacity"}},
	}

	booked := bson.M{"$add": bson.A{"$current_bookings", 1}}
	update := bson.A{
		bson.M{"$set": bson.M{
			"current_bookings": booked,
			"is_available":     bson.M{"$lt": bson.A{booked, "$max_capacity"}},
			"holds": bson.M{"$filter": bson.M{
				"input": bson.M{"$ifNull": bson.A{"$holds", bson.A{}}},
				"as":    "h",
				"cond": bson.M{"$and": bson.A{
					bson.M{"$ne": bson.A{"$$h.id", holdID}},
					bson.M{"$gt": bson.A{"$$h.expires_at", now}},
				}},
			}},
			"version":    bson.M{"$add": bson.A{"$version", 1}},
			"updated_at": now,
		}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot model.Slot
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot)
	if err == nil {
		return &slot, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to commit hold: %w", err)
	}

	current, err := r.FindByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if h, ok := current.HoldByID(holdID); !ok || h.HolderID != holderID || !h.Active(now) {
		return nil, slotserrors.ErrHoldNotFound
	}
	return nil, slotserrors.ErrUnavailable
}

func (r *mongoSlotRepository) ReleaseHold(ctx context.Context, kind model.SlotKind, id, holdID, holderID string, now time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", slotserrors.ErrInvalidID, id)
	}

	filter := bson.M{
		"_id":   objectID,
		"kind":  kind,
		"holds": bson.M{"$elemMatch": bson.M{"id": holdID, "holder_id": holderID}},
	}
	update := bson.M{
		"$pull": bson.M{"holds": bson.M{"id": holdID}},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": now},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}
	if result.MatchedCount == 0 {
		return slotserrors.ErrHoldNotFound
	}
	return nil
}

func (r *mongoSlotRepository) ExpireDue(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	due := bson.M{"is_available": true, "ends_at": bson.M{"$lte": now}}
	slots, err := r.find(ctx, due)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	ids := make(bson.A, 0, len(slots))
	for _, s := range slots {
		if oid, err := primitive.ObjectIDFromHex(s.ID); err == nil {
			ids = append(ids, oid)
		}
	}
	due["_id"] = bson.M{"$in": ids}

	_, err = r.collection.UpdateMany(ctx, due, bson.M{
		"$set": bson.M{"is_available": false, "updated_at": now},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to expire slots: %w", err)
	}

	for _, s := range slots {
		s.IsAvailable = false
		s.Version++
	}
	return slots, nil
}

func (r *mongoSlotRepository) PruneHolds(ctx context.Context, now time.Time) ([]*model.Slot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	lapsed := bson.M{"holds": bson.M{"$elemMatch": bson.M{"expires_at": bson.M{"$lte": now}}}}
	slots, err := r.find(ctx, lapsed)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, nil
	}

	_, err = r.collection.UpdateMany(ctx, lapsed, bson.M{
		"$pull": bson.M{"holds": bson.M{"expires_at": bson.M{"$lte": now}}},
		"$inc":  bson.M{"version": 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to prune holds: %w", err)
	}
	return slots, nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

func (r *mongoSlotRepository) find(ctx context.Context, filter bson.M) ([]*model.Slot, error) {
	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*model.Slot
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode slots: %w", err)
	}
	return slots, nil
}

// openFilter matches slots that can take one more hold at now.
func openFilter(now time.Time) bson.M {
	return bson.M{
		"is_available": true,
		"ends_at":      bson.M{"$gt": now},
		"$expr": bson.M{"$lt": bson.A{
			bson.M{"$add": bson.A{"$current_bookings", bson.M{"$size": activeHolds(now)}}},
			"$max_capacity",
		}},
	}
}

func activeHolds(now time.Time) bson.M {
	return bson.M{"$filter": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$holds", bson.A{}}},
		"as":    "h",
		"cond":  bson.M{"$gt": bson.A{"$$h.expires_at", now}},
	}}
}
