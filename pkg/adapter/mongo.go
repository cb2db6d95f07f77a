package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/scottthesecond/syncframe/pkg/record"
)

// MongoAdapter exercises a MongoDB collection as one side of a sync job.
// It watermarks on a single timestamp field (WatermarkField) rather than
// a change stream/oplog cursor: resume-token change streams expire and
// aren't replayable from an arbitrary point, which GetUpdates' monotonic
// replay contract needs. Grounded on pkg/streams/mongodb_stream.go's
// client setup idiom, adapted from change-stream tailing to a polling
// query since adapters here are pull/cursor-based, not push-based.
type MongoAdapter struct {
	coll           *mongo.Collection
	watermarkField string
	deletedField   string // boolean field marking a soft-deleted document
}

// NewMongoAdapter connects to uri and returns an adapter over
// database.collection. watermarkField must be a field every document
// carries an update timestamp in (bson datetime or compatible);
// deletedField marks soft deletes, since the core's deletes are
// propagated as an id list, not a raw Mongo delete event.
func NewMongoAdapter(ctx context.Context, uri, database, collection, watermarkField, deletedField string) (*MongoAdapter, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("adapter: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("adapter: mongo ping: %w", err)
	}
	log.Info().Str("database", database).Str("collection", collection).Msg("mongo adapter connected")

	return &MongoAdapter{
		coll:           client.Database(database).Collection(collection),
		watermarkField: watermarkField,
		deletedField:   deletedField,
	}, nil
}

func (a *MongoAdapter) GetUpdates(ctx context.Context, cursor record.Cursor) (record.ChangeSet, record.Cursor, error) {
	filter := bson.M{}
	if cursor.Valid {
		since, err := time.Parse(time.RFC3339Nano, cursor.Value)
		if err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: bad mongo cursor %q: %w", cursor.Value, err)
		}
		filter[a.watermarkField] = bson.M{"$gt": since}
	}

	opts := options.Find().SetSort(bson.D{{Key: a.watermarkField, Value: 1}})
	cur, err := a.coll.Find(ctx, filter, opts)
	if err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: mongo find: %w", err)
	}
	defer cur.Close(ctx)

	var cs record.ChangeSet
	latest := cursor
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return record.ChangeSet{}, cursor, fmt.Errorf("adapter: mongo decode: %w", err)
		}
		id := fmt.Sprintf("%v", doc["_id"])
		delete(doc, "_id")

		if ts, ok := doc[a.watermarkField].(time.Time); ok {
			if !latest.Valid || ts.After(mustParse(latest.Value)) {
				latest = record.NewCursor(ts.UTC().Format(time.RFC3339Nano))
			}
		}

		if deleted, _ := doc[a.deletedField].(bool); deleted {
			cs.Deletes = append(cs.Deletes, id)
			continue
		}

		fields := make(map[string]any, len(doc))
		for k, v := range doc {
			fields[k] = v
		}
		cs.Upserts = append(cs.Upserts, record.Record{ID: id, Fields: fields})
	}
	if err := cur.Err(); err != nil {
		return record.ChangeSet{}, cursor, fmt.Errorf("adapter: mongo cursor: %w", err)
	}

	return cs, latest, nil
}

func mustParse(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (a *MongoAdapter) ApplyChanges(ctx context.Context, changes record.ChangeSet) error {
	var models []mongo.WriteModel
	for _, rec := range changes.Upserts {
		doc := bson.M{}
		for k, v := range rec.Fields {
			doc[k] = v
		}
		doc[a.watermarkField] = time.Now().UTC()
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": rec.ID}).
			SetUpdate(bson.M{"$set": doc}).
			SetUpsert(true))
	}
	for _, id := range changes.Deletes {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": id}).
			SetUpdate(bson.M{"$set": bson.M{a.deletedField: true, a.watermarkField: time.Now().UTC()}}).
			SetUpsert(false))
	}
	if len(models) == 0 {
		return nil
	}

	_, err := a.coll.BulkWrite(ctx, models)
	if err != nil {
		return fmt.Errorf("adapter: mongo bulk write: %w", err)
	}
	return nil
}

func (a *MongoAdapter) SerializeCursor(cursor record.Cursor) string {
	if !cursor.Valid {
		return ""
	}
	return cursor.Value
}
