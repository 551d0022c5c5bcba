// Package mongodb records frames to MongoDB: the latest snapshot of every
// object is upserted by PID, and each snapshot is appended to a history
// collection.
package mongodb

import (
	"context"
	"fmt"

	"github.com/ohowland/interconnect/internal/pkg/report"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Config selects the server and collections.
type Config struct {
	URI        string `json:"URI"`
	Database   string `json:"Database"`
	Collection string `json:"Collection"`
}

// Recorder implements datastreams.Recorder.
type Recorder struct {
	client  *mongo.Client
	latest  *mongo.Collection
	history *mongo.Collection
}

// New connects to the server named by cfg.URI.
func New(ctx context.Context, cfg Config) (*Recorder, error) {
	if cfg.Collection == "" {
		cfg.Collection = "snapshots"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb: ping: %w", err)
	}
	db := client.Database(cfg.Database)
	return &Recorder{
		client:  client,
		latest:  db.Collection(cfg.Collection),
		history: db.Collection(cfg.Collection + "_history"),
	}, nil
}

// Record upserts the latest state and appends the history.
func (r *Recorder) Record(ctx context.Context, f report.Frame) error {
	if len(f.Snapshots) == 0 {
		return nil
	}
	opts := options.Update().SetUpsert(true)
	history := make([]interface{}, 0, len(f.Snapshots))
	for _, s := range f.Snapshots {
		doc := document(s)
		_, err := r.latest.UpdateOne(ctx, bson.M{"pid": doc["pid"]}, bson.D{{Key: "$set", Value: doc}}, opts)
		if err != nil {
			return fmt.Errorf("mongodb: upsert %s %s: %w", s.Kind, s.Name, err)
		}
		history = append(history, doc)
	}
	if _, err := r.history.InsertMany(ctx, history); err != nil {
		return fmt.Errorf("mongodb: history: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (r *Recorder) Close() error {
	return r.client.Disconnect(context.Background())
}

// document flattens a snapshot. PIDs are stored as strings.
func document(s report.Snapshot) bson.M {
	props := bson.M{}
	for _, p := range s.Properties {
		props[p.Name] = bson.M{
			"value": p.Value,
			"unit":  p.Unit,
			"text":  p.Text,
		}
	}
	return bson.M{
		"pid":        s.PID.String(),
		"time":       int64(s.Time),
		"kind":       s.Kind,
		"name":       s.Name,
		"properties": props,
	}
}
