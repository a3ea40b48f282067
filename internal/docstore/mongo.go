// Package docstore keeps the MongoDB geospatial index of listing locations.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monositi/internal/config"
	"monositi/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type geoPoint struct {
	Type        string     `bson:"type"`
	Coordinates [2]float64 `bson:"coordinates"` // [lng, lat]
}

type listingLocation struct {
	ID           int64     `bson:"_id"`
	Location     geoPoint  `bson:"location"`
	Discoverable bool      `bson:"discoverable"`
	City         string    `bson:"city"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// NewMongoClient connects and pings within cfg.Timeout.
func NewMongoClient(ctx context.Context, cfg config.MongoConfig) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// ListingIndex mirrors listing coordinates into a 2dsphere-indexed collection.
// The SQLite store stays authoritative; this is only used to answer
// containment queries.
type ListingIndex struct {
	col *mongo.Collection
}

func NewListingIndex(col *mongo.Collection) *ListingIndex {
	return &ListingIndex{col: col}
}

// EnsureIndexes creates the 2dsphere index used by NearbyListingIDs.
func (x *ListingIndex) EnsureIndexes(ctx context.Context) error {
	_, err := x.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "location", Value: "2dsphere"}, {Key: "discoverable", Value: 1}},
		Options: options.Index().SetName("location_2dsphere"),
	})
	if err != nil {
		return fmt.Errorf("create 2dsphere index: %w", err)
	}
	return nil
}

func (x *ListingIndex) UpsertListing(ctx context.Context, listing *models.Listing) error {
	doc := listingLocation{
		ID: listing.ID,
		Location: geoPoint{
			Type:        "Point",
			Coordinates: [2]float64{listing.Longitude, listing.Latitude},
		},
		Discoverable: listing.Discoverable(),
		City:         listing.City,
		UpdatedAt:    time.Now().UTC(),
	}
	_, err := x.col.ReplaceOne(ctx, bson.M{"_id": listing.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert listing location %d: %w", listing.ID, err)
	}
	return nil
}

func (x *ListingIndex) DeleteListing(ctx context.Context, id int64) error {
	if _, err := x.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete listing location %d: %w", id, err)
	}
	return nil
}

// NearbyListingIDs returns discoverable listings inside the spherical cap of
// angularRadius radians around (lat, lng).
func (x *ListingIndex) NearbyListingIDs(ctx context.Context, lat, lng, angularRadius float64) ([]int64, error) {
	filter := nearbyFilter(lat, lng, angularRadius)
	cur, err := x.col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("query nearby listings: %w", err)
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode listing location: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	if err := cur.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	return ids, nil
}

func nearbyFilter(lat, lng, angularRadius float64) bson.M {
	return bson.M{
		"discoverable": true,
		"location": bson.M{
			"$geoWithin": bson.M{
				"$centerSphere": bson.A{bson.A{lng, lat}, angularRadius},
			},
		},
	}
}
