package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rig-vibration/models"
)

const predictionsCollection = "predictions"

type MongoClient struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoClient(uri, database string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	collection := client.Database(database).Collection(predictionsCollection)
	_, err = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error creating timestamp index: %s", err)
	}

	return &MongoClient{client: client, collection: collection}, nil
}

func (db *MongoClient) Close() error {
	if db.client != nil {
		return db.client.Disconnect(context.Background())
	}
	return nil
}

func (db *MongoClient) StorePrediction(ctx context.Context, record *models.PredictionRecord) error {
	prepareRecord(record)
	if _, err := db.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("error storing prediction: %s", err)
	}
	return nil
}

func (db *MongoClient) ListPredictions(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(normaliseLimit(limit)))

	cursor, err := db.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying predictions: %s", err)
	}
	defer cursor.Close(ctx)

	records := []models.PredictionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("error decoding predictions: %s", err)
	}
	return records, nil
}
