// Package mongodb is a document store backed by MongoDB. Documents keep their id in _id.
package mongodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
)

type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*DB)(nil) // interface compliance check

func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.DocStore.MongoURI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongodb")
	}
	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "pinging mongodb")
	}
	return &DB{client: client, db: client.Database(conf.DocStore.MongoDB)}, nil
}

func (db *DB) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var raw bson.M
	if err := db.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return docstore.Document{}, docstore.ErrNotFound
		}
		return docstore.Document{}, errors.Wrap(err, "finding document")
	}
	return document(raw), nil
}

func (db *DB) List(ctx context.Context, collection string) ([]docstore.Document, error) {
	return db.find(ctx, collection, bson.M{})
}

func (db *DB) Query(ctx context.Context, collection string, filter docstore.Filter) ([]docstore.Document, error) {
	f, err := filterBSON(filter)
	if err != nil {
		return nil, err
	}
	return db.find(ctx, collection, f)
}

func (db *DB) find(ctx context.Context, collection string, filter bson.M) ([]docstore.Document, error) {
	cursor, err := db.db.Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "finding documents")
	}
	var raws []bson.M
	if err = cursor.All(ctx, &raws); err != nil {
		return nil, errors.Wrap(err, "decoding documents")
	}
	docs := make([]docstore.Document, 0, len(raws))
	for _, raw := range raws {
		docs = append(docs, document(raw))
	}
	return docs, nil
}

func (db *DB) Add(ctx context.Context, collection string, data map[string]interface{}, id string) (string, error) {
	upsert := id != ""
	if !upsert {
		id = uuid.New().String()
	}
	doc := make(bson.M, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc["_id"] = id

	coll := db.db.Collection(collection)
	var err error
	if upsert {
		_, err = coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	} else {
		_, err = coll.InsertOne(ctx, doc)
	}
	if err != nil {
		return "", errors.Wrap(err, "inserting document")
	}
	return id, nil
}

func (db *DB) Update(ctx context.Context, collection, id string, partial map[string]interface{}) error {
	if len(partial) == 0 { // $set rejects an empty document
		_, err := db.Get(ctx, collection, id)
		return err
	}
	res, err := db.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(partial)})
	if err != nil {
		return errors.Wrap(err, "updating document")
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, collection, id string) error {
	res, err := db.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if res.DeletedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// Watch follows the change stream of the collection (MongoDB must run as a replica set).
func (db *DB) Watch(ctx context.Context, collection string) (<-chan struct{}, error) {
	stream, err := db.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, errors.Wrap(err, "opening change stream")
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = stream.Close(cctx)
		}()

		for stream.Next(ctx) {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}()
	return ch, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

var bsonOperators = map[docstore.Operator]string{
	docstore.OpEqual:        "$eq",
	docstore.OpNotEqual:     "$ne",
	docstore.OpLess:         "$lt",
	docstore.OpLessEqual:    "$lte",
	docstore.OpGreater:      "$gt",
	docstore.OpGreaterEqual: "$gte",
	docstore.OpIn:           "$in",
	docstore.OpNotIn:        "$nin",
}

func filterBSON(f docstore.Filter) (bson.M, error) {
	op, ok := bsonOperators[f.Op]
	if !ok {
		return nil, errors.Errorf("invalid operator %q", f.Op)
	}
	field := f.Field
	if field == "id" {
		field = "_id"
	}

	value := f.Value
	if f.Op == docstore.OpIn || f.Op == docstore.OpNotIn {
		switch v := f.Value.(type) {
		case []interface{}:
			value = bson.A(v)
		case []string:
			a := make(bson.A, 0, len(v))
			for _, s := range v {
				a = append(a, s)
			}
			value = a
		default:
			return nil, errors.Errorf("filter %s expects a list", f)
		}
	}
	return bson.M{field: bson.M{op: value}}, nil
}

func document(raw bson.M) docstore.Document {
	id := raw["_id"]
	delete(raw, "_id")

	doc := docstore.Document{Data: make(map[string]interface{}, len(raw))}
	switch v := id.(type) {
	case string:
		doc.ID = v
	case primitive.ObjectID:
		doc.ID = v.Hex()
	default:
		doc.ID = fmt.Sprint(v)
	}
	for k, v := range raw {
		doc.Data[k] = normalize(v)
	}
	return doc
}

// normalize converts the bson types of a decoded value to the plain Go types the rest
// of the application expects.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.M:
		m := make(map[string]interface{}, len(t))
		for k, x := range t {
			m[k] = normalize(x)
		}
		return m
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case primitive.A:
		s := make([]interface{}, len(t))
		for i, x := range t {
			s[i] = normalize(x)
		}
		return s
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		if f, err := strconv.ParseFloat(t.String(), 64); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
