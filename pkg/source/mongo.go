package source

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/stemma/pkg/errors"
	"github.com/matzehuels/stemma/pkg/family"
)

// Collection names used by [MongoSource].
const (
	TreesCollection         = "trees"
	PersonsCollection       = "persons"
	RelationshipsCollection = "relationships"
	MarriagesCollection     = "marriages"
)

// DefaultMongoDatabase is used when no database name is configured.
const DefaultMongoDatabase = "stemma"

type mongoTree struct {
	ID          int64  `bson:"tree_id"`
	Name        string `bson:"tree_name"`
	Description string `bson:"description,omitempty"`
}

type mongoPerson struct {
	ID          int64     `bson:"person_id"`
	TreeID      int64     `bson:"tree_id"`
	FirstName   string    `bson:"first_name"`
	MiddleName  string    `bson:"middle_name,omitempty"`
	LastName    string    `bson:"last_name,omitempty"`
	MaidenName  string    `bson:"maiden_name,omitempty"`
	Gender      string    `bson:"gender,omitempty"`
	DateOfBirth time.Time `bson:"date_of_birth,omitempty"`
	DateOfDeath time.Time `bson:"date_of_death,omitempty"`
	IsAlive     bool      `bson:"is_alive"`
	BirthPlace  string    `bson:"birth_place,omitempty"`
	DeathPlace  string    `bson:"death_place,omitempty"`
	Occupation  string    `bson:"occupation,omitempty"`
	Bio         string    `bson:"bio,omitempty"`
	Photo       string    `bson:"profile_photo,omitempty"`
}

type mongoRelationship struct {
	ID       int64  `bson:"relationship_id"`
	TreeID   int64  `bson:"tree_id"`
	ParentID int64  `bson:"parent_id"`
	ChildID  int64  `bson:"child_id"`
	Type     string `bson:"relationship_type,omitempty"`
}

type mongoMarriage struct {
	ID          int64     `bson:"marriage_id"`
	TreeID      int64     `bson:"tree_id"`
	Spouse1ID   int64     `bson:"spouse1_id"`
	Spouse2ID   int64     `bson:"spouse2_id"`
	Date        time.Time `bson:"marriage_date,omitempty"`
	Place       string    `bson:"marriage_place,omitempty"`
	DivorceDate time.Time `bson:"divorce_date,omitempty"`
	IsCurrent   bool      `bson:"is_current"`
	Type        string    `bson:"marriage_type,omitempty"`
}

// Records run through the same validation as the other sources.
func (m mongoPerson) record() PersonRecord {
	return PersonRecord{
		ID: m.ID, TreeID: m.TreeID,
		FirstName: m.FirstName, MiddleName: m.MiddleName, LastName: m.LastName, MaidenName: m.MaidenName,
		Gender:      m.Gender,
		DateOfBirth: Date{m.DateOfBirth}, DateOfDeath: Date{m.DateOfDeath},
		IsAlive:    Bool(m.IsAlive),
		BirthPlace: m.BirthPlace, DeathPlace: m.DeathPlace,
		Occupation: m.Occupation, Bio: m.Bio, Photo: m.Photo,
	}
}

func (m mongoRelationship) record() RelationshipRecord {
	return RelationshipRecord{ID: m.ID, ParentID: m.ParentID, ChildID: m.ChildID, Type: m.Type}
}

func (m mongoMarriage) record() MarriageRecord {
	return MarriageRecord{
		ID: m.ID, Spouse1ID: m.Spouse1ID, Spouse2ID: m.Spouse2ID,
		Date: Date{m.Date}, Place: m.Place, DivorceDate: Date{m.DivorceDate},
		IsCurrent: Bool(m.IsCurrent), Type: m.Type,
	}
}

// MongoSource reads trees from a MongoDB database holding one collection per
// record kind, each document carrying its tree_id.
type MongoSource struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoSource connects to uri and pings the server.
func NewMongoSource(ctx context.Context, uri, database string) (*MongoSource, error) {
	if database == "" {
		database = DefaultMongoDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(DefaultTimeout))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "connect to mongo")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "ping mongo")
	}
	return NewMongoSourceFromDatabase(client.Database(database)), nil
}

// NewMongoSourceFromDatabase wraps an existing database handle.
func NewMongoSourceFromDatabase(db *mongo.Database) *MongoSource {
	return &MongoSource{client: db.Client(), db: db}
}

// Close disconnects the client.
func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func treeFilter(treeID int64) bson.D {
	return bson.D{{Key: "tree_id", Value: treeID}}
}

// findOptions keeps the backend's ordering: persons by birth date, the other
// collections in insertion order.
func findOptions(collection string) *options.FindOptions {
	opts := options.Find()
	switch collection {
	case PersonsCollection:
		opts.SetSort(bson.D{{Key: "date_of_birth", Value: 1}, {Key: "_id", Value: 1}})
	default:
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	return opts
}

func (s *MongoSource) Tree(ctx context.Context, treeID int64) (family.Tree, error) {
	var doc mongoTree
	err := s.db.Collection(TreesCollection).FindOne(ctx, treeFilter(treeID)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return family.Tree{}, errors.New(errors.ErrCodeTreeNotFound, "tree %d not found", treeID)
	}
	if err != nil {
		return family.Tree{}, mongoError(err, "find tree %d", treeID)
	}
	return Tree(TreeRecord{ID: doc.ID, Name: doc.Name, Description: doc.Description})
}

func (s *MongoSource) Persons(ctx context.Context, treeID int64) ([]family.Person, error) {
	docs, err := find[mongoPerson](ctx, s.db, PersonsCollection, treeID)
	if err != nil {
		return nil, err
	}
	return Persons(convert(docs, mongoPerson.record))
}

func (s *MongoSource) Relationships(ctx context.Context, treeID int64) ([]family.ParentChildEdge, error) {
	docs, err := find[mongoRelationship](ctx, s.db, RelationshipsCollection, treeID)
	if err != nil {
		return nil, err
	}
	return Relationships(convert(docs, mongoRelationship.record))
}

func (s *MongoSource) Marriages(ctx context.Context, treeID int64) ([]family.Marriage, error) {
	docs, err := find[mongoMarriage](ctx, s.db, MarriagesCollection, treeID)
	if err != nil {
		return nil, err
	}
	return Marriages(convert(docs, mongoMarriage.record))
}

func find[T any](ctx context.Context, db *mongo.Database, collection string, treeID int64) ([]T, error) {
	cur, err := db.Collection(collection).Find(ctx, treeFilter(treeID), findOptions(collection))
	if err != nil {
		return nil, mongoError(err, "find %s", collection)
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mongoError(err, "decode %s", collection)
	}
	return docs, nil
}

func mongoError(err error, format string, args ...any) error {
	if mongo.IsTimeout(err) {
		return errors.Wrap(errors.ErrCodeTimeout, err, format, args...)
	}
	return errors.Wrap(errors.ErrCodeNetwork, err, format, args...)
}
