package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/repository"
)

var _ repository.ShowRepository = (*ShowStore)(nil)

// Shows collection field names.
const (
	fieldShowUserID = "UserId"
	fieldShowTitle  = "Show"
	fieldShowGenre  = "Genre"
	fieldShowRating = "Rating"
)

// showDoc is the stored shape of a show. Rating is either a number or the
// string "Not Watched Yet", exactly as the frontend sends it.
type showDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"UserId"`
	Title     string             `bson:"Show"`
	Genre     string             `bson:"Genre"`
	Rating    any                `bson:"Rating"`
	CreatedAt time.Time          `bson:"createdAt,omitempty"`
	UpdatedAt time.Time          `bson:"updatedAt,omitempty"`
}

func ratingToBSON(r model.Rating) any {
	if !r.Watched() {
		return model.NotWatchedYet
	}
	return r.Score()
}

// ratingFromBSON accepts every numeric BSON type, since documents written by
// other clients may hold int32 or int64 ratings.
func ratingFromBSON(v any) (model.Rating, error) {
	switch r := v.(type) {
	case string:
		return model.ParseRatingString(r)
	case float64:
		return model.NewRating(r)
	case int32:
		return model.NewRating(float64(r))
	case int64:
		return model.NewRating(float64(r))
	case nil:
		return model.NotWatched(), nil
	}
	return model.Rating{}, fmt.Errorf("unsupported rating type %T", v)
}

func (d showDoc) toModel() (model.Show, error) {
	r, err := ratingFromBSON(d.Rating)
	if err != nil {
		return model.Show{}, fmt.Errorf("mongodb: show %s: %w", d.ID.Hex(), err)
	}
	return model.Show{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		Title:     d.Title,
		Genre:     model.Genre(d.Genre),
		Rating:    r,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// searchFilter scopes to the user, then adds an anchored case-insensitive
// prefix regex for the term and an exact genre match. The term is quoted so
// regex metacharacters in titles match literally.
func searchFilter(q model.ShowQuery) bson.D {
	filter := bson.D{{Key: fieldShowUserID, Value: q.UserID}}
	if q.Term != "" {
		filter = append(filter, bson.E{Key: fieldShowTitle, Value: primitive.Regex{
			Pattern: "^" + regexp.QuoteMeta(q.Term),
			Options: "i",
		}})
	}
	if q.Genre != "" {
		filter = append(filter, bson.E{Key: fieldShowGenre, Value: q.Genre})
	}
	return filter
}

func showKey(userID, title string) bson.D {
	return bson.D{{Key: fieldShowUserID, Value: userID}, {Key: fieldShowTitle, Value: title}}
}

func (s *ShowStore) Create(ctx context.Context, show *model.Show) error {
	now := time.Now().UTC()
	doc := showDoc{
		ID:        primitive.NewObjectID(),
		UserID:    show.UserID,
		Title:     show.Title,
		Genre:     string(show.Genre),
		Rating:    ratingToBSON(show.Rating),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.col.InsertOne(ctx, doc); err != nil {
		if _, ok := duplicateIndex(err); ok {
			return apperror.Conflict("show", "Show already exists")
		}
		return fmt.Errorf("mongodb: creating show: %w", err)
	}

	show.ID = doc.ID.Hex()
	show.CreatedAt = now
	show.UpdatedAt = now
	return nil
}

func (s *ShowStore) Update(ctx context.Context, oldTitle string, show *model.Show) error {
	show.UpdatedAt = time.Now().UTC()

	result, err := s.col.UpdateOne(ctx, showKey(show.UserID, oldTitle), bson.D{{Key: "$set", Value: bson.D{
		{Key: fieldShowTitle, Value: show.Title},
		{Key: fieldShowGenre, Value: string(show.Genre)},
		{Key: fieldShowRating, Value: ratingToBSON(show.Rating)},
		{Key: fieldUpdatedAt, Value: show.UpdatedAt},
	}}})
	if err != nil {
		if _, ok := duplicateIndex(err); ok {
			return apperror.Conflict("show", "Show already exists")
		}
		return fmt.Errorf("mongodb: updating show: %w", err)
	}
	return requireMatch(result, "show", oldTitle)
}

func (s *ShowStore) Delete(ctx context.Context, userID, title string) error {
	result, err := s.col.DeleteOne(ctx, showKey(userID, title))
	if err != nil {
		return fmt.Errorf("mongodb: deleting show: %w", err)
	}
	if result.DeletedCount == 0 {
		return notFound("show", title)
	}
	return nil
}

// Search sorts by _id; ObjectIDs begin with their creation time, which gives
// insertion order.
func (s *ShowStore) Search(ctx context.Context, q model.ShowQuery) ([]model.Show, error) {
	cursor, err := s.col.Find(ctx, searchFilter(q), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongodb: searching shows (%s): %w", q, err)
	}
	defer cursor.Close(ctx)

	var docs []showDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb: decoding shows: %w", err)
	}

	shows := make([]model.Show, 0, len(docs))
	for _, d := range docs {
		show, err := d.toModel()
		if err != nil {
			return nil, err
		}
		shows = append(shows, show)
	}
	return shows, nil
}
