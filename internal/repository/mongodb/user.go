package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/showdex/internal/apperror"
	"github.com/sakif/showdex/internal/model"
	"github.com/sakif/showdex/internal/repository"
)

var _ repository.UserRepository = (*UserStore)(nil)

// Users collection field names.
const (
	fieldUserID       = "UserID"
	fieldLogin        = "Login"
	fieldPassword     = "Password"
	fieldEmail        = "Email"
	fieldIsVerified   = "isVerified"
	fieldVerifyCode   = "verificationCode"
	fieldVerifyExpiry = "verificationCodeExpires"
	fieldResetToken   = "resetToken"
	fieldResetExpiry  = "resetTokenExpires"
	fieldUpdatedAt    = "updatedAt"
)

// userDoc is the stored shape of a user. Password holds the bcrypt hash.
type userDoc struct {
	UserID                  string     `bson:"UserID"`
	Login                   string     `bson:"Login"`
	Password                string     `bson:"Password"`
	FirstName               string     `bson:"FirstName"`
	LastName                string     `bson:"LastName"`
	Email                   string     `bson:"Email"`
	IsVerified              bool       `bson:"isVerified"`
	VerificationCode        string     `bson:"verificationCode,omitempty"`
	VerificationCodeExpires *time.Time `bson:"verificationCodeExpires,omitempty"`
	ResetToken              string     `bson:"resetToken,omitempty"`
	ResetTokenExpires       *time.Time `bson:"resetTokenExpires,omitempty"`
	CreatedAt               time.Time  `bson:"createdAt"`
	UpdatedAt               time.Time  `bson:"updatedAt"`
}

func toUserDoc(u *model.User) userDoc {
	d := userDoc{
		UserID:     u.ID,
		Login:      u.Login,
		Password:   u.PasswordHash,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
	if !u.Verification.IsZero() {
		exp := u.Verification.Expires
		d.VerificationCode, d.VerificationCodeExpires = u.Verification.Value, &exp
	}
	if !u.Reset.IsZero() {
		exp := u.Reset.Expires
		d.ResetToken, d.ResetTokenExpires = u.Reset.Value, &exp
	}
	return d
}

func (d userDoc) toModel() *model.User {
	u := &model.User{
		ID:           d.UserID,
		Login:        d.Login,
		PasswordHash: d.Password,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		IsVerified:   d.IsVerified,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
	if d.VerificationCode != "" {
		u.Verification = model.Code{Value: d.VerificationCode, Expires: derefTime(d.VerificationCodeExpires)}
	}
	if d.ResetToken != "" {
		u.Reset = model.Code{Value: d.ResetToken, Expires: derefTime(d.ResetTokenExpires)}
	}
	return u
}

// derefTime maps a missing expiry to the zero time, which every check
// treats as already expired.
func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// codeFields maps a purpose to its (code, expiry) field pair.
func codeFields(purpose model.CodePurpose) (string, string, error) {
	switch purpose {
	case model.PurposeVerification:
		return fieldVerifyCode, fieldVerifyExpiry, nil
	case model.PurposeReset:
		return fieldResetToken, fieldResetExpiry, nil
	}
	return "", "", fmt.Errorf("mongodb: unknown code purpose %q", purpose)
}

// identifierFilter matches login or email exactly.
func identifierFilter(identifier string) bson.A {
	return bson.A{
		bson.D{{Key: fieldLogin, Value: identifier}},
		bson.D{{Key: fieldEmail, Value: identifier}},
	}
}

// codeFilter selects the user owning identifier whose stored code matches.
func codeFilter(purpose model.CodePurpose, identifier, code string) (bson.D, error) {
	codeField, _, err := codeFields(purpose)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: codeField, Value: code}},
		bson.D{{Key: "$or", Value: identifierFilter(identifier)}},
	}}}, nil
}

// issueFilter selects the user only if its code slot is free at now:
// no code, no expiry, or an expiry at or before now.
func issueFilter(userID string, purpose model.CodePurpose, now time.Time) (bson.D, error) {
	codeField, expField, err := codeFields(purpose)
	if err != nil {
		return nil, err
	}
	return bson.D{
		{Key: fieldUserID, Value: userID},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: codeField, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: expField, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: expField, Value: bson.D{{Key: "$lte", Value: now}}}},
		}},
	}, nil
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	if _, err := s.col.InsertOne(ctx, toUserDoc(user)); err != nil {
		if index, ok := duplicateIndex(err); ok {
			switch index {
			case indexLogin:
				return apperror.Conflict("login", "Username already exists")
			case indexEmail:
				return apperror.Conflict("email", "Email already exists")
			default:
				return apperror.Conflict("id", "User ID already exists")
			}
		}
		return fmt.Errorf("mongodb: inserting user (login=%s): %w", user.Login, err)
	}
	return nil
}

func (s *UserStore) findOne(ctx context.Context, filter any, key string) (*model.User, error) {
	var d userDoc
	if err := s.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if isNoDocuments(err) {
			return nil, notFound("user", key)
		}
		return nil, fmt.Errorf("mongodb: finding user %s: %w", key, err)
	}
	return d.toModel(), nil
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: fieldUserID, Value: id}}, id)
}

func (s *UserStore) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.findOne(ctx, bson.D{{Key: fieldLogin, Value: login}}, login)
}

// GetByIdentifier tries the login first so that a login match wins over an
// email match on a different account.
func (s *UserStore) GetByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	u, err := s.GetByLogin(ctx, identifier)
	if err == nil {
		return u, nil
	}
	if !isNotFound(err) {
		return nil, err
	}
	return s.findOne(ctx, bson.D{{Key: fieldEmail, Value: identifier}}, identifier)
}

func (s *UserStore) FindByCode(ctx context.Context, purpose model.CodePurpose, identifier, code string) (*model.User, error) {
	filter, err := codeFilter(purpose, identifier, code)
	if err != nil {
		return nil, err
	}
	return s.findOne(ctx, filter, identifier)
}

func (s *UserStore) IssueCode(ctx context.Context, userID string, purpose model.CodePurpose, code model.Code, now time.Time) error {
	filter, err := issueFilter(userID, purpose, now)
	if err != nil {
		return err
	}
	codeField, expField, _ := codeFields(purpose)

	result, err := s.col.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: codeField, Value: code.Value},
		{Key: expField, Value: code.Expires},
		{Key: fieldUpdatedAt, Value: time.Now().UTC()},
	}}})
	if err != nil {
		return fmt.Errorf("mongodb: issuing %s code for user %s: %w", purpose, userID, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	if _, err := s.GetByID(ctx, userID); err != nil {
		return err
	}
	return apperror.Conflict("code", fmt.Sprintf("an active %s code already exists", purpose))
}

func (s *UserStore) ConsumeVerification(ctx context.Context, userID, code string) error {
	result, err := s.col.UpdateOne(ctx,
		bson.D{{Key: fieldUserID, Value: userID}, {Key: fieldVerifyCode, Value: code}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: fieldIsVerified, Value: true}, {Key: fieldUpdatedAt, Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{{Key: fieldVerifyCode, Value: ""}, {Key: fieldVerifyExpiry, Value: ""}}},
		},
	)
	if err != nil {
		return fmt.Errorf("mongodb: consuming verification code for user %s: %w", userID, err)
	}
	return requireMatch(result, "verification code", userID)
}

func (s *UserStore) ConsumeReset(ctx context.Context, userID, token, passwordHash string) error {
	result, err := s.col.UpdateOne(ctx,
		bson.D{{Key: fieldUserID, Value: userID}, {Key: fieldResetToken, Value: token}},
		bson.D{
			{Key: "$set", Value: bson.D{{Key: fieldPassword, Value: passwordHash}, {Key: fieldUpdatedAt, Value: time.Now().UTC()}}},
			{Key: "$unset", Value: bson.D{{Key: fieldResetToken, Value: ""}, {Key: fieldResetExpiry, Value: ""}}},
		},
	)
	if err != nil {
		return fmt.Errorf("mongodb: consuming reset token for user %s: %w", userID, err)
	}
	return requireMatch(result, "reset token", userID)
}

// Ping checks the deployment's primary is reachable.
func (s *UserStore) Ping(ctx context.Context) error {
	if err := s.col.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb: ping: %w", err)
	}
	return nil
}

func requireMatch(result *mongo.UpdateResult, resource, id string) error {
	if result.MatchedCount == 0 {
		return notFound(resource, id)
	}
	return nil
}
