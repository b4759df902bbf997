package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"flowboard-api/domain"
)

const (
	userBoardsCollection = "userBoards"
	commentsCollection   = "comments"
	usersCollection      = "users"
)

// Backend is a persistence target for the board aggregate and the flat
// comment collection. The local and remote variants are interchangeable;
// the session decides which one is authoritative.
type Backend interface {
	// Source names the backend for logging and the state snapshot.
	Source() string
	// FetchUserBoards loads the aggregate. The boolean reports presence.
	FetchUserBoards(ctx context.Context) (domain.UserBoards, bool, error)
	StoreUserBoards(ctx context.Context, boards domain.UserBoards) error
	FetchComments(ctx context.Context) ([]domain.Comment, error)
	// StoreComments overwrites the whole collection. Used when seeding a
	// freshly signed-in user's remote store from local comments.
	StoreComments(ctx context.Context, boardID string, comments []domain.Comment) error
	StoreComment(ctx context.Context, boardID string, comment domain.Comment) error
	DeleteComment(ctx context.Context, commentID int) error
}

// NewFirestoreClient builds a Firestore client from a service account key
// file, or application-default credentials when the path is empty.
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return client, nil
}

// Remote persists one user's data to Firestore: the aggregate as a single
// document keyed by user id, comments as individual documents keyed
// {userId}_{commentId}.
type Remote struct {
	client *firestore.Client
	userID string
}

func NewRemote(client *firestore.Client, userID string) *Remote {
	return &Remote{client: client, userID: userID}
}

func (r *Remote) Source() string { return "remote" }

// commentDoc mirrors a comment into Firestore with the owning user and
// board attached plus a server-assigned write timestamp.
type commentDoc struct {
	ID        int       `firestore:"id"`
	Text      string    `firestore:"text"`
	CreatedAt int64     `firestore:"createdAt"`
	TaskID    int       `firestore:"taskId"`
	UserID    string    `firestore:"userId"`
	BoardID   string    `firestore:"boardId"`
	SavedAt   time.Time `firestore:"savedAt,serverTimestamp"`
}

func (r *Remote) FetchUserBoards(ctx context.Context) (domain.UserBoards, bool, error) {
	snap, err := r.client.Collection(userBoardsCollection).Doc(r.userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return domain.UserBoards{}, false, nil
	}
	if err != nil {
		return domain.UserBoards{}, false, fmt.Errorf("fetch user boards: %w", err)
	}
	var boards domain.UserBoards
	if err := snap.DataTo(&boards); err != nil {
		return domain.UserBoards{}, false, fmt.Errorf("decode user boards: %w", err)
	}
	return boards, true, nil
}

func (r *Remote) StoreUserBoards(ctx context.Context, boards domain.UserBoards) error {
	if _, err := r.client.Collection(userBoardsCollection).Doc(r.userID).Set(ctx, boards); err != nil {
		return fmt.Errorf("store user boards: %w", err)
	}
	return nil
}

func (r *Remote) FetchComments(ctx context.Context) ([]domain.Comment, error) {
	iter := r.client.Collection(commentsCollection).Where("userId", "==", r.userID).Documents(ctx)
	defer iter.Stop()

	comments := []domain.Comment{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fetch comments: %w", err)
		}
		var doc commentDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode comment %s: %w", snap.Ref.ID, err)
		}
		comments = append(comments, domain.Comment{
			ID:        doc.ID,
			Text:      doc.Text,
			CreatedAt: doc.CreatedAt,
			TaskID:    doc.TaskID,
		})
	}
	return comments, nil
}

func (r *Remote) StoreComments(ctx context.Context, boardID string, comments []domain.Comment) error {
	for _, c := range comments {
		if err := r.StoreComment(ctx, boardID, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *Remote) StoreComment(ctx context.Context, boardID string, comment domain.Comment) error {
	doc := commentDoc{
		ID:        comment.ID,
		Text:      comment.Text,
		CreatedAt: comment.CreatedAt,
		TaskID:    comment.TaskID,
		UserID:    r.userID,
		BoardID:   boardID,
	}
	if _, err := r.client.Collection(commentsCollection).Doc(r.commentKey(comment.ID)).Set(ctx, doc); err != nil {
		return fmt.Errorf("store comment %d: %w", comment.ID, err)
	}
	return nil
}

func (r *Remote) DeleteComment(ctx context.Context, commentID int) error {
	if _, err := r.client.Collection(commentsCollection).Doc(r.commentKey(commentID)).Delete(ctx); err != nil {
		return fmt.Errorf("delete comment %d: %w", commentID, err)
	}
	return nil
}

// EnsureUserProfile writes the users document once, on the user's first
// sign-in. Later sign-ins leave the stored profile untouched.
func (r *Remote) EnsureUserProfile(ctx context.Context, profile domain.UserProfile) error {
	ref := r.client.Collection(usersCollection).Doc(r.userID)
	_, err := ref.Get(ctx)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("fetch user profile: %w", err)
	}
	profile.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	if _, err := ref.Set(ctx, profile); err != nil {
		return fmt.Errorf("store user profile: %w", err)
	}
	return nil
}

func (r *Remote) commentKey(commentID int) string {
	return fmt.Sprintf("%s_%d", r.userID, commentID)
}
