package handlers

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/storycreator/apiserver/internal/services"
	"github.com/storycreator/apiserver/internal/store"
	"github.com/storycreator/apiserver/types"
	"github.com/stretchr/testify/require"
)

// ---- in-memory repositories ----

type fakeUserRepo struct {
	byUsername map[string]types.User
	byToken    map[string]types.User
	byID       map[int64]types.User
	nextID     int64

	tokenLookupErr error
	appendErr      error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byUsername: map[string]types.User{},
		byToken:    map[string]types.User{},
		byID:       map[int64]types.User{},
		nextID:     1,
	}
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id int64) (types.User, error) {
	user, ok := f.byID[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	user, ok := f.byUsername[username]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByAccessToken(ctx context.Context, token string) (types.User, error) {
	if f.tokenLookupErr != nil {
		return types.User{}, f.tokenLookupErr
	}
	user, ok := f.byToken[token]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) List(ctx context.Context) ([]types.User, error) {
	users := make([]types.User, 0, len(f.byID))
	for _, user := range f.byID {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, exists := f.byUsername[user.Username]; exists {
		return types.User{}, store.ErrDuplicate
	}
	user.ID = f.nextID
	f.nextID++
	if user.LikedStories == nil {
		user.LikedStories = []types.Story{}
	}
	f.save(user)
	return user, nil
}

func (f *fakeUserRepo) AppendLikedStory(ctx context.Context, userID int64, snapshot types.Story) (types.User, error) {
	if f.appendErr != nil {
		return types.User{}, f.appendErr
	}
	user, ok := f.byID[userID]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	user.LikedStories = append(user.LikedStories, snapshot)
	f.save(user)
	return user, nil
}

func (f *fakeUserRepo) save(user types.User) {
	f.byUsername[user.Username] = user
	f.byToken[user.AccessToken] = user
	f.byID[user.ID] = user
}

type fakeStoryRepo struct {
	stories []types.Story
	nextID  int64
	clock   time.Time

	listCalls   int
	lastListTag string
}

func newFakeStoryRepo() *fakeStoryRepo {
	return &fakeStoryRepo{nextID: 1, clock: time.Now()}
}

// newestFirst mirrors the repository ordering: created_at descending.
func newestFirst(stories []types.Story) []types.Story {
	sort.SliceStable(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	return stories
}

func (f *fakeStoryRepo) List(ctx context.Context, tag string) ([]types.Story, error) {
	f.listCalls++
	f.lastListTag = tag
	result := make([]types.Story, 0, len(f.stories))
	for _, story := range f.stories {
		if tag != "" && !storyHasTag(story, tag) {
			continue
		}
		result = append(result, story)
	}
	return newestFirst(result), nil
}

func storyHasTag(story types.Story, tag string) bool {
	for _, t := range story.Story.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (f *fakeStoryRepo) ListByOwner(ctx context.Context, ownerID int64) ([]types.Story, error) {
	result := make([]types.Story, 0)
	for _, story := range f.stories {
		if story.UserID == ownerID {
			result = append(result, story)
		}
	}
	return newestFirst(result), nil
}

func (f *fakeStoryRepo) ListByIDs(ctx context.Context, ids []int64) ([]types.Story, error) {
	result := make([]types.Story, 0, len(ids))
	for _, id := range ids {
		for _, story := range f.stories {
			if story.ID == id {
				result = append(result, story)
			}
		}
	}
	return newestFirst(result), nil
}

func (f *fakeStoryRepo) GetByID(ctx context.Context, id int64) (types.Story, error) {
	for _, story := range f.stories {
		if story.ID == id {
			return story, nil
		}
	}
	return types.Story{}, store.ErrNotFound
}

func (f *fakeStoryRepo) Create(ctx context.Context, story types.Story) (types.Story, error) {
	story.ID = f.nextID
	f.nextID++
	f.clock = f.clock.Add(time.Second)
	story.CreatedAt = f.clock
	f.stories = append(f.stories, story)
	return story, nil
}

func (f *fakeStoryRepo) IncrementLikes(ctx context.Context, id int64) (types.Story, error) {
	for i, story := range f.stories {
		if story.ID == id {
			f.stories[i].Likes++
			return f.stories[i], nil
		}
	}
	return types.Story{}, store.ErrNotFound
}

func (f *fakeStoryRepo) SetImage(ctx context.Context, id int64, imageKey string) (types.Story, error) {
	for i, story := range f.stories {
		if story.ID == id {
			f.stories[i].Story.StoryImg = imageKey
			return f.stories[i], nil
		}
	}
	return types.Story{}, store.ErrNotFound
}

func (f *fakeStoryRepo) Delete(ctx context.Context, id int64) error {
	for i, story := range f.stories {
		if story.ID == id {
			f.stories = append(f.stories[:i], f.stories[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// ---- router harness ----

type testEnv struct {
	router    *chi.Mux
	userRepo  *fakeUserRepo
	storyRepo *fakeStoryRepo
	users     *services.UserService
	stories   *services.StoryService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newFakeUserRepo()
	storyRepo := newFakeStoryRepo()

	userService := services.NewUserService(userRepo)
	storyService := services.NewStoryService(storyRepo)
	likeService := services.NewLikeService(storyRepo, userRepo, nil)

	authMiddleware := RequireAuth(userService)

	router := chi.NewRouter()
	AuthRouter(router, userService)
	router.Route("/stories", func(r chi.Router) {
		StoryRouter(r, storyService, likeService, nil, authMiddleware)
	})
	router.Route("/users", func(r chi.Router) {
		UserRouter(r, userService, storyService, authMiddleware)
	})

	return &testEnv{
		router:    router,
		userRepo:  userRepo,
		storyRepo: storyRepo,
		users:     userService,
		stories:   storyService,
	}
}

func (e *testEnv) registerUser(t *testing.T, username, password string) types.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), username, password)
	require.NoError(t, err)
	return user
}

func (e *testEnv) createStory(t *testing.T, owner types.User, details types.StoryDetails) types.Story {
	t.Helper()
	story, err := e.stories.Create(context.Background(), details, owner)
	require.NoError(t, err)
	return story
}

func authHeader(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", token)
	return req
}
