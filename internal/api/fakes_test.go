package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pairStudio/internal/catalog"
	"pairStudio/internal/content"
	"pairStudio/internal/database"
	"pairStudio/internal/sessionstore"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCatalog 同时扮演检索、上传与配对读写。
type fakeCatalog struct {
	mu sync.Mutex

	items      []content.Item
	total      int
	queries    []catalog.SearchQuery
	texts      []catalog.NewContent
	files      []catalog.FileUpload
	fileBody   []byte
	nextID     int64
	pairs      map[int64]content.Pair
	creates    []content.PairRequest
	updates    map[int64][]content.PairRequest
	deletes    []int64
	failOnIDs  map[int64]error
	failUpdate error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		nextID:    500,
		pairs:     map[int64]content.Pair{},
		updates:   map[int64][]content.PairRequest{},
		failOnIDs: map[int64]error{},
	}
}

func (f *fakeCatalog) SearchContents(_ context.Context, q catalog.SearchQuery) (catalog.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	var res catalog.SearchResult
	res.Data = append(res.Data, f.items...)
	res.Pagination.Total = f.total
	return res, nil
}

func (f *fakeCatalog) CreateTextContent(_ context.Context, in catalog.NewContent) (content.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, in)
	f.nextID++
	return content.Item{ID: f.nextID, ElementType: in.ElementType, Content: in.Content}, nil
}

func (f *fakeCatalog) CreateFileContent(_ context.Context, in catalog.NewContent, file catalog.FileUpload, progress catalog.ProgressFunc) (content.Item, error) {
	body, err := io.ReadAll(file.Body)
	if err != nil {
		return content.Item{}, err
	}
	if progress != nil {
		progress(0)
		progress(50)
		progress(100)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file)
	f.fileBody = body
	f.nextID++
	return content.Item{ID: f.nextID, ElementType: in.ElementType, Content: in.Content, FileURL: "https://cdn/" + file.Filename}, nil
}

func (f *fakeCatalog) CreatePair(_ context.Context, req content.PairRequest) (content.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.creates = append(f.creates, req)
	pair := content.Pair{ID: f.nextID, UseType: req.UseType}
	f.pairs[pair.ID] = pair
	return pair, nil
}

func (f *fakeCatalog) UpdatePair(_ context.Context, id int64, req content.PairRequest) (content.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return content.Pair{}, f.failUpdate
	}
	f.updates[id] = append(f.updates[id], req)
	return content.Pair{ID: id, UseType: req.UseType}, nil
}

func (f *fakeCatalog) GetPair(_ context.Context, id int64) (content.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pair, ok := f.pairs[id]
	if !ok {
		return content.Pair{}, &catalog.APIError{Op: "get pair", Status: http.StatusNotFound}
	}
	return pair, nil
}

func (f *fakeCatalog) DeletePair(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if err, ok := f.failOnIDs[id]; ok {
		return err
	}
	delete(f.pairs, id)
	return nil
}

func (f *fakeCatalog) mixedCreates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.creates {
		if req.UseType == content.UseMixedContents {
			n++
		}
	}
	return n
}

var errRemote = &catalog.APIError{Op: "delete pair", Status: http.StatusBadGateway, Message: "bad gateway"}

type fakeScanner struct {
	err     error
	scanned [][]byte
}

func (s *fakeScanner) Scan(r io.Reader) error {
	data, _ := io.ReadAll(r)
	s.scanned = append(s.scanned, data)
	return s.err
}

type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	messages []string
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	switch m := message.(type) {
	case []byte:
		p.messages = append(p.messages, string(m))
	default:
		p.messages = append(p.messages, fmt.Sprint(m))
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(q.tasks)), Type: task.Type()}, nil
}

type fakeSigner struct {
	keys    []string
	deleted []string
}

func (s *fakeSigner) DownloadURL(_ context.Context, objectKey, filename string, _ time.Duration) (string, error) {
	s.keys = append(s.keys, objectKey)
	return "https://files.example/" + objectKey + "?name=" + filename, nil
}

func (s *fakeSigner) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func newTestSessionStore(t *testing.T) *sessionstore.Store {
	t.Helper()
	client, _ := newTestRedis(t)
	return sessionstore.New(client, time.Hour, 10*time.Second)
}

// withUser 模拟鉴权中间件写入用户 ID。
func withUser(id uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", id)
		c.Next()
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}
