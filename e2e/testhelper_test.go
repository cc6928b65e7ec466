package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/auth"
	"github.com/fridgechef/api/internal/cache"
	"github.com/fridgechef/api/internal/client"
	"github.com/fridgechef/api/internal/config"
	"github.com/fridgechef/api/internal/handler"
	"github.com/fridgechef/api/internal/lifecycle"
	"github.com/fridgechef/api/internal/matching"
	"github.com/fridgechef/api/internal/middleware"
	"github.com/fridgechef/api/internal/model"
	"github.com/fridgechef/api/internal/queue"
	"github.com/fridgechef/api/internal/selection"
	"github.com/fridgechef/api/internal/service"
	"github.com/fridgechef/api/internal/store"
	ws "github.com/fridgechef/api/internal/websocket"
	"github.com/fridgechef/api/internal/worker"
)

const testJWTSecret = "test-secret-for-e2e"

// inlineQueue keeps enqueued tasks in memory until drain hands them to the
// workers.
type inlineQueue struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (q *inlineQueue) Enqueue(_ context.Context, taskType, jobID string, _ int, payload model.JSON) error {
	t, err := queue.NewTask(taskType, jobID, payload)
	if err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
	return nil
}

func (q *inlineQueue) Cancel(string, string, int) error { return nil }

func (q *inlineQueue) pop() *asynq.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return nil
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t
}

// testApp holds the app and the pieces tests drive directly.
type testApp struct {
	app   *fiber.App
	queue *inlineQueue
	mux   *asynq.ServeMux
}

// setupApp builds the same routes as the server against TEST_DATABASE_URL
// and TEST_REDIS_ADDR, with mock vision and product search.
func setupApp(t *testing.T) *testApp {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	redisAddr := os.Getenv("TEST_REDIS_ADDR")
	if dbURL == "" || redisAddr == "" {
		t.Skip("TEST_DATABASE_URL and TEST_REDIS_ADDR must be set")
	}

	log := zap.NewNop()
	db, err := store.Open(config.DatabaseConfig{URL: dbURL, SlowCheckout: 5 * time.Second}, log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	// DB 15 keeps test keys apart from development data
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })
	clearGlobalCache(t, rdb)

	q := &inlineQueue{}
	jobs := lifecycle.NewManager(db.Repos().Jobs, lifecycle.WithLease(time.Minute))
	c := cache.New(rdb, time.Minute, log)
	storage := client.NewMemoryStorage("http://files.test")
	matcher := matching.NewMatcher(matching.DefaultThreshold)
	validate := validator.New()
	recCfg := config.RecommendationConfig{MinMatch: 30, DefaultLimit: 20, MaxLimit: 100, CandidateLimit: 500, CacheTTL: time.Minute}

	scanService := service.NewScanService(db, jobs, q, storage, c, 3, log)
	matchService := service.NewMatchService(db, jobs, q, 3, log)
	lookupService := service.NewLookupService(db, jobs, q, 3, log)
	cookbookService := service.NewCookbookService(db, log)
	discoveryService := service.NewDiscoveryService(db, storage, c, "fc-20", log)
	inventoryService := service.NewInventoryService(db, c, log)
	recommendationService := service.NewRecommendationService(db, matcher, storage, c, recCfg, "fc-20", log)

	events := ws.NewRedisPublisher(rdb, log)
	runner := worker.NewRunner(jobs, events, log)
	scans := worker.NewScanWorker(db, jobs, runner, storage, client.MockVision{}, c, events, log)
	matches := worker.NewMatchWorker(db, jobs, runner, matcher, events, log)
	lookups := worker.NewLookupWorker(db, jobs, runner, client.MockProductSearch{}, selection.NewGate(70, 3), events, log)

	mux := asynq.NewServeMux()
	mux.HandleFunc(model.TaskTypeCookbookScan, scans.ProcessCookbookTask)
	mux.HandleFunc(model.TaskTypeFridgeScan, scans.ProcessFridgeTask)
	mux.HandleFunc(model.TaskTypeMatch, matches.ProcessTask)
	mux.HandleFunc(model.TaskTypeLookup, lookups.ProcessTask)

	scanHandler := handler.NewScanHandler(scanService, validate, log)
	matchHandler := handler.NewMatchHandler(matchService, validate, log)
	cookbookHandler := handler.NewCookbookHandler(cookbookService, lookupService, validate, log)
	inventoryHandler := handler.NewInventoryHandler(inventoryService, validate, log)
	recommendationHandler := handler.NewRecommendationHandler(recommendationService, validate, log)
	discoveryHandler := handler.NewDiscoveryHandler(discoveryService, validate, log)
	healthHandler := handler.NewHealthHandler(map[string]handler.Check{
		"database": db.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}, map[string]bool{"storage": false, "vision": false, "productSearch": false, "auth": true})

	authMiddleware := middleware.NewAuthMiddleware(nil, testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(rdb, log)

	app := fiber.New(fiber.Config{BodyLimit: 64 * 1024 * 1024})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", healthHandler.Health)
	app.Get("/auth/verify", authMiddleware.Authenticate(), handler.NewAuthHandler().Verify)

	api := app.Group("/api", authMiddleware.Authenticate())

	// Very high rate limits so tests don't get blocked
	scan := api.Group("/scan", rateLimiter.ScanLimit(10000))
	scan.Post("/cookbook", scanHandler.Cookbook)
	scan.Post("/fridge", scanHandler.Fridge)

	scanJobs := api.Group("/scan-jobs")
	scanJobs.Get("/", scanHandler.List)
	scanJobs.Get("/:id", scanHandler.Get)
	scanJobs.Get("/:id/items", scanHandler.Items)
	scanJobs.Post("/:id/retry", scanHandler.Retry)
	scanJobs.Delete("/:id", scanHandler.Delete)

	matchRoutes := api.Group("/matches")
	matchRoutes.Post("/", rateLimiter.MatchLimit(10000), matchHandler.Create)
	matchRoutes.Get("/", matchHandler.List)
	matchRoutes.Get("/:id", matchHandler.Get)
	matchRoutes.Get("/:id/results", matchHandler.Results)
	matchRoutes.Post("/:id/retry", matchHandler.Retry)
	matchRoutes.Delete("/:id", matchHandler.Delete)

	cookbooks := api.Group("/cookbooks")
	cookbooks.Get("/", cookbookHandler.List)
	cookbooks.Get("/popular", discoveryHandler.PopularCookbooks)
	cookbooks.Get("/:id", cookbookHandler.Get)
	cookbooks.Put("/:id", cookbookHandler.Update)
	cookbooks.Delete("/:id", cookbookHandler.Delete)
	cookbooks.Get("/:id/recipes", cookbookHandler.Recipes)
	cookbooks.Post("/:id/product-lookup", rateLimiter.LookupLimit(10000), cookbookHandler.StartLookup)
	cookbooks.Get("/:id/product-lookup", cookbookHandler.Lookup)
	cookbooks.Post("/:id/product-lookup/select", cookbookHandler.SelectProduct)
	cookbooks.Post("/:id/product-lookup/skip", cookbookHandler.SkipLookup)
	cookbooks.Post("/:id/product-lookup/retry", cookbookHandler.RetryLookup)

	inventory := api.Group("/inventory")
	inventory.Get("/", inventoryHandler.List)
	inventory.Post("/", inventoryHandler.Add)
	inventory.Put("/:id", inventoryHandler.Update)
	inventory.Delete("/:id", inventoryHandler.Delete)
	inventory.Delete("/", inventoryHandler.Clear)

	api.Get("/recommendations", recommendationHandler.Recommend)
	api.Get("/recipes/hot", discoveryHandler.HotRecipes)
	api.Get("/recipes/cuisines", discoveryHandler.Cuisines)
	api.Get("/recipes/:id", cookbookHandler.Recipe)
	api.Get("/recipes/:id/match", recommendationHandler.RecipeMatch)

	return &testApp{app: app, queue: q, mux: mux}
}

// clearGlobalCache drops the shared trending lists cached by earlier runs.
func clearGlobalCache(t *testing.T, rdb *redis.Client) {
	t.Helper()
	ctx := context.Background()
	iter := rdb.Scan(ctx, 0, cache.GlobalKey()+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := rdb.Del(ctx, iter.Val()).Err(); err != nil {
			t.Fatalf("failed to clear cache: %v", err)
		}
	}
	if err := iter.Err(); err != nil {
		t.Fatalf("failed to scan cache: %v", err)
	}
}

// drain runs queued tasks, including ones enqueued while draining, until
// none are left.
func (ta *testApp) drain(t *testing.T) {
	t.Helper()
	for task := ta.queue.pop(); task != nil; task = ta.queue.pop() {
		if err := ta.mux.ProcessTask(context.Background(), task); err != nil {
			t.Logf("task %s returned: %v", task.Type(), err)
		}
	}
}

// newUser returns a fresh user id so tests never see each other's data.
func newUser() string {
	return fmt.Sprintf("e2e-user-%d", time.Now().UnixNano())
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as userID.
func doAuthRequest(t *testing.T, app *fiber.App, userID, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// uploadImages posts images as multipart parts named field.
func uploadImages(t *testing.T, app *fiber.App, userID, path, field string, n int, fields map[string]string) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < n; i++ {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="page%d.jpg"`, field, i))
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = part.Write([]byte{0xff, 0xd8, 0xff, 0xe0, byte(i)})
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodPost, path, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+generateToken(t, userID))

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code of an error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, _ := body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}
