// README: Smoke cases: connectivity, auth, zone pricing, order/delivery lifecycle, numbering under load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"rxflow/internal/infra"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{6}-\d{4,}$`)

type Runner struct {
	cfg    Config
	httpc  *http.Client
	db     *pgxpool.Pool
	redis  *redis.Client
	tokens map[string]string

	// ids carried between lifecycle cases
	zoneID     string
	orderID    string
	deliveryID string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tokens: map[string]string{},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = infra.NewRedis(r.cfg.RedisAddr, "", 0)
	}
	if r.cfg.JWTSecret != "" {
		for _, role := range []string{"admin", "pharmacy_staff", "delivery_officer", "customer"} {
			if tok, err := infra.SignJWT(r.cfg.JWTSecret, "smoke-"+role, role); err == nil {
				r.tokens[role] = tok
			}
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Env: MongoDB connect", Run: checkMongo},
		{Name: "API: health", Run: checkHealth},
		{Name: "API: rejects missing token", Run: checkUnauthorized},
		{Name: "Zone: create and price", Run: createZone},
		{Name: "Order: create", Run: createOrder},
		{Name: "Delivery: create moves order out for delivery", Run: createDelivery},
		{Name: "Delivery: DELIVERED completes order", Run: completeDelivery},
		{Name: "Order: numbers unique under load", Run: concurrentNumbers},
	}
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusFail, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkMongo(ctx context.Context, r *Runner) Result {
	if r.cfg.MongoURI == "" {
		return Result{Status: statusSkip, Note: "mongo not configured"}
	}
	client, err := infra.NewMongo(ctx, r.cfg.MongoURI)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	_ = client.Disconnect(context.Background())
	return Result{Status: statusPass}
}

func checkHealth(ctx context.Context, r *Runner) Result {
	code, _, latency, err := r.call(ctx, http.MethodGet, "/health", "", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusOK {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status %d", code)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func checkUnauthorized(ctx context.Context, r *Runner) Result {
	code, _, latency, err := r.call(ctx, http.MethodGet, "/api/orders/none", "", nil)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusUnauthorized {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("expected 401, got %d", code)}
	}
	return Result{Status: statusPass, Latency: latency}
}

func createZone(ctx context.Context, r *Runner) Result {
	if r.tokens["admin"] == "" {
		return Result{Status: statusSkip, Note: "no jwt secret"}
	}
	body := map[string]any{
		"name":          fmt.Sprintf("smoke-zone-%d", time.Now().UnixNano()),
		"boundary":      [][][2]float64{{{-0.25, 5.5}, {-0.1, 5.5}, {-0.1, 5.65}, {-0.25, 5.65}, {-0.25, 5.5}}},
		"basePrice":     "5",
		"pricePerKm":    "1.5",
		"maxDistance":   10,
		"estimatedTime": map[string]int{"minMinutes": 20, "maxMinutes": 45},
	}
	var zone struct {
		ID string `json:"id"`
	}
	code, latency, err := r.callJSON(ctx, http.MethodPost, "/api/zones", "admin", body, &zone)
	if err != nil || code != http.StatusCreated {
		return failed(code, latency, err)
	}
	r.zoneID = zone.ID

	var price struct {
		Price string `json:"price"`
	}
	code, _, err = r.callJSON(ctx, http.MethodPost, "/api/zones/"+zone.ID+"/price", "customer", map[string]any{"distanceKm": 4}, &price)
	if err != nil || code != http.StatusOK {
		return failed(code, latency, err)
	}
	if price.Price != "11" {
		return Result{Status: statusFail, Latency: latency, Note: "unexpected price " + price.Price}
	}
	return Result{Status: statusPass, Latency: latency}
}

func orderBody() map[string]any {
	return map[string]any{
		"orderType":      "refill",
		"deliveryMethod": "Delivery",
		"deliveryAddress": map[string]any{
			"line":  "12 Oxford St, Osu",
			"point": map[string]float64{"lat": 5.556, "lng": -0.182},
		},
		"medications": []map[string]any{{"name": "Metformin 500mg", "quantity": 2}},
	}
}

func createOrder(ctx context.Context, r *Runner) Result {
	if r.tokens["customer"] == "" {
		return Result{Status: statusSkip, Note: "no jwt secret"}
	}
	var o struct {
		ID          string `json:"id"`
		OrderNumber string `json:"orderNumber"`
		Status      string `json:"status"`
	}
	code, latency, err := r.callJSON(ctx, http.MethodPost, "/api/orders", "customer", orderBody(), &o)
	if err != nil || code != http.StatusCreated {
		return failed(code, latency, err)
	}
	if !orderNumberPattern.MatchString(o.OrderNumber) || o.Status != "PENDING" {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("got %s/%s", o.OrderNumber, o.Status)}
	}
	r.orderID = o.ID
	return Result{Status: statusPass, Latency: latency, Note: o.OrderNumber}
}

func createDelivery(ctx context.Context, r *Runner) Result {
	if r.orderID == "" || r.zoneID == "" {
		return Result{Status: statusSkip, Note: "order or zone missing"}
	}
	body := map[string]any{
		"orderId":         r.orderID,
		"deliveryOfficer": "smoke-delivery_officer",
		"zone":            r.zoneID,
		"address":         "12 Oxford St, Osu",
		"lat":             5.556,
		"lng":             -0.182,
		"schedule":        "Emergency",
		"distanceKm":      3.2,
	}
	var d struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	code, latency, err := r.callJSON(ctx, http.MethodPost, "/api/deliveries", "pharmacy_staff", body, &d)
	if err != nil || code != http.StatusCreated {
		return failed(code, latency, err)
	}
	r.deliveryID = d.ID

	status, err := r.orderStatus(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != "OUT_FOR_DELIVERY" {
		return Result{Status: statusFail, Latency: latency, Note: "order status " + status}
	}
	return Result{Status: statusPass, Latency: latency}
}

func completeDelivery(ctx context.Context, r *Runner) Result {
	if r.deliveryID == "" {
		return Result{Status: statusSkip, Note: "delivery missing"}
	}
	for _, status := range []string{"IN_TRANSIT", "DELIVERED"} {
		code, latency, err := r.callJSON(ctx, http.MethodPut, "/api/deliveries/"+r.deliveryID+"/status", "delivery_officer",
			map[string]any{"status": status, "lat": 5.556, "lng": -0.182}, nil)
		if err != nil || code != http.StatusOK {
			return failed(code, latency, err)
		}
	}
	status, err := r.orderStatus(ctx)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if status != "COMPLETED" {
		return Result{Status: statusFail, Note: "order status " + status}
	}
	return Result{Status: statusPass}
}

func concurrentNumbers(ctx context.Context, r *Runner) Result {
	if r.tokens["customer"] == "" {
		return Result{Status: statusSkip, Note: "no jwt secret"}
	}
	var (
		mu      sync.Mutex
		numbers = map[string]bool{}
	)
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Concurrency; i++ {
		g.Go(func() error {
			var o struct {
				OrderNumber string `json:"orderNumber"`
			}
			code, _, err := r.callJSON(gctx, http.MethodPost, "/api/orders", "customer", orderBody(), &o)
			if err != nil {
				return err
			}
			if code != http.StatusCreated {
				return fmt.Errorf("status %d", code)
			}
			mu.Lock()
			defer mu.Unlock()
			if numbers[o.OrderNumber] {
				return fmt.Errorf("duplicate order number %s", o.OrderNumber)
			}
			numbers[o.OrderNumber] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Status: statusFail, Latency: time.Since(start), Note: err.Error()}
	}
	return Result{Status: statusPass, Latency: time.Since(start), Note: fmt.Sprintf("%d unique", len(numbers))}
}

func (r *Runner) orderStatus(ctx context.Context) (string, error) {
	var o struct {
		Status string `json:"status"`
	}
	code, _, err := r.callJSON(ctx, http.MethodGet, "/api/orders/"+r.orderID, "admin", nil, &o)
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", fmt.Errorf("get order: status %d", code)
	}
	return o.Status, nil
}

func (r *Runner) callJSON(ctx context.Context, method, path, role string, body, out any) (int, time.Duration, error) {
	code, raw, latency, err := r.call(ctx, method, path, r.tokens[role], body)
	if err != nil {
		return 0, latency, err
	}
	if out != nil && code < 300 && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return code, latency, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return code, latency, nil
}

func (r *Runner) call(ctx context.Context, method, path, token string, body any) (int, []byte, time.Duration, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return 0, nil, 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, &buf)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, time.Since(start), err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	return resp.StatusCode, raw, time.Since(start), err
}

func failed(code int, latency time.Duration, err error) Result {
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status %d", code)}
}
