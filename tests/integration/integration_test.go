//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go/modules/compose"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	baseURL    string
	httpClient *http.Client
)

// Request/response types — defined locally to keep tests truly black-box
// (no internal imports).

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type cartItem struct {
	ProductID string  `json:"product_id"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price,omitempty"`
}

type validateRequest struct {
	Code               string     `json:"code"`
	CartItems          []cartItem `json:"cart_items"`
	UserID             int64      `json:"user_id,omitempty"`
	Email              string     `json:"email,omitempty"`
	Phone              string     `json:"phone,omitempty"`
	DeliveryMethod     string     `json:"delivery_method,omitempty"`
	FulfillmentTime    string     `json:"fulfillment_time,omitempty"`
	ShipDiscountActive bool       `json:"ship_discount_active,omitempty"`
}

type validateResponse struct {
	Valid   bool           `json:"valid"`
	Coupon  *appliedCoupon `json:"coupon,omitempty"`
	Message string         `json:"message"`
}

type appliedCoupon struct {
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discount_amount"`
	FreeShip       bool    `json:"free_ship"`
	Message        string  `json:"message"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type orderRequest struct {
	Items      []orderItemRequest `json:"items"`
	CouponCode string             `json:"coupon_code,omitempty"`
	UserID     int64              `json:"user_id,omitempty"`
	Email      string             `json:"email,omitempty"`
}

type orderResponse struct {
	ID         string  `json:"id"`
	Subtotal   float64 `json:"subtotal"`
	Discount   float64 `json:"discount"`
	Total      float64 `json:"total"`
	FreeShip   bool    `json:"free_ship"`
	CouponCode string  `json:"coupon_code,omitempty"`
	Message    string  `json:"message,omitempty"`
}

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Coverage output directory for the instrumented binary.
	if err := os.MkdirAll("coverdir", 0o777); err != nil {
		log.Fatalf("create coverdir: %v", err)
	}

	dc, err := tc.NewDockerCompose("docker-compose.test.yml")
	if err != nil {
		log.Fatalf("compose init: %v", err)
	}

	err = dc.
		WaitForService("api", wait.ForHTTP("/readyz").WithPort("8080/tcp")).
		Up(ctx, tc.Wait(true))
	if err != nil {
		log.Fatalf("compose up: %v", err)
	}

	apiContainer, err := dc.ServiceContainer(ctx, "api")
	if err != nil {
		log.Fatalf("api container: %v", err)
	}

	host, err := apiContainer.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}

	mappedPort, err := apiContainer.MappedPort(ctx, "8080/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	baseURL = fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	httpClient = &http.Client{Timeout: 10 * time.Second}
	log.Printf("API available at %s", baseURL)

	// Seed catalog and coupons by running seed-db inside the API container
	// (the image includes the seed-db binary and DATABASE_URL).
	exitCode, output, err := apiContainer.Exec(ctx, []string{"/app/seed-db"})
	if err != nil {
		log.Fatalf("seed exec: %v", err)
	}
	if exitCode != 0 {
		out, _ := io.ReadAll(output)
		log.Fatalf("seed-db exited %d: %s", exitCode, out)
	}
	log.Printf("seed-db completed")

	if err := waitForSeededData(ctx); err != nil {
		log.Fatalf("wait for seed: %v", err)
	}

	result := m.Run()

	// Stop the API container gracefully so the instrumented binary flushes
	// coverage to GOCOVERDIR (bind-mounted to ./coverdir).
	stopTimeout := 30 * time.Second
	if err := apiContainer.Stop(ctx, &stopTimeout); err != nil {
		log.Printf("stop api container: %v", err)
	}

	if err := dc.Down(context.Background(), tc.RemoveOrphans(true)); err != nil {
		log.Printf("compose down: %v", err)
	}

	return result
}

// waitForSeededData polls coupon validation until the seeded BANH20 coupon
// resolves, which proves both the catalog and the coupons landed.
func waitForSeededData(ctx context.Context) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	check := validateRequest{
		Code:      "BANH20",
		CartItems: []cartItem{{ProductID: "matcha-cake", Qty: 1}},
	}
	data, err := json.Marshal(check)
	if err != nil {
		return err
	}

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for seeded data (last: %s): %w", lastErr, ctx.Err())
		case <-ticker.C:
			resp, err := httpClient.Post(baseURL+"/api/coupons/validate", "application/json", bytes.NewReader(data))
			if err != nil {
				lastErr = err.Error()
				continue
			}

			var body validateResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				lastErr = fmt.Sprintf("decode: %v (status: %d)", err, resp.StatusCode)
				resp.Body.Close()
				continue
			}
			resp.Body.Close()

			if body.Valid {
				log.Printf("seed data ready")
				return nil
			}
			lastErr = fmt.Sprintf("BANH20 not valid yet: %s", body.Message)
		}
	}
}

// HTTP helpers.

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+path, nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}

	return resp
}

func doPost(t *testing.T, path string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}

	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return v
}
