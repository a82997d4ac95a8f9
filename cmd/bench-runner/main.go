package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/client"
	"github.com/nazeru/storefront-go/internal/order"
	"github.com/nazeru/storefront-go/internal/order/domain"
)

type benchResult struct {
	Timestamp          string         `json:"timestamp"`
	Target             string         `json:"target"`
	Scenario           string         `json:"scenario"`
	Transactions       int            `json:"transactions"`
	Concurrency        int            `json:"concurrency"`
	Quantity           int            `json:"quantity"`
	SuccessfulRequests int            `json:"successful_requests"`
	RejectedRequests   int            `json:"rejected_requests"`
	ErrorRequests      int            `json:"error_requests"`
	DurationSeconds    float64        `json:"duration_seconds"`
	AvgLatencyMs       float64        `json:"avg_latency_ms"`
	MinLatencyMs       float64        `json:"min_latency_ms"`
	MaxLatencyMs       float64        `json:"max_latency_ms"`
	P50LatencyMs       float64        `json:"p50_latency_ms"`
	P90LatencyMs       float64        `json:"p90_latency_ms"`
	P95LatencyMs       float64        `json:"p95_latency_ms"`
	P99LatencyMs       float64        `json:"p99_latency_ms"`
	ThroughputRPS      float64        `json:"throughput_rps"`
	ErrorClasses       map[string]int `json:"error_classes"`
	FirstError         string         `json:"first_error"`
	DoubleCancels      int            `json:"double_cancels"`
	InitialStock       int            `json:"initial_stock,omitempty"`
	FinalStock         int            `json:"final_stock,omitempty"`
	Oversold           bool           `json:"oversold"`
}

// target is the system under load: a running server or an in-process
// service over memory stores.
type target interface {
	place(ctx context.Context, productID string, quantity int) (string, error)
	cancel(ctx context.Context, ref string) error
	// classify returns "" for business rejections the bench expects.
	classify(err error) string
}

type metrics struct {
	mu            sync.Mutex
	success       int
	rejected      int
	errors        int
	doubleCancels int
	total         time.Duration
	minLatency    time.Duration
	maxLatency    time.Duration
	latenciesMs   []float64
	errorClasses  map[string]int
	firstError    string
}

func newMetrics() *metrics {
	return &metrics{errorClasses: make(map[string]int)}
}

func (m *metrics) recordTransaction(latency time.Duration, err error, class string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if class == "" {
			m.rejected++
			return
		}
		m.errors++
		m.errorClasses[class]++
		if m.firstError == "" {
			m.firstError = err.Error()
		}
		return
	}
	m.success++
	m.total += latency
	if m.minLatency == 0 || latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	m.latenciesMs = append(m.latenciesMs, float64(latency.Milliseconds()))
}

func (m *metrics) recordDoubleCancel() {
	m.mu.Lock()
	m.doubleCancels++
	m.mu.Unlock()
}

type options struct {
	scenario    string
	productID   string
	quantity    int
	total       int
	concurrency int
	timeout     time.Duration
}

func main() {
	baseURL := flag.String("base-url", getenv("ORDER_BASE_URL", "http://localhost:8080"), "storefront base URL")
	targetName := flag.String("target", "http", "target: http|inproc")
	scenario := flag.String("scenario", "place", "scenario to run: place|cancel")
	productID := flag.String("product", "P1", "product id to order")
	quantity := flag.Int("quantity", 1, "units per order")
	stock := flag.Int("stock", 100, "initial stock of the product (inproc target)")
	total := flag.Int("total", 1000, "total number of orders")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	timeout := flag.Duration("timeout", 10*time.Second, "per-request timeout")
	output := flag.String("output", "", "optional output path for JSON result")
	flag.Parse()

	if *total <= 0 || *concurrency <= 0 || *quantity <= 0 {
		fmt.Fprintln(os.Stderr, "total, concurrency and quantity must be > 0")
		os.Exit(1)
	}

	var (
		tgt   target
		stockOf func() int
	)
	switch *targetName {
	case "http":
		tgt = httpTarget{api: client.New(*baseURL, *timeout)}
	case "inproc":
		in, err := newInprocTarget(*productID, *stock)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		tgt, stockOf = in, in.stock
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *targetName)
		os.Exit(1)
	}

	opts := options{
		scenario:    *scenario,
		productID:   *productID,
		quantity:    *quantity,
		total:       *total,
		concurrency: *concurrency,
		timeout:     *timeout,
	}
	result := run(tgt, opts)
	result.Target = *targetName
	if stockOf != nil {
		result.InitialStock = *stock
		result.FinalStock = stockOf()
		result.Oversold = oversold(opts.scenario, result.InitialStock, result.FinalStock, result.SuccessfulRequests*opts.quantity)
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(data))
	if *output != "" {
		if err := writeJSON(*output, result); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write output: %v\n", err)
			os.Exit(1)
		}
	}
	if result.Oversold || result.DoubleCancels > 0 {
		os.Exit(2)
	}
}

func run(tgt target, opts options) benchResult {
	tasks := make(chan struct{})
	var wg sync.WaitGroup
	m := newMetrics()

	start := time.Now()
	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range tasks {
				latency, err := runTransaction(tgt, opts, m)
				class := ""
				if err != nil {
					class = tgt.classify(err)
				}
				m.recordTransaction(latency, err, class)
			}
		}()
	}

	for i := 0; i < opts.total; i++ {
		tasks <- struct{}{}
	}
	close(tasks)
	wg.Wait()

	duration := time.Since(start)
	avgLatency, minLatency, maxLatency := 0.0, 0.0, 0.0
	if m.success > 0 {
		avgLatency = float64(m.total.Milliseconds()) / float64(m.success)
		minLatency = float64(m.minLatency.Milliseconds())
		maxLatency = float64(m.maxLatency.Milliseconds())
	}
	p50, p90, p95, p99 := calcPercentiles(m.latenciesMs)

	return benchResult{
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		Scenario:           opts.scenario,
		Transactions:       opts.total,
		Concurrency:        opts.concurrency,
		Quantity:           opts.quantity,
		SuccessfulRequests: m.success,
		RejectedRequests:   m.rejected,
		ErrorRequests:      m.errors,
		DurationSeconds:    duration.Seconds(),
		AvgLatencyMs:       avgLatency,
		MinLatencyMs:       minLatency,
		MaxLatencyMs:       maxLatency,
		P50LatencyMs:       p50,
		P90LatencyMs:       p90,
		P95LatencyMs:       p95,
		P99LatencyMs:       p99,
		ThroughputRPS:      float64(m.success) / duration.Seconds(),
		ErrorClasses:       m.errorClasses,
		FirstError:         m.firstError,
		DoubleCancels:      m.doubleCancels,
	}
}

// runTransaction places one order. In the cancel scenario it then fires two
// concurrent cancellations; exactly one may succeed.
func runTransaction(tgt target, opts options, m *metrics) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	start := time.Now()
	ref, err := tgt.place(ctx, opts.productID, opts.quantity)
	if err != nil || opts.scenario != "cancel" {
		return time.Since(start), err
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tgt.cancel(ctx, ref) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	switch ok {
	case 1:
		return time.Since(start), nil
	case 0:
		return time.Since(start), errors.New("order " + ref + " could not be cancelled")
	default:
		m.recordDoubleCancel()
		return time.Since(start), nil
	}
}

// oversold reports whether the final stock contradicts the successful
// placements. After a cancel run every unit must be back.
func oversold(scenario string, initial, final, sold int) bool {
	if final < 0 {
		return true
	}
	if scenario == "cancel" {
		return final != initial
	}
	return initial-final != sold
}

type httpTarget struct {
	api *client.Client
}

func (t httpTarget) place(ctx context.Context, productID string, quantity int) (string, error) {
	o, err := t.api.PlaceOrder(ctx, client.PlaceOrderRequest{
		UserID:          "bench-user",
		CustomerEmail:   "bench@example.com",
		Items:           []client.Item{{ProductID: productID, Quantity: quantity}},
		ShippingAddress: benchAddress(),
		PaymentMethod:   "credit_card",
	})
	if err != nil {
		return "", err
	}
	return o.OrderNumber, nil
}

func (t httpTarget) cancel(ctx context.Context, number string) error {
	id, err := t.api.OrderID(ctx, "bench-user", number)
	if err != nil {
		return err
	}
	return t.api.Cancel(ctx, id, "bench")
}

func (t httpTarget) classify(err error) string {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		return "transport"
	}
	switch {
	case apiErr.StatusCode == http.StatusBadRequest && strings.Contains(apiErr.Message, "insufficient stock"):
		return ""
	case apiErr.StatusCode >= 500:
		return "http_5xx"
	default:
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	}
}

type inprocTarget struct {
	store     *catalog.MemoryStore
	svc       *order.Service
	productID string
}

func newInprocTarget(productID string, stock int) (*inprocTarget, error) {
	store := catalog.NewMemoryStore(catalog.Product{
		ID: productID, Name: "Bench Product", Price: decimal.RequireFromString("9.99"), Stock: stock, IsActive: true,
	})
	svc, err := order.NewService(order.Deps{
		Ledger:            order.NewMemoryLedger(),
		Catalog:           store,
		Logger:            zap.NewNop(),
		StrictTransitions: true,
	})
	if err != nil {
		return nil, err
	}
	return &inprocTarget{store: store, svc: svc, productID: productID}, nil
}

func (t *inprocTarget) place(ctx context.Context, productID string, quantity int) (string, error) {
	o, err := t.svc.PlaceOrder(ctx, order.PlaceOrderInput{
		CustomerID:      "bench-user",
		CustomerEmail:   "bench@example.com",
		Lines:           []order.CartLine{{ProductID: productID, Quantity: quantity}},
		ShippingAddress: benchAddress(),
		PaymentMethod:   "credit_card",
	})
	if err != nil {
		return "", err
	}
	return o.ID, nil
}

func (t *inprocTarget) cancel(ctx context.Context, id string) error {
	_, err := t.svc.CancelOrder(ctx, id, "bench")
	return err
}

func (t *inprocTarget) classify(err error) string {
	if reason := order.FailureReason(err); reason != "insufficient_stock" {
		return reason
	}
	return ""
}

func (t *inprocTarget) stock() int {
	p, err := t.store.Get(context.Background(), t.productID)
	if err != nil {
		return -1
	}
	return p.Stock
}

func benchAddress() domain.Address {
	return domain.Address{
		FullName: "Bench Customer",
		Phone:    "555-0199",
		Street:   "9 Load Test Ave",
		City:     "Austin",
		State:    "TX",
		ZipCode:  "73301",
	}
}

func writeJSON(path string, result benchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func calcPercentiles(values []float64) (float64, float64, float64, float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}
	sort.Float64s(values)
	return percentile(values, 0.50), percentile(values, 0.90), percentile(values, 0.95), percentile(values, 0.99)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
