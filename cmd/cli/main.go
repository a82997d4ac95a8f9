package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nazeru/storefront-go/internal/client"
	"github.com/nazeru/storefront-go/internal/order/domain"
)

const demoUser = "cli-user"

type scenario struct {
	Name        string
	Description string
}

type model struct {
	api         *client.Client
	products    []string
	scenarios   []scenario
	selectedPrd int
	selectedScn int
	lastOrder   string
	status      string
	detail      string
	busy        bool
}

func initialModel(api *client.Client, products []string) model {
	return model{
		api:      api,
		products: products,
		scenarios: []scenario{
			{"place", "Place an order for 1 unit"},
			{"track", "Track the last order"},
			{"cancel", "Cancel the last order"},
			{"bench", "Concurrent placements for 5s"},
		},
		status: "Ready",
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up":
			if m.selectedPrd > 0 {
				m.selectedPrd--
			}
		case "down":
			if m.selectedPrd < len(m.products)-1 {
				m.selectedPrd++
			}
		case "left":
			if m.selectedScn > 0 {
				m.selectedScn--
			}
		case "right":
			if m.selectedScn < len(m.scenarios)-1 {
				m.selectedScn++
			}
		case "enter":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "Running..."
			return m, runScenarioCmd(m.api, m.scenarios[m.selectedScn].Name, m.products[m.selectedPrd], m.lastOrder)
		}
	case scenarioResult:
		m.busy = false
		m.status = msg.status
		m.detail = msg.detail
		if msg.orderNumber != "" {
			m.lastOrder = msg.orderNumber
		}
	}
	return m, nil
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "storefront CLI")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Products:")
	for i, p := range m.products {
		marker := " "
		if i == m.selectedPrd {
			marker = ">"
		}
		fmt.Fprintf(b, " %s %s\n", marker, p)
	}
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Scenarios (use left/right):")
	for i, scn := range m.scenarios {
		marker := " "
		if i == m.selectedScn {
			marker = "*"
		}
		fmt.Fprintf(b, " %s %s - %s\n", marker, scn.Name, scn.Description)
	}
	fmt.Fprintln(b, "")
	if m.lastOrder != "" {
		fmt.Fprintf(b, "Last order: %s\n", m.lastOrder)
	}
	fmt.Fprintf(b, "Status: %s\n", m.status)
	if m.detail != "" {
		fmt.Fprintln(b, m.detail)
	}
	fmt.Fprintln(b, "\nControls: up/down select product, left/right select scenario, enter to run, q to quit")
	return b.String()
}

type scenarioResult struct {
	status      string
	detail      string
	orderNumber string
}

func demoRequest(productID string) client.PlaceOrderRequest {
	return client.PlaceOrderRequest{
		UserID:        demoUser,
		CustomerEmail: "cli@example.com",
		Items:         []client.Item{{ProductID: productID, Quantity: 1}},
		ShippingAddress: domain.Address{
			FullName: "CLI Customer",
			Phone:    "555-0100",
			Street:   "1 Terminal Rd",
			City:     "Portland",
			State:    "OR",
			ZipCode:  "97201",
		},
		PaymentMethod:  "credit_card",
		ShippingMethod: "standard",
	}
}

func runScenarioCmd(api *client.Client, scn, productID, lastOrder string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		switch scn {
		case "bench":
			return scenarioResult{status: "Benchmark finished", detail: runBenchmark(api, productID)}
		case "track":
			if lastOrder == "" {
				return scenarioResult{status: "No order placed yet"}
			}
			t, err := api.Track(ctx, lastOrder)
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Track failed: %v", err)}
			}
			return scenarioResult{status: fmt.Sprintf("%s is %s", t.OrderNumber, t.Status), detail: formatHistory(t)}
		case "cancel":
			if lastOrder == "" {
				return scenarioResult{status: "No order placed yet"}
			}
			id, err := api.OrderID(ctx, demoUser, lastOrder)
			if err == nil {
				err = api.Cancel(ctx, id, "Cancelled from CLI")
			}
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Cancel failed: %v", err)}
			}
			return scenarioResult{status: fmt.Sprintf("%s cancelled, stock restored", lastOrder)}
		default:
			o, err := api.PlaceOrder(ctx, demoRequest(productID))
			if err != nil {
				return scenarioResult{status: fmt.Sprintf("Order failed: %v", err)}
			}
			return scenarioResult{
				status:      fmt.Sprintf("Order %s placed: total $%s, %s", o.OrderNumber, o.Total, o.Status),
				orderNumber: o.OrderNumber,
			}
		}
	}
}

func formatHistory(t domain.Tracking) string {
	b := &strings.Builder{}
	for _, e := range t.StatusHistory {
		fmt.Fprintf(b, "  %s  %-10s %s\n", e.Timestamp.Format(time.RFC3339), e.Status, e.Note)
	}
	return strings.TrimRight(b.String(), "\n")
}

func runBenchmark(api *client.Client, productID string) string {
	duration := 5 * time.Second
	vus := 5
	var mu sync.Mutex
	var total time.Duration
	var count, rejected, failed int
	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < vus; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				start := time.Now()
				_, err := api.PlaceOrder(ctx, demoRequest(productID))
				mu.Lock()
				switch {
				case err == nil:
					count++
					total += time.Since(start)
				case isRejection(err):
					rejected++
				case ctx.Err() == nil:
					failed++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	avg := time.Duration(0)
	if count > 0 {
		avg = total / time.Duration(count)
	}
	throughput := float64(count) / duration.Seconds()
	return fmt.Sprintf("placed=%d rejected=%d errors=%d avg=%s throughput=%.2f orders/s", count, rejected, failed, avg, throughput)
}

func isRejection(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest
}

func main() {
	runCmd := flag.String("run", "", "run scenario: place|track|cancel|bench")
	product := flag.String("product", "", "product id for place/bench (default: first of -products)")
	order := flag.String("order", "", "order number for track/cancel")
	products := flag.String("products", getenv("CLI_PRODUCTS", "P1,P2,P3,P4"), "comma-separated product ids")
	flag.Parse()

	api := client.New(getenv("ORDER_BASE_URL", "http://localhost:8080"), 5*time.Second)
	ids := splitCSV(*products)
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "no products configured")
		os.Exit(1)
	}

	if *runCmd != "" {
		productID := *product
		if productID == "" {
			productID = ids[0]
		}
		res := runScenarioCmd(api, *runCmd, productID, *order)().(scenarioResult)
		fmt.Println(res.status)
		if res.detail != "" {
			fmt.Println(res.detail)
		}
		return
	}

	p := tea.NewProgram(initialModel(api, ids))
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
