//go:build ignore

// sellstorm.go stocks one good and fires concurrent sales at a running stockd,
// then checks that units sold and the sales total agree with what is left.
//
// Run stockd with SERVER_RATE_LIMIT_RPS=0 so the limiter does not skew results.
//
// Run with: go run scripts/sellstorm.go -server http://localhost:8000 -stock 100 -workers 32
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinikov/stockapi/pkg/client"
)

func main() {
	server := flag.String("server", "http://localhost:8000", "stockd base URL")
	name := flag.String("good", fmt.Sprintf("storm-%d", time.Now().Unix()), "good to sell")
	stock := flag.Int("stock", 100, "units to stock before the storm")
	workers := flag.Int("workers", 32, "concurrent sellers")
	attempts := flag.Int("attempts", 10, "sales attempted per worker")
	price := flag.Float64("price", 1, "unit price")
	flag.Parse()

	ctx := context.Background()
	c := client.MustNew(*server)

	before, err := c.Sales(ctx)
	if err != nil {
		fail("read sales: %v", err)
	}
	if err := c.AddStock(ctx, *name, *stock); err != nil {
		fail("add stock: %v", err)
	}

	var sold, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < *attempts; j++ {
				err := c.Sell(ctx, client.Sale{Name: *name, Amount: 1, Price: *price})
				switch {
				case err == nil:
					sold.Add(1)
				case errors.Is(err, client.ErrRejected):
					rejected.Add(1)
				default:
					failed.Add(1)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	left, err := c.Stock(ctx, *name)
	if err != nil {
		fail("read stock: %v", err)
	}
	after, err := c.Sales(ctx)
	if err != nil {
		fail("read sales: %v", err)
	}

	fmt.Printf("%d attempts in %s: %d sold, %d rejected, %d failed\n",
		*workers**attempts, elapsed.Round(time.Millisecond), sold.Load(), rejected.Load(), failed.Load())
	fmt.Printf("stock left: %d, sales delta: %.2f\n", left, after-before)

	ok := int64(left)+sold.Load() == int64(*stock)
	want := float64(sold.Load()) * *price
	if d := after - before - want; d > 0.01 || d < -0.01 {
		ok = false
	}
	if !ok {
		fail("ledger inconsistent: expected %d sold and %.2f credited", int64(*stock)-int64(left), want)
	}
	fmt.Println("ledger consistent")
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "sellstorm: "+format+"\n", args...)
	os.Exit(1)
}
