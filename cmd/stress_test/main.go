package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/half-order/internal/adapter/clock"
	"github.com/rl1809/half-order/internal/adapter/storage"
	"github.com/rl1809/half-order/internal/config"
	"github.com/rl1809/half-order/internal/core/service"
)

const totalRequests = 50

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.Store.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(totalRequests)
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}

	adapter := storage.NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Seed a restaurant with one half-portion dish
	res, err := db.ExecContext(ctx, `INSERT INTO restaurants (name, half_order_join_fee) VALUES (?, ?)`,
		"stress-"+uuid.NewString()[:8], 20)
	if err != nil {
		log.Fatalf("failed to seed restaurant: %v", err)
	}
	restaurantID, err := res.LastInsertId()
	if err != nil {
		log.Fatalf("failed to read restaurant id: %v", err)
	}
	res, err = db.ExecContext(ctx, `INSERT INTO menu_items (restaurant_id, name, price, half_price) VALUES (?, ?, ?, ?)`,
		restaurantID, "Paneer Tikka", 280, 150)
	if err != nil {
		log.Fatalf("failed to seed menu item: %v", err)
	}
	menuItemID, err := res.LastInsertId()
	if err != nil {
		log.Fatalf("failed to read menu item id: %v", err)
	}

	svc := service.NewSessionService(adapter, nil, clock.System{}, service.DefaultConfig())
	session, err := svc.Create(ctx, service.CreateRequest{
		RestaurantID: restaurantID,
		TableNo:      "1",
		CustomerName: "Origin",
		MenuItemID:   menuItemID,
	})
	if err != nil {
		log.Fatalf("failed to create half order: %v", err)
	}

	// Counters
	var successCount, rejectedCount, errorCount atomic.Int32

	// Spawn concurrent joins from distinct tables
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(table int) {
			defer wg.Done()

			_, err := svc.Join(ctx, service.JoinRequest{
				SessionID:    session.ID,
				TableNo:      fmt.Sprintf("%d", table+2),
				CustomerName: fmt.Sprintf("Joiner %d", table),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, service.ErrState), errors.Is(err, service.ErrDuplicateJoin):
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("join %d: %v", table, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	rejected := rejectedCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Session:          %s\n", session.ID)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Matched:          %d\n", success)
	fmt.Printf("Rejected:         %d\n", rejected)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == 1 && rejected == totalRequests-1 {
		fmt.Printf("PASS: Exactly 1 join matched, %d rejected\n", totalRequests-1)
	} else {
		fmt.Printf("FAIL: Expected 1 match/%d rejected, got %d/%d\n", totalRequests-1, success, rejected)
	}

	// Verify the ledger
	var pairings int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM paired_orders WHERE half_session_a = ?`, session.ID).Scan(&pairings)
	if err != nil {
		log.Fatalf("failed to count paired orders: %v", err)
	}
	fmt.Printf("Paired Orders:    %d\n", pairings)
	if pairings == 1 {
		fmt.Println("PASS: One paired order recorded")
	} else {
		fmt.Printf("FAIL: Expected 1 paired order, got %d\n", pairings)
	}
}
