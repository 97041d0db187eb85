package xstream_test

import (
	"context"
	"fmt"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xbus/pkg/mq/xstream"
	"github.com/omeyang/xbus/pkg/observability/xlog"
)

// Example 演示发布与订阅
func Example() {
	mr, err := miniredis.Run()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus, err := xstream.New(client, xstream.WithLogger(xlog.Discard()))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer bus.Shutdown(context.Background())

	ctx := context.Background()
	got := make(chan string, 1)
	err = bus.Subscribe(ctx, "orders", xstream.SubscribeOptions{Group: "billing", Block: 50 * time.Millisecond},
		func(_ context.Context, msg *xstream.Message) error {
			got <- msg.Type
			return nil
		})
	if err != nil {
		fmt.Println(err)
		return
	}

	msg, _ := xstream.NewMessage("order.created", "svc-a", map[string]int{"amount": 42})
	if _, err := bus.Publish(ctx, "orders", msg); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(<-got)
	// Output: order.created
}

// ExampleDeadLetterStream 演示死信流命名
func ExampleDeadLetterStream() {
	fmt.Println(xstream.DeadLetterStream("orders"))
	// Output: orders:dead-letter
}
