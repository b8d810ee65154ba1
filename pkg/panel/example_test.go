package panel_test

import (
	"context"
	"fmt"

	"github.com/bft-labs/fabpanel/pkg/panel"
)

// ExampleNew demonstrates how to embed a panel in your application.
func ExampleNew() {
	cfg := panel.Config{
		StreamAddr:   "127.0.0.1:0",
		DatagramAddr: "127.0.0.1:0",
	}

	p, err := panel.New(cfg)
	if err != nil {
		fmt.Printf("failed to create panel: %v\n", err)
		return
	}

	if err := p.Start(context.Background()); err != nil {
		fmt.Printf("failed to start: %v\n", err)
		return
	}
	fmt.Println("Status:", p.Status())

	// No print head has connected yet.
	_, err = p.StartPrint(context.Background(), nil, "cube")
	fmt.Println("Resource unavailable:", panel.IsResourceUnavailable(err))

	_ = p.Stop()
	fmt.Println("Status:", p.Status())

	// Output:
	// Status: Running
	// Resource unavailable: true
	// Status: Stopped
}

// Example_withEventHandler demonstrates how to receive panel events.
func Example_withEventHandler() {
	handler := &myEventHandler{}

	p, err := panel.New(panel.Config{}, panel.WithEventHandler(handler))
	if err != nil {
		fmt.Printf("failed to create panel: %v\n", err)
		return
	}

	_ = p // Use panel instance...
}

// myEventHandler implements panel.EventHandler for event notifications.
type myEventHandler struct {
	panel.BaseEventHandler // Embed for no-op defaults
}

func (h *myEventHandler) OnDeviceEvent(event panel.Event) {
	fmt.Printf("%s on part %d\n", event.Kind, event.PartID)
}
