// Package panel provides an embeddable coordinator for networked
// fabrication devices.
//
// Print heads and material containers connect to the panel over TCP or UDP
// and announce themselves with a one-byte handshake. The panel streams
// blueprint instructions to a free print head one at a time, waiting for
// each acknowledgment, draws material from the matching container and
// pauses jobs while a container is empty.
//
// # Basic Usage
//
//	p, err := panel.New(panel.Config{BlueprintDir: "blueprints"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := p.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Stop()
//
//	job, err := p.PrintNamed(ctx, "modell", "")
//
// # Event Handling
//
// Implement [EventHandler] and pass it via [WithEventHandler] to observe
// lifecycle transitions and device events. Device events are delivered
// synchronously from the engine goroutine. [Panel.Subscribe] registers
// additional listeners at run time.
//
// # Plugins
//
// Plugins receive an [Engine] when the panel starts:
//
//	p, err := panel.New(cfg,
//	    panel.WithPlugin(restapi.New(restapi.DefaultConfig())),
//	    panel.WithPlugin(catalogwatcher.New(catalogwatcher.DefaultConfig())),
//	)
//
// # Lifecycle States
//
// A Panel is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. Use [Panel.Status] to query it.
package panel
