// Package factory creates network stacks and sockets from configuration.
//
// The factory lets consuming code switch between the simulated, operating
// system and userspace stacks without changing anything but configuration.
//
// # Configuration
//
// Defaults can be overridden with environment variables:
//   - DGRAM_STACK: "sim", "real" or "userspace"
//   - DGRAM_TIMEOUT_MS: socket timeout in milliseconds; 0 polls, -1 blocks forever
//   - DGRAM_QUEUE_DEPTH: per-socket receive queue depth of the simulated stack
//
// Values that fail to parse or fall out of bounds are logged and ignored.
//
// # Usage
//
//	f := factory.NewStackFactory()
//	stack, err := f.CreateStack()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stack.Close()
//
//	sock, err := f.OpenSocket(stack)
//
// Tests build a simulated stack directly:
//
//	stack := f.CreateSimulationForTesting(factory.WithQueueDepth(4))
//
// All StackFactory methods are safe for concurrent use.
package factory
