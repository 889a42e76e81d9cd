package factory

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/dgram"
	"github.com/opd-ai/dgram/interfaces"
	"github.com/opd-ai/dgram/limits"
	"github.com/opd-ai/dgram/real"
	"github.com/opd-ai/dgram/testing"
	"github.com/opd-ai/dgram/userspace"
	"github.com/sirupsen/logrus"
)

// Validation constants for configuration bounds checking.
const (
	// MaxTimeoutMillis is the largest timeout accepted from the environment (10 minutes).
	MaxTimeoutMillis = 600000
	// MinQueueDepth is the smallest per-socket queue depth accepted from the environment.
	MinQueueDepth = 1
)

// StackFactory creates network stacks and sockets based on configuration.
// It is safe for concurrent use; all methods are protected by an internal mutex.
type StackFactory struct {
	mu            sync.RWMutex
	defaultConfig *interfaces.StackConfig
}

// TestConfigOption is a functional option for customizing test simulation configuration.
type TestConfigOption func(*interfaces.StackConfig)

// NewStackFactory creates a new factory with default configuration and
// DGRAM_* environment overrides applied.
func NewStackFactory() *StackFactory {
	defaultConfig := createDefaultConfig()
	applyEnvironmentOverrides(defaultConfig)
	logConfigurationInfo(defaultConfig)

	return &StackFactory{
		defaultConfig: defaultConfig,
	}
}

// createDefaultConfig initializes the default stack configuration.
//
// Default Value Rationale:
//   - Kind: real - operating system sockets unless another stack is requested
//   - Timeout: Forever - sockets block like ordinary sockets until told otherwise
//   - QueueDepth: limits.DefaultQueueDepth - only used by stacks that queue in memory
func createDefaultConfig() *interfaces.StackConfig {
	return &interfaces.StackConfig{
		Kind:       interfaces.StackReal,
		Timeout:    interfaces.ForeverTimeout,
		QueueDepth: limits.DefaultQueueDepth,
		Hosts:      map[string]string{},
	}
}

// applyEnvironmentOverrides updates configuration based on environment variables.
// Invalid values are logged and ignored.
func applyEnvironmentOverrides(config *interfaces.StackConfig) {
	parseStackSetting(config)
	parseTimeoutSetting(config)
	parseQueueDepthSetting(config)
}

// parseStackSetting updates Kind from DGRAM_STACK.
func parseStackSetting(config *interfaces.StackConfig) {
	value := os.Getenv("DGRAM_STACK")
	if value == "" {
		return
	}
	kind := interfaces.StackKind(value)
	switch kind {
	case interfaces.StackSimulated, interfaces.StackReal, interfaces.StackUserspace:
		config.Kind = kind
	default:
		logrus.WithFields(logrus.Fields{
			"function":    "parseStackSetting",
			"env_var":     "DGRAM_STACK",
			"value":       value,
			"using_value": config.Kind,
		}).Warn("Unknown DGRAM_STACK value, using default")
	}
}

// parseTimeoutSetting updates Timeout from DGRAM_TIMEOUT_MS. -1 selects
// Forever; other values must lie in [0, MaxTimeoutMillis].
func parseTimeoutSetting(config *interfaces.StackConfig) {
	timeoutStr := os.Getenv("DGRAM_TIMEOUT_MS")
	if timeoutStr == "" {
		return
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseTimeoutSetting",
			"env_var":     "DGRAM_TIMEOUT_MS",
			"value":       timeoutStr,
			"error":       err.Error(),
			"using_value": config.Timeout.String(),
		}).Warn("Failed to parse DGRAM_TIMEOUT_MS environment variable, using default")
		return
	}
	if timeout == -1 {
		config.Timeout = interfaces.ForeverTimeout
		return
	}
	if timeout < 0 || timeout > MaxTimeoutMillis {
		logrus.WithFields(logrus.Fields{
			"function":    "parseTimeoutSetting",
			"env_var":     "DGRAM_TIMEOUT_MS",
			"value":       timeout,
			"min":         0,
			"max":         MaxTimeoutMillis,
			"using_value": config.Timeout.String(),
		}).Warn("DGRAM_TIMEOUT_MS value out of bounds, using default")
		return
	}
	config.Timeout = time.Duration(timeout) * time.Millisecond
}

// parseQueueDepthSetting updates QueueDepth from DGRAM_QUEUE_DEPTH.
func parseQueueDepthSetting(config *interfaces.StackConfig) {
	depthStr := os.Getenv("DGRAM_QUEUE_DEPTH")
	if depthStr == "" {
		return
	}
	depth, err := strconv.Atoi(depthStr)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "parseQueueDepthSetting",
			"env_var":     "DGRAM_QUEUE_DEPTH",
			"value":       depthStr,
			"error":       err.Error(),
			"using_value": config.QueueDepth,
		}).Warn("Failed to parse DGRAM_QUEUE_DEPTH environment variable, using default")
		return
	}
	if depth < MinQueueDepth || depth > limits.MaxQueueDepth {
		logrus.WithFields(logrus.Fields{
			"function":    "parseQueueDepthSetting",
			"env_var":     "DGRAM_QUEUE_DEPTH",
			"value":       depth,
			"min":         MinQueueDepth,
			"max":         limits.MaxQueueDepth,
			"using_value": config.QueueDepth,
		}).Warn("DGRAM_QUEUE_DEPTH value out of bounds, using default")
		return
	}
	config.QueueDepth = depth
}

func logConfigurationInfo(config *interfaces.StackConfig) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewStackFactory",
		"stack":       config.Kind,
		"timeout":     config.Timeout.String(),
		"queue_depth": config.QueueDepth,
		"bind":        config.BindAddress,
	}).Info("Created stack factory with configuration")
}

// CreateStack creates a stack from the factory's current configuration.
func (f *StackFactory) CreateStack() (interfaces.INetworkStack, error) {
	return f.CreateStackWithConfig(nil)
}

// CreateStackWithConfig creates a stack from config, or from the factory's
// configuration when config is nil.
func (f *StackFactory) CreateStackWithConfig(config *interfaces.StackConfig) (interfaces.INetworkStack, error) {
	if config == nil {
		config = f.GetCurrentConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CreateStackWithConfig",
		"stack":       config.Kind,
		"queue_depth": config.QueueDepth,
	}).Info("Creating network stack")

	switch config.Kind {
	case interfaces.StackSimulated:
		return testing.NewSimulatedStack(config), nil
	case interfaces.StackUserspace:
		return userspace.New(config)
	default:
		return real.New(config)
	}
}

// OpenSocket opens a socket on stack using the configured timeout, bound to
// the configured bind address when there is one.
func (f *StackFactory) OpenSocket(stack interfaces.INetworkStack) (*dgram.UDPSocket, error) {
	config := f.GetCurrentConfig()

	sock, err := dgram.Open(stack)
	if err != nil {
		return nil, err
	}
	if err := sock.SetTimeout(config.Timeout); err != nil {
		sock.Close()
		return nil, err
	}

	if config.BindAddress != "" {
		addr, err := netip.ParseAddrPort(config.BindAddress)
		if err != nil {
			sock.Close()
			return nil, fmt.Errorf("%w: bind address %q: %v", interfaces.ErrParameter, config.BindAddress, err)
		}
		if err := sock.Bind(addr); err != nil {
			sock.Close()
			return nil, err
		}
	}
	return sock, nil
}

// WithQueueDepth sets the per-socket queue depth for the test configuration.
func WithQueueDepth(depth int) TestConfigOption {
	return func(c *interfaces.StackConfig) {
		c.QueueDepth = depth
	}
}

// WithHost adds a host name to the test configuration.
func WithHost(name, addr string) TestConfigOption {
	return func(c *interfaces.StackConfig) {
		c.Hosts[name] = addr
	}
}

// WithLocalAddress sets the simulated stack's own address.
func WithLocalAddress(addr string) TestConfigOption {
	return func(c *interfaces.StackConfig) {
		c.LocalAddress = addr
	}
}

// CreateSimulationForTesting creates a simulated stack specifically for testing.
// Default test configuration uses a queue depth of 16 and no extra hosts.
func (f *StackFactory) CreateSimulationForTesting(opts ...TestConfigOption) *testing.SimulatedStack {
	testConfig := &interfaces.StackConfig{
		Kind:       interfaces.StackSimulated,
		Timeout:    time.Second,
		QueueDepth: 16,
		Hosts:      map[string]string{},
	}

	for _, opt := range opts {
		opt(testConfig)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "CreateSimulationForTesting",
		"queue_depth": testConfig.QueueDepth,
		"hosts":       len(testConfig.Hosts),
	}).Info("Creating simulated stack for testing")

	return testing.NewSimulatedStack(testConfig)
}

// SwitchTo changes the kind of stack CreateStack builds.
func (f *StackFactory) SwitchTo(kind interfaces.StackKind) error {
	switch kind {
	case interfaces.StackSimulated, interfaces.StackReal, interfaces.StackUserspace:
	default:
		return fmt.Errorf("%w: %q", interfaces.ErrUnknownStack, kind)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "SwitchTo",
		"previous": f.defaultConfig.Kind,
		"current":  kind,
	}).Info("Switching factory stack")

	f.defaultConfig.Kind = kind
	return nil
}

// GetCurrentConfig returns a copy of the current default configuration
func (f *StackFactory) GetCurrentConfig() *interfaces.StackConfig {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return copyConfig(f.defaultConfig)
}

// UpdateConfig validates config and makes a copy of it the factory's default.
func (f *StackFactory) UpdateConfig(config *interfaces.StackConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":    "UpdateConfig",
		"old_stack":   f.defaultConfig.Kind,
		"new_stack":   config.Kind,
		"old_timeout": f.defaultConfig.Timeout.String(),
		"new_timeout": config.Timeout.String(),
	}).Info("Updating factory configuration")

	f.defaultConfig = copyConfig(config)
	return nil
}

func copyConfig(c *interfaces.StackConfig) *interfaces.StackConfig {
	out := *c
	out.Hosts = make(map[string]string, len(c.Hosts))
	for name, addr := range c.Hosts {
		out.Hosts[name] = addr
	}
	return &out
}
