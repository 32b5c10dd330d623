package wasm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad/drivers/shared/eventer"
	"github.com/hashicorp/nomad/plugins/base"
	"github.com/hashicorp/nomad/plugins/device"
	"github.com/hashicorp/nomad/plugins/drivers"
	"github.com/hashicorp/nomad/plugins/shared/hclspec"
	"github.com/hashicorp/nomad/plugins/shared/structs"

	"huawei.com/wasm-host-driver/wasm/callframe"
	"huawei.com/wasm-host-driver/wasm/engines"
	"huawei.com/wasm-host-driver/wasm/hostfuncs"
	"huawei.com/wasm-host-driver/wasm/interfaces"

	// engine backends register themselves in the engines registry.
	_ "huawei.com/wasm-host-driver/wasm/engines/wasmedge"
	_ "huawei.com/wasm-host-driver/wasm/engines/wasmtime"
	_ "huawei.com/wasm-host-driver/wasm/engines/wazero"
)

const (
	fingerprintPrefix = "wasm"
	pluginName        = "wasm-host-driver"
	pluginVersion     = "v0.1.0"
	fingerprintPeriod = 30 * time.Second
	taskHandleVersion = 1
)

var (
	pluginInfo = &base.PluginInfoResponse{
		Type:              base.PluginTypeDriver,
		PluginApiVersions: []string{drivers.ApiVersion010},
		PluginVersion:     pluginVersion,
		Name:              pluginName,
	}

	capabilities = &drivers.Capabilities{}
)

// TaskState is encoded in the handle returned to the Nomad client.
type TaskState struct {
	ReattachConfig *structs.ReattachConfig
	TaskConfig     *drivers.TaskConfig
	StartedAt      time.Time
}

type WasmTaskDriverPlugin struct {
	eventer     *eventer.Eventer
	config      *Config
	nomadConfig *base.ClientDriverConfig
	tasks       *taskStore

	// ctx is cancelled on shutdown and stops fingerprint, wait and stats loops.
	ctx            context.Context
	signalShutdown context.CancelFunc

	logger hclog.Logger
}

// NewPlugin returns the wasm host driver plugin.
func NewPlugin(logger hclog.Logger) drivers.DriverPlugin {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.Named(pluginName)

	return &WasmTaskDriverPlugin{
		eventer:        eventer.NewEventer(ctx, logger),
		config:         &Config{},
		tasks:          newTaskStore(),
		ctx:            ctx,
		signalShutdown: cancel,
		logger:         logger,
	}
}

// PluginInfo returns information describing the plugin.
func (d *WasmTaskDriverPlugin) PluginInfo() (*base.PluginInfoResponse, error) {
	return pluginInfo, nil
}

// ConfigSchema returns the plugin configuration schema.
func (d *WasmTaskDriverPlugin) ConfigSchema() (*hclspec.Spec, error) {
	return configSpec, nil
}

// SetConfig is called by the client to pass the configuration for the plugin.
func (d *WasmTaskDriverPlugin) SetConfig(cfg *base.Config) error {
	var config Config

	if len(cfg.PluginConfig) != 0 {
		if err := base.MsgPackDecode(cfg.PluginConfig, &config); err != nil {
			return err
		}
	}

	d.config = &config

	if err := config.validate(); err != nil {
		return err
	}

	if cfg.AgentConfig != nil {
		d.nomadConfig = cfg.AgentConfig.Driver
	}

	for _, engineConf := range d.config.Engines {
		if err := initializeEngine(d.logger, engineConf); err != nil {
			return err
		}
	}

	return nil
}

// TaskConfigSchema returns the HCL schema for the configuration of a task.
func (d *WasmTaskDriverPlugin) TaskConfigSchema() (*hclspec.Spec, error) {
	return taskConfigSpec, nil
}

// Capabilities returns the features supported by the driver.
func (d *WasmTaskDriverPlugin) Capabilities() (*drivers.Capabilities, error) {
	return capabilities, nil
}

// Fingerprint returns a channel that will be used to send health information
// and other driver specific node attributes.
func (d *WasmTaskDriverPlugin) Fingerprint(ctx context.Context) (<-chan *drivers.Fingerprint, error) {
	ch := make(chan *drivers.Fingerprint)
	go d.handleFingerprint(ctx, ch)

	return ch, nil
}

// handleFingerprint manages the channel and the flow of fingerprint data.
func (d *WasmTaskDriverPlugin) handleFingerprint(ctx context.Context, ch chan<- *drivers.Fingerprint) {
	defer close(ch)

	ticker := time.NewTimer(0)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			ticker.Reset(fingerprintPeriod)
			ch <- d.buildFingerprint()
		}
	}
}

// buildFingerprint returns the driver's fingerprint data.
func (d *WasmTaskDriverPlugin) buildFingerprint() *drivers.Fingerprint {
	fp := &drivers.Fingerprint{
		Attributes:        make(map[string]*structs.Attribute),
		Health:            drivers.HealthStateHealthy,
		HealthDescription: drivers.DriverHealthy,
	}

	supportedEngineNames := make([]string, 0, len(d.config.Engines))

	for _, engine := range d.config.Engines {
		supportedEngineNames = append(supportedEngineNames, engine.Name)
	}

	fp.Attributes[fmt.Sprintf("%s.%s", fingerprintPrefix, "supported_runtimes")] = structs.NewStringAttribute(
		strings.Join(supportedEngineNames, ","))

	hostFuncKeys := make([]string, 0)
	for _, def := range hostfuncs.All() {
		hostFuncKeys = append(hostFuncKeys, def.Key())
	}

	fp.Attributes[fmt.Sprintf("%s.%s", fingerprintPrefix, "host_functions")] = structs.NewStringAttribute(
		strings.Join(hostFuncKeys, ","))
	fp.Attributes[fmt.Sprintf("%s.%s", fingerprintPrefix, "callframe_pool_capacity")] = structs.NewIntAttribute(
		int64(callframe.Default().Capacity()), "")

	return fp
}

// StartTask returns a task handle and a driver network if necessary.
func (d *WasmTaskDriverPlugin) StartTask(cfg *drivers.TaskConfig) (*drivers.TaskHandle, *drivers.DriverNetwork, error) {
	if _, ok := d.tasks.Get(cfg.ID); ok {
		return nil, nil, fmt.Errorf("task with ID %q already started", cfg.ID)
	}

	var driverConfig TaskConfig
	if err := cfg.DecodeDriverConfig(&driverConfig); err != nil {
		return nil, nil, fmt.Errorf("failed to decode driver config: %v", err)
	}

	d.logger.Info("starting task", "driver_cfg", hclog.Fmt("%+v", driverConfig))

	handle := drivers.NewTaskHandle(taskHandleVersion)
	handle.Config = cfg

	engine, err := engines.Get(driverConfig.Engine)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get %s engine: %v", driverConfig.Engine, err)
	}

	opts, err := d.instanceOptions(cfg, driverConfig)
	if err != nil {
		return nil, nil, err
	}

	newInstance, err := engine.InstantiateModule(driverConfig.ModulePath, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to instantiate module %s: %v", driverConfig.ModulePath, err)
	}

	h := &taskHandle{
		taskConfig:   cfg,
		procState:    drivers.TaskStateRunning,
		startedAt:    time.Now().Round(time.Millisecond),
		logger:       d.logger.With("task", cfg.Name),
		ioBufferConf: driverConfig.IOBuffer,
		mainFunc:     driverConfig.Main,
		instance:     newInstance,
		completionCh: make(chan struct{}),
	}

	driverState := TaskState{
		ReattachConfig: &structs.ReattachConfig{},
		TaskConfig:     cfg,
		StartedAt:      h.startedAt,
	}

	if err := handle.SetDriverState(&driverState); err != nil {
		h.instance.Cleanup()

		return nil, nil, fmt.Errorf("failed to set driver state: %v", err)
	}

	d.tasks.Set(cfg.ID, h)
	go h.run()

	return handle, nil, nil
}

// instanceOptions builds the module instantiation options of a task: the
// selected host functions, the fuel budget and the task context host functions
// read from the session.
func (d *WasmTaskDriverPlugin) instanceOptions(cfg *drivers.TaskConfig, driverConfig TaskConfig) (interfaces.InstanceOptions, error) {
	hostFuncs, err := hostfuncs.Select(driverConfig.HostFunctions)
	if err != nil {
		return interfaces.InstanceOptions{}, fmt.Errorf("failed to select host functions: %v", err)
	}

	opts := interfaces.InstanceOptions{
		HostFuncs: hostFuncs,
		UserData: &hostfuncs.TaskContext{
			Logger: d.logger.Named("guest").With("task", cfg.Name),
			ID:     cfg.ID,
			Name:   cfg.Name,
		},
	}

	if driverConfig.Fuel.Enabled {
		if driverConfig.Fuel.Limit == 0 {
			return interfaces.InstanceOptions{}, fmt.Errorf("fuel limit must be > 0 when fuel is enabled")
		}

		opts.Fuel = driverConfig.Fuel.Limit
	}

	return opts, nil
}

// RecoverTask recreates the in-memory state of a task from a TaskHandle.
func (d *WasmTaskDriverPlugin) RecoverTask(_ *drivers.TaskHandle) error {
	return nil
}

// WaitTask returns a channel used to notify Nomad when a task exits.
func (d *WasmTaskDriverPlugin) WaitTask(ctx context.Context, taskID string) (<-chan *drivers.ExitResult, error) {
	handle, ok := d.tasks.Get(taskID)
	if !ok {
		return nil, drivers.ErrTaskNotFound
	}

	ch := make(chan *drivers.ExitResult)
	go d.handleWait(ctx, handle, ch)

	return ch, nil
}

func (d *WasmTaskDriverPlugin) handleWait(ctx context.Context, handle *taskHandle, ch chan *drivers.ExitResult) {
	defer close(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-handle.completionCh:
			ch <- handle.exitResult
		}
	}
}

// StopTask stops a running task with the given signal and within the timeout window.
func (d *WasmTaskDriverPlugin) StopTask(taskID string, _ time.Duration, _ string) error {
	handle, ok := d.tasks.Get(taskID)
	if !ok {
		return drivers.ErrTaskNotFound
	}

	handle.instance.Stop()

	return nil
}

// DestroyTask cleans up and removes a task that has terminated.
func (d *WasmTaskDriverPlugin) DestroyTask(taskID string, force bool) error {
	handle, ok := d.tasks.Get(taskID)
	if !ok {
		return drivers.ErrTaskNotFound
	}

	if handle.IsRunning() && !force {
		return errors.New("cannot destroy running task")
	}

	if handle.IsRunning() && force {
		handle.instance.Stop()
	}

	d.tasks.Delete(taskID)

	return nil
}

// InspectTask returns detailed status information for the referenced taskID.
func (d *WasmTaskDriverPlugin) InspectTask(taskID string) (*drivers.TaskStatus, error) {
	handle, ok := d.tasks.Get(taskID)
	if !ok {
		return nil, drivers.ErrTaskNotFound
	}

	return handle.TaskStatus(), nil
}

// TaskStats returns a channel which the driver should send stats to at the given interval.
func (d *WasmTaskDriverPlugin) TaskStats(ctx context.Context, taskID string, interval time.Duration) (<-chan *drivers.TaskResourceUsage, error) {
	_, ok := d.tasks.Get(taskID)
	if !ok {
		return nil, drivers.ErrTaskNotFound
	}

	ch := make(chan *drivers.TaskResourceUsage)
	go d.handleTaskStats(ctx, interval, ch)

	return ch, nil
}

func (d *WasmTaskDriverPlugin) handleTaskStats(ctx context.Context, interval time.Duration, ch chan<- *drivers.TaskResourceUsage) {
	defer close(ch)

	ticker := time.NewTicker(interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			ch <- &drivers.TaskResourceUsage{
				ResourceUsage: &drivers.ResourceUsage{
					MemoryStats: &drivers.MemoryStats{},
					CpuStats:    &drivers.CpuStats{},
					DeviceStats: make([]*device.DeviceGroupStats, 0),
				},
			}
		}
	}
}

// TaskEvents returns a channel that the plugin can use to emit task related events.
func (d *WasmTaskDriverPlugin) TaskEvents(ctx context.Context) (<-chan *drivers.TaskEvent, error) {
	return d.eventer.TaskEvents(ctx)
}

// SignalTask forwards a signal to a task.
func (d *WasmTaskDriverPlugin) SignalTask(taskID string, _ string) error {
	_, ok := d.tasks.Get(taskID)
	if !ok {
		return drivers.ErrTaskNotFound
	}

	return errors.New("this driver does not support signal forwarding")
}

// ExecTask returns the result of executing the given command inside a task.
func (d *WasmTaskDriverPlugin) ExecTask(_ string, _ []string, _ time.Duration) (*drivers.ExecTaskResult, error) {
	return nil, errors.New("this driver does not support exec")
}
