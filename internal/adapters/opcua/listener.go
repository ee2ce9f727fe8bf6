// Package opcua adapts the field protocol to the relay: it subscribes to
// the trigger variable of the telemetry object, detects false->true edges,
// snapshots the variable set, and writes the cycle result back.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/zomorodiyan/mfg598-iiot-project/internal/domain"
	"github.com/zomorodiyan/mfg598-iiot-project/internal/ports"
)

// Config captures the runtime details required to open an OPC UA session
// against the field variable store.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SecurityMode    string        `yaml:"security_mode"`
	SecurityPolicy  string        `yaml:"security_policy"`
	ApplicationName string        `yaml:"application_name"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	Nodes           NodeSet       `yaml:"nodes"`
}

// NodeSet maps the telemetry object's variables to node ids. Vibration is
// optional and only wired in the grid deployment variant.
type NodeSet struct {
	MachineID        string `yaml:"machine_id"`
	Timestep         string `yaml:"timestep"`
	SimulationTime   string `yaml:"simulation_time"`
	NumNodes         string `yaml:"num_nodes"`
	Temperatures     string `yaml:"temperatures"`
	PowerConsumption string `yaml:"power_consumption"`
	Vibration        string `yaml:"vibration"`
	Trigger          string `yaml:"trigger"`
	LastRecordID     string `yaml:"last_record_id"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "IIoT Telemetry Relay"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 100 * time.Millisecond
	}
	n := &c.Nodes
	if n.MachineID == "" {
		n.MachineID = "ns=2;s=TelemetryObject.MachineID"
	}
	if n.Timestep == "" {
		n.Timestep = "ns=2;s=TelemetryObject.Timestep"
	}
	if n.SimulationTime == "" {
		n.SimulationTime = "ns=2;s=TelemetryObject.SimulationTime"
	}
	if n.NumNodes == "" {
		n.NumNodes = "ns=2;s=TelemetryObject.NumNodes"
	}
	if n.Temperatures == "" {
		n.Temperatures = "ns=2;s=TelemetryObject.Temperatures"
	}
	if n.PowerConsumption == "" {
		n.PowerConsumption = "ns=2;s=TelemetryObject.PowerConsumption"
	}
	if n.Trigger == "" {
		n.Trigger = "ns=2;s=TelemetryObject.TriggerStorage"
	}
	if n.LastRecordID == "" {
		n.LastRecordID = "ns=2;s=TelemetryObject.LastRecordID"
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}

const triggerHandle uint32 = 1

// Listener drives trigger cycles. Notifications are consumed by a single
// goroutine, so cycles never overlap: the blocking forward call inside the
// handler intentionally serializes the loop.
type Listener struct {
	cfg    Config
	obs    ports.Observability
	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readIDs  []*ua.ReadValueID
	resultID *ua.NodeID
	trigID   *ua.NodeID

	mu          sync.Mutex
	started     bool
	lastTrigger bool
}

func NewListener(cfg Config, obs ports.Observability) (*Listener, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Listener{cfg: cfg, obs: obs}, nil
}

func (l *Listener) Start(handle ports.CycleFunc) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return fmt.Errorf("opcua listener already started")
	}
	l.mu.Unlock()

	if err := l.parseNodeIDs(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())

	client, err := opcua.NewClient(l.cfg.Endpoint, l.clientOptions()...)
	if err != nil {
		cancel()
		return fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return fmt.Errorf("opcua connect: %w", err)
	}

	notifyCh := make(chan *opcua.PublishNotificationData, 8)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: l.cfg.PublishInterval,
	}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return fmt.Errorf("opcua subscribe: %w", err)
	}

	req := opcua.NewMonitoredItemCreateRequestWithDefaults(l.trigID, ua.AttributeIDValue, triggerHandle)
	res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		l.cleanupOnError(ctx, cancel, sub, client)
		return fmt.Errorf("monitor trigger node %q: %w", l.cfg.Nodes.Trigger, err)
	}
	if len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
		l.cleanupOnError(ctx, cancel, sub, client)
		return fmt.Errorf("monitor trigger node %q failed", l.cfg.Nodes.Trigger)
	}

	l.mu.Lock()
	l.client = client
	l.sub = sub
	l.cancel = cancel
	l.started = true
	l.lastTrigger = false
	l.mu.Unlock()

	l.wg.Add(1)
	go l.consume(ctx, notifyCh, handle)
	return nil
}

func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.started {
		l.mu.Unlock()
		return nil
	}
	l.started = false
	cancel := l.cancel
	l.cancel = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// An in-flight cycle still writes the result and trigger through
	// l.client; the session must stay up until the consume goroutine exits.
	l.wg.Wait()

	l.mu.Lock()
	sub := l.sub
	client := l.client
	l.sub = nil
	l.client = nil
	l.mu.Unlock()

	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()

	var err error
	if sub != nil {
		if e := sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if client != nil {
		if e := client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	return err
}

func (l *Listener) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData, handle ports.CycleFunc) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil {
				continue
			}
			if notif.Error != nil {
				l.obs.LogError("opcua_notification", notif.Error)
				continue
			}
			l.processNotification(ctx, notif.Value, handle)
		}
	}
}

func (l *Listener) processNotification(ctx context.Context, val interface{}, handle ports.CycleFunc) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}

	for _, item := range data.MonitoredItems {
		if item.ClientHandle != triggerHandle {
			continue
		}
		cur, ok := variantToBool(item.Value.Value)
		if !ok {
			continue
		}
		// Only a false->true transition starts a cycle. A true->true
		// re-notification from queued or coalesced publishes is ignored.
		if !risingEdge(l.swapTrigger(cur), cur) {
			continue
		}
		l.runCycle(ctx, handle)
	}
}

func (l *Listener) runCycle(ctx context.Context, handle ports.CycleFunc) {
	var recordID int64

	snap, err := l.readSnapshot(ctx)
	if err != nil {
		l.obs.LogError("snapshot_read_failed", err)
	} else {
		recordID = handle(ctx, snap)
	}

	if err := l.writeInt64(ctx, l.resultID, recordID); err != nil {
		l.obs.LogError("result_write_failed", err)
	}
	// Reset before releasing control so the next client write produces a
	// clean false->true edge.
	if err := l.writeBool(ctx, l.trigID, false); err != nil {
		l.obs.LogError("trigger_reset_failed", err)
	}
	l.swapTrigger(false)
}

// readSnapshot fetches the whole variable set in one ReadRequest so the
// snapshot reflects a single logical write, not an interleaving of two
// producers.
func (l *Listener) readSnapshot(ctx context.Context) (*domain.FieldSnapshot, error) {
	resp, err := l.client.Read(ctx, &ua.ReadRequest{
		NodesToRead:        l.readIDs,
		TimestampsToReturn: ua.TimestampsToReturnNeither,
	})
	if err != nil {
		return nil, fmt.Errorf("read variable set: %w", err)
	}
	if len(resp.Results) < len(l.readIDs) {
		return nil, fmt.Errorf("read variable set: got %d of %d results", len(resp.Results), len(l.readIDs))
	}
	for i, dv := range resp.Results {
		if dv.Status != ua.StatusOK {
			return nil, fmt.Errorf("read %s: status %s", l.nodeName(i), dv.Status)
		}
	}

	snap := &domain.FieldSnapshot{}
	snap.MachineID, _ = variantToString(resp.Results[0].Value)
	snap.Timestep, _ = variantToString(resp.Results[1].Value)
	snap.SimulationTime, _ = variantToString(resp.Results[2].Value)
	if n, ok := variantToFloat(resp.Results[3].Value); ok {
		snap.NodeCount = int(n)
	}
	snap.TemperaturesRaw, _ = variantToString(resp.Results[4].Value)
	snap.PowerConsumption, _ = variantToFloat(resp.Results[5].Value)
	if len(resp.Results) > 6 {
		snap.Vibration, _ = variantToFloat(resp.Results[6].Value)
	}
	return snap, nil
}

func (l *Listener) writeInt64(ctx context.Context, id *ua.NodeID, v int64) error {
	variant, err := ua.NewVariant(v)
	if err != nil {
		return err
	}
	return l.write(ctx, id, variant)
}

func (l *Listener) writeBool(ctx context.Context, id *ua.NodeID, v bool) error {
	variant, err := ua.NewVariant(v)
	if err != nil {
		return err
	}
	return l.write(ctx, id, variant)
}

func (l *Listener) write(ctx context.Context, id *ua.NodeID, v *ua.Variant) error {
	resp, err := l.client.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        v,
			},
		}},
	})
	if err != nil {
		return err
	}
	if len(resp.Results) > 0 && resp.Results[0] != ua.StatusOK {
		return fmt.Errorf("write rejected: %s", resp.Results[0])
	}
	return nil
}

// swapTrigger records the latest observed trigger value and returns the
// previous one.
func (l *Listener) swapTrigger(cur bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.lastTrigger
	l.lastTrigger = cur
	return prev
}

func (l *Listener) parseNodeIDs() error {
	names := l.readNodeNames()
	l.readIDs = make([]*ua.ReadValueID, 0, len(names))
	for _, name := range names {
		id, err := ua.ParseNodeID(name)
		if err != nil {
			return fmt.Errorf("parse node id %q: %w", name, err)
		}
		l.readIDs = append(l.readIDs, &ua.ReadValueID{NodeID: id, AttributeID: ua.AttributeIDValue})
	}

	trigID, err := ua.ParseNodeID(l.cfg.Nodes.Trigger)
	if err != nil {
		return fmt.Errorf("parse trigger node id %q: %w", l.cfg.Nodes.Trigger, err)
	}
	l.trigID = trigID

	resultID, err := ua.ParseNodeID(l.cfg.Nodes.LastRecordID)
	if err != nil {
		return fmt.Errorf("parse result node id %q: %w", l.cfg.Nodes.LastRecordID, err)
	}
	l.resultID = resultID
	return nil
}

func (l *Listener) readNodeNames() []string {
	n := l.cfg.Nodes
	names := []string{n.MachineID, n.Timestep, n.SimulationTime, n.NumNodes, n.Temperatures, n.PowerConsumption}
	if n.Vibration != "" {
		names = append(names, n.Vibration)
	}
	return names
}

func (l *Listener) nodeName(i int) string {
	names := l.readNodeNames()
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("node[%d]", i)
}

func (l *Listener) clientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(l.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(l.cfg.SecurityPolicy)),
		opcua.ApplicationName(l.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if l.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(l.cfg.Username, l.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (l *Listener) cleanupOnError(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func risingEdge(prev, cur bool) bool { return !prev && cur }

func variantToBool(v *ua.Variant) (bool, bool) {
	if v == nil {
		return false, false
	}
	b, ok := v.Value().(bool)
	return b, ok
}

func variantToString(v *ua.Variant) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := v.Value().(string)
	return s, ok
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}

	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.FieldListener = (*Listener)(nil)
