package kernel

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/channels"
	"github.com/declwidgets/declwidgets/internal/function"
	"github.com/declwidgets/declwidgets/internal/web/websocket"
)

// Inbound message types
const (
	TypeChannelsOpen  = "channels.open"
	TypeChannelsMsg   = "channels.msg"
	TypeFunctionOpen  = "function.open"
	TypeFunctionMsg   = "function.msg"
	TypeFunctionClose = "function.close"
)

// Outbound message types
const (
	TypeUpdate = "update"
	TypeStatus = "status"
	TypeError  = websocket.TypeError
)

// ErrUnknownComm is reported for function messages naming an unopened comm
var ErrUnknownComm = errors.New("unknown comm")

// Update is the payload of an outbound update message
type Update struct {
	CommID string         `json:"comm_id,omitempty"`
	Method string         `json:"method"`
	State  map[string]any `json:"state"`
}

// Status is the payload of status and error messages
type Status struct {
	CommID  string `json:"comm_id,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type functionOpen struct {
	CommID       string `json:"comm_id"`
	FunctionName string `json:"function_name"`
	Limit        int    `json:"limit"`
}

type functionMsg struct {
	CommID string `json:"comm_id"`
	function.Message
}

type functionClose struct {
	CommID string `json:"comm_id"`
}

func (k *Kernel) registerHandlers(hub *websocket.Hub) {
	hub.RegisterHandler(TypeChannelsOpen, k.serialized(k.handleChannelsOpen))
	hub.RegisterHandler(TypeChannelsMsg, k.serialized(k.handleChannelsMsg))
	hub.RegisterHandler(TypeFunctionOpen, k.serialized(k.handleFunctionOpen))
	hub.RegisterHandler(TypeFunctionMsg, k.serialized(k.handleFunctionMsg))
	hub.RegisterHandler(TypeFunctionClose, k.serialized(k.handleFunctionClose))
	hub.OnDisconnect(k.dropComms)
}

// serialized runs h under the dispatch mutex so handlers never overlap
func (k *Kernel) serialized(h websocket.MessageHandler) websocket.MessageHandler {
	return func(ctx context.Context, client *websocket.Client, message *websocket.Message) error {
		k.dispatch.Lock()
		defer k.dispatch.Unlock()
		return h(ctx, client, message)
	}
}

// broadcaster sends channel updates to every connected browser
func (k *Kernel) broadcaster() channels.Sender {
	return channels.SenderFunc(func(ctx context.Context, state map[string]any) error {
		return k.ws.Hub.Broadcast(websocket.NewMessage(TypeUpdate, Update{Method: "update", State: state}))
	})
}

// commSender sends function widget updates to the browser owning the comm
type commSender struct {
	client *websocket.Client
	commID string
}

func (s commSender) SendUpdate(_ context.Context, state map[string]any) error {
	return s.client.Send(websocket.NewMessage(TypeUpdate, Update{CommID: s.commID, Method: "update", State: state}))
}

func (k *Kernel) handleChannelsOpen(ctx context.Context, client *websocket.Client, _ *websocket.Message) error {
	if !k.manager.Connected() {
		k.manager.Connect(ctx, k.broadcaster())
	} else if k.cfg.ReplayOnConnect {
		k.replay(ctx, client)
	}
	return client.Send(websocket.NewMessage(TypeStatus, Status{Status: channels.StatusOK}))
}

func (k *Kernel) replay(ctx context.Context, client *websocket.Client) {
	live, err := k.manager.Live()
	if err != nil {
		return
	}
	state, err := live.Snapshot(ctx)
	if err != nil {
		k.logger.Warn("failed to read channel state for replay", zap.String("client_id", client.ID), zap.Error(err))
		return
	}
	if len(state) == 0 {
		return
	}
	if err := client.Send(websocket.NewMessage(TypeUpdate, Update{Method: "update", State: state})); err != nil {
		k.logger.Warn("failed to replay channel state", zap.String("client_id", client.ID), zap.Error(err))
	}
}

func (k *Kernel) handleChannelsMsg(ctx context.Context, client *websocket.Client, message *websocket.Message) error {
	var msg channels.Message
	if err := message.Decode(&msg); err != nil {
		return err
	}

	ack, err := k.manager.HandleMessage(ctx, msg)
	if err != nil {
		return err
	}
	if ack.Status == channels.StatusError {
		return client.Send(websocket.NewMessage(TypeError, Status{Status: ack.Status, Message: ack.Message}))
	}
	return client.Send(websocket.NewMessage(TypeStatus, Status{Status: ack.Status}))
}

func (k *Kernel) handleFunctionOpen(ctx context.Context, client *websocket.Client, message *websocket.Message) error {
	var open functionOpen
	if err := message.Decode(&open); err != nil {
		return err
	}
	if open.CommID == "" {
		return errors.New("function.open: comm_id is required")
	}

	limit := open.Limit
	if limit <= 0 {
		limit = k.cfg.Limit
	}
	widget := function.NewWidget(k.namespace, commSender{client: client, commID: open.CommID},
		function.WithSerializer(k.serializer),
		function.WithLogger(k.logger.Named("function")),
		function.WithResultLimit(limit),
	)

	k.widgetsMu.Lock()
	k.widgets[open.CommID] = &comm{widget: widget, client: client}
	k.widgetsMu.Unlock()

	if open.FunctionName == "" {
		return nil
	}
	if err := widget.Bind(ctx, open.FunctionName); err != nil {
		return k.commError(client, open.CommID, err)
	}
	return nil
}

func (k *Kernel) handleFunctionMsg(ctx context.Context, client *websocket.Client, message *websocket.Message) error {
	var msg functionMsg
	if err := message.Decode(&msg); err != nil {
		return err
	}

	c, err := k.comm(msg.CommID)
	if err != nil {
		return err
	}

	if err := c.widget.HandleMessage(ctx, msg.Message); err != nil {
		return k.commError(client, msg.CommID, err)
	}
	return nil
}

func (k *Kernel) handleFunctionClose(_ context.Context, _ *websocket.Client, message *websocket.Message) error {
	var msg functionClose
	if err := message.Decode(&msg); err != nil {
		return err
	}

	k.widgetsMu.Lock()
	delete(k.widgets, msg.CommID)
	k.widgetsMu.Unlock()
	return nil
}

func (k *Kernel) comm(id string) (*comm, error) {
	k.widgetsMu.Lock()
	defer k.widgetsMu.Unlock()

	c, ok := k.widgets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownComm, id)
	}
	return c, nil
}

// commError reports a function widget failure to the owning browser only
func (k *Kernel) commError(client *websocket.Client, commID string, err error) error {
	k.logger.Warn("function comm failed",
		zap.String("client_id", client.ID),
		zap.String("comm_id", commID),
		zap.Error(err))
	return client.Send(websocket.NewMessage(TypeError, Status{CommID: commID, Status: channels.StatusError, Message: err.Error()}))
}

// dropComms forgets the function widgets of a disconnected browser
func (k *Kernel) dropComms(client *websocket.Client) {
	k.widgetsMu.Lock()
	defer k.widgetsMu.Unlock()

	for id, c := range k.widgets {
		if c.client == client {
			delete(k.widgets, id)
		}
	}
}

// Comms returns the number of open function comms
func (k *Kernel) Comms() int {
	k.widgetsMu.Lock()
	defer k.widgetsMu.Unlock()
	return len(k.widgets)
}
