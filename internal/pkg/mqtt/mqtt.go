package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/pool-integration/internal/pkg/contxt"
	"github.com/anicoll/pool-integration/internal/pkg/model"
)

const (
	discoveryPrefix = "homeassistant"
	commandTimeout  = 30 * time.Second
	commandQueue    = 32
)

var errTimeout = errors.New("mqtt operation timed out")

type client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
	Subscribe(topic string, qos byte, callback paho_mqtt.MessageHandler) paho_mqtt.Token
}

// Dispatcher executes a hub command against a node.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd model.Command) error
}

type service struct {
	client client
	prefix string
	logger *zap.Logger

	mu         sync.Mutex
	configured map[string]struct{}

	commands chan model.Command
}

// New returns the Home Assistant adapter. Node state lives under
// <prefix>/<address>/<driver>/state and commands are read from
// <prefix>/<address>/cmd[/<command>].
func New(client client, prefix string) *service {
	return &service{
		client:     client,
		prefix:     strings.Trim(prefix, "/"),
		logger:     zap.L(),
		configured: make(map[string]struct{}),
		commands:   make(chan model.Command, commandQueue),
	}
}

func (s *service) Connect() error {
	return wait(s.client.Connect(), time.Second*5)
}

// Subscribe routes command messages to the dispatcher. The paho callback must
// not publish, so it only queues; commands run in arrival order until ctx ends.
func (s *service) Subscribe(ctx context.Context, dispatcher Dispatcher) error {
	topic := s.prefix + "/+/cmd/#"
	if err := wait(s.client.Subscribe(topic, 1, func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		s.handleCommand(msg)
	}), time.Second*5); err != nil {
		return err
	}
	go s.dispatchCommands(ctx, dispatcher)
	return nil
}

func (s *service) handleCommand(msg paho_mqtt.Message) {
	cmd, err := s.parseCommand(msg.Topic(), msg.Payload())
	if err != nil {
		s.logger.Warn("ignoring mqtt command", zap.String("topic", msg.Topic()), zap.Error(err))
		return
	}
	select {
	case s.commands <- cmd:
	default:
		s.logger.Error("mqtt command queue full, dropping command", zap.String("address", cmd.Address), zap.String("cmd", cmd.Cmd))
	}
}

func (s *service) dispatchCommands(ctx context.Context, dispatcher Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.commands:
			s.dispatch(dispatcher, cmd)
		}
	}
}

func (s *service) dispatch(dispatcher Dispatcher, cmd model.Command) {
	ctx, cancel := contxt.NewContext(commandTimeout)
	defer cancel()
	if err := dispatcher.Dispatch(ctx, cmd); err != nil {
		s.logger.Error("mqtt command failed", zap.String("address", cmd.Address), zap.String("cmd", cmd.Cmd), zap.Error(err))
	}
}

func (s *service) parseCommand(topic string, payload []byte) (model.Command, error) {
	rest, ok := strings.CutPrefix(topic, s.prefix+"/")
	if !ok {
		return model.Command{}, fmt.Errorf("unexpected topic %q", topic)
	}
	parts := strings.Split(rest, "/")
	value := strings.TrimSpace(string(payload))
	switch {
	case len(parts) == 2 && parts[1] == "cmd" && value != "":
		return model.Command{Address: parts[0], Cmd: strings.ToUpper(value)}, nil
	case len(parts) == 3 && parts[1] == "cmd":
		return model.Command{Address: parts[0], Cmd: strings.ToUpper(parts[2]), Value: value}, nil
	default:
		return model.Command{}, fmt.Errorf("unexpected topic %q", topic)
	}
}

func wait(token paho_mqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errTimeout
	}
	return token.Error()
}
