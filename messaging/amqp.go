package messaging

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	typeMessage = "message"
	typeInject  = "inject"
	typeRelease = "release"
	headerTabID = "tab_id"
)

type AMQPConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

// amqpChannel abstracts amqp.Channel for testability.
type amqpChannel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

type rpcReply struct {
	Response *Response `json:"response,omitempty"`
	Error    string    `json:"error,omitempty"`
	Code     string    `json:"code,omitempty"`
}

func dialAMQP(url string) (io.Closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to connect to RabbitMQ")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "failed to open channel")
	}
	return conn, ch, nil
}

// AMQPServer answers agent RPCs published on a work queue. Replies go to
// the caller's ReplyTo queue tagged with its CorrelationId.
type AMQPServer struct {
	conn   io.Closer
	ch     amqpChannel
	queue  string
	agents Agents
	wg     sync.WaitGroup
}

func NewAMQPServer(cfg AMQPConfig, agents Agents) (*AMQPServer, error) {
	conn, ch, err := dialAMQP(cfg.URL)
	if err != nil {
		return nil, err
	}
	s, err := newAMQPServer(conn, ch, cfg, agents)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func newAMQPServer(conn io.Closer, ch amqpChannel, cfg AMQPConfig, agents Agents) (*AMQPServer, error) {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 8
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, errors.Wrap(err, "failed to set QoS")
	}
	if _, err := ch.QueueDeclare(cfg.Queue, false, false, false, false, nil); err != nil {
		return nil, errors.Wrap(err, "failed to declare queue")
	}
	return &AMQPServer{conn: conn, ch: ch, queue: cfg.Queue, agents: agents}, nil
}

// Serve consumes requests until ctx is cancelled or the channel closes.
// Each request is handled on its own goroutine.
func (s *AMQPServer) Serve(ctx context.Context) error {
	msgs, err := s.ch.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrap(err, "failed to register consumer")
	}

	defer s.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed unexpectedly")
			}
			s.wg.Add(1)
			go func(d amqp.Delivery) {
				defer s.wg.Done()
				s.handle(ctx, d)
			}(d)
		}
	}
}

func (s *AMQPServer) handle(ctx context.Context, d amqp.Delivery) {
	if ms, err := strconv.Atoi(d.Expiration); err == nil && ms > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}
	tabID, _ := d.Headers[headerTabID].(string)
	log := logrus.WithFields(logrus.Fields{
		"tab_id":         tabID,
		"type":           d.Type,
		"correlation_id": d.CorrelationId,
	})

	var reply rpcReply
	var err error
	switch d.Type {
	case typeInject:
		var body injectBody
		if err = json.Unmarshal(d.Body, &body); err == nil {
			err = s.agents.Inject(ctx, tabID, body.URL)
		}
		if err == nil {
			reply.Response = &Response{Success: true}
		}
	case typeRelease:
		if err = s.agents.Release(ctx, tabID); err == nil {
			reply.Response = &Response{Success: true}
		}
	default:
		var req Request
		if err = json.Unmarshal(d.Body, &req); err == nil {
			var resp Response
			resp, err = s.agents.Handle(ctx, tabID, req)
			reply.Response = &resp
		}
	}
	if err != nil {
		_, reply.Code = classify(err)
		reply.Error = err.Error()
		reply.Response = nil
		log.WithError(err).Debug("Agent RPC failed")
	}

	if d.ReplyTo != "" {
		body, _ := json.Marshal(reply)
		pubErr := s.ch.PublishWithContext(context.WithoutCancel(ctx), "", d.ReplyTo, false, false, amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: d.CorrelationId,
			Body:          body,
		})
		if pubErr != nil {
			log.WithError(pubErr).Warn("Failed to publish agent reply")
		}
	}
	_ = d.Ack(false)
}

func (s *AMQPServer) Close() error {
	var first error
	if s.ch != nil {
		first = s.ch.Close()
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// AMQPClient sends agent RPCs over RabbitMQ using a private reply queue.
type AMQPClient struct {
	conn       io.Closer
	ch         amqpChannel
	queue      string
	replyQueue string

	mu      sync.Mutex
	pending map[string]chan rpcReply

	closeOnce sync.Once
	done      chan struct{}
}

var _ Client = (*AMQPClient)(nil)

func NewAMQPClient(cfg AMQPConfig) (*AMQPClient, error) {
	conn, ch, err := dialAMQP(cfg.URL)
	if err != nil {
		return nil, err
	}
	c, err := newAMQPClient(conn, ch, cfg.Queue)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func newAMQPClient(conn io.Closer, ch amqpChannel, queue string) (*AMQPClient, error) {
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to declare reply queue")
	}
	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to consume reply queue")
	}

	c := &AMQPClient{
		conn:       conn,
		ch:         ch,
		queue:      queue,
		replyQueue: q.Name,
		pending:    make(map[string]chan rpcReply),
		done:       make(chan struct{}),
	}
	go c.dispatch(msgs)
	return c, nil
}

func (c *AMQPClient) dispatch(msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			c.mu.Lock()
			waiter, found := c.pending[d.CorrelationId]
			delete(c.pending, d.CorrelationId)
			c.mu.Unlock()
			if !found {
				logrus.WithField("correlation_id", d.CorrelationId).Debug("Dropping late agent reply")
				continue
			}
			var reply rpcReply
			if err := json.Unmarshal(d.Body, &reply); err != nil {
				reply = rpcReply{Error: "malformed agent reply", Code: codeInternal}
			}
			waiter <- reply
		}
	}
}

func (c *AMQPClient) Send(ctx context.Context, tabID string, req Request) (Response, error) {
	reply, err := c.call(ctx, typeMessage, tabID, req)
	if err != nil {
		return Response{}, err
	}
	if reply.Response == nil {
		return Response{}, nil
	}
	return *reply.Response, nil
}

func (c *AMQPClient) Inject(ctx context.Context, tabID, rawURL string) error {
	_, err := c.call(ctx, typeInject, tabID, injectBody{URL: rawURL})
	return err
}

func (c *AMQPClient) Release(ctx context.Context, tabID string) error {
	_, err := c.call(ctx, typeRelease, tabID, struct{}{})
	return err
}

func (c *AMQPClient) call(ctx context.Context, typ, tabID string, payload interface{}) (rpcReply, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return rpcReply{}, errors.Wrap(err, "failed to encode message")
	}

	id := uuid.NewString()
	waiter := make(chan rpcReply, 1)
	c.mu.Lock()
	c.pending[id] = waiter
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	msg := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: id,
		ReplyTo:       c.replyQueue,
		Type:          typ,
		Headers:       amqp.Table{headerTabID: tabID},
		Body:          body,
	}
	if deadline, ok := ctx.Deadline(); ok {
		if ms := time.Until(deadline).Milliseconds(); ms > 0 {
			msg.Expiration = strconv.FormatInt(ms, 10)
		}
	}
	if err := c.ch.PublishWithContext(ctx, "", c.queue, false, false, msg); err != nil {
		return rpcReply{}, errors.Wrap(err, "failed to publish agent request")
	}

	select {
	case <-ctx.Done():
		return rpcReply{}, errors.Wrapf(ctx.Err(), "page agent did not answer %s", typ)
	case <-c.done:
		return rpcReply{}, errors.New("agent client closed")
	case reply := <-waiter:
		return reply, replyError(reply)
	}
}

func replyError(reply rpcReply) error {
	if reply.Error == "" && reply.Code == "" {
		return nil
	}
	if err := codeError(reply.Code, reply.Error); err != nil {
		return err
	}
	return errors.New(reply.Error)
}

func (c *AMQPClient) Close() error {
	var first error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ch != nil {
			first = c.ch.Close()
		}
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && first == nil {
				first = err
			}
		}
	})
	return first
}
