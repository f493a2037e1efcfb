package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"

	"dinesync/internal/config"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// Gateway bridges the restaurant system's broker events onto the push
// channel: it consumes the fanout exchange the kitchen side publishes
// to and forwards each event to the websocket clients it targets.
type Gateway struct {
	cfg    *config.Config
	logger *logger.Logger
	hub    *Hub

	conn    *amqp.Connection
	channel *amqp.Channel
	server  *http.Server
}

func New(cfg *config.Config, log *logger.Logger) *Gateway {
	return &Gateway{
		cfg:    cfg,
		logger: log,
		hub:    NewHub(log),
	}
}

// Start connects to the broker, begins consuming and serves the
// websocket endpoint until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) error {
	conn, err := amqp.Dial(g.cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	g.conn = conn

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	g.channel = channel

	err = channel.ExchangeDeclare(
		g.cfg.EventExchange, // name
		"fanout",            // type
		true,                // durable
		false,               // auto-deleted
		false,               // internal
		false,               // no-wait
		nil,                 // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	q, err := channel.QueueDeclare(
		"",    // name (let server generate)
		false, // durable
		false, // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := channel.QueueBind(q.Name, "", g.cfg.EventExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	messages, err := channel.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	g.logger.Info("startup", "gateway_started", "event gateway consuming from "+g.cfg.EventExchange)

	go g.hub.Run(ctx)
	go g.consume(ctx, messages)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(prometheusMiddleware(), gin.Recovery())
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", g.hub.ServeWS)

	g.server = &http.Server{
		Addr:    g.cfg.GatewayAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (g *Gateway) consume(ctx context.Context, messages <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				g.logger.Error("", "broker_channel_closed", "delivery channel closed", nil)
				return
			}
			g.process(msg.Body)
		}
	}
}

func (g *Gateway) process(body []byte) {
	var event models.Event
	if err := json.Unmarshal(body, &event); err != nil {
		g.logger.Warn("", "event_parse_failed", err.Error())
		return
	}
	// Stamp an id when the producer did not, so clients can dedupe
	// reconnect replays.
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	eventsConsumed.WithLabelValues(string(event.Type)).Inc()
	g.hub.Broadcast(event)
}

// Stop shuts the HTTP server and broker connection down; callable on
// every exit path.
func (g *Gateway) Stop() {
	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		g.server.Shutdown(ctx)
	}
	if g.channel != nil {
		g.channel.Close()
	}
	if g.conn != nil {
		g.conn.Close()
	}
}
