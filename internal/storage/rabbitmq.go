package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"resume-builder-go/internal/builder"
	"resume-builder-go/internal/config"
	"resume-builder-go/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ResumeCreatedEvent 简历创建完成事件，发布到简历事件交换机供下游消费
type ResumeCreatedEvent struct {
	ResumeID   string    `json:"resume_id"`
	OwnerID    string    `json:"owner_id"`
	ResumeName string    `json:"resume_name"`
	Source     string    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// RabbitMQ 提供消息队列功能
type RabbitMQ struct {
	conn         *amqp.Connection
	channelPool  sync.Pool
	exchangeMap  map[string]bool // 记录已声明的exchange
	queueMap     map[string]bool // 记录已声明的queue
	bindingMap   map[string]bool // 记录已创建的binding (key格式: "exchange:queue:routingKey")
	publishMutex sync.Mutex      // 保护发布操作
	cfg          *config.RabbitMQConfig
}

// NewRabbitMQ 创建RabbitMQ客户端
func NewRabbitMQ(cfg *config.RabbitMQConfig) (*RabbitMQ, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RabbitMQ配置不能为空")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("RabbitMQ URL配置不能为空")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("无法连接到RabbitMQ服务器 (%s): %w", cfg.URL, err)
	}

	mq := &RabbitMQ{
		conn:        conn,
		exchangeMap: make(map[string]bool),
		queueMap:    make(map[string]bool),
		bindingMap:  make(map[string]bool),
		cfg:         cfg,
	}

	// 初始化channel池
	mq.channelPool = sync.Pool{
		New: func() interface{} {
			ch, errPool := conn.Channel()
			if errPool != nil {
				logger.Error().Err(errPool).Msg("创建RabbitMQ通道失败")
				return nil
			}
			return ch
		},
	}

	// 测试连接和通道
	testCh := mq.getChannel()
	if testCh == nil {
		conn.Close()
		return nil, fmt.Errorf("无法创建RabbitMQ通道")
	}
	mq.putChannel(testCh)

	logger.Info().Str("url", cfg.URL).Msg("成功连接到RabbitMQ服务器")
	return mq, nil
}

// 获取可用通道
func (r *RabbitMQ) getChannel() *amqp.Channel {
	ch := r.channelPool.Get()
	if ch == nil {
		newCh, err := r.conn.Channel()
		if err != nil {
			logger.Error().Err(err).Msg("创建新RabbitMQ通道失败")
			return nil
		}
		return newCh
	}
	return ch.(*amqp.Channel)
}

// 归还通道到池
func (r *RabbitMQ) putChannel(ch *amqp.Channel) {
	if ch != nil {
		r.channelPool.Put(ch)
	}
}

// Close 关闭连接
func (r *RabbitMQ) Close() error {
	return r.conn.Close()
}

// EnsureExchange 确保exchange存在
func (r *RabbitMQ) EnsureExchange(exchangeName, exchangeType string, durable bool) error {
	if exchangeName == "" {
		return fmt.Errorf("exchange名称不能为空")
	}
	// 防止尝试声明默认交换机
	if exchangeName == "amq.default" || exchangeName == "default" {
		return fmt.Errorf("不能声明默认交换机 '%s'", exchangeName)
	}

	if _, exists := r.exchangeMap[exchangeName]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.ExchangeDeclare(
		exchangeName, // exchange名称
		exchangeType, // exchange类型
		durable,      // 持久化
		false,        // 自动删除
		false,        // 内部专用
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		return fmt.Errorf("声明exchange失败: %w", err)
	}

	r.exchangeMap[exchangeName] = true
	logger.Debug().Str("exchange", exchangeName).Msg("已确保exchange存在")
	return nil
}

// EnsureQueue 确保队列存在
func (r *RabbitMQ) EnsureQueue(queueName string, durable bool) error {
	if _, exists := r.queueMap[queueName]; exists {
		// 被动声明验证队列是否真实存在，不存在则从缓存中移除以便重试
		ch := r.getChannel()
		if ch == nil {
			return fmt.Errorf("无法获取RabbitMQ通道")
		}
		defer r.putChannel(ch)

		_, err := ch.QueueDeclarePassive(queueName, durable, false, false, false, nil)
		if err != nil {
			delete(r.queueMap, queueName)
			return fmt.Errorf("被动声明队列 '%s' 失败 (可能不存在或参数不匹配): %w", queueName, err)
		}
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	_, err := ch.QueueDeclare(
		queueName, // 队列名称
		durable,   // 持久化
		false,     // 自动删除
		false,     // 独占
		false,     // 非阻塞
		nil,       // 参数
	)
	if err != nil {
		return fmt.Errorf("声明队列失败: %w", err)
	}

	r.queueMap[queueName] = true
	logger.Debug().Str("queue", queueName).Msg("已确保队列存在")
	return nil
}

// BindQueue 绑定队列到exchange
func (r *RabbitMQ) BindQueue(queueName, exchangeName, routingKey string) error {
	bindingKey := fmt.Sprintf("%s:%s:%s", exchangeName, queueName, routingKey)
	if _, exists := r.bindingMap[bindingKey]; exists {
		return nil
	}

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	err := ch.QueueBind(
		queueName,    // 队列名
		routingKey,   // 路由键
		exchangeName, // exchange名
		false,        // 非阻塞
		nil,          // 参数
	)
	if err != nil {
		return fmt.Errorf("绑定队列到exchange失败: %w", err)
	}

	r.bindingMap[bindingKey] = true
	logger.Debug().
		Str("queue", queueName).
		Str("exchange", exchangeName).
		Str("routing_key", routingKey).
		Msg("已绑定队列到exchange")
	return nil
}

// PublishMessage 发布消息到exchange
func (r *RabbitMQ) PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error {
	r.publishMutex.Lock()
	defer r.publishMutex.Unlock()

	ch := r.getChannel()
	if ch == nil {
		return fmt.Errorf("无法获取RabbitMQ通道")
	}
	defer r.putChannel(ch)

	var deliveryMode uint8 = 1 // 非持久化
	if persistent {
		deliveryMode = 2 // 持久化
	}

	return ch.PublishWithContext(
		ctx,
		exchangeName, // exchange名
		routingKey,   // 路由键
		false,        // 强制
		false,        // 立即
		amqp.Publishing{
			DeliveryMode: deliveryMode,
			ContentType:  "application/json",
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
}

// PublishJSON 发布JSON格式的消息
func (r *RabbitMQ) PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("JSON序列化失败: %w", err)
	}

	return r.PublishMessage(ctx, exchangeName, routingKey, jsonData, persistent)
}

// PublishResumeCreated 实现builder.EventPublisher接口，发布简历创建事件
func (r *RabbitMQ) PublishResumeCreated(ctx context.Context, resumeID, ownerID, resumeName string) error {
	exchange := r.cfg.ResumeEventsExchange
	routingKey := r.cfg.CreatedRoutingKey
	if exchange == "" {
		return fmt.Errorf("简历事件exchange未配置")
	}
	if routingKey == "" {
		routingKey = "resume.created"
	}

	if err := r.EnsureExchange(exchange, "topic", true); err != nil {
		return err
	}

	event := ResumeCreatedEvent{
		ResumeID:   resumeID,
		OwnerID:    ownerID,
		ResumeName: resumeName,
		Source:     "builder",
		CreatedAt:  time.Now(),
	}

	if err := r.PublishJSON(ctx, exchange, routingKey, event, true); err != nil {
		return fmt.Errorf("发布简历创建事件失败: %w", err)
	}

	logger.Info().
		Str("resume_id", resumeID).
		Str("exchange", exchange).
		Str("routing_key", routingKey).
		Msg("简历创建事件已发布")
	return nil
}

var _ builder.EventPublisher = (*RabbitMQ)(nil)
