package broker

import (
	"errors"
	"fmt"

	"chatguard/internal/config"
	"chatguard/internal/logger"
)

// ErrDisabled is returned when broker.type is empty.
var ErrDisabled = errors.New("broker disabled")

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "":
		return nil, ErrDisabled
	case "kafka":
		return NewKafkaProducer(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}

func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	switch cfg.Type {
	case "":
		return nil, ErrDisabled
	case "kafka":
		return NewKafkaConsumer(cfg.Kafka, log), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
