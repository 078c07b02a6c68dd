package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "clubpoints.settlement.result" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "STL7_1" {
			return errors.New("unexpected key " + string(key))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	var pub Publisher = NewKafkaPublisher(producer)
	require.NoError(t, pub.SendMessage("clubpoints.settlement.result", "STL7_1", []byte(`{"event_id":7}`)))
	require.ErrorIs(t, pub.SendMessage("clubpoints.settlement.result", "STL8_1", []byte(`{}`)), sarama.ErrNotLeaderForPartition)

	require.NoError(t, NewKafkaPublisher(producer).Close())
}

func TestClosingNilProducer(t *testing.T) {
	require.NoError(t, (&KafkaPublisher{}).Close())
}
