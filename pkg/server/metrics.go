package server

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ReemKish/chat-program/pkg/protocol"
)

// Metrics holds the server's Prometheus collectors. Each server instance
// carries its own registry so multiple servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	messagesReceived *prometheus.CounterVec
	messagesSent     *prometheus.CounterVec
	broadcasts       prometheus.Counter
	activeMembers    prometheus.Gauge
	admissions       prometheus.Counter
	rejections       prometheus.Counter
	decryptFailures  prometheus.Counter
	attachments      prometheus.Counter
}

// NewMetrics creates and registers the server's collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_received_total",
			Help: "Messages received from members, by payload type",
		}, []string{"type"}),
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages sent to members, by payload type",
		}, []string{"type"}),
		broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_broadcasts_total",
			Help: "Broadcast operations performed",
		}),
		activeMembers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_active_members",
			Help: "Members currently in the group",
		}),
		admissions: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_admissions_total",
			Help: "Connections admitted into the group",
		}),
		rejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_rejections_total",
			Help: "Connections rejected during the handshake",
		}),
		decryptFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_decrypt_failures_total",
			Help: "Received envelopes that failed authentication",
		}),
		attachments: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_attachments_total",
			Help: "File attachments stored",
		}),
	}
}

func (m *Metrics) RecordMessageReceived(msgType string) { m.messagesReceived.WithLabelValues(msgType).Inc() }
func (m *Metrics) RecordMessageSent(msgType string)     { m.messagesSent.WithLabelValues(msgType).Inc() }
func (m *Metrics) RecordBroadcast()                     { m.broadcasts.Inc() }
func (m *Metrics) RecordActiveMembers(n int)            { m.activeMembers.Set(float64(n)) }
func (m *Metrics) RecordAdmission()                     { m.admissions.Inc() }
func (m *Metrics) RecordRejection()                     { m.rejections.Inc() }
func (m *Metrics) RecordDecryptFailure()                { m.decryptFailures.Inc() }
func (m *Metrics) RecordAttachmentStored()              { m.attachments.Inc() }

// messageTypeToString names a payload type tag for metric labels.
func messageTypeToString(tag byte) string {
	switch tag {
	case protocol.TypeMsg:
		return "MSG"
	case protocol.TypeServerMsg:
		return "SERVERMSG"
	case protocol.TypeBytes:
		return "BYTES"
	case protocol.TypeFilePart:
		return "FILE_PART"
	case protocol.TypeFileAttachSend:
		return "FILE_ATTACH_SEND"
	case protocol.TypeFileAttachRecv:
		return "FILE_ATTACH_RECV"
	}
	if protocol.IsCommand(tag) {
		return "COMMAND"
	}
	return fmt.Sprintf("0x%02X", tag)
}
