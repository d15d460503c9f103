package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"showroom_bot/internal/entities"
	"showroom_bot/internal/infrastructure"
	"showroom_bot/internal/interfaces"
	"showroom_bot/internal/resilience"
)

// Ack statuses returned to the gateway. Every status is a successful delivery.
const (
	StatusProcessed  = "processed"
	StatusSuppressed = "suppressed"
	StatusDuplicate  = "duplicate"
	StatusBusy       = "busy"
	StatusDegraded   = "degraded"
	StatusFailed     = "failed"
)

const messageDedupeTTL = 10 * time.Minute

// Ack is the webhook acknowledgement body.
type Ack struct {
	Status   string          `json:"status"`
	LeadID   entities.LeadID `json:"leadId,omitempty"`
	UserType string          `json:"userType,omitempty"`
}

type OrchestratorDeps struct {
	Normalizer  *Normalizer
	Classifier  *SenderClassifier
	Persistence interfaces.Persistence
	Operator    *OperatorMachine
	Engine      *CustomerEngine
	Context     *ContextBuilder
	Outbound    Outbound
	Claims      interfaces.StateStore
	Publisher   interfaces.OutcomePublisher
	Usage       interfaces.UsageRecorder
	Registry    *resilience.Registry
}

// Orchestrator runs one inbound delivery end to end: normalize, dedupe,
// classify, route, dispatch, log, publish.
type Orchestrator struct {
	OrchestratorDeps
	now func() time.Time
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	if d.Normalizer == nil {
		d.Normalizer = NewNormalizer()
	}
	if d.Classifier == nil {
		d.Classifier = NewSenderClassifier(d.Persistence)
	}
	return &Orchestrator{OrchestratorDeps: d, now: time.Now}
}

// Handle normalizes raw and processes it. Only a *entities.NormalizationError is
// returned; every other failure is folded into the ack status.
func (o *Orchestrator) Handle(ctx context.Context, tenantID string, raw []byte) (Ack, error) {
	msg, err := o.Normalizer.Normalize(raw)
	if err != nil {
		return Ack{}, err
	}
	return o.HandleInbound(ctx, tenantID, msg), nil
}

// HandleInbound processes an already normalized message.
func (o *Orchestrator) HandleInbound(ctx context.Context, tenantID string, msg entities.InboundMessage) Ack {
	if o.Registry != nil {
		if d := o.Registry.Policy(resilience.ClassWebhook).Timeout; d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}
	scope := msg.MessageID
	if scope == "" {
		scope = uuid.NewString()
	}
	ctx = WithSendScope(ctx, scope)

	ctx, span := infrastructure.StartSpan(ctx, "webhook.handle", attribute.String("tenant", tenantID))
	defer span.End()

	logger := log.With().Str("tenant", tenantID).Str("phone", msg.SenderPhone).Logger()

	if msg.MessageID != "" && o.Claims != nil {
		if !o.Claims.Claim(resilience.Key("msg", tenantID, msg.MessageID), messageDedupeTTL) {
			logger.Info().Str("messageId", msg.MessageID).Msg("Duplicate delivery ignored")
			return Ack{Status: StatusDuplicate}
		}
	}

	tenant, err := o.Persistence.TenantProfile(ctx, tenantID)
	if err != nil || tenant == nil {
		logger.Warn().Err(err).Msg("Tenant profile unavailable, using defaults")
		tenant = &entities.Tenant{ID: tenantID, DisplayName: tenantID}
	}

	role, err := o.Classifier.Classify(ctx, tenantID, msg.SenderPhone)
	if err != nil {
		logger.Warn().Err(err).Msg("Sender classification degraded")
	}
	logger = logger.With().Str("role", string(role)).Logger()

	if o.Usage != nil {
		if err := o.Usage.IncrementReceived(ctx, tenantID); err != nil {
			logger.Warn().Err(err).Msg("Failed to record received usage")
		}
	}

	leadID, err := o.Persistence.FindOrCreateLead(ctx, tenantID, msg.SenderPhone)
	if err != nil {
		logger.Error().Err(err).Msg("Lead lookup failed, continuing without lead")
		leadID = 0
	}
	logger = logger.With().Int64("lead", int64(leadID)).Logger()

	if msg.MessageID != "" {
		if err := o.Outbound.MarkRead(ctx, tenantID, msg.SenderPhone, []string{msg.MessageID}); err != nil {
			logger.Debug().Err(err).Msg("Mark read failed")
		}
	}

	text := msg.RawText
	if text == "" && msg.HasMedia() {
		text = mediaPlaceholder(msg)
	}

	status := StatusProcessed
	var reply entities.Reply
	if role.CanOperate() {
		reply, err = o.Operator.Handle(ctx, tenant, msg.SenderPhone, role, text)
		switch {
		case errors.Is(err, entities.ErrBusy):
			status = StatusBusy
		case err != nil:
			logger.Error().Err(err).Msg("Operator handling failed")
			status = StatusFailed
		}
	} else {
		reply = o.Engine.Respond(ctx, ToolEnv{Tenant: tenant, LeadID: leadID, Phone: msg.SenderPhone}, text)
	}

	if status == StatusProcessed {
		switch {
		case reply.Suppressed:
			status = StatusSuppressed
		case reply.Degraded:
			status = StatusDegraded
		}
	}

	if !reply.Suppressed && reply.Text == "" && status != StatusFailed {
		logger.Error().Str("command", reply.Metadata.Command).Msg("Handler produced no reply")
		status = StatusFailed
	}

	if !reply.Suppressed && reply.Text != "" {
		// ErrDuplicateSend means this body already went out for this message.
		if err := o.Outbound.SendText(ctx, tenantID, msg.SenderPhone, reply.Text); err != nil && !errors.Is(err, ErrDuplicateSend) {
			logger.Error().Err(err).Msg("Reply delivery failed")
			reply.Metadata.Delivery = entities.DeliveryFailed
			status = StatusFailed
		}
	}

	o.recordTurns(ctx, tenantID, leadID, role, msg, text, reply)
	o.publish(ctx, tenantID, leadID, role, msg, status, reply)

	logger.Info().Str("status", status).Str("intent", reply.Metadata.Intent).Str("command", reply.Metadata.Command).Msg("Inbound message handled")
	return Ack{Status: status, LeadID: leadID, UserType: string(role)}
}

func (o *Orchestrator) recordTurns(ctx context.Context, tenantID string, leadID entities.LeadID, role entities.SenderRole, msg entities.InboundMessage, text string, reply entities.Reply) {
	if leadID == 0 {
		return
	}
	inRole := entities.TurnCustomer
	if role.CanOperate() {
		inRole = entities.TurnOperator
	}
	turns := []entities.ConversationTurn{{
		Role:      inRole,
		Text:      text,
		Metadata:  entities.TurnMetadata{Intent: reply.Metadata.Intent, Command: reply.Metadata.Command, MediaRef: msg.MediaRef},
		CreatedAt: msg.Timestamp,
	}}
	if !reply.Suppressed && reply.Text != "" {
		turns = append(turns, entities.ConversationTurn{Role: entities.TurnBot, Text: reply.Text, Metadata: reply.Metadata, CreatedAt: o.now()})
	}
	for _, t := range turns {
		if err := o.Persistence.AppendTurn(ctx, tenantID, leadID, t); err != nil {
			log.Error().Err(err).Str("tenant", tenantID).Int64("lead", int64(leadID)).Msg("Failed to append conversation turn")
		}
	}
	if o.Context != nil {
		o.Context.Invalidate(tenantID, leadID)
	}
}

func (o *Orchestrator) publish(ctx context.Context, tenantID string, leadID entities.LeadID, role entities.SenderRole, msg entities.InboundMessage, status string, reply entities.Reply) {
	if o.Publisher == nil {
		return
	}
	evt := entities.OutcomeEvent{
		TenantID:   tenantID,
		LeadID:     leadID,
		Phone:      msg.SenderPhone,
		Role:       role,
		Status:     status,
		Intent:     reply.Metadata.Intent,
		Iterations: reply.Metadata.Iterations,
		ToolsUsed:  reply.Metadata.ToolsUsed,
		MessageID:  msg.MessageID,
		At:         o.now(),
	}
	if err := o.Publisher.Publish(ctx, evt); err != nil {
		log.Warn().Err(err).Str("tenant", tenantID).Msg("Failed to publish outcome event")
	}
}

func mediaPlaceholder(msg entities.InboundMessage) string {
	switch msg.MediaKind {
	case entities.MediaImage:
		return "[pelanggan mengirim gambar]"
	case entities.MediaVideo:
		return "[pelanggan mengirim video]"
	case entities.MediaAudio:
		return "[pelanggan mengirim pesan suara]"
	case entities.MediaDocument:
		return "[pelanggan mengirim dokumen]"
	}
	return "[pelanggan mengirim lampiran]"
}
